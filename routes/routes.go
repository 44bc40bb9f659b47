package routes

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"labbooking-backend/controllers"
	"labbooking-backend/middleware"
)

func parseCorsOrigins() []string {
	raw := strings.TrimSpace(os.Getenv("CORS_ORIGINS"))
	if raw == "" {
		return []string{"*"}
	}

	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, part := range parts {
		origin := strings.TrimSpace(part)
		if origin != "" {
			origins = append(origins, origin)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

// SetupRouter wires the controller instances onto the HTTP surface.
func SetupRouter(
	ac *controllers.AvailabilityController,
	bc *controllers.BookingController,
	gc *controllers.GuestController,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.Logger())
	r.Static("/uploads", "./uploads")

	origins := parseCorsOrigins()
	allowCredentials := true
	for _, origin := range origins {
		if origin == "*" {
			allowCredentials = false
			break
		}
	}

	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With", "X-Actor-Email", "X-Actor-Role"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: allowCredentials,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		availability := api.Group("/availability")
		{
			availability.POST("/generate", ac.GenerateAvailability)
		}

		slots := api.Group("/slots")
		{
			slots.POST("", ac.CreateSlot)
			slots.POST("/:id/claim", bc.ClaimSlot)
		}

		infrastructures := api.Group("/infrastructures")
		{
			infrastructures.GET("", ac.ListInfrastructures)
			infrastructures.GET("/:id/slots", ac.ListSlots)
		}

		reservations := api.Group("/reservations")
		{
			reservations.GET("/:id", bc.GetReservation)
			reservations.POST("/:id/decision", bc.Decide)
		}

		tokens := api.Group("/tokens")
		{
			tokens.POST("/consume", bc.ConsumeToken)
		}

		guest := api.Group("/guest")
		{
			guest.POST("/claims", gc.InitiateGuestClaim)
			guest.POST("/claims/confirm", gc.ConfirmGuestClaim)
		}

		api.POST("/sweep", bc.RunSweep)

		auth := api.Group("/auth")
		{
			auth.POST("/login", controllers.Login)
		}
	}

	return r
}
