package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"labbooking-backend/config"
	"labbooking-backend/controllers"
	"labbooking-backend/routes"
	"labbooking-backend/services"
	"labbooking-backend/utils"
)

func main() {
	// Load .env (optional)
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  .env not found or couldn't load it; continuing with environment variables")
	}

	// Connect database (config.ConnectDatabase should set config.DB)
	if err := config.ConnectDatabase(); err != nil {
		log.Fatalf("❌ Database connect failed: %v", err)
	}
	db := config.DB
	if db == nil {
		log.Fatal("❌ config.DB is nil after ConnectDatabase()")
	}
	log.Println("✅ Database connection established and migrations applied")

	// Collaborators
	access := services.NewDBAccessControl(db)
	notifier := services.EmailNotifier{}
	documents := services.NewDiskDocumentStore()

	// Initialize services
	availabilityService := services.NewAvailabilityService(db)
	claimService := services.NewClaimService(db, documents, notifier, access)
	decisionService := services.NewDecisionService(db, access, notifier)
	sweeperService := services.NewSweeperService(db)
	guestService := services.NewGuestClaimService(db, claimService, notifier)

	// Initialize controllers
	availabilityController := controllers.NewAvailabilityController(availabilityService)
	bookingController := controllers.NewBookingController(claimService, decisionService, sweeperService)
	guestController := controllers.NewGuestController(guestService)

	// Recurring sweep: stale records advance to terminal states without a
	// human driving the transition. Also triggerable via POST /api/sweep.
	scheduler := cron.New()
	sweepSpec := utils.EnvOrDefault("SWEEP_CRON", "@every 5m")
	if _, err := scheduler.AddFunc(sweepSpec, func() {
		if _, err := sweeperService.Sweep(time.Now()); err != nil {
			log.Printf("scheduled sweep failed: %v", err)
		}
	}); err != nil {
		log.Fatalf("❌ invalid SWEEP_CRON %q: %v", sweepSpec, err)
	}
	scheduler.Start()
	defer scheduler.Stop()
	log.Printf("✅ Sweep scheduled (%s)", sweepSpec)

	// Build router
	router := routes.SetupRouter(availabilityController, bookingController, guestController)

	// Port from env (prefer), fallback to 8080
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	addr := ":" + port

	srv := &http.Server{
		Addr:    addr,
		Handler: router,
		// useful timeouts
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("🚀 Server starting on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ ListenAndServe(): %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server with timeout
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Println("⚠️  Shutdown signal received, shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("❌ Server forced to shutdown: %v", err)
	}

	log.Println("✅ Server stopped gracefully")
}
