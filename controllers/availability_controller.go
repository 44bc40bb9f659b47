package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"labbooking-backend/config"
	"labbooking-backend/models"
	"labbooking-backend/services"
	"labbooking-backend/utils"
)

// ---------------------------
// Payload / DTOs
// ---------------------------

type GenerateAvailabilityPayload struct {
	InfrastructureID uint   `json:"infrastructureId" binding:"required"`
	StartDate        string `json:"startDate" binding:"required"` // 2006-01-02
	EndDate          string `json:"endDate" binding:"required"`
	DailyStart       string `json:"dailyStart" binding:"required"` // 15:04
	DurationMinutes  int    `json:"durationMinutes" binding:"required"`
	CountPerDay      int    `json:"countPerDay" binding:"required"`
}

type CreateSlotPayload struct {
	InfrastructureID uint   `json:"infrastructureId" binding:"required"`
	StartsAt         string `json:"startsAt" binding:"required"` // RFC3339
	EndsAt           string `json:"endsAt" binding:"required"`
}

type AvailabilityController struct {
	Service *services.AvailabilityService
}

func NewAvailabilityController(service *services.AvailabilityService) *AvailabilityController {
	return &AvailabilityController{Service: service}
}

func parseDate(value string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, value)
}

// GenerateAvailability publishes a batch of open slots from a recurrence
// rule. Managers and admins only.
func (ac *AvailabilityController) GenerateAvailability(c *gin.Context) {
	var payload GenerateAvailabilityPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid payload")
		return
	}

	if !requireManagement(c, payload.InfrastructureID) {
		return
	}

	startDate, err := parseDate(payload.StartDate)
	if err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid startDate")
		return
	}
	endDate, err := parseDate(payload.EndDate)
	if err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid endDate")
		return
	}

	result, err := ac.Service.Generate(
		payload.InfrastructureID, startDate, endDate,
		payload.DailyStart, payload.DurationMinutes, payload.CountPerDay,
	)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusCreated, result)
}

// CreateSlot publishes one administrative slot.
func (ac *AvailabilityController) CreateSlot(c *gin.Context) {
	var payload CreateSlotPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid payload")
		return
	}

	if !requireManagement(c, payload.InfrastructureID) {
		return
	}

	start, err := time.Parse(time.RFC3339, payload.StartsAt)
	if err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid startsAt")
		return
	}
	end, err := time.Parse(time.RFC3339, payload.EndsAt)
	if err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid endsAt")
		return
	}

	slot, err := ac.Service.CreateSingleSlot(payload.InfrastructureID, start, end)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusCreated, slot)
}

// ListInfrastructures returns the active infrastructures for pickers.
func (ac *AvailabilityController) ListInfrastructures(c *gin.Context) {
	var infras []models.Infrastructure
	if err := config.DB.Preload("Questions").Where("active = ?", true).Order("name ASC").Find(&infras).Error; err != nil {
		utils.JSONError(c, http.StatusInternalServerError, "failed to list infrastructures")
		return
	}
	utils.JSONSuccess(c, http.StatusOK, infras)
}

// ListSlots returns the calendar of one infrastructure, optionally bounded
// by ?from and ?to dates.
func (ac *AvailabilityController) ListSlots(c *gin.Context) {
	id, err := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid infrastructure id")
		return
	}

	var from, to time.Time
	if raw := c.Query("from"); raw != "" {
		if from, err = parseDate(raw); err != nil {
			utils.JSONError(c, http.StatusBadRequest, "invalid from date")
			return
		}
	}
	if raw := c.Query("to"); raw != "" {
		if to, err = parseDate(raw); err != nil {
			utils.JSONError(c, http.StatusBadRequest, "invalid to date")
			return
		}
	}

	slots, err := ac.Service.ListSlots(uint(id), from, to)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusOK, slots)
}

// actorFromContext resolves the acting identity. Authentication is an
// upstream concern; the engine trusts the resolved headers.
func actorFromContext(c *gin.Context) services.Actor {
	role := strings.TrimSpace(strings.ToLower(c.GetHeader("X-Actor-Role")))
	if role == "" {
		role = services.RoleUser
	}
	return services.Actor{
		Email: strings.TrimSpace(strings.ToLower(c.GetHeader("X-Actor-Email"))),
		Role:  role,
	}
}

func requireManagement(c *gin.Context, infrastructureID uint) bool {
	actor := actorFromContext(c)
	access := services.NewDBAccessControl(config.DB)
	if !access.CanManage(actor, infrastructureID) {
		utils.JSONError(c, http.StatusForbidden, services.ErrForbidden.Error())
		return false
	}
	return true
}

// respondServiceError maps engine errors onto HTTP statuses.
func respondServiceError(c *gin.Context, err error) {
	var missing *services.MissingRequiredAnswersError
	switch {
	case errors.Is(err, services.ErrNotFound):
		utils.JSONError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrSlotUnavailable):
		utils.JSONError(c, http.StatusConflict, err.Error())
	case errors.Is(err, services.ErrInvalidTransition):
		utils.JSONError(c, http.StatusConflict, err.Error())
	case errors.Is(err, services.ErrWithinCancellationWindow):
		utils.JSONError(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, services.ErrForbidden):
		utils.JSONError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, services.ErrInvalidToken):
		utils.JSONError(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, services.ErrRateLimited):
		utils.JSONError(c, http.StatusTooManyRequests, err.Error())
	case errors.As(err, &missing):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"success":     false,
			"error":       "missing_required_answers",
			"questionIds": missing.QuestionIDs,
		})
	case strings.HasPrefix(err.Error(), "validation:"):
		utils.JSONError(c, http.StatusBadRequest, err.Error())
	default:
		utils.JSONError(c, http.StatusInternalServerError, "internal error")
	}
}
