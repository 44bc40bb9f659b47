package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"labbooking-backend/services"
	"labbooking-backend/utils"
)

type InitiateGuestClaimPayload struct {
	Email   string                        `json:"email" binding:"required"`
	SlotID  uint                          `json:"slotId" binding:"required"`
	Purpose string                        `json:"purpose"`
	Answers map[uint]services.AnswerInput `json:"answers"`
}

type ConfirmGuestClaimPayload struct {
	Token string `json:"token" binding:"required"`
}

type GuestController struct {
	Guests *services.GuestClaimService
}

func NewGuestController(guests *services.GuestClaimService) *GuestController {
	return &GuestController{Guests: guests}
}

// InitiateGuestClaim records an expiring intent and emails the confirmation
// link. The raw token never appears in the response.
func (gc *GuestController) InitiateGuestClaim(c *gin.Context) {
	var payload InitiateGuestClaimPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid payload")
		return
	}

	result, err := gc.Guests.Initiate(payload.Email, payload.SlotID, payload.Purpose, payload.Answers)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response := gin.H{
		"tokenIssued": true,
		"expiresAt":   result.Intent.ExpiresAt,
		"email":       utils.MaskEmail(result.Intent.Email),
	}
	if result.Notice != "" {
		response["notice"] = result.Notice
	}
	utils.JSONSuccess(c, http.StatusAccepted, response)
}

// ConfirmGuestClaim exercises the emailed token and runs the real claim.
func (gc *GuestController) ConfirmGuestClaim(c *gin.Context) {
	var payload ConfirmGuestClaimPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid payload")
		return
	}

	result, err := gc.Guests.Confirm(strings.TrimSpace(payload.Token))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusOK, result)
}
