package controllers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"labbooking-backend/models"
	"labbooking-backend/services"
	"labbooking-backend/utils"
)

// ---------------------------
// Payload / DTOs
// ---------------------------

type ClaimPayload struct {
	Claimant string                        `json:"claimant" binding:"required"`
	Purpose  string                        `json:"purpose"`
	Answers  map[uint]services.AnswerInput `json:"answers"`
}

type DecisionPayload struct {
	Action string `json:"action" binding:"required"` // approve | reject | cancel
}

type ConsumeTokenPayload struct {
	Token  string `json:"token" binding:"required"`
	Action string `json:"action" binding:"required"`
}

type BookingController struct {
	Claims    *services.ClaimService
	Decisions *services.DecisionService
	Sweeper   *services.SweeperService
}

func NewBookingController(claims *services.ClaimService, decisions *services.DecisionService, sweeper *services.SweeperService) *BookingController {
	return &BookingController{Claims: claims, Decisions: decisions, Sweeper: sweeper}
}

func pathID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil || id == 0 {
		utils.JSONError(c, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return uint(id), true
}

// ClaimSlot converts an available slot into a pending reservation for the
// acting user.
func (bc *BookingController) ClaimSlot(c *gin.Context) {
	slotID, ok := pathID(c)
	if !ok {
		return
	}

	var payload ClaimPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid payload")
		return
	}

	result, err := bc.Claims.Claim(slotID, payload.Claimant, payload.Purpose, payload.Answers)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusCreated, result)
}

// Decide applies a manager/claimant decision to a reservation.
func (bc *BookingController) Decide(c *gin.Context) {
	reservationID, ok := pathID(c)
	if !ok {
		return
	}

	var payload DecisionPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid payload")
		return
	}

	actor := actorFromContext(c)

	var slot *models.SlotRecord
	var err error
	switch strings.ToLower(strings.TrimSpace(payload.Action)) {
	case "approve":
		slot, err = bc.Decisions.Approve(reservationID, actor)
	case "reject":
		slot, err = bc.Decisions.RejectOrCancel(reservationID, actor, models.StatusRejected)
	case "cancel":
		slot, err = bc.Decisions.RejectOrCancel(reservationID, actor, models.StatusCanceled)
	default:
		utils.JSONError(c, http.StatusBadRequest, "unsupported action")
		return
	}
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusOK, slot)
}

// GetReservation returns one reservation with its answers.
func (bc *BookingController) GetReservation(c *gin.Context) {
	reservationID, ok := pathID(c)
	if !ok {
		return
	}
	slot, err := bc.Decisions.GetReservation(reservationID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusOK, slot)
}

// ConsumeToken is the target of email decision links.
func (bc *BookingController) ConsumeToken(c *gin.Context) {
	var payload ConsumeTokenPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid payload")
		return
	}

	slot, err := bc.Decisions.ConsumeToken(strings.TrimSpace(payload.Token), strings.ToLower(strings.TrimSpace(payload.Action)))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusOK, slot)
}

// RunSweep triggers an on-demand sweep. Admin only.
func (bc *BookingController) RunSweep(c *gin.Context) {
	actor := actorFromContext(c)
	if actor.Role != services.RoleAdmin {
		utils.JSONError(c, http.StatusForbidden, services.ErrForbidden.Error())
		return
	}

	result, err := bc.Sweeper.Sweep(time.Now())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusOK, result)
}
