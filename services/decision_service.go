package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"labbooking-backend/models"
)

// CancellationWindow is how close to the slot start a claimant may still
// cancel an approved reservation. Pending requests stay cancelable up to
// the start itself.
const CancellationWindow = 24 * time.Hour

// DecisionService applies approve / reject / cancel decisions. Every
// transition is a status-matched conditional update inside one transaction,
// and rejecting or canceling re-publishes the interval as a fresh available
// row so capacity reopens.
type DecisionService struct {
	DB       *gorm.DB
	Access   AccessControl
	Notifier Notifier
	NowFn    func() time.Time
}

func NewDecisionService(db *gorm.DB, access AccessControl, notifier Notifier) *DecisionService {
	return &DecisionService{DB: db, Access: access, Notifier: notifier, NowFn: time.Now}
}

// Approve moves a pending reservation to approved. No capacity change: the
// interval stays held, only the hold hardens.
func (s *DecisionService) Approve(reservationID uint, actor Actor) (*models.SlotRecord, error) {
	var slot *models.SlotRecord
	txErr := s.DB.Transaction(func(tx *gorm.DB) error {
		current, err := loadReservation(tx, reservationID)
		if err != nil {
			return err
		}
		if !s.Access.CanManage(actor, current.InfrastructureID) {
			return ErrForbidden
		}
		slot, err = s.approveInTx(tx, reservationID)
		return err
	})
	if txErr != nil {
		return nil, txErr
	}

	s.notifyClaimant(slot, "reservation_approved")
	return slot, nil
}

// RejectOrCancel terminates a reservation and reopens its capacity.
// toStatus must be StatusRejected (managers, from pending only) or
// StatusCanceled (claimant or managers, from pending or approved).
func (s *DecisionService) RejectOrCancel(reservationID uint, actor Actor, toStatus string) (*models.SlotRecord, error) {
	if toStatus != models.StatusRejected && toStatus != models.StatusCanceled {
		return nil, fmt.Errorf("validation: unsupported target status %q", toStatus)
	}

	var slot *models.SlotRecord
	txErr := s.DB.Transaction(func(tx *gorm.DB) error {
		current, err := loadReservation(tx, reservationID)
		if err != nil {
			return err
		}

		isManager := s.Access.CanManage(actor, current.InfrastructureID)
		isClaimant := current.Claimant != nil && actor.Email != "" && *current.Claimant == actor.Email

		switch toStatus {
		case models.StatusRejected:
			if !isManager {
				return ErrForbidden
			}
		case models.StatusCanceled:
			if !isManager && !isClaimant {
				return ErrForbidden
			}
			// Only the claimant is bound by the cancellation window; an
			// approved hold can't be walked away from at the last minute.
			if isClaimant && !isManager &&
				current.Status == models.StatusApproved &&
				s.NowFn().After(current.StartsAt.Add(-CancellationWindow)) {
				return ErrWithinCancellationWindow
			}
		}

		slot, err = s.rejectOrCancelInTx(tx, reservationID, toStatus)
		return err
	})
	if txErr != nil {
		return nil, txErr
	}

	s.notifyClaimant(slot, "reservation_"+toStatus)
	return slot, nil
}

// ConsumeToken performs the transition a capability token authorizes and
// burns the token, atomically. An expired, used, unknown or wrong-action
// token fails with ErrInvalidToken and changes nothing; if the transition
// itself is no longer legal the whole transaction (token included) rolls
// back, so the token stays presentable until it expires.
func (s *DecisionService) ConsumeToken(tokenValue, action string) (*models.SlotRecord, error) {
	if action != models.TokenActionApprove && action != models.TokenActionReject {
		return nil, ErrInvalidToken
	}

	now := s.NowFn()
	var slot *models.SlotRecord

	txErr := s.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.CapabilityToken{}).
			Where("token = ? AND action = ? AND used = ? AND expires_at > ?", tokenValue, action, false, now).
			Updates(map[string]interface{}{"used": true, "used_at": now})
		if res.Error != nil {
			return fmt.Errorf("failed to consume token: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrInvalidToken
		}

		var token models.CapabilityToken
		if err := tx.Where("token = ?", tokenValue).First(&token).Error; err != nil {
			return fmt.Errorf("failed to reload token: %w", err)
		}

		var err error
		switch action {
		case models.TokenActionApprove:
			slot, err = s.approveInTx(tx, token.ReservationID)
		case models.TokenActionReject:
			slot, err = s.rejectOrCancelInTx(tx, token.ReservationID, models.StatusRejected)
		}
		return err
	})
	if txErr != nil {
		return nil, txErr
	}

	s.notifyClaimant(slot, "reservation_"+slot.Status)
	return slot, nil
}

// approveInTx is the status-matched write shared by the authenticated and
// token paths.
func (s *DecisionService) approveInTx(tx *gorm.DB, reservationID uint) (*models.SlotRecord, error) {
	res := tx.Model(&models.SlotRecord{}).
		Where("id = ? AND kind = ? AND status = ?", reservationID, models.KindReservation, models.StatusPending).
		Update("status", models.StatusApproved)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to approve reservation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrInvalidTransition
	}
	return s.finishDecision(tx, reservationID)
}

func (s *DecisionService) rejectOrCancelInTx(tx *gorm.DB, reservationID uint, toStatus string) (*models.SlotRecord, error) {
	fromStatuses := []string{models.StatusPending}
	if toStatus == models.StatusCanceled {
		fromStatuses = []string{models.StatusPending, models.StatusApproved}
	}

	res := tx.Model(&models.SlotRecord{}).
		Where("id = ? AND kind = ? AND status IN ?", reservationID, models.KindReservation, fromStatuses).
		Update("status", toStatus)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to %s reservation: %w", toStatus, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrInvalidTransition
	}

	slot, err := s.finishDecision(tx, reservationID)
	if err != nil {
		return nil, err
	}

	// Re-publication: the physical interval goes back in the pool as a
	// brand-new available row, not by reviving the terminal one.
	reopened := models.SlotRecord{
		InfrastructureID: slot.InfrastructureID,
		Date:             slot.Date,
		StartsAt:         slot.StartsAt,
		EndsAt:           slot.EndsAt,
		Kind:             models.KindAvailability,
		Status:           models.StatusAvailable,
	}
	if err := tx.Create(&reopened).Error; err != nil {
		return nil, fmt.Errorf("failed to reopen capacity: %w", err)
	}

	return slot, nil
}

// finishDecision voids any still-live tokens for the reservation and
// reloads it. A decision supersedes every outstanding email link.
func (s *DecisionService) finishDecision(tx *gorm.DB, reservationID uint) (*models.SlotRecord, error) {
	now := s.NowFn()
	if err := tx.Model(&models.CapabilityToken{}).
		Where("reservation_id = ? AND used = ?", reservationID, false).
		Updates(map[string]interface{}{"used": true, "used_at": now}).Error; err != nil {
		return nil, fmt.Errorf("failed to void capability tokens: %w", err)
	}

	var slot models.SlotRecord
	if err := tx.First(&slot, reservationID).Error; err != nil {
		return nil, fmt.Errorf("failed to reload reservation: %w", err)
	}
	return &slot, nil
}

// GetReservation returns one reservation row with its answers.
func (s *DecisionService) GetReservation(reservationID uint) (*models.SlotRecord, error) {
	var slot models.SlotRecord
	err := s.DB.Preload("Answers").
		Where("id = ? AND kind = ?", reservationID, models.KindReservation).
		First(&slot).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load reservation: %w", err)
	}
	return &slot, nil
}

func (s *DecisionService) notifyClaimant(slot *models.SlotRecord, event string) {
	if slot == nil || slot.Claimant == nil || *slot.Claimant == "" {
		return
	}
	payload := map[string]string{
		"reference": slot.ReferenceCode,
		"status":    slot.Status,
		"starts_at": slot.StartsAt.Format(time.RFC3339),
		"ends_at":   slot.EndsAt.Format(time.RFC3339),
	}
	if err := s.Notifier.Send(event, []string{*slot.Claimant}, payload); err != nil {
		log.Printf("claimant notification %s failed for reservation %d: %v", event, slot.ID, err)
	}
}

func loadReservation(tx *gorm.DB, reservationID uint) (*models.SlotRecord, error) {
	var slot models.SlotRecord
	err := tx.Where("id = ? AND kind = ?", reservationID, models.KindReservation).First(&slot).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load reservation: %w", err)
	}
	return &slot, nil
}
