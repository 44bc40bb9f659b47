package services

import (
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"labbooking-backend/models"
)

// SweeperService advances stale records to terminal states purely from the
// passage of time. Every pass is idempotent and race-safe: each update is
// matched on the current status, so a record a human just decided is simply
// not matched anymore.
type SweeperService struct {
	DB *gorm.DB
}

func NewSweeperService(db *gorm.DB) *SweeperService {
	return &SweeperService{DB: db}
}

// SweepResult aggregates the transitions of one pass.
type SweepResult struct {
	CompletedCount        int64 `json:"completedCount"`
	ExpiredBookingsCount  int64 `json:"expiredBookingsCount"`
	ExpiredTimeslotsCount int64 `json:"expiredTimeslotsCount"`
}

// Sweep runs one pass against the supplied clock. now is an explicit
// parameter so the pass is deterministic under test and on the admin
// endpoint.
//
// Rules:
//   - available past its end        -> expired  (unclaimed capacity lapses)
//   - pending past its START        -> expired  (never decided in time)
//   - approved past its end         -> completed
func (s *SweeperService) Sweep(now time.Time) (SweepResult, error) {
	var result SweepResult

	txErr := s.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.SlotRecord{}).
			Where("kind = ? AND status = ? AND ends_at <= ?",
				models.KindAvailability, models.StatusAvailable, now).
			Update("status", models.StatusExpired)
		if res.Error != nil {
			return fmt.Errorf("failed to expire timeslots: %w", res.Error)
		}
		result.ExpiredTimeslotsCount = res.RowsAffected

		res = tx.Model(&models.SlotRecord{}).
			Where("kind = ? AND status = ? AND starts_at <= ?",
				models.KindReservation, models.StatusPending, now).
			Update("status", models.StatusExpired)
		if res.Error != nil {
			return fmt.Errorf("failed to expire pending bookings: %w", res.Error)
		}
		result.ExpiredBookingsCount = res.RowsAffected

		res = tx.Model(&models.SlotRecord{}).
			Where("kind = ? AND status = ? AND ends_at <= ?",
				models.KindReservation, models.StatusApproved, now).
			Update("status", models.StatusCompleted)
		if res.Error != nil {
			return fmt.Errorf("failed to complete bookings: %w", res.Error)
		}
		result.CompletedCount = res.RowsAffected

		// Guest intents that were never confirmed lapse alongside; they are
		// not part of the slot counts.
		if err := tx.Model(&models.GuestClaimIntent{}).
			Where("status = ? AND expires_at <= ?", models.IntentPending, now).
			Update("status", models.IntentExpired).Error; err != nil {
			return fmt.Errorf("failed to expire guest intents: %w", err)
		}

		return nil
	})
	if txErr != nil {
		return SweepResult{}, txErr
	}

	if result.CompletedCount+result.ExpiredBookingsCount+result.ExpiredTimeslotsCount > 0 {
		log.Printf("sweep: completed=%d expired_bookings=%d expired_timeslots=%d",
			result.CompletedCount, result.ExpiredBookingsCount, result.ExpiredTimeslotsCount)
	}
	return result, nil
}
