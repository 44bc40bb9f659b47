package services

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"labbooking-backend/models"
)

// AvailabilityService batch-publishes open slots from a daily recurrence
// rule. It never touches existing rows: candidates that collide with any
// capacity-holding record are skipped, not merged.
type AvailabilityService struct {
	DB    *gorm.DB
	NowFn func() time.Time
}

func NewAvailabilityService(db *gorm.DB) *AvailabilityService {
	return &AvailabilityService{DB: db, NowFn: time.Now}
}

// GenerateResult reports how many candidate intervals were inserted vs
// skipped because of an overlap.
type GenerateResult struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

func parseDailyStart(day time.Time, hhmm string) (time.Time, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid daily start %q: %w", hhmm, err)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, day.Location()), nil
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Generate creates up to countPerDay back-to-back available slots per day in
// [startDate, endDate], starting at dailyStart each day. Each candidate is
// checked (closed-open) against every capacity-holding slot of the
// infrastructure on that date — including pending and approved reservations,
// not just open availability — and skipped on overlap.
func (s *AvailabilityService) Generate(
	infrastructureID uint,
	startDate, endDate time.Time,
	dailyStart string,
	durationMinutes int,
	countPerDay int,
) (GenerateResult, error) {

	var result GenerateResult

	if durationMinutes <= 0 {
		return result, fmt.Errorf("validation: duration must be positive")
	}
	if countPerDay <= 0 {
		return result, fmt.Errorf("validation: count per day must be positive")
	}

	startDate = truncateToDay(startDate)
	endDate = truncateToDay(endDate)

	today := truncateToDay(s.NowFn())
	if startDate.Before(today) {
		return result, fmt.Errorf("validation: start date is in the past")
	}
	if endDate.Before(startDate) {
		return result, fmt.Errorf("validation: end date before start date")
	}

	infra, err := s.loadActiveInfrastructure(infrastructureID)
	if err != nil {
		return result, err
	}
	if infra.MaxBookingMinutes != nil && durationMinutes > *infra.MaxBookingMinutes {
		return result, fmt.Errorf("validation: duration exceeds infrastructure max of %d minutes", *infra.MaxBookingMinutes)
	}

	duration := time.Duration(durationMinutes) * time.Minute

	txErr := s.DB.Transaction(func(tx *gorm.DB) error {
		for day := startDate; !day.After(endDate); day = day.AddDate(0, 0, 1) {
			first, err := parseDailyStart(day, dailyStart)
			if err != nil {
				return err
			}

			var existing []models.SlotRecord
			if err := tx.
				Where("infrastructure_id = ? AND date = ? AND status IN ?",
					infrastructureID, day, models.CapacityHoldingStatuses).
				Find(&existing).Error; err != nil {
				return fmt.Errorf("failed to load existing slots: %w", err)
			}

			cursor := first
			for i := 0; i < countPerDay; i++ {
				start := cursor
				end := cursor.Add(duration)
				cursor = end

				if overlapsAny(existing, start, end) {
					result.Skipped++
					continue
				}

				slot := models.SlotRecord{
					InfrastructureID: infrastructureID,
					Date:             day,
					StartsAt:         start,
					EndsAt:           end,
					Kind:             models.KindAvailability,
					Status:           models.StatusAvailable,
				}
				if err := tx.Create(&slot).Error; err != nil {
					return fmt.Errorf("failed to create slot: %w", err)
				}
				existing = append(existing, slot)
				result.Created++
			}
		}
		return nil
	})
	if txErr != nil {
		return GenerateResult{}, txErr
	}
	return result, nil
}

// CreateSingleSlot publishes one administrative slot, subject to the same
// overlap rule as batch generation.
func (s *AvailabilityService) CreateSingleSlot(infrastructureID uint, start, end time.Time) (*models.SlotRecord, error) {
	if !end.After(start) {
		return nil, fmt.Errorf("validation: end must be after start")
	}
	if start.Before(s.NowFn()) {
		return nil, fmt.Errorf("validation: start is in the past")
	}
	if _, err := s.loadActiveInfrastructure(infrastructureID); err != nil {
		return nil, err
	}

	day := truncateToDay(start)
	slot := models.SlotRecord{
		InfrastructureID: infrastructureID,
		Date:             day,
		StartsAt:         start,
		EndsAt:           end,
		Kind:             models.KindAvailability,
		Status:           models.StatusAvailable,
	}

	txErr := s.DB.Transaction(func(tx *gorm.DB) error {
		var existing []models.SlotRecord
		if err := tx.
			Where("infrastructure_id = ? AND date = ? AND status IN ?",
				infrastructureID, day, models.CapacityHoldingStatuses).
			Find(&existing).Error; err != nil {
			return fmt.Errorf("failed to load existing slots: %w", err)
		}
		if overlapsAny(existing, start, end) {
			return ErrSlotUnavailable
		}
		return tx.Create(&slot).Error
	})
	if txErr != nil {
		return nil, txErr
	}
	return &slot, nil
}

// ListSlots returns the slots of an infrastructure in [from, to], newest
// day first. Used by the calendar views only; no lifecycle logic here.
func (s *AvailabilityService) ListSlots(infrastructureID uint, from, to time.Time) ([]models.SlotRecord, error) {
	var slots []models.SlotRecord
	q := s.DB.Where("infrastructure_id = ?", infrastructureID)
	if !from.IsZero() {
		q = q.Where("date >= ?", truncateToDay(from))
	}
	if !to.IsZero() {
		q = q.Where("date <= ?", truncateToDay(to))
	}
	if err := q.Order("starts_at ASC").Find(&slots).Error; err != nil {
		return nil, fmt.Errorf("failed to list slots: %w", err)
	}
	return slots, nil
}

func (s *AvailabilityService) loadActiveInfrastructure(id uint) (*models.Infrastructure, error) {
	var infra models.Infrastructure
	if err := s.DB.First(&infra, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load infrastructure: %w", err)
	}
	if !infra.Active {
		return nil, fmt.Errorf("validation: infrastructure %d is inactive", id)
	}
	return &infra, nil
}

func overlapsAny(existing []models.SlotRecord, start, end time.Time) bool {
	for i := range existing {
		if existing[i].Overlaps(start, end) {
			return true
		}
	}
	return false
}
