package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labbooking-backend/models"
)

func TestGenerateCreatesBackToBackSlots(t *testing.T) {
	db, availability, _, _, _, _, _ := newEngine(t)
	infra := seedInfrastructure(t, db)

	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	result, err := availability.Generate(infra.ID, day, day, "09:00", 60, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Created)
	assert.Equal(t, 0, result.Skipped)

	var slots []models.SlotRecord
	require.NoError(t, db.Order("starts_at ASC").Find(&slots).Error)
	require.Len(t, slots, 3)
	for i, slot := range slots {
		assert.Equal(t, models.KindAvailability, slot.Kind)
		assert.Equal(t, models.StatusAvailable, slot.Status)
		wantStart := day.Add(time.Duration(9+i) * time.Hour)
		assert.True(t, slot.StartsAt.Equal(wantStart), "slot %d starts at %v", i, slot.StartsAt)
		assert.True(t, slot.EndsAt.Equal(wantStart.Add(time.Hour)))
	}
}

func TestGenerateIsIdempotentOverExistingSlots(t *testing.T) {
	db, availability, _, _, _, _, _ := newEngine(t)
	infra := seedInfrastructure(t, db)

	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	_, err := availability.Generate(infra.ID, day, day, "09:00", 60, 3)
	require.NoError(t, err)

	result, err := availability.Generate(infra.ID, day, day, "09:00", 60, 3)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Created)
	assert.Equal(t, 3, result.Skipped)
}

func TestGenerateChecksPendingAndApprovedOverlaps(t *testing.T) {
	db, availability, claims, decisions, _, _, _ := newEngine(t)
	infra := seedInfrastructure(t, db)

	// Claim and approve the 10:00 slot, then regenerate: the approved
	// reservation must still block its interval even though no available
	// row covers it anymore.
	slot := seedAvailableSlot(t, db, infra.ID, 10)
	_, err := claims.Claim(slot.ID, "user@lab.local", "calibration", nil)
	require.NoError(t, err)
	_, err = decisions.Approve(slot.ID, Actor{Email: "manager@lab.local", Role: RoleManager})
	require.NoError(t, err)

	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	result, err := availability.Generate(infra.ID, day, day, "09:00", 60, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 1, result.Skipped)

	assert.EqualValues(t, 1, countCapacityHolding(t, db, infra.ID, slot.StartsAt, slot.EndsAt))
}

func TestGenerateRejectsBadRanges(t *testing.T) {
	db, availability, _, _, _, _, _ := newEngine(t)
	infra := seedInfrastructure(t, db)

	past := testNow.AddDate(0, 0, -1)
	_, err := availability.Generate(infra.ID, past, past, "09:00", 60, 1)
	assert.Error(t, err)

	start := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	_, err = availability.Generate(infra.ID, start, end, "09:00", 60, 1)
	assert.Error(t, err)
}

func TestGenerateUnknownInfrastructure(t *testing.T) {
	_, availability, _, _, _, _, _ := newEngine(t)
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	_, err := availability.Generate(999, day, day, "09:00", 60, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateSingleSlotRefusesOverlap(t *testing.T) {
	db, availability, _, _, _, _, _ := newEngine(t)
	infra := seedInfrastructure(t, db)
	existing := seedAvailableSlot(t, db, infra.ID, 10)

	// Half-overlapping interval collides under the closed-open rule.
	_, err := availability.CreateSingleSlot(infra.ID, existing.StartsAt.Add(30*time.Minute), existing.EndsAt.Add(30*time.Minute))
	assert.ErrorIs(t, err, ErrSlotUnavailable)

	// Touching intervals do not.
	slot, err := availability.CreateSingleSlot(infra.ID, existing.EndsAt, existing.EndsAt.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, models.StatusAvailable, slot.Status)
}
