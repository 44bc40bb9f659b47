package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labbooking-backend/models"
)

func TestSweepAdvancesStaleRecords(t *testing.T) {
	db, _, claims, decisions, sweeper, _, _ := newEngine(t)
	infra := seedInfrastructure(t, db)

	// 09:00 stays untouched availability, 10:00 becomes a never-decided
	// pending reservation, 11:00 an approved one.
	open := seedAvailableSlot(t, db, infra.ID, 9)
	pending := seedAvailableSlot(t, db, infra.ID, 10)
	approved := seedAvailableSlot(t, db, infra.ID, 11)

	claimSlot(t, claims, pending.ID, "pending@lab.local")
	claimSlot(t, claims, approved.ID, "approved@lab.local")
	_, err := decisions.Approve(approved.ID, manager)
	require.NoError(t, err)

	// Sweep at end of day: everything is past its window.
	endOfDay := time.Date(2025, 6, 1, 23, 0, 0, 0, time.UTC)
	result, err := sweeper.Sweep(endOfDay)
	require.NoError(t, err)

	assert.EqualValues(t, 1, result.ExpiredTimeslotsCount)
	assert.EqualValues(t, 1, result.ExpiredBookingsCount)
	assert.EqualValues(t, 1, result.CompletedCount)

	for id, want := range map[uint]string{
		open.ID:     models.StatusExpired,
		pending.ID:  models.StatusExpired,
		approved.ID: models.StatusCompleted,
	} {
		var slot models.SlotRecord
		require.NoError(t, db.First(&slot, id).Error)
		assert.Equal(t, want, slot.Status, "slot %d", id)
	}
}

func TestSweepPendingExpiresAtStartNotEnd(t *testing.T) {
	db, _, claims, _, sweeper, _, _ := newEngine(t)
	infra := seedInfrastructure(t, db)
	slot := seedAvailableSlot(t, db, infra.ID, 10)
	claimSlot(t, claims, slot.ID, "user@lab.local")

	// One minute past start: the undecided request lapses even though the
	// interval itself has not ended.
	result, err := sweeper.Sweep(slot.StartsAt.Add(time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 1, result.ExpiredBookingsCount)

	var current models.SlotRecord
	require.NoError(t, db.First(&current, slot.ID).Error)
	assert.Equal(t, models.StatusExpired, current.Status)
}

func TestSweepIsIdempotent(t *testing.T) {
	db, _, claims, decisions, sweeper, _, _ := newEngine(t)
	infra := seedInfrastructure(t, db)

	seedAvailableSlot(t, db, infra.ID, 9)
	pending := seedAvailableSlot(t, db, infra.ID, 10)
	approved := seedAvailableSlot(t, db, infra.ID, 11)
	claimSlot(t, claims, pending.ID, "pending@lab.local")
	claimSlot(t, claims, approved.ID, "approved@lab.local")
	_, err := decisions.Approve(approved.ID, manager)
	require.NoError(t, err)

	endOfDay := time.Date(2025, 6, 1, 23, 0, 0, 0, time.UTC)
	first, err := sweeper.Sweep(endOfDay)
	require.NoError(t, err)
	assert.Positive(t, first.CompletedCount+first.ExpiredBookingsCount+first.ExpiredTimeslotsCount)

	second, err := sweeper.Sweep(endOfDay)
	require.NoError(t, err)
	assert.Zero(t, second.CompletedCount)
	assert.Zero(t, second.ExpiredBookingsCount)
	assert.Zero(t, second.ExpiredTimeslotsCount)
}

func TestSweepLeavesFutureRecordsAlone(t *testing.T) {
	db, _, _, _, sweeper, _, _ := newEngine(t)
	infra := seedInfrastructure(t, db)
	slot := seedAvailableSlot(t, db, infra.ID, 10)

	result, err := sweeper.Sweep(testNow)
	require.NoError(t, err)
	assert.Zero(t, result.ExpiredTimeslotsCount)

	var current models.SlotRecord
	require.NoError(t, db.First(&current, slot.ID).Error)
	assert.Equal(t, models.StatusAvailable, current.Status)
}
