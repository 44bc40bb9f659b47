package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labbooking-backend/models"
)

func TestGuestInitiateAndConfirm(t *testing.T) {
	db, _, _, _, _, guests, notifier := newEngine(t)
	infra := seedInfrastructure(t, db)
	slot := seedAvailableSlot(t, db, infra.ID, 10)

	initiated, err := guests.Initiate("Guest@Example.org", slot.ID, "sample analysis", nil)
	require.NoError(t, err)
	assert.Equal(t, models.IntentPending, initiated.Intent.Status)
	assert.Equal(t, "guest@example.org", initiated.Intent.Email)
	assert.Contains(t, notifier.sent(), "guest_claim_confirmation")

	// The slot is untouched until confirmation.
	var before models.SlotRecord
	require.NoError(t, db.First(&before, slot.ID).Error)
	assert.Equal(t, models.StatusAvailable, before.Status)

	result, err := guests.Confirm(initiated.Intent.Token)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, result.Slot.Status)
	require.NotNil(t, result.Slot.Claimant)
	assert.Equal(t, "guest@example.org", *result.Slot.Claimant)
	require.NotNil(t, result.Token)
	assert.Equal(t, models.TokenActionApprove, result.Token.Action)

	var intent models.GuestClaimIntent
	require.NoError(t, db.First(&intent, initiated.Intent.ID).Error)
	assert.Equal(t, models.IntentConfirmed, intent.Status)
}

func TestGuestConfirmIsSingleUse(t *testing.T) {
	db, _, _, _, _, guests, _ := newEngine(t)
	infra := seedInfrastructure(t, db)
	slot := seedAvailableSlot(t, db, infra.ID, 10)

	initiated, err := guests.Initiate("guest@example.org", slot.ID, "", nil)
	require.NoError(t, err)

	_, err = guests.Confirm(initiated.Intent.Token)
	require.NoError(t, err)

	_, err = guests.Confirm(initiated.Intent.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestGuestRateLimitPerEmailPerInfrastructure(t *testing.T) {
	db, _, _, _, _, guests, _ := newEngine(t)
	infra := seedInfrastructure(t, db)
	first := seedAvailableSlot(t, db, infra.ID, 10)
	second := seedAvailableSlot(t, db, infra.ID, 11)

	_, err := guests.Initiate("guest@example.org", first.ID, "", nil)
	require.NoError(t, err)

	// Same email, same infrastructure, same rolling day: refused.
	_, err = guests.Initiate("guest@example.org", second.ID, "", nil)
	assert.ErrorIs(t, err, ErrRateLimited)

	// A different guest is unaffected.
	_, err = guests.Initiate("other@example.org", second.ID, "", nil)
	require.NoError(t, err)
}

func TestGuestConfirmLosesSlotRace(t *testing.T) {
	db, _, claims, _, _, guests, _ := newEngine(t)
	infra := seedInfrastructure(t, db)
	slot := seedAvailableSlot(t, db, infra.ID, 10)

	initiated, err := guests.Initiate("guest@example.org", slot.ID, "", nil)
	require.NoError(t, err)

	// A registered user takes the slot while the guest's email is in
	// flight.
	_, err = claims.Claim(slot.ID, "user@lab.local", "", nil)
	require.NoError(t, err)

	_, err = guests.Confirm(initiated.Intent.Token)
	assert.ErrorIs(t, err, ErrSlotUnavailable)

	// The losing confirmation rolled back whole: the intent is still
	// pending and the winner keeps the slot.
	var intent models.GuestClaimIntent
	require.NoError(t, db.First(&intent, initiated.Intent.ID).Error)
	assert.Equal(t, models.IntentPending, intent.Status)

	var current models.SlotRecord
	require.NoError(t, db.First(&current, slot.ID).Error)
	assert.Equal(t, "user@lab.local", *current.Claimant)
}

func TestGuestConfirmExpiredIntent(t *testing.T) {
	db, _, _, _, _, guests, _ := newEngine(t)
	infra := seedInfrastructure(t, db)
	slot := seedAvailableSlot(t, db, infra.ID, 10)

	initiated, err := guests.Initiate("guest@example.org", slot.ID, "", nil)
	require.NoError(t, err)

	guests.NowFn = func() time.Time { return initiated.Intent.ExpiresAt.Add(time.Minute) }
	_, err = guests.Confirm(initiated.Intent.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestGuestInitiateOnTakenSlot(t *testing.T) {
	db, _, claims, _, _, guests, _ := newEngine(t)
	infra := seedInfrastructure(t, db)
	slot := seedAvailableSlot(t, db, infra.ID, 10)

	_, err := claims.Claim(slot.ID, "user@lab.local", "", nil)
	require.NoError(t, err)

	_, err = guests.Initiate("guest@example.org", slot.ID, "", nil)
	assert.ErrorIs(t, err, ErrSlotUnavailable)
}

func TestGuestAnswersCarryThroughConfirmation(t *testing.T) {
	db, _, _, _, _, guests, _ := newEngine(t)
	infra := seedInfrastructure(t, db,
		models.QuestionDefinition{Text: "Project name", Type: models.QuestionText, Required: true, SortOrder: 1},
	)
	slot := seedAvailableSlot(t, db, infra.ID, 10)

	initiated, err := guests.Initiate("guest@example.org", slot.ID, "", map[uint]AnswerInput{
		1: {Value: "Spectra"},
	})
	require.NoError(t, err)

	result, err := guests.Confirm(initiated.Intent.Token)
	require.NoError(t, err)

	var answers []models.Answer
	require.NoError(t, db.Where("reservation_id = ?", result.Slot.ID).Find(&answers).Error)
	require.Len(t, answers, 1)
	assert.Equal(t, "Spectra", answers[0].ValueText)
}
