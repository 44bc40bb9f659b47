package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"labbooking-backend/models"
	"labbooking-backend/utils"
)

// GuestRatePolicy decides whether another guest intent may be issued. The
// policy is enforced outside the engine's core rules; the flow only
// consults it before minting a confirmation token.
type GuestRatePolicy interface {
	Allow(email string, infrastructureID uint, now time.Time) (bool, error)
}

// DBGuestRatePolicy allows at most one live (pending or confirmed) intent
// per email per infrastructure per rolling day.
type DBGuestRatePolicy struct {
	DB *gorm.DB
}

func (p *DBGuestRatePolicy) Allow(email string, infrastructureID uint, now time.Time) (bool, error) {
	var count int64
	err := p.DB.Model(&models.GuestClaimIntent{}).
		Where("email = ? AND infrastructure_id = ? AND status IN ? AND created_at > ?",
			email, infrastructureID,
			[]string{models.IntentPending, models.IntentConfirmed},
			now.Add(-24*time.Hour)).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check guest rate: %w", err)
	}
	return count == 0, nil
}

// GuestClaimService defers unverified claims behind an emailed single-use
// confirmation token. The slot itself is untouched until the token is
// exercised; only then does the atomic claim run, and by then the slot may
// be gone.
type GuestClaimService struct {
	DB       *gorm.DB
	Claims   *ClaimService
	Rate     GuestRatePolicy
	Notifier Notifier
	NowFn    func() time.Time
}

func NewGuestClaimService(db *gorm.DB, claims *ClaimService, notifier Notifier) *GuestClaimService {
	return &GuestClaimService{
		DB:       db,
		Claims:   claims,
		Rate:     &DBGuestRatePolicy{DB: db},
		Notifier: notifier,
		NowFn:    time.Now,
	}
}

// InitiateResult reports the recorded intent. The raw token travels only in
// the confirmation email; the API response just acknowledges issuance.
type InitiateResult struct {
	Intent *models.GuestClaimIntent `json:"intent"`
	Notice string                   `json:"notice,omitempty"`
}

// Initiate records a pending intent for slotID and emails a confirmation
// link to the supplied address.
func (s *GuestClaimService) Initiate(email string, slotID uint, purpose string, answers map[uint]AnswerInput) (*InitiateResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("validation: valid email required")
	}

	var slot models.SlotRecord
	if err := s.DB.First(&slot, slotID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load slot: %w", err)
	}
	// Advisory precheck only — the binding check happens at confirmation.
	if slot.Status != models.StatusAvailable {
		return nil, ErrSlotUnavailable
	}

	now := s.NowFn()
	allowed, err := s.Rate.Allow(email, slot.InfrastructureID, now)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, ErrRateLimited
	}

	answersJSON, err := json.Marshal(answers)
	if err != nil {
		return nil, fmt.Errorf("failed to encode answers: %w", err)
	}

	token, err := utils.GenerateSecureToken(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate confirmation token: %w", err)
	}

	ttlHours, convErr := strconv.Atoi(utils.EnvOrDefault("GUEST_INTENT_TTL_HOURS", "24"))
	if convErr != nil || ttlHours <= 0 {
		ttlHours = 24
	}

	intent := models.GuestClaimIntent{
		SlotID:           slot.ID,
		InfrastructureID: slot.InfrastructureID,
		Email:            email,
		Purpose:          purpose,
		Answers:          datatypes.JSON(answersJSON),
		Token:            token,
		Status:           models.IntentPending,
		ExpiresAt:        now.Add(time.Duration(ttlHours) * time.Hour),
	}
	if err := s.DB.Create(&intent).Error; err != nil {
		return nil, fmt.Errorf("failed to record guest intent: %w", err)
	}

	notice := ""
	link := utils.BuildGuestConfirmLink(utils.EnvOrDefault("FRONTEND_URL", "http://localhost:3000"), token)
	payload := map[string]string{
		"link":      link,
		"starts_at": slot.StartsAt.Format(time.RFC3339),
		"ends_at":   slot.EndsAt.Format(time.RFC3339),
	}
	if err := s.Notifier.Send("guest_claim_confirmation", []string{email}, payload); err != nil {
		log.Printf("guest confirmation email to %s failed: %v", utils.MaskEmail(email), err)
		notice = "notification_failed"
	}

	return &InitiateResult{Intent: &intent, Notice: notice}, nil
}

// Confirm exercises a confirmation token: the intent consumption and the
// atomic claim share one transaction, so losing the slot race rolls the
// intent back to pending and reports ErrSlotUnavailable instead of silently
// booking anything else.
func (s *GuestClaimService) Confirm(token string) (*ClaimResult, error) {
	now := s.NowFn()

	var slot *models.SlotRecord
	txErr := s.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.GuestClaimIntent{}).
			Where("token = ? AND status = ? AND expires_at > ?", token, models.IntentPending, now).
			Update("status", models.IntentConfirmed)
		if res.Error != nil {
			return fmt.Errorf("failed to consume intent: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrInvalidToken
		}

		var intent models.GuestClaimIntent
		if err := tx.Where("token = ?", token).First(&intent).Error; err != nil {
			return fmt.Errorf("failed to reload intent: %w", err)
		}

		answers := map[uint]AnswerInput{}
		if len(intent.Answers) > 0 {
			if err := json.Unmarshal(intent.Answers, &answers); err != nil {
				return fmt.Errorf("failed to decode intent answers: %w", err)
			}
		}

		var err error
		slot, err = s.Claims.ClaimInTx(tx, intent.SlotID, intent.Email, intent.Purpose, answers)
		return err
	})
	if txErr != nil {
		return nil, txErr
	}

	capToken, notice := s.Claims.IssueApprovalSideEffects(slot)
	return &ClaimResult{Slot: slot, Token: capToken, Notice: notice}, nil
}
