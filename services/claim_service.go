package services

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"labbooking-backend/models"
	"labbooking-backend/utils"
)

// AnswerInput is one supplied answer keyed by question id. Document answers
// carry base64 content which is stored through the DocumentStore; only the
// returned handle is persisted.
type AnswerInput struct {
	Value    string `json:"value,omitempty"`
	Document string `json:"document,omitempty"`
}

// ClaimService converts available slots into pending reservations. The
// conversion is a single conditional UPDATE keyed on the current status, so
// out of any number of concurrent claimers exactly one wins and the rest
// fail cleanly with ErrSlotUnavailable.
type ClaimService struct {
	DB        *gorm.DB
	Documents DocumentStore
	Notifier  Notifier
	Access    *DBAccessControl
	NowFn     func() time.Time
}

func NewClaimService(db *gorm.DB, docs DocumentStore, notifier Notifier, access *DBAccessControl) *ClaimService {
	return &ClaimService{DB: db, Documents: docs, Notifier: notifier, Access: access, NowFn: time.Now}
}

// ClaimResult is the committed reservation plus the side-effect outcome.
// Token may be nil and Notice non-empty when issuance or notification
// failed; those failures never roll back the claim itself.
type ClaimResult struct {
	Slot   *models.SlotRecord      `json:"slot"`
	Token  *models.CapabilityToken `json:"token,omitempty"`
	Notice string                  `json:"notice,omitempty"`
}

// Claim attempts to take the slot for claimant. The conditional write, the
// required-answer validation and the answer inserts share one transaction:
// a validation failure rolls the half-claimed slot back to available.
func (s *ClaimService) Claim(slotID uint, claimant, purpose string, answers map[uint]AnswerInput) (*ClaimResult, error) {
	claimant = strings.TrimSpace(strings.ToLower(claimant))
	if claimant == "" {
		return nil, fmt.Errorf("validation: claimant required")
	}

	var slot *models.SlotRecord
	txErr := s.DB.Transaction(func(tx *gorm.DB) error {
		var err error
		slot, err = s.ClaimInTx(tx, slotID, claimant, purpose, answers)
		return err
	})
	if txErr != nil {
		return nil, txErr
	}

	token, notice := s.IssueApprovalSideEffects(slot)
	return &ClaimResult{Slot: slot, Token: token, Notice: notice}, nil
}

// ClaimInTx runs the atomic claim inside an existing transaction. The guest
// confirmation flow reuses it so intent consumption and the claim commit or
// roll back together.
func (s *ClaimService) ClaimInTx(tx *gorm.DB, slotID uint, claimant, purpose string, answers map[uint]AnswerInput) (*models.SlotRecord, error) {
	refCode := uuid.NewString()

	// The race-closing write: only an available row can become pending, and
	// only one concurrent transaction sees RowsAffected == 1.
	res := tx.Model(&models.SlotRecord{}).
		Where("id = ? AND status = ?", slotID, models.StatusAvailable).
		Updates(map[string]interface{}{
			"kind":           models.KindReservation,
			"status":         models.StatusPending,
			"claimant":       claimant,
			"purpose":        purpose,
			"reference_code": refCode,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to claim slot: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := tx.Model(&models.SlotRecord{}).Where("id = ?", slotID).Count(&count).Error; err != nil {
			return nil, err
		}
		if count == 0 {
			return nil, ErrNotFound
		}
		return nil, ErrSlotUnavailable
	}

	var slot models.SlotRecord
	if err := tx.First(&slot, slotID).Error; err != nil {
		return nil, fmt.Errorf("failed to reload slot: %w", err)
	}

	var questions []models.QuestionDefinition
	if err := tx.
		Where("infrastructure_id = ?", slot.InfrastructureID).
		Order("sort_order ASC, id ASC").
		Find(&questions).Error; err != nil {
		return nil, fmt.Errorf("failed to load questions: %w", err)
	}

	if missing := missingRequiredAnswers(questions, answers); len(missing) > 0 {
		return nil, &MissingRequiredAnswersError{QuestionIDs: missing}
	}

	if err := s.persistAnswers(tx, &slot, questions, answers); err != nil {
		return nil, err
	}

	return &slot, nil
}

// IssueApprovalSideEffects mints the approve capability token and notifies
// the infrastructure's managers after the claim has committed. Failures
// degrade to an advisory notice; the reservation stays pending either way.
func (s *ClaimService) IssueApprovalSideEffects(slot *models.SlotRecord) (*models.CapabilityToken, string) {
	token, err := s.mintToken(slot.ID, models.TokenActionApprove)
	if err != nil {
		log.Printf("capability token issuance failed for reservation %d: %v", slot.ID, err)
		return nil, "token_issue_failed"
	}

	recipients := s.Access.ManagerEmails(slot.InfrastructureID)
	payload := map[string]string{
		"reference": slot.ReferenceCode,
		"claimant":  derefClaimant(slot.Claimant),
		"starts_at": slot.StartsAt.Format(time.RFC3339),
		"ends_at":   slot.EndsAt.Format(time.RFC3339),
		"link":      utils.BuildDecisionLink(utils.EnvOrDefault("FRONTEND_URL", "http://localhost:3000"), token.Token, models.TokenActionApprove),
	}
	if err := s.Notifier.Send("reservation_requested", recipients, payload); err != nil {
		return token, "notification_failed"
	}
	return token, ""
}

// mintToken creates a single-use capability token, retrying on the unlikely
// unique collision of the random token value.
func (s *ClaimService) mintToken(reservationID uint, action string) (*models.CapabilityToken, error) {
	ttlHours, err := strconv.Atoi(utils.EnvOrDefault("CAPABILITY_TOKEN_TTL_HOURS", "72"))
	if err != nil || ttlHours <= 0 {
		ttlHours = 72
	}

	const maxRetries = 5
	for attempt := 0; attempt < maxRetries; attempt++ {
		value, gErr := utils.GenerateSecureToken(32)
		if gErr != nil {
			return nil, fmt.Errorf("failed to generate token: %w", gErr)
		}
		token := models.CapabilityToken{
			Token:         value,
			ReservationID: reservationID,
			Action:        action,
			ExpiresAt:     s.NowFn().Add(time.Duration(ttlHours) * time.Hour),
		}
		createErr := s.DB.Create(&token).Error
		if createErr == nil {
			return &token, nil
		}
		if isDuplicateKeyError(createErr) {
			log.Printf("capability token collision (attempt %d) - retrying", attempt+1)
			continue
		}
		return nil, fmt.Errorf("failed to create capability token: %w", createErr)
	}
	return nil, fmt.Errorf("failed to create capability token after retries")
}

func (s *ClaimService) persistAnswers(tx *gorm.DB, slot *models.SlotRecord, questions []models.QuestionDefinition, answers map[uint]AnswerInput) error {
	for _, q := range questions {
		input, ok := answers[q.ID]
		if !ok {
			continue
		}

		answer := models.Answer{
			ReservationID: slot.ID,
			QuestionID:    q.ID,
		}

		if q.Type == models.QuestionDocument {
			if strings.TrimSpace(input.Document) == "" {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(stripBase64Prefix(input.Document))
			if err != nil {
				return fmt.Errorf("validation: invalid document payload for question %d: %w", q.ID, err)
			}
			handle, err := s.Documents.Store(data, fmt.Sprintf("reservations/%d", slot.ID))
			if err != nil {
				return fmt.Errorf("failed to store document for question %d: %w", q.ID, err)
			}
			answer.DocumentPath = handle
		} else {
			if strings.TrimSpace(input.Value) == "" {
				continue
			}
			answer.ValueText = strings.TrimSpace(input.Value)
		}

		if err := tx.Create(&answer).Error; err != nil {
			return fmt.Errorf("failed to persist answer for question %d: %w", q.ID, err)
		}
	}
	return nil
}

// missingRequiredAnswers applies the per-type value shape rules: text and
// dropdown need a non-empty string, number must parse, document needs
// content to store.
func missingRequiredAnswers(questions []models.QuestionDefinition, answers map[uint]AnswerInput) []uint {
	var missing []uint
	for _, q := range questions {
		if !q.Required {
			continue
		}
		input, ok := answers[q.ID]
		if !ok {
			missing = append(missing, q.ID)
			continue
		}
		switch q.Type {
		case models.QuestionDocument:
			if strings.TrimSpace(input.Document) == "" {
				missing = append(missing, q.ID)
			}
		case models.QuestionNumber:
			if _, err := strconv.ParseFloat(strings.TrimSpace(input.Value), 64); err != nil {
				missing = append(missing, q.ID)
			}
		default:
			if strings.TrimSpace(input.Value) == "" {
				missing = append(missing, q.ID)
			}
		}
	}
	return missing
}

func stripBase64Prefix(b64 string) string {
	if idx := strings.Index(b64, "base64,"); idx >= 0 {
		return b64[idx+7:]
	}
	return b64
}

func derefClaimant(c *string) string {
	if c == nil {
		return ""
	}
	return *c
}

// isDuplicateKeyError matches unique-constraint violations across drivers.
func isDuplicateKeyError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) && myErr.Number == 1062 {
		return true
	}
	lc := strings.ToLower(err.Error())
	return strings.Contains(lc, "duplicate") || strings.Contains(lc, "unique") || strings.Contains(lc, "constraint")
}
