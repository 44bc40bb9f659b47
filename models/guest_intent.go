package models

import (
	"time"

	"gorm.io/datatypes"
)

// Guest intent statuses.
const (
	IntentPending   = "pending"
	IntentConfirmed = "confirmed"
	IntentExpired   = "expired"
)

// GuestClaimIntent defers an unverified guest's claim behind an email
// confirmation. The slot is NOT touched when the intent is recorded; only
// confirming the token runs the real conditional claim, which may by then
// lose the slot to someone else.
type GuestClaimIntent struct {
	ID uint `gorm:"primaryKey" json:"id"`

	SlotID           uint           `gorm:"index;column:slot_id" json:"slotId"`
	InfrastructureID uint           `gorm:"index;column:infrastructure_id" json:"infrastructureId"`
	Email            string         `gorm:"size:255;index" json:"email"`
	Purpose          string         `gorm:"type:text" json:"purpose,omitempty"`
	Answers          datatypes.JSON `gorm:"column:answers" json:"answers,omitempty"`

	Token     string    `gorm:"uniqueIndex;size:128" json:"-"`
	Status    string    `gorm:"size:32;default:pending;index" json:"status"`
	ExpiresAt time.Time `gorm:"column:expires_at" json:"expiresAt"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
