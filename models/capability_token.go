package models

import "time"

// Capability token actions.
const (
	TokenActionApprove = "approve"
	TokenActionReject  = "reject"
)

// CapabilityToken is a short-lived, single-use secret that lets an email
// link perform exactly one state transition on one reservation without a
// session. Tokens are immutable once minted except for the used flag.
type CapabilityToken struct {
	ID uint `gorm:"primaryKey" json:"id"`

	Token         string     `gorm:"uniqueIndex;size:128" json:"token"`
	ReservationID uint       `gorm:"index;column:reservation_id" json:"reservationId"`
	Action        string     `gorm:"size:32" json:"action"`
	ExpiresAt     time.Time  `gorm:"column:expires_at" json:"expiresAt"`
	Used          bool       `gorm:"default:false;index" json:"used"`
	UsedAt        *time.Time `gorm:"column:used_at" json:"usedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}
