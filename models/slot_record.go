package models

import (
	"time"

	"gorm.io/gorm"
)

// Slot kinds: one row either publishes capacity or holds a claim.
const (
	KindAvailability = "availability"
	KindReservation  = "reservation"
)

// Slot lifecycle statuses.
const (
	StatusAvailable = "available"
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusCompleted = "completed"
	StatusExpired   = "expired"
	StatusCanceled  = "canceled"
)

// CapacityHoldingStatuses are the statuses that occupy a physical interval
// and exclude every other claim for it. Rows in any other status are
// terminal and hold no capacity.
var CapacityHoldingStatuses = []string{StatusAvailable, StatusPending, StatusApproved}

// SlotRecord is one physical time interval on one infrastructure, through
// its entire life: published as availability, claimed into a reservation,
// decided, and eventually advanced to a terminal status by the sweeper.
// Rows are never hard-deleted; every transition is a status change.
type SlotRecord struct {
	ID uint `gorm:"primaryKey" json:"id"`

	InfrastructureID uint      `gorm:"index;column:infrastructure_id" json:"infrastructureId"`
	Date             time.Time `gorm:"column:date;index" json:"date"`
	StartsAt         time.Time `gorm:"column:starts_at;index" json:"startsAt"`
	EndsAt           time.Time `gorm:"column:ends_at" json:"endsAt"`

	Kind   string `gorm:"column:kind;size:32" json:"kind"`
	Status string `gorm:"column:status;size:32;index" json:"status"`

	Claimant      *string `gorm:"column:claimant;size:255;index" json:"claimant,omitempty"`
	Purpose       string  `gorm:"column:purpose;type:text" json:"purpose,omitempty"`
	ReferenceCode string  `gorm:"column:reference_code;size:64;index" json:"referenceCode,omitempty"`

	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Infrastructure Infrastructure `gorm:"foreignKey:InfrastructureID;references:ID" json:"infrastructure,omitempty"`
	Answers        []Answer       `gorm:"foreignKey:ReservationID" json:"answers,omitempty"`
}

// HoldsCapacity reports whether the record currently occupies its interval.
func (s *SlotRecord) HoldsCapacity() bool {
	switch s.Status {
	case StatusAvailable, StatusPending, StatusApproved:
		return true
	}
	return false
}

// Overlaps uses the closed-open interval rule: two slots collide when each
// starts before the other ends.
func (s *SlotRecord) Overlaps(start, end time.Time) bool {
	return s.StartsAt.Before(end) && start.Before(s.EndsAt)
}
