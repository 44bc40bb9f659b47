package models

import (
	"time"

	"gorm.io/gorm"
)

// Infrastructure is a bookable resource (instrument, room, equipment).
// Ownership of the full record lives outside the engine; the booking
// lifecycle only reads id, the active flag and the max booking duration.
type Infrastructure struct {
	ID uint `gorm:"primaryKey" json:"id"`

	Name              string `gorm:"size:255" json:"name"`
	Description       string `gorm:"type:text" json:"description,omitempty"`
	Location          string `gorm:"size:255" json:"location,omitempty"`
	Active            bool   `gorm:"default:true" json:"active"`
	MaxBookingMinutes *int   `gorm:"column:max_booking_minutes" json:"maxBookingMinutes,omitempty"`

	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Questions []QuestionDefinition `gorm:"foreignKey:InfrastructureID" json:"questions,omitempty"`
}
