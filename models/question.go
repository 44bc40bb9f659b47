package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Question field types.
const (
	QuestionText     = "text"
	QuestionNumber   = "number"
	QuestionDropdown = "dropdown"
	QuestionDocument = "document"
)

// QuestionDefinition is a per-infrastructure dynamic field the claimant must
// answer at claim time. Definitions are treated as immutable for the
// lifetime of any claim referencing them.
type QuestionDefinition struct {
	ID uint `gorm:"primaryKey" json:"id"`

	InfrastructureID uint           `gorm:"index;column:infrastructure_id" json:"infrastructureId"`
	Text             string         `gorm:"size:512" json:"text"`
	Type             string         `gorm:"size:32" json:"type"`
	Required         bool           `gorm:"default:false" json:"required"`
	Options          datatypes.JSON `gorm:"column:options" json:"options,omitempty"`
	SortOrder        int            `gorm:"column:sort_order;default:0" json:"sortOrder"`

	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
