package models

import "time"

// Answer records what a claimant supplied for one question of one
// reservation. Written once inside the claim transaction, never mutated.
// Document answers carry a stored-document handle, not the content itself.
type Answer struct {
	ID uint `gorm:"primaryKey" json:"id"`

	ReservationID uint   `gorm:"index;column:reservation_id" json:"reservationId"`
	QuestionID    uint   `gorm:"index;column:question_id" json:"questionId"`
	ValueText     string `gorm:"column:value_text;type:text" json:"valueText,omitempty"`
	DocumentPath  string `gorm:"column:document_path;size:512" json:"documentPath,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}
