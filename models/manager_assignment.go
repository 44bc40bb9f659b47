package models

import "time"

// ManagerAssignment grants one manager (by email) decision rights over one
// infrastructure. Admins bypass this table entirely.
type ManagerAssignment struct {
	ID uint `gorm:"primaryKey" json:"id"`

	ManagerEmail     string `gorm:"size:255;not null;index:idx_manager_infra,unique" json:"manager_email"`
	InfrastructureID uint   `gorm:"not null;index:idx_manager_infra,unique" json:"infrastructure_id"`

	CreatedAt time.Time `json:"created_at"`
}
