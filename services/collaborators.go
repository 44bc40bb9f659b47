package services

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"gorm.io/gorm"

	"labbooking-backend/models"
	"labbooking-backend/utils"
)

// Actor is the authenticated identity a lifecycle operation runs as.
// Authentication itself is an external concern; the engine only consumes
// the resolved email + role.
type Actor struct {
	Email string
	Role  string
}

// Actor roles.
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleUser    = "user"
)

// AccessControl answers whether an actor may decide reservations on an
// infrastructure. Supplied by the surrounding system; the engine treats a
// positive answer as a precondition.
type AccessControl interface {
	CanManage(actor Actor, infrastructureID uint) bool
}

// Notifier delivers an event to recipients. Delivery failures are advisory:
// the state transition that triggered the notification stays committed.
type Notifier interface {
	Send(event string, recipients []string, payload map[string]string) error
}

// DocumentStore persists uploaded answer documents and returns an opaque
// handle; the engine records only the handle.
type DocumentStore interface {
	Store(data []byte, subdir string) (string, error)
}

// ---------------------------------------------------------------------------
// Default implementations
// ---------------------------------------------------------------------------

// DBAccessControl backs CanManage with the manager_assignments table.
// Admins may act on any infrastructure.
type DBAccessControl struct {
	DB *gorm.DB
}

func NewDBAccessControl(db *gorm.DB) *DBAccessControl {
	return &DBAccessControl{DB: db}
}

func (a *DBAccessControl) CanManage(actor Actor, infrastructureID uint) bool {
	if actor.Role == RoleAdmin {
		return true
	}
	if actor.Role != RoleManager || actor.Email == "" {
		return false
	}
	var count int64
	if err := a.DB.Model(&models.ManagerAssignment{}).
		Where("manager_email = ? AND infrastructure_id = ?", actor.Email, infrastructureID).
		Count(&count).Error; err != nil {
		log.Printf("access control lookup failed for %s/%d: %v", actor.Email, infrastructureID, err)
		return false
	}
	return count > 0
}

// ManagerEmails returns the decision recipients for an infrastructure,
// falling back to the admin contact when nobody is assigned.
func (a *DBAccessControl) ManagerEmails(infrastructureID uint) []string {
	var assignments []models.ManagerAssignment
	if err := a.DB.Where("infrastructure_id = ?", infrastructureID).Find(&assignments).Error; err != nil {
		log.Printf("manager lookup failed for infrastructure %d: %v", infrastructureID, err)
		return nil
	}
	emails := make([]string, 0, len(assignments))
	for _, as := range assignments {
		emails = append(emails, as.ManagerEmail)
	}
	if len(emails) == 0 {
		if fallback := utils.EnvOrDefault("ADMIN_NOTIFY_EMAIL", ""); fallback != "" {
			emails = append(emails, fallback)
		}
	}
	return emails
}

// EmailNotifier renders events as emails through the SMTP helpers in utils
// (which log a mock send when SMTP is not configured).
type EmailNotifier struct{}

func (EmailNotifier) Send(event string, recipients []string, payload map[string]string) error {
	var lastErr error
	for _, to := range recipients {
		if err := utils.SendEventEmail(to, event, payload); err != nil {
			log.Printf("notify %s to %s failed: %v", event, to, err)
			lastErr = err
		}
	}
	return lastErr
}

// DiskDocumentStore writes answer documents under uploads/<subdir>/ and
// returns the slash path used as the stored handle.
type DiskDocumentStore struct {
	BaseDir string
}

func NewDiskDocumentStore() *DiskDocumentStore {
	return &DiskDocumentStore{BaseDir: utils.EnvOrDefault("UPLOAD_DIR", "uploads")}
}

func (d *DiskDocumentStore) Store(data []byte, subdir string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty document")
	}
	dir := filepath.Join(d.BaseDir, subdir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("mkdir uploads dir: %w", err)
	}
	filename := fmt.Sprintf("%d.bin", time.Now().UnixNano())
	fullpath := filepath.Join(dir, filename)
	if err := os.WriteFile(fullpath, data, 0644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return filepath.ToSlash(filepath.Join(subdir, filename)), nil
}
