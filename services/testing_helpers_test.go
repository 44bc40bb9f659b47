package services

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"labbooking-backend/models"
)

// testNow is a fixed clock; all fixture slots live on days after it.
var testNow = time.Date(2025, 5, 20, 8, 0, 0, 0, time.UTC)

// testDBSeq distinguishes the shared in-memory databases of concurrent tests.
var testDBSeq atomic.Int64

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// A plain :memory: DSN gives every pooled connection its own empty
	// database; a named shared-cache DSN keeps one schema across the pool.
	dsn := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared", testDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Admin{},
		&models.ManagerAssignment{},
		&models.Infrastructure{},
		&models.QuestionDefinition{},
		&models.SlotRecord{},
		&models.Answer{},
		&models.CapabilityToken{},
		&models.GuestClaimIntent{},
	))
	return db
}

func seedInfrastructure(t *testing.T, db *gorm.DB, questions ...models.QuestionDefinition) *models.Infrastructure {
	t.Helper()
	infra := models.Infrastructure{Name: "Electron Microscope A", Active: true}
	require.NoError(t, db.Create(&infra).Error)
	for i := range questions {
		questions[i].InfrastructureID = infra.ID
		require.NoError(t, db.Create(&questions[i]).Error)
	}
	require.NoError(t, db.Create(&models.ManagerAssignment{
		ManagerEmail:     "manager@lab.local",
		InfrastructureID: infra.ID,
	}).Error)
	return &infra
}

// seedAvailableSlot publishes one open slot on 2025-06-01 at the given hour.
func seedAvailableSlot(t *testing.T, db *gorm.DB, infraID uint, hour int) *models.SlotRecord {
	t.Helper()
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	slot := models.SlotRecord{
		InfrastructureID: infraID,
		Date:             day,
		StartsAt:         day.Add(time.Duration(hour) * time.Hour),
		EndsAt:           day.Add(time.Duration(hour+1) * time.Hour),
		Kind:             models.KindAvailability,
		Status:           models.StatusAvailable,
	}
	require.NoError(t, db.Create(&slot).Error)
	return &slot
}

// recordingNotifier captures sends instead of talking to SMTP.
type recordingNotifier struct {
	mu     sync.Mutex
	events []string
	fail   bool
}

func (n *recordingNotifier) Send(event string, recipients []string, payload map[string]string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	if n.fail {
		return fmt.Errorf("smtp down")
	}
	return nil
}

func (n *recordingNotifier) sent() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

// memoryDocumentStore keeps stored documents in a map.
type memoryDocumentStore struct {
	mu   sync.Mutex
	docs map[string][]byte
}

func newMemoryDocumentStore() *memoryDocumentStore {
	return &memoryDocumentStore{docs: map[string][]byte{}}
}

func (m *memoryDocumentStore) Store(data []byte, subdir string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty document")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	handle := fmt.Sprintf("%s/doc-%d", subdir, len(m.docs)+1)
	m.docs[handle] = data
	return handle, nil
}

// newEngine wires the full service graph over a fresh in-memory database
// with the fixed test clock.
func newEngine(t *testing.T) (*gorm.DB, *AvailabilityService, *ClaimService, *DecisionService, *SweeperService, *GuestClaimService, *recordingNotifier) {
	t.Helper()
	db := newTestDB(t)
	notifier := &recordingNotifier{}
	access := NewDBAccessControl(db)

	availability := NewAvailabilityService(db)
	availability.NowFn = func() time.Time { return testNow }

	claims := NewClaimService(db, newMemoryDocumentStore(), notifier, access)
	claims.NowFn = func() time.Time { return testNow }

	decisions := NewDecisionService(db, access, notifier)
	decisions.NowFn = func() time.Time { return testNow }

	sweeper := NewSweeperService(db)

	guests := NewGuestClaimService(db, claims, notifier)
	guests.NowFn = func() time.Time { return testNow }

	return db, availability, claims, decisions, sweeper, guests, notifier
}

func countCapacityHolding(t *testing.T, db *gorm.DB, infraID uint, start, end time.Time) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&models.SlotRecord{}).
		Where("infrastructure_id = ? AND starts_at = ? AND ends_at = ? AND status IN ?",
			infraID, start, end, models.CapacityHoldingStatuses).
		Count(&count).Error)
	return count
}
