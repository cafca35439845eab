package members

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type steppingClock struct {
	mu      sync.Mutex
	current time.Time
	step    time.Duration
}

func newSteppingClock(start time.Time, step time.Duration) *steppingClock {
	return &steppingClock{current: start, step: step}
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	value := c.current
	c.current = c.current.Add(c.step)
	return value
}

// mustDatabase opens a file-backed SQLite database the way the production
// opener does: one connection with foreign keys enforced.
func mustDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	database, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "members.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	sqlDB, err := database.DB()
	if err != nil {
		t.Fatalf("failed to access connection pool: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := database.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}
	if err := database.AutoMigrate(Models()...); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	return database
}

func mustService(t *testing.T, database *gorm.DB, clock *steppingClock) *Service {
	t.Helper()
	if clock == nil {
		clock = newSteppingClock(time.Unix(1700000000, 0).UTC(), time.Second)
	}
	service, err := NewService(ServiceConfig{
		Database:   database,
		Clock:      clock.Now,
		IDProvider: NewUUIDProvider(),
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service
}

func mustRecord(t *testing.T, content string) Record {
	t.Helper()
	record, err := DecodeRecord([]byte(content))
	if err != nil {
		t.Fatalf("failed to decode record: %v", err)
	}
	return record
}
