package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"taskhub/backend/internal/database"
	"taskhub/backend/internal/models"
	"taskhub/backend/internal/notify"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestDB opens a private in-memory sqlite database. A single connection
// keeps every statement on the same shared-cache database.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	pool, err := database.NewDatabasePool(&database.PoolConfig{
		Driver:       database.DriverSQLite,
		DSN:          fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.Must(uuid.NewV4())),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		LogLevel:     logger.Silent,
	})
	require.NoError(t, err)
	require.NoError(t, pool.Migrate())
	t.Cleanup(func() { pool.Close() })
	return pool.DB
}

func createUser(t *testing.T, db *gorm.DB, name, role string) *models.User {
	t.Helper()
	user := &models.User{
		Name:     name,
		Email:    fmt.Sprintf("%s-%s@example.com", name, uuid.Must(uuid.NewV4()).String()[:8]),
		Password: "unused",
		Role:     role,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func createTask(t *testing.T, db *gorm.DB, owner *models.User, title string, groupID *uuid.UUID, createdAt time.Time) *models.Task {
	t.Helper()
	task := &models.Task{Title: title, UserID: owner.ID, GroupID: groupID, CreatedAt: createdAt}
	require.NoError(t, db.Create(task).Error)
	return task
}

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }

type fakeStore struct {
	mu      sync.Mutex
	stored  []string
	counter int
	onStore func()
	err     error
}

func (f *fakeStore) Store(ctx context.Context, r io.Reader, filename, contentType string, size int64) (*models.Attachment, error) {
	if f.err != nil {
		return nil, f.err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.counter++
	url := fmt.Sprintf("/uploads/%d-%s", f.counter, filename)
	f.stored = append(f.stored, url)
	f.mu.Unlock()

	if f.onStore != nil {
		f.onStore()
	}
	return &models.Attachment{URL: url, OriginalFilename: filename, MimeType: contentType}, nil
}

type fakeReleaser struct {
	mu       sync.Mutex
	released []string
}

func (f *fakeReleaser) ReleaseAttachment(ctx context.Context, url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, url)
}

func (f *fakeReleaser) urls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.released...)
}

type published struct {
	channel string
	event   notify.Event
}

type fakePublisher struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, event notify.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, published{channel: channel, event: event})
	return nil
}

func (f *fakePublisher) all() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.events...)
}
