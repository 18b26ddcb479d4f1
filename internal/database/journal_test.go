package database

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medadmin/internal/config"
	"medadmin/internal/events"
	"medadmin/internal/models"
)

func setupDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := NewDB(filepath.Join(t.TempDir(), "journal", "medadmin.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestJournal_RecordAndList(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 9, 10, 0, 0, 0, time.UTC)

	first := models.JournalEntry{Operation: models.OperationBook, UserID: "abc", AppointmentID: "-1", Date: "2025-03-10", Time: "09:00", Reason: "checkup", CreatedAt: base}
	second := models.JournalEntry{Operation: models.OperationChange, UserID: "abc", AppointmentID: "-1", Date: "2025-03-11", Time: "10:00", PreviousDate: "2025-03-10", PreviousTime: "09:00", CreatedAt: base.Add(time.Minute)}
	other := models.JournalEntry{Operation: models.OperationBook, UserID: "abd", Partition: 1, AppointmentID: "-2", Date: "2025-03-12", Time: "11:00", CreatedAt: base.Add(2 * time.Minute)}

	for _, e := range []*models.JournalEntry{&first, &second, &other} {
		require.NoError(t, db.Record(ctx, e))
		assert.NotEmpty(t, e.ID)
	}

	all, err := db.List(ctx, JournalFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, other.ID, all[0].ID, "newest first")
	assert.True(t, all[2].CreatedAt.Equal(base))

	byUser, err := db.List(ctx, JournalFilter{UserID: "abc"})
	require.NoError(t, err)
	require.Len(t, byUser, 2)
	assert.Equal(t, "09:00", byUser[0].PreviousTime)

	byDate, err := db.List(ctx, JournalFilter{Date: "2025-03-10"})
	require.NoError(t, err)
	assert.Len(t, byDate, 2, "matches both current and previous date")

	limited, err := db.List(ctx, JournalFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestJournal_Subscribe(t *testing.T) {
	db := setupDB(t)
	bus := events.NewEventBus()
	db.Subscribe(bus)

	prev := models.Appointment{Date: "2025-03-10", Time: "09:00"}
	require.NoError(t, bus.PublishJSON(events.AppointmentChanged, events.AppointmentChange{
		Operation:   models.OperationChange,
		Partition:   2,
		ID:          "-X",
		Appointment: models.Appointment{Date: "2025-03-11", Time: "10:00", Reason: "moved", UserID: "abe"},
		Previous:    &prev,
	}))

	entries, err := db.List(context.Background(), JournalFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, models.OperationChange, e.Operation)
	assert.Equal(t, "abe", e.UserID)
	assert.Equal(t, 2, e.Partition)
	assert.Equal(t, "-X", e.AppointmentID)
	assert.Equal(t, "2025-03-10", e.PreviousDate)
	assert.Equal(t, "moved", e.Reason)
}

func TestBackupService(t *testing.T) {
	db := setupDB(t)
	require.NoError(t, db.Record(context.Background(), &models.JournalEntry{Operation: models.OperationBook, UserID: "abc", AppointmentID: "-1", Date: "2025-03-10", Time: "09:00"}))

	logger := zerolog.New(io.Discard)
	dir := filepath.Join(t.TempDir(), "backups")
	svc := NewBackupService(db, config.BackupConfig{Enabled: true, Path: dir, RetentionDays: 7}, &logger)

	path, err := svc.PerformBackup(context.Background())
	require.NoError(t, err)
	require.FileExists(t, path)

	copyDB, err := NewDB(path, &logger)
	require.NoError(t, err)
	defer copyDB.Close()
	entries, err := copyDB.List(context.Background(), JournalFilter{})
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	stale := filepath.Join(dir, backupPrefix+"old.db")
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o600))
	old := time.Now().AddDate(0, 0, -30)
	require.NoError(t, os.Chtimes(stale, old, old))
	unrelated := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(unrelated, []byte("x"), 0o600))
	require.NoError(t, os.Chtimes(unrelated, old, old))

	assert.Equal(t, 1, svc.CleanupOldBackups(time.Now()))
	assert.NoFileExists(t, stale)
	assert.FileExists(t, unrelated)
	assert.FileExists(t, path)
}

func TestBackupService_StartPrunesOldBackups(t *testing.T) {
	db := setupDB(t)
	logger := zerolog.New(io.Discard)
	dir := filepath.Join(t.TempDir(), "backups")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	stale := filepath.Join(dir, backupPrefix+"old.db")
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o600))
	old := time.Now().AddDate(0, 0, -30)
	require.NoError(t, os.Chtimes(stale, old, old))

	svc := NewBackupService(db, config.BackupConfig{Enabled: true, IntervalHours: 24, Path: dir, RetentionDays: 7}, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		_, err := os.Stat(stale)
		return os.IsNotExist(err)
	}, 5*time.Second, 20*time.Millisecond, "startup must prune expired backups")

	cancel()
	<-done

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestBackupService_Disabled(t *testing.T) {
	db := setupDB(t)
	logger := zerolog.New(io.Discard)
	svc := NewBackupService(db, config.BackupConfig{Enabled: false, Path: t.TempDir()}, &logger)

	done := make(chan struct{})
	go func() {
		svc.Start(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled backup service must return immediately")
	}
}
