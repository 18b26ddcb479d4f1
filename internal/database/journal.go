// Package database persists the local operation journal in SQLite.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"

	"medadmin/internal/events"
	"medadmin/internal/models"
)

// DB wraps the journal database.
type DB struct {
	*sql.DB
	path   string
	logger *zerolog.Logger
}

// JournalFilter narrows List results. Zero fields match everything.
type JournalFilter struct {
	UserID string
	Date   string
	Limit  int
}

// NewDB opens the journal at path and creates its tables.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect journal: %w", err)
	}

	instance := &DB{DB: db, path: path, logger: logger}
	if err := instance.createTables(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info().Str("path", path).Msg("journal initialized")
	return instance, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS journal (
			id TEXT PRIMARY KEY,
			operation TEXT NOT NULL,
			user_id TEXT NOT NULL,
			partition INTEGER NOT NULL,
			appointment_id TEXT NOT NULL,
			date TEXT NOT NULL,
			time TEXT NOT NULL,
			previous_date TEXT NOT NULL DEFAULT '',
			previous_time TEXT NOT NULL DEFAULT '',
			reason TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_journal_user ON journal(user_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_journal_date ON journal(date)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}

// Record inserts entry, assigning an id and timestamp when missing.
func (db *DB) Record(ctx context.Context, entry *models.JournalEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO journal (id, operation, user_id, partition, appointment_id, date, time,
			previous_date, previous_time, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Operation, entry.UserID, entry.Partition, entry.AppointmentID,
		entry.Date, entry.Time, entry.PreviousDate, entry.PreviousTime, entry.Reason,
		entry.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}

// List returns journal entries, newest first.
func (db *DB) List(ctx context.Context, filter JournalFilter) ([]models.JournalEntry, error) {
	query := `SELECT id, operation, user_id, partition, appointment_id, date, time,
		previous_date, previous_time, reason, created_at FROM journal`

	var (
		where []string
		args  []interface{}
	)
	if filter.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.Date != "" {
		where = append(where, "(date = ? OR previous_date = ?)")
		args = append(args, filter.Date, filter.Date)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var out []models.JournalEntry
	for rows.Next() {
		var e models.JournalEntry
		if err := rows.Scan(&e.ID, &e.Operation, &e.UserID, &e.Partition, &e.AppointmentID,
			&e.Date, &e.Time, &e.PreviousDate, &e.PreviousTime, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Subscribe records every appointment lifecycle event published on bus.
func (db *DB) Subscribe(bus *events.EventBus) {
	handler := func(ev events.Event) error {
		var change events.AppointmentChange
		if err := ev.Decode(&change); err != nil {
			return fmt.Errorf("decode %s: %w", ev.Type, err)
		}
		entry := EntryFromChange(change, ev.CreatedAt)
		if err := db.Record(context.Background(), &entry); err != nil {
			return err
		}
		db.logger.Debug().Str("event", ev.Type).Str("appointment_id", entry.AppointmentID).Msg("journal entry recorded")
		return nil
	}
	for _, t := range []string{events.AppointmentBooked, events.AppointmentChanged, events.AppointmentCancelled} {
		bus.Subscribe(t, handler)
	}
}

// EntryFromChange converts a lifecycle event payload into a journal entry.
func EntryFromChange(change events.AppointmentChange, at time.Time) models.JournalEntry {
	entry := models.JournalEntry{
		Operation:     change.Operation,
		UserID:        change.Appointment.UserID,
		Partition:     change.Partition,
		AppointmentID: change.ID,
		Date:          change.Appointment.Date,
		Time:          change.Appointment.Time,
		Reason:        change.Appointment.Reason,
		CreatedAt:     at,
	}
	if change.Previous != nil {
		entry.PreviousDate = change.Previous.Date
		entry.PreviousTime = change.Previous.Time
	}
	return entry
}
