package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"medadmin/internal/config"
)

const backupPrefix = "journal_"

// BackupService periodically snapshots the journal database.
type BackupService struct {
	db       *DB
	config   config.BackupConfig
	interval time.Duration
	logger   *zerolog.Logger
}

// NewBackupService creates a backup service for db. A non-positive interval defaults to 24 hours.
func NewBackupService(db *DB, cfg config.BackupConfig, logger *zerolog.Logger) *BackupService {
	interval := time.Duration(cfg.IntervalHours) * time.Hour
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &BackupService{
		db:       db,
		config:   cfg,
		interval: interval,
		logger:   logger,
	}
}

// Start runs a backup immediately and then on every interval until ctx is done.
func (s *BackupService) Start(ctx context.Context) {
	if !s.config.Enabled {
		s.logger.Info().Msg("backup service is disabled")
		return
	}

	s.logger.Info().Dur("interval", s.interval).Str("path", s.config.Path).Msg("backup service started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runOnce(ctx, "initial backup failed")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, "scheduled backup failed")
		}
	}
}

func (s *BackupService) runOnce(ctx context.Context, failMsg string) {
	if _, err := s.PerformBackup(ctx); err != nil {
		s.logger.Error().Err(err).Msg(failMsg)
	}
	s.CleanupOldBackups(time.Now())
}

// PerformBackup writes a consistent snapshot of the journal and returns its path.
func (s *BackupService) PerformBackup(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.config.Path, 0o755); err != nil {
		return "", fmt.Errorf("create backup directory: %w", err)
	}

	name := fmt.Sprintf("%s%s.db", backupPrefix, time.Now().Format("20060102_150405.000"))
	backupPath := filepath.Join(s.config.Path, name)

	s.logger.Info().Str("path", backupPath).Msg("performing journal backup")

	// VACUUM INTO produces a consistent copy while WAL pages are still pending.
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", backupPath); err != nil {
		return "", fmt.Errorf("vacuum into %s: %w", backupPath, err)
	}

	s.logger.Info().Msg("backup completed successfully")
	return backupPath, nil
}

// CleanupOldBackups removes backups older than the retention period relative to now.
func (s *BackupService) CleanupOldBackups(now time.Time) int {
	if s.config.RetentionDays <= 0 {
		return 0
	}

	files, err := os.ReadDir(s.config.Path)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to read backup directory for cleanup")
		return 0
	}

	cutoff := now.AddDate(0, 0, -s.config.RetentionDays)
	removed := 0
	for _, file := range files {
		if file.IsDir() || !strings.HasPrefix(file.Name(), backupPrefix) {
			continue
		}

		info, err := file.Info()
		if err != nil {
			continue
		}

		if info.ModTime().Before(cutoff) {
			s.logger.Info().Str("file", file.Name()).Msg("deleting old backup")
			if err := os.Remove(filepath.Join(s.config.Path, file.Name())); err != nil {
				s.logger.Error().Err(err).Str("file", file.Name()).Msg("failed to delete old backup")
				continue
			}
			removed++
		}
	}
	return removed
}
