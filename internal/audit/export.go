// Package audit exports appointments and the operation journal to xlsx workbooks.
package audit

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"medadmin/internal/database"
	"medadmin/internal/domain"
	"medadmin/internal/models"
)

// Sheet names of a day report.
const (
	SheetAppointments = "Appointments"
	SheetJournal      = "Journal"
)

var (
	appointmentColumns = []string{"Partition", "ID", "Date", "Time", "User", "Reason"}
	journalColumns     = []string{"Recorded at", "Operation", "Partition", "Appointment", "User", "Date", "Time", "Previous date", "Previous time", "Reason"}
)

// AppointmentSource lists the appointments of a day.
type AppointmentSource interface {
	ScanDate(ctx context.Context, date string) ([]models.StoredAppointment, error)
}

// JournalSource lists journal entries.
type JournalSource interface {
	List(ctx context.Context, filter database.JournalFilter) ([]models.JournalEntry, error)
}

// Exporter builds day reports.
type Exporter struct {
	appointments AppointmentSource
	journal      JournalSource
	writer       func() ExcelWriter
	logger       zerolog.Logger
}

// NewExporter creates an exporter. journal may be nil, in which case the journal sheet is
// omitted.
func NewExporter(appointments AppointmentSource, journal JournalSource, logger *zerolog.Logger) *Exporter {
	return &Exporter{
		appointments: appointments,
		journal:      journal,
		writer:       NewExcelizeWriter,
		logger:       logger.With().Str("component", "audit").Logger(),
	}
}

// GenerateFilename returns the report file name for date.
func GenerateFilename(date string) string {
	return fmt.Sprintf("appointments_%s.xlsx", date)
}

// ExportDay writes the report of date to w. When some partitions could not be read the
// report is still written and the *domain.PartialScanError is returned.
func (e *Exporter) ExportDay(ctx context.Context, date string, w io.Writer) (int, error) {
	appts, err := e.appointments.ScanDate(ctx, date)
	var scanErr error
	if err != nil {
		if _, partial := domain.AsPartialScan(err); !partial {
			return 0, err
		}
		e.logger.Warn().Err(err).Str("date", date).Msg("exporting partial day")
		scanErr = err
	}

	excel := e.writer()
	defer excel.Close()

	if err := excel.AddSheet(SheetAppointments); err != nil {
		return 0, err
	}
	if err := excel.WriteHeader(appointmentColumns); err != nil {
		return 0, err
	}
	for _, a := range appts {
		row := []interface{}{a.Partition, a.ID, a.Date, a.Time, a.UserID, a.Reason}
		if err := excel.WriteRow(row); err != nil {
			return 0, err
		}
	}

	if e.journal != nil {
		if err := e.writeJournal(ctx, excel, date); err != nil {
			return 0, err
		}
	}

	if err := excel.Save(w); err != nil {
		return 0, fmt.Errorf("save excel: %w", err)
	}

	e.logger.Info().Str("date", date).Int("rows", len(appts)).Msg("day exported")
	return len(appts), scanErr
}

// ExportDayToFile writes the report of date into dir and returns the file path.
func (e *Exporter) ExportDayToFile(ctx context.Context, date, dir string) (string, int, error) {
	var buf bytes.Buffer
	n, err := e.ExportDay(ctx, date, &buf)
	if err != nil {
		if _, partial := domain.AsPartialScan(err); !partial {
			return "", 0, err
		}
	}

	if dir == "" {
		dir = "."
	}
	if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
		return "", 0, fmt.Errorf("create export directory: %w", mkErr)
	}
	path := filepath.Join(dir, GenerateFilename(date))
	if wErr := os.WriteFile(path, buf.Bytes(), 0o644); wErr != nil {
		return "", 0, fmt.Errorf("write %s: %w", path, wErr)
	}
	return path, n, err
}

func (e *Exporter) writeJournal(ctx context.Context, excel ExcelWriter, date string) error {
	entries, err := e.journal.List(ctx, database.JournalFilter{Date: date})
	if err != nil {
		return fmt.Errorf("list journal: %w", err)
	}

	if err := excel.AddSheet(SheetJournal); err != nil {
		return err
	}
	if err := excel.WriteHeader(journalColumns); err != nil {
		return err
	}
	for _, j := range entries {
		row := []interface{}{
			j.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			j.Operation, j.Partition, j.AppointmentID, j.UserID,
			j.Date, j.Time, j.PreviousDate, j.PreviousTime, j.Reason,
		}
		if err := excel.WriteRow(row); err != nil {
			return err
		}
	}
	return nil
}
