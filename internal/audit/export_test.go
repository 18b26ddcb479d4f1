package audit

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"medadmin/internal/database"
	"medadmin/internal/domain"
	"medadmin/internal/models"
)

type fakeDay struct {
	appts []models.StoredAppointment
	err   error
}

func (f *fakeDay) ScanDate(_ context.Context, date string) ([]models.StoredAppointment, error) {
	var out []models.StoredAppointment
	for _, a := range f.appts {
		if a.Date == date {
			out = append(out, a)
		}
	}
	return out, f.err
}

type fakeJournal struct {
	entries []models.JournalEntry
	filter  database.JournalFilter
}

func (f *fakeJournal) List(_ context.Context, filter database.JournalFilter) ([]models.JournalEntry, error) {
	f.filter = filter
	return f.entries, nil
}

func discard() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func readBack(t *testing.T, data []byte) *excelize.File {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestExportDay(t *testing.T) {
	day := &fakeDay{appts: []models.StoredAppointment{
		{Partition: 0, Appointment: models.Appointment{ID: "-1", Date: "2025-03-10", Time: "09:00", Reason: "checkup", UserID: "abc"}},
		{Partition: 1, Appointment: models.Appointment{ID: "-2", Date: "2025-03-10", Time: "10:00", Reason: "x-ray", UserID: "abd"}},
		{Partition: 2, Appointment: models.Appointment{ID: "-4", Date: "2025-03-10", Time: "11:00", UserID: "abc"}},
		{Partition: 1, Appointment: models.Appointment{ID: "-3", Date: "2025-03-11", Time: "10:00", UserID: "abd"}},
	}}
	journal := &fakeJournal{entries: []models.JournalEntry{
		{Operation: models.OperationBook, UserID: "abc", AppointmentID: "-1", Date: "2025-03-10", Time: "09:00", CreatedAt: time.Now()},
	}}

	var buf bytes.Buffer
	n, err := NewExporter(day, journal, discard()).ExportDay(context.Background(), "2025-03-10", &buf)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "2025-03-10", journal.filter.Date)

	f := readBack(t, buf.Bytes())
	assert.Equal(t, []string{SheetAppointments, SheetJournal}, f.GetSheetList())

	rows, err := f.GetRows(SheetAppointments)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, appointmentColumns, rows[0])
	assert.Equal(t, []string{"0", "-1", "2025-03-10", "09:00", "abc", "checkup"}, rows[1])
	assert.Equal(t, "1", rows[2][0])
	assert.Equal(t, []string{"2", "-4", "2025-03-10", "11:00", "abc"}, rows[3], "a record is reported under the partition it was read from")

	rows, err = f.GetRows(SheetJournal)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "book", rows[1][1])
}

func TestExportDay_WithoutJournal(t *testing.T) {
	var buf bytes.Buffer
	n, err := NewExporter(&fakeDay{}, nil, discard()).ExportDay(context.Background(), "2025-03-10", &buf)
	require.NoError(t, err)
	assert.Zero(t, n)

	f := readBack(t, buf.Bytes())
	assert.Equal(t, []string{SheetAppointments}, f.GetSheetList())
}

func TestExportDay_PartialScanStillWrites(t *testing.T) {
	day := &fakeDay{
		appts: []models.StoredAppointment{{Appointment: models.Appointment{ID: "-1", Date: "2025-03-10", Time: "09:00", UserID: "abc"}}},
		err:   &domain.PartialScanError{Failed: map[int]error{2: errors.New("down")}},
	}

	path, n, err := NewExporter(day, nil, discard()).ExportDayToFile(context.Background(), "2025-03-10", t.TempDir())
	require.Error(t, err)
	_, partial := domain.AsPartialScan(err)
	assert.True(t, partial)
	assert.Equal(t, 1, n)
	assert.Equal(t, "appointments_2025-03-10.xlsx", filepath.Base(path))
	assert.FileExists(t, path)
}

func TestExportDay_HardFailure(t *testing.T) {
	day := &fakeDay{err: domain.Reject(domain.ErrFormat, domain.ReasonBadDateFormat)}

	_, _, err := NewExporter(day, nil, discard()).ExportDayToFile(context.Background(), "bad", t.TempDir())
	assert.True(t, domain.IsFormat(err))
}

func TestExcelizeWriter_SheetNameLimit(t *testing.T) {
	w := NewExcelizeWriter()
	defer w.Close()

	assert.Error(t, w.WriteRow([]interface{}{"x"}), "no active sheet")
	require.NoError(t, w.AddSheet("a-very-long-sheet-name-that-exceeds-excel-limits"))
	require.NoError(t, w.WriteHeader([]string{"A", "B"}))
	require.NoError(t, w.WriteRow([]interface{}{1, "two"}))

	var buf bytes.Buffer
	require.NoError(t, w.Save(&buf))
	f := readBack(t, buf.Bytes())
	require.Len(t, f.GetSheetList()[0], 31)
}
