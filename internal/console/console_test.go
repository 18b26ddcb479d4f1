package console

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medadmin/internal/booking"
	"medadmin/internal/models"
	"medadmin/internal/schedule"
	"medadmin/internal/service"
	"medadmin/internal/store"
)

type fakeExporter struct {
	date, dir string
}

func (f *fakeExporter) ExportDayToFile(_ context.Context, date, dir string) (string, int, error) {
	f.date, f.dir = date, dir
	return dir + "/appointments_" + date + ".xlsx", 2, nil
}

type downStore struct {
	*store.MemoryStore
}

func (downStore) Users(context.Context) (map[string]models.User, error) {
	return nil, errors.New("connection refused")
}

type env struct {
	parts [3]*store.MemoryStore
	svc   *service.Service
	h     *booking.Handler
}

// "abc" routes to partition 0, "abd" to 1.
func newEnv(t *testing.T) *env {
	t.Helper()
	return newEnvWithDown(t, -1)
}

// newEnvWithDown builds an env whose partition down fails user lookups.
func newEnvWithDown(t *testing.T, down int) *env {
	t.Helper()
	e := &env{}
	stores := map[int]store.Store{}
	for i := range e.parts {
		e.parts[i] = store.NewMemoryStore()
		stores[i] = e.parts[i]
		if i == down {
			stores[i] = downStore{e.parts[i]}
		}
	}
	e.parts[0].AddUser("abc")
	e.parts[1].AddUser("abd")

	set, err := store.NewSet(stores)
	require.NoError(t, err)

	logger := zerolog.New(io.Discard)
	calc := schedule.NewCalculator(set, nil, &logger)
	val := schedule.NewValidator(set, calc, schedule.Rules{}, &logger)
	e.svc = service.NewService(set, calc, val, nil, &logger)
	e.svc.SetClock(func() time.Time { return time.Date(2025, 3, 9, 10, 0, 0, 0, time.Local) })
	e.h = booking.NewHandler(e.svc, val, &logger)
	return e
}

func (e *env) run(t *testing.T, input string, opts ...Option) string {
	t.Helper()
	var out bytes.Buffer
	logger := zerolog.New(io.Discard)
	c := New(e.svc, e.h, strings.NewReader(input), &out, &logger, opts...)
	require.NoError(t, c.Run(context.Background()))
	return out.String()
}

func TestConsole_FindByUser(t *testing.T) {
	e := newEnv(t)
	e.parts[0].Put("-1", models.Appointment{Date: "2025-03-11", Time: "10:00", Reason: "x-ray", UserID: "abc"})
	e.parts[0].Put("-2", models.Appointment{Date: "2025-03-10", Time: "09:00", Reason: "checkup", UserID: "abc"})

	out := e.run(t, "1\nabc\n1\nabd\n1\nghost\n8\n")
	assert.Contains(t, out, "Appointments of abc\n1. 2025-03-10 09:00 user abc (checkup)\n2. 2025-03-11 10:00 user abc (x-ray)")
	assert.Contains(t, out, "No appointments for user abd.")
	assert.Contains(t, out, "Error: unknown user.")
	assert.Contains(t, out, "Bye.")
}

func TestConsole_FindByUser_UnknownWithPartitionDown(t *testing.T) {
	e := newEnvWithDown(t, 2)

	out := e.run(t, "1\nghost\n8\n")
	assert.Contains(t, out, "Warning: 1 partition(s) could not be read, results may be incomplete.")
	assert.Contains(t, out, "Error: unknown user.")
}

func TestConsole_FindByDatePaginates(t *testing.T) {
	e := newEnv(t)
	e.parts[0].Put("-1", models.Appointment{Date: "2025-03-10", Time: "09:00", UserID: "abc"})
	e.parts[0].Put("-2", models.Appointment{Date: "2025-03-10", Time: "10:00", UserID: "abc"})
	e.parts[1].Put("-3", models.Appointment{Date: "2025-03-10", Time: "11:00", UserID: "abd"})

	out := e.run(t, "2\n2025-03-10\n\n2\n2025-04-01\n2\n2025/03/10\n8\n", WithPageSize(2))
	assert.Contains(t, out, "Appointments on 2025-03-10 (page 1 of 2)\n1. 2025-03-10 09:00 user abc")
	assert.Contains(t, out, "(page 2 of 2)\n3. 2025-03-10 11:00 user abd")
	assert.Contains(t, out, "No appointments on 2025-04-01.")
	assert.Contains(t, out, "Error: bad date format.")
}

func TestConsole_BookThenShowAvailable(t *testing.T) {
	e := newEnv(t)

	out := e.run(t, "3\nabc\n2025-03-10\n09:00\ncheckup\nyes\n6\n2025-03-10\n8\n")
	assert.Contains(t, out, "Appointment booked: 2025-03-10 09:00 user abc (checkup).")
	assert.Contains(t, out, "Available times on 2025-03-10: 10:00, 11:00, 12:00, 13:00, 14:00, 15:00, 16:00")
	assert.Equal(t, 1, e.parts[0].Len())
}

func TestConsole_CancelAndChange(t *testing.T) {
	e := newEnv(t)
	e.parts[0].Put("-1", models.Appointment{Date: "2025-03-10", Time: "09:00", UserID: "abc"})
	e.parts[0].Put("-2", models.Appointment{Date: "2025-03-11", Time: "09:00", UserID: "abc"})

	out := e.run(t, "4\nabc\n2025-03-10\n09:00\nyes\n5\nabc\n2025-03-11\n09:00\n2025-03-12\n15:00\nmoved\nyes\n8\n")
	assert.Contains(t, out, "Appointment cancelled: 2025-03-10 09:00 user abc.")
	assert.Contains(t, out, "Appointment changed: 2025-03-12 15:00 user abc (moved).")

	appts, err := e.parts[0].Appointments(context.Background())
	require.NoError(t, err)
	require.Len(t, appts, 1)
	assert.Equal(t, "2025-03-12", appts[0].Date)
}

func TestConsole_EOFAbortsSession(t *testing.T) {
	e := newEnv(t)

	out := e.run(t, "3\nabc\n")
	assert.Contains(t, out, "Operation aborted.")
	assert.Zero(t, e.parts[0].Len())
}

func TestConsole_Export(t *testing.T) {
	e := newEnv(t)

	out := e.run(t, "7\n8\n")
	assert.Contains(t, out, "Export is not configured.")

	exp := &fakeExporter{}
	out = e.run(t, "7\n2025-03-10\n8\n", WithExporter(exp, "reports"))
	assert.Equal(t, "2025-03-10", exp.date)
	assert.Equal(t, "reports", exp.dir)
	assert.Contains(t, out, "Exported 2 appointment(s) to reports/appointments_2025-03-10.xlsx.")
}

func TestConsole_UnknownOptionAndCancelledContext(t *testing.T) {
	e := newEnv(t)

	out := e.run(t, "9\n8\n")
	assert.Contains(t, out, "Unknown option")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	logger := zerolog.New(io.Discard)
	c := New(e.svc, e.h, strings.NewReader("8\n"), io.Discard, &logger)
	assert.ErrorIs(t, c.Run(ctx), context.Canceled)
}
