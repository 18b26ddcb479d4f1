// Package console implements the operator menu.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"medadmin/internal/booking"
	"medadmin/internal/domain"
	"medadmin/internal/models"
)

// Operations are the read-only queries the menu runs directly.
type Operations interface {
	ListByUser(ctx context.Context, userID string) ([]models.Appointment, error)
	ListByDate(ctx context.Context, date string) ([]models.Appointment, bool, error)
	AvailableSlots(ctx context.Context, date string) ([]string, error)
}

// Exporter writes a day report to a directory.
type Exporter interface {
	ExportDayToFile(ctx context.Context, date, dir string) (string, int, error)
}

const menu = `
1. Find appointments by user
2. Find appointments by date
3. Make an appointment
4. Cancel an appointment
5. Change an appointment
6. Show available times
7. Export a day to xlsx
8. Exit
Choose an option: `

// Console reads operator input line by line and writes results as plain text.
type Console struct {
	ops       Operations
	handler   *booking.Handler
	sessions  *booking.SessionStore
	exporter  Exporter
	exportDir string
	pageSize  int

	in     *bufio.Scanner
	out    io.Writer
	logger zerolog.Logger
}

// Option configures a Console.
type Option func(*Console)

// WithExporter enables menu option 7.
func WithExporter(exp Exporter, dir string) Option {
	return func(c *Console) {
		c.exporter = exp
		c.exportDir = dir
	}
}

// WithSessionStore shares a session store with the caller.
func WithSessionStore(ss *booking.SessionStore) Option {
	return func(c *Console) {
		if ss != nil {
			c.sessions = ss
		}
	}
}

// WithPageSize sets the number of list entries shown per page. Zero disables paging.
func WithPageSize(n int) Option {
	return func(c *Console) {
		c.pageSize = n
	}
}

// New creates a console reading operator input from in and writing to out.
func New(ops Operations, handler *booking.Handler, in io.Reader, out io.Writer, logger *zerolog.Logger, opts ...Option) *Console {
	c := &Console{
		ops:      ops,
		handler:  handler,
		sessions: booking.NewSessionStore(0),
		pageSize: 10,
		in:       bufio.NewScanner(in),
		out:      out,
		logger:   logger.With().Str("component", "console").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run shows the menu until the operator exits, input ends or ctx is cancelled.
func (c *Console) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		c.print(menu)
		choice, ok := c.readLine()
		if !ok {
			c.println("")
			return c.in.Err()
		}

		switch choice {
		case "1":
			c.findByUser(ctx)
		case "2":
			c.findByDate(ctx)
		case "3":
			c.runSession(ctx, booking.OpBook)
		case "4":
			c.runSession(ctx, booking.OpCancel)
		case "5":
			c.runSession(ctx, booking.OpChange)
		case "6":
			c.showAvailable(ctx)
		case "7":
			c.exportDay(ctx)
		case "8":
			c.println("Bye.")
			return nil
		default:
			c.println("Unknown option, choose 1-8.")
		}
	}
}

func (c *Console) findByUser(ctx context.Context) {
	userID, ok := c.ask("Enter user ID: ")
	if !ok {
		return
	}
	appts, err := c.ops.ListByUser(ctx, userID)
	if err != nil {
		c.report(err)
		// The user was not found in any partition that could be read.
		if _, partial := domain.AsPartialScan(err); partial {
			c.report(domain.Reject(domain.ErrNotFound, domain.ReasonUnknownUser))
		}
		return
	}
	if len(appts) == 0 {
		c.println("No appointments for user " + userID + ".")
		return
	}
	c.paginate(PaginationParams{
		Title:    "Appointments of " + userID,
		Lines:    formatLines(appts),
		PageSize: c.pageSize,
	})
}

func (c *Console) findByDate(ctx context.Context) {
	date, ok := c.ask("Enter date (YYYY-MM-DD): ")
	if !ok {
		return
	}
	appts, found, err := c.ops.ListByDate(ctx, date)
	if err != nil {
		c.report(err)
		if _, partial := domain.AsPartialScan(err); !partial {
			return
		}
	}
	if !found {
		c.println("No appointments on " + date + ".")
		return
	}
	c.paginate(PaginationParams{
		Title:    "Appointments on " + date,
		Lines:    formatLines(appts),
		PageSize: c.pageSize,
	})
}

func (c *Console) showAvailable(ctx context.Context) {
	date, ok := c.ask("Enter date (YYYY-MM-DD): ")
	if !ok {
		return
	}
	slots, err := c.ops.AvailableSlots(ctx, date)
	if err != nil {
		c.report(err)
		if _, partial := domain.AsPartialScan(err); !partial {
			return
		}
	}
	if len(slots) == 0 {
		c.println("No available times on " + date + ".")
		return
	}
	c.println("Available times on " + date + ": " + strings.Join(slots, ", "))
}

func (c *Console) exportDay(ctx context.Context) {
	if c.exporter == nil {
		c.println("Export is not configured.")
		return
	}
	date, ok := c.ask("Enter date (YYYY-MM-DD): ")
	if !ok {
		return
	}
	path, n, err := c.exporter.ExportDayToFile(ctx, date, c.exportDir)
	if err != nil {
		c.report(err)
		if path == "" {
			return
		}
	}
	c.println(fmt.Sprintf("Exported %d appointment(s) to %s.", n, path))
}

func (c *Console) runSession(ctx context.Context, op booking.Operation) {
	session := c.sessions.Create(op)
	defer c.sessions.Delete(session.ID)

	res := c.handler.Start(session)
	c.println(res.Message)

	for !session.Done() {
		line, ok := c.readLine()
		if !ok || ctx.Err() != nil {
			line = "q"
		}
		res = c.handler.HandleInput(ctx, session, line)
		c.println(res.Message)
		if res.Error != nil && res.NewState == booking.StateAborted {
			c.logger.Warn().Err(res.Error).Str("session", session.ID).Str("operation", string(op)).Msg("operation aborted")
		}
	}
}

// report prints err for the operator. Partial scans are warnings.
func (c *Console) report(err error) {
	if r, ok := domain.AsRejection(err); ok {
		c.println("Error: " + r.Reason + ".")
		return
	}
	if p, ok := domain.AsPartialScan(err); ok {
		c.logger.Warn().Err(p).Msg("partial result")
		c.println(fmt.Sprintf("Warning: %d partition(s) could not be read, results may be incomplete.", len(p.Failed)))
		return
	}
	c.logger.Error().Err(err).Msg("operation failed")
	c.println("Error: " + err.Error())
}

func (c *Console) ask(prompt string) (string, bool) {
	c.print(prompt)
	return c.readLine()
}

func (c *Console) readLine() (string, bool) {
	if !c.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(c.in.Text()), true
}

func (c *Console) print(s string) {
	fmt.Fprint(c.out, s)
}

func (c *Console) println(s string) {
	fmt.Fprintln(c.out, s)
}

func formatLines(appts []models.Appointment) []string {
	lines := make([]string, len(appts))
	for i, a := range appts {
		lines[i] = booking.FormatAppointment(a)
	}
	return lines
}
