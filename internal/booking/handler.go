package booking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"medadmin/internal/domain"
	"medadmin/internal/models"
	"medadmin/internal/schedule"
	"medadmin/internal/service"
)

// Appointments performs the store side of each operation.
type Appointments interface {
	Now() time.Time
	Partition(userID string) int
	ListByUser(ctx context.Context, userID string) ([]models.Appointment, error)
	AvailableSlots(ctx context.Context, date string) ([]string, error)
	RescheduleSlots(ctx context.Context, userID string, current models.Appointment, date string) ([]string, error)
	Book(ctx context.Context, req service.BookingRequest) (models.Appointment, error)
	Change(ctx context.Context, userID string, current models.Appointment, req service.ChangeRequest) (models.Appointment, error)
	Cancel(ctx context.Context, userID string, appt models.Appointment) error
}

// Checker validates input as it is collected.
type Checker interface {
	CheckUser(ctx context.Context, userID string) error
	CheckDate(date string, now time.Time) error
	CheckTime(date, slot string, now time.Time) error
	ValidateBooking(ctx context.Context, userID, date, slot string, now time.Time) error
	ValidateReschedule(ctx context.Context, userID string, partition int, current models.Appointment, date, slot string, now time.Time) error
}

// StepPrompts holds the prompt shown for each collection step.
var StepPrompts = map[Step]string{
	StepUserID:     "Enter user ID:",
	StepDate:       "Enter date (YYYY-MM-DD):",
	StepTime:       "Enter time (HH:MM):",
	StepReason:     "Enter reason:",
	StepTargetDate: "Enter the date of the appointment (YYYY-MM-DD):",
	StepTargetTime: "Enter the time of the appointment (HH:MM):",
}

const (
	msgAborted      = "Operation aborted."
	msgNotConfirmed = "Not confirmed, nothing was changed."
	msgAnswerYesNo  = "Please answer yes or no."
	msgUnknownUser  = "Unknown user. Enter another user ID or q to abort:"
	msgEmptyUserID  = "User ID must not be empty."
	msgClosed       = "This operation is already finished."
)

// Handler processes operator input and manages transitions.
type Handler struct {
	fsm    *FSM
	svc    Appointments
	checks Checker
	logger zerolog.Logger
}

// NewHandler creates a new handler.
func NewHandler(svc Appointments, checks Checker, logger *zerolog.Logger) *Handler {
	return &Handler{
		fsm:    NewFSM(),
		svc:    svc,
		checks: checks,
		logger: logger.With().Str("component", "booking").Logger(),
	}
}

// Start returns the first prompt of session.
func (h *Handler) Start(session *Session) TransitionResult {
	session.mu.Lock()
	defer session.mu.Unlock()
	return h.stay(session, "")
}

// HandleInput processes one line of input based on the current state.
func (h *Handler) HandleInput(ctx context.Context, session *Session, input string) TransitionResult {
	session.mu.Lock()
	defer session.mu.Unlock()

	input = strings.TrimSpace(input)
	session.UpdatedAt = time.Now()

	if session.State.Terminal() {
		return TransitionResult{NewState: session.State, Step: session.Step, Message: msgClosed, Error: ErrSessionClosed}
	}

	if isAbort(input) {
		return h.abort(session, msgAborted, nil)
	}

	switch session.State {
	case StateCollecting:
		return h.collect(ctx, session, input)
	case StateConfirming:
		return h.handleConfirm(ctx, session, input)
	default:
		return TransitionResult{
			NewState: session.State,
			Step:     session.Step,
			Message:  "Unexpected state, start the operation again.",
			Error:    fmt.Errorf("unexpected state: %s", session.State),
		}
	}
}

func isAbort(input string) bool {
	switch strings.ToLower(input) {
	case "q", "quit", "/cancel":
		return true
	}
	return false
}

func (h *Handler) collect(ctx context.Context, s *Session, input string) TransitionResult {
	switch s.Step {
	case StepUserID:
		return h.handleUserID(ctx, s, input)
	case StepTargetDate:
		return h.handleTargetDate(s, input)
	case StepTargetTime:
		return h.handleTargetTime(s, input)
	case StepDate:
		return h.handleDate(ctx, s, input)
	case StepTime:
		return h.handleTime(s, input)
	case StepReason:
		s.Draft.Reason = input
		return h.validate(ctx, s)
	default:
		return h.abort(s, "Unexpected step, start the operation again.", fmt.Errorf("unexpected step: %s", s.Step))
	}
}

func (h *Handler) handleUserID(ctx context.Context, s *Session, input string) TransitionResult {
	if input == "" {
		return h.stay(s, msgEmptyUserID)
	}

	if s.Operation == OpBook {
		if err := h.checks.CheckUser(ctx, input); err != nil {
			return h.userError(s, err)
		}
		s.Draft.UserID = input
		return h.advance(s, StepDate, "")
	}

	appts, err := h.svc.ListByUser(ctx, input)
	if err != nil {
		return h.userError(s, err)
	}
	if len(appts) == 0 {
		return h.abort(s, fmt.Sprintf("User %s has no appointments.", input), nil)
	}
	s.Draft.UserID = input
	s.Draft.Existing = appts
	return h.advance(s, StepTargetDate, FormatAppointments(appts))
}

func (h *Handler) userError(s *Session, err error) TransitionResult {
	if domain.IsNotFound(err) {
		return TransitionResult{NewState: s.State, Step: s.Step, Message: msgUnknownUser}
	}
	return h.abort(s, "User lookup failed: "+err.Error(), err)
}

func (h *Handler) handleTargetDate(s *Session, input string) TransitionResult {
	if !schedule.ValidDate(input) {
		return h.retry(s, domain.Reject(domain.ErrFormat, domain.ReasonBadDateFormat))
	}
	s.Draft.TargetDate = input
	return h.advance(s, StepTargetTime, "")
}

func (h *Handler) handleTargetTime(s *Session, input string) TransitionResult {
	appt, err := service.FindByDateTime(s.Draft.Existing, s.Draft.TargetDate, input)
	if err != nil {
		if domain.IsNotFound(err) {
			return h.advance(s, StepTargetDate, capitalize(domain.ReasonNoAppointment)+".")
		}
		return h.retry(s, err)
	}
	s.Draft.Target = appt
	s.Draft.TargetTime = input

	if s.Operation == OpCancel {
		msg := fmt.Sprintf("Cancel appointment on %s at %s for %s? (yes/no)", appt.Date, appt.Time, s.Draft.UserID)
		return h.move(s, StateConfirming, StepNone, msg)
	}
	return h.advance(s, StepDate, fmt.Sprintf("Rescheduling %s %s.", appt.Date, appt.Time))
}

func (h *Handler) handleDate(ctx context.Context, s *Session, input string) TransitionResult {
	if err := h.checks.CheckDate(input, h.svc.Now()); err != nil {
		return h.retry(s, err)
	}

	var (
		slots []string
		err   error
	)
	if s.Operation == OpChange {
		slots, err = h.svc.RescheduleSlots(ctx, s.Draft.UserID, s.Draft.Target, input)
	} else {
		slots, err = h.svc.AvailableSlots(ctx, input)
	}
	if err != nil {
		if _, partial := domain.AsPartialScan(err); !partial {
			return h.retry(s, err)
		}
		h.logger.Warn().Err(err).Str("session", s.ID).Msg("showing availability from a partial scan")
	}
	if len(slots) == 0 {
		return h.retry(s, domain.Reject(domain.ErrConflict, domain.ReasonFullyBooked))
	}

	s.Draft.Date = input
	s.Draft.Available = slots
	return h.advance(s, StepTime, "Available times: "+strings.Join(slots, ", "))
}

func (h *Handler) handleTime(s *Session, input string) TransitionResult {
	if err := h.checks.CheckTime(s.Draft.Date, input, h.svc.Now()); err != nil {
		return h.retry(s, err)
	}
	s.Draft.Time = input
	return h.advance(s, StepReason, "")
}

func (h *Handler) validate(ctx context.Context, s *Session) TransitionResult {
	h.move(s, StateValidating, StepNone, "")

	now := h.svc.Now()
	var err error
	switch s.Operation {
	case OpBook:
		err = h.checks.ValidateBooking(ctx, s.Draft.UserID, s.Draft.Date, s.Draft.Time, now)
	case OpChange:
		partition := h.svc.Partition(s.Draft.UserID)
		err = h.checks.ValidateReschedule(ctx, s.Draft.UserID, partition, s.Draft.Target, s.Draft.Date, s.Draft.Time, now)
	}
	if err != nil {
		return h.reject(s, err)
	}

	return h.move(s, StateConfirming, StepNone, FormatConfirmation(s)+"\nConfirm? (yes/no)")
}

func (h *Handler) handleConfirm(ctx context.Context, s *Session, input string) TransitionResult {
	switch strings.ToLower(input) {
	case "yes", "y":
		return h.commit(ctx, s)
	case "no", "n":
		return h.abort(s, msgNotConfirmed, nil)
	default:
		return TransitionResult{NewState: s.State, Step: s.Step, Message: msgAnswerYesNo}
	}
}

func (h *Handler) commit(ctx context.Context, s *Session) TransitionResult {
	var (
		msg string
		err error
	)
	switch s.Operation {
	case OpBook:
		var appt models.Appointment
		appt, err = h.svc.Book(ctx, service.BookingRequest{
			UserID: s.Draft.UserID,
			Date:   s.Draft.Date,
			Time:   s.Draft.Time,
			Reason: s.Draft.Reason,
		})
		s.Draft.Result = appt
		msg = fmt.Sprintf("Appointment booked: %s.", FormatAppointment(appt))
	case OpChange:
		var appt models.Appointment
		appt, err = h.svc.Change(ctx, s.Draft.UserID, s.Draft.Target, service.ChangeRequest{
			Date:   s.Draft.Date,
			Time:   s.Draft.Time,
			Reason: s.Draft.Reason,
		})
		s.Draft.Result = appt
		msg = fmt.Sprintf("Appointment changed: %s.", FormatAppointment(appt))
	case OpCancel:
		err = h.svc.Cancel(ctx, s.Draft.UserID, s.Draft.Target)
		if err == nil {
			s.Draft.Result = s.Draft.Target
			s.Draft.Existing = removeByID(s.Draft.Existing, s.Draft.Target.ID)
		}
		msg = fmt.Sprintf("Appointment cancelled: %s.", FormatAppointment(s.Draft.Target))
	}

	if err != nil {
		if _, ok := domain.AsRejection(err); ok {
			return h.reject(s, err)
		}
		h.logger.Error().Err(err).Str("session", s.ID).Str("operation", string(s.Operation)).Msg("commit failed")
		return h.abort(s, "Operation failed: "+err.Error(), err)
	}

	h.logger.Info().Str("session", s.ID).Str("operation", string(s.Operation)).Str("user_id", s.Draft.UserID).Msg("operation committed")
	return h.move(s, StateCommitted, StepNone, msg)
}

// reject returns to the step the rejection reason belongs to, or aborts on a non-rejection.
func (h *Handler) reject(s *Session, err error) TransitionResult {
	r, ok := domain.AsRejection(err)
	if !ok {
		return h.abort(s, "Operation failed: "+err.Error(), err)
	}
	if r.Reason == domain.ReasonNoAppointment {
		return h.abort(s, capitalize(r.Reason)+".", err)
	}
	step := stepForReason(r.Reason)
	if step == StepUserID {
		return h.move(s, StateCollecting, StepUserID, msgUnknownUser)
	}
	return h.move(s, StateCollecting, step, capitalize(r.Reason)+". "+StepPrompts[step])
}

func stepForReason(reason string) Step {
	switch reason {
	case domain.ReasonUnknownUser:
		return StepUserID
	case domain.ReasonBadTimeFormat, domain.ReasonPastTime, domain.ReasonSlotTaken:
		return StepTime
	default:
		return StepDate
	}
}

// retry re-prompts the current step with the rejection reason. Other errors abort.
func (h *Handler) retry(s *Session, err error) TransitionResult {
	r, ok := domain.AsRejection(err)
	if !ok {
		return h.abort(s, "Operation failed: "+err.Error(), err)
	}
	return h.stay(s, capitalize(r.Reason)+".")
}

func (h *Handler) advance(s *Session, step Step, note string) TransitionResult {
	s.Step = step
	return h.stay(s, note)
}

func (h *Handler) stay(s *Session, note string) TransitionResult {
	msg := StepPrompts[s.Step]
	if note != "" {
		msg = note + "\n" + msg
	}
	return TransitionResult{NewState: s.State, Step: s.Step, Message: msg}
}

func (h *Handler) move(s *Session, to State, step Step, msg string) TransitionResult {
	if !h.fsm.CanTransition(s.State, to) {
		err := fmt.Errorf("transition %s -> %s not allowed", s.State, to)
		h.logger.Error().Err(err).Str("session", s.ID).Msg("invalid transition")
		return TransitionResult{NewState: s.State, Step: s.Step, Message: msg, Error: err}
	}
	s.State = to
	s.Step = step
	return TransitionResult{NewState: to, Step: step, Message: msg}
}

func (h *Handler) abort(s *Session, msg string, err error) TransitionResult {
	h.logger.Info().Str("session", s.ID).Str("operation", string(s.Operation)).Str("step", string(s.Step)).Msg("operation aborted")
	s.State = StateAborted
	s.Step = StepNone
	return TransitionResult{NewState: StateAborted, Step: StepNone, Message: msg, Error: err}
}

// FormatAppointment renders one appointment on a single line.
func FormatAppointment(a models.Appointment) string {
	t := a.Time
	if !a.HasTime() {
		t = "--:--"
	}
	s := fmt.Sprintf("%s %s user %s", a.Date, t, a.UserID)
	if a.Reason != "" {
		s += " (" + a.Reason + ")"
	}
	return s
}

// FormatAppointments renders a numbered list.
func FormatAppointments(appts []models.Appointment) string {
	var b strings.Builder
	b.WriteString("Appointments:")
	for i, a := range appts {
		fmt.Fprintf(&b, "\n%d. %s", i+1, FormatAppointment(a))
	}
	return b.String()
}

// FormatConfirmation summarizes the pending change of s.
func FormatConfirmation(s *Session) string {
	next := models.Appointment{Date: s.Draft.Date, Time: s.Draft.Time, Reason: s.Draft.Reason, UserID: s.Draft.UserID}
	if s.Operation == OpChange {
		return fmt.Sprintf("Change %s\n    to %s", FormatAppointment(s.Draft.Target), FormatAppointment(next))
	}
	return "Book " + FormatAppointment(next)
}

func removeByID(appts []models.Appointment, id string) []models.Appointment {
	out := appts[:0]
	for _, a := range appts {
		if a.ID != id {
			out = append(out, a)
		}
	}
	return out
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
