// Package service implements appointment operations over the partitioned store.
//
// Every operation is a sequence of synchronous calls against the partitions; there is no
// transactional read-modify-write. Two operators booking the same slot concurrently can both
// pass the availability check before either write lands, producing a double booking.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"medadmin/internal/domain"
	"medadmin/internal/events"
	"medadmin/internal/metrics"
	"medadmin/internal/models"
	"medadmin/internal/schedule"
	"medadmin/internal/store"
)

// Publisher receives appointment lifecycle events.
type Publisher interface {
	PublishJSON(evType string, payload interface{}) error
}

// BookingRequest describes a new appointment.
type BookingRequest struct {
	UserID string
	Date   string
	Time   string
	Reason string
}

// ChangeRequest describes the new date, time and reason of an existing appointment.
type ChangeRequest struct {
	Date   string
	Time   string
	Reason string
}

// Service provides appointment CRUD operations.
type Service struct {
	partitions *store.Set
	calc       *schedule.Calculator
	validator  *schedule.Validator
	events     Publisher
	now        func() time.Time
	logger     zerolog.Logger
}

// NewService creates a new appointment service. publisher may be nil.
func NewService(
	partitions *store.Set,
	calc *schedule.Calculator,
	validator *schedule.Validator,
	publisher Publisher,
	logger *zerolog.Logger,
) *Service {
	return &Service{
		partitions: partitions,
		calc:       calc,
		validator:  validator,
		events:     publisher,
		now:        time.Now,
		logger:     logger.With().Str("component", "appointments").Logger(),
	}
}

// SetClock replaces the clock used for temporal validation.
func (s *Service) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Now returns the current time according to the service clock.
func (s *Service) Now() time.Time {
	return s.now()
}

// Validator returns the booking validator used by the service.
func (s *Service) Validator() *schedule.Validator {
	return s.validator
}

// Partition returns the partition index owning userID.
func (s *Service) Partition(userID string) int {
	return s.partitions.Route(userID)
}

// Book validates req and stores it in the user's partition.
func (s *Service) Book(ctx context.Context, req BookingRequest) (models.Appointment, error) {
	if err := s.validator.ValidateBooking(ctx, req.UserID, req.Date, req.Time, s.now()); err != nil {
		s.recordFailure(models.OperationBook, err)
		return models.Appointment{}, err
	}

	index, st := s.partitions.ForUser(req.UserID)
	appt := models.Appointment{
		Date:   req.Date,
		Time:   req.Time,
		Reason: req.Reason,
		UserID: req.UserID,
	}
	id, err := st.CreateAppointment(ctx, appt)
	if err != nil {
		s.recordFailure(models.OperationBook, err)
		s.logger.Error().Err(err).Int("partition", index).Str("user_id", req.UserID).Msg("create appointment failed")
		return models.Appointment{}, fmt.Errorf("create appointment: %w", err)
	}
	appt.ID = id

	metrics.IncAppointmentOp(models.OperationBook, "success")
	s.logger.Info().
		Int("partition", index).
		Str("id", id).
		Str("user_id", req.UserID).
		Str("date", req.Date).
		Str("time", req.Time).
		Msg("appointment booked")
	s.publish(events.AppointmentBooked, models.OperationBook, index, appt, nil)
	return appt, nil
}

// UserExists reports whether userID is present in any partition. Partitions that cannot be
// read are logged and skipped; when the user is not found and some partition failed, the
// failure is returned as a *domain.PartialScanError.
func (s *Service) UserExists(ctx context.Context, userID string) (bool, error) {
	found := false
	failed := make(map[int]error)

	s.partitions.Each(func(index int, st store.Store) bool {
		users, err := st.Users(ctx)
		if err != nil {
			s.logger.Error().Err(err).Int("partition", index).Msg("fetch users failed, skipping partition")
			failed[index] = err
			return true
		}
		if _, ok := users[userID]; ok {
			found = true
			return false
		}
		return true
	})

	if !found && len(failed) > 0 {
		return false, &domain.PartialScanError{Failed: failed}
	}
	return found, nil
}

// ListByUser returns the user's appointments ordered by date and time.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]models.Appointment, error) {
	exists, err := s.UserExists(ctx, userID)
	if !exists {
		if err != nil {
			return nil, err
		}
		return nil, domain.Reject(domain.ErrNotFound, domain.ReasonUnknownUser)
	}

	index, st := s.partitions.ForUser(userID)
	appts, err := st.Appointments(ctx)
	if err != nil {
		s.logger.Error().Err(err).Int("partition", index).Str("user_id", userID).Msg("fetch appointments failed")
		return nil, fmt.Errorf("list appointments: %w", err)
	}

	out := make([]models.Appointment, 0)
	for _, a := range appts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	models.SortByDateTime(out)
	return out, nil
}

// ListByDate returns every appointment on date across all partitions. Results are grouped by
// partition in index order and sorted by time within each partition. found is false when no
// appointment matches. Failed partitions are skipped and reported as a
// *domain.PartialScanError alongside the partial result.
func (s *Service) ListByDate(ctx context.Context, date string) ([]models.Appointment, bool, error) {
	stored, err := s.ScanDate(ctx, date)
	if stored == nil {
		return nil, false, err
	}
	out := make([]models.Appointment, 0, len(stored))
	for _, sa := range stored {
		out = append(out, sa.Appointment)
	}
	return out, len(out) > 0, err
}

// ScanDate is ListByDate keeping the partition each appointment was read from.
func (s *Service) ScanDate(ctx context.Context, date string) ([]models.StoredAppointment, error) {
	if !schedule.ValidDate(date) {
		return nil, domain.Reject(domain.ErrFormat, domain.ReasonBadDateFormat)
	}

	out := make([]models.StoredAppointment, 0)
	failed := make(map[int]error)

	s.partitions.Each(func(index int, st store.Store) bool {
		appts, err := st.Appointments(ctx)
		if err != nil {
			s.logger.Error().Err(err).Int("partition", index).Str("date", date).Msg("fetch appointments failed, skipping partition")
			failed[index] = err
			return true
		}
		models.SortByTime(appts)
		for _, a := range appts {
			if a.Date == date {
				out = append(out, models.StoredAppointment{Partition: index, Appointment: a})
			}
		}
		return true
	})

	if len(failed) > 0 {
		return out, &domain.PartialScanError{Failed: failed}
	}
	return out, nil
}

// AvailableSlots returns the free slots of date.
func (s *Service) AvailableSlots(ctx context.Context, date string) ([]string, error) {
	if !schedule.ValidDate(date) {
		return nil, domain.Reject(domain.ErrFormat, domain.ReasonBadDateFormat)
	}
	return s.calc.AvailableSlots(ctx, date)
}

// RescheduleSlots lists the free slots of date for moving current, which belongs to userID.
// current's own slot is offered only when the rules release it on change.
func (s *Service) RescheduleSlots(ctx context.Context, userID string, current models.Appointment, date string) ([]string, error) {
	if !schedule.ValidDate(date) {
		return nil, domain.Reject(domain.ErrFormat, domain.ReasonBadDateFormat)
	}
	if !s.validator.Rules().ReleaseOwnSlotOnChange {
		return s.calc.AvailableSlots(ctx, date)
	}
	excl := schedule.Exclusion{Partition: s.partitions.Route(userID), ID: current.ID}
	return s.calc.AvailableSlotsExcluding(ctx, date, excl)
}

// FindByDateTime locates the appointment at date and slot within appts.
func FindByDateTime(appts []models.Appointment, date, slot string) (models.Appointment, error) {
	if !schedule.ValidDate(date) {
		return models.Appointment{}, domain.Reject(domain.ErrFormat, domain.ReasonBadDateFormat)
	}
	if !schedule.ValidTime(slot) {
		return models.Appointment{}, domain.Reject(domain.ErrFormat, domain.ReasonBadTimeFormat)
	}
	for _, a := range appts {
		if a.Matches(date, slot) {
			return a, nil
		}
	}
	return models.Appointment{}, domain.Reject(domain.ErrNotFound, domain.ReasonNoAppointment)
}

// Change moves current to the date and time of req and replaces its reason. The record is
// overwritten only if it still exists in the user's partition.
func (s *Service) Change(ctx context.Context, userID string, current models.Appointment, req ChangeRequest) (models.Appointment, error) {
	index, st := s.partitions.ForUser(userID)

	if err := s.validator.ValidateReschedule(ctx, userID, index, current, req.Date, req.Time, s.now()); err != nil {
		s.recordFailure(models.OperationChange, err)
		return models.Appointment{}, err
	}

	appts, err := st.Appointments(ctx)
	if err != nil {
		s.recordFailure(models.OperationChange, err)
		return models.Appointment{}, fmt.Errorf("reload appointments: %w", err)
	}
	if !containsID(appts, current.ID) {
		s.logger.Warn().Int("partition", index).Str("id", current.ID).Msg("appointment removed before change")
		err := domain.Reject(domain.ErrNotFound, domain.ReasonNoAppointment)
		s.recordFailure(models.OperationChange, err)
		return models.Appointment{}, err
	}

	updated := models.Appointment{
		ID:     current.ID,
		Date:   req.Date,
		Time:   req.Time,
		Reason: req.Reason,
		UserID: userID,
	}
	if err := st.ReplaceAppointment(ctx, current.ID, updated); err != nil {
		s.recordFailure(models.OperationChange, err)
		s.logger.Error().Err(err).Int("partition", index).Str("id", current.ID).Msg("replace appointment failed")
		return models.Appointment{}, fmt.Errorf("replace appointment: %w", err)
	}

	metrics.IncAppointmentOp(models.OperationChange, "success")
	s.logger.Info().
		Int("partition", index).
		Str("id", current.ID).
		Str("from", current.Date+" "+current.Time).
		Str("to", req.Date+" "+req.Time).
		Msg("appointment changed")
	prev := current
	s.publish(events.AppointmentChanged, models.OperationChange, index, updated, &prev)
	return updated, nil
}

// Cancel deletes appt from the user's partition.
func (s *Service) Cancel(ctx context.Context, userID string, appt models.Appointment) error {
	index, st := s.partitions.ForUser(userID)
	if err := st.DeleteAppointment(ctx, appt.ID); err != nil {
		s.recordFailure(models.OperationCancel, err)
		s.logger.Error().Err(err).Int("partition", index).Str("id", appt.ID).Msg("delete appointment failed")
		return fmt.Errorf("delete appointment: %w", err)
	}

	metrics.IncAppointmentOp(models.OperationCancel, "success")
	s.logger.Info().Int("partition", index).Str("id", appt.ID).Str("user_id", userID).Msg("appointment cancelled")
	s.publish(events.AppointmentCancelled, models.OperationCancel, index, appt, nil)
	return nil
}

// CancelByDateTime cancels the user's appointment at date and slot. Nothing is written when
// no such appointment exists.
func (s *Service) CancelByDateTime(ctx context.Context, userID, date, slot string) (models.Appointment, error) {
	appts, err := s.ListByUser(ctx, userID)
	if err != nil {
		return models.Appointment{}, err
	}
	appt, err := FindByDateTime(appts, date, slot)
	if err != nil {
		s.recordFailure(models.OperationCancel, err)
		return models.Appointment{}, err
	}
	if err := s.Cancel(ctx, userID, appt); err != nil {
		return models.Appointment{}, err
	}
	return appt, nil
}

func (s *Service) publish(evType, operation string, partition int, appt models.Appointment, prev *models.Appointment) {
	if s.events == nil {
		return
	}
	payload := events.AppointmentChange{
		Operation:   operation,
		Partition:   partition,
		ID:          appt.ID,
		Appointment: appt,
		Previous:    prev,
	}
	if err := s.events.PublishJSON(evType, payload); err != nil {
		s.logger.Error().Err(err).Str("event", evType).Msg("publish event failed")
	}
}

func (s *Service) recordFailure(operation string, err error) {
	status := "failed"
	if _, ok := domain.AsRejection(err); ok {
		status = "rejected"
	}
	metrics.IncAppointmentOp(operation, status)
}

func containsID(appts []models.Appointment, id string) bool {
	for _, a := range appts {
		if a.ID == id {
			return true
		}
	}
	return false
}
