package schedule

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"medadmin/internal/domain"
	"medadmin/internal/metrics"
	"medadmin/internal/models"
	"medadmin/internal/store"
)

// Rules are the temporal booking constraints.
type Rules struct {
	// Cutoff is the HH:MM after which no booking for the same day is accepted.
	Cutoff string
	// ReleaseOwnSlotOnChange frees the slot of the appointment being rescheduled before the
	// new slot is checked. When false the old slot still counts as taken.
	ReleaseOwnSlotOnChange bool
}

// Validator enforces booking constraints before an appointment is written.
type Validator struct {
	partitions *store.Set
	calc       *Calculator
	rules      Rules
	cutoffMin  int
	logger     zerolog.Logger
}

// NewValidator creates a validator. An invalid or empty cutoff falls back to DefaultCutoff.
func NewValidator(partitions *store.Set, calc *Calculator, rules Rules, logger *zerolog.Logger) *Validator {
	cutoff, ok := minutesOf(rules.Cutoff)
	if !ok {
		rules.Cutoff = DefaultCutoff
		cutoff, _ = minutesOf(DefaultCutoff)
	}
	return &Validator{
		partitions: partitions,
		calc:       calc,
		rules:      rules,
		cutoffMin:  cutoff,
		logger:     logger.With().Str("component", "validator").Logger(),
	}
}

// Rules returns the effective rules.
func (v *Validator) Rules() Rules {
	return v.rules
}

// CheckUser verifies that userID exists in the partition it routes to.
// A store failure is returned unchanged; an absent user is a rejection.
func (v *Validator) CheckUser(ctx context.Context, userID string) error {
	index, st := v.partitions.ForUser(userID)
	users, err := st.Users(ctx)
	if err != nil {
		v.logger.Error().Err(err).Int("partition", index).Str("user_id", userID).Msg("user lookup failed")
		return err
	}
	if _, ok := users[userID]; !ok {
		return v.reject(domain.ErrNotFound, domain.ReasonUnknownUser)
	}
	return nil
}

// CheckDate verifies the date format, that the date is not in the past and, for today, that
// the cutoff has not passed.
func (v *Validator) CheckDate(date string, now time.Time) error {
	if !ValidDate(date) {
		return v.reject(domain.ErrFormat, domain.ReasonBadDateFormat)
	}
	today := now.Format(DateLayout)
	if date < today {
		return v.reject(domain.ErrConflict, domain.ReasonPastDate)
	}
	if date == today && now.Hour()*60+now.Minute() >= v.cutoffMin {
		return v.reject(domain.ErrConflict, domain.ReasonPastCutoff)
	}
	return nil
}

// CheckTime verifies the time format and, for today, that the slot is still ahead of now.
// date must already have passed CheckDate.
func (v *Validator) CheckTime(date, slot string, now time.Time) error {
	h, m, ok := splitTime(slot)
	if !ok {
		return v.reject(domain.ErrFormat, domain.ReasonBadTimeFormat)
	}
	if date == now.Format(DateLayout) {
		at := time.Date(now.Year(), now.Month(), now.Day(), h, m, 0, 0, now.Location())
		if !at.After(now) {
			return v.reject(domain.ErrConflict, domain.ReasonPastTime)
		}
	}
	return nil
}

// CheckSlot verifies that slot is among the free slots of date. A partially failed scan is
// logged and the partial result is used.
func (v *Validator) CheckSlot(ctx context.Context, date, slot string, excl *Exclusion) error {
	var (
		free []string
		err  error
	)
	if excl != nil {
		free, err = v.calc.AvailableSlotsExcluding(ctx, date, *excl)
	} else {
		free, err = v.calc.AvailableSlots(ctx, date)
	}
	if err != nil {
		if _, partial := domain.AsPartialScan(err); !partial {
			return err
		}
		v.logger.Warn().Err(err).Str("date", date).Msg("availability computed from a partial scan")
	}

	for _, s := range free {
		if s == slot {
			return nil
		}
	}
	return v.reject(domain.ErrConflict, domain.ReasonSlotTaken)
}

// ValidateBooking runs every booking check in order and returns nil when the booking may be
// committed, a *domain.Rejection when it may not, or a transport error.
func (v *Validator) ValidateBooking(ctx context.Context, userID, date, slot string, now time.Time) error {
	if err := v.CheckUser(ctx, userID); err != nil {
		return err
	}
	return v.validateSlot(ctx, date, slot, now, nil)
}

// ValidateReschedule validates moving current (stored in partition) to date and slot.
// Whether current's own slot is freed first is decided by Rules.ReleaseOwnSlotOnChange.
func (v *Validator) ValidateReschedule(ctx context.Context, userID string, partition int, current models.Appointment, date, slot string, now time.Time) error {
	if err := v.CheckUser(ctx, userID); err != nil {
		return err
	}
	var excl *Exclusion
	if v.rules.ReleaseOwnSlotOnChange {
		excl = &Exclusion{Partition: partition, ID: current.ID}
	}
	return v.validateSlot(ctx, date, slot, now, excl)
}

func (v *Validator) validateSlot(ctx context.Context, date, slot string, now time.Time, excl *Exclusion) error {
	if err := v.CheckDate(date, now); err != nil {
		return err
	}
	if err := v.CheckTime(date, slot, now); err != nil {
		return err
	}
	return v.CheckSlot(ctx, date, slot, excl)
}

func (v *Validator) reject(kind error, reason string) error {
	metrics.IncRejection(reason)
	return domain.Reject(kind, reason)
}
