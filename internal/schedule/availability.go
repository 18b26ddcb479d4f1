// Package schedule computes slot availability across all partitions and validates bookings.
package schedule

import (
	"context"

	"github.com/rs/zerolog"

	"medadmin/internal/domain"
	"medadmin/internal/store"
)

// Exclusion names one stored appointment to ignore when computing taken slots.
type Exclusion struct {
	Partition int
	ID        string
}

// Calculator computes the free slots of a date by scanning every partition.
type Calculator struct {
	partitions *store.Set
	slots      []string
	logger     zerolog.Logger
}

// NewCalculator creates a calculator over the given daily slot set. A nil or empty slot list
// uses DefaultSlots.
func NewCalculator(partitions *store.Set, slots []string, logger *zerolog.Logger) *Calculator {
	if len(slots) == 0 {
		slots = DefaultSlots
	}
	return &Calculator{
		partitions: partitions,
		slots:      append([]string(nil), slots...),
		logger:     logger.With().Str("component", "availability").Logger(),
	}
}

// Slots returns the configured daily slot set.
func (c *Calculator) Slots() []string {
	return append([]string(nil), c.slots...)
}

// AvailableSlots returns the slots of date not claimed by any appointment in any partition.
//
// Partitions are scanned sequentially in index order. A partition that cannot be read is
// logged and skipped; the remaining result is returned together with a
// *domain.PartialScanError. An appointment on date that carries no time makes the whole slot
// set available.
func (c *Calculator) AvailableSlots(ctx context.Context, date string) ([]string, error) {
	return c.available(ctx, date, nil)
}

// AvailableSlotsExcluding is AvailableSlots with one stored appointment ignored.
func (c *Calculator) AvailableSlotsExcluding(ctx context.Context, date string, excl Exclusion) ([]string, error) {
	return c.available(ctx, date, &excl)
}

func (c *Calculator) available(ctx context.Context, date string, excl *Exclusion) ([]string, error) {
	taken := make(map[string]bool)
	failed := make(map[int]error)
	unrestricted := false

	c.partitions.Each(func(index int, st store.Store) bool {
		appts, err := st.Appointments(ctx)
		if err != nil {
			c.logger.Error().Err(err).Int("partition", index).Str("date", date).Msg("fetch appointments failed, skipping partition")
			failed[index] = err
			return true
		}

		for i := range appts {
			a := &appts[i]
			if a.Date == "" || a.Date != date {
				continue
			}
			if excl != nil && excl.Partition == index && excl.ID == a.ID {
				continue
			}
			if !a.HasTime() {
				c.logger.Warn().Int("partition", index).Str("id", a.ID).Str("date", date).Msg("appointment without time, all slots available")
				unrestricted = true
				return false
			}
			taken[a.Time] = true
		}
		return true
	})

	var scanErr error
	if len(failed) > 0 {
		scanErr = &domain.PartialScanError{Failed: failed}
	}

	if unrestricted {
		return c.Slots(), scanErr
	}

	free := make([]string, 0, len(c.slots))
	for _, s := range c.slots {
		if !taken[s] {
			free = append(free, s)
		}
	}
	return free, scanErr
}
