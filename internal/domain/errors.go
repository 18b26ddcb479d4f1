// Package domain holds the error taxonomy shared by the scheduling packages.
package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrFormat marks malformed date or time input.
	ErrFormat = errors.New("format error")
	// ErrNotFound marks an absent user or appointment.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks an unavailable slot or a temporal constraint violation.
	ErrConflict = errors.New("conflict")
	// ErrTransport marks a network failure or non-2xx response from a partition.
	ErrTransport = errors.New("transport error")
)

// Rejection reasons returned by the booking validator.
const (
	ReasonUnknownUser   = "unknown user"
	ReasonBadDateFormat = "bad date format"
	ReasonPastDate      = "past date"
	ReasonPastCutoff    = "past cutoff"
	ReasonBadTimeFormat = "bad time format"
	ReasonPastTime      = "past time"
	ReasonSlotTaken     = "slot taken"
	ReasonNoAppointment = "appointment not found"
	ReasonFullyBooked   = "no available times"
)

// Rejection is a validation failure with a human-readable reason.
type Rejection struct {
	Reason string
	Kind   error
}

// Reject builds a rejection of the given kind.
func Reject(kind error, reason string) *Rejection {
	return &Rejection{Reason: reason, Kind: kind}
}

func (r *Rejection) Error() string {
	return r.Reason
}

func (r *Rejection) Unwrap() error {
	return r.Kind
}

// PartialScanError reports partitions that failed during a scan of all partitions.
// The results that accompany it are still usable.
type PartialScanError struct {
	Failed map[int]error
}

func (e *PartialScanError) Error() string {
	idx := make([]int, 0, len(e.Failed))
	for i := range e.Failed {
		idx = append(idx, i)
	}
	sort.Ints(idx)

	parts := make([]string, 0, len(idx))
	for _, i := range idx {
		parts = append(parts, fmt.Sprintf("partition %d: %v", i, e.Failed[i]))
	}
	return "partial scan: " + strings.Join(parts, "; ")
}

func (e *PartialScanError) Unwrap() error {
	return ErrTransport
}

// AsRejection extracts a rejection from err.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}

// AsPartialScan extracts a partial scan error from err.
func AsPartialScan(err error) (*PartialScanError, bool) {
	var p *PartialScanError
	if errors.As(err, &p) {
		return p, true
	}
	return nil, false
}

// IsFormat reports whether err is a malformed date or time.
func IsFormat(err error) bool { return errors.Is(err, ErrFormat) }

// IsNotFound reports whether err is an absent user or appointment.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict reports whether err is a slot or temporal conflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsTransport reports whether err is a partition transport failure.
func IsTransport(err error) bool { return errors.Is(err, ErrTransport) }
