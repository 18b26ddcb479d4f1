package models

import (
	"sort"
	"time"
)

// Appointment is a booked slot as stored in a partition's appointments collection.
// ID is the key the partition assigned on creation and is not part of the stored document.
type Appointment struct {
	ID     string `json:"-"`
	Date   string `json:"date"` // YYYY-MM-DD
	Time   string `json:"time"` // HH:MM, empty when the record carries no time
	Reason string `json:"reason"`
	UserID string `json:"userId"`
}

// StoredAppointment is an appointment together with the index of the partition it was read from.
type StoredAppointment struct {
	Partition int
	Appointment
}

// HasTime reports whether the record carries a time slot.
func (a *Appointment) HasTime() bool {
	return a.Time != ""
}

// Matches reports whether the appointment occupies the given date and time.
func (a *Appointment) Matches(date, slot string) bool {
	return a.Date == date && a.Time == slot
}

// SortByDateTime orders appointments by (date, time) ascending.
func SortByDateTime(appts []Appointment) {
	sort.SliceStable(appts, func(i, j int) bool {
		if appts[i].Date != appts[j].Date {
			return appts[i].Date < appts[j].Date
		}
		return appts[i].Time < appts[j].Time
	})
}

// SortByTime orders appointments by time only.
func SortByTime(appts []Appointment) {
	sort.SliceStable(appts, func(i, j int) bool {
		return appts[i].Time < appts[j].Time
	})
}

// User is a read-only user record owned by the user-management module.
type User struct {
	ID      string
	Profile map[string]interface{}
}

// Operation names recorded in the journal and published as events.
const (
	OperationBook   = "book"
	OperationChange = "change"
	OperationCancel = "cancel"
)

// JournalEntry is a locally persisted record of a committed operation.
type JournalEntry struct {
	ID            string    `json:"id"`
	Operation     string    `json:"operation"`
	UserID        string    `json:"user_id"`
	Partition     int       `json:"partition"`
	AppointmentID string    `json:"appointment_id"`
	Date          string    `json:"date"`
	Time          string    `json:"time"`
	PreviousDate  string    `json:"previous_date,omitempty"`
	PreviousTime  string    `json:"previous_time,omitempty"`
	Reason        string    `json:"reason"`
	CreatedAt     time.Time `json:"created_at"`
}
