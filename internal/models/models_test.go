package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppointment_Helpers(t *testing.T) {
	a := Appointment{Date: "2025-03-10", Time: "09:00", UserID: "abc"}

	t.Run("HasTime", func(t *testing.T) {
		assert.True(t, a.HasTime())
		assert.False(t, (&Appointment{Date: "2025-03-10"}).HasTime())
	})

	t.Run("Matches", func(t *testing.T) {
		assert.True(t, a.Matches("2025-03-10", "09:00"))
		assert.False(t, a.Matches("2025-03-10", "10:00"))
		assert.False(t, a.Matches("2025-03-11", "09:00"))
	})
}

func TestSortByDateTime(t *testing.T) {
	appts := []Appointment{
		{ID: "c", Date: "2025-03-11", Time: "09:00"},
		{ID: "b", Date: "2025-03-10", Time: "15:00"},
		{ID: "a", Date: "2025-03-10", Time: "09:00"},
	}

	SortByDateTime(appts)

	ids := []string{appts[0].ID, appts[1].ID, appts[2].ID}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestSortByTime(t *testing.T) {
	appts := []Appointment{
		{ID: "late", Date: "2025-03-09", Time: "14:00"},
		{ID: "early", Date: "2025-03-12", Time: "10:00"},
	}

	SortByTime(appts)

	assert.Equal(t, "early", appts[0].ID)
	assert.Equal(t, "late", appts[1].ID)
}
