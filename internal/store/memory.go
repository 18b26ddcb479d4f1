package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"medadmin/internal/models"
)

// MemoryStore is an in-process partition used for offline runs ("memory://" endpoints) and
// tests. Keys are generated in creation order.
type MemoryStore struct {
	mu     sync.RWMutex
	users  map[string]models.User
	appts  map[string]models.Appointment
	nextID int
}

// NewMemoryStore creates an empty in-memory partition.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]models.User),
		appts: make(map[string]models.Appointment),
	}
}

// AddUser registers a user id in the partition.
func (m *MemoryStore) AddUser(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id] = models.User{ID: id}
}

// Put stores appt under id directly, bypassing key generation.
func (m *MemoryStore) Put(id string, appt models.Appointment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	appt.ID = ""
	m.appts[id] = appt
}

// Len returns the number of stored appointments.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.appts)
}

func (m *MemoryStore) Users(_ context.Context) (map[string]models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]models.User, len(m.users))
	for id, u := range m.users {
		out[id] = u
	}
	return out, nil
}

func (m *MemoryStore) Appointments(_ context.Context) ([]models.Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Appointment, 0, len(m.appts))
	for id, a := range m.appts {
		a.ID = id
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) CreateAppointment(_ context.Context, appt models.Appointment) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	id := fmt.Sprintf("-M%08d", m.nextID)
	appt.ID = ""
	m.appts[id] = appt
	return id, nil
}

func (m *MemoryStore) ReplaceAppointment(_ context.Context, id string, appt models.Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	appt.ID = ""
	m.appts[id] = appt
	return nil
}

func (m *MemoryStore) DeleteAppointment(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.appts, id)
	return nil
}
