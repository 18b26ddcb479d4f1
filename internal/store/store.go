// Package store provides access to the partitioned document store.
//
// Each partition is an independent JSON document store exposing a users collection and an
// appointments collection. A Set binds partition indexes to Store handles; it is built from
// configuration and passed explicitly to every component that needs partition access.
package store

import (
	"context"
	"fmt"
	"sort"

	"medadmin/internal/models"
	"medadmin/internal/shard"
)

// Store is one partition of the document store.
type Store interface {
	// Users returns the partition's user collection keyed by user id. An empty collection
	// yields an empty map.
	Users(ctx context.Context) (map[string]models.User, error)

	// Appointments returns every appointment in the partition, ordered by id.
	Appointments(ctx context.Context) ([]models.Appointment, error)

	// CreateAppointment appends an appointment and returns the key assigned by the partition.
	CreateAppointment(ctx context.Context, appt models.Appointment) (string, error)

	// ReplaceAppointment overwrites the appointment stored under id.
	ReplaceAppointment(ctx context.Context, id string, appt models.Appointment) error

	// DeleteAppointment removes the appointment stored under id.
	DeleteAppointment(ctx context.Context, id string) error
}

// Set maps partition indexes 0..n-1 to stores.
type Set struct {
	stores []Store
	router shard.Router
}

// NewSet builds a set from an index -> store mapping. Indexes must be contiguous from zero.
func NewSet(stores map[int]Store) (*Set, error) {
	if len(stores) == 0 {
		return nil, fmt.Errorf("no partitions configured")
	}

	idx := make([]int, 0, len(stores))
	for i := range stores {
		idx = append(idx, i)
	}
	sort.Ints(idx)

	ordered := make([]Store, len(idx))
	for pos, i := range idx {
		if i != pos {
			return nil, fmt.Errorf("partition indexes must be contiguous from 0, missing %d", pos)
		}
		if stores[i] == nil {
			return nil, fmt.Errorf("partition %d has no store", i)
		}
		ordered[pos] = stores[i]
	}

	return &Set{stores: ordered, router: shard.NewRouter(len(ordered))}, nil
}

// Len returns the number of partitions.
func (s *Set) Len() int {
	return len(s.stores)
}

// Get returns the store for partition index i.
func (s *Set) Get(i int) (Store, error) {
	if i < 0 || i >= len(s.stores) {
		return nil, fmt.Errorf("partition %d out of range [0,%d)", i, len(s.stores))
	}
	return s.stores[i], nil
}

// Route returns the partition index owning userID.
func (s *Set) Route(userID string) int {
	return s.router.Route(userID)
}

// ForUser returns the partition index and store owning userID.
func (s *Set) ForUser(userID string) (int, Store) {
	i := s.router.Route(userID)
	return i, s.stores[i]
}

// Each calls fn for every partition in index order. Iteration stops early when fn returns
// false.
func (s *Set) Each(fn func(index int, st Store) bool) {
	for i, st := range s.stores {
		if !fn(i, st) {
			return
		}
	}
}
