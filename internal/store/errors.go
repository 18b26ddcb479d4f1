package store

import (
	"fmt"

	"medadmin/internal/domain"
)

// Operation names used in errors, logs and metrics.
const (
	OpGetUsers          = "get_users"
	OpGetAppointments   = "get_appointments"
	OpCreateAppointment = "create_appointment"
	OpPutAppointment    = "put_appointment"
	OpDeleteAppointment = "delete_appointment"
)

// TransportError is a failed call to a partition: a network error or a non-2xx status.
type TransportError struct {
	Partition int
	Op        string
	Status    int
	Err       error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("partition %d %s: http %d", e.Partition, e.Op, e.Status)
	}
	return fmt.Sprintf("partition %d %s: %v", e.Partition, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is makes every TransportError match domain.ErrTransport.
func (e *TransportError) Is(target error) bool {
	return target == domain.ErrTransport
}
