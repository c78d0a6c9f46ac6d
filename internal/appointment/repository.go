package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrSlotTaken           = errors.New("an active appointment already starts at this time")
)

// Repository contains all DB interactions needed by the scheduling service.
type Repository interface {
	// ListAppointments returns appointments of the given site (or all sites)
	// whose window overlaps [from, to), cancelled ones included.
	ListAppointments(ctx context.Context, site Site, from, to time.Time) ([]Appointment, error)
	// ListHistory returns every appointment of the site (or all sites).
	ListHistory(ctx context.Context, site Site) ([]Appointment, error)
	ListBlockedPeriods(ctx context.Context, site Site, from, to time.Time) ([]BlockedPeriod, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// Creation and updates
	CreateAppointment(ctx context.Context, a Appointment) (*Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
