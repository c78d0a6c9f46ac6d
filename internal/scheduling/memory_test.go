package scheduling

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-calendar-engine/internal/appointment"
)

// memoryRepo is an in-process appointment.Repository with the same
// uniqueness rule as the appointments_active_window index.
type memoryRepo struct {
	mu        sync.Mutex
	appts     []appointment.Appointment
	blocks    []appointment.BlockedPeriod
	events    []appointment.EventLog
	createErr error
}

func (r *memoryRepo) matches(site, want appointment.Site) bool {
	return want == appointment.SiteAll || site == want
}

func (r *memoryRepo) ListAppointments(_ context.Context, site appointment.Site, from, to time.Time) ([]appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []appointment.Appointment
	for _, a := range r.appts {
		if r.matches(a.Site, site) && appointment.Overlaps(a.Start, a.End, from, to) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListHistory(_ context.Context, site appointment.Site) ([]appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []appointment.Appointment
	for _, a := range r.appts {
		if r.matches(a.Site, site) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListBlockedPeriods(_ context.Context, site appointment.Site, from, to time.Time) ([]appointment.BlockedPeriod, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []appointment.BlockedPeriod
	for _, b := range r.blocks {
		if (b.Site == appointment.SiteAll || r.matches(b.Site, site)) && appointment.Overlaps(b.Start, b.End, from, to) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *memoryRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.appts {
		if a.ID == id {
			found := a
			return &found, nil
		}
	}
	return nil, appointment.ErrAppointmentNotFound
}

func (r *memoryRepo) CreateAppointment(_ context.Context, a appointment.Appointment) (*appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return nil, r.createErr
	}
	for _, existing := range r.appts {
		if existing.Active() && existing.Site == a.Site && existing.Start.Equal(a.Start) {
			return nil, appointment.ErrSlotTaken
		}
	}
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	r.appts = append(r.appts, a)
	return &a, nil
}

func (r *memoryRepo) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to appointment.Status) (*appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, a := range r.appts {
		if a.ID == id && a.Status == from {
			r.appts[i].Status = to
			if to == appointment.StatusConfirmed {
				r.appts[i].ConfirmedByPatient = true
			}
			updated := r.appts[i]
			return &updated, nil
		}
	}
	return nil, appointment.ErrAppointmentNotFound
}

func (r *memoryRepo) InsertEvent(_ context.Context, ev appointment.EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *memoryRepo) eventTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.EventType)
	}
	return out
}
