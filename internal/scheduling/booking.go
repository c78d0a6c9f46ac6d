package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-calendar-engine/internal/appointment"
	redisclient "github.com/hackgods/clinic-calendar-engine/internal/redis"
)

type BookingRequest struct {
	PatientID       uuid.UUID
	Site            appointment.Site
	Start           time.Time
	DurationMinutes int
	Priority        appointment.Priority
	Notes           string
}

// allowed status transitions; Cancelled, Completed and NoShow are terminal
var transitions = map[appointment.Status][]appointment.Status{
	appointment.StatusScheduled: {
		appointment.StatusConfirmed, appointment.StatusCancelled, appointment.StatusRescheduled,
		appointment.StatusInProgress, appointment.StatusNoShow,
	},
	appointment.StatusConfirmed: {
		appointment.StatusInProgress, appointment.StatusCancelled, appointment.StatusRescheduled,
		appointment.StatusNoShow,
	},
	appointment.StatusInProgress:  {appointment.StatusCompleted},
	appointment.StatusRescheduled: {appointment.StatusScheduled, appointment.StatusCancelled},
}

func CanTransition(from, to appointment.Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Book reserves a window for a patient. The availability check and insert run
// under the redis day lock of the site; the storage uniqueness constraint is
// the final arbiter when two callers still race.
func (s *Service) Book(ctx context.Context, req BookingRequest) (*appointment.Appointment, error) {
	created, err := s.book(ctx, req)
	s.metrics.ObserveBooking(bookingOutcome(err))
	if err != nil {
		return nil, err
	}

	s.invalidateSnapshots(ctx)
	s.log.Info().
		Str("appointment_id", created.ID.String()).
		Str("site", string(created.Site)).
		Time("start", created.Start).
		Msg("appointment booked")
	return created, nil
}

func (s *Service) book(ctx context.Context, req BookingRequest) (*appointment.Appointment, error) {
	if !req.Site.Valid() {
		return nil, fmt.Errorf("%w: %q", appointment.ErrUnknownSite, string(req.Site))
	}
	if req.Priority == "" {
		req.Priority = appointment.PriorityNormal
	}

	start := req.Start.In(s.loc)
	candidate := appointment.Appointment{
		ID:              uuid.New(),
		PatientID:       req.PatientID,
		Start:           start,
		End:             start.Add(time.Duration(req.DurationMinutes) * time.Minute),
		DurationMinutes: req.DurationMinutes,
		Site:            req.Site,
		Status:          appointment.StatusScheduled,
		Priority:        req.Priority,
		Notes:           req.Notes,
	}
	if err := candidate.Validate(); err != nil {
		return nil, err
	}

	var created *appointment.Appointment
	err := s.withDayLock(ctx, candidate, func(lockCtx context.Context) error {
		if err := s.checkWindow(lockCtx, candidate); err != nil {
			return err
		}

		appt, err := s.repo.CreateAppointment(lockCtx, candidate)
		if err != nil {
			if errors.Is(err, appointment.ErrSlotTaken) {
				return ErrSlotUnavailable
			}
			return fmt.Errorf("create appointment: %w", err)
		}
		created = appt

		s.logEvent(lockCtx, appt.ID, EventAppointmentBooked, map[string]any{
			"site":       string(appt.Site),
			"patient_id": appt.PatientID.String(),
			"start":      appt.Start,
			"duration":   appt.DurationMinutes,
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	return created, nil
}

func (s *Service) withDayLock(ctx context.Context, a appointment.Appointment, fn func(ctx context.Context) error) error {
	if s.locker == nil {
		return fn(ctx)
	}
	return s.locker.WithDayLock(ctx, string(a.Site), a.Date(), fn)
}

// checkWindow requires the candidate to sit inside the working hours of its
// day and every slot it touches to be available right now.
func (s *Service) checkWindow(ctx context.Context, a appointment.Appointment) error {
	res, err := s.Availability(ctx, AvailabilityQuery{From: a.Start, To: a.Start, Site: a.Site})
	if err != nil {
		return fmt.Errorf("check availability: %w", err)
	}
	if res.TotalSlots == 0 {
		return ErrOutsideWorkingHours
	}

	open := res.Slots[0].Start
	closing := res.Slots[len(res.Slots)-1].End
	if a.Start.Before(open) || a.End.After(closing) {
		return ErrOutsideWorkingHours
	}

	for _, slot := range res.Slots {
		if appointment.Overlaps(slot.Start, slot.End, a.Start, a.End) && !slot.Available {
			return ErrSlotUnavailable
		}
	}
	return nil
}

// UpdateStatus moves an appointment along the status lifecycle. Cancelling is
// a status change; appointments are never deleted.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, to appointment.Status) (*appointment.Appointment, error) {
	current, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	if !CanTransition(current.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, current.Status, to)
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, id, current.Status, to)
	if err != nil {
		if errors.Is(err, appointment.ErrAppointmentNotFound) {
			// status changed underneath us between load and update
			return nil, fmt.Errorf("%w: %s changed concurrently", ErrInvalidStatusTransition, id)
		}
		return nil, fmt.Errorf("update status: %w", err)
	}

	s.logEvent(ctx, id, EventAppointmentStatus, map[string]any{
		"from": string(current.Status),
		"to":   string(to),
	})
	s.invalidateSnapshots(ctx)

	return updated, nil
}

// Reschedule books the same visit at a new start and retires the old one
// with status Rescheduled.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, newStart time.Time) (*appointment.Appointment, error) {
	current, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if !CanTransition(current.Status, appointment.StatusRescheduled) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, current.Status, appointment.StatusRescheduled)
	}

	created, err := s.Book(ctx, BookingRequest{
		PatientID:       current.PatientID,
		Site:            current.Site,
		Start:           newStart,
		DurationMinutes: current.DurationMinutes,
		Priority:        current.Priority,
		Notes:           current.Notes,
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.repo.UpdateAppointmentStatus(ctx, id, current.Status, appointment.StatusRescheduled); err != nil {
		retireErr := fmt.Errorf("retire rescheduled appointment: %w", err)
		if errors.Is(err, appointment.ErrAppointmentNotFound) {
			retireErr = fmt.Errorf("%w: %s changed concurrently", ErrInvalidStatusTransition, id)
		}
		return nil, errors.Join(retireErr, s.releaseReplacement(ctx, id, created))
	}

	s.logEvent(ctx, id, EventAppointmentRescheduled, map[string]any{
		"replacement_id": created.ID.String(),
		"start":          created.Start,
	})
	s.invalidateSnapshots(ctx)

	return created, nil
}

// releaseReplacement cancels a replacement booked for an original that could
// not be retired, so the patient never holds both windows.
func (s *Service) releaseReplacement(ctx context.Context, originalID uuid.UUID, replacement *appointment.Appointment) error {
	// the caller's ctx may already be done; the replacement must still be freed
	ctx = context.WithoutCancel(ctx)

	if _, err := s.repo.UpdateAppointmentStatus(ctx, replacement.ID, replacement.Status, appointment.StatusCancelled); err != nil {
		s.log.Error().Err(err).
			Str("appointment_id", replacement.ID.String()).
			Str("original_id", originalID.String()).
			Msg("failed to cancel replacement of unretired appointment")
		return fmt.Errorf("cancel replacement %s: %w", replacement.ID, err)
	}

	s.logEvent(ctx, replacement.ID, EventAppointmentStatus, map[string]any{
		"from":        string(replacement.Status),
		"to":          string(appointment.StatusCancelled),
		"reason":      "reschedule aborted",
		"original_id": originalID.String(),
	})
	s.invalidateSnapshots(ctx)
	s.log.Warn().
		Str("appointment_id", replacement.ID.String()).
		Str("original_id", originalID.String()).
		Msg("reschedule aborted, replacement cancelled")
	return nil
}

func (s *Service) invalidateSnapshots(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.log.Warn().Err(err).Msg("snapshot invalidation failed")
	}
}

func bookingOutcome(err error) string {
	switch {
	case err == nil:
		return "booked"
	case errors.Is(err, ErrSlotUnavailable), errors.Is(err, ErrSlotBeingBooked):
		return "conflict"
	case errors.Is(err, ErrOutsideWorkingHours),
		errors.Is(err, appointment.ErrInvalidDuration),
		errors.Is(err, appointment.ErrUnknownSite):
		return "rejected"
	default:
		return "error"
	}
}
