package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-calendar-engine/internal/appointment"
	"github.com/hackgods/clinic-calendar-engine/internal/availability"
	"github.com/hackgods/clinic-calendar-engine/internal/layout"
	"github.com/hackgods/clinic-calendar-engine/internal/scheduling"
)

type handlers struct {
	svc CalendarService
	loc *time.Location
	log zerolog.Logger
}

func (h *handlers) availability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	from, err := h.parseDate(q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_from", err.Error())
		return
	}
	to := from
	if raw := q.Get("to"); raw != "" {
		if to, err = h.parseDate(raw); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_to", err.Error())
			return
		}
	}
	site, err := appointment.ParseSite(q.Get("site"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_site", err.Error())
		return
	}
	slotMinutes, err := optionalInt(q.Get("slot_minutes"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_slot_minutes", err.Error())
		return
	}

	res, err := h.svc.Availability(r.Context(), scheduling.AvailabilityQuery{
		From:        from,
		To:          to,
		Site:        site,
		SlotMinutes: slotMinutes,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, AvailabilityResponse{Result: res, OccupancyRate: res.OccupancyRate()})
}

func (h *handlers) day(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	date, err := h.parseDate(q.Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
		return
	}
	site, err := appointment.ParseSite(q.Get("site"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_site", err.Error())
		return
	}

	positioned, err := h.svc.DayLayout(r.Context(), date, site)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toCalendarResponse(date, 1, site, positioned))
}

func (h *handlers) week(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	start, err := h.parseDate(q.Get("week_start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_week_start", err.Error())
		return
	}
	days, err := optionalInt(q.Get("days"), 7)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_days", err.Error())
		return
	}
	site, err := appointment.ParseSite(q.Get("site"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_site", err.Error())
		return
	}

	positioned, err := h.svc.WeekLayout(r.Context(), start, days, site)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toCalendarResponse(start, days, site, positioned))
}

func (h *handlers) occupancy(w http.ResponseWriter, r *http.Request) {
	site, err := appointment.ParseSite(r.URL.Query().Get("site"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_site", err.Error())
		return
	}

	snap, err := h.svc.Snapshot(r.Context(), site)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *handlers) heatmap(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	from, err := h.parseDate(q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_from", err.Error())
		return
	}
	to, err := h.parseDate(q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_to", err.Error())
		return
	}
	site, err := appointment.ParseSite(q.Get("site"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_site", err.Error())
		return
	}

	days, err := h.svc.Heatmap(r.Context(), from, to, site)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, HeatmapResponse{Site: string(site), Days: days})
}

func (h *handlers) sites(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.svc.CompareSites(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SitesResponse{Sites: summaries})
}

func (h *handlers) createAppointment(w http.ResponseWriter, r *http.Request) {
	var req CreateAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
		return
	}
	site, err := appointment.ParseSite(req.Site)
	if err != nil || site == appointment.SiteAll {
		writeError(w, http.StatusBadRequest, "invalid_site", "site must name a single clinic site")
		return
	}
	if req.Start.IsZero() {
		writeError(w, http.StatusBadRequest, "invalid_start", "start is required")
		return
	}
	priority, err := appointment.ParsePriority(req.Priority)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_priority", err.Error())
		return
	}

	appt, err := h.svc.Book(r.Context(), scheduling.BookingRequest{
		PatientID:       patientID,
		Site:            site,
		Start:           req.Start,
		DurationMinutes: req.DurationMinutes,
		Priority:        priority,
		Notes:           req.Notes,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAppointmentResponse(*appt))
}

func (h *handlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return
	}

	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}
	status, err := appointment.ParseStatus(req.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_status", err.Error())
		return
	}

	appt, err := h.svc.UpdateStatus(r.Context(), id, status)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
}

func (h *handlers) reschedule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return
	}

	var req RescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Start.IsZero() {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "start is required")
		return
	}

	appt, err := h.svc.Reschedule(r.Context(), id, req.Start)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAppointmentResponse(*appt))
}

func (h *handlers) handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, scheduling.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", err.Error())
	case errors.Is(err, scheduling.ErrSlotBeingBooked):
		writeError(w, http.StatusConflict, "slot_being_booked", "calendar day is currently being booked, please retry shortly")
	case errors.Is(err, scheduling.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, scheduling.ErrOutsideWorkingHours):
		writeError(w, http.StatusBadRequest, "outside_working_hours", err.Error())
	case errors.Is(err, appointment.ErrInvalidDuration),
		errors.Is(err, appointment.ErrInconsistentEnd),
		errors.Is(err, appointment.ErrUnknownSite),
		errors.Is(err, availability.ErrInvalidRange),
		errors.Is(err, availability.ErrInvalidSlotDuration),
		errors.Is(err, layout.ErrInvalidGrid),
		errors.Is(err, scheduling.ErrInvalidDays):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		requestLogger(r.Context(), h.log).Error().Err(err).
			Str("path", r.URL.Path).
			Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

// parseDate reads YYYY-MM-DD as a calendar date in the clinic zone.
func (h *handlers) parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, errors.New("date is required (YYYY-MM-DD)")
	}
	d, err := time.ParseInLocation(appointment.DateLayout, raw, h.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected YYYY-MM-DD, got %q", raw)
	}
	return d, nil
}

func optionalInt(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("expected an integer, got %q", raw)
	}
	return n, nil
}
