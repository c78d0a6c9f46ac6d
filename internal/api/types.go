package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-calendar-engine/internal/appointment"
	"github.com/hackgods/clinic-calendar-engine/internal/availability"
	"github.com/hackgods/clinic-calendar-engine/internal/layout"
	"github.com/hackgods/clinic-calendar-engine/internal/occupancy"
)

type CreateAppointmentRequest struct {
	PatientID       string    `json:"patient_id"`
	Site            string    `json:"site"`
	Start           time.Time `json:"start"`
	DurationMinutes int       `json:"duration_minutes"`
	Priority        string    `json:"priority,omitempty"`
	Notes           string    `json:"notes,omitempty"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type RescheduleRequest struct {
	Start time.Time `json:"start"`
}

type AppointmentResponse struct {
	ID                 uuid.UUID `json:"id"`
	PatientID          uuid.UUID `json:"patient_id"`
	Site               string    `json:"site"`
	Start              time.Time `json:"start"`
	End                time.Time `json:"end"`
	DurationMinutes    int       `json:"duration_minutes"`
	Status             string    `json:"status"`
	Priority           string    `json:"priority"`
	ConfirmedByPatient bool      `json:"confirmed_by_patient"`
	Notes              string    `json:"notes,omitempty"`
}

func toAppointmentResponse(a appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                 a.ID,
		PatientID:          a.PatientID,
		Site:               string(a.Site),
		Start:              a.Start,
		End:                a.End,
		DurationMinutes:    a.DurationMinutes,
		Status:             string(a.Status),
		Priority:           string(a.Priority),
		ConfirmedByPatient: a.ConfirmedByPatient,
		Notes:              a.Notes,
	}
}

type AvailabilityResponse struct {
	availability.Result
	OccupancyRate int `json:"occupancy_rate"`
}

type PositionedResponse struct {
	Appointment AppointmentResponse `json:"appointment"`
	DayIndex    int                 `json:"day_index"`
	Top         float64             `json:"top"`
	Height      float64             `json:"height"`
	Left        float64             `json:"left"`
	Width       float64             `json:"width"`
	ZIndex      int                 `json:"z_index"`
	GroupSize   int                 `json:"group_size"`
}

type CalendarResponse struct {
	Start        string               `json:"start"`
	Days         int                  `json:"days"`
	Site         string               `json:"site"`
	Appointments []PositionedResponse `json:"appointments"`
}

func toCalendarResponse(start time.Time, days int, site appointment.Site, positioned []layout.Positioned) CalendarResponse {
	out := CalendarResponse{
		Start:        appointment.DateKey(start),
		Days:         days,
		Site:         string(site),
		Appointments: make([]PositionedResponse, 0, len(positioned)),
	}
	for _, p := range positioned {
		out.Appointments = append(out.Appointments, PositionedResponse{
			Appointment: toAppointmentResponse(p.Appointment),
			DayIndex:    p.DayIndex,
			Top:         p.Top,
			Height:      p.Height,
			Left:        p.Left,
			Width:       p.Width,
			ZIndex:      p.ZIndex,
			GroupSize:   p.GroupSize,
		})
	}
	return out
}

type HeatmapResponse struct {
	Site string              `json:"site"`
	Days []occupancy.DayStat `json:"days"`
}

type SitesResponse struct {
	Sites []occupancy.SiteSummary `json:"sites"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
