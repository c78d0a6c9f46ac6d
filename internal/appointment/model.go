package appointment

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	MinDurationMinutes = 15
	MaxDurationMinutes = 120

	// DateLayout is the calendar date key used across the engine.
	DateLayout = "2006-01-02"
)

var (
	ErrInvalidDuration = errors.New("duration must be between 15 and 120 minutes")
	ErrInconsistentEnd = errors.New("end must equal start plus duration")
	ErrUnknownSite     = errors.New("unknown site")
	ErrUnknownStatus   = errors.New("unknown appointment status")
	ErrUnknownPriority = errors.New("unknown appointment priority")
)

// Site is a physical clinic location.
type Site string

const (
	SiteA Site = "A"
	SiteB Site = "B"

	// SiteAll selects every site. It is a query value, never stored on an appointment.
	SiteAll Site = "all"
)

// Sites returns every concrete clinic site in display order.
func Sites() []Site {
	return []Site{SiteA, SiteB}
}

func (s Site) Valid() bool {
	switch s {
	case SiteA, SiteB:
		return true
	}
	return false
}

// Expand returns the concrete sites a query value stands for.
func (s Site) Expand() ([]Site, error) {
	if s == SiteAll {
		return Sites(), nil
	}
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSite, string(s))
	}
	return []Site{s}, nil
}

// ParseSite accepts a concrete site or "all". An empty string means all sites.
func ParseSite(raw string) (Site, error) {
	v := strings.TrimSpace(raw)
	if v == "" || strings.EqualFold(v, string(SiteAll)) {
		return SiteAll, nil
	}
	s := Site(strings.ToUpper(v))
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownSite, raw)
	}
	return s, nil
}

type Status string

const (
	StatusScheduled   Status = "scheduled"
	StatusConfirmed   Status = "confirmed"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
	StatusRescheduled Status = "rescheduled"
	StatusInProgress  Status = "in_progress"
	StatusNoShow      Status = "no_show"
)

func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case StatusScheduled, StatusConfirmed, StatusCompleted, StatusCancelled,
		StatusRescheduled, StatusInProgress, StatusNoShow:
		return s, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
}

type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ParsePriority defaults an empty value to normal.
func ParsePriority(raw string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(raw)))
	switch p {
	case "":
		return PriorityNormal, nil
	case PriorityNormal, PriorityHigh, PriorityUrgent:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPriority, raw)
}

type Appointment struct {
	ID                 uuid.UUID
	PatientID          uuid.UUID
	Start              time.Time
	End                time.Time
	DurationMinutes    int
	Site               Site
	Status             Status
	Priority           Priority
	ConfirmedByPatient bool
	Notes              string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Active reports whether the appointment still holds its time window.
func (a Appointment) Active() bool {
	return a.Status != StatusCancelled
}

// Date is the calendar date of the appointment start in its own zone.
func (a Appointment) Date() string {
	return DateKey(a.Start)
}

func (a Appointment) Validate() error {
	if a.DurationMinutes < MinDurationMinutes || a.DurationMinutes > MaxDurationMinutes {
		return fmt.Errorf("%w: got %d", ErrInvalidDuration, a.DurationMinutes)
	}
	if !a.End.Equal(a.Start.Add(time.Duration(a.DurationMinutes) * time.Minute)) {
		return ErrInconsistentEnd
	}
	if !a.Site.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownSite, string(a.Site))
	}
	return nil
}

// BlockedPeriod is a blackout window. Site may be SiteAll to block every site.
type BlockedPeriod struct {
	ID           uuid.UUID
	Site         Site
	Start        time.Time
	End          time.Time
	Reason       string
	Restrictions []string
}

// AppliesTo reports whether the block covers the given concrete site.
func (b BlockedPeriod) AppliesTo(site Site) bool {
	return b.Site == SiteAll || b.Site == site
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// Overlaps is the half-open interval test [aStart,aEnd) ∩ [bStart,bEnd) ≠ ∅.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// DateKey formats the calendar date of t in t's own location.
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

// StartOfDay returns local midnight of t's calendar date.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DaysBetween counts whole calendar days from a to b, ignoring clock time and DST shifts.
func DaysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	ua := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	ub := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}
