package availability

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/hackgods/clinic-calendar-engine/internal/appointment"
)

var (
	ErrInvalidRange        = errors.New("date range end is before start")
	ErrInvalidSlotDuration = errors.New("slot duration must be positive")
)

// TimeSlot is one fixed-width candidate window. A slot that is neither
// available nor blocked is occupied.
type TimeSlot struct {
	ID           string           `json:"id"`
	Start        time.Time        `json:"start"`
	End          time.Time        `json:"end"`
	Site         appointment.Site `json:"site"`
	Available    bool             `json:"available"`
	Blocked      bool             `json:"blocked"`
	Reason       string           `json:"reason,omitempty"`
	Restrictions []string         `json:"restrictions,omitempty"`
}

func (s TimeSlot) Occupied() bool {
	return !s.Available && !s.Blocked
}

// Query describes one availability computation. Appointments and Blocked
// are expected to be pre-filtered to the requested range.
type Query struct {
	From         time.Time
	To           time.Time
	Site         appointment.Site
	Appointments []appointment.Appointment
	Blocked      []appointment.BlockedPeriod
	// SlotMinutes overrides the configured granularity when positive.
	SlotMinutes int
}

type Result struct {
	Slots      []TimeSlot `json:"slots"`
	Available  []TimeSlot `json:"available_slots"`
	Occupied   []TimeSlot `json:"occupied_slots"`
	Blocked    []TimeSlot `json:"blocked_slots"`
	TotalSlots int        `json:"total_slots"`
}

// OccupancyRate is the rounded share of occupied slots, 0 for an empty result.
func (r Result) OccupancyRate() int {
	if r.TotalSlots == 0 {
		return 0
	}
	return int(math.Round(float64(len(r.Occupied)) / float64(r.TotalSlots) * 100))
}

type bucketKey struct {
	site appointment.Site
	date string
}

type buckets struct {
	appointments map[bucketKey][]appointment.Appointment
	blocks       map[bucketKey][]appointment.BlockedPeriod
}

// Compute partitions every working window of every requested site and date
// into available, occupied and blocked slots. Each site is generated over the
// whole range on its own and the results are concatenated in
// appointment.Sites order. Active appointments must pass Validate.
func Compute(q Query, hours WorkingHoursConfig) (Result, error) {
	if q.SlotMinutes < 0 {
		return Result{}, fmt.Errorf("%w: got %d", ErrInvalidSlotDuration, q.SlotMinutes)
	}
	if q.From.IsZero() || q.To.IsZero() {
		return Result{}, fmt.Errorf("%w: from and to are required", ErrInvalidRange)
	}

	sites, err := q.Site.Expand()
	if err != nil {
		return Result{}, err
	}

	loc := hours.location()
	first := calendarDate(q.From, loc)
	last := calendarDate(q.To, loc)
	if last.Before(first) {
		return Result{}, fmt.Errorf("%w: %s > %s", ErrInvalidRange,
			appointment.DateKey(first), appointment.DateKey(last))
	}

	for _, a := range q.Appointments {
		if !a.Active() {
			continue
		}
		if err := a.Validate(); err != nil {
			return Result{}, fmt.Errorf("appointment %s: %w", a.ID, err)
		}
	}

	b := bucket(q, loc, first, last)

	res := Result{}
	for _, site := range sites {
		for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
			wh, open := hours.For(site, day.Weekday())
			if !open {
				continue
			}
			if err := wh.Validate(); err != nil {
				return Result{}, fmt.Errorf("site %s: %w", site, err)
			}

			step := wh.SlotMinutes
			if q.SlotMinutes > 0 {
				step = q.SlotMinutes
			}
			res.Slots = append(res.Slots, generateDay(day, site, wh, step, b)...)
		}
	}

	for _, s := range res.Slots {
		switch {
		case s.Blocked:
			res.Blocked = append(res.Blocked, s)
		case s.Available:
			res.Available = append(res.Available, s)
		default:
			res.Occupied = append(res.Occupied, s)
		}
	}
	res.TotalSlots = len(res.Slots)

	return res, nil
}

func generateDay(day time.Time, site appointment.Site, wh WorkingHours, step int, b buckets) []TimeSlot {
	y, m, d := day.Date()
	loc := day.Location()
	open := time.Date(y, m, d, wh.OpenHour, 0, 0, 0, loc)
	closing := time.Date(y, m, d, wh.CloseHour, 0, 0, 0, loc)
	width := time.Duration(step) * time.Minute

	key := appointment.DateKey(day)
	blocks := append(append([]appointment.BlockedPeriod(nil),
		b.blocks[bucketKey{site: site, date: key}]...),
		b.blocks[bucketKey{site: appointment.SiteAll, date: key}]...)
	appts := b.appointments[bucketKey{site: site, date: key}]

	var slots []TimeSlot
	for start := open; start.Before(closing); start = start.Add(width) {
		end := start.Add(width)
		// the final window is cut at closing time when step does not divide the day
		if end.After(closing) {
			end = closing
		}
		slots = append(slots, classify(start, end, site, blocks, appts))
	}
	return slots
}

func classify(start, end time.Time, site appointment.Site, blocks []appointment.BlockedPeriod, appts []appointment.Appointment) TimeSlot {
	slot := TimeSlot{
		ID:    SlotID(start, site),
		Start: start,
		End:   end,
		Site:  site,
	}

	for _, bp := range blocks {
		if appointment.Overlaps(start, end, bp.Start, bp.End) {
			slot.Blocked = true
			slot.Reason = bp.Reason
			if len(bp.Restrictions) > 0 {
				slot.Restrictions = append([]string(nil), bp.Restrictions...)
			}
			return slot
		}
	}

	for _, a := range appts {
		if appointment.Overlaps(start, end, a.Start, a.End) {
			return slot
		}
	}

	slot.Available = true
	return slot
}

// SlotID is the stable identifier of the window starting at start for site.
func SlotID(start time.Time, site appointment.Site) string {
	return start.Format("2006-01-02T15:04") + "-" + string(site)
}

// bucket indexes active appointments and blocks by site and every calendar
// date in [first, last] they touch, so each slot only scans its own day.
func bucket(q Query, loc *time.Location, first, last time.Time) buckets {
	b := buckets{
		appointments: make(map[bucketKey][]appointment.Appointment),
		blocks:       make(map[bucketKey][]appointment.BlockedPeriod),
	}

	for _, a := range q.Appointments {
		if !a.Active() {
			continue
		}
		for _, key := range touchedDates(a.Start, a.End, loc, first, last) {
			k := bucketKey{site: a.Site, date: key}
			b.appointments[k] = append(b.appointments[k], a)
		}
	}

	for _, bp := range q.Blocked {
		for _, key := range touchedDates(bp.Start, bp.End, loc, first, last) {
			k := bucketKey{site: bp.Site, date: key}
			b.blocks[k] = append(b.blocks[k], bp)
		}
	}

	return b
}

func touchedDates(start, end time.Time, loc *time.Location, first, last time.Time) []string {
	if !start.Before(end) {
		return nil
	}
	from := calendarDate(start.In(loc), loc)
	to := calendarDate(end.Add(-time.Nanosecond).In(loc), loc)
	if from.Before(first) {
		from = first
	}
	if to.After(last) {
		to = last
	}

	var keys []string
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		keys = append(keys, appointment.DateKey(d))
	}
	return keys
}

// calendarDate keeps t's calendar fields and pins them to midnight in loc.
func calendarDate(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
