package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-calendar-engine/internal/appointment"
	"github.com/hackgods/clinic-calendar-engine/internal/availability"
	"github.com/hackgods/clinic-calendar-engine/internal/clock"
	"github.com/hackgods/clinic-calendar-engine/internal/config"
	"github.com/hackgods/clinic-calendar-engine/internal/layout"
	"github.com/hackgods/clinic-calendar-engine/internal/metrics"
	"github.com/hackgods/clinic-calendar-engine/internal/occupancy"
	redisclient "github.com/hackgods/clinic-calendar-engine/internal/redis"
)

const (
	EventAppointmentBooked      = "APPOINTMENT_BOOKED"
	EventAppointmentStatus      = "APPOINTMENT_STATUS_CHANGED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
)

var (
	ErrSlotUnavailable         = errors.New("requested window is not available")
	ErrSlotBeingBooked         = errors.New("calendar day is currently being booked, please retry")
	ErrOutsideWorkingHours     = errors.New("requested window is outside working hours")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrInvalidDays             = errors.New("days must be between 1 and 31")
)

// SnapshotCache stores computed occupancy snapshots between requests.
type SnapshotCache interface {
	Get(ctx context.Context, site appointment.Site) (*occupancy.Snapshot, error)
	Put(ctx context.Context, snap occupancy.Snapshot) error
	Invalidate(ctx context.Context) error
}

type Service struct {
	repo    appointment.Repository
	locker  redisclient.Locker
	cache   SnapshotCache
	hours   availability.WorkingHoursConfig
	grid    layout.Grid
	loc     *time.Location
	clock   clock.Clock
	log     zerolog.Logger
	metrics *metrics.CalendarMetrics
}

type Option func(*Service)

func WithSnapshotCache(c SnapshotCache) Option {
	return func(s *Service) { s.cache = c }
}

func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

func WithLogger(log zerolog.Logger) Option {
	return func(s *Service) { s.log = log.With().Str("component", "scheduling").Logger() }
}

func WithMetrics(m *metrics.CalendarMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService wires the core engines to storage. A nil locker books without
// the redis day lock and relies on the storage uniqueness constraint alone.
func NewService(repo appointment.Repository, locker redisclient.Locker, cfg config.Config, opts ...Option) *Service {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	s := &Service{
		repo:   repo,
		locker: locker,
		hours:  cfg.WorkingHours(),
		grid:   cfg.Grid(),
		loc:    loc,
		clock:  clock.System{},
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type AvailabilityQuery struct {
	From        time.Time
	To          time.Time
	Site        appointment.Site
	SlotMinutes int
}

// Availability loads the appointments and blocks overlapping the requested
// dates and classifies every working window.
func (s *Service) Availability(ctx context.Context, q AvailabilityQuery) (availability.Result, error) {
	started := time.Now()

	from, to, err := s.dateWindow(q.From, q.To)
	if err != nil {
		return availability.Result{}, err
	}
	if _, err := q.Site.Expand(); err != nil {
		return availability.Result{}, err
	}

	appts, err := s.repo.ListAppointments(ctx, q.Site, from, to)
	if err != nil {
		return availability.Result{}, fmt.Errorf("load appointments: %w", err)
	}
	blocks, err := s.repo.ListBlockedPeriods(ctx, q.Site, from, to)
	if err != nil {
		return availability.Result{}, fmt.Errorf("load blocked periods: %w", err)
	}

	res, err := availability.Compute(availability.Query{
		From:         q.From,
		To:           q.To,
		Site:         q.Site,
		Appointments: appts,
		Blocked:      blocks,
		SlotMinutes:  q.SlotMinutes,
	}, s.hours)
	if err != nil {
		return availability.Result{}, err
	}

	s.metrics.ObserveComputation("availability", started)
	s.log.Debug().
		Str("site", string(q.Site)).
		Int("total_slots", res.TotalSlots).
		Int("occupancy_rate", res.OccupancyRate()).
		Msg("availability computed")

	return res, nil
}

// DayLayout positions the active appointments of one day.
func (s *Service) DayLayout(ctx context.Context, day time.Time, site appointment.Site) ([]layout.Positioned, error) {
	return s.WeekLayout(ctx, day, 1, site)
}

// WeekLayout positions active appointments in a grid of days columns
// starting at weekStart. Appointments falling outside the columns are dropped.
func (s *Service) WeekLayout(ctx context.Context, weekStart time.Time, days int, site appointment.Site) ([]layout.Positioned, error) {
	started := time.Now()

	if days < 1 || days > 31 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidDays, days)
	}
	if _, err := site.Expand(); err != nil {
		return nil, err
	}

	first := s.localDate(weekStart)
	appts, err := s.repo.ListAppointments(ctx, site, first, first.AddDate(0, 0, days))
	if err != nil {
		return nil, fmt.Errorf("load appointments: %w", err)
	}

	columns := make([][]appointment.Appointment, days)
	for _, a := range appts {
		if !a.Active() {
			continue
		}
		a.Start = a.Start.In(s.loc)
		a.End = a.End.In(s.loc)
		idx := layout.DayIndex(a.Start, first)
		if idx < 0 || idx >= days {
			continue
		}
		columns[idx] = append(columns[idx], a)
	}

	var out []layout.Positioned
	for idx, col := range columns {
		positioned, err := layout.PositionDay(col, idx, s.grid)
		if err != nil {
			return nil, err
		}
		out = append(out, positioned...)
	}

	s.metrics.ObserveComputation("layout", started)
	return out, nil
}

// Occupancy builds the analytics index over the full history of site.
func (s *Service) Occupancy(ctx context.Context, site appointment.Site) (*occupancy.Index, error) {
	started := time.Now()

	if _, err := site.Expand(); err != nil {
		return nil, err
	}
	history, err := s.repo.ListHistory(ctx, site)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	ix := occupancy.Build(history, s.occupancyOptions(occupancy.WithSite(site))...)
	s.metrics.ObserveComputation("occupancy", started)
	return ix, nil
}

// Snapshot serves the cached dashboard snapshot, computing and caching it on a miss.
// Cache failures are logged and never fail the request.
func (s *Service) Snapshot(ctx context.Context, site appointment.Site) (*occupancy.Snapshot, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, site)
		if err != nil {
			s.log.Warn().Err(err).Str("site", string(site)).Msg("snapshot cache read failed")
		}
		if cached != nil {
			return cached, nil
		}
	}

	ix, err := s.Occupancy(ctx, site)
	if err != nil {
		return nil, err
	}
	snap := ix.Snapshot()

	if s.cache != nil {
		if err := s.cache.Put(ctx, snap); err != nil {
			s.log.Warn().Err(err).Str("site", string(site)).Msg("snapshot cache write failed")
		}
	}
	return &snap, nil
}

// Heatmap returns one occupancy stat per date in [from, to], empty days included.
func (s *Service) Heatmap(ctx context.Context, from, to time.Time, site appointment.Site) ([]occupancy.DayStat, error) {
	if _, _, err := s.dateWindow(from, to); err != nil {
		return nil, err
	}
	ix, err := s.Occupancy(ctx, site)
	if err != nil {
		return nil, err
	}
	return ix.Heatmap(from, to), nil
}

func (s *Service) CompareSites(ctx context.Context) ([]occupancy.SiteSummary, error) {
	history, err := s.repo.ListHistory(ctx, appointment.SiteAll)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return occupancy.CompareSites(history, appointment.Sites(), s.occupancyOptions()...), nil
}

// RefreshSnapshots recomputes the combined and per-site snapshots from one
// history read, stores them in the cache and returns the ones it stored.
func (s *Service) RefreshSnapshots(ctx context.Context) ([]occupancy.Snapshot, error) {
	if s.cache == nil {
		return nil, errors.New("no snapshot cache configured")
	}

	history, err := s.repo.ListHistory(ctx, appointment.SiteAll)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	var (
		stored []occupancy.Snapshot
		errs   []error
	)
	for _, site := range append([]appointment.Site{appointment.SiteAll}, appointment.Sites()...) {
		snap := occupancy.Build(history, s.occupancyOptions(occupancy.WithSite(site))...).Snapshot()
		if err := s.cache.Put(ctx, snap); err != nil {
			errs = append(errs, fmt.Errorf("site %s: %w", site, err))
			continue
		}
		stored = append(stored, snap)
	}
	return stored, errors.Join(errs...)
}

func (s *Service) occupancyOptions(extra ...occupancy.Option) []occupancy.Option {
	return append([]occupancy.Option{
		occupancy.WithClock(s.clock),
		occupancy.WithLocation(s.loc),
	}, extra...)
}

// dateWindow validates a date range and returns the instants bounding it in the clinic zone.
func (s *Service) dateWindow(from, to time.Time) (time.Time, time.Time, error) {
	if from.IsZero() || to.IsZero() {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: from and to are required", availability.ErrInvalidRange)
	}
	first := s.localDate(from)
	last := s.localDate(to)
	if last.Before(first) {
		return time.Time{}, time.Time{}, availability.ErrInvalidRange
	}
	return first, last.AddDate(0, 0, 1), nil
}

func (s *Service) localDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.loc)
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("event", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := appointment.EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.clock.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Error().Err(err).
			Str("event", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("failed to insert event log")
	}
}
