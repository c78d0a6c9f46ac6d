package occupancy

import (
	"math"
	"sort"
	"time"

	"github.com/hackgods/clinic-calendar-engine/internal/appointment"
	"github.com/hackgods/clinic-calendar-engine/internal/clock"
)

type Level string

const (
	LevelEmpty    Level = "empty"
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelVeryHigh Level = "very-high"
)

// LevelFor buckets a percentage of the historical maximum.
func LevelFor(percentage float64) Level {
	switch {
	case percentage <= 0:
		return LevelEmpty
	case percentage <= 25:
		return LevelLow
	case percentage <= 50:
		return LevelMedium
	case percentage <= 75:
		return LevelHigh
	default:
		return LevelVeryHigh
	}
}

// Stats are computed over active dates only, except Total which is the grand sum.
type Stats struct {
	Min   int     `json:"min"`
	Max   int     `json:"max"`
	Avg   float64 `json:"avg"`
	Total int     `json:"total"`
}

// DayStat is the occupancy of one calendar date.
type DayStat struct {
	Date       string  `json:"date"`
	Count      int     `json:"count"`
	Level      Level   `json:"level"`
	Percentage float64 `json:"percentage"`
	Today      bool    `json:"today,omitempty"`
}

type Streaks struct {
	Longest int `json:"longest"`
	Current int `json:"current"`
}

type Predictions struct {
	BusiestWeekday     time.Weekday `json:"busiest_weekday"`
	BusiestAverage     float64      `json:"busiest_average"`
	WeekdayAverages    [7]float64   `json:"weekday_averages"`
	RecentTotal        int          `json:"recent_total"`
	PreviousTotal      int          `json:"previous_total"`
	MonthlyGrowth      float64      `json:"monthly_growth"`
	NextWeekProjection int          `json:"next_week_projection"`
}

// Index holds per-date counts of non-cancelled appointments.
type Index struct {
	site    appointment.Site
	loc     *time.Location
	clock   clock.Clock
	perDate map[string]int
	dates   []string
	stats   Stats
}

type Option func(*Index)

// WithSite restricts counting, and therefore the historical max, to one site.
func WithSite(site appointment.Site) Option {
	return func(ix *Index) { ix.site = site }
}

func WithClock(c clock.Clock) Option {
	return func(ix *Index) { ix.clock = c }
}

// WithLocation assigns appointments to calendar dates in loc instead of
// the zone each start time carries.
func WithLocation(loc *time.Location) Option {
	return func(ix *Index) { ix.loc = loc }
}

func Build(appts []appointment.Appointment, opts ...Option) *Index {
	ix := &Index{
		site:    appointment.SiteAll,
		clock:   clock.System{},
		perDate: make(map[string]int),
	}
	for _, opt := range opts {
		opt(ix)
	}

	for _, a := range appts {
		if !a.Active() {
			continue
		}
		if ix.site != appointment.SiteAll && a.Site != ix.site {
			continue
		}
		ix.perDate[ix.dateKey(a.Start)]++
	}

	ix.dates = make([]string, 0, len(ix.perDate))
	for d := range ix.perDate {
		ix.dates = append(ix.dates, d)
	}
	sort.Strings(ix.dates)

	ix.stats = computeStats(ix.dates, ix.perDate)
	return ix
}

func computeStats(dates []string, perDate map[string]int) Stats {
	if len(dates) == 0 {
		return Stats{}
	}

	s := Stats{Min: math.MaxInt}
	for _, d := range dates {
		c := perDate[d]
		s.Total += c
		if c < s.Min {
			s.Min = c
		}
		if c > s.Max {
			s.Max = c
		}
	}
	s.Avg = float64(s.Total) / float64(len(dates))
	return s
}

func (ix *Index) Site() appointment.Site { return ix.site }

func (ix *Index) Stats() Stats { return ix.stats }

// PerDate returns a copy of the date → count map.
func (ix *Index) PerDate() map[string]int {
	out := make(map[string]int, len(ix.perDate))
	for k, v := range ix.perDate {
		out[k] = v
	}
	return out
}

// ActiveDates lists dates with at least one appointment, ascending.
func (ix *Index) ActiveDates() []string {
	return append([]string(nil), ix.dates...)
}

func (ix *Index) Count(date time.Time) int {
	return ix.perDate[ix.dateKey(date)]
}

// Level classifies date against the historical maximum of this index.
func (ix *Index) Level(date time.Time) DayStat {
	return ix.dayStat(ix.dateKey(date))
}

func (ix *Index) dayStat(key string) DayStat {
	count := ix.perDate[key]
	pct := float64(count) / float64(max(ix.stats.Max, 1)) * 100
	return DayStat{
		Date:       key,
		Count:      count,
		Level:      LevelFor(pct),
		Percentage: pct,
		Today:      key == ix.dateKey(ix.clock.Now()),
	}
}

// Heatmap returns one DayStat per calendar date in [from, to], empty days included.
func (ix *Index) Heatmap(from, to time.Time) []DayStat {
	first := startOfDate(from)
	last := startOfDate(to)

	var out []DayStat
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		out = append(out, ix.dayStat(appointment.DateKey(d)))
	}
	return out
}

// Streaks walks the active dates in order. Current is the run ending at the
// most recent active date.
func (ix *Index) Streaks() Streaks {
	if len(ix.dates) == 0 {
		return Streaks{}
	}

	longest, run := 1, 1
	prev := mustParse(ix.dates[0])
	for _, key := range ix.dates[1:] {
		d := mustParse(key)
		if appointment.DaysBetween(prev, d) == 1 {
			run++
		} else {
			run = 1
		}
		longest = max(longest, run)
		prev = d
	}

	return Streaks{Longest: longest, Current: run}
}

// Predictions are simple heuristics over the active dates relative to the
// index clock: busiest weekday by mean count, 30-day window growth and a
// projection for the seven days after today.
func (ix *Index) Predictions() Predictions {
	var p Predictions

	var sums, days [7]int
	for _, key := range ix.dates {
		wd := mustParse(key).Weekday()
		sums[wd] += ix.perDate[key]
		days[wd]++
	}

	found := false
	for wd := range 7 {
		if days[wd] == 0 {
			continue
		}
		p.WeekdayAverages[wd] = float64(sums[wd]) / float64(days[wd])
		if !found || p.WeekdayAverages[wd] > p.BusiestAverage {
			p.BusiestWeekday = time.Weekday(wd)
			p.BusiestAverage = p.WeekdayAverages[wd]
			found = true
		}
	}

	today := mustParse(ix.dateKey(ix.clock.Now()))
	for _, key := range ix.dates {
		ago := appointment.DaysBetween(mustParse(key), today)
		switch {
		case ago >= 0 && ago < 30:
			p.RecentTotal += ix.perDate[key]
		case ago >= 30 && ago < 60:
			p.PreviousTotal += ix.perDate[key]
		}
	}
	p.MonthlyGrowth = float64(p.RecentTotal-p.PreviousTotal) / float64(max(p.PreviousTotal, 1)) * 100

	var projected float64
	for k := 1; k <= 7; k++ {
		projected += p.WeekdayAverages[today.AddDate(0, 0, k).Weekday()]
	}
	p.NextWeekProjection = int(math.Round(projected))

	return p
}

func (ix *Index) dateKey(t time.Time) string {
	if ix.loc != nil {
		t = t.In(ix.loc)
	}
	return appointment.DateKey(t)
}

func startOfDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// mustParse reads a key produced by appointment.DateKey.
func mustParse(key string) time.Time {
	d, err := time.Parse(appointment.DateLayout, key)
	if err != nil {
		panic("occupancy: malformed date key " + key)
	}
	return d
}
