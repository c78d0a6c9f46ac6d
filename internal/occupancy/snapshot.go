package occupancy

import (
	"time"

	"github.com/hackgods/clinic-calendar-engine/internal/appointment"
)

// Snapshot is the serialisable form of an Index consumed by dashboards.
type Snapshot struct {
	Site        appointment.Site `json:"site"`
	GeneratedAt time.Time        `json:"generated_at"`
	PerDate     map[string]int   `json:"per_date"`
	Levels      []DayStat        `json:"levels"`
	Stats       Stats            `json:"stats"`
	Streaks     Streaks          `json:"streaks"`
	Predictions Predictions      `json:"predictions"`
}

func (ix *Index) Snapshot() Snapshot {
	levels := make([]DayStat, 0, len(ix.dates))
	for _, key := range ix.dates {
		levels = append(levels, ix.dayStat(key))
	}

	return Snapshot{
		Site:        ix.site,
		GeneratedAt: ix.clock.Now(),
		PerDate:     ix.PerDate(),
		Levels:      levels,
		Stats:       ix.stats,
		Streaks:     ix.Streaks(),
		Predictions: ix.Predictions(),
	}
}

// SiteSummary compares one site against the others.
type SiteSummary struct {
	Site           appointment.Site `json:"site"`
	Total          int              `json:"total"`
	ActiveDays     int              `json:"active_days"`
	AvgPerDay      float64          `json:"avg_per_day"`
	Max            int              `json:"max"`
	PercentOfTotal float64          `json:"percent_of_total"`
}

// CompareSites recomputes counts per site independently; no count ever
// mixes sites. PercentOfTotal is relative to the sum over the listed sites.
func CompareSites(appts []appointment.Appointment, sites []appointment.Site, opts ...Option) []SiteSummary {
	out := make([]SiteSummary, 0, len(sites))
	grand := 0
	for _, site := range sites {
		ix := Build(appts, append(append([]Option(nil), opts...), WithSite(site))...)
		st := ix.Stats()
		out = append(out, SiteSummary{
			Site:       site,
			Total:      st.Total,
			ActiveDays: len(ix.dates),
			AvgPerDay:  st.Avg,
			Max:        st.Max,
		})
		grand += st.Total
	}

	if grand > 0 {
		for i := range out {
			out[i].PercentOfTotal = float64(out[i].Total) / float64(grand) * 100
		}
	}
	return out
}
