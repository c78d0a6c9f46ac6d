// Package layout places one day's appointments on the calendar grid.
//
// Overlap grouping is local: every appointment is laid out against the set of
// appointments that directly overlap it, not against the transitive cluster.
// Chained overlaps (A-B, B-C, not A-C) therefore give A and C half width while
// B gets a third. Callers relying on the grid expect exactly this layout.
package layout

import (
	"errors"
	"fmt"
	"time"

	"github.com/hackgods/clinic-calendar-engine/internal/appointment"
)

var ErrInvalidGrid = errors.New("invalid grid geometry")

// Grid is the vertical geometry of the calendar.
type Grid struct {
	StartHour     int
	PixelsPerHour float64
}

func (g Grid) Validate() error {
	if g.StartHour < 0 || g.StartHour > 23 {
		return fmt.Errorf("%w: start hour %d", ErrInvalidGrid, g.StartHour)
	}
	if g.PixelsPerHour <= 0 {
		return fmt.Errorf("%w: pixels per hour %v", ErrInvalidGrid, g.PixelsPerHour)
	}
	return nil
}

// Positioned is an appointment annotated for one render pass.
type Positioned struct {
	Appointment appointment.Appointment `json:"appointment"`
	DayIndex    int                     `json:"day_index"`
	Top         float64                 `json:"top"`
	Height      float64                 `json:"height"`
	Left        float64                 `json:"left"`
	Width       float64                 `json:"width"`
	ZIndex      int                     `json:"z_index"`
	GroupSize   int                     `json:"group_size"`
}

// PositionDay computes pixel placement for appointments in a single day column.
// The input order defines group membership order and is preserved in the output.
func PositionDay(appts []appointment.Appointment, dayIndex int, grid Grid) ([]Positioned, error) {
	if err := grid.Validate(); err != nil {
		return nil, err
	}

	perMinute := grid.PixelsPerHour / 60
	groups := OverlapGroups(appts)

	out := make([]Positioned, len(appts))
	for i, a := range appts {
		gridStart := time.Date(a.Start.Year(), a.Start.Month(), a.Start.Day(), grid.StartHour, 0, 0, 0, a.Start.Location())

		p := Positioned{
			Appointment: a,
			DayIndex:    dayIndex,
			Top:         a.Start.Sub(gridStart).Minutes() * perMinute,
			Height:      float64(a.DurationMinutes) * perMinute,
			Left:        0,
			Width:       100,
			ZIndex:      1,
			GroupSize:   1,
		}

		group := groups[i]
		if len(group) > 1 {
			idx := indexOf(group, i)
			p.GroupSize = len(group)
			p.Width = 100 / float64(len(group))
			p.Left = float64(idx) * p.Width
			p.ZIndex = 1 + idx
		}

		out[i] = p
	}

	return out, nil
}

// OverlapGroups returns, for every appointment i, the indices of the
// appointments in i's local group: i itself plus every appointment directly
// overlapping it, in input order. A group of one means no overlap.
func OverlapGroups(appts []appointment.Appointment) [][]int {
	groups := make([][]int, len(appts))
	for i, a := range appts {
		for j, b := range appts {
			if i == j || appointment.Overlaps(a.Start, a.End, b.Start, b.End) {
				groups[i] = append(groups[i], j)
			}
		}
	}
	return groups
}

// DayIndex is the column of date in a grid whose first column is weekStart.
// Negative or too large values are the caller's to discard.
func DayIndex(date, weekStart time.Time) int {
	return appointment.DaysBetween(weekStart, date)
}

func indexOf(group []int, i int) int {
	for pos, v := range group {
		if v == i {
			return pos
		}
	}
	return 0
}
