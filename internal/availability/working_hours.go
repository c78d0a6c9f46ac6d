package availability

import (
	"errors"
	"fmt"
	"time"

	"github.com/hackgods/clinic-calendar-engine/internal/appointment"
)

var ErrInvalidWorkingHours = errors.New("invalid working hours")

// WorkingHours is one day's opening window and slot granularity.
type WorkingHours struct {
	OpenHour    int
	CloseHour   int
	SlotMinutes int
	Closed      bool
}

func (h WorkingHours) Validate() error {
	if h.Closed {
		return nil
	}
	if h.OpenHour < 0 || h.CloseHour > 24 || h.OpenHour >= h.CloseHour {
		return fmt.Errorf("%w: open %d close %d", ErrInvalidWorkingHours, h.OpenHour, h.CloseHour)
	}
	if h.SlotMinutes <= 0 {
		return fmt.Errorf("%w: slot minutes %d", ErrInvalidWorkingHours, h.SlotMinutes)
	}
	return nil
}

// SiteHours holds a site default plus optional per-weekday overrides.
// A weekday override with Closed set marks the site shut on that day.
type SiteHours struct {
	Default  *WorkingHours
	Weekdays map[time.Weekday]WorkingHours
}

// WorkingHoursConfig drives slot generation and grid bounds. Slot times are
// laid out in Location; a nil Location means UTC.
type WorkingHoursConfig struct {
	Location *time.Location
	Sites    map[appointment.Site]SiteHours
}

// For resolves the hours of site on weekday. ok is false when the site is
// closed or has no configuration for that day.
func (c WorkingHoursConfig) For(site appointment.Site, weekday time.Weekday) (WorkingHours, bool) {
	sh, found := c.Sites[site]
	if !found {
		return WorkingHours{}, false
	}
	if h, found := sh.Weekdays[weekday]; found {
		return h, !h.Closed
	}
	if sh.Default == nil || sh.Default.Closed {
		return WorkingHours{}, false
	}
	return *sh.Default, true
}

func (c WorkingHoursConfig) Validate() error {
	for site, sh := range c.Sites {
		if !site.Valid() {
			return fmt.Errorf("%w: %q", appointment.ErrUnknownSite, string(site))
		}
		if sh.Default != nil {
			if err := sh.Default.Validate(); err != nil {
				return fmt.Errorf("site %s: %w", site, err)
			}
		}
		for wd, h := range sh.Weekdays {
			if err := h.Validate(); err != nil {
				return fmt.Errorf("site %s %s: %w", site, wd, err)
			}
		}
	}
	return nil
}

func (c WorkingHoursConfig) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

// Uniform builds a config giving every site the same hours, closed on the listed weekdays.
func Uniform(loc *time.Location, hours WorkingHours, closed ...time.Weekday) WorkingHoursConfig {
	cfg := WorkingHoursConfig{
		Location: loc,
		Sites:    make(map[appointment.Site]SiteHours),
	}
	for _, site := range appointment.Sites() {
		h := hours
		sh := SiteHours{Default: &h, Weekdays: make(map[time.Weekday]WorkingHours)}
		for _, wd := range closed {
			sh.Weekdays[wd] = WorkingHours{Closed: true}
		}
		cfg.Sites[site] = sh
	}
	return cfg
}
