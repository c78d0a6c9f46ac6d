package availability

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-calendar-engine/internal/appointment"
)

func clinicHours() WorkingHoursConfig {
	return Uniform(time.UTC, WorkingHours{OpenHour: 9, CloseHour: 18, SlotMinutes: 30}, time.Sunday)
}

func at(day string, hh, mm int) time.Time {
	d, err := time.Parse(appointment.DateLayout, day)
	if err != nil {
		panic(err)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), hh, mm, 0, 0, time.UTC)
}

func appt(site appointment.Site, start time.Time, minutes int, status appointment.Status) appointment.Appointment {
	return appointment.Appointment{
		ID:              uuid.New(),
		Start:           start,
		End:             start.Add(time.Duration(minutes) * time.Minute),
		DurationMinutes: minutes,
		Site:            site,
		Status:          status,
		Priority:        appointment.PriorityNormal,
	}
}

func TestCompute_SingleAppointmentScenario(t *testing.T) {
	day := at("2025-06-02", 0, 0)
	res, err := Compute(Query{
		From:         day,
		To:           day,
		Site:         appointment.SiteA,
		Appointments: []appointment.Appointment{appt(appointment.SiteA, at("2025-06-02", 10, 0), 45, appointment.StatusScheduled)},
		SlotMinutes:  30,
	}, clinicHours())
	require.NoError(t, err)

	assert.Equal(t, 18, res.TotalSlots)
	require.Len(t, res.Occupied, 2)
	assert.Equal(t, at("2025-06-02", 10, 0), res.Occupied[0].Start)
	assert.Equal(t, at("2025-06-02", 10, 30), res.Occupied[1].Start)
	assert.Len(t, res.Available, 16)
	assert.Empty(t, res.Blocked)
	assert.Equal(t, 11, res.OccupancyRate())
	assert.Equal(t, "2025-06-02T10:00-A", res.Occupied[0].ID)
}

func TestCompute_PartitionCoversEverySlot(t *testing.T) {
	from := at("2025-06-02", 0, 0)
	to := at("2025-06-04", 0, 0)
	res, err := Compute(Query{
		From: from,
		To:   to,
		Site: appointment.SiteAll,
		Appointments: []appointment.Appointment{
			appt(appointment.SiteA, at("2025-06-02", 9, 0), 60, appointment.StatusConfirmed),
			appt(appointment.SiteB, at("2025-06-03", 15, 15), 30, appointment.StatusScheduled),
		},
		Blocked: []appointment.BlockedPeriod{
			{Site: appointment.SiteAll, Start: at("2025-06-04", 12, 0), End: at("2025-06-04", 13, 0), Reason: "staff meeting"},
		},
	}, clinicHours())
	require.NoError(t, err)

	// 3 days x 2 sites x 18 slots
	require.Equal(t, 108, res.TotalSlots)
	assert.Equal(t, res.TotalSlots, len(res.Available)+len(res.Occupied)+len(res.Blocked))

	seen := make(map[string]bool)
	for _, group := range [][]TimeSlot{res.Available, res.Occupied, res.Blocked} {
		for _, s := range group {
			assert.False(t, seen[s.ID], "duplicate slot %s", s.ID)
			seen[s.ID] = true
		}
	}
	assert.Len(t, seen, res.TotalSlots)

	// consecutive slots of one site and day tile without gaps
	for i := 1; i < len(res.Slots); i++ {
		prev, cur := res.Slots[i-1], res.Slots[i]
		if prev.Site == cur.Site && appointment.DateKey(prev.Start) == appointment.DateKey(cur.Start) {
			assert.Equal(t, prev.End, cur.Start)
		}
	}

	assert.Len(t, res.Occupied, 4)
	assert.Len(t, res.Blocked, 4)
}

func TestCompute_BlockedTakesPrecedence(t *testing.T) {
	day := at("2025-06-02", 0, 0)
	res, err := Compute(Query{
		From:         day,
		To:           day,
		Site:         appointment.SiteA,
		Appointments: []appointment.Appointment{appt(appointment.SiteA, at("2025-06-02", 11, 0), 30, appointment.StatusConfirmed)},
		Blocked: []appointment.BlockedPeriod{{
			Site:         appointment.SiteA,
			Start:        at("2025-06-02", 11, 0),
			End:          at("2025-06-02", 11, 30),
			Reason:       "equipment maintenance",
			Restrictions: []string{"no-imaging"},
		}},
	}, clinicHours())
	require.NoError(t, err)

	require.Len(t, res.Blocked, 1)
	assert.Empty(t, res.Occupied)
	assert.Equal(t, "equipment maintenance", res.Blocked[0].Reason)
	assert.Equal(t, []string{"no-imaging"}, res.Blocked[0].Restrictions)
}

func TestCompute_IgnoresCancelledAndOtherSites(t *testing.T) {
	day := at("2025-06-02", 0, 0)
	res, err := Compute(Query{
		From: day,
		To:   day,
		Site: appointment.SiteA,
		Appointments: []appointment.Appointment{
			appt(appointment.SiteA, at("2025-06-02", 9, 0), 30, appointment.StatusCancelled),
			appt(appointment.SiteB, at("2025-06-02", 9, 0), 30, appointment.StatusConfirmed),
		},
	}, clinicHours())
	require.NoError(t, err)
	assert.Empty(t, res.Occupied)
	assert.Len(t, res.Available, 18)
}

func TestCompute_TruncatesLastSlot(t *testing.T) {
	day := at("2025-06-02", 0, 0)
	res, err := Compute(Query{From: day, To: day, Site: appointment.SiteA, SlotMinutes: 40}, clinicHours())
	require.NoError(t, err)

	require.Equal(t, 14, res.TotalSlots)
	last := res.Slots[len(res.Slots)-1]
	assert.Equal(t, at("2025-06-02", 17, 40), last.Start)
	assert.Equal(t, at("2025-06-02", 18, 0), last.End)
}

func TestCompute_ClosedDayYieldsNoSlots(t *testing.T) {
	sunday := at("2025-06-01", 0, 0)
	res, err := Compute(Query{From: sunday, To: sunday, Site: appointment.SiteAll}, clinicHours())
	require.NoError(t, err)
	assert.Zero(t, res.TotalSlots)
	assert.Zero(t, res.OccupancyRate())
}

func TestCompute_UnconfiguredSiteIsClosed(t *testing.T) {
	h := WorkingHours{OpenHour: 8, CloseHour: 12, SlotMinutes: 60}
	cfg := WorkingHoursConfig{Sites: map[appointment.Site]SiteHours{appointment.SiteA: {Default: &h}}}
	day := at("2025-06-02", 0, 0)

	res, err := Compute(Query{From: day, To: day, Site: appointment.SiteAll}, cfg)
	require.NoError(t, err)
	assert.Equal(t, 4, res.TotalSlots)
	for _, s := range res.Slots {
		assert.Equal(t, appointment.SiteA, s.Site)
	}
}

func TestCompute_InvalidInput(t *testing.T) {
	from := at("2025-06-03", 0, 0)
	to := at("2025-06-02", 0, 0)

	_, err := Compute(Query{From: from, To: to, Site: appointment.SiteA}, clinicHours())
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = Compute(Query{From: to, To: to, Site: appointment.Site("Z")}, clinicHours())
	assert.ErrorIs(t, err, appointment.ErrUnknownSite)

	_, err = Compute(Query{From: to, To: to, Site: appointment.SiteA, SlotMinutes: -30}, clinicHours())
	assert.ErrorIs(t, err, ErrInvalidSlotDuration)

	bad := Uniform(time.UTC, WorkingHours{OpenHour: 18, CloseHour: 9, SlotMinutes: 30})
	_, err = Compute(Query{From: to, To: to, Site: appointment.SiteA}, bad)
	assert.ErrorIs(t, err, ErrInvalidWorkingHours)
}

func TestCompute_IdempotentAndDoesNotMutateInput(t *testing.T) {
	day := at("2025-06-02", 0, 0)
	appts := []appointment.Appointment{
		appt(appointment.SiteA, at("2025-06-02", 14, 0), 90, appointment.StatusConfirmed),
		appt(appointment.SiteA, at("2025-06-02", 9, 30), 15, appointment.StatusScheduled),
	}
	blocks := []appointment.BlockedPeriod{{Site: appointment.SiteA, Start: at("2025-06-02", 17, 0), End: at("2025-06-03", 9, 0), Restrictions: []string{"closed"}}}
	snapshot := append([]appointment.Appointment(nil), appts...)

	q := Query{From: day, To: day, Site: appointment.SiteA, Appointments: appts, Blocked: blocks}
	first, err := Compute(q, clinicHours())
	require.NoError(t, err)
	second, err := Compute(q, clinicHours())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, snapshot, appts)

	first.Blocked[0].Restrictions[0] = "changed"
	assert.Equal(t, "closed", blocks[0].Restrictions[0])
}

func TestCompute_AppointmentAcrossMidnightOccupiesNextMorning(t *testing.T) {
	cfg := Uniform(time.UTC, WorkingHours{OpenHour: 0, CloseHour: 24, SlotMinutes: 60})
	res, err := Compute(Query{
		From:         at("2025-06-03", 0, 0),
		To:           at("2025-06-03", 0, 0),
		Site:         appointment.SiteB,
		Appointments: []appointment.Appointment{appt(appointment.SiteB, at("2025-06-02", 23, 30), 60, appointment.StatusConfirmed)},
	}, cfg)
	require.NoError(t, err)
	require.Len(t, res.Occupied, 1)
	assert.Equal(t, at("2025-06-03", 0, 0), res.Occupied[0].Start)
}

func TestCompute_RejectsMalformedAppointments(t *testing.T) {
	day := at("2025-06-02", 0, 0)

	tooLong := appt(appointment.SiteA, at("2025-06-02", 9, 0), 300, appointment.StatusConfirmed)
	tooShort := appt(appointment.SiteA, at("2025-06-02", 9, 0), 10, appointment.StatusScheduled)
	wrongEnd := appt(appointment.SiteA, at("2025-06-02", 10, 0), 30, appointment.StatusScheduled)
	wrongEnd.End = at("2025-06-02", 17, 0)
	noSite := appt(appointment.Site("Z"), at("2025-06-02", 11, 0), 30, appointment.StatusScheduled)

	cases := []struct {
		name string
		a    appointment.Appointment
		want error
	}{
		{"duration above maximum", tooLong, appointment.ErrInvalidDuration},
		{"duration below minimum", tooShort, appointment.ErrInvalidDuration},
		{"end does not match duration", wrongEnd, appointment.ErrInconsistentEnd},
		{"unknown site", noSite, appointment.ErrUnknownSite},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := Compute(Query{
				From:         day,
				To:           day,
				Site:         appointment.SiteAll,
				Appointments: []appointment.Appointment{tc.a},
			}, clinicHours())
			assert.ErrorIs(t, err, tc.want)
			assert.Zero(t, res.TotalSlots)
		})
	}
}

func TestCompute_SkipsValidationOfCancelled(t *testing.T) {
	day := at("2025-06-02", 0, 0)
	legacy := appt(appointment.SiteA, at("2025-06-02", 9, 0), 300, appointment.StatusCancelled)

	res, err := Compute(Query{From: day, To: day, Site: appointment.SiteA, Appointments: []appointment.Appointment{legacy}}, clinicHours())
	require.NoError(t, err)
	assert.Len(t, res.Available, 18)
}

func TestCompute_AllSitesAreConcatenatedPerSite(t *testing.T) {
	res, err := Compute(Query{
		From: at("2025-06-02", 0, 0),
		To:   at("2025-06-03", 0, 0),
		Site: appointment.SiteAll,
	}, clinicHours())
	require.NoError(t, err)
	require.Equal(t, 72, res.TotalSlots)

	// 2 days x 18 slots of A, then the same for B
	for i, s := range res.Slots {
		want := appointment.SiteA
		if i >= 36 {
			want = appointment.SiteB
		}
		assert.Equal(t, want, s.Site, "slot %d", i)
	}
	assert.Equal(t, at("2025-06-02", 9, 0), res.Slots[0].Start)
	assert.Equal(t, at("2025-06-03", 17, 30), res.Slots[35].Start)
	assert.Equal(t, at("2025-06-02", 9, 0), res.Slots[36].Start)
}
