package main

import (
	"context"
	"flag"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-calendar-engine/internal/appointment"
	"github.com/hackgods/clinic-calendar-engine/internal/config"
	"github.com/hackgods/clinic-calendar-engine/internal/db"
	"github.com/hackgods/clinic-calendar-engine/internal/logger"
)

var durations = []int{15, 30, 30, 45, 60, 90}

// weighted towards visits that actually happened
var pastStatuses = []appointment.Status{
	appointment.StatusCompleted, appointment.StatusCompleted, appointment.StatusCompleted,
	appointment.StatusCompleted, appointment.StatusCancelled, appointment.StatusNoShow,
	appointment.StatusRescheduled,
}

var futureStatuses = []appointment.Status{
	appointment.StatusScheduled, appointment.StatusScheduled, appointment.StatusConfirmed,
	appointment.StatusCancelled,
}

var visitNotes = []string{"", "", "follow-up", "first visit", "lab results review", "prescription renewal", "post-op check"}

var blockReasons = []string{"staff meeting", "equipment maintenance", "public holiday", "training"}

func main() {
	patients := flag.Int("patients", 400, "number of synthetic patients")
	days := flag.Int("days", 90, "days of history to generate before today")
	ahead := flag.Int("ahead", 14, "days of upcoming appointments to generate")
	perDay := flag.Int("per-day", 12, "maximum visits per site and day")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("dev", "info")
		bootLog.Fatal().Err(err).Msg("config load error")
	}
	log := logger.New(cfg.Env, cfg.LogLevel).With().Str("service", "seed").Logger()
	log.Info().Msg("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.WithApplicationName("seed"), db.WithMaxConns(2))
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if err := db.EnsureSchema(context.Background(), pool); err != nil {
		log.Fatal().Err(err).Msg("apply schema")
	}

	faker := gofakeit.New(uint64(time.Now().UnixNano()))

	patientIDs := make([]uuid.UUID, *patients)
	for i := range patientIDs {
		patientIDs[i] = uuid.New()
	}

	today := appointment.StartOfDay(time.Now().In(cfg.Location))
	s := seeder{pool: pool, cfg: cfg, faker: faker, log: log, patients: patientIDs, perDay: *perDay}

	if err := s.seedAppointments(context.Background(), today.AddDate(0, 0, -*days), today.AddDate(0, 0, *ahead), today); err != nil {
		log.Fatal().Err(err).Msg("seed appointments")
	}
	if err := s.seedBlocks(context.Background(), today, *ahead); err != nil {
		log.Fatal().Err(err).Msg("seed blocked periods")
	}

	log.Info().Msg("seed complete")
}

type seeder struct {
	pool     *pgxpool.Pool
	cfg      config.Config
	faker    *gofakeit.Faker
	log      zerolog.Logger
	patients []uuid.UUID
	perDay   int
}

// seedAppointments walks every open day and fills each site with
// non-overlapping visits aligned to the slot grid, one transaction per day.
func (s seeder) seedAppointments(ctx context.Context, from, to, today time.Time) error {
	hours := s.cfg.WorkingHours()
	total := 0

	for day := from; day.Before(to); day = day.AddDate(0, 0, 1) {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return err
		}

		for _, site := range appointment.Sites() {
			wh, open := hours.For(site, day.Weekday())
			if !open {
				continue
			}

			cursor := day.Add(time.Duration(wh.OpenHour) * time.Hour)
			closing := day.Add(time.Duration(wh.CloseHour) * time.Hour)
			visits := s.faker.Number(0, s.perDay)

			for range visits {
				// random gap keeps some slots free
				cursor = cursor.Add(time.Duration(s.faker.Number(0, 2)*wh.SlotMinutes) * time.Minute)
				minutes := durations[s.faker.Number(0, len(durations)-1)]
				end := cursor.Add(time.Duration(minutes) * time.Minute)
				if end.After(closing) {
					break
				}

				statuses := futureStatuses
				if day.Before(today) {
					statuses = pastStatuses
				}
				status := statuses[s.faker.Number(0, len(statuses)-1)]

				_, err := tx.Exec(ctx, `
					INSERT INTO appointments (id, patient_id, site, start_time, end_time, duration_minutes,
						status, priority, confirmed_by_patient, notes, created_at, updated_at)
					VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
					ON CONFLICT DO NOTHING
				`, uuid.New(), s.patients[s.faker.Number(0, len(s.patients)-1)], site, cursor, end, minutes,
					status, s.priority(), status == appointment.StatusConfirmed || status == appointment.StatusCompleted,
					s.faker.RandomString(visitNotes))
				if err != nil {
					_ = tx.Rollback(ctx)
					return err
				}
				total++

				// next visit starts on the first grid boundary after this one ends
				slot := time.Duration(wh.SlotMinutes) * time.Minute
				cursor = day.Add(end.Sub(day).Truncate(slot))
				if cursor.Before(end) {
					cursor = cursor.Add(slot)
				}
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}
	}

	s.log.Info().Int("appointments", total).Msg("appointments seeded")
	return nil
}

func (s seeder) priority() appointment.Priority {
	switch n := s.faker.Number(1, 20); {
	case n == 1:
		return appointment.PriorityUrgent
	case n <= 4:
		return appointment.PriorityHigh
	default:
		return appointment.PriorityNormal
	}
}

// seedBlocks adds a few upcoming blackout windows, some of them clinic-wide.
func (s seeder) seedBlocks(ctx context.Context, today time.Time, ahead int) error {
	sites := append([]appointment.Site{appointment.SiteAll}, appointment.Sites()...)
	count := 0

	for i := 0; i < 4 && ahead > 0; i++ {
		day := today.AddDate(0, 0, s.faker.Number(1, ahead))
		start := day.Add(time.Duration(s.faker.Number(s.cfg.OpenHour, s.cfg.CloseHour-1)) * time.Hour)
		end := start.Add(time.Duration(s.faker.Number(1, 2)) * time.Hour)

		_, err := s.pool.Exec(ctx, `
			INSERT INTO blocked_periods (id, site, start_time, end_time, reason, restrictions)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, uuid.New(), sites[s.faker.Number(0, len(sites)-1)], start, end,
			s.faker.RandomString(blockReasons), []string{})
		if err != nil {
			return err
		}
		count++
	}

	s.log.Info().Int("blocked_periods", count).Msg("blocked periods seeded")
	return nil
}
