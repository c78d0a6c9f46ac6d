package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-calendar-engine/internal/appointment"
	"github.com/hackgods/clinic-calendar-engine/internal/logger"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	StatusRatio  float64
	ReadRatio    float64
	Patients     int
	DaysAhead    int
	OpenHour     int
	CloseHour    int
	SlotMinutes  int
}

type DataPool struct {
	Patients     []uuid.UUID
	mu           sync.RWMutex
	appointments []uuid.UUID
}

func (dp *DataPool) AddAppointment(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return uuid.Nil, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]

	return avg, min, max, p50, p95
}

func percentileIndex(n, p int) int {
	idx := n * p / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Booking      OperationMetrics
	StatusChange OperationMetrics
	Availability OperationMetrics
	WeekLayout   OperationMetrics
	Occupancy    OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	log     zerolog.Logger
	metrics Metrics
}

func main() {
	_ = godotenv.Load()
	log := logger.New(getEnv("APP_ENV", "dev"), getEnv("LOG_LEVEL", "info")).With().Str("service", "simulate").Logger()

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	log.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("booking", cfg.BookingRatio).
		Float64("status", cfg.StatusRatio).
		Float64("read", cfg.ReadRatio).
		Msg("simulator starting")

	dataPool := &DataPool{Patients: make([]uuid.UUID, cfg.Patients)}
	for i := range dataPool.Patients {
		dataPool.Patients[i] = uuid.New()
	}

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:   strings.TrimRight(getEnv("SIM_API_BASE_URL", "http://localhost:8080"), "/"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.5),
		StatusRatio:  getFloat("SIM_STATUS_RATIO", 0.2),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.3),
		Patients:     getInt("SIM_PATIENTS", 500),
		DaysAhead:    getInt("SIM_DAYS_AHEAD", 14),
		OpenHour:     getInt("CLINIC_OPEN_HOUR", 9),
		CloseHour:    getInt("CLINIC_CLOSE_HOUR", 18),
		SlotMinutes:  getInt("SLOT_MINUTES", 30),
	}

	total := cfg.BookingRatio + cfg.StatusRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.StatusRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Patients <= 0 || cfg.DaysAhead <= 0 {
		return fmt.Errorf("SIM_PATIENTS and SIM_DAYS_AHEAD must be > 0")
	}
	if cfg.SlotMinutes <= 0 || cfg.OpenHour >= cfg.CloseHour {
		return fmt.Errorf("invalid clinic hours %d-%d / %d min", cfg.OpenHour, cfg.CloseHour, cfg.SlotMinutes)
	}
	return nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.log.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.BookingRatio:
				s.doBooking(ctx, rng)
			case r < s.config.BookingRatio+s.config.StatusRatio:
				s.doStatusChange(ctx, rng)
			default:
				switch rng.Intn(3) {
				case 0:
					s.doAvailability(ctx, rng)
				case 1:
					s.doWeekLayout(ctx, rng)
				case 2:
					s.doOccupancy(ctx, rng)
				}
			}
		}
	}
}

// randomWindow picks a grid-aligned start on one of the next DaysAhead days.
// Closed days are left to the API to reject.
func (s *Simulator) randomWindow(rng *rand.Rand) (time.Time, int) {
	day := appointment.StartOfDay(time.Now().UTC()).AddDate(0, 0, 1+rng.Intn(s.config.DaysAhead))
	slots := (s.config.CloseHour - s.config.OpenHour) * 60 / s.config.SlotMinutes
	start := day.Add(time.Duration(s.config.OpenHour)*time.Hour +
		time.Duration(rng.Intn(slots)*s.config.SlotMinutes)*time.Minute)
	durations := []int{15, 30, 30, 45, 60}
	return start, durations[rng.Intn(len(durations))]
}

func randomSite(rng *rand.Rand) appointment.Site {
	sites := appointment.Sites()
	return sites[rng.Intn(len(sites))]
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	start, minutes := s.randomWindow(rng)
	body, _ := json.Marshal(map[string]any{
		"patient_id":       s.pool.Patients[rng.Intn(len(s.pool.Patients))].String(),
		"site":             randomSite(rng),
		"start":            start,
		"duration_minutes": minutes,
	})

	began := time.Now()
	resp, err := s.post(ctx, "/appointments", body)
	latency := time.Since(began)

	success, conflict := false, false
	if err == nil {
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusCreated:
			success = true
			var created struct {
				ID uuid.UUID `json:"id"`
			}
			if raw, _ := io.ReadAll(resp.Body); len(raw) > 0 {
				if json.Unmarshal(raw, &created) == nil && created.ID != uuid.Nil {
					s.pool.AddAppointment(created.ID)
				}
			}
		case http.StatusConflict, http.StatusBadRequest:
			// taken windows and closed days are expected under load
			conflict = true
		}
	}

	s.metrics.Booking.Record(latency, success, conflict)
}

func (s *Simulator) doStatusChange(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}
	next := []appointment.Status{appointment.StatusConfirmed, appointment.StatusCancelled, appointment.StatusInProgress}
	body, _ := json.Marshal(map[string]string{"status": string(next[rng.Intn(len(next))])})

	began := time.Now()
	resp, err := s.post(ctx, fmt.Sprintf("/appointments/%s/status", id), body)
	latency := time.Since(began)

	success, conflict := false, false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
		conflict = resp.StatusCode == http.StatusConflict
	}

	s.metrics.StatusChange.Record(latency, success, conflict)
}

func (s *Simulator) doAvailability(ctx context.Context, rng *rand.Rand) {
	start, _ := s.randomWindow(rng)
	s.get(ctx, &s.metrics.Availability, fmt.Sprintf("/availability?from=%s&site=%s",
		appointment.DateKey(start), randomSite(rng)))
}

func (s *Simulator) doWeekLayout(ctx context.Context, rng *rand.Rand) {
	start, _ := s.randomWindow(rng)
	s.get(ctx, &s.metrics.WeekLayout, fmt.Sprintf("/calendar/week?week_start=%s&days=7&site=all",
		appointment.DateKey(start)))
}

func (s *Simulator) doOccupancy(ctx context.Context, rng *rand.Rand) {
	site := "all"
	if rng.Intn(2) == 0 {
		site = string(randomSite(rng))
	}
	s.get(ctx, &s.metrics.Occupancy, "/occupancy?site="+site)
}

func (s *Simulator) get(ctx context.Context, om *OperationMetrics, path string) {
	began := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, s.config.APIBaseURL+path, nil)
	resp, err := s.client.Do(req)
	latency := time.Since(began)

	success := false
	if err == nil {
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)
		success = resp.StatusCode == http.StatusOK
	}

	om.Record(latency, success, false)
}

func (s *Simulator) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return s.client.Do(req)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Status change", &s.metrics.StatusChange)
	printOperationReport("Availability", &s.metrics.Availability)
	printOperationReport("Week layout", &s.metrics.WeekLayout)
	printOperationReport("Occupancy", &s.metrics.Occupancy)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
