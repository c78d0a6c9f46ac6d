package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/hackgods/clinic-calendar-engine/internal/appointment"
	"github.com/hackgods/clinic-calendar-engine/internal/config"
	"github.com/hackgods/clinic-calendar-engine/internal/db"
	"github.com/hackgods/clinic-calendar-engine/internal/scheduling"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "calendarctl",
		Short:         "Inspect clinic availability, calendar layout and occupancy",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("site", "all", "Clinic site: A, B or all")

	rootCmd.AddCommand(availabilityCmd())
	rootCmd.AddCommand(layoutCmd())
	rootCmd.AddCommand(occupancyCmd())
	rootCmd.AddCommand(sitesCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func availabilityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "availability",
		Short: "Print the slot partition for a date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			fromRaw, _ := cmd.Flags().GetString("from")
			toRaw, _ := cmd.Flags().GetString("to")
			slotMinutes, _ := cmd.Flags().GetInt("slot-minutes")

			return withService(cmd, func(ctx context.Context, svc *scheduling.Service, cfg config.Config, site appointment.Site) error {
				from, err := parseDate(fromRaw, cfg.Location)
				if err != nil {
					return err
				}
				to := from
				if toRaw != "" {
					if to, err = parseDate(toRaw, cfg.Location); err != nil {
						return err
					}
				}

				res, err := svc.Availability(ctx, scheduling.AvailabilityQuery{From: from, To: to, Site: site, SlotMinutes: slotMinutes})
				if err != nil {
					return err
				}
				return printJSON(map[string]any{
					"total_slots":    res.TotalSlots,
					"available":      len(res.Available),
					"occupied":       len(res.Occupied),
					"blocked":        len(res.Blocked),
					"occupancy_rate": res.OccupancyRate(),
					"slots":          res.Slots,
				})
			})
		},
	}
	cmd.Flags().String("from", time.Now().Format(appointment.DateLayout), "First date (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "Last date (YYYY-MM-DD), defaults to --from")
	cmd.Flags().Int("slot-minutes", 0, "Slot granularity override in minutes")
	return cmd
}

func layoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "layout",
		Short: "Print calendar grid positions for a week",
		RunE: func(cmd *cobra.Command, args []string) error {
			startRaw, _ := cmd.Flags().GetString("week-start")
			days, _ := cmd.Flags().GetInt("days")

			return withService(cmd, func(ctx context.Context, svc *scheduling.Service, cfg config.Config, site appointment.Site) error {
				start, err := parseDate(startRaw, cfg.Location)
				if err != nil {
					return err
				}
				positioned, err := svc.WeekLayout(ctx, start, days, site)
				if err != nil {
					return err
				}

				rows := make([]map[string]any, 0, len(positioned))
				for _, p := range positioned {
					rows = append(rows, map[string]any{
						"id":         p.Appointment.ID,
						"site":       p.Appointment.Site,
						"start":      p.Appointment.Start,
						"day_index":  p.DayIndex,
						"top":        p.Top,
						"height":     p.Height,
						"left":       p.Left,
						"width":      p.Width,
						"z_index":    p.ZIndex,
						"group_size": p.GroupSize,
					})
				}
				return printJSON(rows)
			})
		},
	}
	cmd.Flags().String("week-start", time.Now().Format(appointment.DateLayout), "First column date (YYYY-MM-DD)")
	cmd.Flags().Int("days", 7, "Number of day columns (1-31)")
	return cmd
}

func occupancyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "occupancy",
		Short: "Print occupancy statistics, streaks and predictions",
		RunE: func(cmd *cobra.Command, args []string) error {
			fromRaw, _ := cmd.Flags().GetString("heatmap-from")
			toRaw, _ := cmd.Flags().GetString("heatmap-to")

			return withService(cmd, func(ctx context.Context, svc *scheduling.Service, cfg config.Config, site appointment.Site) error {
				if fromRaw != "" && toRaw != "" {
					from, err := parseDate(fromRaw, cfg.Location)
					if err != nil {
						return err
					}
					to, err := parseDate(toRaw, cfg.Location)
					if err != nil {
						return err
					}
					days, err := svc.Heatmap(ctx, from, to, site)
					if err != nil {
						return err
					}
					return printJSON(days)
				}

				ix, err := svc.Occupancy(ctx, site)
				if err != nil {
					return err
				}
				return printJSON(ix.Snapshot())
			})
		},
	}
	cmd.Flags().String("heatmap-from", "", "Print a per-day heatmap starting at this date")
	cmd.Flags().String("heatmap-to", "", "Last heatmap date")
	return cmd
}

func sitesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sites",
		Short: "Compare occupancy across clinic sites",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, svc *scheduling.Service, _ config.Config, _ appointment.Site) error {
				summaries, err := svc.CompareSites(ctx)
				if err != nil {
					return err
				}
				return printJSON(summaries)
			})
		},
	}
}

// withService connects to Postgres and runs fn with a read-only service.
func withService(cmd *cobra.Command, fn func(ctx context.Context, svc *scheduling.Service, cfg config.Config, site appointment.Site) error) error {
	siteRaw, _ := cmd.Flags().GetString("site")
	site, err := appointment.ParseSite(siteRaw)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.WithApplicationName("calendarctl"), db.WithMaxConns(2))
	if err != nil {
		return err
	}
	defer pool.Close()

	svc := scheduling.NewService(appointment.NewPgRepository(pool), nil, cfg)
	return fn(ctx, svc, cfg, site)
}

func parseDate(raw string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(appointment.DateLayout, raw, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected YYYY-MM-DD, got %q", raw)
	}
	return d, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
