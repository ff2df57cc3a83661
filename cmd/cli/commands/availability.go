package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jakechorley/volunteer-rota/pkg/core/model"
	"github.com/jakechorley/volunteer-rota/pkg/core/services"
)

// MarkAvailabilityCmd creates the markAvailability command
func MarkAvailabilityCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "markAvailability <member_id> <date|day_of_week> [HH:MM-HH:MM]",
		Short: "Mark a member available or unavailable on a date or every week",
		Long: `Mark availability for a whole date (YYYY-MM-DD) or for a weekly time range,
e.g. "markAvailability m1 monday 17:00-21:00". Use --unavailable to mark the member unavailable.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			groupID, err := requireGroup(app)
			if err != nil {
				return err
			}
			unavailable, _ := cmd.Flags().GetBool("unavailable")

			mark, err := buildMark(args[1:], !unavailable)
			if err != nil {
				return err
			}

			err = services.SetAvailability(app.Ctx, app.Database, app.Logger, app.CallerID, groupID, args[0], []model.AvailabilityMark{mark}, app.now())
			if err != nil {
				return err
			}

			state := "available"
			if unavailable {
				state = "unavailable"
			}
			fmt.Printf("✓ %s marked %s on %s\n", args[0], state, describeMark(mark))
			return nil
		},
	}

	cmd.Flags().Bool("unavailable", false, "Mark the member unavailable")

	return cmd
}

// buildMark turns "<date>" or "<day_of_week> <HH:MM-HH:MM>" into a mark
func buildMark(args []string, available bool) (model.AvailabilityMark, error) {
	if _, err := model.ParseDate(args[0]); err == nil {
		if len(args) > 1 {
			return model.AvailabilityMark{}, fmt.Errorf("dated marks cover the whole day; drop the time range")
		}
		return model.AvailabilityMark{Date: args[0], Available: available}, nil
	}

	day, err := parseWeekday(args[0])
	if err != nil {
		return model.AvailabilityMark{}, fmt.Errorf("%q is neither a date nor a day of week", args[0])
	}
	if len(args) < 2 {
		return model.AvailabilityMark{}, fmt.Errorf("weekly marks need a time range, e.g. 17:00-21:00")
	}
	timeRange, err := parseTimeRange(args[1])
	if err != nil {
		return model.AvailabilityMark{}, err
	}
	return model.AvailabilityMark{
		DayOfWeek: day,
		Start:     timeRange.Start,
		End:       timeRange.End,
		Available: available,
	}, nil
}

func describeMark(m model.AvailabilityMark) string {
	if m.IsRecurring() {
		return fmt.Sprintf("%ss %s", m.DayOfWeek, m.TimeRange())
	}
	return m.Date
}

// SetPreferencesCmd creates the setPreferences command
func SetPreferencesCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setPreferences <member_id>",
		Short: "Set a member's scheduling limits and blackout dates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			groupID, err := requireGroup(app)
			if err != nil {
				return err
			}
			maxPerPeriod, _ := cmd.Flags().GetInt("max-per-period")
			minGap, _ := cmd.Flags().GetInt("min-days-between")
			blackouts, _ := cmd.Flags().GetStringSlice("blackout")

			pref, err := services.SetPreference(app.Ctx, app.Database, app.Logger, services.SetPreferenceRequest{
				CallerID:                  app.CallerID,
				GroupID:                   groupID,
				MemberID:                  args[0],
				MaxAssignmentsPerPeriod:   maxPerPeriod,
				MinDaysBetweenAssignments: minGap,
				BlackoutDates:             blackouts,
			})
			if err != nil {
				return err
			}

			fmt.Printf("\n✓ Preferences saved for %s\n\n", pref.MemberID)
			fmt.Printf("Max per %s:       %s\n", app.Cfg.Period, orDefault(pref.MaxAssignmentsPerPeriod, app.Cfg.DefaultMaxAssignmentsPerPeriod))
			fmt.Printf("Min days between: %s\n", orDefault(pref.MinDaysBetweenAssignments, app.Cfg.DefaultMinDaysBetweenAssignments))
			if len(pref.BlackoutDates) > 0 {
				fmt.Printf("Blackout dates:   %v\n", pref.BlackoutDates)
			}
			fmt.Println()
			return nil
		},
	}

	cmd.Flags().Int("max-per-period", 0, "Most assignments per period (0 uses the configured default)")
	cmd.Flags().Int("min-days-between", 0, "Fewest days between assignments (0 uses the configured default)")
	cmd.Flags().StringSlice("blackout", nil, "Dates the member cannot serve (YYYY-MM-DD, repeatable)")

	return cmd
}

func orDefault(value, fallback int) string {
	if value == 0 {
		return fmt.Sprintf("%d (default)", fallback)
	}
	return fmt.Sprintf("%d", value)
}
