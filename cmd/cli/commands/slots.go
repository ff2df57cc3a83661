package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jakechorley/volunteer-rota/pkg/core/model"
	"github.com/jakechorley/volunteer-rota/pkg/core/services"
)

// DefineSlotCmd creates the defineSlot command
func DefineSlotCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "defineSlot <label> <day_of_week> <HH:MM-HH:MM> <capacity>",
		Short: "Define a weekly slot for the group",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			groupID, err := requireGroup(app)
			if err != nil {
				return err
			}
			day, err := parseWeekday(args[1])
			if err != nil {
				return err
			}
			timeRange, err := parseTimeRange(args[2])
			if err != nil {
				return err
			}
			capacity, err := strconv.Atoi(args[3])
			if err != nil {
				return fmt.Errorf("capacity must be a number: %w", err)
			}

			slot, err := services.DefineSlot(app.Ctx, app.Database, app.Logger, app.CallerID, model.Slot{
				GroupID:   groupID,
				Label:     args[0],
				DayOfWeek: day,
				Start:     timeRange.Start,
				End:       timeRange.End,
				Capacity:  capacity,
			})
			if err != nil {
				return err
			}

			fmt.Printf("\n✓ Slot defined!\n\n")
			fmt.Printf("Slot ID:  %s\n", slot.ID)
			fmt.Printf("When:     %s %s\n", slot.DayOfWeek, slot.TimeRange())
			fmt.Printf("Capacity: %d\n\n", slot.Capacity)
			return nil
		},
	}
}

// ListSlotsCmd creates the listSlots command
func ListSlotsCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "listSlots",
		Short: "List the group's slots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			groupID, err := requireGroup(app)
			if err != nil {
				return err
			}
			slots, err := services.ListSlots(app.Ctx, app.Database, groupID)
			if err != nil {
				return err
			}

			if len(slots) == 0 {
				fmt.Println("No slots defined.")
				return nil
			}
			fmt.Printf("\nFound %d slots:\n\n", len(slots))
			for _, s := range slots {
				fmt.Printf("- %-20s %-9s %s  x%d  (%s)\n", s.Label, s.DayOfWeek, s.TimeRange(), s.Capacity, s.ID)
			}
			fmt.Println()
			return nil
		},
	}
}

// DeleteSlotCmd creates the deleteSlot command
func DeleteSlotCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "deleteSlot <slot_id>",
		Short: "Delete a slot; saved assignments are kept",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := services.DeleteSlot(app.Ctx, app.Database, app.Logger, app.CallerID, args[0]); err != nil {
				return err
			}
			fmt.Printf("✓ Slot %s deleted\n", args[0])
			return nil
		},
	}
}

// MigrateCmd creates the migrate command
func MigrateCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Migrator.RunMigrations(app.Ctx); err != nil {
				return err
			}
			fmt.Println("✓ Database is up to date")
			return nil
		},
	}
}
