package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jakechorley/volunteer-rota/pkg/core/services"
)

// ListAssignmentsCmd creates the listAssignments command
func ListAssignmentsCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "listAssignments <from> <to>",
		Short: "List the group's assignments between two dates (inclusive)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			groupID, err := requireGroup(app)
			if err != nil {
				return err
			}
			assignments, err := services.ListAssignments(app.Ctx, app.Database, app.CallerID, groupID, args[0], args[1])
			if err != nil {
				return err
			}
			names, err := memberNames(app, groupID)
			if err != nil {
				return err
			}

			if len(assignments) == 0 {
				fmt.Println("No assignments in range.")
				return nil
			}
			fmt.Printf("\nFound %d assignments:\n\n", len(assignments))
			for _, a := range assignments {
				fmt.Printf("  %s %s  %-20s (%s)\n", a.Date, a.TimeRange(), displayName(names, a.MemberID), a.ID)
			}
			fmt.Println()
			return nil
		},
	}
}

// AssignCmd creates the assign command
func AssignCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assign <member_id> <date>",
		Short: "Assign a member by hand to a slot (--slot) or a time range (--time)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			groupID, err := requireGroup(app)
			if err != nil {
				return err
			}
			slotID, _ := cmd.Flags().GetString("slot")
			timeFlag, _ := cmd.Flags().GetString("time")
			if (slotID == "") == (timeFlag == "") {
				return fmt.Errorf("give exactly one of --slot or --time")
			}

			req := services.CreateAssignmentRequest{
				CallerID: app.CallerID,
				GroupID:  groupID,
				MemberID: args[0],
				Date:     args[1],
				SlotID:   slotID,
			}
			if timeFlag != "" {
				timeRange, err := parseTimeRange(timeFlag)
				if err != nil {
					return err
				}
				req.Start, req.End = timeRange.Start, timeRange.End
			}

			assignment, err := services.CreateAssignment(app.Ctx, app.Database, app.Gateway, app.Logger, req, app.now())
			if err != nil {
				return err
			}
			fmt.Printf("✓ %s assigned on %s %s (ID: %s)\n", assignment.MemberID, assignment.Date, assignment.TimeRange(), assignment.ID)
			return nil
		},
	}

	cmd.Flags().String("slot", "", "Slot ID to assign to")
	cmd.Flags().String("time", "", "Time range HH:MM-HH:MM for an assignment outside any slot")

	return cmd
}

// UnassignCmd creates the unassign command
func UnassignCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "unassign <assignment_id>",
		Short: "Delete an assignment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := services.DeleteAssignment(app.Ctx, app.Database, app.Gateway, app.Logger, app.CallerID, args[0], app.now()); err != nil {
				return err
			}
			fmt.Printf("✓ Assignment %s deleted\n", args[0])
			return nil
		},
	}
}
