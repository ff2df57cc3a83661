package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-rota/pkg/core/services"
)

// GenerateScheduleCmd creates the generateSchedule command
func GenerateScheduleCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generateSchedule <from> <to>",
		Short: "Propose a schedule for the group between two dates (inclusive)",
		Long: `Propose who fills each slot between two dates. Nothing is saved unless
--commit is given; a commit is rejected if assignments changed since the schedule was generated.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			groupID, err := requireGroup(app)
			if err != nil {
				return err
			}
			commit, _ := cmd.Flags().GetBool("commit")
			showReasoning, _ := cmd.Flags().GetBool("reasoning")

			app.Logger.Debug("generateSchedule command",
				zap.String("from", args[0]),
				zap.String("to", args[1]),
				zap.Bool("commit", commit))

			result, err := services.GenerateSchedule(app.Ctx, app.Database, app.Cfg, app.Logger, services.GenerateScheduleRequest{
				CallerID: app.CallerID,
				GroupID:  groupID,
				From:     args[0],
				To:       args[1],
			})
			if err != nil {
				return err
			}

			names, err := memberNames(app, groupID)
			if err != nil {
				return err
			}
			renderSchedule(os.Stdout, result, names)
			if showReasoning {
				fmt.Println("Reasoning:")
				fmt.Println(result.Reasoning)
			}

			if !commit {
				fmt.Println("Dry run: nothing saved. Re-run with --commit to save this schedule.")
				return nil
			}

			saved, err := services.CommitSchedule(app.Ctx, app.Database, app.Gateway, app.Logger, app.CallerID, result, app.now())
			if err != nil {
				printConflicts(err)
				return err
			}
			fmt.Printf("\n✓ Saved %d assignments\n", len(saved))
			return nil
		},
	}

	cmd.Flags().Bool("commit", false, "Save the generated schedule")
	cmd.Flags().Bool("reasoning", false, "Print the allocator's reasoning")

	return cmd
}

// memberNames maps member IDs to display names for the group
func memberNames(app *AppContext, groupID string) (map[string]string, error) {
	members, err := services.ListMembers(app.Ctx, app.Database, app.CallerID, groupID)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(members))
	for _, m := range members {
		names[m.ID] = m.DisplayName
	}
	return names, nil
}

// renderSchedule prints one line per slot-instance with the members picked for it
func renderSchedule(w io.Writer, result *services.ScheduleResult, names map[string]string) {
	fmt.Fprintf(w, "\nSchedule for %s to %s\n\n", result.From, result.To)

	for _, fill := range result.Fills {
		inst := fill.Instance
		label := fmt.Sprintf("%s %-9s %-20s %s", inst.Date, inst.Slot.DayOfWeek, inst.Slot.Label, inst.TimeRange())

		if inst.Closed {
			fmt.Fprintf(w, "%s%s  closed%s\n", colorDim, label, colorReset)
			continue
		}

		picked := make([]string, 0, inst.Capacity)
		for _, id := range fill.MemberIDs {
			picked = append(picked, displayName(names, id))
		}
		held := inst.Held
		for n := inst.Capacity - len(fill.MemberIDs); n > 0; n-- {
			picked = append(picked, colorRed+"(unfilled)"+colorReset)
		}

		line := fmt.Sprintf("%s  %s", label, strings.Join(picked, ", "))
		if held > 0 {
			line += fmt.Sprintf(" %s+%d already assigned%s", colorDim, held, colorReset)
		}
		fmt.Fprintln(w, line)
	}

	fmt.Fprintf(w, "\nFill ratio: %.0f%%\n", result.FillRatio*100)
	if result.IsPartial() {
		fmt.Fprintf(w, "%sSome slots could not be fully staffed.%s\n", colorYellow, colorReset)
	}
	for _, v := range result.ValidationErrors {
		fmt.Fprintf(w, "%s⚠️  %s%s\n", colorYellow, v.Error(), colorReset)
	}
	fmt.Fprintln(w)
}

func displayName(names map[string]string, id string) string {
	if name, ok := names[id]; ok && name != "" {
		return name
	}
	return id
}
