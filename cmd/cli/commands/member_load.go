package commands

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-rota/pkg/core/services"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorDim    = "\033[2m"
)

// ViewMemberLoadCmd creates the viewMemberLoad command
func ViewMemberLoadCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "viewMemberLoad <count>",
		Short: "View how many assignments each member held over recent periods",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			count, err := strconv.Atoi(args[0])
			if err != nil || count < 1 {
				return fmt.Errorf("count must be a positive integer, got: %s", args[0])
			}
			groupID, err := requireGroup(app)
			if err != nil {
				return err
			}

			app.Logger.Debug("viewMemberLoad command", zap.Int("count", count))

			result, err := services.ViewMemberLoad(app.Ctx, app.Database, app.Cfg, app.Logger, app.CallerID, groupID, count, app.today())
			if err != nil {
				return err
			}

			renderMemberLoad(os.Stdout, result)
			return nil
		},
	}
}

// renderMemberLoad prints the load matrix with one row per member and one column per period
func renderMemberLoad(w io.Writer, result *services.MemberLoadResult) {
	fmt.Fprintf(w, "\nAssignments per member (last %d periods)\n\n", len(result.Periods))

	maxNameLen := 20
	for _, m := range result.Members {
		if len(m.DisplayName) > maxNameLen {
			maxNameLen = len(m.DisplayName)
		}
	}
	nameColWidth := maxNameLen + 2
	periodColWidth := 12

	fmt.Fprintf(w, "%-*s", nameColWidth, "")
	for _, p := range result.Periods {
		fmt.Fprintf(w, "%-*s", periodColWidth, p.Key)
	}
	fmt.Fprintf(w, "%s\n", "Total")

	fmt.Fprint(w, strings.Repeat("-", nameColWidth))
	for range result.Periods {
		fmt.Fprint(w, strings.Repeat("-", periodColWidth))
	}
	fmt.Fprintln(w, strings.Repeat("-", 5))

	for _, m := range result.Members {
		fmt.Fprintf(w, "%-*s", nameColWidth, m.DisplayName)
		for _, p := range result.Periods {
			load := result.Matrix[m.ID][p.Key]
			cell := strconv.Itoa(load.Count)
			if load.Cap > 0 {
				cell = fmt.Sprintf("%d/%d", load.Count, load.Cap)
			}
			color := loadColor(load, colorDim, colorGreen, colorYellow, colorRed)
			if color == "" {
				fmt.Fprintf(w, "%-*s", periodColWidth, cell)
			} else {
				fmt.Fprintf(w, "%s%-*s%s", color, periodColWidth, cell, colorReset)
			}
		}
		fmt.Fprintf(w, "%d\n", totalLoad(m.ID, result.Periods, result.Matrix))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Legend:")
	fmt.Fprintf(w, "  %sX/Y%s = X assignments, below half of the cap Y\n", colorGreen, colorReset)
	fmt.Fprintf(w, "  %sX/Y%s = at least half of the cap\n", colorYellow, colorReset)
	fmt.Fprintf(w, "  %sX/Y%s = at the cap, no more assignments this period\n", colorRed, colorReset)
	fmt.Fprintf(w, "  %s0%s   = no assignments\n", colorDim, colorReset)
}

// loadColor picks a cell color from how close the count is to the member's cap.
// Counts with no cap are left uncolored unless zero.
func loadColor(load services.PeriodLoad, none, low, mid, full string) string {
	switch {
	case load.Count == 0:
		return none
	case load.Cap == 0:
		return ""
	case load.AtCap():
		return full
	case load.Count*2 >= load.Cap:
		return mid
	default:
		return low
	}
}

// totalLoad sums a member's counts over the given periods
func totalLoad(memberID string, periods []services.MemberLoadPeriod, matrix map[string]map[string]services.PeriodLoad) int {
	total := 0
	for _, p := range periods {
		total += matrix[memberID][p.Key].Count
	}
	return total
}
