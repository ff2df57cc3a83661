package commands

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jakechorley/volunteer-rota/pkg/core/model"
	"github.com/jakechorley/volunteer-rota/pkg/core/services"
)

// parseWeekday accepts full or three-letter day names in any case
func parseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown day of week %q", s)
}

// parseTimeRange parses "HH:MM-HH:MM"
func parseTimeRange(s string) (model.TimeRange, error) {
	start, end, ok := strings.Cut(s, "-")
	if !ok {
		return model.TimeRange{}, fmt.Errorf("time range %q must look like 18:00-20:00", s)
	}
	startClock, err := model.ParseClock(strings.TrimSpace(start))
	if err != nil {
		return model.TimeRange{}, err
	}
	endClock, err := model.ParseClock(strings.TrimSpace(end))
	if err != nil {
		return model.TimeRange{}, err
	}
	r := model.TimeRange{Start: startClock, End: endClock}
	if !r.IsValid() {
		return model.TimeRange{}, fmt.Errorf("time range %s must start before it ends", r)
	}
	return r, nil
}

// requireGroup returns the --group flag or an error if it was not given
func requireGroup(app *AppContext) (string, error) {
	if app.GroupID == "" {
		return "", fmt.Errorf("--group is required for this command")
	}
	return app.GroupID, nil
}

// printConflicts lists the instances a schedule commit could not save
func printConflicts(err error) {
	var batchErr *services.BatchConflictError
	if !errors.As(err, &batchErr) {
		return
	}
	fmt.Printf("\n✗ Schedule not saved, %d conflict(s):\n", len(batchErr.Conflicts))
	for _, c := range batchErr.Conflicts {
		fmt.Printf("  - %s\n", c)
	}
	fmt.Println("Generate the schedule again to pick up the latest assignments.")
}
