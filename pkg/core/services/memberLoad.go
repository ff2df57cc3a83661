package services

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jakechorley/volunteer-rota/internal/config"
	"github.com/jakechorley/volunteer-rota/pkg/core/allocator"
	"github.com/jakechorley/volunteer-rota/pkg/core/model"
	"github.com/jakechorley/volunteer-rota/pkg/db"
)

// PeriodLoad is a member's assignment count for one period
type PeriodLoad struct {
	Count int
	Cap   int // 0 means unlimited
}

// AtCap reports whether the member could take no more assignments in the period
func (l PeriodLoad) AtCap() bool {
	return l.Cap > 0 && l.Count >= l.Cap
}

// MemberLoadPeriod is one column of the load matrix
type MemberLoadPeriod struct {
	Key   string // e.g. "2026-03" or "2026-W10"
	Start string
	End   string
}

// MemberLoadResult contains assignment counts per member per period for display
type MemberLoadResult struct {
	Periods []MemberLoadPeriod               // oldest first, last is the current period
	Members []model.GroupMember              // sorted by display name
	Matrix  map[string]map[string]PeriodLoad // [memberID][periodKey]
}

// MemberLoadStore defines the database operations needed to view member load
type MemberLoadStore interface {
	MembershipReader
	ListGroupMembers(ctx context.Context, groupID string) ([]model.GroupMember, error)
	ListPreferences(ctx context.Context, groupID string) ([]model.Preference, error)
	ListAssignments(ctx context.Context, filter db.AssignmentFilter) ([]model.Assignment, error)
}

// ViewMemberLoad summarises how many assignments each group member has held
// in each of the last count periods, ending with the period containing today
func ViewMemberLoad(
	ctx context.Context,
	store MemberLoadStore,
	cfg *config.Config,
	logger *zap.Logger,
	callerID, groupID string,
	count int,
	today string,
) (*MemberLoadResult, error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: period count must be positive, got %d", ErrInvalidRequest, count)
	}
	if _, err := requireMember(ctx, store, groupID, callerID); err != nil {
		return nil, err
	}

	logger.Debug("Starting viewMemberLoad", zap.String("group_id", groupID), zap.Int("count", count))

	periods, err := recentPeriods(allocator.Period(cfg.Period), today, count)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDateRange, err)
	}

	var members []model.GroupMember
	var prefs []model.Preference
	var assignments []model.Assignment

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if members, err = store.ListGroupMembers(gctx, groupID); err != nil {
			return fmt.Errorf("failed to fetch group members: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if prefs, err = store.ListPreferences(gctx, groupID); err != nil {
			return fmt.Errorf("failed to fetch preferences: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		filter := db.AssignmentFilter{GroupID: groupID, From: periods[0].Start, To: periods[len(periods)-1].End}
		if assignments, err = store.ListAssignments(gctx, filter); err != nil {
			return fmt.Errorf("failed to fetch assignments: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	logger.Debug("Found member load inputs",
		zap.Int("members", len(members)),
		zap.Int("assignments", len(assignments)))

	caps := make(map[string]int)
	for _, m := range members {
		caps[m.ID] = cfg.DefaultMaxAssignmentsPerPeriod
	}
	for _, p := range prefs {
		if p.MaxAssignmentsPerPeriod > 0 {
			caps[p.MemberID] = p.MaxAssignmentsPerPeriod
		}
	}

	matrix := make(map[string]map[string]PeriodLoad, len(members))
	for _, m := range members {
		matrix[m.ID] = make(map[string]PeriodLoad, len(periods))
		for _, p := range periods {
			matrix[m.ID][p.Key] = PeriodLoad{Cap: caps[m.ID]}
		}
	}

	period := allocator.Period(cfg.Period)
	for _, a := range assignments {
		row, ok := matrix[a.MemberID]
		if !ok {
			continue
		}
		key, err := period.Key(a.Date)
		if err != nil {
			return nil, err
		}
		if load, ok := row[key]; ok {
			load.Count++
			row[key] = load
		}
	}

	sort.Slice(members, func(i, j int) bool {
		if members[i].DisplayName != members[j].DisplayName {
			return members[i].DisplayName < members[j].DisplayName
		}
		return members[i].ID < members[j].ID
	})

	return &MemberLoadResult{Periods: periods, Members: members, Matrix: matrix}, nil
}

// recentPeriods returns the count periods ending with the one containing today, oldest first
func recentPeriods(period allocator.Period, today string, count int) ([]MemberLoadPeriod, error) {
	if !period.IsValid() {
		return nil, fmt.Errorf("unknown period %q", period)
	}

	periods := make([]MemberLoadPeriod, count)
	date := today
	for i := count - 1; i >= 0; i-- {
		start, err := period.Start(date)
		if err != nil {
			return nil, err
		}
		next, err := period.Next(date)
		if err != nil {
			return nil, err
		}
		key, _ := period.Key(start)
		nextDay, _ := model.ParseDate(next)
		periods[i] = MemberLoadPeriod{
			Key:   key,
			Start: start,
			End:   nextDay.AddDate(0, 0, -1).Format(model.DateLayout),
		}

		startDay, _ := model.ParseDate(start)
		date = startDay.AddDate(0, 0, -1).Format(model.DateLayout)
	}
	return periods, nil
}
