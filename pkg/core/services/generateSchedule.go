package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/teambition/rrule-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jakechorley/volunteer-rota/internal/config"
	"github.com/jakechorley/volunteer-rota/pkg/core/allocator"
	"github.com/jakechorley/volunteer-rota/pkg/core/allocator/criteria"
	"github.com/jakechorley/volunteer-rota/pkg/core/model"
	"github.com/jakechorley/volunteer-rota/pkg/db"
)

// GenerateScheduleStore defines the database operations needed to generate a schedule
type GenerateScheduleStore interface {
	MembershipReader
	ListGroupMembers(ctx context.Context, groupID string) ([]model.GroupMember, error)
	ListSlots(ctx context.Context, groupID string) ([]model.Slot, error)
	ListAvailabilityMarks(ctx context.Context, groupID, from, to string) ([]model.AvailabilityMark, error)
	ListPreferences(ctx context.Context, groupID string) ([]model.Preference, error)
	ListAssignments(ctx context.Context, filter db.AssignmentFilter) ([]model.Assignment, error)
}

// GenerateScheduleRequest asks for a proposed schedule for a group and date range
type GenerateScheduleRequest struct {
	CallerID string `validate:"required"`
	GroupID  string `validate:"required"`
	From     string `validate:"required"`
	To       string `validate:"required"`

	// Slots to fill; the group's stored slots are used when empty
	Slots []model.Slot
}

// ScheduleEntry is one place in the schedule. Unfilled places have no member.
type ScheduleEntry struct {
	Date     string
	Slot     model.Slot
	MemberID string
	Assigned bool
	Closed   bool
}

// ScheduleResult is a proposed schedule. Nothing in it has been saved.
type ScheduleResult struct {
	GroupID string
	From    string
	To      string

	Entries          []ScheduleEntry
	Proposals        []model.Assignment
	Fills            []allocator.InstanceFill
	Reasoning        string
	FillRatio        float64
	ValidationErrors []allocator.InstanceValidationError

	// Held counts places per instance key already taken by saved assignments
	// when the schedule was generated; they are not part of Capacity
	Held map[string]int
}

// IsPartial reports whether any open slot-instance is under-filled
func (r *ScheduleResult) IsPartial() bool {
	for _, f := range r.Fills {
		if f.IsPartial() {
			return true
		}
	}
	return false
}

type scheduleSnapshot struct {
	slots       []model.Slot
	members     []model.GroupMember
	marks       []model.AvailabilityMark
	preferences []model.Preference
	history     []model.Assignment
}

// GenerateSchedule proposes who fills each slot-instance between From and To.
// Only group leaders may generate schedules. Under-filled instances are part
// of the result, not an error; ErrNoEligibleMembers is returned only when no
// member can fill any open instance in the range.
func GenerateSchedule(
	ctx context.Context,
	store GenerateScheduleStore,
	cfg *config.Config,
	logger *zap.Logger,
	req GenerateScheduleRequest,
) (*ScheduleResult, error) {
	logger.Debug("Starting generateSchedule",
		zap.String("group_id", req.GroupID),
		zap.String("from", req.From),
		zap.String("to", req.To))

	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if err := validateDateRange(req.From, req.To); err != nil {
		return nil, err
	}
	req.Slots = append([]model.Slot(nil), req.Slots...)
	requestIDs := make(map[string]bool, len(req.Slots))
	for i := range req.Slots {
		req.Slots[i].GroupID = req.GroupID
		if req.Slots[i].ID == "" {
			req.Slots[i].ID = derivedSlotID(req.Slots[i])
		}
		if err := req.Slots[i].Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSlotDefinition, err)
		}
		if requestIDs[req.Slots[i].ID] {
			return nil, fmt.Errorf("%w: slot %s appears more than once", ErrInvalidSlotDefinition, req.Slots[i].ID)
		}
		requestIDs[req.Slots[i].ID] = true
	}

	if err := requireLeader(ctx, store, req.GroupID, req.CallerID); err != nil {
		return nil, err
	}

	snapshot, err := loadScheduleSnapshot(ctx, store, cfg, logger, req)
	if err != nil {
		return nil, err
	}
	if len(snapshot.slots) == 0 {
		return nil, fmt.Errorf("%w: group %s has no slots", ErrInvalidSlotDefinition, req.GroupID)
	}

	overrides, err := convertSlotOverrides(cfg.SlotOverrides, req.From, req.To, logger)
	if err != nil {
		return nil, err
	}

	instances, err := allocator.ExpandSlotInstances(snapshot.slots, req.From, req.To, overrides)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSlotDefinition, err)
	}
	logger.Debug("Expanded slot-instances", zap.Int("count", len(instances)))

	held := reserveHeldPlaces(instances, snapshot.history, req.GroupID)

	outcome, err := allocator.Allocate(allocator.AllocationConfig{
		GroupID:     req.GroupID,
		Instances:   instances,
		Members:     buildMemberProfiles(snapshot, cfg),
		Existing:    snapshot.history,
		Constraints: criteria.Default(),
		Period:      allocator.Period(cfg.Period),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to allocate: %w", err)
	}

	if hasOpenInstance(outcome.Fills) && outcome.EligibleMemberCount == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoEligibleMembers, outcome.Reasoning)
	}

	for _, v := range outcome.ValidationErrors {
		logger.Warn("Allocation validation error", zap.String("error", v.Error()))
	}

	result := &ScheduleResult{
		GroupID:          req.GroupID,
		From:             req.From,
		To:               req.To,
		Entries:          buildScheduleEntries(outcome.Fills),
		Proposals:        outcome.Proposals,
		Fills:            outcome.Fills,
		Reasoning:        outcome.Reasoning,
		FillRatio:        outcome.FillRatio,
		ValidationErrors: outcome.ValidationErrors,
		Held:             held,
	}

	logger.Info("Schedule generated",
		zap.String("group_id", req.GroupID),
		zap.Int("proposals", len(result.Proposals)),
		zap.Int("partial_fills", len(outcome.PartialFills)),
		zap.Float64("fill_ratio", result.FillRatio))

	return result, nil
}

// loadScheduleSnapshot fetches everything the allocator reads. Group data is
// fetched concurrently; commitments in other groups need the member list first.
func loadScheduleSnapshot(
	ctx context.Context,
	store GenerateScheduleStore,
	cfg *config.Config,
	logger *zap.Logger,
	req GenerateScheduleRequest,
) (*scheduleSnapshot, error) {
	historyFrom, err := model.AddMonths(req.From, -cfg.HistoryMonths)
	if err != nil {
		return nil, err
	}

	snapshot := &scheduleSnapshot{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Debug("Fetching slots")
		slots, err := store.ListSlots(gctx, req.GroupID)
		if err != nil {
			return fmt.Errorf("failed to fetch slots: %w", err)
		}
		snapshot.slots = slots
		return nil
	})
	g.Go(func() error {
		logger.Debug("Fetching group members")
		members, err := store.ListGroupMembers(gctx, req.GroupID)
		if err != nil {
			return fmt.Errorf("failed to fetch group members: %w", err)
		}
		snapshot.members = members
		return nil
	})
	g.Go(func() error {
		logger.Debug("Fetching availability marks")
		marks, err := store.ListAvailabilityMarks(gctx, req.GroupID, req.From, req.To)
		if err != nil {
			return fmt.Errorf("failed to fetch availability marks: %w", err)
		}
		snapshot.marks = marks
		return nil
	})
	g.Go(func() error {
		logger.Debug("Fetching preferences")
		prefs, err := store.ListPreferences(gctx, req.GroupID)
		if err != nil {
			return fmt.Errorf("failed to fetch preferences: %w", err)
		}
		snapshot.preferences = prefs
		return nil
	})
	g.Go(func() error {
		logger.Debug("Fetching assignment history", zap.String("from", historyFrom))
		history, err := store.ListAssignments(gctx, db.AssignmentFilter{GroupID: req.GroupID, From: historyFrom, To: req.To})
		if err != nil {
			return fmt.Errorf("failed to fetch assignment history: %w", err)
		}
		snapshot.history = history
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(req.Slots) > 0 {
		snapshot.slots = matchStoredSlots(req.Slots, snapshot.slots)
	}

	logger.Debug("Loaded group snapshot",
		zap.Int("slots", len(snapshot.slots)),
		zap.Int("members", len(snapshot.members)),
		zap.Int("marks", len(snapshot.marks)),
		zap.Int("preferences", len(snapshot.preferences)),
		zap.Int("history", len(snapshot.history)))

	if len(snapshot.members) == 0 {
		return snapshot, nil
	}

	memberIDs := make([]string, len(snapshot.members))
	for i, m := range snapshot.members {
		memberIDs[i] = m.ID
	}
	commitments, err := store.ListAssignments(ctx, db.AssignmentFilter{MemberIDs: memberIDs, From: req.From, To: req.To})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch member commitments: %w", err)
	}

	seen := make(map[string]bool, len(snapshot.history))
	for _, a := range snapshot.history {
		seen[a.ID] = true
	}
	for _, a := range commitments {
		if !seen[a.ID] {
			snapshot.history = append(snapshot.history, a)
		}
	}

	return snapshot, nil
}

// buildMemberProfiles combines members with their marks and preferences,
// filling unset limits from config
func buildMemberProfiles(snapshot *scheduleSnapshot, cfg *config.Config) []*allocator.MemberProfile {
	marksByMember := make(map[string][]model.AvailabilityMark)
	for _, mark := range snapshot.marks {
		marksByMember[mark.MemberID] = append(marksByMember[mark.MemberID], mark)
	}
	prefsByMember := make(map[string]model.Preference)
	for _, pref := range snapshot.preferences {
		prefsByMember[pref.MemberID] = pref
	}

	profiles := make([]*allocator.MemberProfile, 0, len(snapshot.members))
	for _, member := range snapshot.members {
		profile := &allocator.MemberProfile{
			MemberID:                  member.ID,
			Marks:                     marksByMember[member.ID],
			MaxAssignmentsPerPeriod:   cfg.DefaultMaxAssignmentsPerPeriod,
			MinDaysBetweenAssignments: cfg.DefaultMinDaysBetweenAssignments,
			BlackoutDates:             make(map[string]bool),
		}
		if pref, ok := prefsByMember[member.ID]; ok {
			if pref.MaxAssignmentsPerPeriod > 0 {
				profile.MaxAssignmentsPerPeriod = pref.MaxAssignmentsPerPeriod
			}
			if pref.MinDaysBetweenAssignments > 0 {
				profile.MinDaysBetweenAssignments = pref.MinDaysBetweenAssignments
			}
			for _, date := range pref.BlackoutDates {
				profile.BlackoutDates[date] = true
			}
		}
		profiles = append(profiles, profile)
	}
	return profiles
}

// convertSlotOverrides turns configured rrule overrides into date matchers.
// Occurrences are expanded once over the run, padded by a week each side.
func convertSlotOverrides(configOverrides []config.SlotOverride, from, to string, logger *zap.Logger) ([]allocator.SlotOverride, error) {
	start, err := model.ParseDate(from)
	if err != nil {
		return nil, err
	}
	end, err := model.ParseDate(to)
	if err != nil {
		return nil, err
	}
	searchStart := start.AddDate(0, 0, -7)
	searchEnd := end.AddDate(0, 0, 7)

	result := make([]allocator.SlotOverride, 0, len(configOverrides))
	for i, override := range configOverrides {
		rule, err := rrule.StrToRRule(override.RRule)
		if err != nil {
			return nil, fmt.Errorf("failed to parse rrule for override %d: %w", i, err)
		}
		rule.DTStart(searchStart)

		dates := make(map[string]bool)
		for _, occurrence := range rule.Between(searchStart, searchEnd, true) {
			dates[occurrence.Format(model.DateLayout)] = true
		}

		result = append(result, allocator.SlotOverride{
			AppliesTo: func(date string) bool { return dates[date] },
			SlotLabel: override.SlotLabel,
			Capacity:  override.Capacity,
			Closed:    override.Closed,
		})

		logger.Debug("Converted slot override",
			zap.Int("index", i),
			zap.String("rrule", override.RRule),
			zap.Int("matching_dates", len(dates)))
	}
	return result, nil
}

// reserveHeldPlaces reduces each instance's capacity by the group's saved
// assignments for it, returning how many places were already held
func reserveHeldPlaces(instances []allocator.SlotInstance, existing []model.Assignment, groupID string) map[string]int {
	held := make(map[string]int)
	for _, a := range existing {
		if a.GroupID == groupID && a.SlotID != "" {
			held[a.SlotID+"@"+a.Date]++
		}
	}
	for i := range instances {
		n := min(held[instances[i].Key()], instances[i].Capacity)
		instances[i].Capacity -= n
		instances[i].Held = n
	}
	return held
}

// hasOpenInstance reports whether any instance still has places to fill
func hasOpenInstance(fills []allocator.InstanceFill) bool {
	for _, f := range fills {
		if !f.Instance.Closed && f.Instance.Capacity > 0 {
			return true
		}
	}
	return false
}

// slotNamespace seeds the IDs of request slots given without one
var slotNamespace = uuid.MustParse("6f1c9a52-3e0b-4d5e-9a47-2b8d1c7e0f31")

func slotDefinitionKey(slot model.Slot) string {
	return fmt.Sprintf("%s|%d|%s|%s", slot.GroupID, slot.DayOfWeek, slot.TimeRange(), slot.Label)
}

// derivedSlotID names a slot by its definition so repeated runs over the
// same request slots produce the same instance keys
func derivedSlotID(slot model.Slot) string {
	return uuid.NewSHA1(slotNamespace, []byte(slotDefinitionKey(slot))).String()
}

// matchStoredSlots gives request slots without a caller-chosen ID the ID of
// the stored slot with the same definition, so saved assignments against
// that slot hold their places
func matchStoredSlots(requested, stored []model.Slot) []model.Slot {
	storedIDs := make(map[string]string, len(stored))
	for _, slot := range stored {
		storedIDs[slotDefinitionKey(slot)] = slot.ID
	}

	taken := make(map[string]bool, len(requested))
	for _, slot := range requested {
		taken[slot.ID] = true
	}

	result := make([]model.Slot, len(requested))
	for i, slot := range requested {
		key := slotDefinitionKey(slot)
		if id, ok := storedIDs[key]; ok && slot.ID == derivedSlotID(slot) && !taken[id] {
			delete(taken, slot.ID)
			slot.ID = id
			taken[id] = true
		}
		result[i] = slot
	}
	return result
}

// buildScheduleEntries lists every place in every instance, filled places first
func buildScheduleEntries(fills []allocator.InstanceFill) []ScheduleEntry {
	var entries []ScheduleEntry
	for _, f := range fills {
		if f.Instance.Closed {
			entries = append(entries, ScheduleEntry{Date: f.Instance.Date, Slot: f.Instance.Slot, Closed: true})
			continue
		}
		for _, memberID := range f.MemberIDs {
			entries = append(entries, ScheduleEntry{Date: f.Instance.Date, Slot: f.Instance.Slot, MemberID: memberID, Assigned: true})
		}
		for i := f.Filled(); i < f.Instance.Capacity; i++ {
			entries = append(entries, ScheduleEntry{Date: f.Instance.Date, Slot: f.Instance.Slot})
		}
	}
	return entries
}
