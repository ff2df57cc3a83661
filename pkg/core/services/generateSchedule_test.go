package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jakechorley/volunteer-rota/internal/config"
	"github.com/jakechorley/volunteer-rota/pkg/core/model"
	"github.com/jakechorley/volunteer-rota/pkg/db"
	"github.com/jakechorley/volunteer-rota/pkg/notify"
)

var mondayEvening = model.Slot{
	ID:        "mon",
	GroupID:   group,
	Label:     "Monday evening",
	DayOfWeek: time.Monday,
	Start:     evening,
	End:       lateNight,
	Capacity:  3,
}

// scheduleFixture has five members available every Monday evening with
// historical counts a=0, b=1, c=1, d=2, e=3
func scheduleFixture(t *testing.T) *fixture {
	t.Helper()
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.db.InsertSlot(ctx, &mondayEvening))

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		f.addMember(t, group, id, model.RoleMember)
		require.NoError(t, SetAvailability(ctx, f.db, f.logger, id, group, id, []model.AvailabilityMark{
			{DayOfWeek: time.Monday, Start: model.Clock(17 * 60), End: model.Clock(21 * 60), Available: true},
		}, now))
	}

	f.assign(t, "hb", group, "b", "2026-02-02", evening, lateNight)
	f.assign(t, "hc", group, "c", "2026-02-09", evening, lateNight)
	f.assign(t, "hd1", group, "d", "2026-02-02", evening, lateNight)
	f.assign(t, "hd2", group, "d", "2026-02-16", evening, lateNight)
	f.assign(t, "he1", group, "e", "2026-01-26", evening, lateNight)
	f.assign(t, "he2", group, "e", "2026-02-09", evening, lateNight)
	f.assign(t, "he3", group, "e", "2026-02-23", evening, lateNight)
	return f
}

func generate(t *testing.T, f *fixture, caller, from, to string) *ScheduleResult {
	t.Helper()
	result, err := GenerateSchedule(context.Background(), f.db, f.cfg, f.logger, GenerateScheduleRequest{
		CallerID: caller, GroupID: group, From: from, To: to,
	})
	require.NoError(t, err)
	return result
}

func assignedMembers(entries []ScheduleEntry, date string) []string {
	var members []string
	for _, e := range entries {
		if e.Date == date && e.Assigned {
			members = append(members, e.MemberID)
		}
	}
	return members
}

func TestGenerateSchedule_PicksLeastLoadedMembers(t *testing.T) {
	f := scheduleFixture(t)

	result := generate(t, f, "lead", "2026-03-02", "2026-03-02")

	assert.Equal(t, []string{"a", "b", "c"}, assignedMembers(result.Entries, "2026-03-02"))
	assert.Equal(t, 1.0, result.FillRatio)
	assert.False(t, result.IsPartial())
	assert.Empty(t, result.ValidationErrors)
	assert.Contains(t, result.Reasoning, "Filled 3 of 3 places across 1 slot-instances (100%).")
	for _, p := range result.Proposals {
		assert.Empty(t, p.ID)
		assert.Equal(t, "mon", p.SlotID)
	}

	// Nothing is saved until commit
	saved, err := f.db.ListAssignments(context.Background(), db.AssignmentFilter{From: "2026-03-01"})
	require.NoError(t, err)
	assert.Empty(t, saved)
}

func TestGenerateSchedule_IsDeterministic(t *testing.T) {
	f := scheduleFixture(t)

	first := generate(t, f, "lead", "2026-03-01", "2026-03-31")
	second := generate(t, f, "lead", "2026-03-01", "2026-03-31")

	assert.Equal(t, first.Entries, second.Entries)
	assert.Equal(t, first.Reasoning, second.Reasoning)
}

func TestGenerateSchedule_ReportsPartialFill(t *testing.T) {
	f := scheduleFixture(t)
	ctx := context.Background()
	for _, id := range []string{"c", "d", "e"} {
		_, err := SetPreference(ctx, f.db, f.logger, SetPreferenceRequest{
			CallerID: id, GroupID: group, MemberID: id, BlackoutDates: []string{"2026-03-02"},
		})
		require.NoError(t, err)
	}

	result := generate(t, f, "lead", "2026-03-02", "2026-03-02")

	assert.Equal(t, []string{"a", "b"}, assignedMembers(result.Entries, "2026-03-02"))
	assert.True(t, result.IsPartial())
	assert.InDelta(t, 2.0/3.0, result.FillRatio, 0.0001)
	require.Len(t, result.Entries, 3)
	assert.False(t, result.Entries[2].Assigned)
	assert.Empty(t, result.Entries[2].MemberID)
	assert.Contains(t, result.Reasoning, "Most common exclusion: blackout date.")
	assert.Contains(t, result.Reasoning, "Under-filled: Monday evening 2026-03-02 (2/3).")
}

func TestGenerateSchedule_RespectsOtherGroups(t *testing.T) {
	f := scheduleFixture(t)
	f.addMember(t, "choir", "a", model.RoleMember)
	f.assign(t, "choir1", "choir", "a", "2026-03-02", model.Clock(19*60), model.Clock(21*60))

	result := generate(t, f, "lead", "2026-03-02", "2026-03-02")

	assert.Equal(t, []string{"b", "c", "d"}, assignedMembers(result.Entries, "2026-03-02"))
}

func TestGenerateSchedule_CountsExistingAssignmentsAgainstCapacity(t *testing.T) {
	f := scheduleFixture(t)
	ctx := context.Background()
	_, err := CreateAssignment(ctx, f.db, notify.Discard{}, f.logger, CreateAssignmentRequest{
		CallerID: "lead", GroupID: group, MemberID: "e", SlotID: "mon", Date: "2026-03-02",
	}, now)
	require.NoError(t, err)

	result := generate(t, f, "lead", "2026-03-02", "2026-03-02")

	assert.Equal(t, []string{"a", "b"}, assignedMembers(result.Entries, "2026-03-02"))
	assert.Equal(t, 1, result.Held["mon@2026-03-02"])
	assert.False(t, result.IsPartial())
}

func TestGenerateSchedule_AppliesSlotOverrides(t *testing.T) {
	f := scheduleFixture(t)
	two := 2
	f.cfg.SlotOverrides = []config.SlotOverride{
		{RRule: "FREQ=YEARLY;BYMONTH=3;BYMONTHDAY=9", Closed: true},
		{RRule: "FREQ=MONTHLY;BYDAY=3MO", SlotLabel: "Monday evening", Capacity: &two},
		{RRule: "FREQ=WEEKLY;BYDAY=MO", SlotLabel: "Other slot", Capacity: &two},
	}

	result := generate(t, f, "lead", "2026-03-02", "2026-03-16")

	require.Len(t, result.Fills, 3)
	assert.Equal(t, 3, result.Fills[0].Instance.Capacity)
	assert.True(t, result.Fills[1].Instance.Closed)
	assert.Empty(t, result.Fills[1].MemberIDs)
	assert.Equal(t, 2, result.Fills[2].Instance.Capacity)

	var closed []ScheduleEntry
	for _, e := range result.Entries {
		if e.Closed {
			closed = append(closed, e)
		}
	}
	require.Len(t, closed, 1)
	assert.Equal(t, "2026-03-09", closed[0].Date)
}

func TestGenerateSchedule_UsesRequestSlots(t *testing.T) {
	f := scheduleFixture(t)
	req := GenerateScheduleRequest{
		CallerID: "lead", GroupID: group, From: "2026-03-02", To: "2026-03-02",
		Slots: []model.Slot{{Label: "Monday early", DayOfWeek: time.Monday, Start: evening, End: model.Clock(19 * 60), Capacity: 1}},
	}

	result, err := GenerateSchedule(context.Background(), f.db, f.cfg, f.logger, req)
	require.NoError(t, err)

	require.Len(t, result.Fills, 1)
	assert.Equal(t, "Monday early", result.Fills[0].Instance.Slot.Label)
	assert.NotEmpty(t, result.Fills[0].Instance.Slot.ID)
	assert.Equal(t, []string{"a"}, result.Fills[0].MemberIDs)
	assert.Empty(t, req.Slots[0].ID)
}

func TestGenerateSchedule_Errors(t *testing.T) {
	f := scheduleFixture(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		req     GenerateScheduleRequest
		wantErr error
	}{
		{
			name:    "caller is not a leader",
			req:     GenerateScheduleRequest{CallerID: "a", GroupID: group, From: "2026-03-02", To: "2026-03-02"},
			wantErr: ErrForbidden,
		},
		{
			name:    "caller not in group",
			req:     GenerateScheduleRequest{CallerID: "stranger", GroupID: group, From: "2026-03-02", To: "2026-03-02"},
			wantErr: ErrForbidden,
		},
		{
			name:    "end before start",
			req:     GenerateScheduleRequest{CallerID: "lead", GroupID: group, From: "2026-03-09", To: "2026-03-02"},
			wantErr: ErrInvalidDateRange,
		},
		{
			name:    "malformed date",
			req:     GenerateScheduleRequest{CallerID: "lead", GroupID: group, From: "02/03/2026", To: "2026-03-02"},
			wantErr: ErrInvalidDateRange,
		},
		{
			name:    "missing group",
			req:     GenerateScheduleRequest{CallerID: "lead", From: "2026-03-02", To: "2026-03-02"},
			wantErr: ErrInvalidRequest,
		},
		{
			name: "invalid slot",
			req: GenerateScheduleRequest{
				CallerID: "lead", GroupID: group, From: "2026-03-02", To: "2026-03-02",
				Slots: []model.Slot{{Label: "Backwards", DayOfWeek: time.Monday, Start: lateNight, End: evening, Capacity: 1}},
			},
			wantErr: ErrInvalidSlotDefinition,
		},
		{
			name: "zero capacity",
			req: GenerateScheduleRequest{
				CallerID: "lead", GroupID: group, From: "2026-03-02", To: "2026-03-02",
				Slots: []model.Slot{{Label: "Empty", DayOfWeek: time.Monday, Start: evening, End: lateNight}},
			},
			wantErr: ErrInvalidSlotDefinition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := GenerateSchedule(ctx, f.db, f.cfg, f.logger, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestGenerateSchedule_NoEligibleMembers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.db.InsertSlot(ctx, &mondayEvening))
	f.addMember(t, group, "a", model.RoleMember)

	_, err := GenerateSchedule(ctx, f.db, f.cfg, f.logger, GenerateScheduleRequest{
		CallerID: "lead", GroupID: group, From: "2026-03-02", To: "2026-03-09",
	})
	assert.ErrorIs(t, err, ErrNoEligibleMembers)
	assert.Contains(t, err.Error(), "no availability")
}

func TestGenerateSchedule_GroupWithoutSlots(t *testing.T) {
	f := newFixture(t)

	_, err := GenerateSchedule(context.Background(), f.db, f.cfg, f.logger, GenerateScheduleRequest{
		CallerID: "lead", GroupID: group, From: "2026-03-02", To: "2026-03-09",
	})
	assert.ErrorIs(t, err, ErrInvalidSlotDefinition)
}

func TestCommitSchedule_SavesAssignmentsAndNotifies(t *testing.T) {
	f := scheduleFixture(t)
	ctx := context.Background()
	result := generate(t, f, "lead", "2026-03-02", "2026-03-02")

	committed, err := CommitSchedule(ctx, f.db, f.gateway, f.logger, "lead", result, now)
	require.NoError(t, err)
	require.Len(t, committed, 3)

	saved, err := f.db.ListAssignments(ctx, db.AssignmentFilter{GroupID: group, From: "2026-03-02", To: "2026-03-02"})
	require.NoError(t, err)
	require.Len(t, saved, 3)
	for _, a := range saved {
		assert.NotEmpty(t, a.ID)
		assert.Equal(t, model.AssignmentConfirmed, a.Status)
		assert.Equal(t, now, a.CreatedAt)
	}

	require.Len(t, f.gateway.events, 3)
	for i, e := range f.gateway.events {
		assert.Equal(t, notify.EventAssignmentCreated, e.Type)
		assert.Equal(t, committed[i].MemberID, e.RecipientMemberID)
		assert.Equal(t, "18:00-20:00", e.Payload[notify.KeyTime])
	}
}

func TestCommitSchedule_ConcurrentLeadersSecondBatchRejected(t *testing.T) {
	f := scheduleFixture(t)
	f.addMember(t, group, "lead2", model.RoleLeader)
	ctx := context.Background()

	first := generate(t, f, "lead", "2026-03-02", "2026-03-02")
	second := generate(t, f, "lead2", "2026-03-02", "2026-03-02")

	_, err := CommitSchedule(ctx, f.db, f.gateway, f.logger, "lead", first, now)
	require.NoError(t, err)

	_, err = CommitSchedule(ctx, f.db, f.gateway, f.logger, "lead2", second, now)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAssignmentConflict)

	var batchErr *BatchConflictError
	require.True(t, errors.As(err, &batchErr))
	require.NotEmpty(t, batchErr.Conflicts)
	for _, c := range batchErr.Conflicts {
		assert.Equal(t, "mon", c.SlotID)
		assert.Equal(t, "2026-03-02", c.Date)
	}

	saved, err := f.db.ListAssignments(ctx, db.AssignmentFilter{GroupID: group, From: "2026-03-02", To: "2026-03-02"})
	require.NoError(t, err)
	assert.Len(t, saved, 3)
	assert.Equal(t, []string{"a", "b", "c"}, getMemberIDs(saved))
	assert.Len(t, f.gateway.events, 3)
}

func TestCommitSchedule_RejectsWholeBatchOnMemberConflict(t *testing.T) {
	f := scheduleFixture(t)
	ctx := context.Background()
	result := generate(t, f, "lead", "2026-03-02", "2026-03-09")

	// a takes an overlapping commitment elsewhere after generation
	f.addMember(t, "choir", "a", model.RoleMember)
	f.assign(t, "choir1", "choir", "a", "2026-03-09", model.Clock(19*60), model.Clock(21*60))

	_, err := CommitSchedule(ctx, f.db, f.gateway, f.logger, "lead", result, now)

	var batchErr *BatchConflictError
	require.True(t, errors.As(err, &batchErr))
	require.Len(t, batchErr.Conflicts, 1)
	assert.Equal(t, "2026-03-09", batchErr.Conflicts[0].Date)
	assert.Equal(t, "a", batchErr.Conflicts[0].MemberID)

	saved, err := f.db.ListAssignments(ctx, db.AssignmentFilter{GroupID: group, From: "2026-03-01"})
	require.NoError(t, err)
	assert.Empty(t, saved)
	assert.Empty(t, f.gateway.events)
}

func TestCommitSchedule_RequiresLeader(t *testing.T) {
	f := scheduleFixture(t)
	result := generate(t, f, "lead", "2026-03-02", "2026-03-02")

	_, err := CommitSchedule(context.Background(), f.db, f.gateway, f.logger, "a", result, now)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCommitSchedule_LocksGroupBeforeCheckingCapacity(t *testing.T) {
	f := scheduleFixture(t)
	result := generate(t, f, "lead", "2026-03-02", "2026-03-02")
	store := &recordingTxStore{DB: f.db}

	_, err := CommitSchedule(context.Background(), store, f.gateway, f.logger, "lead", result, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"group:" + group}, store.lockOrder())
}

func TestGenerateSchedule_FullyHeldRangeIsNotAnError(t *testing.T) {
	f := scheduleFixture(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		_, err := CreateAssignment(ctx, f.db, notify.Discard{}, f.logger, CreateAssignmentRequest{
			CallerID: "lead", GroupID: group, MemberID: id, SlotID: "mon", Date: "2026-03-02",
		}, now)
		require.NoError(t, err)
	}
	for _, id := range []string{"d", "e"} {
		_, err := SetPreference(ctx, f.db, f.logger, SetPreferenceRequest{
			CallerID: id, GroupID: group, MemberID: id, BlackoutDates: []string{"2026-03-02"},
		})
		require.NoError(t, err)
	}

	result := generate(t, f, "lead", "2026-03-02", "2026-03-02")

	assert.Empty(t, result.Proposals)
	assert.False(t, result.IsPartial())
	assert.Equal(t, 1.0, result.FillRatio)
	assert.Equal(t, 3, result.Held["mon@2026-03-02"])
	require.Len(t, result.Fills, 1)
	assert.Equal(t, 0, result.Fills[0].Instance.Capacity)
	assert.Equal(t, 3, result.Fills[0].Instance.Held)
	assert.Contains(t, result.Reasoning, "Filled 3 of 3 places across 1 slot-instances (100%). 3 already assigned before this run.")

	committed, err := CommitSchedule(ctx, f.db, f.gateway, f.logger, "lead", result, now)
	require.NoError(t, err)
	assert.Empty(t, committed)
}

func TestGenerateSchedule_HeldPlacesShowInFillRatio(t *testing.T) {
	f := scheduleFixture(t)
	ctx := context.Background()
	_, err := CreateAssignment(ctx, f.db, notify.Discard{}, f.logger, CreateAssignmentRequest{
		CallerID: "lead", GroupID: group, MemberID: "e", SlotID: "mon", Date: "2026-03-02",
	}, now)
	require.NoError(t, err)
	for _, id := range []string{"b", "c", "d"} {
		_, err := SetPreference(ctx, f.db, f.logger, SetPreferenceRequest{
			CallerID: id, GroupID: group, MemberID: id, BlackoutDates: []string{"2026-03-02"},
		})
		require.NoError(t, err)
	}

	result := generate(t, f, "lead", "2026-03-02", "2026-03-02")

	assert.Equal(t, []string{"a"}, assignedMembers(result.Entries, "2026-03-02"))
	assert.True(t, result.IsPartial())
	assert.InDelta(t, 2.0/3.0, result.FillRatio, 0.0001)
	assert.Contains(t, result.Reasoning, "Filled 2 of 3 places across 1 slot-instances (67%). 1 already assigned before this run.")
	assert.Contains(t, result.Reasoning, "Under-filled: Monday evening 2026-03-02 (2/3).")
}

// doorAndKitchen are two request slots at the same time with no IDs
func doorAndKitchen() []model.Slot {
	return []model.Slot{
		{Label: "Kitchen", DayOfWeek: time.Monday, Start: evening, End: lateNight, Capacity: 1},
		{Label: "Door", DayOfWeek: time.Monday, Start: evening, End: lateNight, Capacity: 1},
	}
}

func TestGenerateSchedule_RequestSlotsAreDeterministic(t *testing.T) {
	f := scheduleFixture(t)
	ctx := context.Background()

	run := func() *ScheduleResult {
		result, err := GenerateSchedule(ctx, f.db, f.cfg, f.logger, GenerateScheduleRequest{
			CallerID: "lead", GroupID: group, From: "2026-03-02", To: "2026-03-02", Slots: doorAndKitchen(),
		})
		require.NoError(t, err)
		return result
	}

	first := run()
	for i := 0; i < 5; i++ {
		again := run()
		assert.Equal(t, first.Entries, again.Entries)
		assert.Equal(t, first.Proposals, again.Proposals)
	}

	require.Len(t, first.Fills, 2)
	assert.Equal(t, "Door", first.Fills[0].Instance.Slot.Label)
	assert.Equal(t, []string{"a"}, first.Fills[0].MemberIDs)
	assert.Equal(t, "Kitchen", first.Fills[1].Instance.Slot.Label)
	// a is on the door at the same time
	assert.Equal(t, []string{"b"}, first.Fills[1].MemberIDs)
	assert.NotEqual(t, first.Fills[0].Instance.Slot.ID, first.Fills[1].Instance.Slot.ID)
}

func TestGenerateSchedule_RequestSlotReusesStoredSlotID(t *testing.T) {
	f := scheduleFixture(t)
	ctx := context.Background()
	_, err := CreateAssignment(ctx, f.db, notify.Discard{}, f.logger, CreateAssignmentRequest{
		CallerID: "lead", GroupID: group, MemberID: "e", SlotID: "mon", Date: "2026-03-02",
	}, now)
	require.NoError(t, err)

	same := mondayEvening
	same.ID = ""
	same.GroupID = ""
	result, err := GenerateSchedule(ctx, f.db, f.cfg, f.logger, GenerateScheduleRequest{
		CallerID: "lead", GroupID: group, From: "2026-03-02", To: "2026-03-02", Slots: []model.Slot{same},
	})
	require.NoError(t, err)

	require.Len(t, result.Fills, 1)
	assert.Equal(t, "mon", result.Fills[0].Instance.Slot.ID)
	assert.Equal(t, 1, result.Fills[0].Instance.Held)
	assert.Equal(t, []string{"a", "b"}, assignedMembers(result.Entries, "2026-03-02"))
}

func TestGenerateSchedule_RejectsDuplicateRequestSlots(t *testing.T) {
	f := scheduleFixture(t)
	slots := doorAndKitchen()
	slots[1].Label = "Kitchen"

	_, err := GenerateSchedule(context.Background(), f.db, f.cfg, f.logger, GenerateScheduleRequest{
		CallerID: "lead", GroupID: group, From: "2026-03-02", To: "2026-03-02", Slots: slots,
	})
	assert.ErrorIs(t, err, ErrInvalidSlotDefinition)
}
