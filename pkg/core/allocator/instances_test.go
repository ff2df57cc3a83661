package allocator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jakechorley/volunteer-rota/pkg/core/model"
)

func TestExpandSlotInstances(t *testing.T) {
	monday := model.Slot{ID: "mon", GroupID: "g1", Label: "Monday", DayOfWeek: time.Monday, Start: 600, End: 720, Capacity: 2}
	sunday := model.Slot{ID: "sun", GroupID: "g1", Label: "Sunday", DayOfWeek: time.Sunday, Start: 600, End: 720, Capacity: 1}

	instances, err := ExpandSlotInstances([]model.Slot{monday, sunday}, "2026-03-01", "2026-03-16", nil)
	require.NoError(t, err)

	var got []string
	for _, i := range instances {
		got = append(got, i.Key())
	}
	assert.Equal(t, []string{
		"sun@2026-03-01",
		"mon@2026-03-02",
		"sun@2026-03-08",
		"mon@2026-03-09",
		"sun@2026-03-15",
		"mon@2026-03-16",
	}, got)
}

func TestExpandSlotInstances_AppliesOverrides(t *testing.T) {
	monday := model.Slot{ID: "mon", GroupID: "g1", Label: "Monday", DayOfWeek: time.Monday, Start: 600, End: 720, Capacity: 2}
	other := model.Slot{ID: "other", GroupID: "g1", Label: "Other", DayOfWeek: time.Monday, Start: 800, End: 900, Capacity: 2}
	four := 4

	overrides := []SlotOverride{
		{AppliesTo: func(date string) bool { return date == "2026-03-09" }, Closed: true},
		{AppliesTo: func(date string) bool { return date >= "2026-03-16" }, SlotLabel: "Monday", Capacity: &four},
	}

	instances, err := ExpandSlotInstances([]model.Slot{monday, other}, "2026-03-02", "2026-03-23", overrides)
	require.NoError(t, err)
	require.Len(t, instances, 8)

	byKey := make(map[string]SlotInstance)
	for _, i := range instances {
		byKey[i.Key()] = i
	}
	assert.False(t, byKey["mon@2026-03-02"].Closed)
	assert.True(t, byKey["mon@2026-03-09"].Closed)
	assert.True(t, byKey["other@2026-03-09"].Closed)
	assert.Equal(t, 4, byKey["mon@2026-03-16"].Capacity)
	assert.Equal(t, 2, byKey["other@2026-03-16"].Capacity)
}

func TestExpandSlotInstances_InvalidInput(t *testing.T) {
	monday := model.Slot{ID: "mon", Label: "Monday", DayOfWeek: time.Monday, Start: 600, End: 720, Capacity: 1}

	_, err := ExpandSlotInstances([]model.Slot{monday}, "2026-03-10", "2026-03-01", nil)
	assert.Error(t, err)

	_, err = ExpandSlotInstances([]model.Slot{monday}, "not-a-date", "2026-03-01", nil)
	assert.Error(t, err)

	backwards := monday
	backwards.End = 500
	_, err = ExpandSlotInstances([]model.Slot{backwards}, "2026-03-01", "2026-03-10", nil)
	assert.Error(t, err)
}

func TestRankEligible(t *testing.T) {
	verdicts := []Eligibility{
		{MemberID: "d", Reason: ReasonBlackout},
		{MemberID: "c", Cost: 0.5, LastAssigned: "2026-01-01"},
		{MemberID: "b", Cost: -0.5, LastAssigned: "2026-02-01"},
		{MemberID: "a", Cost: -0.5, LastAssigned: "2026-01-15"},
		{MemberID: "e", Cost: -0.5},
		{MemberID: "f", Cost: -0.5},
	}

	ranked := RankEligible(verdicts)

	var ids []string
	for _, r := range ranked {
		ids = append(ids, r.MemberID)
	}
	assert.Equal(t, []string{"e", "f", "a", "b", "c"}, ids)
}

func TestPeriod(t *testing.T) {
	key, err := PeriodMonth.Key("2026-03-31")
	require.NoError(t, err)
	assert.Equal(t, "2026-03", key)

	key, err = PeriodWeek.Key("2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, "2026-W09", key)

	start, err := PeriodWeek.Start("2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, "2026-02-23", start)

	next, err := PeriodMonth.Next("2026-12-15")
	require.NoError(t, err)
	assert.Equal(t, "2027-01-01", next)

	assert.False(t, Period("fortnight").IsValid())
}
