package commands

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMark_Dated(t *testing.T) {
	mark, err := buildMark([]string{"2026-03-02"}, false)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-02", mark.Date)
	assert.False(t, mark.Available)
	assert.Equal(t, "2026-03-02", describeMark(mark))

	_, err = buildMark([]string{"2026-03-02", "18:00-20:00"}, true)
	assert.Error(t, err)
}

func TestBuildMark_Recurring(t *testing.T) {
	mark, err := buildMark([]string{"mon", "17:00-21:00"}, true)
	require.NoError(t, err)
	assert.True(t, mark.IsRecurring())
	assert.Equal(t, time.Monday, mark.DayOfWeek)
	assert.True(t, mark.Available)
	assert.Equal(t, "Mondays 17:00-21:00", describeMark(mark))

	_, err = buildMark([]string{"monday"}, true)
	assert.Error(t, err)

	_, err = buildMark([]string{"someday", "17:00-21:00"}, true)
	assert.Error(t, err)
}

func TestOrDefault(t *testing.T) {
	assert.Equal(t, "4 (default)", orDefault(0, 4))
	assert.Equal(t, "2", orDefault(2, 4))
}
