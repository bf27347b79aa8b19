package pricing

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"omc-erp/internal/apperrors"
)

func TestBuildWindowID(t *testing.T) {
	cases := []struct {
		start time.Time
		want  string
	}{
		{time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), "2025-W01"},
		{time.Date(2025, 1, 14, 0, 0, 0, 0, time.UTC), "2025-W01"},
		{time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), "2025-W02"},
		{time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC), "2025-W27"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, BuildWindowID(tc.start), tc.start.String())
	}
}

func TestNewPricingWindowDefaults(t *testing.T) {
	now := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	w, err := NewPricingWindow(time.Date(2025, 1, 1, 9, 30, 0, 0, time.UTC), time.Time{}, "NPA/PBU/2025/01", now)
	require.NoError(t, err)
	assert.Equal(t, WindowDraft, w.Status)
	assert.Equal(t, time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), w.EndDate)
	assert.Equal(t, time.Date(2025, 1, 13, 17, 0, 0, 0, time.UTC), w.SubmissionDeadline)
}

func TestNewPricingWindowRejectsInvertedDates(t *testing.T) {
	start := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	_, err := NewPricingWindow(start, start.AddDate(0, 0, -1), "", start)
	assert.ErrorIs(t, err, ErrInvalidWindowDates)
}

func TestWindowTransitionsAreMonotonic(t *testing.T) {
	now := time.Now()
	w, err := NewPricingWindow(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), time.Time{}, "", now)
	require.NoError(t, err)

	assert.False(t, w.IsComputable())
	require.NoError(t, w.Activate(now))
	assert.True(t, w.IsComputable())
	require.NoError(t, w.Close(now))
	assert.True(t, w.IsComputable())
	require.NoError(t, w.Archive(now))
	assert.False(t, w.IsComputable())

	err = w.Activate(now)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidTransition))
}

func TestWindowOverlaps(t *testing.T) {
	now := time.Now()
	a, _ := NewPricingWindow(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), time.Time{}, "", now)
	b, _ := NewPricingWindow(time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), time.Time{}, "", now)
	c, _ := NewPricingWindow(time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC), time.Time{}, "", now)
	assert.False(t, a.Overlaps(b))
	assert.True(t, a.Overlaps(c))
	assert.True(t, c.Overlaps(b))
}
