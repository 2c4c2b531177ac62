package contextutils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseDateBound_PlainDateStart(t *testing.T) {
	got, exclusive, err := ParseDateBound("2025-08-19", false)
	require.NoError(t, err)
	require.False(t, exclusive)
	require.Equal(t, time.Date(2025, 8, 19, 0, 0, 0, 0, time.UTC), got)
}

func TestParseDateBound_PlainDateEndIsExclusiveNextDay(t *testing.T) {
	got, exclusive, err := ParseDateBound("2025-08-19", true)
	require.NoError(t, err)
	require.True(t, exclusive)
	require.Equal(t, time.Date(2025, 8, 20, 0, 0, 0, 0, time.UTC), got)
}

func TestParseDateBound_RFC3339(t *testing.T) {
	got, exclusive, err := ParseDateBound("2025-08-19T10:30:00+02:00", true)
	require.NoError(t, err)
	require.False(t, exclusive)
	require.Equal(t, 8, got.UTC().Hour())
}

func TestParseDateBound_Invalid(t *testing.T) {
	_, _, err := ParseDateBound("19/08/2025", false)
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid date format")
}

func TestStartOfDayUTC(t *testing.T) {
	in := time.Date(2025, 1, 2, 23, 59, 0, 0, time.UTC)
	require.Equal(t, time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), StartOfDayUTC(in))
}
