package support

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSLAHoursTable(t *testing.T) {
	require.EqualValues(t, 4, SLAHours("urgent"))
	require.EqualValues(t, 12, SLAHours("high"))
	require.EqualValues(t, 24, SLAHours("medium"))
	require.EqualValues(t, 48, SLAHours("low"))
	require.EqualValues(t, 24, SLAHours("whenever"))
	require.EqualValues(t, 24, SLAHours(""))
	require.EqualValues(t, 4, SLAHours(" URGENT "))
}

func TestComputeSLAOverdueAfterTarget(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	for _, priority := range []string{"urgent", "high", "medium", "low"} {
		sla := SLAHours(priority)
		created := now.Add(-time.Duration(sla+1) * time.Hour)
		st := ComputeSLA(priority, created, now)
		require.True(t, st.Overdue, priority)
		require.InDelta(t, -1, st.HoursRemaining, 1e-9, priority)
		require.True(t, st.Surfaced(), priority)
	}
}

func TestComputeSLASurfaceBoundary(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	// low priority (48h) created 24h ago leaves exactly 24h.
	exact := ComputeSLA("low", now.Add(-24*time.Hour), now)
	require.InDelta(t, 24, exact.HoursRemaining, 1e-9)
	require.True(t, exact.Surfaced())
	require.False(t, exact.Overdue)

	// medium (24h) created 1h ago leaves 23h.
	recent := ComputeSLA("medium", now.Add(-time.Hour), now)
	require.InDelta(t, 23, recent.HoursRemaining, 1e-9)
	require.True(t, recent.Surfaced())

	// low created 23h ago leaves 25h and stays off the queue.
	early := ComputeSLA("low", now.Add(-23*time.Hour), now)
	require.False(t, early.Surfaced())
}
