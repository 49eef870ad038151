package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestManualSleepAdvancesAndRecords(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := NewManual(start)

	require.NoError(t, clk.Sleep(context.Background(), 7*time.Second))
	require.NoError(t, clk.Sleep(context.Background(), 9*time.Second))

	require.Equal(t, start.Add(16*time.Second), clk.Now())
	require.Equal(t, []time.Duration{7 * time.Second, 9 * time.Second}, clk.Sleeps())

	clk.ResetSleeps()
	require.Empty(t, clk.Sleeps())
}

func TestManualSleepHonoursCancelledContext(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := NewManual(start)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := clk.Sleep(ctx, time.Second)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, start, clk.Now())
	require.Empty(t, clk.Sleeps())
}

func TestManualOnSleepHook(t *testing.T) {
	clk := NewManual(time.Unix(0, 0))
	var seen []time.Duration
	clk.OnSleep(func(d time.Duration) { seen = append(seen, d) })

	require.NoError(t, clk.Sleep(context.Background(), time.Second))
	require.Equal(t, []time.Duration{time.Second}, seen)
}

func TestSystemSleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := System{}.Sleep(ctx, time.Hour)
	require.ErrorIs(t, err, context.Canceled)
}

func TestSystemSleepZero(t *testing.T) {
	require.NoError(t, System{}.Sleep(context.Background(), 0))
}
