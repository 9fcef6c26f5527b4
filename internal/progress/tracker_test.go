package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestTracker_SteadyTransferScenario(t *testing.T) {
	const total = 104_857_600

	tr := NewTracker(Download, total, epoch)

	var snap Snapshot

	for i := 1; i <= 5; i++ {
		var ok bool

		snap, ok = tr.Update(int64(i)*10_000_000, epoch.Add(time.Duration(i)*500*time.Millisecond))
		require.True(t, ok, "sample %d should be accepted", i)
	}

	assert.InDelta(t, 47.68, snap.Percentage, 0.01)
	assert.InDelta(t, 20_000_000, snap.Speed, 0.001)
	assert.True(t, snap.ETAKnown)
	assert.InDelta(t, 2.743, snap.ETA.Seconds(), 0.001)
	assert.Equal(t, 2500*time.Millisecond, snap.Elapsed)
	assert.False(t, snap.Final)
}

func TestTracker_SubIntervalUpdatesDoNotSample(t *testing.T) {
	tr := NewTracker(Upload, 1000, epoch)

	snap, ok := tr.Update(100, epoch.Add(200*time.Millisecond))
	assert.False(t, ok)
	assert.Equal(t, int64(100), snap.CurrentBytes)
	assert.Zero(t, snap.Speed)
	assert.False(t, snap.ETAKnown, "no speed yet means ETA is still calculating")

	snap, ok = tr.Update(500, epoch.Add(600*time.Millisecond))
	require.True(t, ok)
	assert.InDelta(t, 500/0.6, snap.Speed, 0.001)

	// 0.1s later: bytes move, speed does not.
	snap, ok = tr.Update(550, epoch.Add(700*time.Millisecond))
	assert.False(t, ok)
	assert.Equal(t, int64(550), snap.CurrentBytes)
	assert.InDelta(t, 500/0.6, snap.Speed, 0.001)
}

func TestTracker_ClampsNonMonotonicAndOversizedSamples(t *testing.T) {
	tr := NewTracker(Download, 1000, epoch)

	tr.Update(600, epoch.Add(time.Second))

	snap, _ := tr.Update(400, epoch.Add(2*time.Second))
	assert.Equal(t, int64(600), snap.CurrentBytes)
	assert.Zero(t, tr.window.samples[1], "regression must not yield a negative speed")

	snap, ok := tr.Update(5000, epoch.Add(3*time.Second))
	require.True(t, ok)
	assert.Equal(t, int64(1000), snap.CurrentBytes)
	assert.Equal(t, 100.0, snap.Percentage)
	assert.True(t, snap.Final)
	assert.Equal(t, 2, tr.Clamped())
}

func TestTracker_PercentageMonotonicAndBounded(t *testing.T) {
	const total = 7_777

	tr := NewTracker(Download, total, epoch)
	samples := []int64{0, 10, 10, 300, 299, 4000, 4000, 7000, 9000, total}

	prev := -1.0

	for i, v := range samples {
		snap, _ := tr.Update(v, epoch.Add(time.Duration(i)*300*time.Millisecond))

		assert.GreaterOrEqual(t, snap.Percentage, prev)
		assert.GreaterOrEqual(t, snap.Percentage, 0.0)
		assert.LessOrEqual(t, snap.Percentage, 100.0)
		assert.GreaterOrEqual(t, snap.Speed, 0.0)

		prev = snap.Percentage
	}
}

func TestTracker_ETADecreasesAtConstantSpeed(t *testing.T) {
	const total = 10_000_000

	tr := NewTracker(Download, total, epoch)

	prev := time.Duration(1<<62 - 1)

	for i := 1; i <= 10; i++ {
		snap, ok := tr.Update(int64(i)*1_000_000, epoch.Add(time.Duration(i)*500*time.Millisecond))
		require.True(t, ok)
		require.True(t, snap.ETAKnown)

		assert.Less(t, snap.ETA, prev)

		prev = snap.ETA

		if i == 10 {
			assert.Zero(t, snap.ETA)
			assert.True(t, snap.Final)
		}
	}
}

func TestTracker_InstantCompletionIsFinal(t *testing.T) {
	tr := NewTracker(Download, 4096, epoch)

	snap, ok := tr.Update(4096, epoch.Add(10*time.Millisecond))
	require.True(t, ok, "a final snapshot is always emittable")
	assert.True(t, snap.Final)
	assert.Equal(t, 100.0, snap.Percentage)
	assert.True(t, snap.ETAKnown)
	assert.Zero(t, snap.ETA)
}

func TestTracker_UnknownTotal(t *testing.T) {
	tr := NewTracker(Upload, 0, epoch)

	snap, ok := tr.Update(2048, epoch.Add(time.Second))
	require.True(t, ok)
	assert.False(t, snap.PercentKnown())
	assert.False(t, snap.ETAKnown)
	assert.False(t, snap.Final)
	assert.InDelta(t, 2048, snap.Speed, 0.001)

	done := tr.Complete(epoch.Add(2 * time.Second))
	assert.True(t, done.Final)
	assert.Equal(t, int64(2048), done.CurrentBytes)
}

func TestTracker_WindowKeepsLastFive(t *testing.T) {
	tr := NewTracker(Download, 0, epoch)

	// Speeds 1000, 2000, ..., 7000 B/s over one-second samples.
	var current int64
	for i := 1; i <= 7; i++ {
		current += int64(i) * 1000
		tr.Update(current, epoch.Add(time.Duration(i)*time.Second))
	}

	assert.Equal(t, 5, tr.window.len())
	assert.InDelta(t, 5000, tr.Snapshot(epoch.Add(7*time.Second)).Speed, 0.001)
}
