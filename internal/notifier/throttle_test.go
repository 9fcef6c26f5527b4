package notifier

import (
	"testing"
	"time"

	"github.com/italolelis/transfer_monitor/internal/progress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func snap(current int64, final bool) progress.Snapshot {
	return progress.Snapshot{CurrentBytes: current, TotalBytes: 100, Final: final}
}

func TestThrottle_FirstSnapshotIsDue(t *testing.T) {
	th := NewThrottle(2 * time.Second)

	_, due := th.Offer(snap(1, false), epoch)
	assert.True(t, due)
}

func TestThrottle_AtMostOnePerInterval(t *testing.T) {
	th := NewThrottle(2 * time.Second)

	emitted := 0
	now := epoch

	// 40 offers every 250ms cover 10s of wall time.
	for i := 0; i < 40; i++ {
		if _, due := th.Offer(snap(int64(i), false), now); due {
			th.Delivered(now)
			emitted++
		}

		now = now.Add(250 * time.Millisecond)
	}

	assert.Equal(t, 5, emitted)
}

func TestThrottle_FinalAlwaysDue(t *testing.T) {
	th := NewThrottle(2 * time.Second)

	th.Offer(snap(10, false), epoch)
	th.Delivered(epoch)

	_, due := th.Offer(snap(50, false), epoch.Add(100*time.Millisecond))
	assert.False(t, due)

	final, due := th.Offer(snap(100, true), epoch.Add(200*time.Millisecond))
	assert.True(t, due)
	assert.True(t, final.Final)
}

func TestThrottle_PendingKeepsFreshest(t *testing.T) {
	th := NewThrottle(2 * time.Second)

	th.Offer(snap(1, false), epoch)
	th.Delivered(epoch)

	_, ok := th.Pending()
	assert.False(t, ok, "delivery clears pending")

	th.Offer(snap(20, false), epoch.Add(time.Second))
	th.Offer(snap(30, false), epoch.Add(1500*time.Millisecond))

	pending, ok := th.Pending()
	require.True(t, ok)
	assert.Equal(t, int64(30), pending.CurrentBytes)

	last, ok := th.LastEmit()
	require.True(t, ok)
	assert.Equal(t, epoch, last)

	th.Drop()

	_, ok = th.Pending()
	assert.False(t, ok)
}

func TestThrottle_DefaultInterval(t *testing.T) {
	th := NewThrottle(0)

	th.Offer(snap(1, false), epoch)
	th.Delivered(epoch)

	_, due := th.Offer(snap(2, false), epoch.Add(DefaultInterval-time.Millisecond))
	assert.False(t, due)

	_, due = th.Offer(snap(3, false), epoch.Add(DefaultInterval))
	assert.True(t, due)
}
