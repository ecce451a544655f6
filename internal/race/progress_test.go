package race

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgress_CollectIsIdempotent(t *testing.T) {
	p := NewProgress()
	now := time.Now()

	assert.True(t, p.Collect(1, 10, now), "first crossing should collect")
	assert.False(t, p.Collect(1, 10, now), "repeat crossing should be a no-op")
	assert.False(t, p.Collect(1, 10, now.Add(time.Second)))

	assert.Equal(t, []uint16{10}, p.Collected(1))
	assert.True(t, p.Has(1, 10))
	assert.False(t, p.Has(1, 11))
	assert.False(t, p.Has(2, 10))
}

func TestProgress_CollectedIsSortedCopy(t *testing.T) {
	p := NewProgress()
	now := time.Now()

	p.Collect(1, 30, now)
	p.Collect(1, 10, now)
	p.Collect(1, 20, now)

	got := p.Collected(1)
	assert.Equal(t, []uint16{10, 20, 30}, got)

	got[0] = 99
	assert.Equal(t, []uint16{10, 20, 30}, p.Collected(1), "mutating the returned slice must not alter progress")
}

func TestProgress_IncompleteLapChangesNothing(t *testing.T) {
	p := NewProgress()
	now := time.Now()

	p.Collect(1, 10, now)

	_, ok := p.TryCompleteLap(1, []uint16{10, 11}, now.Add(time.Minute))
	assert.False(t, ok, "missing checkpoint 11")
	assert.Equal(t, []uint16{10}, p.Collected(1), "failed completion must not clear progress")

	_, ok = p.TryCompleteLap(1, []uint16{10, 11}, now.Add(2*time.Minute))
	assert.False(t, ok, "no partial credit accumulates across failed attempts")
}

func TestProgress_CompleteLapClearsAndTimes(t *testing.T) {
	p := NewProgress()
	start := time.Date(2026, 5, 3, 14, 0, 0, 0, time.UTC)

	p.Collect(1, 10, start)
	p.Collect(1, 11, start.Add(30*time.Second))

	dur, ok := p.TryCompleteLap(1, []uint16{10, 11}, start.Add(90*time.Second))
	require.True(t, ok)
	assert.Equal(t, 90*time.Second, dur, "lap clock arms at the first collection")
	assert.Empty(t, p.Collected(1), "completion clears the collection")

	// The next lap must recollect everything.
	_, ok = p.TryCompleteLap(1, []uint16{10, 11}, start.Add(2*time.Minute))
	assert.False(t, ok)
}

func TestProgress_StartFinishArmsLapClock(t *testing.T) {
	p := NewProgress()
	start := time.Date(2026, 5, 3, 14, 0, 0, 0, time.UTC)

	// Race start: the entity crosses start/finish with nothing collected.
	_, ok := p.TryCompleteLap(1, []uint16{10}, start)
	require.False(t, ok)

	armed, ok := p.LapStartedAt(1)
	require.True(t, ok)
	assert.Equal(t, start, armed)

	p.Collect(1, 10, start.Add(20*time.Second))
	dur, ok := p.TryCompleteLap(1, []uint16{10}, start.Add(65*time.Second))
	require.True(t, ok)
	assert.Equal(t, 65*time.Second, dur, "duration runs from the arming start/finish pass")
}

func TestProgress_CompletedLapRestartsClock(t *testing.T) {
	p := NewProgress()
	start := time.Date(2026, 5, 3, 14, 0, 0, 0, time.UTC)

	p.Collect(1, 10, start)
	_, ok := p.TryCompleteLap(1, []uint16{10}, start.Add(time.Minute))
	require.True(t, ok)

	p.Collect(1, 10, start.Add(80*time.Second))
	dur, ok := p.TryCompleteLap(1, []uint16{10}, start.Add(100*time.Second))
	require.True(t, ok)
	assert.Equal(t, 40*time.Second, dur, "second lap times from the previous completion")
}

func TestProgress_StaleCollectedIDsAreIgnored(t *testing.T) {
	p := NewProgress()
	now := time.Now()

	// Checkpoint 10 was collected, then removed from the layout. The lap is
	// judged against the surviving checkpoint only.
	p.Collect(1, 10, now)
	p.Collect(1, 11, now)

	dur, ok := p.TryCompleteLap(1, []uint16{11}, now.Add(time.Minute))
	require.True(t, ok)
	assert.Equal(t, time.Minute, dur)
}

func TestProgress_NoActiveRegularsMeansEveryPassCompletes(t *testing.T) {
	p := NewProgress()
	now := time.Now()

	dur, ok := p.TryCompleteLap(1, nil, now)
	require.True(t, ok, "a layout with only start/finish completes on every pass")
	assert.Equal(t, time.Duration(0), dur, "clock was never armed before the first pass")

	dur, ok = p.TryCompleteLap(1, nil, now.Add(45*time.Second))
	require.True(t, ok)
	assert.Equal(t, 45*time.Second, dur)
}

func TestProgress_Invalidate(t *testing.T) {
	p := NewProgress()
	now := time.Now()

	p.Collect(1, 10, now)
	p.Collect(1, 11, now)
	p.Collect(2, 10, now)

	p.Invalidate(10)

	assert.Equal(t, []uint16{11}, p.Collected(1))
	assert.Empty(t, p.Collected(2))
}

func TestProgress_ResetEntity(t *testing.T) {
	p := NewProgress()
	now := time.Now()

	p.Collect(1, 10, now)
	p.Collect(2, 10, now)

	p.ResetEntity(1)

	assert.Empty(t, p.Collected(1))
	_, armed := p.LapStartedAt(1)
	assert.False(t, armed)
	assert.Equal(t, []uint16{10}, p.Collected(2), "other entities keep their progress")
}

func TestProgress_Reset(t *testing.T) {
	p := NewProgress()
	now := time.Now()

	p.Collect(1, 10, now)
	p.Collect(2, 11, now)
	p.Reset()

	assert.Empty(t, p.Collected(1))
	assert.Empty(t, p.Collected(2))
	_, armed := p.LapStartedAt(1)
	assert.False(t, armed)
}
