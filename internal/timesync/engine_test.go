package timesync

import (
	"math"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// probe simulates a symmetric exchange against a server whose clock leads
// the client's by trueOffset ms, with oneWay ms delay each direction.
func probe(e *Engine, clientNow, trueOffset, oneWay int64) Estimate {
	t1 := clientNow
	t2 := t1 + oneWay + trueOffset
	t3 := t2
	t4 := t1 + 2*oneWay

	return e.Ingest(t1, t2, t3, t4)
}

func TestOffsetConvergesToTrueOffset(t *testing.T) {
	e := New(clockwork.NewFakeClock())

	const trueOffset = 1234
	var est Estimate
	now := int64(0)
	for range windowSize {
		est = probe(e, now, trueOffset, 40)
		now += 100
	}

	assert.InDelta(t, float64(trueOffset), est.OffsetMs, 1)
	assert.InDelta(t, 40, est.LatencyMs, 0.001)
}

func TestOffsetErrorDecaysGeometrically(t *testing.T) {
	e := New(clockwork.NewFakeClock())

	// First probe snaps to offset 0, second sees a 100ms step that is
	// below the snap threshold and must be slewed at the 0.15 factor.
	e.Ingest(0, 20, 20, 40)
	est := e.Ingest(100, 215, 215, 130)

	// The min-rtt sample is the second one (rtt 30 < 40), so the target
	// jumped to 100 and one slew step covers 15% of the error.
	assert.InDelta(t, 100*slewFactor, est.OffsetMs, 0.001)

	est = e.Ingest(200, 315, 315, 230)
	assert.InDelta(t, 15+(100-15)*slewFactor, est.OffsetMs, 0.001)
}

func TestSnapOnLargeDiscontinuity(t *testing.T) {
	e := New(clockwork.NewFakeClock())

	probe(e, 0, 0, 10)
	// Reconnect against a clock 2s ahead; the new sample also carries the
	// window's minimum rtt, so it becomes the target and snaps.
	est := probe(e, 100, 2000, 5)

	assert.InDelta(t, 2000, est.OffsetMs, 0.001)
}

func TestJitterConstantRTTConvergesToZero(t *testing.T) {
	e := New(clockwork.NewFakeClock())

	var est Estimate
	now := int64(0)
	for range 200 {
		est = probe(e, now, 0, 25)
		now += 50
	}

	assert.InDelta(t, 0, est.JitterMs, 0.001)
}

func TestJitterAlternatingRTTFixedPoint(t *testing.T) {
	e := New(clockwork.NewFakeClock())

	const r1, r2 = 10, 50
	var est Estimate
	now := int64(0)
	for i := range 2000 {
		oneWay := int64(r1 / 2)
		if i%2 == 1 {
			oneWay = int64(r2 / 2)
		}
		est = probe(e, now, 0, oneWay)
		now += 50
	}

	// Every consecutive pair differs by |r1-r2|, so the EWMA settles at
	// the point where its increment vanishes.
	want := math.Abs(r1 - r2)
	assert.InDelta(t, want, est.JitterMs, 0.5)
}

func TestWindowEvictsOldestAtCapacity(t *testing.T) {
	e := New(clockwork.NewFakeClock())

	now := int64(0)
	for range 25 {
		probe(e, now, 0, 10)
		now += 10
	}

	require.Equal(t, windowSize, e.SampleCount())

	samples := e.Samples()
	// 25 probes at 10ms apart, rtt 20ms: receivedAt of the retained
	// oldest is the 6th probe's.
	assert.Equal(t, int64(5*10+20), samples[0].ReceivedAt)
	assert.Equal(t, int64(24*10+20), samples[len(samples)-1].ReceivedAt)
}

func TestDriftTracksOffsetSlope(t *testing.T) {
	e := New(clockwork.NewFakeClock())

	// Server clock gains 2ms per second relative to the client.
	var est Estimate
	now := int64(0)
	for i := range 20 {
		trueOffset := int64(1000 + 2*i)
		est = probe(e, now, trueOffset, 10)
		now += 1000
	}

	assert.InDelta(t, 2, est.DriftMsPerSec, 0.2)
}

func TestNegativeNetworkDelayClampedToZero(t *testing.T) {
	e := New(clockwork.NewFakeClock())

	// Server processing interval longer than the round trip can only come
	// from clock skew; rtt clamps at zero.
	est := e.Ingest(0, 100, 300, 100)
	assert.Equal(t, 0.0, est.LatencyMs)
}

func TestNowBeforeFirstProbeUsesZeroOffset(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.UnixMilli(5_000_000))
	e := New(clock)

	assert.Equal(t, int64(5_000_000), e.Now())

	probe(e, 5_000_000, 700, 10)
	assert.Equal(t, int64(5_000_700), e.Now())
}

func TestDeterministicTrajectory(t *testing.T) {
	run := func() []Estimate {
		e := New(clockwork.NewFakeClock())
		out := make([]Estimate, 0, 30)
		now := int64(0)
		for i := range 30 {
			out = append(out, probe(e, now, 500, int64(10+i%7)))
			now += 75
		}
		return out
	}

	assert.Equal(t, run(), run())
}
