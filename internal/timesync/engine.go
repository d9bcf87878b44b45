package timesync

import (
	"sync"

	"github.com/jonboulle/clockwork"
)

const (
	// windowSize bounds the probe sample ring; oldest samples are evicted.
	windowSize = 20
	// snapThresholdMs forces an immediate offset jump on startup and
	// reconnect discontinuities instead of slewing through them.
	snapThresholdMs = 500
	// slewFactor is the per-probe fraction of the remaining offset error
	// applied to the smoothed estimate.
	slewFactor = 0.15
	// jitterGain is the RFC 3550 interarrival jitter gain (1/16).
	jitterGain = 1.0 / 16.0
)

type Sample struct {
	RTTMs       float64
	RawOffsetMs float64
	ReceivedAt  int64
}

type Estimate struct {
	OffsetMs      float64
	LatencyMs     float64
	DriftMsPerSec float64
	JitterMs      float64
}

// Engine estimates authoritative time from round-trip probes. It lives for
// one session; a reconnect gets a fresh engine. Identical probe sequences
// always produce identical estimate trajectories.
type Engine struct {
	clock clockwork.Clock

	mu        sync.Mutex
	samples   []Sample
	offset    float64
	hasOffset bool
	jitter    float64
	lastRTT   float64
	hasRTT    bool
	drift     float64
}

func New(clock clockwork.Clock) *Engine {
	return &Engine{
		clock:   clock,
		samples: make([]Sample, 0, windowSize),
	}
}

// Ingest folds one two-way time transfer probe into the estimate.
// t1 = client send, t2 = server receive, t3 = server reply, t4 = client
// receive, all unix ms on their respective clocks.
func (e *Engine) Ingest(t1, t2, t3, t4 int64) Estimate {
	e.mu.Lock()
	defer e.mu.Unlock()

	networkDelay := float64((t4 - t1) - (t3 - t2))
	rtt := max(0, networkDelay)
	rawOffset := (float64(t2-t1) + float64(t3-t4)) / 2

	if len(e.samples) == windowSize {
		e.samples = e.samples[1:]
	}
	e.samples = append(e.samples, Sample{RTTMs: rtt, RawOffsetMs: rawOffset, ReceivedAt: t4})

	// Jitter accumulates over the whole session, not just the window.
	if e.hasRTT {
		d := rtt - e.lastRTT
		if d < 0 {
			d = -d
		}
		e.jitter += (d - e.jitter) * jitterGain
	}
	e.lastRTT = rtt
	e.hasRTT = true

	// The minimum-rtt sample in the window is the best one-way-delay
	// estimator; its raw offset is the smoothing target.
	best := e.samples[0]
	for _, s := range e.samples[1:] {
		if s.RTTMs < best.RTTMs {
			best = s
		}
	}

	target := best.RawOffsetMs
	diff := target - e.offset
	if !e.hasOffset || diff > snapThresholdMs || diff < -snapThresholdMs {
		e.offset = target
		e.hasOffset = true
	} else {
		e.offset += diff * slewFactor
	}

	oldest, newest := e.samples[0], e.samples[len(e.samples)-1]
	if span := float64(newest.ReceivedAt-oldest.ReceivedAt) / 1000; span > 1 {
		e.drift = (newest.RawOffsetMs - oldest.RawOffsetMs) / span
	}

	return e.estimate(best.RTTMs)
}

func (e *Engine) estimate(bestRTT float64) Estimate {
	return Estimate{
		OffsetMs:      e.offset,
		LatencyMs:     bestRTT / 2,
		DriftMsPerSec: e.drift,
		JitterMs:      e.jitter,
	}
}

func (e *Engine) Estimate() Estimate {
	e.mu.Lock()
	defer e.mu.Unlock()

	bestRTT := 0.0
	for i, s := range e.samples {
		if i == 0 || s.RTTMs < bestRTT {
			bestRTT = s.RTTMs
		}
	}

	return e.estimate(bestRTT)
}

// Now returns the estimated authoritative time in unix ms. Before the first
// probe the offset is zero; playback is never blocked on sync.
func (e *Engine) Now() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.clock.Now().UnixMilli() + int64(e.offset)
}

func (e *Engine) SampleCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.samples)
}

func (e *Engine) Samples() []Sample {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Sample, len(e.samples))
	copy(out, e.samples)

	return out
}
