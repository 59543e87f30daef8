// Package timing measures how closely frames keep their schedule.
package timing

import (
	"math"
	"sync"
	"time"
)

// onScheduleThreshold is the largest mean jitter, as a fraction of the
// expected interval, for a run to count as on schedule.
const onScheduleThreshold = 0.20

// Cadence describes the intervals between consecutive frame starts.
type Cadence struct {
	// Frames is the number of frame starts measured
	Frames int
	// Target is the configured interval (0 = as fast as possible)
	Target time.Duration
	// Mean, StdDev, Min and Max of the measured intervals
	Mean   time.Duration
	StdDev time.Duration
	Min    time.Duration
	Max    time.Duration
	// JitterMean and JitterMax are deviations from the expected interval:
	// Target when set, Mean otherwise
	JitterMean time.Duration
	JitterMax  time.Duration
	// OnSchedule is true when the mean jitter stays under 20% of the
	// expected interval
	OnSchedule bool
}

// Calculate computes the cadence of starts (oldest first) against target.
func Calculate(starts []time.Time, target time.Duration) Cadence {
	c := Cadence{Frames: len(starts), Target: target}
	if len(starts) < 2 {
		return c
	}

	intervals := make([]float64, 0, len(starts)-1)
	for i := 1; i < len(starts); i++ {
		intervals = append(intervals, starts[i].Sub(starts[i-1]).Seconds())
	}

	var sum float64
	lo, hi := intervals[0], intervals[0]
	for _, v := range intervals {
		sum += v
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	mean := sum / float64(len(intervals))

	var sq float64
	for _, v := range intervals {
		sq += (v - mean) * (v - mean)
	}

	expected := mean
	if target > 0 {
		expected = target.Seconds()
	}
	var jitterSum, jitterMax float64
	for _, v := range intervals {
		j := math.Abs(v - expected)
		jitterSum += j
		jitterMax = math.Max(jitterMax, j)
	}
	jitterMean := jitterSum / float64(len(intervals))

	c.Mean = seconds(mean)
	c.StdDev = seconds(math.Sqrt(sq / float64(len(intervals))))
	c.Min = seconds(lo)
	c.Max = seconds(hi)
	c.JitterMean = seconds(jitterMean)
	c.JitterMax = seconds(jitterMax)
	c.OnSchedule = expected > 0 && jitterMean < expected*onScheduleThreshold
	return c
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Recorder keeps the most recent frame start times.
type Recorder struct {
	mu    sync.Mutex
	times []time.Time
	next  int
	full  bool
}

// NewRecorder returns a recorder holding up to n start times.
func NewRecorder(n int) *Recorder {
	if n < 2 {
		n = 2
	}
	return &Recorder{times: make([]time.Time, n)}
}

// Add records a frame start.
func (r *Recorder) Add(t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.times[r.next] = t
	r.next = (r.next + 1) % len(r.times)
	if r.next == 0 {
		r.full = true
	}
}

// Times returns the recorded starts, oldest first.
func (r *Recorder) Times() []time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		return append([]time.Time(nil), r.times[:r.next]...)
	}
	out := make([]time.Time, 0, len(r.times))
	out = append(out, r.times[r.next:]...)
	return append(out, r.times[:r.next]...)
}
