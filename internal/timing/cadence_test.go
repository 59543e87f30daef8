package timing

import (
	"testing"
	"time"
)

func startsEvery(base time.Time, gaps ...time.Duration) []time.Time {
	out := []time.Time{base}
	for _, g := range gaps {
		base = base.Add(g)
		out = append(out, base)
	}
	return out
}

func TestCalculate(t *testing.T) {
	base := time.Date(2024, time.March, 5, 14, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		starts     []time.Time
		target     time.Duration
		mean       time.Duration
		jitterMax  time.Duration
		onSchedule bool
	}{
		{"empty", nil, time.Second, 0, 0, false},
		{"single", startsEvery(base), time.Second, 0, 0, false},
		{"exact", startsEvery(base, time.Second, time.Second, time.Second), time.Second, time.Second, 0, true},
		{"late_frame", startsEvery(base, time.Second, 2*time.Second, time.Second), time.Second, 1333333333, time.Second, false},
		{"no_target_uses_mean", startsEvery(base, 100*time.Millisecond, 100*time.Millisecond), 0, 100 * time.Millisecond, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Calculate(tt.starts, tt.target)
			if c.Frames != len(tt.starts) {
				t.Errorf("frames = %d, want %d", c.Frames, len(tt.starts))
			}
			if d := c.Mean - tt.mean; d > time.Microsecond || d < -time.Microsecond {
				t.Errorf("mean = %v, want %v", c.Mean, tt.mean)
			}
			if d := c.JitterMax - tt.jitterMax; d > time.Microsecond || d < -time.Microsecond {
				t.Errorf("jitter max = %v, want %v", c.JitterMax, tt.jitterMax)
			}
			if c.OnSchedule != tt.onSchedule {
				t.Errorf("on schedule = %v, want %v (%+v)", c.OnSchedule, tt.onSchedule, c)
			}
		})
	}
}

func TestCalculate_MinMax(t *testing.T) {
	base := time.Date(2024, time.March, 5, 14, 0, 0, 0, time.UTC)
	c := Calculate(startsEvery(base, 2*time.Second, 4*time.Second), 3*time.Second)
	if c.Min != 2*time.Second || c.Max != 4*time.Second || c.StdDev != time.Second {
		t.Errorf("cadence = %+v, want min 2s max 4s stddev 1s", c)
	}
}

func TestRecorder_KeepsNewestInOrder(t *testing.T) {
	base := time.Date(2024, time.March, 5, 14, 0, 0, 0, time.UTC)
	r := NewRecorder(3)

	if got := r.Times(); len(got) != 0 {
		t.Fatalf("empty recorder returned %v", got)
	}
	for i := 0; i < 5; i++ {
		r.Add(base.Add(time.Duration(i) * time.Second))
	}

	got := r.Times()
	if len(got) != 3 {
		t.Fatalf("times = %d, want 3", len(got))
	}
	for i, want := range []int{2, 3, 4} {
		if !got[i].Equal(base.Add(time.Duration(want) * time.Second)) {
			t.Errorf("times[%d] = %v, want +%ds", i, got[i], want)
		}
	}
}
