package storage

import (
	"errors"
	"strings"
	"testing"

	"github.com/shirou/gopsutil/v3/disk"
)

func fixedUsage(free uint64, err error) UsageFunc {
	return func(path string) (*disk.UsageStat, error) {
		if err != nil {
			return nil, err
		}
		return &disk.UsageStat{Path: path, Free: free, UsedPercent: 42.5}, nil
	}
}

func TestPreflight_Run(t *testing.T) {
	tests := []struct {
		name     string
		minFree  uint64
		usage    UsageFunc
		passed   bool
		contains string
	}{
		{"enough_space", 1 << 20, fixedUsage(10<<20, nil), true, "10.0 MiB free"},
		{"too_little", 10 << 20, fixedUsage(1<<20, nil), false, "insufficient disk space"},
		{"no_threshold", 0, fixedUsage(0, nil), true, "0 B free"},
		{"usage_error", 0, fixedUsage(0, errors.New("no such device")), false, "failed to check disk space"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewPreflight("/data", tt.minFree).WithUsage(tt.usage).Run()
			if c.Passed != tt.passed {
				t.Errorf("passed = %v, want %v (%s)", c.Passed, tt.passed, c.Message)
			}
			if !strings.Contains(c.Message, tt.contains) {
				t.Errorf("message %q does not contain %q", c.Message, tt.contains)
			}
		})
	}
}

func TestPreflight_RealFilesystem(t *testing.T) {
	c := NewPreflight(t.TempDir(), 0).Run()
	if !c.Passed {
		t.Skipf("disk usage unavailable here: %s", c.Message)
	}
	t.Logf("✅ %s", c.Message)
}

func TestFormatBytes(t *testing.T) {
	for n, want := range map[uint64]string{0: "0 B", 1023: "1023 B", 1024: "1.0 KiB", 5 << 30: "5.0 GiB"} {
		if got := formatBytes(n); got != want {
			t.Errorf("formatBytes(%d) = %q, want %q", n, got, want)
		}
	}
}
