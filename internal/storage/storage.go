// Package storage checks that the output filesystem can take another frame
// before the capture loop opens a destination.
package storage

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/disk"
)

// UsageFunc reports usage for a path; disk.Usage in production.
type UsageFunc func(path string) (*disk.UsageStat, error)

// Check is the result of one preflight run.
type Check struct {
	Path        string
	Passed      bool
	FreeBytes   uint64
	UsedPercent float64
	Message     string
}

// Preflight verifies free space on the filesystem holding Dir.
type Preflight struct {
	Dir          string
	MinFreeBytes uint64
	usage        UsageFunc
}

// NewPreflight returns a preflight for dir. A zero minFree disables the
// free-space threshold but still verifies the path is readable.
func NewPreflight(dir string, minFree uint64) *Preflight {
	if dir == "" {
		dir = "."
	}
	return &Preflight{Dir: dir, MinFreeBytes: minFree, usage: disk.Usage}
}

// WithUsage replaces the usage source.
func (p *Preflight) WithUsage(fn UsageFunc) *Preflight {
	p.usage = fn
	return p
}

// Run checks the filesystem once.
func (p *Preflight) Run() Check {
	check := Check{Path: p.Dir}

	usage, err := p.usage(p.Dir)
	if err != nil {
		check.Message = fmt.Sprintf("failed to check disk space on %s: %v", p.Dir, err)
		return check
	}

	check.FreeBytes = usage.Free
	check.UsedPercent = usage.UsedPercent
	if usage.Free < p.MinFreeBytes {
		check.Message = fmt.Sprintf("insufficient disk space: %s free, minimum %s required",
			formatBytes(usage.Free), formatBytes(p.MinFreeBytes))
		return check
	}

	check.Passed = true
	check.Message = fmt.Sprintf("%s free on %s (%.1f%% used)", formatBytes(usage.Free), p.Dir, usage.UsedPercent)
	return check
}

// Err runs the check and turns a failure into an error.
func (p *Preflight) Err() error {
	if c := p.Run(); !c.Passed {
		return fmt.Errorf("storage: %s", c.Message)
	}
	return nil
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
