// Package gps defines the fix snapshot consumed by the EXIF builder and a
// provider contract modelled on gpsd's lock/read/unlock access.
package gps

import (
	"math"
	"sync"
	"time"
)

// Mode is the fix dimensionality.
type Mode int

const (
	ModeNotSeen Mode = iota
	ModeNoFix
	Mode2D
	Mode3D
)

// String returns the mode name
func (m Mode) String() string {
	switch m {
	case ModeNotSeen:
		return "not_seen"
	case ModeNoFix:
		return "no_fix"
	case Mode2D:
		return "2d"
	case Mode3D:
		return "3d"
	default:
		return "unknown"
	}
}

// SetFlag marks which Fix fields hold data.
type SetFlag uint32

const (
	TimeSet SetFlag = 1 << iota
	LatLonSet
	AltitudeSet
	SpeedSet
	TrackSet
)

// Fix holds the numeric fix fields. Unset numbers are NaN.
type Fix struct {
	Time      time.Time
	Latitude  float64
	Longitude float64
	Altitude  float64 // metres
	Speed     float64 // metres per second
	Track     float64 // degrees from true north
}

// Snapshot is a point-in-time view of the receiver.
type Snapshot struct {
	Online            bool
	Set               SetFlag
	Mode              Mode
	SatellitesUsed    int
	SatellitesVisible int
	Fix               Fix
}

// Has reports whether every bit in f is set.
func (s *Snapshot) Has(f SetFlag) bool {
	return s.Set&f == f
}

// NewSnapshot returns an offline snapshot with every numeric field unset.
func NewSnapshot() Snapshot {
	nan := math.NaN()
	return Snapshot{
		Mode: ModeNotSeen,
		Fix: Fix{
			Latitude:  nan,
			Longitude: nan,
			Altitude:  nan,
			Speed:     nan,
			Track:     nan,
		},
	}
}

// Provider exposes the current fix. The snapshot returned by Lock is only
// valid until Unlock.
type Provider interface {
	Lock() *Snapshot
	Unlock()
}

// Read copies the current snapshot out of p.
func Read(p Provider) Snapshot {
	s := p.Lock()
	defer p.Unlock()
	if s == nil {
		return NewSnapshot()
	}
	return *s
}

// Tracker is an in-memory Provider fed by Update.
type Tracker struct {
	mu   sync.Mutex
	snap Snapshot
}

// NewTracker returns a tracker holding an offline snapshot.
func NewTracker() *Tracker {
	return &Tracker{snap: NewSnapshot()}
}

// Lock implements Provider.
func (t *Tracker) Lock() *Snapshot {
	t.mu.Lock()
	return &t.snap
}

// Unlock implements Provider.
func (t *Tracker) Unlock() {
	t.mu.Unlock()
}

// Update applies fn to the snapshot under the tracker lock.
func (t *Tracker) Update(fn func(s *Snapshot)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.snap)
}

// Store replaces the snapshot.
func (t *Tracker) Store(s Snapshot) {
	t.Update(func(cur *Snapshot) { *cur = s })
}
