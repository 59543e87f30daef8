package gps

import (
	"context"
	"errors"
	"log/slog"
	"time"

	gpsd "github.com/stratoberry/go-gpsd"
)

// DefaultGPSDAddr is gpsd's standard listen address.
const DefaultGPSDAddr = "127.0.0.1:2947"

// errStreamEnded is returned when gpsd closes the watch stream.
var errStreamEnded = errors.New("gps: gpsd stream ended")

// GPSD keeps a Tracker up to date from gpsd TPV and SKY reports.
type GPSD struct {
	*Tracker

	addr       string
	retryDelay time.Duration
	log        *slog.Logger
}

// NewGPSD creates a gpsd client for addr (host:port).
func NewGPSD(addr string, logger *slog.Logger) *GPSD {
	if addr == "" {
		addr = DefaultGPSDAddr
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GPSD{
		Tracker:    NewTracker(),
		addr:       addr,
		retryDelay: 2 * time.Second,
		log:        logger,
	}
}

// Run connects to gpsd and consumes reports until ctx is done, reconnecting
// after errors. The tracker is marked offline while disconnected.
func (g *GPSD) Run(ctx context.Context) error {
	for {
		err := g.session(ctx)
		g.Update(func(s *Snapshot) { s.Online = false })
		if ctx.Err() != nil {
			return nil
		}
		g.log.Warn("gps: gpsd session ended, retrying",
			"addr", g.addr,
			"error", err,
			"retry_in", g.retryDelay,
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(g.retryDelay):
		}
	}
}

// session runs one gpsd watch. Closing the connection on cancellation ends
// the library's reader, which then signals done.
func (g *GPSD) session(ctx context.Context) error {
	sess, err := gpsd.Dial(g.addr)
	if err != nil {
		return err
	}
	sess.AddFilter("TPV", g.onTPV)
	sess.AddFilter("SKY", g.onSKY)

	done := sess.Watch()
	g.log.Info("gps: connected to gpsd", "addr", g.addr)
	g.Update(func(s *Snapshot) { s.Online = true })

	select {
	case <-done:
		_ = sess.Close()
		return errStreamEnded
	case <-ctx.Done():
		_ = sess.Close()
		<-done
		return ctx.Err()
	}
}

func (g *GPSD) onTPV(r interface{}) {
	tpv, ok := r.(*gpsd.TPVReport)
	if !ok || tpv == nil {
		return
	}
	g.Update(func(s *Snapshot) { applyTPV(s, tpv) })
}

func (g *GPSD) onSKY(r interface{}) {
	sky, ok := r.(*gpsd.SKYReport)
	if !ok || sky == nil {
		return
	}
	g.Update(func(s *Snapshot) { applySKY(s, sky) })
}

// applyTPV replaces the fix. gpsd omits position fields it does not have,
// so their presence follows the fix mode.
func applyTPV(s *Snapshot, tpv *gpsd.TPVReport) {
	s.Online = true
	s.Mode = Mode(tpv.Mode)
	s.Set = 0
	s.Fix = NewSnapshot().Fix

	if !tpv.Time.IsZero() {
		s.Fix.Time = tpv.Time
		s.Set |= TimeSet
	}
	if s.Mode >= Mode2D {
		s.Fix.Latitude, s.Fix.Longitude = tpv.Lat, tpv.Lon
		s.Fix.Speed = tpv.Speed
		s.Fix.Track = tpv.Track
		s.Set |= LatLonSet | SpeedSet | TrackSet
	}
	if s.Mode == Mode3D {
		s.Fix.Altitude = tpv.Alt
		s.Set |= AltitudeSet
	}
}

func applySKY(s *Snapshot, sky *gpsd.SKYReport) {
	if sky.Satellites == nil {
		return
	}
	used := 0
	for _, sat := range sky.Satellites {
		if sat.Used {
			used++
		}
	}
	s.SatellitesVisible = len(sky.Satellites)
	s.SatellitesUsed = used
}
