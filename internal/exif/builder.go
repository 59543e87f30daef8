package exif

import (
	"fmt"
	"math"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/gps"
)

// DefaultMake is written to IFD0.Make when no make is configured.
const DefaultMake = "RaspberryPi"

const (
	dateTimeLayout = "2006:01:02 15:04:05"
	gpsDateLayout  = "2006:01:02"
	mpsToKph       = 3.6
)

// gpsClearTags are emitted empty before a fix is written so no stale value
// survives from an earlier frame.
var gpsClearTags = []string{
	"GPS.GPSDateStamp",
	"GPS.GPSTimeStamp",
	"GPS.GPSMeasureMode",
	"GPS.GPSSatellites",
	"GPS.GPSLatitude",
	"GPS.GPSLatitudeRef",
	"GPS.GPSLongitude",
	"GPS.GPSLongitudeRef",
	"GPS.GPSAltitude",
	"GPS.GPSAltitudeRef",
	"GPS.GPSSpeed",
	"GPS.GPSSpeedRef",
	"GPS.GPSTrack",
	"GPS.GPSTrackRef",
}

// Options control what the builder emits.
type Options struct {
	CameraName  string
	Make        string
	GPS         bool
	MaxTags     int
	MaxUserTags int
	UserTags    []string
}

// Builder produces a fresh TagSet per frame.
type Builder struct {
	opts Options
	gps  gps.Provider
}

// NewBuilder returns a builder. provider may be nil when GPS is off.
func NewBuilder(opts Options, provider gps.Provider) *Builder {
	if opts.Make == "" {
		opts.Make = DefaultMake
	}
	if opts.MaxTags <= 0 {
		opts.MaxTags = DefaultMaxTags
	}
	if opts.MaxUserTags <= 0 || opts.MaxUserTags > MaxUserTags {
		opts.MaxUserTags = MaxUserTags
	}
	return &Builder{opts: opts, gps: provider}
}

// Build returns the tags for a frame captured now.
func (b *Builder) Build() *TagSet {
	return b.BuildAt(time.Now())
}

// BuildAt returns the tags for a frame captured at now (local time).
func (b *Builder) BuildAt(now time.Time) *TagSet {
	set := NewTagSet(b.opts.MaxTags)

	set.Add("IFD0.Model=RP_" + b.opts.CameraName)
	set.Add("IFD0.Make=" + b.opts.Make)

	stamp := now.Local().Format(dateTimeLayout)
	set.Add("EXIF.DateTimeDigitized=" + stamp)
	set.Add("EXIF.DateTimeOriginal=" + stamp)
	set.Add("IFD0.DateTime=" + stamp)

	if b.opts.GPS && b.gps != nil {
		addGPS(set, gps.Read(b.gps))
	}

	for i, tag := range b.opts.UserTags {
		if i >= b.opts.MaxUserTags {
			break
		}
		set.Add(tag)
	}
	return set
}

func addGPS(set *TagSet, s gps.Snapshot) {
	for _, key := range gpsClearTags {
		set.Add(key + "=")
	}
	if !s.Online {
		return
	}

	if s.Has(gps.TimeSet) && !s.Fix.Time.IsZero() {
		t := s.Fix.Time.Local()
		set.Add("GPS.GPSDateStamp=" + t.Format(gpsDateLayout))
		set.Addf("GPS.GPSTimeStamp=%d/1,%d/1,%d/1", t.Hour(), t.Minute(), t.Second())
	}

	if s.Mode < gps.Mode2D {
		return
	}

	if s.Mode >= gps.Mode3D {
		set.Add("GPS.GPSMeasureMode=3")
	} else {
		set.Add("GPS.GPSMeasureMode=2")
	}

	switch {
	case s.SatellitesUsed > 0 && s.SatellitesVisible > 0:
		set.Addf("GPS.GPSSatellites=Used:%d,Visible:%d", s.SatellitesUsed, s.SatellitesVisible)
	case s.SatellitesUsed > 0:
		set.Addf("GPS.GPSSatellites=Used:%d", s.SatellitesUsed)
	case s.SatellitesVisible > 0:
		set.Addf("GPS.GPSSatellites=Visible:%d", s.SatellitesVisible)
	}

	if s.Has(gps.LatLonSet) {
		addCoordinate(set, "GPS.GPSLatitude", s.Fix.Latitude, 'N', 'S')
		addCoordinate(set, "GPS.GPSLongitude", s.Fix.Longitude, 'E', 'W')
	}

	if s.Has(gps.AltitudeSet) && s.Mode >= gps.Mode3D && !math.IsNaN(s.Fix.Altitude) {
		set.Addf("GPS.GPSAltitude=%d/10", roundHalfUp(s.Fix.Altitude*10))
		set.Add("GPS.GPSAltitudeRef=0")
	}

	if s.Has(gps.SpeedSet) && !math.IsNaN(s.Fix.Speed) {
		set.Addf("GPS.GPSSpeed=%d/10", roundHalfUp(s.Fix.Speed*mpsToKph*10))
		set.Add("GPS.GPSSpeedRef=K")
	}

	if s.Has(gps.TrackSet) && !math.IsNaN(s.Fix.Track) {
		set.Addf("GPS.GPSTrack=%d/100", roundHalfUp(s.Fix.Track*100))
		set.Add("GPS.GPSTrackRef=T")
	}
}

func addCoordinate(set *TagSet, key string, deg float64, pos, neg byte) {
	if math.IsNaN(deg) {
		return
	}
	str, err := FormatDegrees(math.Abs(deg))
	if err != nil {
		return
	}
	ref := pos
	if deg < 0 {
		ref = neg
	}
	set.Add(key + "=" + str)
	set.Add(fmt.Sprintf("%sRef=%c", key, ref))
}

// roundHalfUp truncates v+0.5 toward zero.
func roundHalfUp(v float64) int {
	return int(v + 0.5)
}

// FormatDegrees renders a non-negative angle as EXIF rationals
// "deg/1,min/1,millisec/1000".
func FormatDegrees(deg float64) (string, error) {
	if math.IsNaN(deg) || deg < 0 || deg > 180 {
		return "", fmt.Errorf("exif: angle %v out of range [0, 180]", deg)
	}
	ms := int64(math.Round(deg * 3600 * 1000))
	d := ms / 3600000
	m := (ms % 3600000) / 60000
	s := ms % 60000
	return fmt.Sprintf("%d/1,%d/1,%d/1000", d, m, s), nil
}
