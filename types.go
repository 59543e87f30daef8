package stillcapture

import (
	"log/slog"
	"strings"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/gps"
	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/naming"
	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/pipeline"
	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/timing"
)

// Capability is a feature of the capture pipeline that can be switched on
// or off without changing the pipeline itself.
type Capability uint32

const (
	// CapEXIF embeds metadata tags in every frame
	CapEXIF Capability = 1 << iota
	// CapGPS adds GPS tags from the configured provider (requires CapEXIF)
	CapGPS
	// CapThumbnail embeds a thumbnail in the encoded image
	CapThumbnail
)

// DefaultCapabilities is the usual set: EXIF and thumbnail, no GPS.
const DefaultCapabilities = CapEXIF | CapThumbnail

// Has reports whether every flag in f is set.
func (c Capability) Has(f Capability) bool {
	return c&f == f
}

// String returns the set flags joined with "|"
func (c Capability) String() string {
	var names []string
	if c.Has(CapEXIF) {
		names = append(names, "exif")
	}
	if c.Has(CapGPS) {
		names = append(names, "gps")
	}
	if c.Has(CapThumbnail) {
		names = append(names, "thumbnail")
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// Config configures a capture session.
type Config struct {
	// CameraNum selects the physical camera
	CameraNum int
	// CameraName is written to IFD0.Model; empty uses the sensor name
	CameraName string
	// SensorMode selects a sensor readout mode (0 = automatic)
	SensorMode int
	// Width and Height of the still; 0 uses the sensor maximum
	Width  int
	Height int
	// ShutterSpeed in microseconds, re-applied before every frame (0 = auto)
	ShutterSpeed uint32

	// Encoding of the output image (default JPEG)
	Encoding pipeline.Encoding
	// Quality is the JPEG quality, 1-100 (default 85)
	Quality int
	// RestartInterval in MCUs (0 = encoder default)
	RestartInterval int
	// Thumbnail geometry; used only with CapThumbnail
	Thumbnail pipeline.Thumbnail

	// Naming decides where frames are written and how they are numbered
	Naming naming.Policy
	// MinFreeBytes is the free space required before each frame (0 = no check)
	MinFreeBytes uint64

	// Count is the number of frames Run captures (0 = until cancelled)
	Count int
	// Interval between frame starts in Run (timelapse)
	Interval time.Duration
	// SettleDelay before the first frame in Run
	SettleDelay time.Duration
	// Timeout bounds the wait for one frame; 0 waits indefinitely
	Timeout time.Duration

	// Capabilities switch optional features; 0 turns all of them off
	Capabilities Capability
	// Make is written to IFD0.Make (default "RaspberryPi")
	Make string
	// UserTags are extra "Group.Tag=value" EXIF tags
	UserTags []string
	// MaxTags bounds the tag set of one frame
	MaxTags int
	// MaxUserTags bounds how many UserTags are applied
	MaxUserTags int
	// GPS feeds the GPS tags; required with CapGPS
	GPS gps.Provider

	// OnFrame is called after every finished frame, from the capturing goroutine
	OnFrame func(FrameResult)
	// Logger receives structured logs (default slog.Default())
	Logger *slog.Logger
}

// FrameState is how a frame ended.
type FrameState string

const (
	// FrameComplete means the image was written and renamed into place
	FrameComplete FrameState = "complete"
	// FrameFailed means the frame was discarded; the session can continue
	FrameFailed FrameState = "failed"
	// FrameAbandoned means the frame was cancelled before it finished
	FrameAbandoned FrameState = "abandoned"
)

// FrameResult describes one finished frame.
type FrameResult struct {
	// FrameID is the id substituted into the file name template
	FrameID int64 `json:"frame_id"`
	// TraceID is a unique identifier for correlating logs and events
	TraceID string `json:"trace_id"`
	// Path is the final file; empty unless State is FrameComplete
	Path string `json:"path,omitempty"`
	// TempPath is the file written while the frame was in flight
	TempPath string `json:"temp_path"`
	// State is how the frame ended
	State FrameState `json:"state"`
	// Bytes written to the file
	Bytes int64 `json:"bytes"`
	// Buffers delivered for the frame
	Buffers int `json:"buffers"`
	// Tags is the number of EXIF tags applied
	Tags int `json:"tags"`
	// StartedAt is when the frame id was computed
	StartedAt time.Time `json:"started_at"`
	// FinishedAt is when the frame was finalized or discarded
	FinishedAt time.Time `json:"finished_at"`
	// Err is why the frame failed, if it did
	Err error `json:"-"`
}

// Duration is the time from frame start to finish.
func (r FrameResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Stats contains current session statistics
type Stats struct {
	// Backend names the co-processor implementation
	Backend string
	// Sensor is the camera sensor name
	Sensor string
	// Resolution of the still (e.g., "2592x1944")
	Resolution string
	// Capabilities enabled on the session
	Capabilities Capability
	// FramesComplete is the number of frames written
	FramesComplete uint64
	// FramesFailed is the number of frames discarded after a failure
	FramesFailed uint64
	// FramesAbandoned is the number of frames cancelled in flight
	FramesAbandoned uint64
	// LastFrameID is the id of the most recent frame (-1 before the first)
	LastFrameID int64
	// BytesWritten across all frames
	BytesWritten uint64
	// BuffersDelivered is every buffer the encoder returned
	BuffersDelivered uint64
	// BuffersDiscarded were delivered while no frame was armed
	BuffersDiscarded uint64
	// ShortWrites is the number of failed file writes
	ShortWrites uint64
	// PoolExhausted counts resubmissions that found the pool empty
	PoolExhausted uint64
	// PoolQueued and PoolInFlight split the encoder output pool
	PoolQueued   int
	PoolInFlight int
	// Cadence of the most recent frame starts against Interval
	Cadence Cadence
	// Uptime since the session was created
	Uptime time.Duration
}

// Cadence measures how closely frame starts keep to the configured interval.
type Cadence = timing.Cadence
