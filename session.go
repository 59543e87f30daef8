package stillcapture

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/component"
	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/connector"
	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/delivery"
	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/exif"
	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/naming"
	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/pipeline"
	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/storage"
	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/timing"
)

// cadenceWindow is how many frame starts feed Stats.Cadence.
const cadenceWindow = 64

// Session owns a connected camera and encoder and captures frames through
// them, one at a time.
type Session struct {
	cfg     Config
	backend pipeline.Backend
	log     *slog.Logger

	camera  *component.CaptureStage
	encoder *component.EncodeStage
	pool    *pipeline.Pool
	conn    pipeline.Connection
	guard   *component.Guard

	completion *delivery.Completion
	callback   *delivery.CallbackContext
	namer      *naming.Namer
	builder    *exif.Builder
	preflight  *storage.Preflight

	// run is held for the whole of a frame; Close takes it to wait for one.
	run       sync.Mutex
	capturing atomic.Bool
	closed    atomic.Bool

	framesComplete  atomic.Uint64
	framesFailed    atomic.Uint64
	framesAbandoned atomic.Uint64
	lastFrameID     atomic.Int64
	starts          *timing.Recorder
	createdAt       time.Time
}

// NewSession validates cfg and builds the pipeline on backend: camera,
// encoder with its pool, and the connection between them.
//
// Any failure releases what was built, in reverse order, before the error
// is returned.
func NewSession(backend pipeline.Backend, cfg Config) (*Session, error) {
	if backend == nil {
		return nil, fmt.Errorf("still-capture: backend is required")
	}
	if err := normalize(&cfg); err != nil {
		return nil, err
	}

	namer, err := naming.NewNamer(cfg.Naming)
	if err != nil {
		return nil, fmt.Errorf("still-capture: %w", err)
	}

	log := cfg.Logger
	s := &Session{
		cfg:        cfg,
		backend:    backend,
		log:        log,
		guard:      component.NewGuard(log),
		completion: delivery.NewCompletion(),
		namer:      namer,
		starts:     timing.NewRecorder(cadenceWindow),
		createdAt:  time.Now(),
	}
	s.lastFrameID.Store(-1)
	if cfg.MinFreeBytes > 0 {
		s.preflight = storage.NewPreflight(namer.Policy().Dir, cfg.MinFreeBytes)
	}

	if err := s.build(); err != nil {
		s.guard.Release()
		return nil, err
	}

	log.Info("still-capture: session ready",
		"backend", backend.Name(),
		"sensor", s.camera.Sensor.Name,
		"resolution", fmt.Sprintf("%dx%d", s.camera.Width, s.camera.Height),
		"capabilities", cfg.Capabilities.String(),
		"timeout", cfg.Timeout,
	)
	return s, nil
}

// build creates every stage. Release steps are pushed so that the guard
// unwinds: encoder output, connection, encoder and camera disable, encoder
// (pool first) and camera destroy.
func (s *Session) build() error {
	mgr := component.NewManager(s.backend, s.log)

	camera, err := mgr.CreateCaptureStage(component.CameraConfig{
		CameraNum:    s.cfg.CameraNum,
		SensorMode:   s.cfg.SensorMode,
		Width:        s.cfg.Width,
		Height:       s.cfg.Height,
		ShutterSpeed: s.cfg.ShutterSpeed,
	})
	if err != nil {
		return err
	}
	s.camera = camera
	s.guard.Push("camera.destroy", func() error { camera.Destroy(); return nil })

	thumb := pipeline.Thumbnail{}
	if s.cfg.Capabilities.Has(CapThumbnail) {
		thumb = s.cfg.Thumbnail
		thumb.Enable = true
	}
	encoder, err := mgr.CreateEncodeStage(camera.Still, component.EncoderConfig{
		Encoding:        s.cfg.Encoding,
		Quality:         s.cfg.Quality,
		RestartInterval: s.cfg.RestartInterval,
		Thumbnail:       thumb,
	})
	if err != nil {
		return err
	}
	s.encoder = encoder
	s.pool = encoder.Pool
	s.guard.Push("encoder.destroy", func() error { encoder.Destroy(); return nil })
	s.guard.Push("camera.disable", camera.Component.Disable)
	s.guard.Push("encoder.disable", encoder.Component.Disable)

	conn, err := connector.Connect(s.backend, camera.Still, encoder.Input, s.log)
	if err != nil {
		return err
	}
	s.conn = conn
	s.guard.Push("connection.destroy", conn.Destroy)
	s.guard.Push("encoder.output.disable", func() error {
		if encoder.Output.IsEnabled() {
			return encoder.Output.Disable()
		}
		return nil
	})

	s.callback = delivery.NewCallbackContext(s.pool, s.completion, s.log)

	if s.cfg.Capabilities.Has(CapEXIF) {
		name := s.cfg.CameraName
		if name == "" {
			name = camera.Sensor.Name
		}
		s.builder = exif.NewBuilder(exif.Options{
			CameraName:  name,
			Make:        s.cfg.Make,
			GPS:         s.cfg.Capabilities.Has(CapGPS),
			MaxTags:     s.cfg.MaxTags,
			MaxUserTags: s.cfg.MaxUserTags,
			UserTags:    s.cfg.UserTags,
		}, s.cfg.GPS)
	} else if err := encoder.Output.SetParameter(pipeline.ExifDisable{Disable: true}); err != nil {
		s.log.Warn("still-capture: unable to disable EXIF on the encoder",
			"error", &MetadataError{Tag: "exif_disable", Err: err},
		)
	}
	return nil
}

// Close implements StillProvider.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		s.log.Debug("still-capture: session already closed")
		return nil
	}

	s.run.Lock()
	defer s.run.Unlock()

	s.log.Info("still-capture: closing session")
	s.guard.Release()

	st := s.Stats()
	s.log.Info("still-capture: session closed",
		"frames_complete", st.FramesComplete,
		"frames_failed", st.FramesFailed,
		"frames_abandoned", st.FramesAbandoned,
		"bytes_written", st.BytesWritten,
		"uptime", st.Uptime,
	)
	return nil
}

// Stats implements StillProvider.
func (s *Session) Stats() Stats {
	cb := s.callback.Stats()
	queued, inFlight := s.pool.Counts()
	return Stats{
		Backend:          s.backend.Name(),
		Sensor:           s.camera.Sensor.Name,
		Resolution:       fmt.Sprintf("%dx%d", s.camera.Width, s.camera.Height),
		Capabilities:     s.cfg.Capabilities,
		FramesComplete:   s.framesComplete.Load(),
		FramesFailed:     s.framesFailed.Load(),
		FramesAbandoned:  s.framesAbandoned.Load(),
		LastFrameID:      s.lastFrameID.Load(),
		BytesWritten:     cb.BytesWritten,
		BuffersDelivered: cb.BuffersDelivered,
		BuffersDiscarded: cb.BuffersDiscarded,
		ShortWrites:      cb.ShortWrites,
		PoolExhausted:    cb.PoolExhausted,
		PoolQueued:       queued,
		PoolInFlight:     inFlight,
		Cadence:          timing.Calculate(s.starts.Times(), s.cfg.Interval),
		Uptime:           time.Since(s.createdAt),
	}
}

// normalize fills defaults and rejects values the pipeline cannot use.
func normalize(cfg *Config) error {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Encoding == "" {
		cfg.Encoding = pipeline.EncodingJPEG
	}
	if cfg.Quality == 0 {
		cfg.Quality = 85
	}
	if cfg.Quality < 1 || cfg.Quality > 100 {
		return fmt.Errorf("still-capture: quality must be between 1 and 100, got %d", cfg.Quality)
	}
	if cfg.Capabilities.Has(CapGPS) {
		if !cfg.Capabilities.Has(CapEXIF) {
			return fmt.Errorf("still-capture: GPS tags require EXIF")
		}
		if cfg.GPS == nil {
			return fmt.Errorf("still-capture: GPS capability requires a GPS provider")
		}
	}
	if cfg.Thumbnail.Width == 0 {
		cfg.Thumbnail.Width = 64
	}
	if cfg.Thumbnail.Height == 0 {
		cfg.Thumbnail.Height = 48
	}
	if cfg.Thumbnail.Quality == 0 {
		cfg.Thumbnail.Quality = 35
	}
	if cfg.Naming.Template == "" {
		cfg.Naming.Template = "image%04d.jpg"
	}
	if cfg.Count < 0 {
		return fmt.Errorf("still-capture: count must not be negative, got %d", cfg.Count)
	}
	if cfg.Interval < 0 || cfg.SettleDelay < 0 || cfg.Timeout < 0 {
		return fmt.Errorf("still-capture: durations must not be negative")
	}
	return nil
}
