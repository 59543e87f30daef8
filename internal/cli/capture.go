package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	stillcapture "github.com/e7canasta/orion-care-sensor/modules/still-capture"
	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/config"
	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/emitter"
	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/framebus"
	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/gps"
)

// frameEventBuffer is how many frame events may wait for the broker.
const frameEventBuffer = 64

type captureFlags struct {
	output   string
	template string
	count    int
	interval time.Duration
	settle   time.Duration
	timeout  time.Duration
	width    int
	height   int
	quality  int
	shutter  uint32
	backend  string
	noExif   bool
	withGPS  bool
	tags     []string
}

// NewCaptureCmd returns the capture subcommand.
func NewCaptureCmd(g *globalFlags) *cobra.Command {
	f := &captureFlags{}

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Capture one or more still images",
		Long: "Capture still images into the output directory. Each final path is printed on stdout.\n" +
			"Exits non-zero when the pipeline cannot continue or when any frame failed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(g, cmd, f.apply)
			if err != nil {
				return err
			}
			return runCapture(cmd.Context(), cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.output, "output", "o", "", "Output directory")
	fl.StringVar(&f.template, "template", "", "File name template (printf-style, e.g. image%04d.jpg)")
	fl.IntVarP(&f.count, "count", "n", 0, "Number of frames (0 = until interrupted)")
	fl.DurationVar(&f.interval, "interval", 0, "Time between frame starts (timelapse)")
	fl.DurationVar(&f.settle, "settle", 0, "Delay before the first frame")
	fl.DurationVar(&f.timeout, "timeout", 0, "Per-frame timeout (0 = wait indefinitely)")
	fl.IntVar(&f.width, "width", 0, "Still width in pixels")
	fl.IntVar(&f.height, "height", 0, "Still height in pixels")
	fl.IntVarP(&f.quality, "quality", "q", 0, "JPEG quality (1-100)")
	fl.Uint32Var(&f.shutter, "shutter", 0, "Shutter speed in microseconds")
	fl.StringVar(&f.backend, "backend", "", "Pipeline backend: sim, gstreamer")
	fl.BoolVar(&f.noExif, "no-exif", false, "Do not embed EXIF metadata")
	fl.BoolVar(&f.withGPS, "gps", false, "Add GPS tags from gpsd")
	fl.StringArrayVarP(&f.tags, "exif", "x", nil, "Extra EXIF tag (Group.Tag=value), repeatable")

	return cmd
}

// apply overrides cfg with the flags that were set.
func (f *captureFlags) apply(cfg *config.Config, cmd *cobra.Command) {
	set := cmd.Flags().Changed
	if set("output") {
		cfg.Output.Dir = f.output
	}
	if set("template") {
		cfg.Output.Template = f.template
	}
	if set("count") {
		cfg.Capture.Count = f.count
	}
	if set("interval") {
		cfg.Capture.Interval = f.interval
	}
	if set("settle") {
		cfg.Capture.SettleDelay = f.settle
	}
	if set("timeout") {
		cfg.Capture.Timeout = f.timeout
	}
	if set("width") {
		cfg.Camera.Width = f.width
	}
	if set("height") {
		cfg.Camera.Height = f.height
	}
	if set("quality") {
		cfg.Encoder.Quality = f.quality
	}
	if set("shutter") {
		cfg.Camera.ShutterSpeed = f.shutter
	}
	if set("backend") {
		cfg.Backend.Name = f.backend
	}
	if set("no-exif") {
		cfg.EXIF.Disabled = f.noExif
	}
	if set("gps") {
		cfg.EXIF.GPS = f.withGPS
	}
	if set("exif") {
		cfg.EXIF.Tags = append(cfg.EXIF.Tags, f.tags...)
	}
}

func runCapture(parent context.Context, cfg *config.Config, stdout, stderr io.Writer) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := newLogger(cfg.Log, stderr)

	backend, release, err := newBackend(cfg, logger)
	if err != nil {
		return err
	}
	defer release()

	var provider gps.Provider
	gpsDone := make(chan struct{})
	if cfg.EXIF.GPS && !cfg.EXIF.Disabled {
		client := gps.NewGPSD(cfg.GPS.Addr, logger)
		provider = client
		go func() {
			defer close(gpsDone)
			_ = client.Run(ctx)
		}()
	} else {
		close(gpsDone)
	}

	var events *emitter.MQTTEmitter
	if cfg.MQTT.Enabled {
		events = emitter.NewMQTTEmitter(emitter.Config{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			Camera:      cfg.Camera.Name,
			QoS:         cfg.MQTT.QoS,
		}, logger)
		if err := events.Connect(ctx); err != nil {
			return err
		}
		defer events.Disconnect()
	}

	scfg, err := sessionConfig(cfg, provider, logger)
	if err != nil {
		return err
	}

	frames := framebus.New[stillcapture.FrameResult]()
	publishDone := make(chan struct{})
	var published chan stillcapture.FrameResult
	if events != nil {
		published = make(chan stillcapture.FrameResult, frameEventBuffer)
		if err := frames.Subscribe("mqtt", published); err != nil {
			return err
		}
		go func() {
			defer close(publishDone)
			for r := range published {
				if err := events.Publish(frameEvent(cfg.Camera.Name, r)); err != nil {
					logger.Warn("still-capture: frame event not published", "frame_id", r.FrameID, "error", err)
				}
			}
		}()
	} else {
		close(publishDone)
	}
	drainEvents := func() {
		frames.Close()
		if published != nil {
			close(published)
		}
		<-publishDone
	}

	scfg.OnFrame = func(r stillcapture.FrameResult) {
		if r.State == stillcapture.FrameComplete {
			fmt.Fprintln(stdout, r.Path)
		}
		_ = frames.Publish(r)
	}

	session, err := stillcapture.NewSession(backend, scfg)
	if err != nil {
		drainEvents()
		return err
	}

	runErr := session.Run(ctx)
	session.Close()
	drainEvents()
	stop()
	<-gpsDone

	if bs := frames.Stats(); bs.Dropped > 0 {
		logger.Warn("still-capture: frame events dropped", "dropped", bs.Dropped, "published", bs.Published)
	}

	st := session.Stats()
	logger.Info("still-capture: done",
		"frames_complete", st.FramesComplete,
		"frames_failed", st.FramesFailed,
		"frames_abandoned", st.FramesAbandoned,
		"bytes_written", st.BytesWritten,
	)

	switch {
	case runErr != nil && !errors.Is(runErr, context.Canceled):
		return runErr
	case st.FramesFailed > 0:
		return fmt.Errorf("%d of %d frames failed", st.FramesFailed, st.FramesFailed+st.FramesComplete)
	}
	return nil
}

func frameEvent(camera string, r stillcapture.FrameResult) emitter.FrameEvent {
	ev := emitter.FrameEvent{
		Camera:     camera,
		FrameID:    r.FrameID,
		Path:       r.Path,
		State:      string(r.State),
		Bytes:      r.Bytes,
		Buffers:    r.Buffers,
		TraceID:    r.TraceID,
		CapturedAt: r.StartedAt,
		DurationMS: r.Duration().Milliseconds(),
	}
	if r.Err != nil {
		ev.Error = r.Err.Error()
	}
	return ev
}
