package stillcapture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/component"
	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/delivery"
	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/exif"
	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/naming"
	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/pipeline"
)

// Run implements StillProvider.
func (s *Session) Run(ctx context.Context) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}

	s.log.Info("still-capture: capture loop started",
		"count", s.cfg.Count,
		"interval", s.cfg.Interval,
		"settle_delay", s.cfg.SettleDelay,
	)

	if err := sleep(ctx, s.cfg.SettleDelay); err != nil {
		return err
	}

	var last time.Time
	for i := 0; s.cfg.Count == 0 || i < s.cfg.Count; i++ {
		if i > 0 && s.cfg.Interval > 0 {
			if err := sleep(ctx, s.cfg.Interval-time.Since(last)); err != nil {
				return err
			}
		}

		res, err := s.Capture(ctx)
		if err != nil {
			return err
		}
		last = res.StartedAt
	}

	s.log.Info("still-capture: capture loop finished",
		"frames_complete", s.framesComplete.Load(),
		"frames_failed", s.framesFailed.Load(),
	)
	return nil
}

// Capture implements StillProvider.
//
// One iteration: frame id, destination, metadata, arm, trigger, wait,
// finalize. The destination is cleared as soon as the wait returns, before
// the encoder output is disabled.
func (s *Session) Capture(ctx context.Context) (FrameResult, error) {
	if s.closed.Load() {
		return FrameResult{}, ErrSessionClosed
	}
	if !s.capturing.CompareAndSwap(false, true) {
		return FrameResult{}, ErrCaptureInProgress
	}
	defer s.capturing.Store(false)

	s.run.Lock()
	defer s.run.Unlock()
	if s.closed.Load() {
		return FrameResult{}, ErrSessionClosed
	}

	now := time.Now()
	pair := s.namer.Next(now)
	res := FrameResult{
		FrameID:   pair.FrameID,
		TraceID:   uuid.New().String(),
		TempPath:  pair.Temp,
		StartedAt: now,
	}
	s.lastFrameID.Store(pair.FrameID)
	log := s.log.With("frame_id", pair.FrameID, "trace_id", res.TraceID)

	if s.preflight != nil {
		if err := s.preflight.Err(); err != nil {
			return res, &FileIOError{Op: "preflight", Path: pair.Temp, Err: err}
		}
	}

	file, err := s.namer.Open(pair)
	if err != nil {
		return res, err
	}

	res.Tags = s.attachMetadata()
	s.applyShutter()

	out := s.encoder.Output
	if err := s.callback.Arm(file, res.TraceID); err != nil {
		s.abort(file, pair)
		return res, err
	}
	if err := out.Enable(s.callback.OnBuffer); err != nil {
		s.callback.Disarm()
		s.abort(file, pair)
		return res, component.NewPortError(out, "enable", err)
	}
	sent, err := s.pool.DrainInto(out)
	if err != nil {
		s.callback.Disarm()
		_ = out.Disable()
		s.abort(file, pair)
		return res, component.NewPortError(out, "send_buffers", err)
	}
	log.Debug("still-capture: encoder armed", "buffers", sent, "path", pair.Temp)

	outcome, waitErr := s.trigger(ctx)
	cleared := s.callback.Disarm()
	if waitErr != nil {
		outcome = cleared
	}

	var fileErr error
	if waitErr == nil && outcome.State == delivery.Complete {
		fileErr = s.namer.Sync(file, pair)
	}
	if err := file.Close(); err != nil && fileErr == nil {
		fileErr = &FileIOError{Op: "close", Path: pair.Temp, Err: err}
	}
	if err := out.Disable(); err != nil {
		s.discard(pair)
		return res, component.NewPortError(out, "disable", err)
	}

	res.Bytes = outcome.Bytes
	res.Buffers = outcome.Buffers

	switch {
	case waitErr != nil && ctx.Err() != nil:
		res.State = FrameAbandoned
		res.Err = waitErr
		s.discard(pair)
		s.finish(&res, log)
		return res, waitErr

	case waitErr != nil:
		res.Err = waitErr

	case outcome.State != delivery.Complete:
		res.Err = outcome.Err
		if res.Err == nil {
			res.Err = fmt.Errorf("still-capture: frame ended %s", outcome.State)
		}

	case fileErr != nil:
		res.Err = fileErr

	default:
		if err := s.namer.Finalize(pair); err != nil {
			var fe *FileIOError
			if !errors.As(err, &fe) || fe.Path == pair.Temp {
				res.State = FrameFailed
				res.Err = err
				s.discard(pair)
				s.finish(&res, log)
				return res, err
			}
			// The frame is in place; the directory flush or latest link failed.
			log.Warn("still-capture: frame finalized with errors", "error", err)
		}
		res.State = FrameComplete
		res.Path = pair.Final
		s.finish(&res, log)
		return res, nil
	}

	res.State = FrameFailed
	s.discard(pair)
	s.finish(&res, log)
	return res, nil
}

// trigger starts the capture and waits for the frame. Cancellation is
// checked before the capture is requested and during the wait.
func (s *Session) trigger(ctx context.Context) (delivery.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return delivery.Outcome{}, err
	}

	still := s.camera.Still
	if err := still.SetParameter(pipeline.Capture{Enable: true}); err != nil {
		return delivery.Outcome{}, component.NewPortError(still, "capture", err)
	}
	return s.completion.WaitTimeout(ctx, s.cfg.Timeout)
}

// attachMetadata applies this frame's tags and returns how many the encoder
// accepted. Without CapEXIF the encoder was told to omit EXIF at build time.
func (s *Session) attachMetadata() int {
	if s.builder == nil {
		return 0
	}
	return exif.Apply(s.encoder.Output, s.builder.Build(), s.log)
}

func (s *Session) applyShutter() {
	if s.cfg.ShutterSpeed == 0 {
		return
	}
	control := s.camera.Component.Control()
	if err := control.SetParameter(pipeline.ShutterSpeed{Micros: s.cfg.ShutterSpeed}); err != nil {
		s.log.Warn("still-capture: unable to set shutter speed",
			"error", component.NewPortError(control, "shutter_speed", err),
		)
	}
}

// finish records res and hands it to the OnFrame hook.
func (s *Session) finish(res *FrameResult, log *slog.Logger) {
	res.FinishedAt = time.Now()
	s.starts.Add(res.StartedAt)
	switch res.State {
	case FrameComplete:
		s.framesComplete.Add(1)
		log.Info("still-capture: frame complete",
			"path", res.Path,
			"bytes", res.Bytes,
			"buffers", res.Buffers,
			"tags", res.Tags,
			"duration", res.Duration(),
		)
	case FrameFailed:
		s.framesFailed.Add(1)
		log.Warn("still-capture: frame failed",
			"bytes", res.Bytes,
			"buffers", res.Buffers,
			"error", res.Err,
		)
	case FrameAbandoned:
		s.framesAbandoned.Add(1)
		log.Info("still-capture: frame abandoned", "error", res.Err)
	}

	if s.cfg.OnFrame != nil {
		s.cfg.OnFrame(*res)
	}
}

// abort closes and removes a destination that never got armed.
func (s *Session) abort(f *os.File, pair naming.FilenamePair) {
	_ = f.Close()
	s.discard(pair)
}

func (s *Session) discard(pair naming.FilenamePair) {
	if err := s.namer.Discard(pair); err != nil {
		s.log.Warn("still-capture: unable to remove temporary file", "error", err)
	}
}

// sleep waits d or until ctx is done. A non-positive d returns at once.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
