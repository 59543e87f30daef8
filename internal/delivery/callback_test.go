package delivery

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/pipeline"
)

// fakePort records buffers sent back to it.
type fakePort struct {
	mu      sync.Mutex
	enabled bool
	held    []*pipeline.Buffer
}

func (f *fakePort) Name() string                                    { return "encoder:out0" }
func (f *fakePort) Format() pipeline.Format                         { return pipeline.Format{} }
func (f *fakePort) SetFormat(pipeline.Format)                       {}
func (f *fakePort) CommitFormat() error                             { return nil }
func (f *fakePort) SetParameter(pipeline.Parameter) error           { return nil }
func (f *fakePort) BufferRequirements() pipeline.BufferRequirements { return pipeline.BufferRequirements{} }
func (f *fakePort) SetBuffers(int, int)                             {}
func (f *fakePort) Enable(pipeline.BufferCallback) error            { f.enabled = true; return nil }
func (f *fakePort) Disable() error                                  { f.enabled = false; return nil }
func (f *fakePort) IsEnabled() bool                                 { return f.enabled }

func (f *fakePort) SendBuffer(buf *pipeline.Buffer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.enabled {
		return pipeline.StatusNotReady
	}
	f.held = append(f.held, buf)
	return nil
}

// take hands the oldest held buffer to the caller, filled with payload.
func (f *fakePort) take(payload []byte, flags pipeline.BufferFlag) *pipeline.Buffer {
	f.mu.Lock()
	defer f.mu.Unlock()
	buf := f.held[0]
	f.held = f.held[1:]
	buf.Fill(payload)
	buf.Flags = flags
	return buf
}

// shortWriter accepts at most limit bytes per write.
type shortWriter struct {
	limit int
	got   bytes.Buffer
}

func (s *shortWriter) Write(p []byte) (int, error) {
	if len(p) > s.limit {
		s.got.Write(p[:s.limit])
		return s.limit, nil
	}
	return s.got.Write(p)
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, io.ErrClosedPipe }

func newHarness(t *testing.T, buffers int) (*CallbackContext, *fakePort, *pipeline.Pool, *Completion) {
	t.Helper()
	pool, err := pipeline.NewPool(buffers, 64)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	port := &fakePort{enabled: true}
	if _, err := pool.DrainInto(port); err != nil {
		t.Fatalf("DrainInto: %v", err)
	}
	done := NewCompletion()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewCallbackContext(pool, done, logger), port, pool, done
}

func TestOnBuffer_CompleteFrame(t *testing.T) {
	cbCtx, port, pool, done := newHarness(t, 3)

	var dest bytes.Buffer
	if err := cbCtx.Arm(&dest, "trace-1"); err != nil {
		t.Fatalf("Arm: %v", err)
	}

	cbCtx.OnBuffer(port, port.take([]byte("abc"), 0))
	if cbCtx.State() != Receiving {
		t.Errorf("state after first buffer = %v, want receiving", cbCtx.State())
	}
	cbCtx.OnBuffer(port, port.take([]byte("def"), pipeline.FlagFrameEnd))

	o, err := done.WaitTimeout(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if o.State != Complete || o.Bytes != 6 || o.Buffers != 2 || o.TraceID != "trace-1" {
		t.Errorf("outcome = %+v", o)
	}
	if dest.String() != "abcdef" {
		t.Errorf("dest = %q, want abcdef", dest.String())
	}
	if queued, inFlight := pool.Counts(); queued+inFlight != pool.Count() || inFlight != 3 {
		t.Errorf("pool queued=%d in_flight=%d, want 0/3 (port refilled)", queued, inFlight)
	}

	t.Logf("✅ Frame complete: %d bytes in %d buffers", o.Bytes, o.Buffers)
}

func TestOnBuffer_ShortWriteFailsFrame(t *testing.T) {
	cbCtx, port, _, done := newHarness(t, 1)

	w := &shortWriter{limit: 2}
	_ = cbCtx.Arm(w, "short")
	cbCtx.OnBuffer(port, port.take([]byte("hello"), 0))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	o, err := done.Wait(ctx)
	if err != nil {
		t.Fatalf("wait returned %v, the waiter must not hang on a short write", err)
	}
	if o.State != Failed {
		t.Fatalf("state = %v, want failed", o.State)
	}
	var derr *Error
	if !errors.As(o.Err, &derr) || derr.Reason != ReasonShortWrite || derr.Written != 2 || derr.Expected != 5 {
		t.Errorf("outcome err = %v", o.Err)
	}
	if cbCtx.Stats().ShortWrites != 1 {
		t.Errorf("short writes = %d, want 1", cbCtx.Stats().ShortWrites)
	}

	t.Logf("✅ Short write → failed, waiter released")
}

func TestOnBuffer_WriteErrorFailsFrame(t *testing.T) {
	cbCtx, port, _, done := newHarness(t, 1)
	_ = cbCtx.Arm(failWriter{}, "err")

	cbCtx.OnBuffer(port, port.take([]byte("x"), pipeline.FlagFrameEnd))

	o, _ := done.WaitTimeout(context.Background(), time.Second)
	if o.State != Failed || !errors.Is(o.Err, io.ErrClosedPipe) {
		t.Errorf("outcome = %+v", o)
	}
}

func TestOnBuffer_TransmissionFailed(t *testing.T) {
	cbCtx, port, _, done := newHarness(t, 2)
	var dest bytes.Buffer
	_ = cbCtx.Arm(&dest, "tx")

	cbCtx.OnBuffer(port, port.take(nil, pipeline.FlagTransmissionFailed))

	o, _ := done.WaitTimeout(context.Background(), time.Second)
	var derr *Error
	if o.State != Failed || !errors.As(o.Err, &derr) || derr.Reason != ReasonTransmission {
		t.Errorf("outcome = %+v", o)
	}
}

func TestOnBuffer_SignalsExactlyOnce(t *testing.T) {
	cbCtx, port, _, done := newHarness(t, 3)
	var dest bytes.Buffer
	_ = cbCtx.Arm(&dest, "once")

	cbCtx.OnBuffer(port, port.take([]byte("a"), pipeline.FlagFrameEnd))
	// Late buffers after the terminal one must not write or signal again.
	cbCtx.OnBuffer(port, port.take([]byte("b"), pipeline.FlagFrameEnd))
	cbCtx.OnBuffer(port, port.take([]byte("c"), pipeline.FlagTransmissionFailed))

	if _, err := done.WaitTimeout(context.Background(), time.Second); err != nil {
		t.Fatalf("first wait: %v", err)
	}
	if _, err := done.WaitTimeout(context.Background(), 50*time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Errorf("second wait = %v, want ErrTimeout", err)
	}
	if dest.String() != "a" {
		t.Errorf("dest = %q, want a", dest.String())
	}
}

func TestOnBuffer_UnarmedDiscards(t *testing.T) {
	cbCtx, port, pool, done := newHarness(t, 2)

	cbCtx.OnBuffer(port, port.take([]byte("stale"), pipeline.FlagFrameEnd))

	if cbCtx.Stats().BuffersDiscarded != 1 {
		t.Errorf("discarded = %d, want 1", cbCtx.Stats().BuffersDiscarded)
	}
	if _, err := done.WaitTimeout(context.Background(), 20*time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Errorf("unarmed buffer signalled completion: %v", err)
	}
	if pool.InFlight() != 2 {
		t.Errorf("in_flight = %d, want 2 (buffer resubmitted)", pool.InFlight())
	}
}

func TestOnBuffer_DisabledPortNotRefilled(t *testing.T) {
	cbCtx, port, pool, _ := newHarness(t, 2)
	var dest bytes.Buffer
	_ = cbCtx.Arm(&dest, "off")

	buf := port.take([]byte("z"), pipeline.FlagFrameEnd)
	port.enabled = false
	cbCtx.OnBuffer(port, buf)

	if queued, inFlight := pool.Counts(); queued != 1 || inFlight != 1 {
		t.Errorf("queued=%d in_flight=%d, want 1/1", queued, inFlight)
	}
}

func TestArm_RejectsWhileInProgress(t *testing.T) {
	cbCtx, _, _, _ := newHarness(t, 1)
	var dest bytes.Buffer

	if err := cbCtx.Arm(&dest, "a"); err != nil {
		t.Fatalf("first Arm: %v", err)
	}
	if err := cbCtx.Arm(&dest, "b"); !errors.Is(err, ErrArmed) {
		t.Errorf("second Arm = %v, want ErrArmed", err)
	}
	o := cbCtx.Disarm()
	if o.State != Armed {
		t.Errorf("disarm outcome state = %v, want armed", o.State)
	}
	if err := cbCtx.Arm(&dest, "c"); err != nil {
		t.Errorf("Arm after Disarm: %v", err)
	}
}
