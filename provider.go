package stillcapture

import "context"

// StillProvider defines the contract for still image acquisition
//
// Implementations must guarantee:
//   - At most one frame is in flight at a time
//   - Every frame ends with its file renamed into place or removed
//   - Close() is idempotent and releases every co-processor resource
//   - Stats() is thread-safe (can be called from any goroutine)
type StillProvider interface {
	// Capture takes exactly one frame.
	//
	// The frame is written to a temporary file next to its final path and
	// renamed once the encoder reports the end of the image. The returned
	// FrameResult describes the frame in every case, including failures.
	//
	// A frame that fails inside the pipeline (transmission failure, short
	// write, timeout) returns a FrameFailed result and a nil error: the
	// session is still usable. A non-nil error means the session cannot
	// take another frame:
	//   - FileIOError: the output file could not be opened or renamed
	//   - PortConfigurationError: the encoder output could not be re-armed
	//   - ctx.Err(): the frame was abandoned and its file removed
	//
	// Example:
	//   res, err := session.Capture(ctx)
	//   if err != nil {
	//       log.Fatal(err)
	//   }
	//   if res.State == stillcapture.FrameComplete {
	//       log.Printf("wrote %s (%d bytes)", res.Path, res.Bytes)
	//   }
	Capture(ctx context.Context) (FrameResult, error)

	// Run captures Config.Count frames (forever when zero).
	//
	// Run waits Config.SettleDelay before the first frame and keeps frame
	// starts Config.Interval apart. Each frame is reported through
	// Config.OnFrame. Failed frames do not stop the loop.
	//
	// Returns nil once Count frames were taken, the ctx error when cancelled,
	// or the first error Capture reported as terminal.
	Run(ctx context.Context) error

	// Stats returns current session statistics.
	//
	// Thread-safe: can be called while a frame is in flight.
	Stats() Stats

	// Close disables and destroys the pipeline.
	//
	// Teardown order:
	//   1. Encoder output port (if still enabled)
	//   2. Camera to encoder connection
	//   3. Encoder, then camera (disabled)
	//   4. Encoder pool and encoder, then camera (destroyed)
	//
	// Waits for an in-flight Capture to return. Failures are logged, never
	// returned. Safe to call multiple times.
	Close() error
}

// Compile-time check.
var _ StillProvider = (*Session)(nil)
