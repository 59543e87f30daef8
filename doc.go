// Package stillcapture takes still images through a camera -> image encoder
// pipeline and writes each one to its own file.
//
// A Session owns the whole pipeline: the camera component, the encoder with
// its output buffer pool, and the connection that feeds the camera's still
// port into the encoder. Frames are taken one at a time; encoded bytes are
// written to a temporary file from the encoder's delivery context and the
// file is renamed into place once the encoder flags the end of the frame.
//
// # Quick Start
//
//	backend := sim.New(sim.Options{})
//
//	session, err := stillcapture.NewSession(backend, stillcapture.Config{
//	    Width:        1920,
//	    Height:       1080,
//	    Naming:       naming.Policy{Dir: "/data/stills", Template: "image%04d.jpg"},
//	    Count:        10,
//	    Interval:     30 * time.Second,
//	    Capabilities: stillcapture.DefaultCapabilities,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer session.Close()
//
//	if err := session.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Backends
//
// The pipeline runs on a pipeline.Backend:
//   - sim: in-process co-processor producing test-pattern JPEGs, with fault
//     injection and handle accounting for tests
//   - gstreamer: a GStreamer pipeline (videotestsrc or v4l2src into jpegenc)
//
// # Capabilities
//
// Optional features are flags on one pipeline rather than separate pipeline
// types: CapEXIF, CapGPS (GPS tags from a gps.Provider, needs CapEXIF) and
// CapThumbnail. Without CapEXIF the encoder is told to omit EXIF and no tags
// are built.
//
// # Frame lifecycle
//
//  1. Frame id from the naming policy (counter, unix timestamp or packed date)
//  2. Temporary file opened at <final>~
//  3. EXIF tags applied to the encoder output
//  4. Encoder output enabled and filled with every pool buffer
//  5. Capture requested on the camera still port
//  6. Wait for completion (indefinite unless Config.Timeout is set)
//  7. Destination cleared, file closed, encoder output disabled
//  8. Rename to the final path, or remove the temporary file
//
// A frame that fails inside the pipeline is discarded and the session keeps
// going. Errors that leave the session unable to take another frame (file
// open, port enable or disable) are returned from Capture and Run.
//
// # Cancellation
//
// The context is checked before the capture is requested and while waiting
// for it. A cancelled frame is abandoned: its temporary file is removed and
// the context error is returned once the encoder output is disabled.
//
// # Errors
//
// Failures are reported with typed errors that wrap the backend status:
//
//	var ce *stillcapture.ComponentCreationError
//	if errors.As(err, &ce) {
//	    log.Printf("stage %s failed: %s", ce.Stage, ce.Status)
//	}
//
// Teardown never fails: Close logs what could not be released and carries on.
package stillcapture
