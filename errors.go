package stillcapture

import (
	"errors"

	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/component"
	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/connector"
	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/delivery"
	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/exif"
	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/naming"
)

// Error taxonomy. Each type carries the backend status (when there is one),
// recoverable with pipeline.StatusOf via errors.As / errors.Unwrap.
type (
	// ComponentCreationError is a failed step while building the camera or
	// the encoder. Everything built before the step is already released.
	ComponentCreationError = component.CreationError
	// PortConfigurationError is a failed operation on a built port, such as
	// enabling the encoder output or handing it buffers.
	PortConfigurationError = component.PortError
	// ConnectionError is a failure linking the camera to the encoder.
	ConnectionError = connector.ConnectionError
	// BufferDeliveryError is a buffer that could not reach the file.
	BufferDeliveryError = delivery.Error
	// MetadataError is a tag the encoder refused. It is logged, never returned.
	MetadataError = exif.TagError
	// FileIOError is a failed operation on an output file.
	FileIOError = naming.FileError
)

var (
	// ErrSessionClosed is returned by operations on a closed session.
	ErrSessionClosed = errors.New("still-capture: session closed")
	// ErrCaptureInProgress is returned when Capture is called while another
	// frame is still in flight.
	ErrCaptureInProgress = errors.New("still-capture: capture already in progress")
	// ErrFrameTimeout is the failure recorded on a frame that did not finish
	// within Config.Timeout.
	ErrFrameTimeout = delivery.ErrTimeout
)
