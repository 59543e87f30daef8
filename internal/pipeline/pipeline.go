// Package pipeline models a camera co-processor as components with typed
// ports, connections between ports and pools of transfer buffers.
//
// Backends (the simulator in pipeline/sim, the GStreamer backend in
// internal/gstreamer) implement these interfaces; the orchestration code in
// the root package only ever talks to them through this package.
package pipeline

// Camera output port indices.
const (
	CameraPreviewPort = 0
	CameraVideoPort   = 1
	CameraCapturePort = 2
)

// Kind selects which component a Backend creates.
type Kind int

const (
	KindCamera Kind = iota
	KindImageEncoder
)

// String returns the component kind name
func (k Kind) String() string {
	switch k {
	case KindCamera:
		return "camera"
	case KindImageEncoder:
		return "image_encoder"
	default:
		return "unknown"
	}
}

// Encoding is a FourCC-style elementary stream encoding.
type Encoding string

const (
	EncodingOpaque Encoding = "OPQV"
	EncodingI420   Encoding = "I420"
	EncodingJPEG   Encoding = "JPEG"
	EncodingPNG    Encoding = "PNG "
	EncodingBMP    Encoding = "BMP "
)

// Rational is a num/den pair used for frame rates.
type Rational struct {
	Num int
	Den int
}

// Rect is a crop window.
type Rect struct {
	X, Y, Width, Height int
}

// Format describes the elementary stream carried by a port.
type Format struct {
	Encoding  Encoding
	Width     int
	Height    int
	Crop      Rect
	FrameRate Rational
}

// BufferRequirements are the buffer counts and sizes a port asks for, plus
// the values currently configured on it.
type BufferRequirements struct {
	NumMin          int
	NumRecommended  int
	SizeMin         int
	SizeRecommended int
	Num             int
	Size            int
}

// BufferCallback is invoked by the backend from its own delivery context,
// once per buffer returned on an enabled port.
type BufferCallback func(port Port, buf *Buffer)

// Port is a typed input or output endpoint of a component.
type Port interface {
	Name() string
	Format() Format
	SetFormat(f Format)
	CommitFormat() error
	SetParameter(p Parameter) error
	BufferRequirements() BufferRequirements
	SetBuffers(num, size int)
	Enable(cb BufferCallback) error
	Disable() error
	IsEnabled() bool
	// SendBuffer hands buf to the port. Ownership passes to the backend until
	// the buffer comes back through the port callback.
	SendBuffer(buf *Buffer) error
}

// Component is a co-processor component with a control port and data ports.
type Component interface {
	Name() string
	Control() Port
	Inputs() []Port
	Outputs() []Port
	Enable() error
	Disable() error
	Destroy() error
}

// Connection is a buffer-passing link from an output port to an input port.
type Connection interface {
	Enable() error
	Disable() error
	IsEnabled() bool
	Destroy() error
}

// SensorInfo is what the backend reports about a physical camera.
type SensorInfo struct {
	Name      string
	MaxWidth  int
	MaxHeight int
}

// Backend creates components and connections on one co-processor.
type Backend interface {
	Name() string
	SensorInfo(cameraNum int) (SensorInfo, error)
	CreateComponent(kind Kind) (Component, error)
	Connect(out, in Port) (Connection, error)
}
