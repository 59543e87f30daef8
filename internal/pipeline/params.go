package pipeline

// ParamID identifies a port parameter.
type ParamID int

const (
	ParamCameraNum ParamID = iota + 1
	ParamSensorMode
	ParamCameraConfig
	ParamFPSRange
	ParamShutterSpeed
	ParamCapture
	ParamExifDisable
	ParamExifTag
	ParamJPEGQuality
	ParamRestartInterval
	ParamThumbnail
)

var paramNames = map[ParamID]string{
	ParamCameraNum:       "camera_num",
	ParamSensorMode:      "sensor_mode",
	ParamCameraConfig:    "camera_config",
	ParamFPSRange:        "fps_range",
	ParamShutterSpeed:    "shutter_speed",
	ParamCapture:         "capture",
	ParamExifDisable:     "exif_disable",
	ParamExifTag:         "exif_tag",
	ParamJPEGQuality:     "jpeg_quality",
	ParamRestartInterval: "restart_interval",
	ParamThumbnail:       "thumbnail",
}

// String returns the parameter name used in logs and fault keys.
func (id ParamID) String() string {
	if n, ok := paramNames[id]; ok {
		return n
	}
	return "unknown"
}

// Parameter is a typed value applied with Port.SetParameter.
type Parameter interface {
	ID() ParamID
}

// CameraNum selects the physical camera.
type CameraNum struct{ Num int }

// SensorMode forces a sensor readout mode; 0 lets the firmware choose.
type SensorMode struct{ Mode int }

// TimestampMode controls how the camera stamps buffers.
type TimestampMode int

const (
	TimestampZero TimestampMode = iota
	TimestampRawSTC
	TimestampResetSTC
)

// CameraConfig is the camera-wide stills configuration.
type CameraConfig struct {
	MaxStillsWidth   int
	MaxStillsHeight  int
	StillsYUV422     bool
	OneShotStills    bool
	NumPreviewFrames int
	TimestampMode    TimestampMode
}

// FPSRange bounds the frame rate the sensor may pick.
type FPSRange struct {
	Low  Rational
	High Rational
}

// ShutterSpeed in microseconds; 0 is automatic.
type ShutterSpeed struct{ Micros uint32 }

// Capture starts (or stops) a still capture on a port.
type Capture struct{ Enable bool }

// ExifDisable tells the encoder to omit EXIF from its output.
type ExifDisable struct{ Disable bool }

// ExifTag sets one "Group.Tag=value" entry; an empty value clears the tag.
type ExifTag struct{ Tag string }

// JPEGQuality is the encoder Q factor (0-100).
type JPEGQuality struct{ Quality int }

// RestartInterval is the JPEG restart marker interval; 0 disables markers.
type RestartInterval struct{ Interval int }

// Thumbnail configures the embedded thumbnail. Width, Height and Quality all
// zero means no thumbnail.
type Thumbnail struct {
	Enable  bool
	Width   int
	Height  int
	Quality int
}

func (CameraNum) ID() ParamID       { return ParamCameraNum }
func (SensorMode) ID() ParamID      { return ParamSensorMode }
func (CameraConfig) ID() ParamID    { return ParamCameraConfig }
func (FPSRange) ID() ParamID        { return ParamFPSRange }
func (ShutterSpeed) ID() ParamID    { return ParamShutterSpeed }
func (Capture) ID() ParamID         { return ParamCapture }
func (ExifDisable) ID() ParamID     { return ParamExifDisable }
func (ExifTag) ID() ParamID         { return ParamExifTag }
func (JPEGQuality) ID() ParamID     { return ParamJPEGQuality }
func (RestartInterval) ID() ParamID { return ParamRestartInterval }
func (Thumbnail) ID() ParamID       { return ParamThumbnail }
