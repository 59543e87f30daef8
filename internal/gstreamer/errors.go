package gstreamer

import (
	"strings"

	"github.com/tinyzimmer/go-gst/gst"

	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/pipeline"
)

// ErrorCategory classifies GStreamer bus errors.
type ErrorCategory int

const (
	// ErrCategoryDevice is a missing, busy or inaccessible capture device.
	ErrCategoryDevice ErrorCategory = iota
	// ErrCategoryNegotiation is a caps or format mismatch between elements.
	ErrCategoryNegotiation
	// ErrCategoryEncode is a failure inside the encoder.
	ErrCategoryEncode
	// ErrCategoryUnknown is anything else.
	ErrCategoryUnknown
)

// String returns the category name used in logs.
func (c ErrorCategory) String() string {
	switch c {
	case ErrCategoryDevice:
		return "device"
	case ErrCategoryNegotiation:
		return "negotiation"
	case ErrCategoryEncode:
		return "encode"
	default:
		return "unknown"
	}
}

// Status maps the category onto a pipeline status code.
func (c ErrorCategory) Status() pipeline.Status {
	switch c {
	case ErrCategoryDevice:
		return pipeline.StatusNoDevice
	case ErrCategoryNegotiation:
		return pipeline.StatusInvalid
	case ErrCategoryEncode:
		return pipeline.StatusCorrupt
	default:
		return pipeline.StatusIO
	}
}

var (
	deviceKeywords = []string{
		"no such device",
		"device",
		"busy",
		"permission denied",
		"v4l2",
		"libcamera",
		"could not open",
	}
	negotiationKeywords = []string{
		"not negotiated",
		"negotiation",
		"caps",
		"format",
	}
	encodeKeywords = []string{
		"jpeg",
		"encode",
		"encoder",
	}
)

// ClassifyGStreamerError categorises a bus error by message heuristics.
// go-gst's GError does not expose the error domain.
func ClassifyGStreamerError(gerr *gst.GError) ErrorCategory {
	if gerr == nil {
		return ErrCategoryUnknown
	}
	return classify(gerr.Error(), gerr.DebugString())
}

// classify checks negotiation first: device paths show up in the debug
// string of most errors, so device is the least specific match.
func classify(msg, debug string) ErrorCategory {
	combined := strings.ToLower(msg + " " + debug)
	switch {
	case containsAny(combined, negotiationKeywords):
		return ErrCategoryNegotiation
	case containsAny(combined, encodeKeywords):
		return ErrCategoryEncode
	case containsAny(combined, deviceKeywords):
		return ErrCategoryDevice
	default:
		return ErrCategoryUnknown
	}
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
