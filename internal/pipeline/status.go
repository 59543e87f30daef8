package pipeline

import (
	"errors"
	"fmt"
)

// Status is a co-processor status code. The zero value is success.
type Status int

const (
	StatusSuccess Status = iota
	StatusNoMemory
	StatusNoSpace
	StatusInvalid
	StatusNotImplemented
	StatusNotFound
	StatusNoDevice
	StatusIO
	StatusCorrupt
	StatusNotReady
	StatusConfig
	StatusConnected
	StatusNotConnected
	StatusAgain
	StatusFault
)

// String returns the short status mnemonic used in log lines.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusNoMemory:
		return "ENOMEM"
	case StatusNoSpace:
		return "ENOSPC"
	case StatusInvalid:
		return "EINVAL"
	case StatusNotImplemented:
		return "ENOSYS"
	case StatusNotFound:
		return "ENOENT"
	case StatusNoDevice:
		return "ENXIO"
	case StatusIO:
		return "EIO"
	case StatusCorrupt:
		return "ECORRUPT"
	case StatusNotReady:
		return "ENOTREADY"
	case StatusConfig:
		return "ECONFIG"
	case StatusConnected:
		return "EISCONN"
	case StatusNotConnected:
		return "ENOTCONN"
	case StatusAgain:
		return "EAGAIN"
	case StatusFault:
		return "EFAULT"
	default:
		return fmt.Sprintf("STATUS(%d)", int(s))
	}
}

// Error makes a non-success Status usable as an error value.
func (s Status) Error() string {
	return "pipeline: status " + s.String()
}

// StatusOf extracts the status code carried by err.
//
// nil maps to StatusSuccess; errors that carry no Status map to StatusFault.
func StatusOf(err error) Status {
	if err == nil {
		return StatusSuccess
	}
	var s Status
	if errors.As(err, &s) {
		return s
	}
	return StatusFault
}
