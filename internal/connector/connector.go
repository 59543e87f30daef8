// Package connector links the camera still port to the encoder input.
package connector

import (
	"fmt"
	"log/slog"

	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/pipeline"
)

// ConnectionError is a failure to create or enable a connection.
type ConnectionError struct {
	Out    string
	In     string
	Op     string // "create" or "enable"
	Status pipeline.Status
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connector: %s %s -> %s (%s): %v", e.Op, e.Out, e.In, e.Status, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Connect creates a connection from out to in and enables it.
//
// A connection that was created but could not be enabled is destroyed
// before the error is returned, so the caller never owns a half-built link.
func Connect(backend pipeline.Backend, out, in pipeline.Port, logger *slog.Logger) (pipeline.Connection, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if out == nil || in == nil {
		return nil, &ConnectionError{Out: portName(out), In: portName(in), Op: "create",
			Status: pipeline.StatusInvalid, Err: pipeline.StatusInvalid}
	}

	conn, err := backend.Connect(out, in)
	if err != nil {
		return nil, newError(out, in, "create", err)
	}

	if err := conn.Enable(); err != nil {
		if derr := conn.Destroy(); derr != nil {
			logger.Warn("connector: destroy after failed enable", "out", out.Name(), "in", in.Name(), "error", derr)
		}
		return nil, newError(out, in, "enable", err)
	}

	logger.Debug("connector: connected", "out", out.Name(), "in", in.Name())
	return conn, nil
}

func newError(out, in pipeline.Port, op string, err error) *ConnectionError {
	return &ConnectionError{
		Out:    out.Name(),
		In:     in.Name(),
		Op:     op,
		Status: pipeline.StatusOf(err),
		Err:    err,
	}
}

func portName(p pipeline.Port) string {
	if p == nil {
		return "<nil>"
	}
	return p.Name()
}
