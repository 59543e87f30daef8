package component

import (
	"fmt"

	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/pipeline"
)

// CreationError is a failed step while building a stage. The partially
// built component has already been destroyed when it is returned.
type CreationError struct {
	Component string
	Stage     string
	Status    pipeline.Status
	Err       error
}

func (e *CreationError) Error() string {
	return fmt.Sprintf("component: create %s failed at %s (%s): %v", e.Component, e.Stage, e.Status, e.Err)
}

func (e *CreationError) Unwrap() error { return e.Err }

func creationError(component, stage string, err error) *CreationError {
	return &CreationError{
		Component: component,
		Stage:     stage,
		Status:    pipeline.StatusOf(err),
		Err:       err,
	}
}

// PortError is a failed operation on an already built port.
type PortError struct {
	Port string
	Op   string
	Err  error
}

func (e *PortError) Error() string {
	return fmt.Sprintf("component: %s on %s: %v", e.Op, e.Port, e.Err)
}

func (e *PortError) Unwrap() error { return e.Err }

// NewPortError wraps err from op on port.
func NewPortError(port pipeline.Port, op string, err error) *PortError {
	name := "<nil>"
	if port != nil {
		name = port.Name()
	}
	return &PortError{Port: name, Op: op, Err: err}
}
