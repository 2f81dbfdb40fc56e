package adapter

import (
	"errors"
	"fmt"
)

// NotSupportedError marks a capability-gated operation invoked on an
// adapter that lacks the capability. Expected, not a defect: scenarios
// convert it into a recorded trial outcome instead of failing the run.
type NotSupportedError struct {
	Adapter string
	Op      string
}

func (e *NotSupportedError) Error() string {
	return fmt.Sprintf("%s does not support %s", e.Adapter, e.Op)
}

// IsNotSupported reports whether err is (or wraps) a NotSupportedError.
func IsNotSupported(err error) bool {
	var ns *NotSupportedError
	return errors.As(err, &ns)
}

// NotReadyError marks an operation attempted outside the setup-complete
// state. A sequencing bug in the caller; fatal to that run.
type NotReadyError struct {
	Adapter string
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("%s adapter not set up: call Setup first", e.Adapter)
}

// IsNotReady reports whether err is (or wraps) a NotReadyError.
func IsNotReady(err error) bool {
	var nr *NotReadyError
	return errors.As(err, &nr)
}

// NotFoundError marks an event identifier the backend no longer knows.
// The crash-recovery scenario classifies these as lost.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("event not found: %s", e.ID)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// OpError wraps a backend-protocol failure. Recorded per trial; never
// aborts the scenario.
type OpError struct {
	Adapter string
	Op      string
	Err     error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Adapter, e.Op, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }
