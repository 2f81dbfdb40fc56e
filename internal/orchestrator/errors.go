package orchestrator

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// StartupTimeoutError reports that a service never reached health within
// its deadline. LastErr carries the last observation from the poll loop so
// the failure is diagnosable.
type StartupTimeoutError struct {
	Service string
	Timeout time.Duration
	LastErr error
}

func (e *StartupTimeoutError) Error() string {
	if e.LastErr != nil {
		return fmt.Sprintf("service %q not healthy after %s: %s", e.Service, e.Timeout, e.LastErr)
	}
	return fmt.Sprintf("service %q not healthy after %s", e.Service, e.Timeout)
}

func (e *StartupTimeoutError) Unwrap() error { return e.LastErr }

// PortConflictError is a startup failure traceable to the requested host
// port already being bound. Distinguished from generic startup failure so
// callers can tell the user which port to free.
type PortConflictError struct {
	Service string
	Port    int
	Err     error
}

func (e *PortConflictError) Error() string {
	return fmt.Sprintf("service %q: host port %d is already in use; stop the conflicting process or change the configured port", e.Service, e.Port)
}

func (e *PortConflictError) Unwrap() error { return e.Err }

// IsPortConflict reports whether err is (or wraps) a PortConflictError.
func IsPortConflict(err error) bool {
	var pc *PortConflictError
	return errors.As(err, &pc)
}

// IsStartupTimeout reports whether err is (or wraps) a StartupTimeoutError.
func IsStartupTimeout(err error) bool {
	var st *StartupTimeoutError
	return errors.As(err, &st)
}

// portConflictText matches the Docker daemon's two phrasings for a host
// port that is already bound.
func portConflictText(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "port is already allocated") ||
		strings.Contains(msg, "address already in use")
}
