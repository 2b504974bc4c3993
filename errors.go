package dbuslaunch

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidService is wrapped by validation errors for service entries
// with an empty name, an empty executable, or a name that is not usable as
// an activation file name.
var ErrInvalidService = errors.New("invalid service definition")

// ConfigWriteError reports a failure to create or write the temporary bus
// configuration.
type ConfigWriteError struct {
	Err error
}

// Error implements the error interface.
func (e *ConfigWriteError) Error() string {
	return fmt.Sprintf("write bus configuration: %v", e.Err)
}

// Unwrap returns the underlying filesystem error.
func (e *ConfigWriteError) Unwrap() error { return e.Err }

// SpawnError reports a failure to start the daemon binary.
type SpawnError struct {
	Binary string
	Err    error
}

// Error implements the error interface.
func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Binary, e.Err)
}

// Unwrap returns the underlying exec error.
func (e *SpawnError) Unwrap() error { return e.Err }

// HandshakeTimeoutError reports that the daemon did not complete the
// startup handshake within the configured bound. The process has already
// been killed when this error is returned from Launch. Callers may retry a
// whole Launch with a longer Timeout.
type HandshakeTimeoutError struct {
	Timeout time.Duration
}

// Error implements the error interface.
func (e *HandshakeTimeoutError) Error() string {
	return fmt.Sprintf("daemon did not report readiness within %v", e.Timeout)
}

// HandshakeParseError reports malformed or unexpected startup output. Line
// holds the offending raw line when one was read.
type HandshakeParseError struct {
	Line string
	Err  error
}

// Error implements the error interface.
func (e *HandshakeParseError) Error() string {
	if e.Line != "" {
		return fmt.Sprintf("malformed startup output %q: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("malformed startup output: %v", e.Err)
}

// Unwrap returns the underlying cause.
func (e *HandshakeParseError) Unwrap() error { return e.Err }

// ProcessExitedError reports that the daemon process terminated before
// completing the startup handshake.
type ProcessExitedError struct {
	// ExitCode is the captured exit status; -1 when the process was
	// terminated by a signal.
	ExitCode int
	// Stderr holds the process's captured standard error output, if any.
	Stderr string
}

// Error implements the error interface.
func (e *ProcessExitedError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("daemon exited with status %d before startup completed: %s", e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("daemon exited with status %d before startup completed", e.ExitCode)
}

// DuplicateServiceNameError reports two activation entries sharing a name.
// It is returned by Launch before any process or file is created.
type DuplicateServiceNameError struct {
	Name string
}

// Error implements the error interface.
func (e *DuplicateServiceNameError) Error() string {
	return fmt.Sprintf("duplicate service name %q", e.Name)
}
