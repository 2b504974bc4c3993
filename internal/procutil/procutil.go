// Package procutil provides small helpers for checking and terminating
// spawned daemon processes.
package procutil

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"
)

// ErrWaitTimeout is returned by WaitForExit when the process is still
// running after the deadline.
var ErrWaitTimeout = errors.New("timed out waiting for process exit")

const pollInterval = 20 * time.Millisecond

// IsRunning reports whether a process with the given PID currently exists.
func IsRunning(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Unix FindProcess always succeeds; signal 0 performs the actual
	// existence check without delivering anything.
	return proc.Signal(syscall.Signal(0)) == nil
}

// SendSignal delivers sig to the process with the given PID.
func SendSignal(pid int, sig syscall.Signal) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process %d: %w", pid, err)
	}
	if err := proc.Signal(sig); err != nil {
		return fmt.Errorf("signal %v to process %d: %w", sig, pid, err)
	}
	return nil
}

// WaitForExit polls until the process disappears or the timeout elapses.
// Returns ErrWaitTimeout if the process outlives the deadline.
func WaitForExit(pid int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !IsRunning(pid) {
			return nil
		}
		time.Sleep(pollInterval)
	}
	if !IsRunning(pid) {
		return nil
	}
	return ErrWaitTimeout
}
