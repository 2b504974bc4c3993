package dbuslaunch

import (
	"bytes"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/shaharia-lab/dbus-launch/internal/procutil"
)

// The child writes its startup status to fd 3, the first entry of
// ExtraFiles. Keeping it separate from stdout avoids interleaving with
// output from activated services.
const (
	daemonBinary = "dbus-daemon"
	brokerBinary = "dbus-broker-launch"

	// exitObserveTimeout bounds how long an EOF on the status pipe may wait
	// for the child's exit status to become observable.
	exitObserveTimeout = 500 * time.Millisecond

	// killReapTimeout bounds the wait for a SIGKILLed process to be reaped.
	killReapTimeout = 5 * time.Second
)

// spawnedProcess wraps a started daemon process together with the read end
// of its startup status pipe.
type spawnedProcess struct {
	cmd    *exec.Cmd
	status *os.File
	stderr *bytes.Buffer

	// waitCh is closed once the reaper goroutine has collected the exit
	// status; cmd.ProcessState is valid only after that.
	waitCh chan struct{}
}

// spawn starts the daemon binary for the given flavor, wiring a dedicated
// pipe for the startup handshake. If any later launch step fails the caller
// must kill the returned process.
func spawn(daemonType DaemonType, program, confFile string) (*spawnedProcess, error) {
	binary := program
	var args []string
	switch daemonType {
	case DBusBroker:
		if binary == "" {
			binary = brokerBinary
		}
		args = []string{"--config-file", confFile, "--status-fd=3"}
	default:
		if binary == "" {
			binary = daemonBinary
		}
		args = []string{"--nofork", "--config-file", confFile, "--print-address=3", "--print-pid=3"}
	}

	r, w, err := os.Pipe()
	if err != nil {
		return nil, &SpawnError{Binary: binary, Err: err}
	}

	stderr := &bytes.Buffer{}
	cmd := exec.Command(binary, args...)
	cmd.Stderr = stderr
	cmd.ExtraFiles = []*os.File{w}

	if err := cmd.Start(); err != nil {
		r.Close()
		w.Close()
		return nil, &SpawnError{Binary: binary, Err: err}
	}
	// The child holds its own copy of the write end now; ours must go so
	// that the read end reports EOF when the child exits.
	w.Close()

	p := &spawnedProcess{
		cmd:    cmd,
		status: r,
		stderr: stderr,
		waitCh: make(chan struct{}),
	}
	go func() {
		cmd.Wait()
		close(p.waitCh)
	}()
	return p, nil
}

func (p *spawnedProcess) pid() int {
	return p.cmd.Process.Pid
}

// exitStatus returns the child's exit code if it has exited and been
// reaped. The second return is false while the child is still running.
func (p *spawnedProcess) exitStatus() (int, bool) {
	select {
	case <-p.waitCh:
		return p.cmd.ProcessState.ExitCode(), true
	default:
		return 0, false
	}
}

// waitTimeout blocks until the child has been reaped or the timeout
// elapses; it reports whether the child exited in time.
func (p *spawnedProcess) waitTimeout(d time.Duration) bool {
	select {
	case <-p.waitCh:
		return true
	case <-time.After(d):
		return false
	}
}

// kill forcefully terminates the child. Used on launch failure paths where
// no Daemon handle exists yet; errors are deliberately discarded since the
// process may already be gone.
func (p *spawnedProcess) kill() {
	if _, exited := p.exitStatus(); exited {
		return
	}
	_ = procutil.SendSignal(p.pid(), syscall.SIGKILL)
	p.waitTimeout(killReapTimeout)
}

// capturedStderr returns the child's standard error output collected so
// far. Only safe to call after the child has been reaped.
func (p *spawnedProcess) capturedStderr() string {
	return p.stderr.String()
}
