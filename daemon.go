package dbuslaunch

import (
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"

	"github.com/shaharia-lab/dbus-launch/internal/procutil"
)

// Daemon is a running message-bus daemon. It is the sole owner of the
// spawned process and the generated configuration directory; both are torn
// down by Release.
type Daemon struct {
	address     string
	pid         int
	configDir   string
	proc        *spawnedProcess
	gracePeriod time.Duration
	logger      *zap.Logger

	releaseOnce sync.Once
	releaseErr  error
}

// Address returns the bus connection string. It stays readable after
// Release.
func (d *Daemon) Address() string {
	return d.address
}

// PID returns the process id the daemon reported during its startup
// handshake. For dbus-broker this may differ from the supervising launcher
// process the handle owns.
func (d *Daemon) PID() int {
	return d.pid
}

// ConfigDir returns the directory holding the generated configuration. It
// is removed when the daemon is released.
func (d *Daemon) ConfigDir() string {
	return d.configDir
}

// Running reports whether the spawned process is still alive.
func (d *Daemon) Running() bool {
	if _, exited := d.proc.exitStatus(); exited {
		return false
	}
	return procutil.IsRunning(d.proc.pid())
}

// Connect opens an authenticated connection to the daemon's bus address.
// The caller owns the returned connection.
func (d *Daemon) Connect() (*dbus.Conn, error) {
	conn, err := dbus.Dial(d.address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", d.address, err)
	}
	if err := conn.Auth(nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("authenticate to bus: %w", err)
	}
	if err := conn.Hello(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("register on bus: %w", err)
	}
	return conn, nil
}

// Release stops the daemon process and removes the generated configuration
// directory. It asks for a graceful exit first and force-kills after the
// grace period. Release is idempotent and safe to call from concurrent
// cleanup paths; every call after the first returns the first call's result
// without repeating any action.
func (d *Daemon) Release() error {
	d.releaseOnce.Do(func() {
		d.releaseErr = d.teardown()
	})
	return d.releaseErr
}

// Close releases the daemon. It exists so handles satisfy io.Closer and
// work with defer-based cleanup helpers.
func (d *Daemon) Close() error {
	return d.Release()
}

func (d *Daemon) teardown() error {
	pid := d.proc.pid()
	if _, exited := d.proc.exitStatus(); !exited {
		// Errors from signalling are ignored: the process may exit between
		// the liveness check and the kill.
		_ = procutil.SendSignal(pid, syscall.SIGTERM)
		if !d.proc.waitTimeout(d.gracePeriod) {
			d.logger.Debug("daemon ignored termination request, killing",
				zap.Int("pid", pid), zap.Duration("grace_period", d.gracePeriod))
			_ = procutil.SendSignal(pid, syscall.SIGKILL)
			d.proc.waitTimeout(killReapTimeout)
		}
	}

	if err := os.RemoveAll(d.configDir); err != nil {
		return fmt.Errorf("remove config directory: %w", err)
	}
	d.logger.Debug("daemon released", zap.Int("pid", pid))
	return nil
}
