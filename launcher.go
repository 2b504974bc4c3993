package dbuslaunch

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shaharia-lab/dbus-launch/internal/busconfig"
	"github.com/shaharia-lab/dbus-launch/internal/logging"
)

const (
	// DefaultTimeout is the default bound on the startup handshake.
	DefaultTimeout = 10 * time.Second

	// DefaultGracePeriod is the default wait between asking the daemon to
	// terminate and force-killing it.
	DefaultGracePeriod = 500 * time.Millisecond
)

// Launcher accumulates the configuration for one or more independent daemon
// launches. Builder methods mutate the receiver and return it for chaining;
// Launch itself never consumes the builder, so a single Launcher can start
// any number of isolated daemons.
type Launcher struct {
	daemonType     DaemonType
	program        string
	busType        string
	listen         []string
	allowAnonymous bool
	auth           []Auth
	serviceDirs    []string
	services       []Service
	timeout        time.Duration
	gracePeriod    time.Duration
	logger         *zap.Logger
}

// New returns a launcher for the given daemon flavor.
func New(daemonType DaemonType) *Launcher {
	return &Launcher{
		daemonType:  daemonType,
		timeout:     DefaultTimeout,
		gracePeriod: DefaultGracePeriod,
	}
}

// NewDaemon returns a launcher for dbus-daemon.
func NewDaemon() *Launcher {
	return New(DBusDaemon)
}

// NewBroker returns a launcher for dbus-broker.
func NewBroker() *Launcher {
	return New(DBusBroker)
}

// BusType sets the well-known type of the message bus.
func (l *Launcher) BusType(t BusType) *Launcher {
	l.busType = t.String()
	return l
}

// Listen adds an address for the daemon to listen on. Without one the
// daemon listens on a unix socket inside the generated config directory.
func (l *Launcher) Listen(address string) *Launcher {
	l.listen = append(l.listen, address)
	return l
}

// AllowAnonymous authorizes connections that authenticated anonymously.
// It has no practical effect unless the anonymous mechanism is also enabled.
func (l *Launcher) AllowAnonymous() *Launcher {
	l.allowAnonymous = true
	return l
}

// Auth allows an authentication mechanism. By default all known mechanisms
// are allowed.
func (l *Launcher) Auth(a Auth) *Launcher {
	l.auth = append(l.auth, a)
	return l
}

// ServiceDir adds a directory to search for .service activation files.
func (l *Launcher) ServiceDir(path string) *Launcher {
	l.serviceDirs = append(l.serviceDirs, path)
	return l
}

// Service adds an activation entry with the given well-known name and
// executable path. Names must be unique; duplicates are rejected by Launch
// before any process or file is created.
func (l *Launcher) Service(name, exec string) *Launcher {
	l.services = append(l.services, Service{Name: name, Exec: exec})
	return l
}

// Program overrides the daemon binary, primarily for tests.
func (l *Launcher) Program(path string) *Launcher {
	l.program = path
	return l
}

// Timeout overrides the default bound on the startup handshake.
func (l *Launcher) Timeout(d time.Duration) *Launcher {
	l.timeout = d
	return l
}

// GracePeriod overrides how long Release waits for a graceful exit before
// force-killing the daemon.
func (l *Launcher) GracePeriod(d time.Duration) *Launcher {
	l.gracePeriod = d
	return l
}

// Logger attaches a logger for launch and teardown diagnostics. Without one
// the launcher is silent unless the DBUS_LAUNCH_DEBUG or
// DBUS_LAUNCH_LOG_FILE environment variables are set.
func (l *Launcher) Logger(logger *zap.Logger) *Launcher {
	l.logger = logger
	return l
}

func (l *Launcher) validate() error {
	seen := make(map[string]struct{}, len(l.services))
	for _, svc := range l.services {
		if svc.Name == "" || svc.Exec == "" {
			return fmt.Errorf("%w: name and exec are both required", ErrInvalidService)
		}
		if strings.ContainsAny(svc.Name, "/\\") {
			return fmt.Errorf("%w: name %q contains a path separator", ErrInvalidService, svc.Name)
		}
		if _, dup := seen[svc.Name]; dup {
			return &DuplicateServiceNameError{Name: svc.Name}
		}
		seen[svc.Name] = struct{}{}
	}
	return nil
}

// Launch starts a new daemon process. Each call creates its own
// configuration directory and process; on any failure both are cleaned up
// before the error is returned, so a failed Launch never leaks resources.
func (l *Launcher) Launch() (*Daemon, error) {
	logger := l.logger
	if logger == nil {
		logger = logging.FromEnv()
	}
	logger = logger.With(
		zap.String("launch_id", uuid.NewString()),
		zap.Stringer("daemon_type", l.daemonType),
	)

	if err := l.validate(); err != nil {
		return nil, err
	}

	cfg := busconfig.Config{
		BusType:        l.busType,
		AllowAnonymous: l.allowAnonymous,
		Listen:         l.listen,
		ServiceDirs:    l.serviceDirs,
	}
	for _, a := range l.auth {
		cfg.Auth = append(cfg.Auth, a.String())
	}
	for _, svc := range l.services {
		cfg.Services = append(cfg.Services, busconfig.Service{Name: svc.Name, Exec: svc.Exec})
	}

	art, err := busconfig.Write(cfg)
	if err != nil {
		return nil, &ConfigWriteError{Err: err}
	}
	logger.Debug("wrote bus configuration", zap.String("dir", art.Dir))

	handedOff := false
	defer func() {
		if !handedOff {
			os.RemoveAll(art.Dir)
		}
	}()

	proc, err := spawn(l.daemonType, l.program, art.ConfFile)
	if err != nil {
		return nil, err
	}
	logger.Debug("spawned daemon process", zap.Int("pid", proc.pid()))
	defer func() {
		if !handedOff {
			proc.kill()
		}
	}()

	address, pid, err := readHandshake(proc, l.daemonType, l.timeout)
	proc.status.Close()
	if err != nil {
		logger.Debug("startup handshake failed", zap.Error(err))
		return nil, err
	}

	d := &Daemon{
		address:     address,
		pid:         pid,
		configDir:   art.Dir,
		proc:        proc,
		gracePeriod: l.gracePeriod,
		logger:      logger,
	}
	handedOff = true
	logger.Debug("daemon ready", zap.String("address", address), zap.Int("pid", pid))
	return d, nil
}
