// Package dbuslaunch starts an isolated D-Bus daemon process for the
// duration of a test or session.
//
// A Launcher builds the daemon configuration, spawns either a dbus-daemon or
// a dbus-broker process, and waits for the startup handshake that reports
// the bus address and process id. The returned Daemon owns the process and
// the generated configuration files; releasing it stops the process and
// removes every temporary artifact.
//
// Launching a daemon:
//
//	daemon, err := dbuslaunch.NewDaemon().Launch()
//	if err != nil {
//		// handle error
//	}
//	defer daemon.Release()
//
//	// Connect clients to daemon.Address().
//
// Starting custom services using D-Bus activation:
//
//	daemon, err := dbuslaunch.NewDaemon().
//		Service("com.example.Test", "/usr/lib/test-service").
//		Launch()
//
// Requesting the name com.example.Test on the bus then causes the daemon to
// execute /usr/lib/test-service.
package dbuslaunch

import "fmt"

// DaemonType selects which message-bus implementation to launch. It
// determines the binary invoked, its argument set, and the startup
// handshake format.
type DaemonType int

const (
	// DBusDaemon launches dbus-daemon, the reference implementation.
	DBusDaemon DaemonType = iota
	// DBusBroker launches dbus-broker.
	DBusBroker
)

// String implements fmt.Stringer.
func (t DaemonType) String() string {
	switch t {
	case DBusDaemon:
		return "dbus-daemon"
	case DBusBroker:
		return "dbus-broker"
	default:
		return fmt.Sprintf("DaemonType(%d)", int(t))
	}
}

// BusType is a well-known message bus type.
type BusType int

const (
	// SessionBus is the per-user session bus.
	SessionBus BusType = iota
	// SystemBus is the system-wide bus.
	SystemBus
)

// String implements fmt.Stringer.
func (t BusType) String() string {
	switch t {
	case SessionBus:
		return "session"
	case SystemBus:
		return "system"
	default:
		return fmt.Sprintf("BusType(%d)", int(t))
	}
}

// Auth is a bus authentication mechanism.
type Auth int

const (
	// AuthAnonymous allows unauthenticated connections.
	AuthAnonymous Auth = iota
	// AuthExternal authenticates by connection credentials.
	AuthExternal
	// AuthCookieSHA1 authenticates by the DBUS_COOKIE_SHA1 mechanism.
	AuthCookieSHA1
)

// String implements fmt.Stringer.
func (a Auth) String() string {
	switch a {
	case AuthAnonymous:
		return "ANONYMOUS"
	case AuthExternal:
		return "EXTERNAL"
	case AuthCookieSHA1:
		return "DBUS_COOKIE_SHA1"
	default:
		return fmt.Sprintf("Auth(%d)", int(a))
	}
}

// Service is an activation entry: a well-known bus name mapped to the
// executable the daemon starts on demand when a client requests the name.
type Service struct {
	Name string
	Exec string
}
