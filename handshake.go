package dbuslaunch

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Startup handshake dialects, one per daemon flavor.
//
// dbus-daemon reports the address and pid on two separate lines, in no
// guaranteed order. Lines may carry the dbus-launch style key prefixes or be
// bare values (an address, or a pid consisting only of digits).
//
// dbus-broker reports a single JSON record carrying both fields.
//
// Both flavors may emit blank lines and a trailing READY marker; any line
// starting with an error marker aborts the handshake.
const (
	addressKey  = "DBUS_SESSION_BUS_ADDRESS="
	pidKey      = "DBUS_SESSION_BUS_PID="
	readyMarker = "READY"
	errorMarker = "ERROR:"
)

// handshakeParser accumulates startup output lines until the (address, pid)
// pair for the selected flavor is complete.
type handshakeParser struct {
	daemonType DaemonType

	address string
	pid     int
}

type brokerStatus struct {
	Address string `json:"address"`
	PID     int    `json:"pid"`
}

// feed consumes one line of startup output. It returns true once both the
// address and the pid are known.
func (p *handshakeParser) feed(raw string) (bool, error) {
	line := strings.TrimSpace(raw)
	if line == "" {
		return false, nil
	}
	if strings.HasPrefix(strings.ToUpper(line), errorMarker) {
		return false, &HandshakeParseError{Line: line, Err: errors.New("daemon reported a startup error")}
	}
	if line == readyMarker {
		return p.complete(), nil
	}

	if p.daemonType == DBusBroker {
		return p.feedBroker(line)
	}
	return p.feedDaemon(line)
}

func (p *handshakeParser) feedDaemon(line string) (bool, error) {
	switch {
	case strings.HasPrefix(line, addressKey):
		return p.setAddress(line, strings.TrimPrefix(line, addressKey))
	case strings.HasPrefix(line, pidKey):
		return p.setPID(line, strings.TrimPrefix(line, pidKey))
	case isNumeric(line):
		return p.setPID(line, line)
	case looksLikeAddress(line):
		return p.setAddress(line, line)
	default:
		return false, &HandshakeParseError{Line: line, Err: errors.New("unrecognized startup line")}
	}
}

func (p *handshakeParser) feedBroker(line string) (bool, error) {
	var rec brokerStatus
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		return false, &HandshakeParseError{Line: line, Err: fmt.Errorf("decode status record: %w", err)}
	}
	if rec.Address == "" {
		return false, &HandshakeParseError{Line: line, Err: errors.New("status record has no address")}
	}
	if rec.PID <= 0 {
		return false, &HandshakeParseError{Line: line, Err: errors.New("status record has no pid")}
	}
	p.address = rec.Address
	p.pid = rec.PID
	return true, nil
}

func (p *handshakeParser) setAddress(line, value string) (bool, error) {
	if value == "" {
		return false, &HandshakeParseError{Line: line, Err: errors.New("empty bus address")}
	}
	p.address = value
	return p.complete(), nil
}

func (p *handshakeParser) setPID(line, value string) (bool, error) {
	pid, err := strconv.Atoi(value)
	if err != nil || pid <= 0 {
		return false, &HandshakeParseError{Line: line, Err: errors.New("invalid process id")}
	}
	p.pid = pid
	return p.complete(), nil
}

func (p *handshakeParser) complete() bool {
	return p.address != "" && p.pid > 0
}

// readHandshake consumes the startup status stream until the handshake
// completes, the stream closes, or the timeout elapses. On any failure the
// caller still owns the process and must kill it.
func readHandshake(proc *spawnedProcess, daemonType DaemonType, timeout time.Duration) (string, int, error) {
	if err := proc.status.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return "", 0, fmt.Errorf("arm handshake deadline: %w", err)
	}

	parser := handshakeParser{daemonType: daemonType}
	scanner := bufio.NewScanner(proc.status)
	for scanner.Scan() {
		done, err := parser.feed(scanner.Text())
		if err != nil {
			return "", 0, err
		}
		if done {
			return parser.address, parser.pid, nil
		}
	}

	if err := scanner.Err(); err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return "", 0, &HandshakeTimeoutError{Timeout: timeout}
		}
		return "", 0, &HandshakeParseError{Err: fmt.Errorf("read startup output: %w", err)}
	}

	// EOF. Either the daemon died, or it closed the status channel without
	// finishing the handshake.
	if proc.waitTimeout(exitObserveTimeout) {
		code, _ := proc.exitStatus()
		return "", 0, &ProcessExitedError{
			ExitCode: code,
			Stderr:   strings.TrimSpace(proc.capturedStderr()),
		}
	}
	return "", 0, &HandshakeParseError{Err: errors.New("startup stream closed before the handshake completed")}
}

func isNumeric(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}

// looksLikeAddress reports whether a bare line is a plausible bus address:
// a transport name followed by a colon, as in unix:dir=/tmp or
// tcp:host=localhost.
func looksLikeAddress(s string) bool {
	i := strings.IndexByte(s, ':')
	if i <= 0 {
		return false
	}
	for _, c := range s[:i] {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '-' {
			return false
		}
	}
	return true
}
