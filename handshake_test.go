package dbuslaunch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// feedAll pushes lines through a parser and returns the completed pair, or
// the first error.
func feedAll(t *testing.T, daemonType DaemonType, lines []string) (string, int, error) {
	t.Helper()
	p := handshakeParser{daemonType: daemonType}
	for _, line := range lines {
		done, err := p.feed(line)
		if err != nil {
			return "", 0, err
		}
		if done {
			return p.address, p.pid, nil
		}
	}
	t.Fatalf("handshake did not complete from %q", lines)
	return "", 0, nil
}

func TestHandshakeDaemonStyle(t *testing.T) {
	cases := []struct {
		name  string
		lines []string
	}{
		{
			name: "address then pid",
			lines: []string{
				"DBUS_SESSION_BUS_ADDRESS=unix:path=/tmp/bus.sock",
				"DBUS_SESSION_BUS_PID=4242",
			},
		},
		{
			name: "pid before address",
			lines: []string{
				"DBUS_SESSION_BUS_PID=4242",
				"DBUS_SESSION_BUS_ADDRESS=unix:path=/tmp/bus.sock",
			},
		},
		{
			name: "bare values as printed by dbus-daemon",
			lines: []string{
				"unix:path=/tmp/bus.sock",
				"4242",
			},
		},
		{
			name: "blank lines and early ready marker are tolerated",
			lines: []string{
				"",
				"READY",
				"   ",
				"DBUS_SESSION_BUS_PID=4242",
				"DBUS_SESSION_BUS_ADDRESS=unix:path=/tmp/bus.sock",
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			address, pid, err := feedAll(t, DBusDaemon, tc.lines)
			require.NoError(t, err)
			assert.Equal(t, "unix:path=/tmp/bus.sock", address)
			assert.Equal(t, 4242, pid)
		})
	}
}

func TestHandshakeDaemonStyleErrors(t *testing.T) {
	cases := []struct {
		name string
		line string
	}{
		{"error marker", "ERROR: failed to bind socket"},
		{"lower-case error marker", "error: failed to bind socket"},
		{"non-numeric pid", "DBUS_SESSION_BUS_PID=forty-two"},
		{"zero pid", "DBUS_SESSION_BUS_PID=0"},
		{"empty address", "DBUS_SESSION_BUS_ADDRESS="},
		{"unrecognized line", "starting up, please hold"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := handshakeParser{daemonType: DBusDaemon}
			_, err := p.feed(tc.line)
			require.Error(t, err)

			var parseErr *HandshakeParseError
			require.ErrorAs(t, err, &parseErr, "all malformed input maps to a parse error")
			assert.Equal(t, tc.line, parseErr.Line, "the offending line is preserved for diagnostics")
		})
	}
}

func TestHandshakeBrokerStyle(t *testing.T) {
	address, pid, err := feedAll(t, DBusBroker, []string{
		"",
		`{"address":"unix:path=/tmp/broker.sock","pid":77}`,
	})
	require.NoError(t, err)
	assert.Equal(t, "unix:path=/tmp/broker.sock", address)
	assert.Equal(t, 77, pid)
}

func TestHandshakeBrokerStyleErrors(t *testing.T) {
	cases := []struct {
		name string
		line string
	}{
		{"not json", "address=unix:path=/tmp pid=1"},
		{"missing address", `{"pid":12}`},
		{"missing pid", `{"address":"unix:path=/tmp/broker.sock"}`},
		{"negative pid", `{"address":"unix:path=/tmp/broker.sock","pid":-1}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := handshakeParser{daemonType: DBusBroker}
			_, err := p.feed(tc.line)

			var parseErr *HandshakeParseError
			require.ErrorAs(t, err, &parseErr)
			assert.Equal(t, tc.line, parseErr.Line)
		})
	}
}

func TestHandshakeErrorKindsAreDistinguishable(t *testing.T) {
	timeoutErr := error(&HandshakeTimeoutError{Timeout: DefaultTimeout})
	parseErr := error(&HandshakeParseError{Line: "x", Err: errors.New("bad")})

	var asTimeout *HandshakeTimeoutError
	assert.True(t, errors.As(timeoutErr, &asTimeout))
	assert.False(t, errors.As(parseErr, &asTimeout),
		"parse errors must not match timeout errors, callers branch on the kind")
}

func TestLooksLikeAddress(t *testing.T) {
	assert.True(t, looksLikeAddress("unix:dir=/tmp"))
	assert.True(t, looksLikeAddress("tcp:host=localhost,port=0"))
	assert.False(t, looksLikeAddress("no transport here"))
	assert.False(t, looksLikeAddress(":missing"))
	assert.False(t, looksLikeAddress("1234"))
}
