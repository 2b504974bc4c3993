package procutil

import (
	"os/exec"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startSleeper starts a short-lived child process for signal tests. Skips
// the test in environments that forbid fork/exec.
func startSleeper(t *testing.T) *exec.Cmd {
	t.Helper()
	cmd := exec.Command("sleep", "30")
	err := cmd.Start()
	if err != nil && strings.Contains(err.Error(), "operation not permitted") {
		t.Skipf("spawn not permitted in this environment: %v", err)
	}
	require.NoError(t, err, "failed to start helper process")
	t.Cleanup(func() {
		cmd.Process.Kill()
		cmd.Wait()
	})
	return cmd
}

func TestIsRunning(t *testing.T) {
	cmd := startSleeper(t)
	assert.True(t, IsRunning(cmd.Process.Pid), "live process should be reported running")

	require.NoError(t, cmd.Process.Kill())
	cmd.Wait()
	assert.False(t, IsRunning(cmd.Process.Pid), "reaped process should not be reported running")
}

func TestSendSignal(t *testing.T) {
	cmd := startSleeper(t)

	require.NoError(t, SendSignal(cmd.Process.Pid, syscall.SIGTERM))
	cmd.Wait()
	assert.False(t, IsRunning(cmd.Process.Pid))

	assert.Error(t, SendSignal(cmd.Process.Pid, syscall.SIGTERM),
		"signalling a reaped process should fail")
}

func TestWaitForExit(t *testing.T) {
	cmd := startSleeper(t)

	err := WaitForExit(cmd.Process.Pid, 100*time.Millisecond)
	assert.ErrorIs(t, err, ErrWaitTimeout, "live process should time out")

	require.NoError(t, cmd.Process.Kill())
	go cmd.Wait()
	assert.NoError(t, WaitForExit(cmd.Process.Pid, 2*time.Second),
		"killed process should be observed exiting")
}
