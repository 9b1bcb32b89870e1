package process

import (
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_PID(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, nil)

	assert.Equal(t, 0, m.ReadPID())
	assert.False(t, m.IsRunning())

	require.NoError(t, m.WritePID())
	assert.Equal(t, os.Getpid(), m.ReadPID())
	assert.True(t, m.IsRunning())

	m.CleanupPID()
	assert.NoFileExists(t, filepath.Join(dir, PIDFilename))
	assert.NoError(t, m.Stop(), "stopping without a pid is a no-op")
}

func TestManager_InvalidPIDFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, PIDFilename), []byte("not-a-pid"), 0600))

	m := NewManager(dir, nil)
	assert.Equal(t, 0, m.ReadPID())
	assert.False(t, m.IsRunning())
}

func TestManager_StalePIDIsCleaned(t *testing.T) {
	dir := t.TempDir()

	cmd := exec.Command("true")
	require.NoError(t, cmd.Run())
	stale := cmd.ProcessState.Pid()
	require.NoError(t, os.WriteFile(filepath.Join(dir, PIDFilename), []byte(strconv.Itoa(stale)), 0600))

	m := NewManager(dir, nil)
	assert.False(t, m.IsRunning())
	assert.NoFileExists(t, filepath.Join(dir, PIDFilename))
}

func TestManager_RefCount(t *testing.T) {
	m := NewManager(t.TempDir(), nil)

	assert.Equal(t, 0, m.ReadRef())
	assert.Equal(t, 1, m.IncrementRef())
	assert.Equal(t, 2, m.IncrementRef())
	assert.Equal(t, 1, m.DecrementRef())
	assert.Equal(t, 0, m.DecrementRef())
	assert.Equal(t, 0, m.DecrementRef(), "never goes negative")

	m.IncrementRef()
	m.CleanupRef()
	assert.Equal(t, 0, m.ReadRef())
}

func TestManager_StartServiceIfNeeded_AlreadyRunning(t *testing.T) {
	m := NewManager(t.TempDir(), nil)
	require.NoError(t, m.WritePID())

	m.command = func() *exec.Cmd {
		t.Fatal("no process should be started")
		return nil
	}

	started, err := m.StartServiceIfNeeded()
	require.NoError(t, err)
	assert.False(t, started)
}

func TestManager_StartServiceIfNeeded_StartFailure(t *testing.T) {
	m := NewManager(t.TempDir(), nil)
	m.command = func() *exec.Cmd { return exec.Command(filepath.Join(t.TempDir(), "missing-binary")) }

	_, err := m.StartServiceIfNeeded()
	assert.Error(t, err)
}

func TestManager_HealthCheck(t *testing.T) {
	var unhealthy atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if unhealthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	m := NewManager(t.TempDir(), nil).WithHealthCheck(server.URL + "/health")
	assert.False(t, m.WaitForService(200*time.Millisecond), "no pid file yet")

	require.NoError(t, m.WritePID())
	assert.True(t, m.WaitForService(time.Second))

	unhealthy.Store(true)
	assert.False(t, m.WaitForService(200*time.Millisecond))
}
