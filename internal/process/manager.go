package process

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"
)

const (
	PIDFilename = ".llm-bridge.pid"
	RefFilename = "llm-bridge-reference-count.txt"
)

// Manager tracks the background sidecar through a PID file and counts the
// CLI invocations sharing it through a reference file.
type Manager struct {
	pidFile string
	refFile string
	logger  *slog.Logger
	mu      sync.RWMutex

	// ready reports whether the service accepts requests. Defaults to the
	// PID check alone.
	ready func() bool
	// command builds the process started by StartServiceIfNeeded.
	command func() *exec.Cmd
}

func NewManager(baseDir string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		pidFile: filepath.Join(baseDir, PIDFilename),
		refFile: filepath.Join(baseDir, RefFilename),
		logger:  logger,
		command: func() *exec.Cmd { return exec.Command(os.Args[0], "start") },
	}
	m.ready = m.IsRunning
	return m
}

// WithHealthCheck makes readiness depend on a 200 from healthURL as well
// as a live PID.
func (m *Manager) WithHealthCheck(healthURL string) *Manager {
	client := &http.Client{Timeout: time.Second}
	m.ready = func() bool {
		if !m.IsRunning() {
			return false
		}
		resp, err := client.Get(healthURL)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}
	return m
}

func (m *Manager) WritePID() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(m.pidFile), 0750); err != nil {
		return fmt.Errorf("create pid directory: %w", err)
	}

	pid := strconv.Itoa(os.Getpid())

	return os.WriteFile(m.pidFile, []byte(pid), 0600)
}

func (m *Manager) ReadPID() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return readInt(m.pidFile)
}

func (m *Manager) IsRunning() bool {
	pid := m.ReadPID()
	if pid == 0 {
		return false
	}

	if err := syscall.Kill(pid, 0); err != nil {
		m.CleanupPID()
		return false
	}

	return true
}

func (m *Manager) Stop() error {
	pid := m.ReadPID()
	if pid == 0 {
		return nil
	}

	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to send SIGTERM to process %d: %w", pid, err)
	}

	// Wait for process to exit
	for i := 0; i < 50; i++ { // 5 seconds timeout
		if !m.IsRunning() {
			break
		}

		time.Sleep(100 * time.Millisecond)
	}

	m.CleanupPID()

	return nil
}

func (m *Manager) CleanupPID() {
	m.remove(m.pidFile, "PID")
}

func (m *Manager) IncrementRef() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := readInt(m.refFile) + 1
	m.writeRef(count)
	return count
}

func (m *Manager) DecrementRef() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := readInt(m.refFile)
	if count > 0 {
		count--
		m.writeRef(count)
	}
	return count
}

func (m *Manager) ReadRef() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return readInt(m.refFile)
}

// writeRef expects m.mu to be held.
func (m *Manager) writeRef(count int) {
	if err := os.MkdirAll(filepath.Dir(m.refFile), 0750); err != nil {
		m.logger.Warn("Failed to create reference directory", "error", err)
		return
	}
	if err := os.WriteFile(m.refFile, []byte(strconv.Itoa(count)), 0600); err != nil {
		m.logger.Warn("Failed to write reference file", "error", err)
	}
}

func (m *Manager) CleanupRef() {
	m.remove(m.refFile, "reference")
}

func (m *Manager) remove(path, what string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		m.logger.Warn("Failed to remove "+what+" file", "path", path, "error", err)
	}
}

func (m *Manager) WaitForService(timeout time.Duration) bool {
	expire := time.Now().Add(timeout)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for time.Now().Before(expire) {
		if m.ready() {
			return true
		}

		<-ticker.C
	}

	return false
}

// StartServiceIfNeeded launches the sidecar in the background unless it is
// already up. The boolean reports whether this call started it.
func (m *Manager) StartServiceIfNeeded() (bool, error) {
	if m.ready() {
		return false, nil
	}

	cmd := m.command()
	if err := cmd.Start(); err != nil {
		return false, fmt.Errorf("failed to start service: %w", err)
	}
	m.logger.Debug("Started background service", "pid", cmd.Process.Pid)

	if !m.WaitForService(10 * time.Second) {
		return false, errors.New("service startup timeout")
	}

	return true, nil
}

func readInt(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}

	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return n
}
