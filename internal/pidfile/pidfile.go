// Package pidfile keeps a second dualcap daemon from grabbing the same
// camera and display while one is already running.
package pidfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/renameio/v2"
)

// ErrAlreadyRunning is returned when the file names a live process.
var ErrAlreadyRunning = errors.New("another instance is already running")

// PIDFile is a claimed pid file owned by this process.
type PIDFile struct {
	path string
	pid  int
}

// Acquire claims path for the current process. A stale file whose process
// has exited is replaced.
func Acquire(path string) (*PIDFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create pid directory: %w", err)
	}

	if existing, ok := readPID(path); ok {
		if existing != os.Getpid() && isProcessRunning(existing) {
			return nil, fmt.Errorf("%w (PID %d)", ErrAlreadyRunning, existing)
		}
	}

	pid := os.Getpid()
	if err := renameio.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return nil, fmt.Errorf("write pid file: %w", err)
	}
	return &PIDFile{path: path, pid: pid}, nil
}

// Path returns the claimed file path.
func (p *PIDFile) Path() string {
	return p.path
}

// Release deletes the file if it still carries our PID.
func (p *PIDFile) Release() error {
	if p == nil {
		return nil
	}
	if pid, ok := readPID(p.path); ok && pid == p.pid {
		return os.Remove(p.path)
	}
	return nil
}

// Running returns the PID recorded at path if that process is alive.
func Running(path string) (int, bool) {
	pid, ok := readPID(path)
	if !ok || !isProcessRunning(pid) {
		return 0, false
	}
	return pid, true
}

func readPID(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// isProcessRunning sends signal 0 to pid.
func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	switch {
	case err == nil:
		return true
	case errors.Is(err, syscall.EPERM):
		// exists, owned by someone else
		return true
	default:
		return false
	}
}
