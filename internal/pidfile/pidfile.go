// Package pidfile records the running daemon's process id.
package pidfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/MrWong99/voicecli/internal/atomicfile"
)

// ErrNotRunning is returned by [Read] when no pid file exists.
var ErrNotRunning = errors.New("pidfile: daemon is not running")

// Write records pid at path.
func Write(path string, pid int) error {
	if err := atomicfile.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0o600); err != nil {
		return fmt.Errorf("pidfile: write: %w", err)
	}
	return nil
}

// Read returns the pid stored at path.
func Read(path string) (int, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, ErrNotRunning
	}
	if err != nil {
		return 0, fmt.Errorf("pidfile: read: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("pidfile: %q holds no valid pid", path)
	}
	return pid, nil
}

// Remove deletes the pid file. A missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("pidfile: remove: %w", err)
	}
	return nil
}

// Alive reports whether a process with pid exists, probing it with signal 0.
// A process owned by another user counts as alive.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = p.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

// Status describes what the pid file says about the daemon.
type Status int

const (
	// Stopped means no pid file exists.
	Stopped Status = iota
	// Running means the recorded process is alive.
	Running
	// Dead means a pid file exists but its process is gone.
	Dead
)

// String returns the display name used by `voice-cli status`.
func (s Status) String() string {
	switch s {
	case Running:
		return "Running"
	case Dead:
		return "Dead"
	default:
		return "Stopped"
	}
}

// Check reads path and classifies the daemon.
func Check(path string) (Status, int) {
	pid, err := Read(path)
	if err != nil {
		if errors.Is(err, ErrNotRunning) {
			return Stopped, 0
		}
		return Dead, 0
	}
	if !Alive(pid) {
		return Dead, pid
	}
	return Running, pid
}
