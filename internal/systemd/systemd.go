// Package systemd installs voice-cli as a systemd user service.
package systemd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"
)

// UnitName is the service name used with systemctl.
const UnitName = "voice-cli"

var unitTemplate = template.Must(template.New("unit").Parse(`[Unit]
Description=voice-cli dictation daemon
After=graphical-session.target pipewire.service
PartOf=graphical-session.target

[Service]
Type=simple
ExecStart={{.Exec}} start
Restart=on-failure
RestartSec=5
{{- range .Env}}
Environment={{.}}
{{- end}}

[Install]
WantedBy=default.target
`))

// Runner executes `systemctl --user` with args.
type Runner func(ctx context.Context, args ...string) error

// Systemctl runs the real systemctl binary.
func Systemctl(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "systemctl", append([]string{"--user"}, args...)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("systemctl --user %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Installer writes and removes the unit file.
type Installer struct {
	// Dir is the systemd user unit directory.
	Dir string

	// Exec is the absolute path of the voice-cli binary.
	Exec string

	// Env holds KEY=value pairs added to the unit.
	Env []string

	Run Runner
}

// NewInstaller returns an Installer for the current user and binary.
func NewInstaller() (*Installer, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("systemd: home dir: %w", err)
	}
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("systemd: locate binary: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return &Installer{
		Dir:  filepath.Join(home, ".config", "systemd", "user"),
		Exec: exe,
		Run:  Systemctl,
	}, nil
}

// UnitPath returns the unit file location.
func (i *Installer) UnitPath() string {
	return filepath.Join(i.Dir, UnitName+".service")
}

// Render returns the unit file contents.
func (i *Installer) Render() ([]byte, error) {
	var buf bytes.Buffer
	if err := unitTemplate.Execute(&buf, i); err != nil {
		return nil, fmt.Errorf("systemd: render unit: %w", err)
	}
	return buf.Bytes(), nil
}

// Install writes the unit, reloads systemd and enables and starts the service.
func (i *Installer) Install(ctx context.Context) error {
	unit, err := i.Render()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(i.Dir, 0o755); err != nil {
		return fmt.Errorf("systemd: create unit dir: %w", err)
	}
	if err := os.WriteFile(i.UnitPath(), unit, 0o644); err != nil {
		return fmt.Errorf("systemd: write unit: %w", err)
	}
	slog.Info("wrote systemd unit", "path", i.UnitPath())

	for _, args := range [][]string{
		{"daemon-reload"},
		{"enable", UnitName},
		{"start", UnitName},
	} {
		if err := i.Run(ctx, args...); err != nil {
			return fmt.Errorf("systemd: install: %w", err)
		}
	}
	return nil
}

// ErrNotInstalled is returned by [Installer.Uninstall] when no unit exists.
var ErrNotInstalled = errors.New("systemd: service file not found")

// Uninstall stops and disables the service, removes the unit and reloads
// systemd. Stop and disable failures are ignored since the service may
// already be inactive.
func (i *Installer) Uninstall(ctx context.Context) error {
	if _, err := os.Stat(i.UnitPath()); errors.Is(err, fs.ErrNotExist) {
		return ErrNotInstalled
	}
	for _, args := range [][]string{{"stop", UnitName}, {"disable", UnitName}} {
		if err := i.Run(ctx, args...); err != nil {
			slog.Debug("ignoring systemctl failure", "args", args, "err", err)
		}
	}
	if err := os.Remove(i.UnitPath()); err != nil {
		return fmt.Errorf("systemd: remove unit: %w", err)
	}
	if err := i.Run(ctx, "daemon-reload"); err != nil {
		return fmt.Errorf("systemd: uninstall: %w", err)
	}
	return nil
}
