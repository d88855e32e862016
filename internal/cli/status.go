package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/voicecli/internal/config"
	"github.com/MrWong99/voicecli/internal/control"
	"github.com/MrWong99/voicecli/internal/daemon"
	"github.com/MrWong99/voicecli/internal/pidfile"
)

func NewStatusCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			status, pid := pidfile.Check(config.PIDPath())
			switch status {
			case pidfile.Stopped:
				fmt.Fprintln(out, "Status: Stopped")
				return nil
			case pidfile.Dead:
				fmt.Fprintln(out, "Status: Dead (PID file exists but process is not running)")
				return nil
			}

			fmt.Fprintf(out, "Status: Running (PID: %d)\n", pid)
			snap, err := readSnapshot(config.StatePath())
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "State:  %s\n", strings.ToUpper(string(snap.Status)))
			fmt.Fprintf(out, "Uptime: %ds\n", snap.Uptime)
			fmt.Fprintf(out, "Errors: %d\n", snap.ErrorCount)
			if snap.LastTranscription != nil {
				fmt.Fprintf(out, "Last:   %s\n", snap.LastTranscription.Local().Format(time.DateTime))
			}
			if snap.LastError != "" {
				fmt.Fprintf(out, "Error:  %s\n", snap.LastError)
			}
			return nil
		},
	}
}

func readSnapshot(path string) (daemon.Snapshot, error) {
	var snap daemon.Snapshot
	data, err := os.ReadFile(path)
	if err != nil {
		return snap, err
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("decode %q: %w", path, err)
	}
	return snap, nil
}

func NewToggleCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle",
		Short: "Start or stop a recording",
		Long:  "Start or stop a recording in the running daemon. Bind this command to the dictation hotkey.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(deps.ConfigPath)
			if err != nil {
				return err
			}
			if _, err := control.Send(cmd.Context(), cfg.SocketPath(), control.ActionToggle); err != nil {
				if errors.Is(err, control.ErrDaemonNotRunning) {
					return errors.New("daemon is not running; start it with `voice-cli start`")
				}
				return err
			}
			return nil
		},
	}
}
