// Package cli implements the voice-cli command tree.
package cli

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/voicecli/internal/app"
	"github.com/MrWong99/voicecli/internal/config"
	"github.com/MrWong99/voicecli/internal/logging"
	"github.com/MrWong99/voicecli/internal/recorder"
	"github.com/MrWong99/voicecli/internal/systemd"
)

// Dependencies holds the process-level hooks the commands call. Tests
// replace them; [DefaultDependencies] returns the real ones.
type Dependencies struct {
	// ConfigPath is bound to the --config flag.
	ConfigPath string

	// RunWorker runs the daemon worker in the foreground until ctx ends.
	RunWorker func(ctx context.Context, cfgPath string, cfg *config.Config, log *logging.Logger) error

	// RunSupervisor runs the supervisor loop until ctx ends or it gives up.
	RunSupervisor func(ctx context.Context, cfgPath string, cfg *config.Config, log *logging.Logger) error

	Kill        func(pid int, sig syscall.Signal) error
	Sleep       func(d time.Duration)
	ListDevices func(ctx context.Context) ([]recorder.Device, error)
	Installer   func() (*systemd.Installer, error)
}

// DefaultDependencies returns the production hooks.
func DefaultDependencies() *Dependencies {
	return &Dependencies{
		ConfigPath:    config.DefaultPath(),
		RunWorker:     runWorker,
		RunSupervisor: runSupervisor,
		Kill:          syscall.Kill,
		Sleep:         time.Sleep,
		ListDevices:   recorder.ListDevices,
		Installer:     systemd.NewInstaller,
	}
}

func getVersion() string {
	if app.Version != "dev" {
		return app.Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}

// NewRootCmd builds the command tree.
func NewRootCmd(deps *Dependencies) *cobra.Command {
	root := &cobra.Command{
		Use:           "voice-cli",
		Short:         "Voice-to-text dictation daemon",
		Long:          "Records speech on a hotkey, transcribes it with two engines, reconciles the results and puts the text on the clipboard.",
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&deps.ConfigPath, "config", deps.ConfigPath, "path to the YAML configuration file")

	root.AddCommand(
		NewStartCmd(deps),
		NewStopCmd(deps),
		NewRestartCmd(deps),
		NewStatusCmd(deps),
		NewToggleCmd(deps),
		NewInstallCmd(deps),
		NewUninstallCmd(deps),
		NewListMicsCmd(deps),
		NewConfigCmd(deps),
		NewBoostCmd(deps),
		NewErrorsCmd(deps),
		NewHealthCmd(deps),
		NewStatsCmd(deps),
	)
	return root
}

// Execute runs the command tree with os.Args and returns the exit code.
func Execute(ctx context.Context) int {
	root := NewRootCmd(DefaultDependencies())
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "voice-cli:", err)
		return 1
	}
	return 0
}
