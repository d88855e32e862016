package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/voicecli/internal/app"
	"github.com/MrWong99/voicecli/internal/config"
	"github.com/MrWong99/voicecli/internal/logging"
	"github.com/MrWong99/voicecli/internal/output"
	"github.com/MrWong99/voicecli/internal/pidfile"
	"github.com/MrWong99/voicecli/internal/supervisor"
)

// restartPause is how long restart waits for the old worker to exit.
const restartPause = time.Second

func NewStartCmd(deps *Dependencies) *cobra.Command {
	var noSupervisor, worker bool

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the daemon",
		Long:  "Start the daemon in the foreground. By default a supervisor process restarts the worker after crashes.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if status, pid := pidfile.Check(config.PIDPath()); status == pidfile.Running {
				return fmt.Errorf("daemon is already running (PID: %d)", pid)
			}
			supervised := !noSupervisor && !worker && !supervisor.IsWorker()
			return startDaemon(cmd, deps, supervised)
		},
	}

	cmd.Flags().BoolVar(&noSupervisor, "no-supervisor", false, "Run the worker directly without a supervisor")
	cmd.Flags().BoolVar(&worker, "daemon-worker", false, "Run as a supervised worker (set by the supervisor)")
	_ = cmd.Flags().MarkHidden("daemon-worker")

	return cmd
}

func startDaemon(cmd *cobra.Command, deps *Dependencies, supervised bool) error {
	cfg, err := config.Load(deps.ConfigPath)
	if err != nil {
		return err
	}
	log, err := logging.New(logging.Options{Level: cfg.LogLevel, Dir: cfg.LogDir(), Stderr: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}
	defer log.Close()
	slog.SetDefault(log.Logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	if supervised {
		fmt.Fprintln(out, "Starting daemon with supervisor...")
		return deps.RunSupervisor(ctx, deps.ConfigPath, cfg, log)
	}
	fmt.Fprintln(out, "Starting daemon worker...")
	return deps.RunWorker(ctx, deps.ConfigPath, cfg, log)
}

func runWorker(ctx context.Context, cfgPath string, cfg *config.Config, log *logging.Logger) error {
	application, err := app.New(ctx, cfgPath, cfg, log)
	if err != nil {
		log.Error("failed to initialise daemon", "err", err)
		return err
	}

	runErr := application.Run(ctx)
	if runErr != nil {
		log.Error("daemon run error", "err", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown error", "err", err)
	}
	return runErr
}

func runSupervisor(ctx context.Context, cfgPath string, cfg *config.Config, log *logging.Logger) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate binary: %w", err)
	}
	sup := supervisor.New(
		supervisor.ExecSpawner(exe, "--config", cfgPath, "start", supervisor.WorkerFlag),
		output.NewNotifier(cfg.Behavior.Notifications),
		supervisor.WithLogger(log.Logger),
	)
	return sup.Run(ctx)
}

func NewStopCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := pidfile.Read(config.PIDPath())
			if errors.Is(err, pidfile.ErrNotRunning) {
				fmt.Fprintln(cmd.ErrOrStderr(), "Daemon is not running (no PID file found)")
				return nil
			}
			if err != nil {
				return err
			}

			if err := deps.Kill(pid, syscall.SIGTERM); err != nil {
				_ = pidfile.Remove(config.PIDPath())
				return fmt.Errorf("failed to stop daemon (PID: %d): %w", pid, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stopped daemon (PID: %d)\n", pid)

			if err := os.Remove(config.StatePath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
				slog.Debug("remove state file", "err", err)
			}
			return nil
		},
	}
}

func NewRestartCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Restart the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if status, pid := pidfile.Check(config.PIDPath()); status == pidfile.Running {
				if err := deps.Kill(pid, syscall.SIGTERM); err != nil {
					return fmt.Errorf("failed to stop daemon (PID: %d): %w", pid, err)
				}
				fmt.Fprintln(out, "Stopping daemon...")
				deps.Sleep(restartPause)
			}
			fmt.Fprintln(out, "Starting daemon...")
			return startDaemon(cmd, deps, true)
		},
	}
}
