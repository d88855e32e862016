// Package supervisor keeps the daemon worker process alive. It respawns the
// worker after a crash and gives up when crashes come too fast.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/MrWong99/voicecli/internal/output"
)

const (
	// MaxRestarts is the number of restarts tolerated within CrashWindow.
	MaxRestarts = 3

	// CrashWindow is the span over which restarts are counted.
	CrashWindow = 5 * time.Minute

	// RestartDelay is the pause before a crashed worker is respawned.
	RestartDelay = time.Second

	// WorkerEnv marks the worker process so it does not start a supervisor
	// of its own.
	WorkerEnv = "VOICE_CLI_DAEMON_WORKER"

	// WorkerFlag is passed to `voice-cli start` to run the worker directly.
	WorkerFlag = "--daemon-worker"
)

// ErrRestartLimit is returned by [Supervisor.Run] after too many crashes.
var ErrRestartLimit = errors.New("supervisor: restart limit reached")

// IsWorker reports whether the current process was spawned by a supervisor.
func IsWorker() bool { return os.Getenv(WorkerEnv) == "true" }

// Window counts restarts in the current crash window.
type Window struct {
	Count int
	Start time.Time
}

// Next returns the window after a crash at now. A crash more than
// CrashWindow after the window start opens a new window.
func (w Window) Next(now time.Time) Window {
	if now.Sub(w.Start) > CrashWindow {
		return Window{Count: 1, Start: now}
	}
	return Window{Count: w.Count + 1, Start: w.Start}
}

// Exceeded reports whether the window holds more restarts than allowed.
func (w Window) Exceeded() bool { return w.Count > MaxRestarts }

// Process is a running worker.
type Process interface {
	// Wait blocks until the process exits and returns its exit code. A
	// process killed by a signal reports -1.
	Wait() int
	Signal(sig os.Signal) error
}

// Spawner starts a worker.
type Spawner func(ctx context.Context) (Process, error)

// Notifier shows the critical failure notification.
type Notifier interface {
	Notify(title, body string, sev output.Severity)
}

// Option configures a [Supervisor].
type Option func(*Supervisor)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Supervisor) { s.now = now }
}

// WithSleep replaces the restart delay wait.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Supervisor) { s.sleep = sleep }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Supervisor) { s.log = l }
}

// Supervisor runs the worker loop.
type Supervisor struct {
	spawn    Spawner
	notifier Notifier
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	log      *slog.Logger

	stopping atomic.Bool

	mu      sync.Mutex
	current Process
}

// New returns a Supervisor that starts workers with spawn.
func New(spawn Spawner, notifier Notifier, opts ...Option) *Supervisor {
	s := &Supervisor{
		spawn:    spawn,
		notifier: notifier,
		now:      time.Now,
		sleep:    sleepCtx,
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Stop marks the supervisor as stopping. The current worker is not touched;
// its next exit, whatever the code, ends [Supervisor.Run].
func (s *Supervisor) Stop() { s.stopping.Store(true) }

// Signal forwards sig to the current worker, if any.
func (s *Supervisor) Signal(sig os.Signal) error {
	s.mu.Lock()
	p := s.current
	s.mu.Unlock()
	if p == nil {
		return nil
	}
	return p.Signal(sig)
}

// Run spawns the worker and restarts it after crashes. It returns nil when
// the worker exits cleanly or after [Supervisor.Stop], and ErrRestartLimit
// when more than MaxRestarts crashes happen within CrashWindow. Cancelling
// ctx stops the supervisor and sends SIGTERM to the worker.
func (s *Supervisor) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.Stop()
		if err := s.Signal(syscall.SIGTERM); err != nil {
			s.log.Debug("supervisor: forward SIGTERM", "err", err)
		}
	}()

	var window Window
	for {
		if s.stopping.Load() {
			return nil
		}
		code := s.runOnce(ctx)
		if s.stopping.Load() || code == 0 {
			s.log.Info("supervisor: daemon exited cleanly", "code", code)
			return nil
		}

		s.log.Error("supervisor: daemon crashed", "code", code)
		window = window.Next(s.now())
		if window.Exceeded() {
			msg := fmt.Sprintf("Daemon crashed %d times in 5 minutes. Stopping.", MaxRestarts)
			s.log.Error(msg)
			s.notifier.Notify("Daemon Critical Failure", msg, output.SeverityCritical)
			return ErrRestartLimit
		}

		s.log.Warn("supervisor: restarting daemon", "attempt", window.Count, "max", MaxRestarts)
		if err := s.sleep(ctx, RestartDelay); err != nil {
			return nil
		}
	}
}

// runOnce starts one worker and waits for it. A worker that cannot be
// started counts as a crash.
func (s *Supervisor) runOnce(ctx context.Context) int {
	s.log.Info("supervisor: spawning daemon process")
	p, err := s.spawn(ctx)
	if err != nil {
		s.log.Error("supervisor: spawn failed", "err", err)
		return -1
	}
	s.mu.Lock()
	s.current = p
	s.mu.Unlock()

	// A stop that raced with the spawn still reaches the new worker.
	if ctx.Err() != nil {
		_ = p.Signal(syscall.SIGTERM)
	}
	code := p.Wait()

	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
	return code
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ExecSpawner starts `exe args...` with WorkerEnv=true, sharing the
// supervisor's stdout and stderr.
func ExecSpawner(exe string, args ...string) Spawner {
	return func(context.Context) (Process, error) {
		cmd := exec.Command(exe, args...) //nolint:gosec // re-executes our own binary
		cmd.Env = append(os.Environ(), WorkerEnv+"=true")
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("supervisor: start worker: %w", err)
		}
		return &execProcess{cmd: cmd}, nil
	}
}

type execProcess struct {
	cmd *exec.Cmd
}

func (p *execProcess) Wait() int {
	err := p.cmd.Wait()
	if p.cmd.ProcessState != nil {
		return p.cmd.ProcessState.ExitCode()
	}
	if err != nil {
		return -1
	}
	return 0
}

func (p *execProcess) Signal(sig os.Signal) error {
	return p.cmd.Process.Signal(sig)
}
