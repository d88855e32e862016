// Package app wires all voice-cli subsystems into a running daemon worker.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the session loop, the control socket and the
// optional diagnostics endpoint until the context ends, and Shutdown tears
// everything down in order.
//
// For testing, inject test doubles via functional options (WithRecorder,
// WithClipboard, WithProviders, etc.). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voicecli/internal/config"
	"github.com/MrWong99/voicecli/internal/control"
	"github.com/MrWong99/voicecli/internal/daemon"
	"github.com/MrWong99/voicecli/internal/health"
	"github.com/MrWong99/voicecli/internal/logging"
	"github.com/MrWong99/voicecli/internal/observe"
	"github.com/MrWong99/voicecli/internal/output"
	"github.com/MrWong99/voicecli/internal/pidfile"
	"github.com/MrWong99/voicecli/internal/recorder"
	"github.com/MrWong99/voicecli/internal/resilience"
	"github.com/MrWong99/voicecli/internal/stats"
	"github.com/MrWong99/voicecli/internal/transcript/merge"
	"github.com/MrWong99/voicecli/internal/transcript/phonetic"
	"github.com/MrWong99/voicecli/pkg/audio"
)

// Version is reported in telemetry. Set at build time with -ldflags.
var Version = "dev"

// Recorder is what the app needs from the microphone beyond the daemon's
// view of it.
type Recorder interface {
	daemon.Recorder
	SetDevice(device string)
	SetMinDuration(d time.Duration)
}

// Clipboard is the clipboard sink with a runtime append toggle.
type Clipboard interface {
	daemon.Clipboard
	SetAppend(on bool)
}

// Notifier is the notification sink with a runtime on/off switch.
type Notifier interface {
	daemon.Notifier
	SetEnabled(on bool)
}

// App owns all subsystem lifetimes of the daemon worker.
type App struct {
	cfgPath string
	cfg     *config.Config
	log     *logging.Logger

	providers *Providers
	registry  *config.Registry
	recorder  Recorder
	clipboard Clipboard
	notifier  Notifier
	metrics   *observe.Metrics
	scrape    http.Handler
	svc       *daemon.Service
	watcher   *config.Watcher
	control   *control.Server

	pidPath    string
	statePath  string
	socketPath string

	// closers are called in reverse order during Shutdown.
	closers []func(context.Context) error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithProviders injects ready-made engines and merger instead of building
// them from the registry.
func WithProviders(p *Providers) Option {
	return func(a *App) { a.providers = p }
}

// WithRegistry replaces the built-in provider registry.
func WithRegistry(reg *config.Registry) Option {
	return func(a *App) { a.registry = reg }
}

// WithRecorder injects a recorder instead of the capture-command one.
func WithRecorder(r Recorder) Option {
	return func(a *App) { a.recorder = r }
}

// WithClipboard injects a clipboard sink.
func WithClipboard(c Clipboard) Option {
	return func(a *App) { a.clipboard = c }
}

// WithNotifier injects a notification sink.
func WithNotifier(n Notifier) Option {
	return func(a *App) { a.notifier = n }
}

// WithMetrics injects metric instruments and skips OTel provider setup.
// /metrics then serves the default Prometheus registry.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) {
		a.metrics = m
		a.scrape = promhttp.Handler()
	}
}

// WithPaths overrides the pid, state and socket file locations.
func WithPaths(pid, state, socket string) Option {
	return func(a *App) {
		a.pidPath = pid
		a.statePath = state
		a.socketPath = socket
	}
}

// New creates and wires all subsystems for the config at cfgPath. cfg is the
// already loaded configuration and log the process logger; its level follows
// config reloads.
func New(ctx context.Context, cfgPath string, cfg *config.Config, log *logging.Logger, opts ...Option) (*App, error) {
	a := &App{
		cfgPath:    cfgPath,
		cfg:        cfg,
		log:        log,
		pidPath:    config.PIDPath(),
		statePath:  config.StatePath(),
		socketPath: cfg.SocketPath(),
	}
	for _, o := range opts {
		o(a)
	}

	if err := a.initTelemetry(ctx); err != nil {
		return nil, err
	}

	if a.providers == nil {
		if a.registry == nil {
			a.registry = config.NewRegistry()
			RegisterBuiltinProviders(a.registry)
		}
		ps, err := BuildProviders(cfg, a.registry, resilience.CircuitBreakerConfig{
			Logger: a.log.Logger,
			OnStateChange: func(name string, _, to resilience.State) {
				a.metrics.RecordBreaker(context.Background(), name, to.String())
			},
		})
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		a.providers = ps
	}

	if a.recorder == nil {
		a.recorder = recorder.New(cfg.Behavior.AudioDevice,
			recorder.WithMinDuration(seconds(cfg.Behavior.MinDuration)))
	}
	if a.clipboard == nil {
		a.clipboard = output.NewClipboard(cfg.Behavior.Clipboard.Append)
	}
	if a.notifier == nil {
		a.notifier = output.NewNotifier(cfg.Behavior.Notifications)
	}

	var speller daemon.Speller
	if cfg.Transcription.VocabularyCorrection {
		speller = phonetic.New()
	}

	svc, err := daemon.New(daemon.Config{
		Recorder:    a.recorder,
		Converter:   &audio.Converter{},
		EngineA:     a.providers.EngineA,
		EngineB:     a.providers.EngineB,
		EngineAName: cfg.Transcription.EngineA.Name,
		EngineBName: cfg.Transcription.EngineB.Name,
		Merger:      merge.New(a.providers.Merger),
		Clipboard:   a.clipboard,
		Notifier:    a.notifier,
		Stats:       stats.New(config.StatsPath()),
		StatePath:   a.statePath,
		Language:    cfg.Transcription.Language,
		BoostWords:  cfg.Transcription.BoostWords,
		Speller:     speller,
		Metrics:     a.metrics,
		Logger:      log.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a.svc = svc

	a.control = control.NewServer(a.socketPath)
	a.control.Handle(control.ActionToggle, func(context.Context, control.Command) (any, error) {
		a.svc.Trigger()
		return nil, nil
	})
	a.control.Handle(control.ActionStatus, func(context.Context, control.Command) (any, error) {
		return a.svc.Snapshot(), nil
	})

	w, err := config.NewWatcher(cfgPath, a.applyConfig,
		config.WithWatcherLogger(a.log.Logger),
		config.WithInvalidHandler(func(err error) {
			a.notifier.Notify("Config Error", err.Error(), output.SeverityError)
		}),
	)
	if err != nil {
		a.log.Warn("config hot reload disabled", "err", err)
	} else {
		a.watcher = w
		a.closers = append(a.closers, func(context.Context) error {
			w.Stop()
			return nil
		})
	}

	return a, nil
}

func (a *App) initTelemetry(ctx context.Context) error {
	if a.metrics != nil {
		return nil
	}
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: Version, Global: true})
	if err != nil {
		return fmt.Errorf("app: init telemetry: %w", err)
	}
	a.closers = append(a.closers, tel.Shutdown)
	a.metrics = tel.Metrics
	a.scrape = tel.Handler()
	return nil
}

// Service returns the session state machine.
func (a *App) Service() *daemon.Service { return a.svc }

// Run records the pid and serves until ctx is cancelled or a subsystem
// fails. SIGUSR1 acts like a toggle request.
func (a *App) Run(ctx context.Context) error {
	if err := pidfile.Write(a.pidPath, os.Getpid()); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	defer func() {
		if err := pidfile.Remove(a.pidPath); err != nil {
			a.log.Warn("failed to remove pid file", "err", err)
		}
	}()

	a.log.Info("daemon started",
		"socket", a.socketPath,
		"engine_a", a.cfg.Transcription.EngineA.Name,
		"engine_b", a.cfg.Transcription.EngineB.Name,
		"merger", a.cfg.Merger.Name,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.svc.Run(ctx) })
	g.Go(func() error { return a.control.Serve(ctx) })
	g.Go(func() error {
		a.watchTriggerSignal(ctx)
		return nil
	})
	if addr := a.cfg.Daemon.DiagnosticsAddr; addr != "" {
		g.Go(func() error { return a.serveDiagnostics(ctx, addr) })
	}

	err := g.Wait()
	a.log.Info("daemon stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *App) watchTriggerSignal(ctx context.Context) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGUSR1)
	defer signal.Stop(sigs)
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigs:
			a.log.Debug("SIGUSR1 received")
			a.svc.Trigger()
		}
	}
}

// DiagnosticsHandler returns the /healthz, /readyz and /metrics routes
// wrapped in the HTTP metrics middleware.
func (a *App) DiagnosticsHandler() http.Handler {
	mux := http.NewServeMux()
	health.New(health.Defaults(a.cfg)...).Register(mux)
	mux.Handle("GET /metrics", a.scrape)
	return observe.Middleware(a.metrics, a.log.Logger)(mux)
}

func (a *App) serveDiagnostics(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("app: diagnostics listen %q: %w", addr, err)
	}
	srv := &http.Server{
		Handler:           a.DiagnosticsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	a.log.Info("diagnostics listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("app: diagnostics: %w", err)
	}
	return nil
}

// applyConfig is the watcher callback. Settings that the running worker can
// adopt are applied in place; the rest are reported.
func (a *App) applyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged {
		a.log.Level.Set(logging.ParseLevel(d.NewLogLevel))
		a.log.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.TranscriptionChanged {
		a.svc.SetVocabulary(new.Transcription.Language, new.Transcription.BoostWords)
		a.log.Info("vocabulary reloaded",
			"language", new.Transcription.Language,
			"boost_words", len(new.Transcription.BoostWords),
		)
	}
	if d.BehaviorChanged {
		a.notifier.SetEnabled(new.Behavior.Notifications)
		a.clipboard.SetAppend(new.Behavior.Clipboard.Append)
		a.recorder.SetDevice(new.Behavior.AudioDevice)
		a.recorder.SetMinDuration(seconds(new.Behavior.MinDuration))
		a.log.Info("behavior reloaded",
			"notifications", new.Behavior.Notifications,
			"clipboard_append", new.Behavior.Clipboard.Append,
			"audio_device", new.Behavior.AudioDevice,
		)
	}
	if len(d.RestartRequired) > 0 {
		a.log.Warn("config change needs a daemon restart", "keys", d.RestartRequired)
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Shutdown releases the watcher and telemetry exporters. It is safe to call
// more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := a.closers[i](ctx); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}
