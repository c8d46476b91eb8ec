package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"browserd/internal/browser"
	"browserd/internal/config"
	"browserd/internal/httpapi"
	"browserd/internal/registry"
	"browserd/internal/scheduler"
)

const version = "0.1.0"

// serveOptions are the flag-settable knobs; values left at their zero value
// fall back to the config file and then to package defaults.
type serveOptions struct {
	configPath   string
	addr         string
	registryPath string
	defaultModel string
	consoleURL   string
	authState    string
	headful      bool
	logLevel     string
}

func defaultServeOptions() *serveOptions {
	o := &serveOptions{
		addr:     ":8080",
		logLevel: "info",
	}
	if v := os.Getenv("BROWSERD_ADDR"); v != "" {
		o.addr = v
	}
	if v := os.Getenv("BROWSERD_LOG_LEVEL"); v != "" {
		o.logLevel = v
	}
	return o
}

func bindServeFlags(cmd *cobra.Command, o *serveOptions) {
	cmd.Flags().StringVar(&o.configPath, "config", "", "Path to config file (.yaml, .json or .toml)")
	cmd.Flags().StringVar(&o.addr, "addr", o.addr, "HTTP listen address, e.g. :8080")
	cmd.Flags().StringVar(&o.registryPath, "registry", "", "Path to the model registry file")
	cmd.Flags().StringVar(&o.defaultModel, "default-model", "", "Default model id when request omits model")
	cmd.Flags().StringVar(&o.consoleURL, "console-url", "", "URL of the AI console the browser drives")
	cmd.Flags().StringVar(&o.authState, "auth-state", "", "Path to the saved browser auth state (storage_state.json)")
	cmd.Flags().BoolVar(&o.headful, "headful", false, "Run the browser with a visible window")
	cmd.Flags().StringVar(&o.logLevel, "log-level", o.logLevel, "Log level: debug|info|warn|error")
}

func runServe(o *serveOptions) error {
	logger := newLogger(o.logLevel)

	cfg := config.Config{}
	if o.configPath != "" {
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	// Flags override the config file.
	if o.addr != "" {
		cfg.Addr = o.addr
	}
	if o.registryPath != "" {
		cfg.RegistryPath = o.registryPath
	}
	if o.defaultModel != "" {
		cfg.DefaultModel = o.defaultModel
	}
	if o.consoleURL != "" {
		cfg.ConsoleURL = o.consoleURL
	}
	if o.authState != "" {
		cfg.AuthStatePath = o.authState
	}
	if o.headful {
		cfg.Headful = true
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}

	reg, err := registry.Load(cfg.RegistryPath)
	if err != nil {
		logger.Error().Err(err).Str("path", cfg.RegistryPath).Msg("failed to load model registry")
		return err
	}

	session, err := browser.NewSession(browser.SessionConfig{
		ConsoleURL:    cfg.ConsoleURL,
		AuthStatePath: cfg.AuthStatePath,
		Headless:      !cfg.Headful,
		Logger:        logger.With().Str("component", "browser").Logger(),
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to start browser session")
		return err
	}

	sched := scheduler.New(scheduler.Config{
		Port:           session,
		Registry:       reg,
		DefaultModel:   cfg.DefaultModel,
		MaxQueueDepth:  cfg.MaxQueueDepth,
		MaxAttempts:    cfg.MaxAttempts,
		SwitchTimeout:  time.Duration(cfg.SwitchTimeoutSec) * time.Second,
		SubmitTimeout:  time.Duration(cfg.SubmitTimeoutSec) * time.Second,
		StreamTimeout:  time.Duration(cfg.StreamTimeoutSec) * time.Second,
		SilenceTimeout: time.Duration(cfg.SilenceTimeoutSec) * time.Second,
		CancelTimeout:  time.Duration(cfg.CancelTimeoutSec) * time.Second,
		Logger:         logger.With().Str("component", "scheduler").Logger(),
	})

	// Record the console's startup model selection so the first request for
	// it skips a redundant switch.
	obsCtx, cancelObs := context.WithTimeout(context.Background(), 10*time.Second)
	ids := make([]string, 0, len(reg.Available()))
	for _, m := range reg.Available() {
		ids = append(ids, m.ID)
	}
	if m := session.SelectedModel(obsCtx, ids); m != "" {
		sched.ObserveModel(m)
		logger.Info().Str("model", m).Msg("console startup model observed")
	}
	cancelObs()

	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	httpapi.SetBaseContext(baseCtx)
	httpapi.SetLogger(logger.With().Str("component", "http").Logger())
	httpapi.SetCORSOptions(cfg.CORSEnabled, cfg.CORSOrigins, nil, nil)

	mux := httpapi.NewMux(sched)
	srv := &http.Server{Addr: cfg.Addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Addr).Str("console", cfg.ConsoleURL).Msg("browserd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM): stop admissions, let the active
	// turn finish or abort, then close the browser and the listener.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	case sig := <-stop:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelDrain()
	if err := sched.Close(drainCtx); err != nil {
		logger.Warn().Err(err).Msg("scheduler close error")
	}
	cancelBase()
	if err := session.Close(); err != nil {
		logger.Warn().Err(err).Msg("browser close error")
	}
	shutCtx, cancelShut := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShut()
	if err := srv.Shutdown(shutCtx); err != nil {
		logger.Warn().Err(err).Msg("graceful shutdown error")
	}
	return nil
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}
