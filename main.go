package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"voxscribe/internal/config"
	"voxscribe/internal/control"
	"voxscribe/internal/metrics"
	"voxscribe/internal/output"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:          "voxscribe",
	Short:        "Voice dictation: record, transcribe, deliver",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd.Context(), os.Stdin)
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the dictation loop, reading commands from stdin and SIGUSR1/SIGUSR2",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd.Context(), os.Stdin)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or create the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := defaultConfigFile()
		if len(args) == 1 {
			path = args[0]
		}
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		return config.Dump(cmd.OutOrStdout(), cfg)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./config.yaml or ~/.config/voxscribe/config.yaml)")
	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(runCmd, configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(parent context.Context, stdin io.Reader) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(os.Stderr, cfg.Logging)
	slog.SetDefault(logger)

	app := NewApp(logger, desktopNotify, cfg.Misc.HideStatus)
	if err := app.startup(cfg, output.SystemClipboard{}); err != nil {
		return err
	}
	logger.Info("voxscribe.started", "runtime", app.GetRuntimeInfo())

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runDone := make(chan error, 1)
	go func() { runDone <- app.orchestrator.Run(ctx) }()

	if cfg.Metrics.Address != "" {
		server := startMetrics(cfg.Metrics.Address, app.services.Metrics, logger)
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
			defer done()
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	signals := make(chan os.Signal, 4)
	signal.Notify(signals, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(signals)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-signals:
				cmd, ok := control.CommandForSignal(sig)
				if !ok {
					continue
				}
				if _, err := control.Apply(app, cmd); err != nil {
					logger.Warn("control.signal_failed", "signal", sig.String(), "error", err)
				}
			}
		}
	}()

	go func() {
		err := control.NewReader(app, logger).Serve(ctx, stdin)
		switch {
		case err == nil:
			logger.Info("control.quit")
			cancel()
		case errors.Is(err, io.EOF):
			logger.Debug("control.stdin_closed")
		default:
			logger.Warn("control.reader_stopped", "error", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		app.orchestrator.Shutdown()
		runErr = <-runDone
	case runErr = <-runDone:
	}
	logger.Info("voxscribe.stopped")
	return runErr
}

func startMetrics(addr string, m *metrics.Metrics, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("metrics.listening", "address", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics.server_failed", "error", err)
		}
	}()
	return server
}

func newLogger(w io.Writer, cfg config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func defaultConfigFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".config", "voxscribe", "config.yaml")
}
