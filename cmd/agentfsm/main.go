// Package main provides the CLI entry point for the agentfsm chat runtime.
//
// # Basic Usage
//
// Start the server:
//
//	agentfsm serve --config agentfsm.yaml
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/coralrun/agentfsm/internal/config"
	"github.com/coralrun/agentfsm/internal/httpapi"
	"github.com/coralrun/agentfsm/internal/orchestrator"
	"github.com/coralrun/agentfsm/internal/usage"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.code)
		}
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "agentfsm",
		Short:        "agentfsm - FSM-driven chat agent runtime",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.AddCommand(buildServeCmd())
	return rootCmd
}

func buildServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Start the agentfsm HTTP server.

Loads the process configuration, wires the orchestrator and feedback store,
and serves the chat, learn, and feedback endpoints until SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return &exitError{code: 1, err: fmt.Errorf("load config: %w", err)}
	}

	level := slog.LevelInfo
	_ = level.UnmarshalText([]byte(cfg.LogLevel))
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))

	slog.Info("starting agentfsm", "version", version, "commit", commit, "listen_addr", cfg.ListenAddr)

	registry := prometheus.NewRegistry()
	var metrics *orchestrator.Metrics
	if cfg.MetricsEnabled {
		metrics = orchestrator.NewMetrics(registry)
	}
	orc := orchestrator.New(usage.NewCounter(), metrics, 0)
	server := httpapi.New(orc)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return &exitError{code: 2, err: fmt.Errorf("listen: %w", err)}
		}
		return nil
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining in-flight requests")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return &exitError{code: 2, err: fmt.Errorf("shutdown: %w", err)}
	}

	slog.Info("agentfsm stopped gracefully")
	return nil
}

// exitError carries a process exit code alongside the causing error so
// cobra's RunE can report both without os.Exit calls scattered through the
// command tree. main() only calls os.Exit once, at the top.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }
