package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/volregime/internal/config"
	"github.com/okian/volregime/pkg/logger"
	"github.com/okian/volregime/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
	envConfig         = "VOLREGIME_CONFIG"
)

// rootFlags are shared by every command.
type rootFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	metricsAddr string
	outputDir   string
}

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Stderr.WriteString("volregime: " + err.Error() + "\n")
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var rf rootFlags
	root := &cobra.Command{
		Use:           "volregime",
		Short:         "Volatility regime change-point analysis",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&rf.configPath, "config", "", "YAML config file (overrides "+envConfig+")")
	root.PersistentFlags().StringVar(&rf.logLevel, "log-level", "", "debug, info, warn or error")
	root.PersistentFlags().StringVar(&rf.logFormat, "log-format", "", "text or json")
	root.PersistentFlags().StringVar(&rf.metricsAddr, "metrics-addr", "", "serve /metrics on this address while running")
	root.PersistentFlags().StringVarP(&rf.outputDir, "out", "o", "", "output directory")

	root.AddCommand(newRunCmd(&rf))
	root.AddCommand(newSegmentCmd(&rf))
	root.AddCommand(newSimulateCmd(&rf))
	return root
}

// setup loads configuration, applies the shared flags and initializes
// logging. The returned config has been validated.
func setup(cmd *cobra.Command, rf *rootFlags, override func(*config.Config)) (*config.Config, logger.Logger, error) {
	ctx := cmd.Context()
	if rf.configPath != "" {
		if err := os.Setenv(envConfig, rf.configPath); err != nil {
			return nil, nil, err
		}
	}
	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = rf.logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = rf.logFormat
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = rf.metricsAddr
	}
	if flags.Changed("out") {
		cfg.Data.OutputDir = rf.outputDir
	}
	if override != nil {
		override(cfg)
	}
	if err := config.Validate(ctx, cfg); err != nil {
		return nil, nil, err
	}

	if err := logger.Init(logger.WithWriter(os.Stderr), logger.WithFormat(cfg.LogFormat)); err != nil {
		return nil, nil, fmt.Errorf("initialize logging: %w", err)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		return nil, nil, err
	}
	metrics.Init(
		metrics.WithMetricsEnabled(cfg.Metrics.Enabled),
		metrics.WithNamespace(cfg.Metrics.Namespace),
		metrics.WithSubsystem(cfg.Metrics.Subsystem),
		metrics.WithConstLabels(cfg.Metrics.Labels),
		metrics.WithHistogramBuckets(cfg.Metrics.Buckets),
	)
	return cfg, logger.Named("cli"), nil
}

// serveMetrics exposes the metrics registry until ctx is done. It returns
// a function that shuts the server down.
func serveMetrics(ctx context.Context, addr string, log logger.Logger) func() {
	if addr == "" {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	go func() {
		log.Info(ctx, "serving metrics", logger.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "metrics server failed", logger.Error(err))
		}
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error(ctx, "metrics server shutdown failed", logger.Error(err))
		}
	}
}
