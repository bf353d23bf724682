package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jamaly87/codebase-semantic-search/internal/config"
	"github.com/jamaly87/codebase-semantic-search/internal/mcp"
	"github.com/jamaly87/codebase-semantic-search/internal/metrics"
	"github.com/jamaly87/codebase-semantic-search/internal/telemetry"
)

const (
	serverName    = "codesearch-mcp"
	serverVersion = "0.1.0"
)

func main() {
	appCfg, err := config.LoadAppConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logOutput := io.Writer(os.Stdout)
	if appCfg.Logging.Directory != "" {
		rotating, err := telemetry.NewRotatingFile(ctx, telemetry.RotateConfig{
			Directory:  appCfg.Logging.Directory,
			MaxSizeMB:  appCfg.Logging.MaxSizeMB,
			MaxBackups: appCfg.Logging.MaxBackups,
			MaxAgeDays: appCfg.Logging.MaxAgeDays,
		})
		if err != nil {
			log.Fatalf("failed to open log file: %v", err)
		}
		defer rotating.Close()
		logOutput = io.MultiWriter(os.Stdout, rotating)
	}

	logger := telemetry.NewLogger(telemetry.LoggerConfig{
		Level:         appCfg.Logging.Level,
		Format:        appCfg.Logging.Format,
		Output:        logOutput,
		SentryEnabled: appCfg.Telemetry.SentryDSN != "",
	})

	flushSentry, err := telemetry.InitSentry(appCfg.Telemetry.SentryDSN, "mcp-server")
	if err != nil {
		log.Fatalf("failed to init sentry: %v", err)
	}
	defer flushSentry()

	tracer, err := telemetry.NewTracer(ctx, telemetry.TracerConfig{
		ServiceName: serverName,
		Endpoint:    appCfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		log.Fatalf("failed to init tracer: %v", err)
	}
	defer tracer.Shutdown(context.Background())

	reg := prometheus.NewRegistry()
	metricsReg := metrics.New(reg)
	if port := os.Getenv("CODESEARCH_METRICS_PORT"); port != "" {
		go serveMetrics(logger, reg, port)
	}

	logger.Info("state directory resolved", "dir", appCfg.StateDir)

	server, err := mcp.NewServer(serverName, serverVersion, metricsReg)
	if err != nil {
		log.Fatalf("failed to create MCP server: %v", err)
	}
	defer server.Close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received shutdown signal")
		cancel()
	}()

	logger.Info("starting MCP server", "transport", "stdio")
	if err := server.Start(ctx); err != nil {
		telemetry.CaptureError(ctx, logger, err, map[string]string{"component": "mcp-server"})
		log.Fatalf("server error: %v", err)
	}
}

func serveMetrics(logger *telemetry.Logger, reg *prometheus.Registry, port string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	logger.Info("serving metrics", "port", port)
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		logger.Error("metrics server stopped", "error", err)
	}
}
