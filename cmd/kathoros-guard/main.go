package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx as database/sql driver
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/deathguppie/kathoros/internal/api"
	"github.com/deathguppie/kathoros/internal/audit"
	"github.com/deathguppie/kathoros/internal/envelope"
	"github.com/deathguppie/kathoros/internal/epistemic"
	"github.com/deathguppie/kathoros/internal/executor"
	"github.com/deathguppie/kathoros/internal/importer"
	"github.com/deathguppie/kathoros/internal/registry"
	"github.com/deathguppie/kathoros/internal/router"
	"github.com/deathguppie/kathoros/internal/store"
)

func main() {
	// Logger
	logger := mustBuildLogger(envOrDefault("KATHOROS_LOG_LEVEL", "info"))
	defer logger.Sync() //nolint:errcheck // best-effort flush

	// Config from env
	httpPort := envOrDefault("KATHOROS_HTTP_PORT", "8080")
	workingRoot := envOrDefault("KATHOROS_WORKING_ROOT", "./workspace")
	clickhouseDSN := os.Getenv("CLICKHOUSE_DSN")
	postgresDSN := os.Getenv("POSTGRES_DSN")
	cacheTTL := envOrDefaultInt("KATHOROS_AUTH_CACHE_TTL_S", 30)

	logger.Info("starting kathoros guard",
		zap.String("http_port", httpPort),
		zap.String("working_root", workingRoot),
	)

	// Postgres pool (required)
	if postgresDSN == "" {
		logger.Fatal("POSTGRES_DSN is required")
	}
	db, err := sql.Open("pgx", postgresDSN)
	if err != nil {
		logger.Fatal("failed to open postgres", zap.Error(err))
	}
	defer func() { _ = db.Close() }()
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(context.Background()); err != nil {
		logger.Fatal("failed to ping postgres", zap.Error(err))
	}
	pgStore := store.New(db)
	logger.Info("postgres connected")

	// Audit — ClickHouse or LogWriter fallback
	var writer audit.Writer
	if clickhouseDSN != "" {
		chWriter, err := audit.NewClickHouseWriter(clickhouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse connection failed, falling back to log writer",
				zap.Error(err),
			)
			writer = audit.NewLogWriter(logger)
		} else {
			writer = chWriter
			logger.Info("clickhouse writer connected")
		}
	} else {
		writer = audit.NewLogWriter(logger)
		logger.Info("no CLICKHOUSE_DSN set, using log writer")
	}
	defer writer.Close()

	// ClickHouse reader (for the events endpoint)
	var chReader *audit.Reader
	if clickhouseDSN != "" {
		chReader, err = audit.NewReader(clickhouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse reader connection failed", zap.Error(err))
		} else {
			defer func() { _ = chReader.Close() }()
			logger.Info("clickhouse reader connected")
		}
	}

	// Registry — built-in tools registered once, then frozen.
	reg := registry.New()
	defs, execs := executor.Builtins(pgStore)
	for _, def := range defs {
		if err := reg.Register(def); err != nil {
			logger.Fatal("failed to register tool",
				zap.String("tool", def.Name), zap.Error(err))
		}
	}
	reg.Lock()
	logger.Info("tool registry locked", zap.Strings("tools", reg.Names()))

	rt, err := router.New(router.Config{
		Registry:    reg,
		WorkingRoot: workingRoot,
		Executors:   execs,
		Audit:       writer,
		Logger:      logger,
	})
	if err != nil {
		logger.Fatal("failed to build router", zap.Error(err))
	}

	imp, err := importer.New(logger)
	if err != nil {
		logger.Fatal("failed to build importer", zap.Error(err))
	}

	deps := &api.Dependencies{
		Store:    pgStore,
		Router:   rt,
		Parser:   envelope.NewParser(),
		Checker:  epistemic.NewChecker(ruleOverridesFromEnv(logger)),
		Importer: imp,
		Reader:   chReader,
		Logger:   logger,
		CacheTTL: time.Duration(cacheTTL) * time.Second,
	}

	httpServer := &http.Server{
		Addr:         ":" + httpPort,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	// Block until shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", zap.String("signal", sig.String()))

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}

	logger.Info("kathoros guard stopped")
}

// ruleOverridesFromEnv reads per-rule severity overrides, e.g.
// KATHOROS_RULE_EP004=block upgrades the framework-ontology rule.
func ruleOverridesFromEnv(logger *zap.Logger) map[string]epistemic.Severity {
	overrides := make(map[string]epistemic.Severity)
	for _, code := range []string{"EP001", "EP002", "EP003", "EP004", "EP005", "EP006"} {
		v := os.Getenv("KATHOROS_RULE_" + code)
		switch v {
		case "":
		case "block":
			overrides[code] = epistemic.SeverityBlock
		case "warn":
			overrides[code] = epistemic.SeverityWarn
		default:
			logger.Warn("ignoring invalid rule severity",
				zap.String("rule", code), zap.String("value", v))
		}
	}
	return overrides
}

func mustBuildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
