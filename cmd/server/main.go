package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/virtarena/arena-server-go/internal/config"
	"github.com/virtarena/arena-server-go/internal/game"
	"github.com/virtarena/arena-server-go/internal/game/anomaly"
	"github.com/virtarena/arena-server-go/internal/repository"
	"github.com/virtarena/arena-server-go/internal/server"
	"github.com/virtarena/arena-server-go/internal/session"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	configPath = flag.String("config", "config/config.yaml", "path to configuration file")
	version    = "dev" // set via ldflags during build
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting arena server",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	if cfg.Auth.AdminPasswordHash == "" {
		logger.Warn("admin password not configured; admin HTTP access disabled")
	}
	if cfg.Auth.JoinGrantSecret == "" {
		logger.Warn("join grant secret not configured; all connections accepted")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Violation telemetry is optional: without a DSN the anomaly
	// tracker logs only.
	var sink anomaly.Sink
	if cfg.Database.DSN != "" {
		db, dbErr := repository.NewDB(ctx, cfg.Database, logger)
		if dbErr != nil {
			logger.Fatal("failed to connect to database", zap.Error(dbErr))
		}
		defer db.Close()

		if schemaErr := db.EnsureSchema(ctx); schemaErr != nil {
			logger.Fatal("failed to ensure telemetry schema", zap.Error(schemaErr))
		}

		stats := db.Stats()
		logger.Info("database connection pool initialized",
			zap.Int32("total_conns", stats.TotalConns()),
			zap.Int32("idle_conns", stats.IdleConns()),
		)

		store := repository.NewViolationStore(db, cfg.Database, logger)
		go store.Start(ctx)
		sink = store
	}

	sessionMgr := session.NewManager(
		cfg.Server.MaxSessions,
		cfg.Server.MaxEnergy,
		cfg.Server.EnergyRegenPerSec,
		cfg.Anomaly.HistoryCap,
		logger,
	)
	logger.Info("session manager initialized",
		zap.Int("max_sessions", cfg.Server.MaxSessions),
	)

	tracker := anomaly.NewTracker(cfg.Anomaly, sink, logger)

	engine, err := game.NewEngine(cfg, sessionMgr, tracker, logger)
	if err != nil {
		logger.Fatal("failed to initialize engine", zap.Error(err))
	}
	tracker.SetEscalator(engine.Escalator())
	logger.Info("engine initialized",
		zap.Int("tick_rate", cfg.Server.TickRate),
		zap.Int("abilities", len(cfg.Abilities)),
	)

	approver := server.NewApprover(cfg.Auth)
	srv := server.NewServer(cfg, engine, approver, tracker, logger)
	engine.SetBroadcaster(srv)

	go engine.Run(ctx)

	go func() {
		if serveErr := srv.ListenAndServe(ctx); serveErr != nil {
			logger.Error("websocket server error", zap.Error(serveErr))
		}
	}()

	logger.Info("arena server initialized",
		zap.String("version", version),
		zap.String("address", cfg.Server.Address),
		zap.Int("max_sessions", cfg.Server.MaxSessions),
	)

	sig := <-sigChan
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	logger.Info("shutting down gracefully...")
	cancel()
	srv.Close()

	logger.Info("arena server stopped")
}

// initLogger initializes the zap logger based on configuration
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
