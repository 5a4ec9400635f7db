package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cardarena/arena-server/internal/broker"
	"github.com/cardarena/arena-server/internal/config"
	"github.com/cardarena/arena-server/internal/game"
	"github.com/cardarena/arena-server/internal/matchmaking"
	"github.com/cardarena/arena-server/internal/repository"
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Match archiving is optional; without a database finished matches are
	// simply not retained.
	var archiver game.Archiver = game.NopArchiver{}
	if cfg.Database.Enabled {
		pool, err := repository.NewPool(ctx, cfg.Database, logger)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer pool.Close()

		stats := pool.Stat()
		logger.Info("database connection pool initialized",
			zap.Int32("total_conns", stats.TotalConns()),
			zap.Int32("idle_conns", stats.IdleConns()),
		)

		matchRepo := repository.NewMatchRepository(pool, logger)
		if err := matchRepo.EnsureSchema(ctx); err != nil {
			logger.Fatal("failed to ensure database schema", zap.Error(err))
		}
		archiver = matchRepo
	} else {
		logger.Warn("database disabled; finished matches will not be archived")
	}

	library, err := game.NewCardLibrary(game.BaseSet())
	if err != nil {
		logger.Fatal("failed to load card library", zap.Error(err))
	}
	logger.Info("card library loaded", zap.Int("cards", library.Size()))

	rules := rulesFromConfig(cfg.Game)
	arena := game.NewManager(rules, library, archiver, logger)
	logger.Info("game arena initialized",
		zap.Int("starting_health", rules.StartingHealth),
		zap.Duration("turn_time", rules.TurnTime),
	)

	sessions := broker.NewBroker(arena, broker.Options{
		HeartbeatInterval: cfg.Server.HeartbeatInterval,
		HeartbeatMisses:   cfg.Server.HeartbeatMisses,
		ReconnectGrace:    cfg.Server.ReconnectGrace,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}, logger)
	arena.SetNotificationHandler(sessions.HandleMatchEvent)
	logger.Info("session broker initialized",
		zap.Duration("heartbeat_interval", cfg.Server.HeartbeatInterval),
		zap.Duration("reconnect_grace", cfg.Server.ReconnectGrace),
	)

	queues := matchmaking.NewManager(matchmaking.Config{
		SweepInterval:   cfg.Matchmaking.SweepInterval,
		BaseTolerance:   cfg.Matchmaking.BaseTolerance,
		ToleranceGrowth: cfg.Matchmaking.ToleranceGrowth,
		MaxTolerance:    cfg.Matchmaking.MaxTolerance,
		MaxWait:         cfg.Matchmaking.MaxWait,
	}, arena, sessions, logger)
	sessions.SetQueue(queues)
	go queues.Run(ctx)
	logger.Info("matchmaking initialized",
		zap.Duration("sweep_interval", cfg.Matchmaking.SweepInterval),
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", sessions.ServeWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "ok active_matches=%d connected_players=%d",
			arena.ActiveMatchCount(), sessions.ConnectedPlayers())
	})

	httpServer := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: mux,
	}

	go func() {
		logger.Info("starting websocket server", zap.String("address", cfg.Server.Address))
		if serveErr := httpServer.ListenAndServe(); serveErr != nil && serveErr != http.ErrServerClosed {
			logger.Error("websocket server error", zap.Error(serveErr))
		}
	}()

	sig := <-sigChan
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	logger.Info("shutting down gracefully...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", zap.Error(err))
	}

	arena.Shutdown()

	logger.Info("arena server stopped")
}

func rulesFromConfig(cfg config.GameConfig) game.Rules {
	return game.Rules{
		StartingHealth:     cfg.StartingHealth,
		StartingHandSize:   cfg.StartingHandSize,
		MaxMana:            cfg.MaxMana,
		BattlefieldLimit:   cfg.BattlefieldLimit,
		HandLimit:          cfg.HandLimit,
		EffectChainDepth:   cfg.EffectChainDepth,
		TurnTime:           cfg.TurnTime,
		SilenceStripsBuffs: cfg.SilenceStripsBuffs,
	}
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
