package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"

	"candor/internal/aggregate"
	"candor/internal/config"
	"candor/internal/features"
	"candor/internal/handler"
	"candor/internal/questionbank"
	"candor/internal/repo"
	"candor/internal/scoring"
	"candor/internal/service"
	"candor/internal/session"
	utilsredis "candor/internal/utils/redis"
	"candor/pkg/database/client"
	logging "candor/pkg/logger/pkg"
	rabbit "candor/pkg/rabbit/pkg"
	redis "candor/pkg/redis/pkg"
)

func Execute() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("Error loading .env file: %v", err)
	}
	cfg, err := config.ReadConfig()
	if err != nil {
		log.Fatalf("Failed to read config: %v", err)
	}
	logger, err := logging.InitLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if cfg.Tracing.Enabled {
		tracer.Start(tracer.WithService(cfg.Tracing.Service), tracer.WithEnv(cfg.Tracing.Env))
		defer tracer.Stop()
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	var (
		store   features.Store
		history handler.History
	)
	if cfg.DB.Enabled {
		drv, err := client.Open("candor_"+cfg.DB.Dialect, &cfg.DB.Database)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer drv.Close()
		if err := repo.Migrate(ctx, drv); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		repository := repo.New(drv)
		store, history = repository, repository
		logger.Info("Database ready", zap.String("dialect", cfg.DB.Dialect))
	}

	cache := utilsredis.Dummy()
	if cfg.Redis.Enabled {
		rc, err := redis.New(&cfg.Redis.Config)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer rc.Close()
		cache = utilsredis.New(rc)
		logger.Info("Redis session cache enabled", zap.String("address", cfg.Redis.Address))
	}

	publisher := features.NewPublisher(rabbit.New(&cfg.RabbitMQ.Config), cfg.RabbitMQ.Publisher, logger)
	publisher.Start()

	evaluator, closeEvaluator, err := service.NewEvaluator(ctx, cfg.Scorer.ScorerConfig, logger)
	if err != nil {
		return fmt.Errorf("failed to create scorer client: %w", err)
	}
	defer closeEvaluator()

	bank := questionbank.Default()
	if cfg.QuestionBank != "" {
		if bank, err = questionbank.Load(cfg.QuestionBank); err != nil {
			return fmt.Errorf("failed to load question bank: %w", err)
		}
	}
	scorer, err := scoring.New(cfg.Weights, bank, evaluator, cfg.Scorer.Timeout, logger)
	if err != nil {
		return err
	}
	aggregator, err := aggregate.New(cfg.Policy)
	if err != nil {
		return err
	}

	var transcriber features.Transcriber
	if cfg.Transcriber.URL != "" {
		transcriber = service.NewWhisperClient(cfg.Transcriber, logger)
	}

	interviewer := features.NewInterviewer(cfg.Interview, features.Deps{
		Session: session.Deps{
			Questions:  bank,
			Scorer:     scorer,
			Aggregator: aggregator,
		},
		Store:       store,
		Transcriber: transcriber,
		Cache:       cache,
		Publisher:   publisher,
		Logger:      logger,
	})
	defer interviewer.Shutdown()

	httpServer := startHTTP(cfg, handler.New(interviewer, history, logger), logger)
	grpcServer, health, err := startGRPC(cfg.Server.GRPCAddr(), cfg.Tracing, logger)
	if err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Shutting down", zap.String("signal", sig.String()))

	health.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	grpcServer.GracefulStop()
	logger.Info("Servers stopped")
	return nil
}
