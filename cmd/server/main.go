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

	"github.com/SAP-F-2025/certification-service/internal/cache"
	"github.com/SAP-F-2025/certification-service/internal/clients/openai"
	"github.com/SAP-F-2025/certification-service/internal/config"
	"github.com/SAP-F-2025/certification-service/internal/events"
	"github.com/SAP-F-2025/certification-service/internal/handlers"
	"github.com/SAP-F-2025/certification-service/internal/repositories"
	"github.com/SAP-F-2025/certification-service/internal/repositories/memory"
	"github.com/SAP-F-2025/certification-service/internal/repositories/postgres"
	"github.com/SAP-F-2025/certification-service/internal/services"
	"github.com/SAP-F-2025/certification-service/internal/utils"
	"github.com/SAP-F-2025/certification-service/internal/validator"
	"github.com/SAP-F-2025/certification-service/pkg"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Environment)
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger utils.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slogger := utils.ToSlogLogger(logger)

	// Store
	repo, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	// Verification cache
	var certCache cache.CacheService
	redisClient, err := pkg.NewRedisClient(cfg)
	if err != nil {
		logger.Warn("Redis unavailable, certificate lookups are uncached", "error", err)
	} else if redisClient != nil {
		defer redisClient.Close()
		zapLogger, err := newZapLogger(cfg)
		if err != nil {
			return err
		}
		defer zapLogger.Sync()
		certCache = cache.NewRedisCache(redisClient, zapLogger)
	}

	// Events
	publisher, err := cfg.Events.CreateEventPublisher(slogger)
	if err != nil {
		return fmt.Errorf("create event publisher: %w", err)
	}
	defer publisher.Close()

	// Services
	validate := validator.New()
	analyzer := newAnalyzer(cfg, slogger)
	sessions := services.NewSessionManager(repo.Session(), analyzer, publisher, validate, slogger, services.SessionPolicy{
		MinDurationMinutes: cfg.Proctoring.MinDurationMinutes,
		MaxDurationMinutes: cfg.Proctoring.MaxDurationMinutes,
	})
	defer sessions.Close()
	issuer := services.NewCertificateIssuer(repo.Certificate(), certCache, publisher, slogger)
	exams := services.NewExamService(repo.Attempt(), sessions, issuer, publisher, validate, slogger)

	// HTTP
	hm := handlers.NewHandlerManager(services.NewServiceManager(sessions, exams, issuer), logger)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           hm.NewRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Server listening", "port", cfg.Port, "store", cfg.StoreBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return sessions.RunExpiry(gctx, cfg.Proctoring.ExpirySweepInterval)
	})
	if sub, ok := publisher.(*events.ChannelEventPublisher); ok {
		g.Go(func() error {
			return events.ConsumeEvents(gctx, sub, slogger, events.SupportNoticeHandler(slogger))
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openStore(cfg *config.Config) (repositories.Repository, func(), error) {
	switch cfg.StoreBackend {
	case "memory":
		return memory.NewRepository(), func() {}, nil
	case "postgres", "":
		db, err := pkg.InitDatabase(cfg)
		if err != nil {
			return nil, nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewRepository(db), func() { _ = sqlDB.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
}

// newAnalyzer wires the reasoning backend when it is configured; otherwise
// every session is judged by the deterministic rule.
func newAnalyzer(cfg *config.Config, logger *slog.Logger) *services.AnomalyAnalyzer {
	fallback := services.NewFallbackClassifier()

	client, err := openai.NewClient(openai.Config{
		APIKey:     cfg.Reasoning.APIKey,
		BaseURL:    cfg.Reasoning.BaseURL,
		Model:      cfg.Reasoning.Model,
		Timeout:    cfg.Reasoning.Timeout,
		MaxRetries: cfg.Reasoning.MaxRetries,
	}, logger)
	if err != nil {
		logger.Warn("Reasoning backend not configured, using deterministic analysis only", "error", err)
		return services.NewAnomalyAnalyzer(nil, fallback, cfg.Proctoring.AnalysisTimeout, logger)
	}

	reasoning, err := services.NewReasoningClassifier(client, logger)
	if err != nil {
		logger.Error("Reasoning classifier unavailable", "error", err)
		return services.NewAnomalyAnalyzer(nil, fallback, cfg.Proctoring.AnalysisTimeout, logger)
	}
	return services.NewAnomalyAnalyzer(reasoning, fallback, cfg.Proctoring.AnalysisTimeout, logger)
}

func newZapLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsProduction() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
