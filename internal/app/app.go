package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/godilite/churnradar/internal/config"
	"github.com/godilite/churnradar/internal/events"
	"github.com/godilite/churnradar/internal/matching"
	"github.com/godilite/churnradar/internal/repository"
	"github.com/godilite/churnradar/internal/repository/models"
	"github.com/godilite/churnradar/internal/service"
	"github.com/godilite/churnradar/pkg/cache"
	dbbuilder "github.com/godilite/churnradar/pkg/database"
	grpcsrv "github.com/godilite/churnradar/pkg/grpc/server"
)

// HealthService is the health entry that reflects the outcome of the most
// recent scheduled analysis.
const HealthService = "churnradar.Analysis"

type closer interface {
	Close() error
}

type App struct {
	cfg       *config.Config
	logger    *zap.Logger
	dbPool    *sql.DB
	cache     closer
	publisher events.Publisher
	repo      *repository.ChurnRepository
	service   *service.ChurnService
	running   atomic.Bool
}

func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	dbPool, err := dbbuilder.New(
		dbbuilder.WithDriver(cfg.DBDriver),
		dbbuilder.WithDataSource(cfg.DBPath),
		dbbuilder.WithSchema(repository.Schema),
	)
	if err != nil {
		return nil, fmt.Errorf("database init failed: %w", err)
	}
	logger.Info("Database pool initialized", zap.String("path", cfg.DBPath))

	var featureCache interface {
		service.Cacher
		closer
	}
	if cfg.RedisAddr != "" {
		redisCache, err := cache.New(ctx, cache.WithAddress(cfg.RedisAddr))
		if err != nil {
			_ = dbPool.Close()
			return nil, fmt.Errorf("cache init failed: %w", err)
		}
		featureCache = redisCache
		logger.Info("Redis feature cache initialized", zap.String("addr", cfg.RedisAddr))
	} else {
		memoryCache, err := cache.NewMemory()
		if err != nil {
			_ = dbPool.Close()
			return nil, fmt.Errorf("cache init failed: %w", err)
		}
		featureCache = memoryCache
		logger.Info("In-process feature cache initialized")
	}

	var publisher events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaAlertsTopic, logger)
		logger.Info("Kafka alert publisher initialized",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic", cfg.KafkaAlertsTopic))
	}

	repo := repository.NewChurnRepository(dbPool, logger)
	svc := service.NewChurnService(repo, logger,
		service.WithSettings(SettingsFromConfig(cfg)),
		service.WithCache(featureCache, cfg.FeatureCacheTTL),
	)

	return &App{
		cfg:       cfg,
		logger:    logger,
		dbPool:    dbPool,
		cache:     featureCache,
		publisher: publisher,
		repo:      repo,
		service:   svc,
	}, nil
}

// SettingsFromConfig maps configuration onto analysis settings.
func SettingsFromConfig(cfg *config.Config) service.Settings {
	return service.Settings{
		WindowDays:      cfg.WindowDays,
		MinChurned:      cfg.MinChurned,
		SignatureMaxAge: cfg.SignatureMaxAge,
		RiskThresholds: models.RiskThresholds{
			Critical: cfg.RiskCritical,
			High:     cfg.RiskHigh,
			Medium:   cfg.RiskMedium,
		},
		MatchThresholds: matching.Thresholds{
			AutoConfirm: cfg.MatchAutoConfirm,
			Review:      cfg.MatchReview,
		},
		Weights:           cfg.Weights,
		HeuristicFallback: cfg.HeuristicFallback,
	}
}

func (a *App) Service() *service.ChurnService {
	return a.service
}

func (a *App) Repository() *repository.ChurnRepository {
	return a.repo
}

// Heuristic runs the heuristic pass and publishes its elevated scores.
func (a *App) Heuristic(ctx context.Context) (*service.HeuristicReport, error) {
	report, err := a.service.RunHeuristicAnalysis(ctx)
	if err != nil {
		return nil, err
	}
	a.publish(ctx, events.FromRiskScores(report.Scores))
	return report, nil
}

// Signature runs the signature pass and publishes its elevated predictions,
// or the fallback heuristic scores when the pass was skipped.
func (a *App) Signature(ctx context.Context, windowDays int, opts service.SignatureOptions) (*service.SignatureReport, error) {
	report, err := a.service.RunSignatureAnalysis(ctx, windowDays, opts)
	if err != nil {
		return nil, err
	}
	a.publish(ctx, events.FromPredictions(report.Predictions))
	if report.Heuristic != nil {
		a.publish(ctx, events.FromRiskScores(report.Heuristic.Scores))
	}
	return report, nil
}

// AnalysisResult bundles one full analysis cycle.
type AnalysisResult struct {
	Matching  *service.MatchReport
	Signature *service.SignatureReport
	Heuristic *service.HeuristicReport
}

// Analyze runs matching, the signature pass and the heuristic pass in order.
// The heuristic pass always runs, once, so a baseline exists for every account.
func (a *App) Analyze(ctx context.Context) (*AnalysisResult, error) {
	if !a.running.CompareAndSwap(false, true) {
		return nil, ErrAnalysisRunning
	}
	defer a.running.Store(false)

	matchReport, err := a.service.RunMatching(ctx)
	if err != nil {
		return nil, fmt.Errorf("matching: %w", err)
	}
	sigReport, err := a.Signature(ctx, a.cfg.WindowDays, service.SignatureOptions{})
	if err != nil {
		return nil, fmt.Errorf("signature analysis: %w", err)
	}
	heuristicReport := sigReport.Heuristic
	if heuristicReport == nil {
		if heuristicReport, err = a.Heuristic(ctx); err != nil {
			return nil, fmt.Errorf("heuristic analysis: %w", err)
		}
	}
	return &AnalysisResult{Matching: matchReport, Signature: sigReport, Heuristic: heuristicReport}, nil
}

var ErrAnalysisRunning = errors.New("analysis already running")

func (a *App) publish(ctx context.Context, alerts []events.Alert) {
	if len(alerts) == 0 {
		return
	}
	if err := a.publisher.Publish(ctx, alerts); err != nil {
		a.logger.Error("alert publish failed", zap.Int("alerts", len(alerts)), zap.Error(err))
	}
}

// Serve runs Analyze every AnalysisInterval, starting immediately, and serves
// gRPC health until SIGINT or SIGTERM. Ticks that arrive while a run is still
// in progress are dropped. A gRPC listener failure stops the loop as well.
func (a *App) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	grpcServer, err := grpcsrv.New(
		grpcsrv.WithPort(a.cfg.GRPCPort),
		grpcsrv.WithLogger(a.logger),
		grpcsrv.WithReflection(a.cfg.GRPCReflectionEnabled),
		grpcsrv.WithLogging(true),
		grpcsrv.WithShutdownTimeout(10*time.Second),
	)
	if err != nil {
		return fmt.Errorf("failed to create gRPC server: %w", err)
	}
	grpcServer.RegisterHealth(HealthService)

	a.logger.Info("application starting", zap.Duration("interval", a.cfg.AnalysisInterval))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return grpcServer.Serve(ctx)
	})
	g.Go(func() error {
		ticker := time.NewTicker(a.cfg.AnalysisInterval)
		defer ticker.Stop()
		for {
			a.scheduledRun(ctx, grpcServer)
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})

	err = g.Wait()
	a.logger.Info("application stopped", zap.Error(err))
	return err
}

func (a *App) scheduledRun(ctx context.Context, grpcServer *grpcsrv.Server) {
	started := time.Now()
	result, err := a.Analyze(ctx)
	if err != nil {
		a.logger.Error("scheduled analysis failed", zap.Error(err), zap.Duration("elapsed", time.Since(started)))
		grpcServer.SetServing(HealthService, false)
		return
	}
	grpcServer.SetServing(HealthService, true)
	a.logger.Info("scheduled analysis complete",
		zap.Duration("elapsed", time.Since(started)),
		zap.Bool("signature_skipped", result.Signature.Skipped),
		zap.Int("heuristic_scored", len(result.Heuristic.Scores)))
}

// Close releases the publisher, cache and database.
func (a *App) Close() error {
	var errs []error
	if err := a.publisher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("publisher shutdown: %w", err))
	}
	if err := a.cache.Close(); err != nil {
		errs = append(errs, fmt.Errorf("cache shutdown: %w", err))
	}
	if err := a.dbPool.Close(); err != nil {
		errs = append(errs, fmt.Errorf("database shutdown: %w", err))
	}
	_ = a.logger.Sync()
	return errors.Join(errs...)
}
