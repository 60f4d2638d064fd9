package service

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/godilite/churnradar/internal/heuristic"
	"github.com/godilite/churnradar/internal/matching"
	"github.com/godilite/churnradar/internal/repository/models"
)

const (
	dbTimeout   = 30 * time.Second
	passTimeout = 10 * time.Minute
)

var (
	ErrStorageFailure      = errors.New("storage failure")
	ErrUnknownAccount      = errors.New("unknown account")
	ErrUnknownOrganization = errors.New("unknown organization")
)

// Settings are the tunable knobs of the analysis passes.
type Settings struct {
	WindowDays        int
	MinChurned        int
	SignatureMaxAge   time.Duration
	RiskThresholds    models.RiskThresholds
	MatchThresholds   matching.Thresholds
	Weights           heuristic.Weights
	HeuristicFallback bool
}

func DefaultSettings() Settings {
	return Settings{
		WindowDays:        90,
		MinChurned:        3,
		SignatureMaxAge:   7 * 24 * time.Hour,
		RiskThresholds:    models.DefaultRiskThresholds(),
		MatchThresholds:   matching.DefaultThresholds(),
		Weights:           heuristic.DefaultWeights(),
		HeuristicFallback: true,
	}
}

// ChurnService runs matching, heuristic and signature passes over the store.
// Passes are not safe to run concurrently against the same store; callers
// serialize them.
type ChurnService struct {
	storage  ChurnRepository
	logger   *zap.Logger
	settings Settings
	now      func() time.Time

	cache    Cacher
	cacheTTL time.Duration
	sf       singleflight.Group
}

type Option func(*ChurnService)

func WithSettings(settings Settings) Option {
	return func(s *ChurnService) {
		s.settings = settings
	}
}

// WithCache routes feature extraction through c; entries live for ttl.
func WithCache(c Cacher, ttl time.Duration) Option {
	return func(s *ChurnService) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *ChurnService) {
		s.now = now
	}
}

// NewChurnService creates a new ChurnService instance.
func NewChurnService(storage ChurnRepository, logger *zap.Logger, opts ...Option) *ChurnService {
	if storage == nil {
		panic("storage must not be nil")
	}
	if logger == nil {
		l, _ := zap.NewProduction()
		logger = l
	}
	s := &ChurnService{
		storage:  storage,
		logger:   logger.Named("churn-service"),
		settings: DefaultSettings(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ChurnService) Settings() Settings {
	return s.settings
}

func (s *ChurnService) clock() time.Time {
	return s.now().UTC()
}

func storageErr(err error) error {
	return fmt.Errorf("%w: %w", ErrStorageFailure, err)
}
