package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/godilite/churnradar/internal/heuristic"
)

// Config holds all configuration for the application.
type Config struct {
	AppEnv                string        `yaml:"app_env"`
	DBPath                string        `yaml:"db_path"`
	DBDriver              string        `yaml:"db_driver"`
	RedisAddr             string        `yaml:"redis_addr"`
	FeatureCacheTTL       time.Duration `yaml:"feature_cache_ttl"`
	GRPCPort              int           `yaml:"grpc_port"`
	GRPCReflectionEnabled bool          `yaml:"grpc_reflection_enabled"`
	AnalysisInterval      time.Duration `yaml:"analysis_interval"`

	KafkaBrokers     []string `yaml:"kafka_brokers"`
	KafkaAlertsTopic string   `yaml:"kafka_alerts_topic"`

	WindowDays        int           `yaml:"window_days"`
	MinChurned        int           `yaml:"min_churned"`
	SignatureMaxAge   time.Duration `yaml:"signature_max_age"`
	RiskCritical      float64       `yaml:"risk_critical"`
	RiskHigh          float64       `yaml:"risk_high"`
	RiskMedium        float64       `yaml:"risk_medium"`
	MatchAutoConfirm  float64       `yaml:"match_auto_confirm"`
	MatchReview       float64       `yaml:"match_review"`
	HeuristicFallback bool          `yaml:"heuristic_fallback"`

	Weights heuristic.Weights `yaml:"weights"`
}

// DefaultDBPath is the database location under the XDG data directory.
func DefaultDBPath() string {
	return filepath.Join(xdg.DataHome, "churnradar", "churnradar.db")
}

func defaults() *Config {
	return &Config{
		AppEnv:            "development",
		DBPath:            DefaultDBPath(),
		DBDriver:          "sqlite3",
		FeatureCacheTTL:   6 * time.Hour,
		GRPCPort:          50051,
		AnalysisInterval:  24 * time.Hour,
		KafkaAlertsTopic:  "churn-alerts",
		WindowDays:        90,
		MinChurned:        3,
		SignatureMaxAge:   7 * 24 * time.Hour,
		RiskCritical:      75,
		RiskHigh:          50,
		RiskMedium:        25,
		MatchAutoConfirm:  0.85,
		MatchReview:       0.5,
		HeuristicFallback: true,
		Weights:           heuristic.DefaultWeights(),
	}
}

// LoadFromEnv builds the configuration from defaults, then the YAML file named
// by CONFIG_FILE (if any), then environment variables. Unparseable
// environment values keep the previous value; non-positive windows, sample
// floors and intervals fall back to the defaults.
func LoadFromEnv() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.AppEnv = getEnv("APP_ENV", cfg.AppEnv)
	cfg.DBPath = getEnv("DB_PATH", cfg.DBPath)
	cfg.DBDriver = getEnv("DB_DRIVER", cfg.DBDriver)
	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.FeatureCacheTTL = getDuration("FEATURE_CACHE_TTL", cfg.FeatureCacheTTL)
	cfg.GRPCPort = getInt("GRPC_PORT", cfg.GRPCPort)
	cfg.GRPCReflectionEnabled = getBool("GRPC_REFLECTION_ENABLED", cfg.GRPCReflectionEnabled)
	cfg.AnalysisInterval = getDuration("ANALYSIS_INTERVAL", cfg.AnalysisInterval)

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.KafkaBrokers = splitList(v)
	}
	cfg.KafkaAlertsTopic = getEnv("KAFKA_ALERTS_TOPIC", cfg.KafkaAlertsTopic)

	cfg.WindowDays = getInt("WINDOW_DAYS", cfg.WindowDays)
	cfg.MinChurned = getInt("MIN_CHURNED", cfg.MinChurned)
	cfg.SignatureMaxAge = getDuration("SIGNATURE_MAX_AGE", cfg.SignatureMaxAge)
	cfg.RiskCritical = getFloat("RISK_CRITICAL", cfg.RiskCritical)
	cfg.RiskHigh = getFloat("RISK_HIGH", cfg.RiskHigh)
	cfg.RiskMedium = getFloat("RISK_MEDIUM", cfg.RiskMedium)
	cfg.MatchAutoConfirm = getFloat("MATCH_AUTO_CONFIRM", cfg.MatchAutoConfirm)
	cfg.MatchReview = getFloat("MATCH_REVIEW", cfg.MatchReview)
	cfg.HeuristicFallback = getBool("HEURISTIC_FALLBACK", cfg.HeuristicFallback)

	cfg.Weights.Volume = getFloat("WEIGHT_VOLUME", cfg.Weights.Volume)
	cfg.Weights.Escalation = getFloat("WEIGHT_ESCALATION", cfg.Weights.Escalation)
	cfg.Weights.Sentiment = getFloat("WEIGHT_SENTIMENT", cfg.Weights.Sentiment)
	cfg.Weights.Velocity = getFloat("WEIGHT_VELOCITY", cfg.Weights.Velocity)
	cfg.Weights.Resolution = getFloat("WEIGHT_RESOLUTION", cfg.Weights.Resolution)
	cfg.Weights.Breadth = getFloat("WEIGHT_BREADTH", cfg.Weights.Breadth)
	cfg.Weights.Recency = getFloat("WEIGHT_RECENCY", cfg.Weights.Recency)

	cfg.requirePositive(defaults())
	return cfg, nil
}

// requirePositive resets values that must be above zero. A zero interval
// panics the scheduler ticker and a zero window empties every feature vector.
func (c *Config) requirePositive(d *Config) {
	if c.WindowDays <= 0 {
		c.WindowDays = d.WindowDays
	}
	if c.MinChurned <= 0 {
		c.MinChurned = d.MinChurned
	}
	if c.AnalysisInterval <= 0 {
		c.AnalysisInterval = d.AnalysisInterval
	}
	if c.SignatureMaxAge <= 0 {
		c.SignatureMaxAge = d.SignatureMaxAge
	}
}

// NewLogger creates a new Zap logger based on the config.
func NewLogger(cfg *Config) (*zap.Logger, error) {
	if cfg.AppEnv == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil {
		return fallback
	}
	return v
}

func getFloat(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return v
}

func getBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(fallback)))
	if err != nil {
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return v
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
