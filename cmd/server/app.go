package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ZanzyTHEbar/rx-fraud-scorer/internal/auth"
	"github.com/ZanzyTHEbar/rx-fraud-scorer/internal/config"
	"github.com/ZanzyTHEbar/rx-fraud-scorer/internal/dataset"
	"github.com/ZanzyTHEbar/rx-fraud-scorer/internal/errors"
	"github.com/ZanzyTHEbar/rx-fraud-scorer/internal/history"
	"github.com/ZanzyTHEbar/rx-fraud-scorer/internal/middleware"
	"github.com/ZanzyTHEbar/rx-fraud-scorer/internal/monitoring"
	"github.com/ZanzyTHEbar/rx-fraud-scorer/internal/privacy"
	"github.com/ZanzyTHEbar/rx-fraud-scorer/internal/ratelimit"
	"github.com/ZanzyTHEbar/rx-fraud-scorer/internal/resilience"
	"github.com/ZanzyTHEbar/rx-fraud-scorer/internal/scoring"
	"github.com/ZanzyTHEbar/rx-fraud-scorer/internal/security"
)

const version = "1.0.0"

// app holds everything the HTTP handlers share
type app struct {
	cfg         *config.Config
	scorer      *scoring.ScoringContext
	history     history.Store
	auth        *auth.Service
	metrics     *monitoring.Metrics
	logger      *monitoring.Logger
	privacy     *privacy.Pseudonymizer
	security    *security.SecurityMiddleware
	compression *middleware.CompressionMiddleware
	redis       *ratelimit.RedisClient
	limiter     *ratelimit.RateLimiter
}

// newApp loads the training dataset and builds the app around it. A bad
// dataset is fatal.
func newApp(cfg *config.Config, logger *monitoring.Logger) (*app, error) {
	start := time.Now()
	records, err := dataset.Load(cfg.Data.Path)
	if err != nil {
		return nil, err
	}
	logger.SystemLogger("dataset_loaded", fmt.Sprintf("%d rows from %s in %s", len(records), cfg.Data.Path, time.Since(start)))

	return buildApp(cfg, logger, records)
}

// freeTextFields name vocabularies whose values can identify a provider,
// an organization or a prescription; the rest are small enumerations.
var freeTextFields = map[string]bool{
	scoring.FieldProvider:     true,
	scoring.FieldOrganization: true,
	scoring.FieldDescription:  true,
}

func buildApp(cfg *config.Config, logger *monitoring.Logger, records []scoring.ClaimRecord) (*app, error) {
	metrics := monitoring.NewMetrics()

	pseudonyms := privacy.NewPseudonymizer(cfg.Privacy.PseudonymizeLogs, cfg.Privacy.PseudonymKey)

	opts := cfg.ScoringOptions()
	opts.OnExtend = func(field, value string, code int) {
		if freeTextFields[field] {
			value = pseudonyms.Token(value)
		}
		logger.VocabularyLogger(field, value, code)
		metrics.RecordVocabularyExtension(field)
	}

	start := time.Now()
	scorer, err := scoring.NewScoringContext(records, opts)
	if err != nil {
		return nil, errors.NewInternalError("failed to train scoring models", err)
	}
	summary := scorer.Summary()
	logger.SystemLogger("models_trained", fmt.Sprintf("%d rows, %d patients in %s",
		summary.TrainingRows, summary.Patients, time.Since(start)))

	store, err := history.Open(cfg.History.Backend, cfg.History.Path)
	if err != nil {
		return nil, errors.NewConfigurationError("failed to open prediction history", err)
	}
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = cfg.History.AppendRetries
	store = history.WithRetry(store, retry)

	a := &app{
		cfg:     cfg,
		scorer:  scorer,
		history: store,
		auth:    auth.NewService(cfg.Auth.Email, cfg.Auth.Password, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		metrics: metrics,
		logger:  logger,
		privacy: pseudonyms,
		security: security.NewSecurityMiddleware(security.SecurityConfig{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			RequestTimeout: cfg.Server.RequestTimeout,
			EnableHSTS:     cfg.Server.EnableHSTS,
		}),
		compression: middleware.NewCompressionMiddleware(middleware.DefaultCompressionConfig()),
	}

	if cfg.RateLimit.Enabled {
		redisClient, err := ratelimit.NewRedisClient(cfg.RateLimit.RedisAddr, cfg.RateLimit.RedisPassword, cfg.RateLimit.RedisDB)
		if err != nil {
			slog.Warn("Continuing with in-memory rate limiting", "error", err)
		}
		a.redis = redisClient
		a.limiter = ratelimit.NewRateLimiter(redisClient, ratelimit.Config{
			PerMinute: cfg.RateLimit.PerMinute,
			Burst:     cfg.RateLimit.Burst,
		})
	}

	return a, nil
}

// healthStatus reports "degraded" when a configured Redis is unreachable;
// the limiter keeps working in memory.
func (a *app) healthStatus(ctx context.Context) (string, map[string]string) {
	services := map[string]string{"history": a.cfg.History.Backend}
	status := "ok"

	switch {
	case a.limiter == nil:
		services["ratelimit"] = "disabled"
	case a.redis.IsEnabled():
		if err := a.redis.HealthCheck(ctx); err != nil {
			services["ratelimit"] = "redis unreachable"
			status = "degraded"
		} else {
			services["ratelimit"] = "redis"
		}
	default:
		services["ratelimit"] = "memory"
	}
	return status, services
}

// Close releases the history store and the limiter
func (a *app) Close() {
	if a.limiter != nil {
		a.limiter.Close()
	}
	if a.redis != nil {
		errors.SafeClose(a.redis, "redis")
	}
	errors.SafeClose(a.history, "history")
}
