package service

import (
	"context"
	"log/slog"
	"time"

	"tally/internal/ratelimit/config"
	"tally/internal/ratelimit/metrics"
	"tally/internal/ratelimit/models"
)

type WindowStore interface {
	Hit(ctx context.Context, key string, window time.Duration) (count int64, resetAt time.Time, err error)
	Sweep(ctx context.Context, window time.Duration) error
}

// Service applies the fixed-window limits. A broken window store fails open:
// an unavailable limiter must degrade to unlimited traffic, never to an
// outage of its own making.
type Service struct {
	store   WindowStore
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(store WindowStore, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{store: store, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Check records a hit for the caller and reports whether it is within the
// class ceiling.
func (s *Service) Check(ctx context.Context, class models.Class, callerID string) models.Result {
	limit := config.LimitFor(class)
	key := models.Key(class, callerID)

	count, resetAt, err := s.store.Hit(ctx, key, limit.Window)
	if err != nil {
		if s.metrics != nil {
			s.metrics.StoreErrors.Inc()
		}
		s.logger.WarnContext(ctx, "rate limit store unavailable, failing open",
			"class", class,
			"error", err,
		)
		return models.Result{Allowed: true, Limit: limit.Ceiling, Remaining: limit.Ceiling}
	}

	result := models.Result{
		Allowed: count <= int64(limit.Ceiling),
		Limit:   limit.Ceiling,
		ResetAt: resetAt,
	}
	if remaining := int64(limit.Ceiling) - count; remaining > 0 {
		result.Remaining = int(remaining)
	}
	if !result.Allowed {
		result.RetryAfter = time.Until(resetAt)
		if result.RetryAfter < time.Second {
			result.RetryAfter = time.Second
		}
	}

	if s.metrics != nil {
		outcome := "allowed"
		if !result.Allowed {
			outcome = "rejected"
		}
		s.metrics.Decisions.WithLabelValues(string(class), outcome).Inc()
	}
	return result
}

// Janitor periodically sweeps expired windows from the store. Run blocks
// until ctx is cancelled.
type Janitor struct {
	store    WindowStore
	interval time.Duration
	logger   *slog.Logger
}

func NewJanitor(store WindowStore, interval time.Duration, logger *slog.Logger) *Janitor {
	return &Janitor{store: store, interval: interval, logger: logger}
}

// longestWindow bounds the sweep so a bucket still inside any configured
// window is never dropped.
func longestWindow() time.Duration {
	longest := config.LimitFor(models.ClassAuth).Window
	if w := config.LimitFor(models.ClassAPI).Window; w > longest {
		longest = w
	}
	return longest
}

func (j *Janitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := j.store.Sweep(ctx, longestWindow()); err != nil {
				j.logger.WarnContext(ctx, "rate limit sweep failed", "error", err)
			}
		}
	}
}
