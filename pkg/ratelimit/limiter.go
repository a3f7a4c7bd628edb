package ratelimit

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limiting.
var (
	rateLimitDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rsvp_ratelimit_decisions_total",
		Help: "Total rate limit decisions by outcome",
	}, []string{"decision"})

	rateLimitSweptTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rsvp_ratelimit_swept_records_total",
		Help: "Total number of expired rate limit records purged",
	})
)

// DefaultSweepInterval is how often StartSweeper purges expired records.
const DefaultSweepInterval = 30 * time.Minute

// Config holds limiter configuration.
type Config struct {
	// SweepInterval is the period of the background sweep.
	SweepInterval time.Duration

	// Now returns the current time (default: time.Now).
	Now func() time.Time
}

// DefaultConfig returns the default limiter configuration.
func DefaultConfig() Config {
	return Config{
		SweepInterval: DefaultSweepInterval,
		Now:           time.Now,
	}
}

// Limiter gates requests per caller identity with a fixed-window counter.
type Limiter struct {
	store         Store
	sweepInterval time.Duration
	now           func() time.Time
	logger        zerolog.Logger
}

// NewLimiter creates a limiter over store.
func NewLimiter(store Store, cfg Config, logger zerolog.Logger) *Limiter {
	if store == nil {
		panic("rate limit store cannot be nil")
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Limiter{
		store:         store,
		sweepInterval: cfg.SweepInterval,
		now:           cfg.Now,
		logger:        logger,
	}
}

// Allow checks and consumes one request for identity against maxRequests
// per window. Denied requests do not consume budget.
//
// Allow never fails: if the store errors, the request is allowed and the
// error is logged.
func (l *Limiter) Allow(ctx context.Context, identity string, maxRequests int, window time.Duration) Decision {
	now := l.now()

	decision, err := l.store.Take(ctx, identity, maxRequests, window, now)
	if err != nil {
		rateLimitDecisionsTotal.WithLabelValues("error").Inc()
		l.logger.Error().
			Err(err).
			Str("identity", identity).
			Msg("Rate limit store failed - allowing request")
		return Decision{Allowed: true, Limit: maxRequests, ResetAt: now.Add(window)}
	}

	if !decision.Allowed {
		rateLimitDecisionsTotal.WithLabelValues("denied").Inc()
		l.logger.Warn().
			Str("identity", identity).
			Int("limit", decision.Limit).
			Time("reset_at", decision.ResetAt).
			Msg("Request blocked by rate limiter")
		return decision
	}

	rateLimitDecisionsTotal.WithLabelValues("allowed").Inc()
	l.logger.Debug().
		Str("identity", identity).
		Int("count", decision.Count).
		Int("limit", decision.Limit).
		Msg("Request allowed")
	return decision
}

// AllowPolicy is Allow with a named policy. Each policy keeps its own budget.
func (l *Limiter) AllowPolicy(ctx context.Context, identity string, p Policy) Decision {
	return l.Allow(ctx, p.Key(identity), p.MaxRequests, p.Window)
}

// Now returns the limiter's current time.
func (l *Limiter) Now() time.Time {
	return l.now()
}

// Sweep purges records whose window has elapsed.
func (l *Limiter) Sweep(ctx context.Context) int {
	removed, err := l.store.Sweep(ctx, l.now())
	if err != nil {
		l.logger.Warn().Err(err).Msg("Rate limit sweep failed")
		return removed
	}
	if removed > 0 {
		rateLimitSweptTotal.Add(float64(removed))
		l.logger.Debug().Int("removed", removed).Msg("Swept expired rate limit records")
	}
	return removed
}

// StartSweeper runs Sweep every SweepInterval until ctx is cancelled.
func (l *Limiter) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(l.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				l.Sweep(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}
