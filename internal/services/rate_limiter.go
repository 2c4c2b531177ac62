package services

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"feedbackhub/internal/config"
	"feedbackhub/internal/observability"
	serviceinterfaces "feedbackhub/internal/services/interfaces"
	contextutils "feedbackhub/internal/utils"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
)

// RateDecision is the outcome of one rate-limit check
type RateDecision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RateLimiterInterface checks per-system request budgets
type RateLimiterInterface interface {
	Allow(ctx context.Context, systemID, limit int) (RateDecision, error)
}

// RateLimiter is a fixed-window counter per external system kept in redis.
// It fails open: no client, a non-positive limit or a redis error all allow
// the request.
type RateLimiter struct {
	client *redis.Client
	logger *observability.Logger
	window time.Duration
	now    func() time.Time
	ready  atomic.Bool
}

var _ serviceinterfaces.Lifecycle = (*RateLimiter)(nil)

// NewRateLimiter builds a limiter from cache.url. An empty url yields a
// limiter that allows everything.
func NewRateLimiter(cfg config.CacheConfig, logger *observability.Logger) (*RateLimiter, error) {
	rl := &RateLimiter{logger: logger, window: config.RateLimitWindow, now: time.Now}
	if cfg.URL == "" {
		return rl, nil
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, contextutils.WrapError(err, "invalid cache url")
	}
	rl.client = redis.NewClient(opts)
	return rl, nil
}

// NewRateLimiterWithClient wraps an existing redis client
func NewRateLimiterWithClient(client *redis.Client, logger *observability.Logger) *RateLimiter {
	return &RateLimiter{client: client, logger: logger, window: config.RateLimitWindow, now: time.Now}
}

// Startup pings redis. An unreachable server is logged; the limiter keeps failing open.
func (r *RateLimiter) Startup(ctx context.Context) error {
	if r.client == nil {
		r.logger.Info(ctx, "Rate limiting disabled: no cache url configured")
		return nil
	}
	if err := r.client.Ping(ctx).Err(); err != nil {
		r.logger.Warn(ctx, "Redis unavailable, rate limiting will fail open", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}
	r.ready.Store(true)
	return nil
}

// Shutdown closes the redis client
func (r *RateLimiter) Shutdown(context.Context) error {
	r.ready.Store(false)
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}

// IsReady reports whether the last Startup reached redis
func (r *RateLimiter) IsReady() bool {
	return r.ready.Load()
}

// Allow counts one request for systemID against limit requests per window
func (r *RateLimiter) Allow(ctx context.Context, systemID, limit int) (result0 RateDecision, err error) {
	ctx, span := observability.TraceExternalFunction(ctx, "rate_limit",
		observability.AttributeSystemID(systemID), attribute.Int("rate_limit.limit", limit))
	defer observability.FinishSpan(span, &err)

	windowStart := r.now().Truncate(r.window)
	decision := RateDecision{Allowed: true, Limit: limit, Remaining: limit, ResetAt: windowStart.Add(r.window)}
	if limit <= 0 || r.client == nil {
		return decision, nil
	}

	key := fmt.Sprintf("ratelimit:external:%d:%d", systemID, windowStart.Unix())
	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, r.window+time.Second)
	if _, pipeErr := pipe.Exec(ctx); pipeErr != nil {
		r.logger.Warn(ctx, "Rate limiter unavailable, allowing request", map[string]interface{}{
			"system_id": systemID,
			"error":     pipeErr.Error(),
		})
		return decision, nil
	}

	count := int(incr.Val())
	decision.Allowed = count <= limit
	decision.Remaining = limit - count
	if decision.Remaining < 0 {
		decision.Remaining = 0
	}
	span.SetAttributes(attribute.Bool("rate_limit.allowed", decision.Allowed))
	return decision, nil
}
