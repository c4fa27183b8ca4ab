package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"flowtrack/backend/internal/logging"
	"flowtrack/backend/internal/monitoring"

	"github.com/gofrs/uuid"
	"github.com/sony/gobreaker/v2"
)

const DefaultProgressTTL = 5 * time.Minute

// ProgressCache memoizes per-project progress summaries. Every failure is
// logged and reported as a miss so callers fall back to the database.
type ProgressCache struct {
	cache   *RedisCache
	ttl     time.Duration
	breaker *gobreaker.CircuitBreaker[struct{}]
}

func NewProgressCache(cache *RedisCache, ttl time.Duration) *ProgressCache {
	if ttl <= 0 {
		ttl = DefaultProgressTTL
	}
	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "progress-cache",
		MaxRequests: 3,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrCacheMiss) || errors.Is(err, ErrStaleVersion)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Cache circuit breaker state changed")
		},
	})
	return &ProgressCache{cache: cache, ttl: ttl, breaker: breaker}
}

func progressKey(projectID uuid.UUID) string {
	return fmt.Sprintf("project:%s:progress", projectID)
}

func progressVersionKey(projectID uuid.UUID) string {
	return fmt.Sprintf("project:%s:progress:version", projectID)
}

// Get fills dest and reports a hit. On a miss it returns the version that a
// following Set must present; a version of -1 disables that Set.
func (p *ProgressCache) Get(ctx context.Context, projectID uuid.UUID, dest interface{}) (int64, bool) {
	version := int64(-1)
	_, err := p.breaker.Execute(func() (struct{}, error) {
		v, err := p.cache.Version(ctx, progressVersionKey(projectID))
		if err != nil {
			return struct{}{}, err
		}
		version = v
		return struct{}{}, p.cache.Get(ctx, progressKey(projectID), dest)
	})
	switch {
	case err == nil:
		monitoring.CacheRequests.WithLabelValues("hit").Inc()
		return version, true
	case errors.Is(err, ErrCacheMiss):
		monitoring.CacheRequests.WithLabelValues("miss").Inc()
		return version, false
	default:
		monitoring.CacheRequests.WithLabelValues("error").Inc()
		logging.Warn().Err(err).Str("project_id", projectID.String()).Msg("Progress cache read failed")
		return -1, false
	}
}

// Set stores value unless the project was invalidated since version was read.
func (p *ProgressCache) Set(ctx context.Context, projectID uuid.UUID, version int64, value interface{}) {
	if version < 0 {
		return
	}
	_, err := p.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, p.cache.SetIfVersion(ctx, progressKey(projectID), progressVersionKey(projectID), version, value, p.ttl)
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrStaleVersion):
		logging.Debug().Str("project_id", projectID.String()).Msg("Skipping stale progress write")
	default:
		logging.Warn().Err(err).Str("project_id", projectID.String()).Msg("Progress cache write failed")
	}
}

func (p *ProgressCache) Invalidate(ctx context.Context, projectID uuid.UUID) {
	_, err := p.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, p.cache.Bump(ctx, progressVersionKey(projectID), progressKey(projectID))
	})
	if err != nil {
		logging.Warn().Err(err).Str("project_id", projectID.String()).Msg("Progress cache invalidation failed")
	}
}
