// Package historic serves aggregated wildfire incident history with a Redis
// read-through cache in front of the upstream endpoint. Incident aggregates
// change slowly, so a generous TTL keeps both latency and upstream load down.
package historic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"emberwatch/internal/external"
	"emberwatch/internal/types"
)

// defaultCacheTTL is used when the config does not override it.
const defaultCacheTTL = 6 * time.Hour

// CacheMetrics records cache hit/miss telemetry. Nil-safe via the service.
type CacheMetrics interface {
	RecordHistoricCache(hit bool)
}

// Service is the cached facade over the historic-data endpoint. It implements
// predictions.HistoricSource.
type Service struct {
	client  external.HistoricClient
	redis   *redis.Client
	ttl     time.Duration
	metrics CacheMetrics
	logger  *slog.Logger
}

// ServiceConfig holds the dependencies for creating a historic Service.
type ServiceConfig struct {
	Client  external.HistoricClient
	Redis   *redis.Client
	TTL     time.Duration
	Metrics CacheMetrics
	Logger  *slog.Logger
}

func NewService(cfg ServiceConfig) *Service {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		client:  cfg.Client,
		redis:   cfg.Redis,
		ttl:     ttl,
		metrics: cfg.Metrics,
		logger:  logger,
	}
}

// ByLocation returns the incident summary for a named place, serving from
// cache when possible. Cache failures degrade to a direct upstream call; only
// upstream failures surface to the caller.
func (s *Service) ByLocation(ctx context.Context, location string) (*types.HistoricSummary, error) {
	key := cacheKey("location", strings.ToLower(strings.TrimSpace(location)))

	if summary := s.fromCache(ctx, key); summary != nil {
		return summary, nil
	}

	summary, err := s.client.ByLocation(ctx, location)
	if err != nil {
		return nil, err
	}

	s.toCache(ctx, key, summary)
	return summary, nil
}

// ByCoordinates returns the incident summary around a point. Coordinates are
// rounded to two decimals (~1km) for the cache key so nearby queries share an
// entry.
func (s *Service) ByCoordinates(ctx context.Context, lat, lon, radiusKm float64) (*types.HistoricSummary, error) {
	key := cacheKey("coords", fmt.Sprintf("%.2f:%.2f:%.0f", lat, lon, radiusKm))

	if summary := s.fromCache(ctx, key); summary != nil {
		return summary, nil
	}

	summary, err := s.client.ByCoordinates(ctx, lat, lon, radiusKm)
	if err != nil {
		return nil, err
	}

	s.toCache(ctx, key, summary)
	return summary, nil
}

func (s *Service) fromCache(ctx context.Context, key string) *types.HistoricSummary {
	if s.redis == nil {
		return nil
	}

	data, err := s.redis.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("historic cache read failed", slog.String("key", key), slog.String("error", err.Error()))
		}
		if s.metrics != nil {
			s.metrics.RecordHistoricCache(false)
		}
		return nil
	}

	var summary types.HistoricSummary
	if err := json.Unmarshal([]byte(data), &summary); err != nil {
		s.logger.Warn("historic cache entry corrupt, discarding", slog.String("key", key))
		_ = s.redis.Del(ctx, key).Err()
		if s.metrics != nil {
			s.metrics.RecordHistoricCache(false)
		}
		return nil
	}

	if s.metrics != nil {
		s.metrics.RecordHistoricCache(true)
	}
	return &summary
}

func (s *Service) toCache(ctx context.Context, key string, summary *types.HistoricSummary) {
	if s.redis == nil {
		return
	}

	data, err := json.Marshal(summary)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, key, data, s.ttl).Err(); err != nil {
		s.logger.Warn("historic cache write failed", slog.String("key", key), slog.String("error", err.Error()))
	}
}

func cacheKey(kind, suffix string) string {
	return "historic:" + kind + ":" + suffix
}
