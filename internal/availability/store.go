package availability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/notary-booking/internal/backend"
	"github.com/wolfman30/notary-booking/internal/events"
	"github.com/wolfman30/notary-booking/pkg/logging"
)

// DatesSource lists the current blackout entries.
type DatesSource interface {
	ListUnavailableDates(ctx context.Context) ([]backend.UnavailableDate, error)
}

// Cache shares a blackout snapshot between client processes.
type Cache interface {
	Get(ctx context.Context) ([]backend.UnavailableDate, bool, error)
	Set(ctx context.Context, dates []backend.UnavailableDate) error
	Invalidate(ctx context.Context) error
}

const defaultCacheKey = "notary:unavailable_dates"

// RedisCache stores the blackout snapshot as JSON under one key with a TTL.
type RedisCache struct {
	redis *redis.Client
	key   string
	ttl   time.Duration
}

// NewRedisCache creates a cache. ttl <= 0 stores without expiry.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{redis: client, key: defaultCacheKey, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context) ([]backend.UnavailableDate, bool, error) {
	raw, err := c.redis.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("availability: cache get: %w", err)
	}
	var dates []backend.UnavailableDate
	if err := json.Unmarshal(raw, &dates); err != nil {
		return nil, false, fmt.Errorf("availability: cache decode: %w", err)
	}
	return dates, true, nil
}

func (c *RedisCache) Set(ctx context.Context, dates []backend.UnavailableDate) error {
	raw, err := json.Marshal(dates)
	if err != nil {
		return fmt.Errorf("availability: cache encode: %w", err)
	}
	if err := c.redis.Set(ctx, c.key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("availability: cache set: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context) error {
	if err := c.redis.Del(ctx, c.key).Err(); err != nil {
		return fmt.Errorf("availability: cache invalidate: %w", err)
	}
	return nil
}

// DateStore keeps an Oracle loaded with the backend's blackout set.
type DateStore struct {
	source DatesSource
	cache  Cache
	oracle *Oracle
	logger *logging.Logger
	now    func() time.Time

	mu       sync.RWMutex
	loadedAt time.Time
	stale    bool
	lastErr  error
}

// NewDateStore wires a source into oracle. cache may be nil.
func NewDateStore(source DatesSource, oracle *Oracle, cache Cache, logger *logging.Logger) *DateStore {
	if source == nil {
		panic("availability: dates source required")
	}
	if oracle == nil {
		oracle = NewOracle()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DateStore{source: source, cache: cache, oracle: oracle, logger: logger, now: time.Now, stale: true}
}

// Oracle returns the oracle this store feeds.
func (s *DateStore) Oracle() *Oracle { return s.oracle }

// Load fills the oracle from the cache when warm, else from the backend.
func (s *DateStore) Load(ctx context.Context) error {
	if s.cache != nil {
		dates, ok, err := s.cache.Get(ctx)
		if err != nil {
			s.logger.Warn("availability: cache read failed, using backend", "error", err)
		} else if ok {
			s.apply(dates)
			return nil
		}
	}
	return s.fetch(ctx)
}

// Refresh drops any cached snapshot and reloads from the backend.
func (s *DateStore) Refresh(ctx context.Context) error {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx); err != nil {
			s.logger.Warn("availability: cache invalidate failed", "error", err)
		}
	}
	return s.fetch(ctx)
}

func (s *DateStore) fetch(ctx context.Context) error {
	dates, err := s.source.ListUnavailableDates(ctx)
	if err != nil {
		s.mu.Lock()
		s.stale = true
		s.lastErr = err
		s.mu.Unlock()
		s.logger.Warn("availability: load unavailable dates failed, keeping previous set", "error", err)
		return fmt.Errorf("availability: load unavailable dates: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, dates); err != nil {
			s.logger.Warn("availability: cache write failed", "error", err)
		}
	}
	s.apply(dates)
	return nil
}

func (s *DateStore) apply(dates []backend.UnavailableDate) {
	s.oracle.SetDates(dates)
	s.mu.Lock()
	s.loadedAt = s.now()
	s.stale = false
	s.lastErr = nil
	s.mu.Unlock()
	s.logger.Debug("availability: unavailable dates loaded", "count", len(dates))
}

// Stale reports whether the oracle's set may be out of date (never loaded,
// or the last reload failed).
func (s *DateStore) Stale() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stale
}

// LastError returns the error from the most recent failed reload.
func (s *DateStore) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// LoadedAt returns when the set was last applied.
func (s *DateStore) LoadedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadedAt
}

// Watch reloads whenever an admin changes the blackout set.
func (s *DateStore) Watch(bus *events.Bus) func() {
	return bus.Subscribe(events.UnavailableDatesChanged, func(ctx context.Context, ev events.Event) {
		if err := s.Refresh(ctx); err != nil {
			s.logger.Warn("availability: refresh after change failed", "source", ev.Source, "error", err)
		}
	})
}
