package sentiment

import (
	"context"
	"sync"
	"time"

	"sentiment-trading-bot/internal/interfaces"
	"sentiment-trading-bot/internal/logger"
	"sentiment-trading-bot/internal/types"
)

// Service serves aggregated sentiment for the live engine, caching feed
// results per symbol.
type Service struct {
	feed  interfaces.SentimentFeed
	agg   Aggregator
	cache *observationCache
	cfg   *ServiceConfig
}

// ServiceConfig configures the sentiment service
type ServiceConfig struct {
	CacheDuration time.Duration // How long fetched observations are reused
	Staleness     time.Duration // Aggregation staleness window
	Enabled       bool          // Disabled services always report neutral
}

// DefaultServiceConfig returns default configuration
func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		CacheDuration: 5 * time.Minute,
		Staleness:     24 * time.Hour,
		Enabled:       true,
	}
}

// observationCache stores fetched observations per symbol
type observationCache struct {
	mu   sync.RWMutex
	data map[string]*cacheEntry
	ttl  time.Duration
	now  func() time.Time
}

type cacheEntry struct {
	observations []types.SentimentObservation
	fetchedAt    time.Time
}

func newObservationCache(ttl time.Duration) *observationCache {
	return &observationCache{
		data: make(map[string]*cacheEntry),
		ttl:  ttl,
		now:  time.Now,
	}
}

func (c *observationCache) get(symbol string) ([]types.SentimentObservation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.data[symbol]
	if !exists || c.now().Sub(entry.fetchedAt) > c.ttl {
		return nil, false
	}
	return entry.observations, true
}

func (c *observationCache) set(symbol string, obs []types.SentimentObservation) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[symbol] = &cacheEntry{observations: obs, fetchedAt: c.now()}
}

// cleanup removes expired entries
func (c *observationCache) cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	now := c.now()
	for symbol, entry := range c.data {
		if now.Sub(entry.fetchedAt) > c.ttl {
			delete(c.data, symbol)
			removed++
		}
	}
	return removed
}

// NewService creates a sentiment service over feed
func NewService(feed interfaces.SentimentFeed, cfg *ServiceConfig) *Service {
	if cfg == nil {
		cfg = DefaultServiceConfig()
	}
	return &Service{
		feed:  feed,
		agg:   Aggregator{Staleness: cfg.Staleness},
		cache: newObservationCache(cfg.CacheDuration),
		cfg:   cfg,
	}
}

// Run evicts expired cache entries until ctx is done.
func (s *Service) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.cache.cleanup(); n > 0 {
				logger.Debug(ctx, "Evicted cached sentiment", "entries", n)
			}
		}
	}
}

// State returns the aggregated sentiment for symbol at now. Feed failures
// degrade to the neutral, zero-confidence state.
func (s *Service) State(ctx context.Context, symbol string, now time.Time) types.SentimentState {
	if !s.cfg.Enabled || s.feed == nil {
		return types.SentimentState{Score: Neutral}
	}

	obs, ok := s.cache.get(symbol)
	if !ok {
		var err error
		obs, err = s.feed.Observations(ctx, symbol)
		if err != nil {
			logger.ErrorWithErr(ctx, "Failed to fetch sentiment", err, "symbol", symbol)
			return types.SentimentState{Score: Neutral}
		}
		s.cache.set(symbol, obs)
	}

	st := s.agg.Aggregate(obs, now)
	logger.Debug(ctx, "Sentiment aggregated",
		"symbol", symbol,
		"score", st.Score,
		"confidence", st.Confidence,
		"observations", st.Observations,
	)
	return st
}
