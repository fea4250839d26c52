// Package lookupcache caches posting lookups in Redis. Concurrent misses for
// the same term share one engine lookup.
package lookupcache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nylar/kensaku/internal/model"
	"github.com/nylar/kensaku/internal/posting"
	"github.com/nylar/kensaku/pkg/logger"
	"github.com/nylar/kensaku/pkg/metrics"
	"github.com/nylar/kensaku/pkg/redis"
)

const keyPrefix = "postings:"

// Backend is satisfied by *redis.Client.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	DeletePattern(ctx context.Context, pattern string) (int64, error)
}

// Finder is satisfied by *indexer.Engine.
type Finder interface {
	Normalize(word string) string
	Find(word string) ([]posting.Posting, error)
}

type cachedPosting struct {
	DocumentID int    `json:"d"`
	ID         int    `json:"i"`
	Word       string `json:"w"`
	Locations  []int  `json:"l"`
}

type Cache struct {
	backend Backend
	finder  Finder
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New returns a cache in front of finder. m may be nil.
func New(backend Backend, finder Finder, ttl time.Duration, m *metrics.Metrics) *Cache {
	return &Cache{
		backend: backend,
		finder:  finder,
		ttl:     ttl,
		metrics: m,
		logger:  logger.WithComponent("lookup-cache"),
	}
}

func Key(term string) string {
	return keyPrefix + term
}

// Find returns the postings for word, from Redis when cached. Redis errors
// are logged and the lookup falls through to the engine.
func (c *Cache) Find(ctx context.Context, word string) ([]posting.Posting, error) {
	term := c.finder.Normalize(word)
	if term == "" {
		return nil, nil
	}
	key := Key(term)

	data, err := c.backend.Get(ctx, key)
	if err == nil {
		postings, decodeErr := decode(data)
		if decodeErr == nil {
			c.count(true)
			return postings, nil
		}
		c.logger.Warn("discarding undecodable cache entry", "key", key, "error", decodeErr)
	} else if !redis.IsNilError(err) {
		c.logger.Warn("cache read failed", "key", key, "error", err)
	}
	c.count(false)

	v, err, _ := c.group.Do(term, func() (any, error) {
		postings, err := c.finder.Find(term)
		if err != nil {
			return nil, err
		}
		encoded, err := encode(postings)
		if err != nil {
			return nil, err
		}
		if err := c.backend.Set(ctx, key, encoded, c.ttl); err != nil {
			c.logger.Warn("cache write failed", "key", key, "error", err)
		}
		return postings, nil
	})
	if err != nil {
		return nil, fmt.Errorf("looking up %q: %w", term, err)
	}
	return v.([]posting.Posting), nil
}

// Invalidate drops cached results for terms. Pass terms as reported by the
// engine's commit hook, which are already normalized.
func (c *Cache) Invalidate(ctx context.Context, terms ...string) error {
	if len(terms) == 0 {
		return nil
	}
	keys := make([]string, len(terms))
	for i, t := range terms {
		keys[i] = Key(t)
		c.group.Forget(t)
	}
	if err := c.backend.Del(ctx, keys...); err != nil {
		return fmt.Errorf("invalidating %d terms: %w", len(terms), err)
	}
	return nil
}

// InvalidateAll drops every cached lookup.
func (c *Cache) InvalidateAll(ctx context.Context) (int64, error) {
	n, err := c.backend.DeletePattern(ctx, keyPrefix+"*")
	if err != nil {
		return n, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache cleared", "keys", n)
	return n, nil
}

func (c *Cache) count(hit bool) {
	if c.metrics == nil {
		return
	}
	if hit {
		c.metrics.CacheHitsTotal.Inc()
	} else {
		c.metrics.CacheMissesTotal.Inc()
	}
}

func encode(postings []posting.Posting) ([]byte, error) {
	out := make([]cachedPosting, len(postings))
	for i, p := range postings {
		out[i] = cachedPosting{
			DocumentID: p.DocumentID,
			ID:         p.Index.ID(),
			Word:       p.Index.Word(),
			Locations:  p.Index.Locations(),
		}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encoding postings: %w", err)
	}
	return data, nil
}

func decode(data []byte) ([]posting.Posting, error) {
	var stored []cachedPosting
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, err
	}
	if len(stored) == 0 {
		return nil, nil
	}
	out := make([]posting.Posting, len(stored))
	for i, s := range stored {
		out[i] = posting.Posting{
			DocumentID: s.DocumentID,
			Index:      model.NewIndex(s.ID, s.Word, s.Locations),
		}
	}
	return out, nil
}
