package lookupcache

import (
	"context"
	"errors"
	"os"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nylar/kensaku/internal/model"
	"github.com/nylar/kensaku/internal/posting"
	"github.com/nylar/kensaku/pkg/config"
	"github.com/nylar/kensaku/pkg/metrics"
	"github.com/nylar/kensaku/pkg/redis"
)

type mapBackend struct {
	mu   sync.Mutex
	data map[string][]byte
	err  error
}

func newMapBackend() *mapBackend {
	return &mapBackend{data: make(map[string][]byte)}
}

func (b *mapBackend) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	v, ok := b.data[key]
	if !ok {
		return nil, redis.ErrNil
	}
	return v, nil
}

func (b *mapBackend) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.data[key] = value
	return nil
}

func (b *mapBackend) Del(_ context.Context, keys ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, k := range keys {
		delete(b.data, k)
	}
	return nil
}

func (b *mapBackend) DeletePattern(_ context.Context, pattern string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var n int64
	for k := range b.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(b.data, k)
			n++
		}
	}
	return n, nil
}

type fakeFinder struct {
	calls    atomic.Int32
	postings map[string][]posting.Posting
	gate     chan struct{}
}

func (f *fakeFinder) Normalize(word string) string {
	if word == "the" {
		return ""
	}
	return strings.ToLower(word)
}

func (f *fakeFinder) Find(term string) ([]posting.Posting, error) {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if term == "broken" {
		return nil, errors.New("segment unreadable")
	}
	return f.postings[term], nil
}

func newFinder() *fakeFinder {
	return &fakeFinder{postings: map[string][]posting.Posting{
		"acme": {
			{DocumentID: 1, Index: model.NewIndex(10, "acme", []int{0, 4})},
			{DocumentID: 2, Index: model.NewIndex(11, "acme", []int{3})},
		},
	}}
}

func TestFindCachesResults(t *testing.T) {
	ctx := context.Background()
	m := metrics.New(prometheus.NewRegistry())
	f := newFinder()
	c := New(newMapBackend(), f, time.Minute, m)

	first, err := c.Find(ctx, "Acme")
	require.NoError(t, err)
	second, err := c.Find(ctx, "acme")
	require.NoError(t, err)

	assert.Equal(t, int32(1), f.calls.Load())
	require.Len(t, second, 2)
	for i := range first {
		assert.Equal(t, first[i].DocumentID, second[i].DocumentID)
		assert.Equal(t, first[i].Index.ID(), second[i].Index.ID())
		assert.Equal(t, first[i].Index.Word(), second[i].Index.Word())
		assert.Equal(t, first[i].Index.Locations(), second[i].Index.Locations())
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMissesTotal))
}

func TestFindCachesEmptyResult(t *testing.T) {
	f := newFinder()
	c := New(newMapBackend(), f, time.Minute, nil)
	for range 2 {
		got, err := c.Find(context.Background(), "missing")
		require.NoError(t, err)
		assert.Nil(t, got)
	}
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestFindSkipsUnindexableWords(t *testing.T) {
	f := newFinder()
	c := New(newMapBackend(), f, time.Minute, nil)
	got, err := c.Find(context.Background(), "the")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Zero(t, f.calls.Load())
}

func TestFindFallsThroughOnBackendError(t *testing.T) {
	b := newMapBackend()
	b.err = errors.New("connection refused")
	f := newFinder()
	c := New(b, f, time.Minute, nil)

	got, err := c.Find(context.Background(), "acme")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestFindPropagatesEngineError(t *testing.T) {
	c := New(newMapBackend(), newFinder(), time.Minute, nil)
	_, err := c.Find(context.Background(), "broken")
	assert.ErrorContains(t, err, "segment unreadable")
}

func TestFindCoalescesConcurrentMisses(t *testing.T) {
	f := newFinder()
	f.gate = make(chan struct{})
	c := New(newMapBackend(), f, time.Minute, nil)

	const callers = 8
	var wg sync.WaitGroup
	results := make([][]posting.Posting, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := c.Find(context.Background(), "acme")
			assert.NoError(t, err)
			results[i] = got
		}()
	}
	require.Eventually(t, func() bool { return f.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(f.gate)
	wg.Wait()

	assert.LessOrEqual(t, f.calls.Load(), int32(callers))
	for _, r := range results {
		assert.Len(t, r, 2)
	}
}

func TestInvalidate(t *testing.T) {
	ctx := context.Background()
	f := newFinder()
	b := newMapBackend()
	c := New(b, f, time.Minute, nil)

	_, err := c.Find(ctx, "acme")
	require.NoError(t, err)
	require.NoError(t, c.Invalidate(ctx, "acme"))
	_, err = c.Find(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.calls.Load())

	require.NoError(t, c.Invalidate(ctx))
}

func TestInvalidateAll(t *testing.T) {
	ctx := context.Background()
	b := newMapBackend()
	b.data["unrelated"] = []byte("x")
	c := New(b, newFinder(), time.Minute, nil)

	_, err := c.Find(ctx, "acme")
	require.NoError(t, err)
	_, err = c.Find(ctx, "missing")
	require.NoError(t, err)

	n, err := c.InvalidateAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Contains(t, b.data, "unrelated")
}

// TestRedisBackend runs against the server named by KS_TEST_REDIS_ADDR.
func TestRedisBackend(t *testing.T) {
	addr := os.Getenv("KS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("KS_TEST_REDIS_ADDR not set")
	}
	cfg := config.Default().Redis
	cfg.Addr = addr
	client, err := redis.NewClient(cfg)
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	f := newFinder()
	c := New(client, f, time.Minute, nil)
	_, err = c.InvalidateAll(ctx)
	require.NoError(t, err)

	_, err = c.Find(ctx, "acme")
	require.NoError(t, err)
	got, err := c.Find(ctx, "acme")
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, int32(1), f.calls.Load())
	require.NoError(t, c.Invalidate(ctx, "acme"))
}
