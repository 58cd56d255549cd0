package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type report struct {
	Count int    `json:"count"`
	Label string `json:"label"`
}

func newTestCache(t *testing.T) (*Versioned, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewVersioned(client, time.Minute), mr
}

func TestFetchJSONCachesUntilBump(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return report{Count: calls, Label: "aging"}, nil
	}

	key, err := c.BuildKey(ctx, "receivable", "aging", "2024-05-01")
	require.NoError(t, err)
	require.Equal(t, "receivable:aging:2024-05-01:v1", key)

	var got report
	require.NoError(t, c.FetchJSON(ctx, key, &got, loader))
	require.Equal(t, 1, got.Count)
	require.NoError(t, c.FetchJSON(ctx, key, &got, loader))
	require.Equal(t, 1, got.Count)
	require.Equal(t, 1, calls)

	require.NoError(t, c.Bump(ctx, "receivable"))
	key, err = c.BuildKey(ctx, "receivable", "aging", "2024-05-01")
	require.NoError(t, err)
	require.Equal(t, "receivable:aging:2024-05-01:v2", key)
	require.NoError(t, c.FetchJSON(ctx, key, &got, loader))
	require.Equal(t, 2, got.Count)
}

func TestBumpIsolatedPerNamespace(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.Bump(ctx, "stock"))
	require.NoError(t, c.Bump(ctx, "stock"))

	ver, err := c.Version(ctx, "receivable")
	require.NoError(t, err)
	require.EqualValues(t, 1, ver)
	ver, err = c.Version(ctx, "stock")
	require.NoError(t, err)
	require.EqualValues(t, 2, ver)
}

func TestFetchJSONLoaderErrorNotCached(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	boom := errors.New("boom")
	var got report
	err := c.FetchJSON(ctx, "k", &got, func(context.Context) (any, error) { return nil, boom })
	require.ErrorIs(t, err, boom)
	require.False(t, mr.Exists("k"))
}

func TestFetchJSONCollapsesConcurrentMisses(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	var calls atomic.Int32
	release := make(chan struct{})
	loader := func(context.Context) (any, error) {
		calls.Add(1)
		<-release
		return report{Count: 7}, nil
	}

	var wg sync.WaitGroup
	results := make([]report, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, c.FetchJSON(ctx, "shared", &results[i], loader))
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.LessOrEqual(t, calls.Load(), int32(5))
	for _, r := range results {
		require.Equal(t, 7, r.Count)
	}
}

func TestNilClientCallsLoader(t *testing.T) {
	c := NewVersioned(nil, time.Minute)
	var got report
	require.NoError(t, c.FetchJSON(context.Background(), "x", &got, func(context.Context) (any, error) {
		return report{Label: "direct"}, nil
	}))
	require.Equal(t, "direct", got.Label)
	key, err := c.BuildKey(context.Background(), "stock", "summary")
	require.NoError(t, err)
	require.Equal(t, "stock:summary", key)
}
