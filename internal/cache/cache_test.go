package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gov-dx-sandbox/tokenguard/internal/pipeline"
)

func contentFor(subject string) pipeline.AccessTokenContent {
	return pipeline.AccessTokenContent{Content: pipeline.Content{Subject: subject}}
}

func TestGetPut_RoundTrip(t *testing.T) {
	c := New()
	defer c.Shutdown()

	c.Put("raw-token", contentFor("user-1"), time.Now().Add(time.Hour))
	content, ok := c.Get("raw-token")
	require.True(t, ok)
	assert.Equal(t, "user-1", content.Subject)
}

func TestGet_MissOnUnknownToken(t *testing.T) {
	c := New()
	defer c.Shutdown()

	_, ok := c.Get("never-inserted")
	assert.False(t, ok)
}

func TestGet_NearExpiryWithinSkewIsNotReturned(t *testing.T) {
	c := New(WithEarlyEvictSkew(10 * time.Second))
	defer c.Shutdown()

	c.Put("raw-token", contentFor("user-1"), time.Now().Add(5*time.Second))
	_, ok := c.Get("raw-token")
	assert.False(t, ok, "entry within earlyEvictSkew of expiry must not be returned")
}

func TestPut_EvictsLeastRecentlyUsedOverCapacity(t *testing.T) {
	c := New(WithMaxSize(2))
	defer c.Shutdown()

	c.Put("a", contentFor("a"), time.Now().Add(time.Hour))
	c.Put("b", contentFor("b"), time.Now().Add(time.Hour))
	// Touch "a" so "b" becomes the least-recently-used entry.
	_, _ = c.Get("a")
	c.Put("c", contentFor("c"), time.Now().Add(time.Hour))

	_, aOk := c.Get("a")
	_, bOk := c.Get("b")
	_, cOk := c.Get("c")
	assert.True(t, aOk)
	assert.False(t, bOk, "least-recently-used entry should have been evicted")
	assert.True(t, cOk)
}

func TestSweep_RemovesNearExpiryEntries(t *testing.T) {
	c := New(WithEvictionInterval(5*time.Millisecond), WithEarlyEvictSkew(time.Millisecond))
	defer c.Shutdown()

	c.Put("raw-token", contentFor("user-1"), time.Now().Add(2*time.Millisecond))
	time.Sleep(20 * time.Millisecond)

	c.mu.Lock()
	_, stillPresent := c.items[Fingerprint("raw-token")]
	c.mu.Unlock()
	assert.False(t, stillPresent, "sweep should have removed the near-expiry entry")
}

func TestDisabledMode_GetAlwaysMissesPutIsNoop(t *testing.T) {
	c := New(WithMaxSize(0))
	defer c.Shutdown()

	c.Put("raw-token", contentFor("user-1"), time.Now().Add(time.Hour))
	_, ok := c.Get("raw-token")
	assert.False(t, ok)
	assert.Nil(t, c.stop, "disabled cache should not start a sweeper")
}

func TestShutdown_StopsSweeperDeterministically(t *testing.T) {
	c := New(WithEvictionInterval(time.Millisecond))
	c.Shutdown()
	// A second call to Shutdown must not be required; the sweeper has
	// already joined by the time Shutdown returns, so sweep() below runs
	// on an idle cache safely.
	c.sweep()
}

func TestGetOrValidate_CachesAfterFirstValidate(t *testing.T) {
	c := New()
	defer c.Shutdown()

	var calls int32
	validate := func(ctx context.Context) (pipeline.AccessTokenContent, time.Time, error) {
		atomic.AddInt32(&calls, 1)
		return contentFor("user-1"), time.Now().Add(time.Hour), nil
	}

	content1, err := c.GetOrValidate(context.Background(), "raw-token", validate)
	require.NoError(t, err)
	content2, err := c.GetOrValidate(context.Background(), "raw-token", validate)
	require.NoError(t, err)

	assert.Equal(t, content1, content2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "second call should be a cache hit, not a re-validation")
}

func TestGetOrValidate_CollapsesConcurrentCallers(t *testing.T) {
	c := New()
	defer c.Shutdown()

	var calls int32
	release := make(chan struct{})
	validate := func(ctx context.Context) (pipeline.AccessTokenContent, time.Time, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return contentFor("user-1"), time.Now().Add(time.Hour), nil
	}

	var wg sync.WaitGroup
	results := make([]pipeline.AccessTokenContent, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			content, err := c.GetOrValidate(context.Background(), "raw-token", validate)
			require.NoError(t, err)
			results[i] = content
		}(i)
	}
	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "concurrent callers for the same fingerprint must collapse onto one validation")
	for _, r := range results {
		assert.Equal(t, "user-1", r.Subject)
	}
}

func TestGetOrValidate_PropagatesValidationError(t *testing.T) {
	c := New()
	defer c.Shutdown()

	wantErr := errors.New("signature invalid")
	_, err := c.GetOrValidate(context.Background(), "raw-token", func(ctx context.Context) (pipeline.AccessTokenContent, time.Time, error) {
		return pipeline.AccessTokenContent{}, time.Time{}, wantErr
	})
	require.Error(t, err)
	assert.Equal(t, wantErr, err)

	_, ok := c.Get("raw-token")
	assert.False(t, ok, "a failed validation must not populate the cache")
}
