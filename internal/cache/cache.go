// Package cache implements the AccessTokenCache from spec §4.9: a
// Fingerprint → CacheEntry map with capacity-based LRU eviction and a
// scheduled sweep for time-based eviction. Grounded on the general
// sync.RWMutex-guarded-map-plus-background-goroutine shape shared by the
// pack's JWKS/OIDC clients (e.g.
// other_examples/01a2be8f_vyrodovalexey-restapi-example__internal-auth-
// oidc_verifier.go's backgroundRefresh/stopRefresh), generalized here to
// LRU eviction via container/list since no pack repo imports a
// third-party LRU library for this shape.
package cache

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/gov-dx-sandbox/tokenguard/internal/logging"
	"github.com/gov-dx-sandbox/tokenguard/internal/pipeline"
)

// Default ceilings, matching spec §6's cache configuration block.
const (
	DefaultMaxSize          = 1000
	DefaultEvictionInterval = 60 * time.Second
	DefaultEarlyEvictSkew   = 5 * time.Second
)

// Fingerprint computes the opaque, collision-resistant cache key for a
// raw token: the hex-encoded SHA-256 of its bytes. The raw token itself
// is never stored.
func Fingerprint(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Entry is one CacheEntry: a validated token's typed content plus the
// instants needed to decide eviction.
type Entry struct {
	Content    pipeline.AccessTokenContent
	InsertedAt time.Time
	ExpiresAt  time.Time
}

type node struct {
	fingerprint string
	entry       Entry
}

// Option configures a Cache at construction time.
type Option func(*Cache)

// WithMaxSize overrides the default capacity. A size of 0 puts the cache
// into disabled mode: Get always misses, Put is a no-op, and no sweeper
// goroutine is started.
func WithMaxSize(n int) Option {
	return func(c *Cache) { c.maxSize = n }
}

// WithEvictionInterval overrides the default 60s sweep period.
func WithEvictionInterval(d time.Duration) Option {
	return func(c *Cache) { c.evictionInterval = d }
}

// WithEarlyEvictSkew overrides the default 5s early-eviction margin.
func WithEarlyEvictSkew(d time.Duration) Option {
	return func(c *Cache) { c.earlyEvictSkew = d }
}

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) { c.logger = logging.OrDefault(logger) }
}

// Cache is the AccessTokenCache.
type Cache struct {
	maxSize          int
	evictionInterval time.Duration
	earlyEvictSkew   time.Duration
	logger           *slog.Logger

	mu    sync.Mutex
	ll    *list.List
	items map[string]*list.Element

	group singleflight.Group

	stop chan struct{}
	done chan struct{}
}

// New builds a Cache and, unless disabled (maxSize 0), starts its
// background sweeper.
func New(opts ...Option) *Cache {
	c := &Cache{
		maxSize:          DefaultMaxSize,
		evictionInterval: DefaultEvictionInterval,
		earlyEvictSkew:   DefaultEarlyEvictSkew,
		logger:           logging.Default(),
		ll:               list.New(),
		items:            make(map[string]*list.Element),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxSize > 0 {
		c.stop = make(chan struct{})
		c.done = make(chan struct{})
		go c.sweepLoop()
	}
	return c
}

func (c *Cache) disabled() bool { return c.maxSize <= 0 }

// Get returns (content, true) iff an entry exists for raw and has not
// reached its early-eviction margin. A miss or near-expiry entry is
// never synchronously evicted here; that is the sweeper's job.
func (c *Cache) Get(raw string) (pipeline.AccessTokenContent, bool) {
	if c.disabled() {
		return pipeline.AccessTokenContent{}, false
	}
	fp := Fingerprint(raw)

	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[fp]
	if !ok {
		return pipeline.AccessTokenContent{}, false
	}
	n := el.Value.(*node)
	if !time.Now().Before(n.entry.ExpiresAt.Add(-c.earlyEvictSkew)) {
		return pipeline.AccessTokenContent{}, false
	}
	c.ll.MoveToFront(el)
	return n.entry.Content, true
}

// Put inserts or refreshes the entry for raw, evicting the
// least-recently-used entry if the cache is over capacity afterward.
func (c *Cache) Put(raw string, content pipeline.AccessTokenContent, expiresAt time.Time) {
	if c.disabled() {
		return
	}
	fp := Fingerprint(raw)
	entry := Entry{Content: content, InsertedAt: time.Now(), ExpiresAt: expiresAt}

	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[fp]; ok {
		el.Value.(*node).entry = entry
		c.ll.MoveToFront(el)
		return
	}
	el := c.ll.PushFront(&node{fingerprint: fp, entry: entry})
	c.items[fp] = el
	for c.ll.Len() > c.maxSize {
		c.evictOldest()
	}
}

// evictOldest removes the least-recently-used entry. Caller must hold mu.
func (c *Cache) evictOldest() {
	back := c.ll.Back()
	if back == nil {
		return
	}
	c.ll.Remove(back)
	delete(c.items, back.Value.(*node).fingerprint)
}

// sweep removes every entry that has reached its early-eviction margin.
func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	var next *list.Element
	for el := c.ll.Front(); el != nil; el = next {
		next = el.Next()
		n := el.Value.(*node)
		if !now.Before(n.entry.ExpiresAt.Add(-c.earlyEvictSkew)) {
			c.ll.Remove(el)
			delete(c.items, n.fingerprint)
		}
	}
}

func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(c.evictionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stop:
			close(c.done)
			return
		}
	}
}

// Shutdown cancels the scheduled sweep task and joins it deterministically.
// It is a no-op on a disabled cache.
func (c *Cache) Shutdown() {
	if c.stop == nil {
		return
	}
	close(c.stop)
	<-c.done
}

// Validate is the shape of a validation call GetOrValidate will run at
// most once per fingerprint among concurrent callers.
type Validate func(ctx context.Context) (pipeline.AccessTokenContent, time.Time, error)

// GetOrValidate returns the cached content for raw if present; otherwise
// it runs validate, caching and returning its result. Concurrent callers
// for the same raw token's fingerprint collapse onto a single in-flight
// validate call (spec §4.9's "at-most-one concurrent validation per
// fingerprint"), matching the request-coalescing pattern internal/loader
// and internal/keystore already use for key material.
func (c *Cache) GetOrValidate(ctx context.Context, raw string, validate Validate) (pipeline.AccessTokenContent, error) {
	if content, ok := c.Get(raw); ok {
		return content, nil
	}

	fp := Fingerprint(raw)
	v, err, _ := c.group.Do(fp, func() (interface{}, error) {
		if content, ok := c.Get(raw); ok {
			return content, nil
		}
		content, expiresAt, err := validate(ctx)
		if err != nil {
			return nil, err
		}
		c.Put(raw, content, expiresAt)
		return content, nil
	})
	if err != nil {
		return pipeline.AccessTokenContent{}, err
	}
	return v.(pipeline.AccessTokenContent), nil
}
