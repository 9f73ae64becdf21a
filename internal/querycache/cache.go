// Package querycache holds fetched API resources per session, keyed by
// resource name and filter parameters.
//
// Each distinct parameter set is its own entry: switching a filter back to a
// previous value is served from cache without a network call. Concurrent
// fetches of the same key share a single in-flight call. Refetch forces a new
// call and replaces the entry once it succeeds. Invalidate drops every
// parameter variant of a resource.
package querycache

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Key identifies a cached query.
type Key struct {
	// Scope isolates entries per session.
	Scope    string
	Resource string
	Params   map[string]string
}

// NewKey builds a key. Params may be nil.
func NewKey(scope, resource string, params map[string]string) Key {
	return Key{Scope: scope, Resource: resource, Params: params}
}

// String renders the canonical form used for coalescing, e.g. "products?search=riz".
// The scope is not part of it.
func (k Key) String() string {
	if len(k.Params) == 0 {
		return k.Resource
	}
	values := url.Values{}
	names := make([]string, 0, len(k.Params))
	for name := range k.Params {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		values.Set(name, k.Params[name])
	}
	return k.Resource + "?" + values.Encode()
}

func (k Key) flightKey() string {
	return k.Scope + "\x00" + k.String()
}

// FetchFunc loads the value for a key from the network.
type FetchFunc func(ctx context.Context) (any, error)

// Hooks receive cache events, typically for metrics.
type Hooks struct {
	OnHit  func(resource string)
	OnMiss func(resource string)
}

// Options configures a Cache.
type Options struct {
	// StaleAfter marks entries stale after this age. Zero keeps them until an
	// explicit Refetch or purge.
	StaleAfter time.Duration
	Logger     *zap.Logger
	Hooks      Hooks
}

type entry struct {
	resource   string
	value      any
	fetchedAt  time.Time
	lastAccess time.Time
}

type scopeState struct {
	entries map[string]*entry
	// generations advance on every Refetch; results of older calls are not stored.
	generations map[string]uint64
	// epochs advance on Invalidate and cover every key of a resource.
	epochs  map[string]uint64
	loading map[string]int
}

func newScopeState() *scopeState {
	return &scopeState{
		entries:     make(map[string]*entry),
		generations: make(map[string]uint64),
		epochs:      make(map[string]uint64),
		loading:     make(map[string]int),
	}
}

// Cache is safe for concurrent use.
type Cache struct {
	mu     sync.Mutex
	scopes map[string]*scopeState
	group  singleflight.Group

	staleAfter time.Duration
	hooks      Hooks
	logger     *zap.Logger
	now        func() time.Time
}

// New creates an empty cache.
func New(opts Options) *Cache {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		scopes:     make(map[string]*scopeState),
		staleAfter: opts.StaleAfter,
		hooks:      opts.Hooks,
		logger:     logger,
		now:        time.Now,
	}
}

// Fetch returns the cached value for key, or calls fn once for all concurrent
// callers and caches its result on success. Errors are never cached.
func (c *Cache) Fetch(ctx context.Context, key Key, fn FetchFunc) (any, error) {
	if value, ok := c.lookup(key); ok {
		c.hit(key.Resource)
		return value, nil
	}
	c.miss(key.Resource)
	return c.load(ctx, key, fn, false)
}

// Refetch forces a network call for key and replaces the cached value on
// success. On failure the previous value stays cached.
func (c *Cache) Refetch(ctx context.Context, key Key, fn FetchFunc) (any, error) {
	return c.load(ctx, key, fn, true)
}

// Peek returns the cached value without fetching, stale or not.
func (c *Cache) Peek(key Key) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.scopes[key.Scope]
	if !ok {
		return nil, false
	}
	e, ok := st.entries[key.String()]
	if !ok {
		return nil, false
	}
	return e.value, true
}

// Loading reports whether a network call for key is in flight.
func (c *Cache) Loading(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.scopes[key.Scope]
	if !ok {
		return false
	}
	return st.loading[key.String()] > 0
}

// DropScope forgets every entry of a scope. Calls already in flight for the
// scope complete for their callers but are not stored.
func (c *Cache) DropScope(scope string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.scopes[scope]; ok {
		delete(c.scopes, scope)
		c.logger.Debug("cache scope dropped", zap.String("scope", scope))
	}
}

// Invalidate drops every entry of resource in scope, whatever its params,
// and returns how many were dropped. In-flight calls for the resource are not
// stored.
func (c *Cache) Invalidate(scope, resource string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.scopes[scope]
	if !ok {
		return 0
	}
	st.epochs[resource]++
	removed := 0
	for k, e := range st.entries {
		if e.resource == resource {
			delete(st.entries, k)
			removed++
		}
	}
	return removed
}

// Purge removes entries not read for maxIdle and returns how many were removed.
func (c *Cache) Purge(maxIdle time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := c.now().Add(-maxIdle)
	removed := 0
	for scope, st := range c.scopes {
		for k, e := range st.entries {
			if e.lastAccess.Before(cutoff) {
				delete(st.entries, k)
				removed++
			}
		}
		if len(st.entries) == 0 && len(st.loading) == 0 {
			delete(c.scopes, scope)
		}
	}
	return removed
}

// Len returns the number of cached entries across all scopes.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, st := range c.scopes {
		n += len(st.entries)
	}
	return n
}

func (c *Cache) lookup(key Key) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.scopes[key.Scope]
	if !ok {
		return nil, false
	}
	e, ok := st.entries[key.String()]
	if !ok {
		return nil, false
	}
	now := c.now()
	if c.staleAfter > 0 && now.Sub(e.fetchedAt) > c.staleAfter {
		return nil, false
	}
	e.lastAccess = now
	return e.value, true
}

func (c *Cache) load(ctx context.Context, key Key, fn FetchFunc, force bool) (any, error) {
	flightKey := key.flightKey()
	if force {
		c.mu.Lock()
		st := c.scopeLocked(key.Scope)
		st.generations[key.String()]++
		c.mu.Unlock()
		c.group.Forget(flightKey)
	}

	// Shared calls must outlive the caller that happened to start them.
	callCtx := context.WithoutCancel(ctx)

	value, err, shared := c.group.Do(flightKey, func() (any, error) {
		c.mu.Lock()
		st := c.scopeLocked(key.Scope)
		k := key.String()
		gen := st.generations[k]
		epoch := st.epochs[key.Resource]
		st.loading[k]++
		c.mu.Unlock()

		value, err := fn(callCtx)

		c.mu.Lock()
		defer c.mu.Unlock()
		st.loading[k]--
		if st.loading[k] <= 0 {
			delete(st.loading, k)
		}
		if err != nil {
			return nil, err
		}
		if c.scopes[key.Scope] != st || st.generations[k] != gen || st.epochs[key.Resource] != epoch {
			c.logger.Debug("discarding superseded fetch", zap.String("key", k))
			return value, nil
		}
		now := c.now()
		st.entries[k] = &entry{resource: key.Resource, value: value, fetchedAt: now, lastAccess: now}
		return value, nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", key.String(), err)
	}
	if shared {
		c.logger.Debug("fetch coalesced", zap.String("key", key.String()))
	}
	return value, nil
}

func (c *Cache) scopeLocked(scope string) *scopeState {
	st, ok := c.scopes[scope]
	if !ok {
		st = newScopeState()
		c.scopes[scope] = st
	}
	return st
}

func (c *Cache) hit(resource string) {
	if c.hooks.OnHit != nil {
		c.hooks.OnHit(resource)
	}
}

func (c *Cache) miss(resource string) {
	if c.hooks.OnMiss != nil {
		c.hooks.OnMiss(resource)
	}
}

// Get is the typed form of Cache.Fetch.
func Get[T any](ctx context.Context, c *Cache, key Key, fn func(ctx context.Context) (T, error)) (T, error) {
	value, err := c.Fetch(ctx, key, func(ctx context.Context) (any, error) { return fn(ctx) })
	return typed[T](key, value, err)
}

// Reload is the typed form of Cache.Refetch.
func Reload[T any](ctx context.Context, c *Cache, key Key, fn func(ctx context.Context) (T, error)) (T, error) {
	value, err := c.Refetch(ctx, key, func(ctx context.Context) (any, error) { return fn(ctx) })
	return typed[T](key, value, err)
}

// Cached is the typed form of Cache.Peek.
func Cached[T any](c *Cache, key Key) (T, bool) {
	value, ok := c.Peek(key)
	if !ok {
		var zero T
		return zero, false
	}
	t, ok := value.(T)
	return t, ok
}

func typed[T any](key Key, value any, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	t, ok := value.(T)
	if !ok {
		return zero, fmt.Errorf("cache entry %s holds %T", key.String(), value)
	}
	return t, nil
}
