// Package cache provides a two-tier memoization cache: a process-local map
// and an optional shared Store. The shared tier is an accelerator only; its
// failures are logged and treated as misses.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Option configures a Cache.
type Option func(*options)

type options struct {
	store  Store
	codec  Codec
	logger *slog.Logger
}

// WithStore enables the shared tier. A nil store leaves it disabled.
func WithStore(s Store) Option {
	return func(o *options) { o.store = s }
}

// WithCodec replaces the default MessagePack codec of the shared tier.
func WithCodec(c Codec) Option {
	return func(o *options) { o.codec = c }
}

// WithLogger sets the logger used to report swallowed shared-tier errors.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Cache memoizes values of type V by identifier. None of its methods fail:
// an unreachable shared tier degrades to process-local behavior.
type Cache[V any] struct {
	mu     sync.RWMutex
	items  map[string]V
	store  Store
	codec  Codec
	logger *slog.Logger
}

// New creates a Cache. Without WithStore only the process-local tier is used.
func New[V any](opts ...Option) *Cache[V] {
	o := options{codec: MsgpackCodec{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	return &Cache[V]{
		items:  make(map[string]V),
		store:  o.store,
		codec:  o.codec,
		logger: o.logger.With("component", "cache"),
	}
}

// HasShared reports whether a shared tier is configured.
func (c *Cache[V]) HasShared() bool {
	return c.store != nil
}

// Write stores value under identifier in the local tier and, when present,
// in the shared tier. ttl applies to the shared tier only; zero means no
// expiry.
func (c *Cache[V]) Write(ctx context.Context, identifier string, value V, ttl time.Duration) {
	key := internalKey(identifier)

	c.mu.Lock()
	c.items[key] = value
	c.mu.Unlock()

	if c.store == nil {
		return
	}
	data, err := c.codec.Marshal(value)
	if err != nil {
		c.logger.Warn("encoding value for shared tier", "identifier", identifier, "error", err)
		return
	}
	if err := c.store.Store(ctx, key, data, ttl); err != nil {
		c.logger.Debug("shared tier write failed", "identifier", identifier, "error", err)
	}
}

// Has reports whether identifier is present in either tier.
func (c *Cache[V]) Has(ctx context.Context, identifier string) bool {
	key := internalKey(identifier)

	c.mu.RLock()
	_, ok := c.items[key]
	c.mu.RUnlock()
	if ok {
		return true
	}

	if c.store == nil {
		return false
	}
	exists, err := c.store.Exists(ctx, key)
	if err != nil {
		c.logger.Debug("shared tier exists failed", "identifier", identifier, "error", err)
		return false
	}
	return exists
}

// Read returns the value stored under identifier. The local tier is
// consulted first; a shared-tier hit is copied into the local tier.
func (c *Cache[V]) Read(ctx context.Context, identifier string) (V, bool) {
	key := internalKey(identifier)

	c.mu.RLock()
	value, ok := c.items[key]
	c.mu.RUnlock()
	if ok {
		return value, true
	}

	var zero V
	if c.store == nil {
		return zero, false
	}
	data, found, err := c.store.Fetch(ctx, key)
	if err != nil {
		c.logger.Debug("shared tier fetch failed", "identifier", identifier, "error", err)
		return zero, false
	}
	if !found {
		return zero, false
	}
	var decoded V
	if err := c.codec.Unmarshal(data, &decoded); err != nil {
		c.logger.Warn("decoding shared tier value", "identifier", identifier, "error", err)
		return zero, false
	}

	c.mu.Lock()
	c.items[key] = decoded
	c.mu.Unlock()

	return decoded, true
}

// Delete removes identifier from both tiers. Deleting a missing identifier
// is a no-op.
func (c *Cache[V]) Delete(ctx context.Context, identifier string) {
	key := internalKey(identifier)

	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()

	if c.store == nil {
		return
	}
	if err := c.store.Delete(ctx, key); err != nil {
		c.logger.Debug("shared tier delete failed", "identifier", identifier, "error", err)
	}
}

// Clear drops the whole local tier and flushes the whole shared tier,
// including entries written by other users of the same store.
func (c *Cache[V]) Clear(ctx context.Context) {
	c.mu.Lock()
	c.items = make(map[string]V)
	c.mu.Unlock()

	if c.store == nil {
		return
	}
	if err := c.store.Clear(ctx); err != nil {
		c.logger.Warn("shared tier clear failed", "error", err)
	}
}

// Len returns the number of entries in the local tier.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
