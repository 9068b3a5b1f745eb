/*
 * Copyright (c) 2025, WSO2 LLC. (http://www.wso2.com).
 *
 * WSO2 LLC. licenses this file to you under the Apache License,
 * Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

// Package cache provides a generic in-memory cache with TTL expiry and LRU eviction.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/abdm-phr/phr/internal/system/log"
)

const (
	loggerComponentName = "InMemoryCache"

	// DefaultCacheSize is the default maximum number of entries.
	DefaultCacheSize = 1000
	// DefaultCacheTTL is the default entry lifetime.
	DefaultCacheTTL = time.Hour
)

// EvictionReason describes why an entry left the cache.
type EvictionReason string

const (
	// EvictionReasonExpired indicates the entry outlived its TTL.
	EvictionReasonExpired EvictionReason = "EXPIRED"
	// EvictionReasonCapacity indicates the entry was the least recently used when the cache was full.
	EvictionReasonCapacity EvictionReason = "CAPACITY"
	// EvictionReasonDeleted indicates the entry was removed explicitly.
	EvictionReasonDeleted EvictionReason = "DELETED"
)

// EvictionHook is invoked, outside the cache lock, for every entry leaving the cache.
type EvictionHook[T any] func(key string, value T, reason EvictionReason)

// CacheInterface defines the common interface for cache implementations.
type CacheInterface[T any] interface {
	Set(key string, value T)
	Get(key string) (T, bool)
	Delete(key string)
	Clear()
	Len() int
	CleanupExpired()
	GetStats() CacheStat
}

// CacheStat holds cache statistics.
type CacheStat struct {
	Size       int   `json:"size"`
	MaxSize    int   `json:"maxSize"`
	HitCount   int64 `json:"hitCount"`
	MissCount  int64 `json:"missCount"`
	EvictCount int64 `json:"evictCount"`
}

type entry[T any] struct {
	key        string
	value      T
	expiryTime time.Time
	element    *list.Element
}

// InMemoryCache implements CacheInterface with sliding TTL and LRU eviction.
type InMemoryCache[T any] struct {
	mu          sync.Mutex
	entries     map[string]*entry[T]
	accessOrder *list.List
	size        int
	ttl         time.Duration
	onEvict     EvictionHook[T]
	hitCount    int64
	missCount   int64
	evictCount  int64
}

type evicted[T any] struct {
	key    string
	value  T
	reason EvictionReason
}

// NewInMemoryCache creates a new instance of InMemoryCache.
func NewInMemoryCache[T any](size int, ttl time.Duration, onEvict EvictionHook[T]) *InMemoryCache[T] {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &InMemoryCache[T]{
		entries:     make(map[string]*entry[T]),
		accessOrder: list.New(),
		size:        size,
		ttl:         ttl,
		onEvict:     onEvict,
	}
}

// Set adds or updates an entry and refreshes its expiry time.
func (c *InMemoryCache[T]) Set(key string, value T) {
	var out []evicted[T]

	c.mu.Lock()
	expiry := time.Now().Add(c.ttl)
	if existing, ok := c.entries[key]; ok {
		existing.value = value
		existing.expiryTime = expiry
		c.accessOrder.MoveToFront(existing.element)
		c.mu.Unlock()
		return
	}

	e := &entry[T]{key: key, value: value, expiryTime: expiry}
	e.element = c.accessOrder.PushFront(e)
	c.entries[key] = e

	for len(c.entries) > c.size {
		oldest := c.accessOrder.Back().Value.(*entry[T])
		c.remove(oldest)
		c.evictCount++
		out = append(out, evicted[T]{key: oldest.key, value: oldest.value, reason: EvictionReasonCapacity})
	}
	c.mu.Unlock()

	c.notify(out)
}

// Get retrieves a value and refreshes its position and expiry time.
func (c *InMemoryCache[T]) Get(key string) (T, bool) {
	var zero T

	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		c.missCount++
		c.mu.Unlock()
		return zero, false
	}
	now := time.Now()
	if !now.Before(e.expiryTime) {
		c.remove(e)
		c.missCount++
		c.mu.Unlock()
		c.notify([]evicted[T]{{key: e.key, value: e.value, reason: EvictionReasonExpired}})
		return zero, false
	}
	e.expiryTime = now.Add(c.ttl)
	c.accessOrder.MoveToFront(e.element)
	c.hitCount++
	value := e.value
	c.mu.Unlock()

	return value, true
}

// Delete removes an entry from the cache.
func (c *InMemoryCache[T]) Delete(key string) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok {
		c.remove(e)
	}
	c.mu.Unlock()

	if ok {
		c.notify([]evicted[T]{{key: e.key, value: e.value, reason: EvictionReasonDeleted}})
	}
}

// Clear removes every entry from the cache.
func (c *InMemoryCache[T]) Clear() {
	c.mu.Lock()
	out := make([]evicted[T], 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, evicted[T]{key: e.key, value: e.value, reason: EvictionReasonDeleted})
	}
	c.entries = make(map[string]*entry[T])
	c.accessOrder.Init()
	c.mu.Unlock()

	c.notify(out)
}

// Len returns the number of entries currently held.
func (c *InMemoryCache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// CleanupExpired removes all expired entries from the cache.
func (c *InMemoryCache[T]) CleanupExpired() {
	var out []evicted[T]

	c.mu.Lock()
	now := time.Now()
	for _, e := range c.entries {
		if !now.Before(e.expiryTime) {
			c.remove(e)
			out = append(out, evicted[T]{key: e.key, value: e.value, reason: EvictionReasonExpired})
		}
	}
	c.mu.Unlock()

	if len(out) > 0 {
		logger := log.GetLogger().With(log.String(log.LoggerKeyComponentName, loggerComponentName))
		logger.Debug("Expired cache entries cleaned", log.Int("count", len(out)))
	}
	c.notify(out)
}

// RunCleanup periodically removes expired entries until the context is cancelled.
func (c *InMemoryCache[T]) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.CleanupExpired()
		}
	}
}

// GetStats returns cache statistics.
func (c *InMemoryCache[T]) GetStats() CacheStat {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStat{
		Size:       len(c.entries),
		MaxSize:    c.size,
		HitCount:   c.hitCount,
		MissCount:  c.missCount,
		EvictCount: c.evictCount,
	}
}

// remove drops the entry from the map and the access order list. Caller holds the lock.
func (c *InMemoryCache[T]) remove(e *entry[T]) {
	delete(c.entries, e.key)
	c.accessOrder.Remove(e.element)
}

func (c *InMemoryCache[T]) notify(out []evicted[T]) {
	if c.onEvict == nil {
		return
	}
	for _, ev := range out {
		c.onEvict(ev.key, ev.value, ev.reason)
	}
}
