package middleware

import (
	"container/list"
	"sync"
	"time"

	"github.com/rudironsoni/Synaxis-sub005/models"
)

// cacheEntry represents a single cache entry with TTL
type cacheEntry struct {
	key        string
	tenant     *models.Tenant
	insertedAt time.Time
	element    *list.Element // For LRU tracking
}

// isExpired checks if the cache entry has expired
func (e *cacheEntry) isExpired(ttl time.Duration) bool {
	return time.Since(e.insertedAt) > ttl
}

// TenantCache is an in-memory LRU cache with TTL for credential lookups,
// keyed by the hashed credential. It keeps the tenant table off the hot
// path; a stale entry can outlive a tenant update by at most the TTL.
// Thread-safe implementation using sync.Mutex.
type TenantCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	lruList *list.List // Doubly linked list for LRU tracking
	maxSize int        // Maximum number of entries
	ttl     time.Duration
	hits    uint64
	misses  uint64
}

// NewTenantCache creates a new TenantCache with specified max size and TTL
func NewTenantCache(maxSize int, ttl time.Duration) *TenantCache {
	return &TenantCache{
		entries: make(map[string]*cacheEntry),
		lruList: list.New(),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

// Get retrieves a tenant from cache.
// Returns nil if not found or expired.
func (c *TenantCache) Get(key string) *models.Tenant {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[key]

	// Check if entry exists and is not expired
	if !exists || entry.isExpired(c.ttl) {
		c.misses++
		if exists {
			// Remove expired entry
			c.removeEntry(key)
		}
		return nil
	}

	// Move to front (most recently used)
	c.lruList.MoveToFront(entry.element)
	c.hits++

	return entry.tenant
}

// Set stores a tenant in cache
func (c *TenantCache) Set(key string, tenant *models.Tenant) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Check if entry already exists
	if entry, exists := c.entries[key]; exists {
		// Update existing entry
		entry.tenant = tenant
		entry.insertedAt = time.Now()
		c.lruList.MoveToFront(entry.element)
		return
	}

	// Evict least recently used entry if cache is full
	if c.lruList.Len() >= c.maxSize {
		c.evictLRU()
	}

	// Create new entry
	entry := &cacheEntry{
		key:        key,
		tenant:     tenant,
		insertedAt: time.Now(),
	}

	// Add to front of LRU list
	entry.element = c.lruList.PushFront(key)
	c.entries[key] = entry
}

// Invalidate removes a specific cache entry
func (c *TenantCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.removeEntry(key)
}

// InvalidateTenant removes all cache entries resolving to the tenant key,
// whichever credential they were looked up by.
func (c *TenantCache) InvalidateTenant(tenantKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, entry := range c.entries {
		if entry.tenant != nil && entry.tenant.Key == tenantKey {
			c.removeEntry(key)
		}
	}
}

// Clear removes all entries from the cache
func (c *TenantCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*cacheEntry)
	c.lruList.Init()
}

// CacheStats represents cache statistics
type CacheStats struct {
	Size    int
	MaxSize int
	Hits    uint64
	Misses  uint64
	HitRate float64
}

// Stats returns cache statistics
func (c *TenantCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return CacheStats{
		Size:    c.lruList.Len(),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
		HitRate: c.calculateHitRate(),
	}
}

// calculateHitRate calculates the cache hit rate (must be called with lock held)
func (c *TenantCache) calculateHitRate() float64 {
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total)
}

// removeEntry removes an entry from the cache (must be called with lock held)
func (c *TenantCache) removeEntry(key string) {
	if entry, exists := c.entries[key]; exists {
		c.lruList.Remove(entry.element)
		delete(c.entries, key)
	}
}

// evictLRU evicts the least recently used entry (must be called with lock held)
func (c *TenantCache) evictLRU() {
	if c.lruList.Len() == 0 {
		return
	}

	// Remove from back (least recently used)
	backElement := c.lruList.Back()
	if backElement != nil {
		key := backElement.Value.(string)
		c.lruList.Remove(backElement)
		delete(c.entries, key)
	}
}

// CleanupExpired removes all expired entries
// Should be called periodically in a background goroutine
func (c *TenantCache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiredKeys := make([]string, 0)

	// Find all expired entries
	for key, entry := range c.entries {
		if entry.isExpired(c.ttl) {
			expiredKeys = append(expiredKeys, key)
		}
	}

	// Remove expired entries
	for _, key := range expiredKeys {
		c.removeEntry(key)
	}

	return len(expiredKeys)
}

// StartCleanupWorker starts a background worker to periodically clean up expired entries
func (c *TenantCache) StartCleanupWorker(interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.CleanupExpired()
		case <-stopCh:
			return
		}
	}
}
