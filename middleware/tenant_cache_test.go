package middleware

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rudironsoni/Synaxis-sub005/models"
)

func TestTenantCache_GetSet(t *testing.T) {
	cache := NewTenantCache(10, 5*time.Minute)

	// Test cache miss
	assert.Nil(t, cache.Get("hash:abc"))

	// Test cache set and hit
	tenant := models.NewTenant("acme", "Acme Corp", "abc")
	cache.Set("hash:abc", tenant)

	cached := cache.Get("hash:abc")
	assert.NotNil(t, cached)
	assert.Equal(t, tenant.ID, cached.ID)
	assert.Equal(t, "acme", cached.Key)

	// Check stats
	stats := cache.Stats()
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, 0.5, stats.HitRate)
}

func TestTenantCache_TTLExpiration(t *testing.T) {
	cache := NewTenantCache(10, 100*time.Millisecond)

	cache.Set("hash:abc", models.NewTenant("acme", "Acme Corp", "abc"))

	// Should be available immediately
	assert.NotNil(t, cache.Get("hash:abc"))

	// Wait for TTL to expire
	time.Sleep(150 * time.Millisecond)

	// Should be expired now
	assert.Nil(t, cache.Get("hash:abc"))

	// Check that expired entry was removed
	stats := cache.Stats()
	assert.Equal(t, 0, stats.Size)
}

func TestTenantCache_LRUEviction(t *testing.T) {
	cache := NewTenantCache(3, 5*time.Minute)

	// Add 4 entries (should evict the first one)
	for i := 0; i < 4; i++ {
		key := fmt.Sprintf("tenant-%d", i)
		cache.Set("key:"+key, models.NewTenant(key, key, key))
	}

	assert.Nil(t, cache.Get("key:tenant-0"))
	assert.NotNil(t, cache.Get("key:tenant-1"))
	assert.NotNil(t, cache.Get("key:tenant-2"))
	assert.NotNil(t, cache.Get("key:tenant-3"))

	stats := cache.Stats()
	assert.Equal(t, 3, stats.Size)
}

func TestTenantCache_LRUOrderOnAccess(t *testing.T) {
	cache := NewTenantCache(2, 5*time.Minute)

	cache.Set("key:a", models.NewTenant("a", "A", "a"))
	cache.Set("key:b", models.NewTenant("b", "B", "b"))

	// Touch "a" so "b" becomes the eviction candidate.
	assert.NotNil(t, cache.Get("key:a"))

	cache.Set("key:c", models.NewTenant("c", "C", "c"))

	assert.NotNil(t, cache.Get("key:a"))
	assert.Nil(t, cache.Get("key:b"))
	assert.NotNil(t, cache.Get("key:c"))
}

func TestTenantCache_Invalidate(t *testing.T) {
	cache := NewTenantCache(10, 5*time.Minute)

	cache.Set("hash:abc", models.NewTenant("acme", "Acme Corp", "abc"))
	cache.Invalidate("hash:abc")

	assert.Nil(t, cache.Get("hash:abc"))
}

func TestTenantCache_InvalidateTenant(t *testing.T) {
	cache := NewTenantCache(10, 5*time.Minute)

	acme := models.NewTenant("acme", "Acme Corp", "abc")
	other := models.NewTenant("globex", "Globex", "def")

	// The same tenant can be cached under both credential types.
	cache.Set("hash:abc", acme)
	cache.Set("key:acme", acme)
	cache.Set("key:globex", other)

	cache.InvalidateTenant("acme")

	assert.Nil(t, cache.Get("hash:abc"))
	assert.Nil(t, cache.Get("key:acme"))
	assert.NotNil(t, cache.Get("key:globex"))
}

func TestTenantCache_Clear(t *testing.T) {
	cache := NewTenantCache(10, 5*time.Minute)

	cache.Set("key:a", models.NewTenant("a", "A", "a"))
	cache.Set("key:b", models.NewTenant("b", "B", "b"))
	cache.Clear()

	stats := cache.Stats()
	assert.Equal(t, 0, stats.Size)
	assert.Nil(t, cache.Get("key:a"))
}

func TestTenantCache_UpdateExisting(t *testing.T) {
	cache := NewTenantCache(10, 5*time.Minute)

	first := models.NewTenant("acme", "Acme Corp", "abc")
	cache.Set("key:acme", first)

	updated := models.NewTenant("acme", "Acme Corporation", "abc")
	cache.Set("key:acme", updated)

	cached := cache.Get("key:acme")
	assert.NotNil(t, cached)
	assert.Equal(t, "Acme Corporation", cached.Name)

	stats := cache.Stats()
	assert.Equal(t, 1, stats.Size)
}

func TestTenantCache_CleanupExpired(t *testing.T) {
	cache := NewTenantCache(10, 50*time.Millisecond)

	cache.Set("key:a", models.NewTenant("a", "A", "a"))
	cache.Set("key:b", models.NewTenant("b", "B", "b"))

	time.Sleep(80 * time.Millisecond)

	removed := cache.CleanupExpired()
	assert.Equal(t, 2, removed)

	stats := cache.Stats()
	assert.Equal(t, 0, stats.Size)
}

func TestTenantCache_CleanupWorker(t *testing.T) {
	cache := NewTenantCache(10, 50*time.Millisecond)
	cache.Set("key:a", models.NewTenant("a", "A", "a"))

	stopCh := make(chan struct{})
	done := make(chan struct{})
	go func() {
		cache.StartCleanupWorker(20*time.Millisecond, stopCh)
		close(done)
	}()

	time.Sleep(120 * time.Millisecond)
	close(stopCh)
	<-done

	stats := cache.Stats()
	assert.Equal(t, 0, stats.Size)
}
