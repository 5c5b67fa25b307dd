package google

import (
	"context"
	"testing"
	"time"
)

func TestRowCacheExpiration(t *testing.T) {
	c := &Client{
		cacheValidDuration: 100 * time.Millisecond, // Short TTL for testing
	}

	// Initial state: cache should be expired
	c.mu.Lock()
	isValid := time.Now().Before(c.cacheExpiresAt)
	c.mu.Unlock()
	if isValid {
		t.Error("cache should start expired")
	}

	// Prime the cache
	c.mu.Lock()
	c.cachedRowCount = 10
	c.cacheExpiresAt = time.Now().Add(c.cacheValidDuration)
	c.mu.Unlock()

	c.mu.Lock()
	isValid = time.Now().Before(c.cacheExpiresAt)
	rowCount := c.cachedRowCount
	c.mu.Unlock()
	if !isValid {
		t.Error("cache should be valid immediately after update")
	}
	if rowCount != 10 {
		t.Errorf("cached row count should be 10, got %d", rowCount)
	}

	// Wait for cache to expire
	time.Sleep(150 * time.Millisecond)

	c.mu.Lock()
	isValid = time.Now().Before(c.cacheExpiresAt)
	c.mu.Unlock()
	if isValid {
		t.Error("cache should be expired after TTL")
	}
}

func TestReserveRowFromCache(t *testing.T) {
	c := &Client{
		cacheValidDuration: 2 * time.Minute,
	}

	// Prime the cache so reserveRow never probes the sheet (svc is nil).
	c.mu.Lock()
	c.cachedRowCount = 10
	c.cacheExpiresAt = time.Now().Add(c.cacheValidDuration)
	c.mu.Unlock()

	for want := 11; want <= 13; want++ {
		got, err := c.reserveRow(context.Background())
		if err != nil {
			t.Fatalf("reserveRow: %v", err)
		}
		if got != want {
			t.Errorf("reserveRow = %d, want %d", got, want)
		}
	}

	c.mu.Lock()
	count := c.cachedRowCount
	c.mu.Unlock()
	if count != 13 {
		t.Errorf("cached row count should advance to 13, got %d", count)
	}
}

func TestInvalidateRowCache(t *testing.T) {
	c := &Client{
		cacheValidDuration: 10 * time.Minute,
	}

	c.mu.Lock()
	c.cachedRowCount = 42
	c.cacheExpiresAt = time.Now().Add(c.cacheValidDuration)
	c.mu.Unlock()

	c.mu.Lock()
	isValid := time.Now().Before(c.cacheExpiresAt)
	c.mu.Unlock()
	if !isValid {
		t.Error("cache should be valid before invalidation")
	}

	c.InvalidateRowCache()

	c.mu.Lock()
	isValid = time.Now().Before(c.cacheExpiresAt)
	c.mu.Unlock()
	if isValid {
		t.Error("cache should be expired after invalidation")
	}
}

func TestCacheInitialState(t *testing.T) {
	c := &Client{
		cacheValidDuration: 2 * time.Minute,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cachedRowCount != 0 {
		t.Errorf("initial cachedRowCount should be 0, got %d", c.cachedRowCount)
	}

	if time.Now().Before(c.cacheExpiresAt) {
		t.Error("initial cacheExpiresAt should be in the past (expired)")
	}
}

func TestCacheMutexProtection(t *testing.T) {
	c := &Client{
		cacheValidDuration: 2 * time.Minute,
	}

	done := make(chan struct{})

	// Writer goroutine
	go func() {
		for i := 0; i < 100; i++ {
			c.mu.Lock()
			c.cachedRowCount = i
			c.cacheExpiresAt = time.Now().Add(c.cacheValidDuration)
			c.mu.Unlock()
		}
		done <- struct{}{}
	}()

	// Reader goroutine
	go func() {
		for i := 0; i < 100; i++ {
			c.mu.Lock()
			_ = c.cachedRowCount
			_ = c.cacheExpiresAt
			c.mu.Unlock()
		}
		done <- struct{}{}
	}()

	// Invalidator goroutine
	go func() {
		for i := 0; i < 50; i++ {
			c.InvalidateRowCache()
		}
		done <- struct{}{}
	}()

	<-done
	<-done
	<-done
}
