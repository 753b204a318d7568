package embedder

import (
	"testing"
	"time"
)

func TestCacheGetPut(t *testing.T) {
	c := NewCache(10)

	if _, ok := c.Get("k1", 0); ok {
		t.Error("Get() hit on empty cache")
	}

	c.Put("k1", []float32{1, 2, 3}, time.Minute)
	vector, ok := c.Get("k1", 0)
	if !ok {
		t.Fatal("Get() missed after Put()")
	}
	if len(vector) != 3 || vector[0] != 1 {
		t.Errorf("Get() = %v", vector)
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("Stats() = %+v, want 1 hit 1 miss", stats)
	}
}

func TestCacheReturnsCopy(t *testing.T) {
	c := NewCache(10)
	c.Put("k1", []float32{1, 2, 3}, time.Minute)

	vector, _ := c.Get("k1", 0)
	vector[0] = 99

	again, _ := c.Get("k1", 0)
	if again[0] != 1 {
		t.Error("caller mutation polluted the cache")
	}
}

func TestCacheLRUEviction(t *testing.T) {
	c := NewCache(2)

	c.Put("k1", []float32{1}, time.Minute)
	c.Put("k2", []float32{2}, time.Minute)
	c.Put("k3", []float32{3}, time.Minute)

	// k1 was least recently used and must be gone.
	if _, ok := c.Get("k1", 0); ok {
		t.Error("k1 survived eviction")
	}
	if _, ok := c.Get("k2", 0); !ok {
		t.Error("k2 evicted unexpectedly")
	}
	if _, ok := c.Get("k3", 0); !ok {
		t.Error("k3 evicted unexpectedly")
	}

	if got := c.Stats().Evictions; got != 1 {
		t.Errorf("Evictions = %d, want 1", got)
	}
}

func TestCacheRecencyOrdering(t *testing.T) {
	c := NewCache(2)

	c.Put("k1", []float32{1}, time.Minute)
	c.Put("k2", []float32{2}, time.Minute)

	// Touch k1 so k2 becomes the eviction candidate.
	if _, ok := c.Get("k1", 0); !ok {
		t.Fatal("k1 missing")
	}
	c.Put("k3", []float32{3}, time.Minute)

	if _, ok := c.Get("k2", 0); ok {
		t.Error("k2 survived eviction despite being least recently used")
	}
	if _, ok := c.Get("k1", 0); !ok {
		t.Error("recently used k1 was evicted")
	}
}

func TestCacheTTLExpiry(t *testing.T) {
	c := NewCache(10)

	c.Put("k1", []float32{1}, 10*time.Millisecond)
	if _, ok := c.Get("k1", 0); !ok {
		t.Fatal("fresh entry missed")
	}

	time.Sleep(20 * time.Millisecond)
	if _, ok := c.Get("k1", 0); ok {
		t.Error("expired entry served")
	}

	// Lazy purge removed the entry entirely.
	if c.Len() != 0 {
		t.Errorf("Len() = %d after expiry purge, want 0", c.Len())
	}
}

func TestCacheCorruptionDropped(t *testing.T) {
	c := NewCache(10)

	c.Put("k1", []float32{1, 2, 3}, time.Minute)

	// Dimension mismatch is treated as a miss, never an error.
	if _, ok := c.Get("k1", 5); ok {
		t.Error("corrupted entry served")
	}
	if _, ok := c.Get("k1", 3); ok {
		t.Error("corrupted entry not dropped")
	}
}

func TestCacheClear(t *testing.T) {
	c := NewCache(10)
	c.Put("k1", []float32{1}, time.Minute)
	c.Put("k2", []float32{2}, time.Minute)

	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len() = %d after Clear()", c.Len())
	}
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := NewCache(100)
	done := make(chan struct{})

	for w := 0; w < 8; w++ {
		go func(seed int) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 200; i++ {
				key := cacheKey("text", string(rune('a'+(seed+i)%26)))
				c.Put(key, []float32{float32(i)}, time.Minute)
				c.Get(key, 0)
			}
		}(w)
	}
	for w := 0; w < 8; w++ {
		<-done
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"hello world", "hello world"},
		{"  hello   world  ", "hello world"},
		{"hello\n\tworld", "hello world"},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		if got := normalize(tt.in); got != tt.want {
			t.Errorf("normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCacheKey(t *testing.T) {
	k1 := cacheKey("hello", "model-a")
	k2 := cacheKey("hello", "model-a")
	if k1 != k2 {
		t.Error("identical inputs produced different keys")
	}
	if cacheKey("hello", "model-b") == k1 {
		t.Error("different models produced the same key")
	}
	if cacheKey("hellx", "model-a") == k1 {
		t.Error("different texts produced the same key")
	}
}
