package cache

import (
	"sync"
	"testing"
	"time"
)

func TestTTL_PutGet(t *testing.T) {
	c := NewTTL[string, int](time.Minute)
	c.Put("a", 1)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("expected hit with value 1, got ok=%v v=%v", ok, v)
	}
	if _, ok := c.Get("b"); ok {
		t.Fatalf("expected miss for unknown key")
	}
}

func TestTTL_Expiry(t *testing.T) {
	c := NewTTL[string, string](time.Second)
	base := time.Now()
	c.now = func() time.Time { return base }

	c.Put("k", "v")
	if _, ok := c.Get("k"); !ok {
		t.Fatalf("expected hit before expiry")
	}

	base = base.Add(2 * time.Second)
	if _, ok := c.Get("k"); ok {
		t.Fatalf("expected miss after expiry")
	}

	c.Put("j", "w")
	base = base.Add(2 * time.Second)
	if n := c.Sweep(); n != 0 {
		t.Fatalf("expected empty cache after sweep, got %d", n)
	}
}

func TestTTL_Forget(t *testing.T) {
	c := NewTTL[int, int](time.Minute)
	c.Put(1, 10)
	c.Put(2, 20)
	c.Forget(1)
	if _, ok := c.Get(1); ok {
		t.Fatalf("expected key 1 to be forgotten")
	}
	if n := c.Sweep(); n != 1 {
		t.Fatalf("expected 1 entry after Forget, got %d", n)
	}
}

func TestTTL_DisabledWhenZero(t *testing.T) {
	c := NewTTL[string, int](0)
	c.Put("a", 1)
	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected zero ttl to disable caching")
	}
}

func TestTTL_Concurrent(t *testing.T) {
	c := NewTTL[int, int](time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := 0; r < 100; r++ {
				c.Put(i, r)
				_, _ = c.Get(i)
			}
		}()
	}
	wg.Wait()
	for i := 0; i < 50; i++ {
		if _, ok := c.Get(i); !ok {
			t.Fatalf("expected key %d present", i)
		}
	}
}
