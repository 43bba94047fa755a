package cache

import (
	"testing"
	"time"
)

func TestTTLCache_HitWithinTTL(t *testing.T) {
	c := New[[]string](10 * time.Second)
	fake := time.Now()
	c.now = func() time.Time { return fake }

	c.Set([]string{"10.0.0.1"})
	fake = fake.Add(5 * time.Second)
	got, ok := c.Get()
	if !ok {
		t.Fatal("expected cache hit within TTL")
	}
	if len(got) != 1 || got[0] != "10.0.0.1" {
		t.Errorf("unexpected cached value: %v", got)
	}
}

func TestTTLCache_MissAfterTTL(t *testing.T) {
	c := New[[]string](10 * time.Second)
	fake := time.Now()
	c.now = func() time.Time { return fake }

	c.Set([]string{"10.0.0.1"})
	fake = fake.Add(11 * time.Second)
	if _, ok := c.Get(); ok {
		t.Fatal("expected cache miss after TTL elapsed")
	}
}

func TestTTLCache_ZeroTTLAlwaysMisses(t *testing.T) {
	c := New[[]string](0)
	c.Set([]string{"10.0.0.1"})
	if _, ok := c.Get(); ok {
		t.Fatal("expected zero-TTL cache to always miss")
	}
}

func TestTTLCache_SetResetsTimestamp(t *testing.T) {
	c := New[int](5 * time.Second)
	fake := time.Now()
	c.now = func() time.Time { return fake }

	c.Set(1)
	fake = fake.Add(4 * time.Second)
	c.Set(2)
	fake = fake.Add(4 * time.Second)
	got, ok := c.Get()
	if !ok || got != 2 {
		t.Fatalf("expected hit with refreshed value 2, got %v ok=%v", got, ok)
	}
}
