package cache

import (
	"testing"
	"time"
)

func TestCacheGetSet(t *testing.T) {
	c := New[[]string](time.Minute)
	defer c.Stop()

	if _, ok := c.Get("q"); ok {
		t.Fatal("Get() on empty cache returned ok")
	}

	c.Set("q", []string{"a", "b"})
	got, ok := c.Get("q")
	if !ok {
		t.Fatal("Get() after Set() returned !ok")
	}
	if len(got) != 2 {
		t.Errorf("len(Get()) = %d, want 2", len(got))
	}
}

func TestCacheExpiry(t *testing.T) {
	c := New[int](time.Minute)
	defer c.Stop()

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("k", 1)
	now = now.Add(2 * time.Minute)

	if _, ok := c.Get("k"); ok {
		t.Error("Get() returned expired entry")
	}

	c.removeExpired()
	if c.Len() != 0 {
		t.Errorf("Len() after sweep = %d, want 0", c.Len())
	}
}

func TestCacheDeleteAndClear(t *testing.T) {
	c := New[string](time.Minute)
	defer c.Stop()

	c.Set("a", "1")
	c.Set("b", "2")
	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Error("Get(a) after Delete returned ok")
	}

	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", c.Len())
	}

	c.Stop()
	c.Stop()
}
