package cache

import (
	"fmt"
	"sync"
	"testing"
)

func TestTextEvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()
	c := NewText(2)
	c.Put("a", "alpha")
	c.Put("b", "beta")
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a missing")
	}
	if ev := c.Put("c", "gamma"); ev != "b" {
		t.Fatalf("evicted %q, want b", ev)
	}
	if _, ok := c.Get("b"); ok {
		t.Fatal("b should be evicted")
	}
	if v, ok := c.Get("a"); !ok || v != "alpha" {
		t.Fatalf("a = %q, %v", v, ok)
	}
	if c.Len() != 2 {
		t.Fatalf("Len = %d", c.Len())
	}
}

func TestTextOverwrite(t *testing.T) {
	t.Parallel()
	c := NewText(0)
	c.Put("a", "one")
	if ev := c.Put("a", "two"); ev != "" {
		t.Fatalf("overwrite evicted %q", ev)
	}
	if v, _ := c.Get("a"); v != "two" {
		t.Fatalf("Get = %q", v)
	}
	if c.Len() != 1 {
		t.Fatalf("Len = %d", c.Len())
	}
}

func TestTextConcurrent(t *testing.T) {
	t.Parallel()
	c := NewText(16)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				id := fmt.Sprintf("%d-%d", w, i)
				c.Put(id, id)
				c.Get(id)
			}
		}(w)
	}
	wg.Wait()
	if c.Len() != 16 {
		t.Fatalf("Len = %d, want 16", c.Len())
	}
}
