// Package cache keeps recent capture samples so late provider answers can
// still be paired with the text they answer.
package cache

import (
	"container/list"
	"sync"
)

const DefaultCapacity = 256

// Text is a fixed-capacity LRU from capture id to sample text.
// Safe for concurrent use.
type Text struct {
	mu    sync.Mutex
	cap   int
	ll    *list.List
	items map[string]*list.Element
}

type entry struct {
	key  string
	text string
}

// NewText returns a cache holding at most capacity entries
// (DefaultCapacity when capacity <= 0).
func NewText(capacity int) *Text {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Text{cap: capacity, ll: list.New(), items: make(map[string]*list.Element, capacity)}
}

// Put stores text under id and returns the id evicted to make room, if any.
func (c *Text) Put(id, text string) (evicted string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[id]; ok {
		el.Value.(*entry).text = text
		c.ll.MoveToFront(el)
		return ""
	}
	c.items[id] = c.ll.PushFront(&entry{key: id, text: text})
	if c.ll.Len() <= c.cap {
		return ""
	}
	oldest := c.ll.Back()
	c.ll.Remove(oldest)
	e := oldest.Value.(*entry)
	delete(c.items, e.key)
	return e.key
}

func (c *Text) Get(id string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[id]
	if !ok {
		return "", false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*entry).text, true
}

func (c *Text) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}
