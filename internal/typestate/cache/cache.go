// Package cache keeps compiled protocols in memory, keyed by the hash of
// their source text.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/awmpietro/golang-typestate-order-check/internal/typestate"
)

type InMemory struct {
	mu    sync.RWMutex
	max   int
	items map[string]*typestate.DFA
	group singleflight.Group
}

func NewInMemory(max int) *InMemory {
	return &InMemory{
		max:   max,
		items: make(map[string]*typestate.DFA, max),
	}
}

// GetOrCompute returns the automaton cached for source, or runs fn once
// for all concurrent callers asking for the same source. Errors and
// panics of fn are returned to every waiter and not cached.
func (c *InMemory) GetOrCompute(source string, fn func() (*typestate.DFA, error)) (*typestate.DFA, error) {
	key := Key(source)

	c.mu.RLock()
	if v, ok := c.items[key]; ok {
		c.mu.RUnlock()
		return v, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.group.Do(key, func() (out any, err error) {
		defer func() {
			if r := recover(); r != nil {
				out, err = nil, fmt.Errorf("protocol compilation panicked: %v", r)
			}
		}()

		c.mu.RLock()
		cached, ok := c.items[key]
		c.mu.RUnlock()
		if ok {
			return cached, nil
		}

		d, err := fn()
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		if len(c.items) < c.max {
			c.items[key] = d
		}
		c.mu.Unlock()
		return d, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*typestate.DFA), nil
}

func (c *InMemory) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Key is the cache key of a protocol source.
func Key(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}
