package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/awmpietro/golang-typestate-order-check/internal/typestate"
)

func protocol() *typestate.DFA {
	d := typestate.NewDFA("p")
	s, _ := d.AddState(true, false)
	a, _ := d.AddState(false, true)
	_ = d.AddEdge(s, a, "open()", "")
	return d
}

func TestInMemory_GetOrCompute_DeduplicatesConcurrentSameKey(t *testing.T) {
	c := NewInMemory(16)
	var calls atomic.Int32

	fn := func() (*typestate.DFA, error) {
		calls.Add(1)
		time.Sleep(30 * time.Millisecond)
		return protocol(), nil
	}

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.GetOrCompute("same-key", fn)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if got := calls.Load(); got != 1 {
		t.Fatalf("expected fn to run once, got %d", got)
	}
}

func TestInMemory_GetOrCompute_ReturnsCachedInstance(t *testing.T) {
	c := NewInMemory(16)
	first, err := c.GetOrCompute("k", func() (*typestate.DFA, error) { return protocol(), nil })
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.GetOrCompute("k", func() (*typestate.DFA, error) {
		t.Fatalf("fn must not run for a cached key")
		return nil, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Fatalf("expected the cached automaton to be returned")
	}
}

func TestInMemory_GetOrCompute_ErrorIsNotCached(t *testing.T) {
	c := NewInMemory(16)
	var calls atomic.Int32

	_, err := c.GetOrCompute("k", func() (*typestate.DFA, error) {
		calls.Add(1)
		return nil, errors.New("boom")
	})
	if err == nil {
		t.Fatalf("expected error")
	}

	_, err = c.GetOrCompute("k", func() (*typestate.DFA, error) {
		calls.Add(1)
		return protocol(), nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := calls.Load(); got != 2 {
		t.Fatalf("expected fn to run twice (error should not be cached), got %d", got)
	}
}

func TestInMemory_GetOrCompute_PanicDoesNotBlockWaiters(t *testing.T) {
	c := NewInMemory(16)
	var calls atomic.Int32

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.GetOrCompute("panic-key", func() (*typestate.DFA, error) {
				calls.Add(1)
				time.Sleep(10 * time.Millisecond)
				panic("boom")
			})
			errs <- err
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		if err == nil {
			t.Fatalf("expected panic converted into error")
		}
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected single in-flight execution, got %d", got)
	}
}

func TestInMemory_RespectsMaxItems(t *testing.T) {
	c := NewInMemory(1)
	for _, k := range []string{"a", "b", "c"} {
		if _, err := c.GetOrCompute(k, func() (*typestate.DFA, error) { return protocol(), nil }); err != nil {
			t.Fatal(err)
		}
	}
	if c.Len() != 1 {
		t.Fatalf("expected 1 cached item, got %d", c.Len())
	}
}
