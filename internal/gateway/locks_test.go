package gateway

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyedLocks_SerializesSameKey(t *testing.T) {
	locks := newKeyedLocks()

	var inside atomic.Int32
	var maxInside atomic.Int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("order-1")
			defer unlock()
			n := inside.Add(1)
			if n > maxInside.Load() {
				maxInside.Store(n)
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside.Load())
	assert.Equal(t, 0, locks.size(), "entries are released when unused")
}

func TestKeyedLocks_DistinctKeysDoNotBlock(t *testing.T) {
	locks := newKeyedLocks()
	unlockA := locks.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := locks.Lock("b")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind a")
	}
}

func TestKeyedLocks_OppositeOrderNoDeadlock(t *testing.T) {
	locks := newKeyedLocks()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var unlock func()
			if i%2 == 0 {
				unlock = locks.Lock("x", "y")
			} else {
				unlock = locks.Lock("y", "x")
			}
			unlock()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("deadlock acquiring keys in opposite order")
	}
	assert.Equal(t, 0, locks.size())
}

func TestKeyedLocks_DuplicateKeys(t *testing.T) {
	locks := newKeyedLocks()
	unlock := locks.Lock("a", "a", "")
	unlock()
	assert.Equal(t, 0, locks.size())
}
