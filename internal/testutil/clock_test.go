package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStepClock_Defaults(t *testing.T) {
	clock := NewStepClock(0, 0)
	assert.Equal(t, DefaultStart, clock.Current())
	assert.Equal(t, DefaultStart+1000, clock.Now())
	assert.Equal(t, DefaultStart+2000, clock.Now())
}

func TestStepClock_Reset(t *testing.T) {
	clock := NewStepClock(100, 10)
	clock.Now()
	clock.Now()
	assert.Equal(t, int64(120), clock.Current())

	clock.Reset()
	assert.Equal(t, int64(100), clock.Current())
	assert.Equal(t, int64(110), clock.Now())
}

func TestStepClock_ConcurrentAccess(t *testing.T) {
	clock := NewStepClock(0, 1)

	const goroutines = 50
	const perGoroutine = 100

	var wg sync.WaitGroup
	seen := make(chan int64, goroutines*perGoroutine)
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perGoroutine {
				seen <- clock.Now()
			}
		}()
	}
	wg.Wait()
	close(seen)

	unique := make(map[int64]bool)
	for v := range seen {
		assert.False(t, unique[v], "duplicate time %d", v)
		unique[v] = true
	}
	assert.Len(t, unique, goroutines*perGoroutine)
	assert.Equal(t, DefaultStart+goroutines*perGoroutine, clock.Current())
}
