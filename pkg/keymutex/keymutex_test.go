package keymutex

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLockSerializesSameKey(t *testing.T) {
	km := New()

	var wg sync.WaitGroup
	counter := 0
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("room-1")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, counter)
}

func TestLockReleasesEntry(t *testing.T) {
	km := New()

	unlock := km.Lock("room-1")
	unlock()

	km.mu.Lock()
	defer km.mu.Unlock()
	assert.Empty(t, km.locks)
}

func TestDifferentKeysDoNotBlock(t *testing.T) {
	km := New()

	unlockA := km.Lock("room-a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB := km.Lock("room-b")
		unlockB()
		close(done)
	}()

	<-done
}
