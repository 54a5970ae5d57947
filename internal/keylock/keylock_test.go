package keylock

import (
	"sync"
	"testing"
)

func TestLockSerializesSameKey(t *testing.T) {
	t.Parallel()

	locker := New()
	counter := 0

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locker.Lock("job-1")
			defer unlock()
			current := counter
			current++
			counter = current
		}()
	}
	wg.Wait()

	if counter != 100 {
		t.Fatalf("expected 100 increments, got %d", counter)
	}
	if locker.Len() != 0 {
		t.Fatalf("expected lock table to be empty, got %d", locker.Len())
	}
}

func TestLockDifferentKeysIndependent(t *testing.T) {
	t.Parallel()

	locker := New()
	unlockA := locker.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := locker.Lock("b")
		unlock()
		close(done)
	}()
	<-done

	if locker.Len() != 1 {
		t.Fatalf("expected only key a to be tracked, got %d", locker.Len())
	}
}

func TestUnlockIsIdempotent(t *testing.T) {
	t.Parallel()

	locker := New()
	unlock := locker.Lock("a")
	unlock()
	unlock()

	relock := locker.Lock("a")
	relock()
}
