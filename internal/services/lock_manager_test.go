package services

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestSessionLockSerializes(t *testing.T) {
	lm := NewLockManager(0)
	defer lm.Close()

	var (
		wg      sync.WaitGroup
		active  int
		maxSeen int
		mu      sync.Mutex
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = lm.ExecuteWithSessionLock("s1", func() error {
				mu.Lock()
				active++
				if active > maxSeen {
					maxSeen = active
				}
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				active--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestSessionLockReturnsError(t *testing.T) {
	lm := NewLockManager(0)
	defer lm.Close()

	err := lm.ExecuteWithSessionLock("s1", func() error { return fmt.Errorf("boom") })
	assert.EqualError(t, err, "boom")
}

func TestForgetAndCleanup(t *testing.T) {
	lm := NewLockManager(0)
	defer lm.Close()

	_ = lm.ExecuteWithSessionLock("a", func() error { return nil })
	assert.Equal(t, 1, lm.Len())
	lm.Forget("a")
	assert.Equal(t, 0, lm.Len())

	lm.maxLocks = 2
	for i := 0; i < 5; i++ {
		_ = lm.ExecuteWithSessionLock(fmt.Sprintf("s%d", i), func() error { return nil })
	}
	assert.Zero(t, lm.cleanupUnusedLocks(time.Now()))
	assert.Equal(t, 5, lm.cleanupUnusedLocks(time.Now().Add(time.Hour)))
	assert.Zero(t, lm.Len())
}

func TestCleanupLoopStops(t *testing.T) {
	defer goleak.VerifyNone(t)

	lm := NewLockManager(time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	lm.Close()
	lm.Close()
}
