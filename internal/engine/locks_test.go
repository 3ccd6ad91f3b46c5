package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderLocks_SerializesSameOrder(t *testing.T) {
	locks := newOrderLocks()
	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	for i := 0; i < 2; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locks.withOrderLock("order-1", false, func() error {
				time.Sleep(10 * time.Millisecond)
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Len(t, order, 2)
}

func TestOrderLocks_DifferentOrdersDontBlock(t *testing.T) {
	locks := newOrderLocks()
	done := make(chan struct{})

	go func() {
		_ = locks.withOrderLock("order-a", false, func() error {
			time.Sleep(50 * time.Millisecond)
			return nil
		})
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	start := time.Now()
	err := locks.withOrderLock("order-b", false, func() error { return nil })
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 40*time.Millisecond)
	<-done
}

func TestOrderLocks_EvictsOnTerminal(t *testing.T) {
	locks := newOrderLocks()
	err := locks.withOrderLock("order-1", true, func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 0, locks.size())
}

func TestOrderLocks_KeepsNonTerminal(t *testing.T) {
	locks := newOrderLocks()
	err := locks.withOrderLock("order-1", false, func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 1, locks.size())
}

func TestOrderLocks_PropagatesEffectError(t *testing.T) {
	locks := newOrderLocks()
	sentinel := assert.AnError
	err := locks.withOrderLock("order-1", false, func() error { return sentinel })
	assert.ErrorIs(t, err, sentinel)
}
