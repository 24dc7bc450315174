package renderer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGuardOneRenderPerUser(t *testing.T) {
	g := NewGuard()
	release, ok := g.Acquire(1)
	require.True(t, ok)
	require.True(t, g.Busy(1))

	_, ok = g.Acquire(1)
	require.False(t, ok)

	other, ok := g.Acquire(2)
	require.True(t, ok)
	require.Equal(t, 2, g.InFlight())

	release()
	release()
	other()
	require.False(t, g.Busy(1))
	require.Equal(t, 0, g.InFlight())

	_, ok = g.Acquire(1)
	require.True(t, ok)
}

func TestGuardConcurrentAcquire(t *testing.T) {
	g := NewGuard()
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		won int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := g.Acquire(7); ok {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, won)
}
