package compute

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embergridproject/embergrid/internal/compute/configuration"
)

func TestPoolManager_SubmitRunsTasks(t *testing.T) {
	m := NewPoolManager([]configuration.PoolConfiguration{{Workers: 2, QueueSize: 8}})

	var mu sync.Mutex
	ran := 0
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		require.NoError(t, m.Submit("", func() {
			defer wg.Done()
			mu.Lock()
			ran++
			mu.Unlock()
		}))
	}
	wg.Wait()
	m.Stop()

	assert.Equal(t, 8, ran)
}

func TestPoolManager_RejectsWhenQueueFull(t *testing.T) {
	m := NewPoolManager([]configuration.PoolConfiguration{{Workers: 1, QueueSize: 1}})
	defer m.Stop()

	block := make(chan struct{})
	defer close(block)

	// One task occupies the worker, one fills the queue.
	running := make(chan struct{})
	require.NoError(t, m.Submit("", func() { close(running); <-block }))
	<-running
	require.NoError(t, m.Submit("", func() {}))

	err := m.Submit("", func() {})
	assert.ErrorIs(t, err, errPoolRejected)
}

func TestPoolManager_UnknownExecutorFallsBack(t *testing.T) {
	m := NewPoolManager([]configuration.PoolConfiguration{
		{Workers: 1, QueueSize: 8},
		{Name: "custom", Workers: 1, QueueSize: 8},
	})

	done := make(chan struct{})
	require.NoError(t, m.Submit("no-such-pool", func() { close(done) }))
	<-done
	m.Stop()
}

func TestPoolManager_SubmitAfterStopRejected(t *testing.T) {
	m := NewPoolManager([]configuration.PoolConfiguration{{Workers: 1, QueueSize: 1}})
	m.Stop()

	assert.ErrorIs(t, m.Submit("", func() {}), errPoolRejected)
}
