package micro

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskgraph/pkg/utils"
)

func newTestPool(t *testing.T, workers int) *Pool {
	t.Helper()
	p := NewPool(PoolConfig{Workers: workers, Logger: &utils.NullLogger{}})
	p.Start()
	t.Cleanup(p.Shutdown)
	return p
}

func TestPool_SpawnRunsTasks(t *testing.T) {
	p := newTestPool(t, 4)

	var counter atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		p.Spawn(func(worker int) {
			counter.Add(1)
			wg.Done()
		})
	}
	wg.Wait()
	assert.Equal(t, int64(100), counter.Load())
}

func TestPool_TasksSpawnTasks(t *testing.T) {
	p := newTestPool(t, 2)

	var counter atomic.Int64
	var wg sync.WaitGroup
	wg.Add(10)
	p.Spawn(func(worker int) {
		for i := 0; i < 10; i++ {
			p.Spawn(func(worker int) {
				counter.Add(1)
				wg.Done()
			})
		}
	})
	wg.Wait()
	assert.Equal(t, int64(10), counter.Load())
}

func TestPool_SpawnAt(t *testing.T) {
	p := newTestPool(t, 3)

	var seen atomic.Int32
	var wg sync.WaitGroup
	wg.Add(1)
	p.SpawnAt(2, func(worker int) {
		seen.Store(int32(worker))
		wg.Done()
	})
	wg.Wait()
	assert.Equal(t, int32(2), seen.Load())
}

func TestPool_Checker(t *testing.T) {
	p := newTestPool(t, 2)

	// An idle worker pulls from the registered callback.
	var fed atomic.Int64
	var ran atomic.Int64
	p.RegisterChecker("src", func(worker int) (Task, bool) {
		if fed.Add(1) > 5 {
			return nil, false
		}
		return func(worker int) { ran.Add(1) }, true
	})

	deadline := time.Now().Add(2 * time.Second)
	for ran.Load() < 5 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	assert.GreaterOrEqual(t, ran.Load(), int64(5))

	p.UnregisterChecker("src")
}

func TestPool_ParallelFor(t *testing.T) {
	p := newTestPool(t, 4)

	const n = 10000
	out := make([]int64, n)
	p.ParallelFor(0, n, func(i, worker int) {
		out[i] = int64(i) * 2
	})

	for i := 0; i < n; i++ {
		require.Equal(t, int64(i)*2, out[i], "index %d", i)
	}
}

func TestPool_ParallelForFromWorker(t *testing.T) {
	p := newTestPool(t, 2)

	// A task fanning out onto its own pool must not deadlock.
	const n = 500
	out := make([]int64, n)
	var wg sync.WaitGroup
	wg.Add(1)
	p.Spawn(func(worker int) {
		p.ParallelFor(0, n, func(i, worker int) {
			out[i] = int64(i) + 1
		})
		wg.Done()
	})
	wg.Wait()

	for i := 0; i < n; i++ {
		require.Equal(t, int64(i)+1, out[i])
	}
}
