// Package micro provides the fine-grained execution layer: a worker pool
// that runs tasks spawned by the macro scheduler's compute resources, and
// the compute-resource bridge that feeds it ready nodes.
package micro

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/taskgraph/pkg/concurrent"
	"github.com/taskgraph/pkg/utils"
)

// Task is a unit of work executed by a pool worker. The argument is the
// index of the worker running it.
type Task func(worker int)

// CheckForTask is the callback a compute resource installs so idle workers
// can pull work straight from a schedule: given the calling worker's
// identity it returns a task and whether one was produced.
type CheckForTask func(worker int) (Task, bool)

// PoolConfig configures a worker pool.
type PoolConfig struct {
	// Workers is the number of worker goroutines. Default: 2.
	Workers int

	// Logger receives pool lifecycle events. Default: the global logger.
	Logger utils.Logger
}

// Pool runs tasks on a fixed set of workers. Tasks may spawn further
// tasks; idle workers fall back to the registered check-for-task callbacks
// before parking, so ready nodes flow in without a feeder thread.
type Pool struct {
	workers int
	logger  utils.Logger

	shared   *concurrent.QueueMPMC[Task]
	local    []*concurrent.QueueMPSC[Task]
	checkers []checkerEntry
	chkMu    concurrent.SharedSpinMutex

	wake chan struct{}
	stop chan struct{}
	wg   sync.WaitGroup

	started atomic.Bool
	pending atomic.Int64
}

type checkerEntry struct {
	key interface{}
	fn  CheckForTask
}

// NewPool creates a pool. Start must be called before tasks run.
func NewPool(cfg PoolConfig) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.Logger == nil {
		cfg.Logger = utils.GetGlobalLogger()
	}
	p := &Pool{
		workers: cfg.Workers,
		logger:  cfg.Logger,
		shared:  concurrent.NewQueueMPMC[Task](64),
		wake:    make(chan struct{}, cfg.Workers*2),
		stop:    make(chan struct{}),
	}
	p.local = make([]*concurrent.QueueMPSC[Task], cfg.Workers)
	for i := range p.local {
		p.local[i] = concurrent.NewQueueMPSC[Task](16)
	}
	return p
}

// Workers returns the number of pool workers.
func (p *Pool) Workers() int {
	return p.workers
}

// Start launches the worker goroutines.
func (p *Pool) Start() {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.workerLoop(i)
	}
	p.logger.Debug("worker pool started with %d workers", p.workers)
}

// Shutdown stops the workers after the queues drain.
func (p *Pool) Shutdown() {
	if !p.started.Load() {
		return
	}
	close(p.stop)
	p.NotifyAll()
	p.wg.Wait()
	p.logger.Debug("worker pool stopped")
}

// Spawn submits a task and wakes a worker.
func (p *Pool) Spawn(t Task) {
	p.pending.Add(1)
	p.shared.TryPush(t)
	p.notifyOne()
}

// SpawnAt submits a task bound to a specific worker, honoring a per-worker
// affinity hint. Out-of-range hints fall back to the shared queue.
func (p *Pool) SpawnAt(worker int, t Task) {
	if worker < 0 || worker >= p.workers {
		p.Spawn(t)
		return
	}
	p.pending.Add(1)
	p.local[worker].TryPush(t)
	p.notifyOne()
}

// NotifyAll wakes every worker to re-poll its sources.
func (p *Pool) NotifyAll() {
	for i := 0; i < p.workers; i++ {
		p.notifyOne()
	}
}

func (p *Pool) notifyOne() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// RegisterChecker installs a check-for-task callback under a key.
func (p *Pool) RegisterChecker(key interface{}, fn CheckForTask) {
	p.chkMu.Lock()
	p.checkers = append(p.checkers, checkerEntry{key: key, fn: fn})
	p.chkMu.Unlock()
	p.NotifyAll()
}

// UnregisterChecker removes the callback installed under key.
func (p *Pool) UnregisterChecker(key interface{}) {
	p.chkMu.Lock()
	for i, e := range p.checkers {
		if e.key == key {
			p.checkers = append(p.checkers[:i], p.checkers[i+1:]...)
			break
		}
	}
	p.chkMu.Unlock()
}

// Pending returns the number of spawned tasks not yet finished.
func (p *Pool) Pending() int64 {
	return p.pending.Load()
}

// ParallelFor runs fn for every index in [begin, end) across the pool and
// returns when all iterations completed. The calling goroutine helps
// execute pool tasks while it waits, so workloads may fan out onto the
// pool they run on without deadlocking it.
func (p *Pool) ParallelFor(begin, end int, fn func(i, worker int)) {
	count := end - begin
	if count <= 0 {
		return
	}

	chunks := p.workers * 4
	if chunks > count {
		chunks = count
	}
	chunkSize := (count + chunks - 1) / chunks

	var remaining atomic.Int64
	remaining.Store(int64(count))

	for lo := begin; lo < end; lo += chunkSize {
		lo := lo
		hi := lo + chunkSize
		if hi > end {
			hi = end
		}
		p.Spawn(func(worker int) {
			for i := lo; i < hi; i++ {
				fn(i, worker)
			}
			remaining.Add(int64(lo - hi))
		})
	}

	p.HelpUntil(func() bool { return remaining.Load() == 0 })
}

// HelpUntil executes pool tasks on the calling goroutine until pred
// returns true.
func (p *Pool) HelpUntil(pred func() bool) {
	var b concurrent.Backoff
	for !pred() {
		if p.runOne(-1) {
			b.Reset()
			continue
		}
		b.Wait()
	}
}

// runOne executes a single task for the given worker identity. Returns
// whether anything ran.
func (p *Pool) runOne(worker int) bool {
	if worker >= 0 {
		if t, ok := p.local[worker].TryPop(); ok {
			t(worker)
			p.pending.Add(-1)
			return true
		}
	}
	if t, ok := p.shared.TryPop(); ok {
		t(worker)
		p.pending.Add(-1)
		return true
	}
	return p.runChecker(worker)
}

// runChecker polls the registered schedule callbacks for a task.
func (p *Pool) runChecker(worker int) bool {
	p.chkMu.RLock()
	checkers := p.checkers
	p.chkMu.RUnlock()

	for _, e := range checkers {
		if t, ok := e.fn(worker); ok {
			t(worker)
			return true
		}
	}
	return false
}

func (p *Pool) workerLoop(worker int) {
	defer p.wg.Done()

	var b concurrent.Backoff
	for {
		if p.runOne(worker) {
			b.Reset()
			continue
		}

		select {
		case <-p.stop:
			// Drain what is left so shutdown never strands a task.
			for p.runOne(worker) {
			}
			return
		default:
		}

		if b.Count() < 32 {
			b.Wait()
			continue
		}

		select {
		case <-p.wake:
			b.Reset()
		case <-p.stop:
			for p.runOne(worker) {
			}
			return
		case <-time.After(time.Millisecond):
		}
	}
}
