package micro

import (
	"github.com/taskgraph/pkg/concurrent"
	"github.com/taskgraph/pkg/dag"
	"github.com/taskgraph/pkg/utils"
)

// mailboxEntry is an affinity-routed node awaiting execution on this
// resource.
type mailboxEntry struct {
	schedule dag.Schedule
	node     *dag.Node
}

// ResourceConfig configures a micro-scheduler compute resource.
type ResourceConfig struct {
	// ID is the resource's globally unique id.
	ID dag.ResourceID

	// Workers is the size of the backing worker pool. Default: 2.
	Workers int

	// NormalizationFactor is the resource's relative slowness; 1.0 is the
	// reference. Default: 1.0.
	NormalizationFactor float64

	// Logger receives resource events. Default: the global logger.
	Logger utils.Logger
}

// Resource bridges ready nodes on a schedule to the worker pool: it pops
// nodes, wraps their workloads into tasks, and spawns newly-ready
// successors when a task completes.
type Resource struct {
	id     dag.ResourceID
	pool   *Pool
	logger utils.Logger

	norm    float64
	maxRank int

	mailbox *concurrent.QueueMPSC[mailboxEntry]

	scheduler dag.MacroScheduler
}

// NewResource creates a compute resource with its own worker pool. The
// pool starts immediately.
func NewResource(cfg ResourceConfig) *Resource {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.NormalizationFactor <= 0 {
		cfg.NormalizationFactor = 1.0
	}
	if cfg.Logger == nil {
		cfg.Logger = utils.GetGlobalLogger()
	}
	r := &Resource{
		id:      cfg.ID,
		logger:  cfg.Logger,
		norm:    cfg.NormalizationFactor,
		mailbox: concurrent.NewQueueMPSC[mailboxEntry](16),
	}
	r.pool = NewPool(PoolConfig{Workers: cfg.Workers, Logger: cfg.Logger})
	r.pool.Start()
	return r
}

// Shutdown stops the backing worker pool.
func (r *Resource) Shutdown() {
	r.pool.Shutdown()
}

// ID implements dag.ComputeResource.
func (r *Resource) ID() dag.ResourceID {
	return r.id
}

// Type implements dag.ComputeResource.
func (r *Resource) Type() dag.WorkloadType {
	return dag.WorkloadTypeMicroScheduler
}

// CanExecute implements dag.ComputeResource.
func (r *Resource) CanExecute(n *dag.Node) bool {
	return n.Workload(r.Type()) != nil
}

// ProcessorCount implements dag.ComputeResource.
func (r *Resource) ProcessorCount() int {
	return r.pool.Workers()
}

// Pool returns the backing worker pool, e.g. for workloads that fan out
// onto it.
func (r *Resource) Pool() *Pool {
	return r.pool
}

// SetScheduler binds the resource to the macro scheduler that dispatches
// to it.
func (r *Resource) SetScheduler(s dag.MacroScheduler) {
	r.scheduler = s
}

// SetExecutionNormalizationFactor implements dag.ComputeResource.
func (r *Resource) SetExecutionNormalizationFactor(f float64) {
	if f > 0 {
		r.norm = f
	}
}

// ExecutionNormalizationFactor implements dag.ComputeResource.
func (r *Resource) ExecutionNormalizationFactor() float64 {
	return r.norm
}

// SetMaxRank implements dag.ComputeResource.
func (r *Resource) SetMaxRank(rank int) {
	r.maxRank = rank
}

// MaxRank implements dag.ComputeResource.
func (r *Resource) MaxRank() int {
	return r.maxRank
}

// Notify implements dag.ComputeResource: wake every pool worker.
func (r *Resource) Notify(s dag.Schedule) {
	r.pool.NotifyAll()
}

// RegisterSchedule installs the check-for-task callback so idle workers
// pull ready nodes from the schedule directly.
func (r *Resource) RegisterSchedule(s dag.Schedule) {
	r.pool.RegisterChecker(s, func(worker int) (Task, bool) {
		n, sched := r.popNode(s)
		if n == nil {
			return nil, false
		}
		return r.buildTask(sched, n, worker), true
	})
}

// UnregisterSchedule removes the schedule's callback.
func (r *Resource) UnregisterSchedule(s dag.Schedule) {
	r.pool.UnregisterChecker(s)
}

// ReceiveAffinitizedNode accepts a node routed directly to this resource.
// It lands in the MPSC mailbox, which every pull drains before the
// schedule's global storage, and a drain task keeps the workers converting
// mailbox entries even when no schedule callback is installed.
func (r *Resource) ReceiveAffinitizedNode(s dag.Schedule, n *dag.Node) {
	r.mailbox.TryPush(mailboxEntry{schedule: s, node: n})
	r.pool.Spawn(func(worker int) {
		if e, ok := r.mailbox.TryPop(); ok {
			r.buildTask(e.schedule, e.node, worker)(worker)
		}
	})
}

// Process implements dag.ComputeResource. With canBlock the calling thread
// feeds the pool until the schedule is done; without it, the callback
// installed at registration keeps the workers supplied and the call just
// wakes them.
func (r *Resource) Process(s dag.Schedule, canBlock bool) {
	r.pool.NotifyAll()
	if !canBlock {
		return
	}

	s.Ref()
	defer s.Unref()

	var b concurrent.Backoff
	for !s.IsDone() {
		n, sched := r.popNode(s)
		if n != nil {
			r.pool.Spawn(r.buildTask(sched, n, -1))
			b.Reset()
			continue
		}
		b.Wait()
	}
}

// popNode returns the next node for this resource: the affinity mailbox
// drains first, then the schedule's ready storage.
func (r *Resource) popNode(s dag.Schedule) (*dag.Node, dag.Schedule) {
	if e, ok := r.mailbox.TryPop(); ok {
		return e.node, e.schedule
	}
	if n := s.PopNextNode(r); n != nil {
		return n, s
	}
	return nil, nil
}

// buildTask wraps a node's workload into a pool task. The task waits for
// the predecessor handshake, runs the workload, records the observed cost,
// and spawns newly-ready successors.
func (r *Resource) buildTask(s dag.Schedule, n *dag.Node, worker int) Task {
	w := n.Workload(r.Type())
	utils.Assert(w != nil, "node %q has no workload for resource %d", n.Name(), r.id)

	s.Ref()
	return func(worker int) {
		n.WaitUntilComplete()

		start := utils.Cycles()
		w.Execute(&dag.WorkloadContext{
			Node:        n,
			Schedule:    s,
			Resource:    r,
			Scheduler:   r.scheduler,
			WorkerIndex: worker,
		})
		elapsed := utils.Cycles() - start

		// Normalize to reference-resource ticks before feeding the node's
		// moving average and the schedule's per-resource maximum.
		ref := uint64(float64(elapsed) / r.norm)
		n.ObserveExecutionCost(ref)
		s.ObserveExecutionCost(r.id, ref)

		r.spawnReadyChildren(s, n)
		s.Unref()
	}
}

// spawnReadyChildren resolves the node's successors in two passes: the
// first hands every newly-ready successor to the schedule, the second
// releases the predecessor-complete handshake. Sinks flip the schedule's
// done flag.
func (r *Resource) spawnReadyChildren(s dag.Schedule, n *dag.Node) {
	n.WaitUntilComplete()

	succs := n.Successors()
	for _, succ := range succs {
		if succ.CompletePredecessor() {
			s.InsertReadyNode(succ)
		}
	}
	for _, succ := range succs {
		succ.FinishPredecessor()
	}

	if len(succs) == 0 {
		s.TryMarkDone(n)
	}
}
