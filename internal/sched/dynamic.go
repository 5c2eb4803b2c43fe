package sched

import (
	"sync/atomic"

	"github.com/taskgraph/pkg/dag"
)

// ============================================================================
// Dynamic schedule
// ============================================================================

// DynamicSchedule delegates successor propagation to the micro-scheduler:
// it stores nothing but the (source, sink) pair. PopNextNode seeds the
// source exactly once per execution; every later ready node is handed
// straight to a compute resource and becomes a task on that resource's
// pool without touching schedule storage.
type DynamicSchedule struct {
	scheduleCore

	resources []dag.ComputeResource
	seeded    atomic.Bool
	rr        atomic.Uint32
}

func newDynamicSchedule(source, sink *dag.Node, resources []dag.ComputeResource) *DynamicSchedule {
	s := &DynamicSchedule{resources: resources}
	s.initCore(source, sink, resources)
	s.seeded.Store(true)
	return s
}

// ResetDone implements dag.Schedule, additionally rearming the source seed.
func (s *DynamicSchedule) ResetDone() {
	s.scheduleCore.ResetDone()
	s.seeded.Store(false)
}

// InsertReadyNode implements dag.Schedule: affinity-pinned nodes ship to
// their resource, the rest round-robin over the resources able to run
// them.
func (s *DynamicSchedule) InsertReadyNode(n *dag.Node) {
	n.SetCurrentSchedule(s)
	if n == s.source {
		// The execution skeleton seeds the source through here; squash the
		// pop-side seed so the source cannot run twice.
		s.seeded.Store(true)
	}
	if aff := n.Affinity(); aff.Valid() {
		for _, r := range s.resources {
			if r.ID() == aff {
				r.ReceiveAffinitizedNode(s, n)
				return
			}
		}
	}

	start := int(s.rr.Add(1))
	for i := 0; i < len(s.resources); i++ {
		r := s.resources[(start+i)%len(s.resources)]
		if r.CanExecute(n) {
			r.ReceiveAffinitizedNode(s, n)
			return
		}
	}
}

// PopNextNode implements dag.Schedule: the source is the only node the
// ready storage ever yields.
func (s *DynamicSchedule) PopNextNode(r dag.ComputeResource) *dag.Node {
	if s.seeded.Load() || !r.CanExecute(s.source) {
		return nil
	}
	if s.seeded.CompareAndSwap(false, true) {
		return s.source
	}
	return nil
}

// ============================================================================
// Dynamic macro scheduler
// ============================================================================

// DynamicScheduler is the work-stealing delegation policy: after the
// source seeds, scheduling decisions live entirely in the micro-scheduler
// layer.
type DynamicScheduler struct {
	baseScheduler
}

// NewDynamicScheduler creates the scheduler. Returns nil when the config
// carries no compute resources.
func NewDynamicScheduler(cfg Config) *DynamicScheduler {
	s := &DynamicScheduler{}
	if !s.init(s, cfg) {
		return nil
	}
	return s
}

// BuildSchedule implements dag.MacroScheduler. Registration with the
// resources is a no-op for this policy; nodes never sit in schedule
// storage long enough for idle workers to need a pull path.
func (s *DynamicScheduler) BuildSchedule(source, sink *dag.Node) dag.Schedule {
	return newDynamicSchedule(source, sink, s.resources)
}

// ExecuteSchedule implements dag.MacroScheduler.
func (s *DynamicScheduler) ExecuteSchedule(sched dag.Schedule, caller dag.ResourceID) error {
	return s.executeSchedule(sched, caller, nil)
}

// FreeSchedule implements dag.MacroScheduler.
func (s *DynamicScheduler) FreeSchedule(sched dag.Schedule) {
	s.freeSchedule(sched, false)
}
