package sched

import (
	"github.com/taskgraph/pkg/concurrent"
	"github.com/taskgraph/pkg/dag"
)

// ============================================================================
// Central-queue schedule
// ============================================================================

// CentralQueueSchedule is the homogeneous policy's schedule: one global
// ready queue shared by every resource, plus one queue per resource for
// affinity-pinned nodes.
type CentralQueueSchedule struct {
	scheduleCore

	global    *concurrent.QueueMPMC[*dag.Node]
	affinity  map[dag.ResourceID]*concurrent.QueueMPMC[*dag.Node]
	resources []dag.ComputeResource
}

func newCentralQueueSchedule(source, sink *dag.Node, resources []dag.ComputeResource) *CentralQueueSchedule {
	s := &CentralQueueSchedule{
		global:    concurrent.NewQueueMPMC[*dag.Node](64),
		affinity:  make(map[dag.ResourceID]*concurrent.QueueMPMC[*dag.Node], len(resources)),
		resources: resources,
	}
	s.initCore(source, sink, resources)
	for _, r := range resources {
		s.affinity[r.ID()] = concurrent.NewQueueMPMC[*dag.Node](16)
	}
	return s
}

// InsertReadyNode implements dag.Schedule: affinity-pinned nodes go to
// their resource's queue, everything else to the global queue.
func (s *CentralQueueSchedule) InsertReadyNode(n *dag.Node) {
	n.SetCurrentSchedule(s)
	if aff := n.Affinity(); aff.Valid() {
		if q, ok := s.affinity[aff]; ok {
			q.TryPush(n)
			if r := s.resourceByID(aff); r != nil {
				r.Notify(s)
			}
			return
		}
	}
	s.global.TryPush(n)
	for _, r := range s.resources {
		r.Notify(s)
	}
}

// PopNextNode implements dag.Schedule: the resource's affinity queue
// drains before the global queue.
func (s *CentralQueueSchedule) PopNextNode(r dag.ComputeResource) *dag.Node {
	if q, ok := s.affinity[r.ID()]; ok {
		if n, ok := q.TryPop(); ok {
			return n
		}
	}
	if n, ok := s.global.TryPop(); ok {
		if !r.CanExecute(n) {
			// Wrong workload kind for this resource; requeue for another.
			s.global.TryPush(n)
			return nil
		}
		return n
	}
	return nil
}

func (s *CentralQueueSchedule) resourceByID(id dag.ResourceID) dag.ComputeResource {
	for _, r := range s.resources {
		if r.ID() == id {
			return r
		}
	}
	return nil
}

// ============================================================================
// Central-queue macro scheduler
// ============================================================================

// CentralQueueScheduler is the homogeneous scheduling policy: every
// resource pulls from one shared ready queue.
type CentralQueueScheduler struct {
	baseScheduler
}

// NewCentralQueueScheduler creates the scheduler. Returns nil when the
// config carries no compute resources.
func NewCentralQueueScheduler(cfg Config) *CentralQueueScheduler {
	s := &CentralQueueScheduler{}
	if !s.init(s, cfg) {
		return nil
	}
	return s
}

// BuildSchedule implements dag.MacroScheduler.
func (s *CentralQueueScheduler) BuildSchedule(source, sink *dag.Node) dag.Schedule {
	sched := newCentralQueueSchedule(source, sink, s.resources)
	for _, r := range s.resources {
		r.RegisterSchedule(sched)
	}
	return sched
}

// ExecuteSchedule implements dag.MacroScheduler.
func (s *CentralQueueScheduler) ExecuteSchedule(sched dag.Schedule, caller dag.ResourceID) error {
	return s.executeSchedule(sched, caller, nil)
}

// FreeSchedule implements dag.MacroScheduler.
func (s *CentralQueueScheduler) FreeSchedule(sched dag.Schedule) {
	s.freeSchedule(sched, true)
}
