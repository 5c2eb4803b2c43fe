// Package sched implements the macro-scheduler layer: schedule state for
// one execution of a task graph, and the central-queue, dynamic, and
// critical-node scheduling policies that build and run those schedules.
package sched

import (
	"sync/atomic"

	"github.com/taskgraph/pkg/dag"
	"github.com/taskgraph/pkg/utils"
)

// scheduleCore carries the state shared by every schedule implementation:
// the (source, sink) pair, the done flag, the drain reference count, and
// the per-resource maximum observed execution cost.
type scheduleCore struct {
	source *dag.Node
	sink   *dag.Node

	done atomic.Bool
	refs atomic.Int64

	// maxCosts holds one slot per compute resource, updated by the
	// resources as they execute nodes and consumed by ranking passes.
	maxCosts map[dag.ResourceID]*atomic.Uint64
}

func (c *scheduleCore) initCore(source, sink *dag.Node, resources []dag.ComputeResource) {
	c.source = source
	c.sink = sink
	// A schedule is born done so the first ExecuteSchedule can assert the
	// previous run finished before rearming it.
	c.done.Store(true)
	c.maxCosts = make(map[dag.ResourceID]*atomic.Uint64, len(resources))
	for _, r := range resources {
		c.maxCosts[r.ID()] = &atomic.Uint64{}
	}
}

// Source implements dag.Schedule.
func (c *scheduleCore) Source() *dag.Node {
	return c.source
}

// Sink implements dag.Schedule.
func (c *scheduleCore) Sink() *dag.Node {
	return c.sink
}

// IsDone implements dag.Schedule.
func (c *scheduleCore) IsDone() bool {
	return c.done.Load()
}

// ResetDone implements dag.Schedule.
func (c *scheduleCore) ResetDone() {
	c.done.Store(false)
}

// TryMarkDone implements dag.Schedule.
func (c *scheduleCore) TryMarkDone(n *dag.Node) bool {
	if n != c.sink {
		return false
	}
	return c.done.CompareAndSwap(false, true)
}

// Ref implements dag.Schedule.
func (c *scheduleCore) Ref() {
	c.refs.Add(1)
}

// Unref implements dag.Schedule.
func (c *scheduleCore) Unref() {
	v := c.refs.Add(-1)
	utils.Assert(v >= 0, "schedule reference count underflow")
}

// Refs implements dag.Schedule.
func (c *scheduleCore) Refs() int64 {
	return c.refs.Load()
}

// ObserveExecutionCost implements dag.Schedule: a max-update on the
// resource's cost slot.
func (c *scheduleCore) ObserveExecutionCost(id dag.ResourceID, cost uint64) {
	slot, ok := c.maxCosts[id]
	if !ok {
		return
	}
	for {
		cur := slot.Load()
		if cost <= cur || slot.CompareAndSwap(cur, cost) {
			return
		}
	}
}

// collectMaxCost returns the largest cost any resource reported, then
// resets every slot for the next execution.
func (c *scheduleCore) collectMaxCost() uint64 {
	var max uint64
	for _, slot := range c.maxCosts {
		if v := slot.Load(); v > max {
			max = v
		}
		slot.Store(0)
	}
	return max
}
