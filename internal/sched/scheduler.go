package sched

import (
	"context"
	"sort"

	"github.com/taskgraph/pkg/concurrent"
	"github.com/taskgraph/pkg/dag"
	apperrors "github.com/taskgraph/pkg/errors"
	"github.com/taskgraph/pkg/telemetry"
	"github.com/taskgraph/pkg/utils"
)

// Config configures a macro scheduler.
type Config struct {
	// Resources is the set of compute resources the scheduler dispatches
	// to. Must not be empty.
	Resources []dag.ComputeResource

	// Logger receives scheduler events. Default: the global logger.
	Logger utils.Logger
}

// schedulerBinder is implemented by compute resources that want a back
// reference to the macro scheduler driving them.
type schedulerBinder interface {
	SetScheduler(s dag.MacroScheduler)
}

// baseScheduler carries the state and behavior shared by every policy:
// the sorted resource list, node ownership, and the execute/free skeleton.
type baseScheduler struct {
	resources   []dag.ComputeResource
	logger      utils.Logger
	nodes       []*dag.Node
	initialized bool
}

// init stores the compute-resource list sorted fastest-first (ascending
// normalization factor) and assigns each resource its rank window. It
// returns false, leaving the scheduler inert, when the list is empty.
func (b *baseScheduler) init(self dag.MacroScheduler, cfg Config) bool {
	if len(cfg.Resources) == 0 {
		return false
	}
	if cfg.Logger == nil {
		cfg.Logger = utils.GetGlobalLogger()
	}
	b.logger = cfg.Logger

	b.resources = make([]dag.ComputeResource, len(cfg.Resources))
	copy(b.resources, cfg.Resources)
	sort.SliceStable(b.resources, func(i, j int) bool {
		return b.resources[i].ExecutionNormalizationFactor() < b.resources[j].ExecutionNormalizationFactor()
	})

	// Rank windows: the fastest resource serves the lowest queue indexes.
	cum := 0
	for _, r := range b.resources {
		r.SetMaxRank(cum)
		cum += r.ProcessorCount()
		if binder, ok := r.(schedulerBinder); ok {
			binder.SetScheduler(self)
		}
	}

	b.initialized = true
	return true
}

// ComputeResources implements dag.MacroScheduler.
func (b *baseScheduler) ComputeResources() []dag.ComputeResource {
	return b.resources
}

// AllocateNode implements dag.MacroScheduler.
func (b *baseScheduler) AllocateNode(name string) *dag.Node {
	n := dag.NewNode(name)
	b.nodes = append(b.nodes, n)
	return n
}

// DestroyNode implements dag.MacroScheduler.
func (b *baseScheduler) DestroyNode(n *dag.Node) {
	for i, o := range b.nodes {
		if o == n {
			b.nodes = append(b.nodes[:i], b.nodes[i+1:]...)
			return
		}
	}
}

// NumNodes returns the number of nodes owned by the scheduler.
func (b *baseScheduler) NumNodes() int {
	return len(b.nodes)
}

// totalProcessors sums the processor counts of every resource.
func (b *baseScheduler) totalProcessors() int {
	total := 0
	for _, r := range b.resources {
		total += r.ProcessorCount()
	}
	return total
}

func (b *baseScheduler) resourceByID(id dag.ResourceID) dag.ComputeResource {
	for _, r := range b.resources {
		if r.ID() == id {
			return r
		}
	}
	return nil
}

// executeSchedule is the policy-independent execution skeleton: assert the
// previous run finished, rearm the done flag, run the policy's
// pre-execution pass, reset the graph, seed the source, then set every
// resource to work with the caller's resource blocking. Once the run is
// done the graph's counters are restored again.
func (b *baseScheduler) executeSchedule(s dag.Schedule, caller dag.ResourceID, preprocess func()) error {
	callerRes := b.resourceByID(caller)
	if callerRes == nil {
		return apperrors.Newf(apperrors.CodeInvalidArgument, "unknown compute resource id %#x", uint32(caller))
	}

	_, span := telemetry.StartSpan(context.Background(), telemetry.ChannelMacroSchedProfile, "schedule.execute")
	defer span.End()

	utils.Assert(s.IsDone(), "schedule executed while a previous run is in flight")
	s.ResetDone()

	if preprocess != nil {
		preprocess()
	}

	dag.ResetGraph(s.Source())
	s.Source().SetCurrentSchedule(s)

	s.InsertReadyNode(s.Source())

	for _, r := range b.resources {
		if r.ID() != caller {
			r.Process(s, false)
		}
	}
	callerRes.Process(s, true)

	// The sink has run, so every node did; restore the counters so the
	// graph is reusable as soon as the call returns.
	dag.ResetGraph(s.Source())
	return nil
}

// freeSchedule spins until every resource released the schedule, then
// unregisters it.
func (b *baseScheduler) freeSchedule(s dag.Schedule, registered bool) {
	var bo concurrent.Backoff
	for s.Refs() != 0 {
		bo.Wait()
	}
	if registered {
		for _, r := range b.resources {
			r.UnregisterSchedule(s)
		}
	}
}
