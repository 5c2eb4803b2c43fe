package sched

import (
	"container/heap"

	"github.com/taskgraph/pkg/concurrent"
	"github.com/taskgraph/pkg/dag"
)

// ============================================================================
// Critical-node schedule
// ============================================================================

// CriticalNodeSchedule steers the critical path of a heterogeneous graph
// onto the fastest resources. It keeps one ready queue per processor rank;
// low queue indexes belong to high-throughput resources. Before each
// execution the scheduler re-ranks the graph from observed execution
// costs: nodes with the longest remaining path to the sink receive the
// highest down-ranks and therefore land in the fastest queues.
type CriticalNodeSchedule struct {
	scheduleCore

	// resources is fastest-first; owners maps each queue index to the
	// resource whose rank window covers it.
	resources []dag.ComputeResource
	owners    []dag.ComputeResource
	queues    []*concurrent.QueueMPMC[*dag.Node]
	numQueues int
}

func newCriticalNodeSchedule(source, sink *dag.Node, resources []dag.ComputeResource) *CriticalNodeSchedule {
	numQueues := 0
	for _, r := range resources {
		numQueues += r.ProcessorCount()
	}

	s := &CriticalNodeSchedule{
		resources: resources,
		numQueues: numQueues,
		queues:    make([]*concurrent.QueueMPMC[*dag.Node], numQueues),
		owners:    make([]dag.ComputeResource, numQueues),
	}
	s.initCore(source, sink, resources)

	for i := range s.queues {
		s.queues[i] = concurrent.NewQueueMPMC[*dag.Node](16)
	}
	for _, r := range resources {
		for i := r.MaxRank(); i < r.MaxRank()+r.ProcessorCount() && i < numQueues; i++ {
			s.owners[i] = r
		}
	}
	return s
}

// InsertReadyNode implements dag.Schedule. Affinity-pinned nodes go to the
// head queue of their resource's window; the rest take the best queue the
// node's down-rank admits: the lowest-index executable queue at or above
// numQueues-1-downRank, falling back to the highest-index executable queue
// below it when no queue at or above can run the node.
func (s *CriticalNodeSchedule) InsertReadyNode(n *dag.Node) {
	n.SetCurrentSchedule(s)

	if aff := n.Affinity(); aff.Valid() {
		for _, r := range s.resources {
			if r.ID() == aff {
				s.queues[r.MaxRank()].TryPush(n)
				r.Notify(s)
				return
			}
		}
	}

	// The node's down-rank admits queues at index numQueues-1-rank and
	// above: a fully critical node starts at queue zero, an unranked one
	// at the tail. Scan toward slower queues for the first resource able
	// to run the node; fall back toward faster ones when none can.
	floor := s.numQueues - 1 - int(n.Rank())
	if floor < 0 {
		floor = 0
	}
	if floor >= s.numQueues {
		floor = s.numQueues - 1
	}

	chosen := -1
	for i := floor; i < s.numQueues; i++ {
		if s.owners[i].CanExecute(n) {
			chosen = i
			break
		}
	}
	if chosen < 0 {
		for i := floor - 1; i >= 0; i-- {
			if s.owners[i].CanExecute(n) {
				chosen = i
				break
			}
		}
	}
	if chosen < 0 {
		chosen = floor
	}

	s.queues[chosen].TryPush(n)
	for _, r := range s.resources {
		if r.MaxRank() <= chosen {
			r.Notify(s)
		}
	}
}

// PopNextNode implements dag.Schedule: scan the queues from the resource's
// own rank window upward; the first node of a matching workload kind wins.
func (s *CriticalNodeSchedule) PopNextNode(r dag.ComputeResource) *dag.Node {
	for i := r.MaxRank(); i < s.numQueues; i++ {
		n, ok := s.queues[i].TryPop()
		if !ok {
			continue
		}
		if s.owners[i].Type() != r.Type() || !r.CanExecute(n) {
			s.queues[i].TryPush(n)
			continue
		}
		return n
	}
	return nil
}

// ============================================================================
// Ranking passes
// ============================================================================

// upRankHeap is a bounded min-heap keeping the numToRank largest up-ranks
// at one topological depth.
type upRankHeap struct {
	nodes []*dag.Node
	rank  map[*dag.Node]uint64
}

func (h *upRankHeap) Len() int           { return len(h.nodes) }
func (h *upRankHeap) Less(i, j int) bool { return h.rank[h.nodes[i]] < h.rank[h.nodes[j]] }
func (h *upRankHeap) Swap(i, j int)      { h.nodes[i], h.nodes[j] = h.nodes[j], h.nodes[i] }
func (h *upRankHeap) Push(x interface{}) { h.nodes = append(h.nodes, x.(*dag.Node)) }
func (h *upRankHeap) Pop() interface{} {
	n := h.nodes[len(h.nodes)-1]
	h.nodes = h.nodes[:len(h.nodes)-1]
	return n
}

// rankGraph recomputes the down-ranks from the costs observed during the
// previous execution. It runs before every execution, while no resource is
// draining the schedule.
func (s *CriticalNodeSchedule) rankGraph() {
	// Cost collection: derive the transform that maps raw costs into rank
	// units, and rearm the per-resource slots.
	maxCost := s.collectMaxCost()
	rankTransform := maxCost/uint64(s.numQueues) + 1

	// Up-rank: longest remaining path to the sink, accumulated in per-pass
	// scratch storage rather than on the nodes, so a node revisited across
	// passes can never absorb its own cost twice.
	upRank := make(map[*dag.Node]uint64)
	cost := func(n *dag.Node) uint64 {
		return n.ExecutionCost()/rankTransform + 1
	}

	upRank[s.sink] = cost(s.sink)
	stack := []*dag.Node{s.sink}
	for len(stack) > 0 {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, p := range c.Predecessors() {
			candidate := upRank[c] + cost(p)
			if candidate > upRank[p] {
				upRank[p] = candidate
				stack = append(stack, p)
			}
		}
	}

	// Down-rank: walk the graph from the source in topological depth
	// order. One pass per resource except the last; each pass claims the
	// processorCount largest up-ranks at every depth for its rank window,
	// then the window moves down. Unclaimed nodes keep rank zero and fall
	// to the slowest queues.
	depths := s.depthGroups()
	ranked := make(map[*dag.Node]bool)

	for _, r := range s.resources[:len(s.resources)-1] {
		numToRank := r.ProcessorCount()
		top := int64(s.numQueues - 1 - r.MaxRank())

		for _, level := range depths {
			h := &upRankHeap{rank: upRank}
			for _, n := range level {
				if ranked[n] {
					continue
				}
				heap.Push(h, n)
				if h.Len() > numToRank {
					heap.Pop(h)
				}
			}
			// Largest up-rank gets the top rank of the window.
			claimed := make([]*dag.Node, h.Len())
			for i := h.Len() - 1; i >= 0; i-- {
				claimed[i] = heap.Pop(h).(*dag.Node)
			}
			for j, n := range claimed {
				rank := top - int64(j)
				if rank < 0 {
					rank = 0
				}
				n.SetRank(rank)
				ranked[n] = true
			}
		}
	}

	// Nodes no pass claimed run at the bottom of the rank space.
	for _, level := range depths {
		for _, n := range level {
			if !ranked[n] {
				n.SetRank(0)
			}
		}
	}
}

// depthGroups returns the reachable nodes grouped by topological depth.
func (s *CriticalNodeSchedule) depthGroups() [][]*dag.Node {
	depth := map[*dag.Node]int{s.source: 0}
	indeg := map[*dag.Node]int{}
	order := []*dag.Node{s.source}

	// Discover the reachable subgraph.
	for i := 0; i < len(order); i++ {
		for _, succ := range order[i].Successors() {
			if _, seen := indeg[succ]; !seen {
				indeg[succ] = int(succ.InitPredecessorCount())
				order = append(order, succ)
			}
		}
	}

	// Kahn walk computing depth as the longest path from the source.
	queue := []*dag.Node{s.source}
	var groups [][]*dag.Node
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		d := depth[n]
		for len(groups) <= d {
			groups = append(groups, nil)
		}
		groups[d] = append(groups[d], n)
		for _, succ := range n.Successors() {
			if d+1 > depth[succ] {
				depth[succ] = d + 1
			}
			indeg[succ]--
			if indeg[succ] == 0 {
				queue = append(queue, succ)
			}
		}
	}
	return groups
}

// ============================================================================
// Critical-node macro scheduler
// ============================================================================

// CriticalNodeScheduler is the heterogeneous policy: per-rank ready queues
// plus cost-driven re-ranking before every execution.
type CriticalNodeScheduler struct {
	baseScheduler
}

// NewCriticalNodeScheduler creates the scheduler. Returns nil when the
// config carries no compute resources.
func NewCriticalNodeScheduler(cfg Config) *CriticalNodeScheduler {
	s := &CriticalNodeScheduler{}
	if !s.init(s, cfg) {
		return nil
	}
	return s
}

// BuildSchedule implements dag.MacroScheduler.
func (s *CriticalNodeScheduler) BuildSchedule(source, sink *dag.Node) dag.Schedule {
	sched := newCriticalNodeSchedule(source, sink, s.resources)
	for _, r := range s.resources {
		r.RegisterSchedule(sched)
	}
	return sched
}

// ExecuteSchedule implements dag.MacroScheduler. The pre-execution pass
// re-ranks the graph from the costs observed last time around.
func (s *CriticalNodeScheduler) ExecuteSchedule(sched dag.Schedule, caller dag.ResourceID) error {
	cns := sched.(*CriticalNodeSchedule)
	return s.executeSchedule(sched, caller, cns.rankGraph)
}

// FreeSchedule implements dag.MacroScheduler.
func (s *CriticalNodeScheduler) FreeSchedule(sched dag.Schedule) {
	s.freeSchedule(sched, true)
}
