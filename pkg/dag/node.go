package dag

import (
	"sync/atomic"

	"github.com/taskgraph/pkg/concurrent"
	"github.com/taskgraph/pkg/utils"
)

// maxNameLen caps a node's debug name.
const maxNameLen = 64

// Node is a persistent vertex of a task graph. Edges and workloads are set
// up before the first execution; the node then survives any number of
// schedule executions. Edge sets may only be mutated while no schedule
// references the graph, or from inside the executing workload of an
// endpoint.
type Node struct {
	name string

	workloads [NumWorkloadTypes]Workload

	predecessors []*Node
	successors   []*Node

	// currPredecessorCount counts unresolved predecessors; the node is
	// ready when it reaches zero. predecessorCompleteCount pairs with it:
	// it reaches zero only after every predecessor finished its
	// post-completion bookkeeping, which is what the workload may observe.
	currPredecessorCount     atomic.Int32
	predecessorCompleteCount atomic.Int32
	initPredecessorCount     int32

	// rank is the node's criticality rank for ranked schedules; higher is
	// more critical.
	rank atomic.Int64

	executionCost utils.EWMA

	affinity ResourceID

	// schedule is the execution currently referencing this node.
	schedule atomic.Value // Schedule
}

// NewNode creates an unattached node. Most callers go through their
// scheduler's AllocateNode instead.
func NewNode(name string) *Node {
	if len(name) > maxNameLen {
		name = name[:maxNameLen]
	}
	return &Node{
		name:     name,
		affinity: AnyResource,
	}
}

// Name returns the node's debug name.
func (n *Node) Name() string {
	return n.name
}

// ============================================================================
// Workloads
// ============================================================================

// AddWorkload attaches a workload. A node holds at most one workload per
// type; attaching a duplicate type is a programming error.
func (n *Node) AddWorkload(w Workload) {
	t := w.Type()
	utils.Assert(int(t) < NumWorkloadTypes, "workload type %d out of range", t)
	utils.Assert(n.workloads[t] == nil, "node %q already has a workload of type %d", n.name, t)
	n.workloads[t] = w
}

// Workload returns the workload of the given type, or nil when the node
// does not implement it.
func (n *Node) Workload(t WorkloadType) Workload {
	if int(t) >= NumWorkloadTypes {
		return nil
	}
	return n.workloads[t]
}

// RemoveWorkload detaches the workload of the given type.
func (n *Node) RemoveWorkload(t WorkloadType) {
	if int(t) < NumWorkloadTypes {
		n.workloads[t] = nil
	}
}

// ============================================================================
// Edges
// ============================================================================

// AddSuccessor links n -> succ and bumps succ's predecessor counters.
func (n *Node) AddSuccessor(succ *Node) {
	n.successors = append(n.successors, succ)
	succ.predecessors = append(succ.predecessors, n)
	succ.initPredecessorCount++
	succ.currPredecessorCount.Add(1)
	succ.predecessorCompleteCount.Add(1)
}

// RemoveSuccessor unlinks n -> succ and drops succ's predecessor counters.
func (n *Node) RemoveSuccessor(succ *Node) {
	for i, s := range n.successors {
		if s == succ {
			n.successors = append(n.successors[:i], n.successors[i+1:]...)
			break
		}
	}
	for i, p := range succ.predecessors {
		if p == n {
			succ.predecessors = append(succ.predecessors[:i], succ.predecessors[i+1:]...)
			succ.initPredecessorCount--
			succ.currPredecessorCount.Add(-1)
			succ.predecessorCompleteCount.Add(-1)
			return
		}
	}
	utils.Assert(false, "removeSuccessor: %q is not a successor of %q", succ.name, n.name)
}

// Successors returns the node's successor sequence. Callers must not
// mutate it.
func (n *Node) Successors() []*Node {
	return n.successors
}

// Predecessors returns the node's predecessor sequence. Callers must not
// mutate it.
func (n *Node) Predecessors() []*Node {
	return n.predecessors
}

// InitPredecessorCount returns the node's static in-degree.
func (n *Node) InitPredecessorCount() int32 {
	return n.initPredecessorCount
}

// CurrPredecessorCount returns the number of still-unresolved predecessors.
func (n *Node) CurrPredecessorCount() int32 {
	return n.currPredecessorCount.Load()
}

// ============================================================================
// Readiness protocol
// ============================================================================

// Ready reports whether every predecessor has resolved.
func (n *Node) Ready() bool {
	return n.currPredecessorCount.Load() == 0
}

// CompletePredecessor resolves one predecessor and reports whether that
// made the node ready. A true return transfers responsibility for queueing
// the node to the caller.
func (n *Node) CompletePredecessor() bool {
	prev := n.currPredecessorCount.Add(-1) + 1
	utils.Assert(prev > 0, "node %q predecessor count underflow", n.name)
	return prev == 1
}

// FinishPredecessor records that one predecessor finished its
// post-completion bookkeeping. This is the second phase of the handshake;
// the release here pairs with the acquire in WaitUntilComplete.
func (n *Node) FinishPredecessor() {
	n.predecessorCompleteCount.Add(-1)
}

// WaitUntilComplete spins until every predecessor's bookkeeping is
// observable. It is the sole synchronization point between newly-ready and
// safe-to-execute.
func (n *Node) WaitUntilComplete() {
	var b concurrent.Backoff
	for n.predecessorCompleteCount.Load() > 0 {
		b.Wait()
	}
}

// ResetGraph restores the predecessor counters of every node reachable
// from source, making the graph executable again.
func ResetGraph(source *Node) {
	visited := map[*Node]bool{source: true}
	queue := []*Node{source}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		n.currPredecessorCount.Store(n.initPredecessorCount)
		n.predecessorCompleteCount.Store(n.initPredecessorCount)
		for _, s := range n.successors {
			if !visited[s] {
				visited[s] = true
				queue = append(queue, s)
			}
		}
	}
}

// ============================================================================
// Rank, cost, affinity
// ============================================================================

// Rank returns the node's criticality rank.
func (n *Node) Rank() int64 {
	return n.rank.Load()
}

// SetRank stores the node's criticality rank.
func (n *Node) SetRank(r int64) {
	n.rank.Store(r)
}

// ExecutionCost returns the node's averaged execution cost on the
// reference resource, in clock ticks.
func (n *Node) ExecutionCost() uint64 {
	return n.executionCost.Load()
}

// ObserveExecutionCost folds a new cost sample into the node's average.
func (n *Node) ObserveExecutionCost(cost uint64) {
	n.executionCost.Update(cost)
}

// Affinity returns the resource the node is pinned to, or AnyResource.
func (n *Node) Affinity() ResourceID {
	return n.affinity
}

// SetAffinity pins the node to a compute resource.
func (n *Node) SetAffinity(id ResourceID) {
	n.affinity = id
}

// CurrentSchedule returns the schedule currently referencing the node, or
// nil between executions.
func (n *Node) CurrentSchedule() Schedule {
	s, _ := n.schedule.Load().(Schedule)
	return s
}

// SetCurrentSchedule records the schedule about to execute the node.
func (n *Node) SetCurrentSchedule(s Schedule) {
	if s == nil {
		return
	}
	n.schedule.Store(s)
}
