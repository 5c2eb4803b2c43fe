package dag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskgraph/pkg/utils"
)

func TestNode_Edges(t *testing.T) {
	a := NewNode("A")
	b := NewNode("B")
	c := NewNode("C")

	a.AddSuccessor(b)
	a.AddSuccessor(c)
	b.AddSuccessor(c)

	assert.Equal(t, []*Node{b, c}, a.Successors())
	assert.Equal(t, []*Node{a}, b.Predecessors())
	assert.Equal(t, []*Node{a, b}, c.Predecessors())

	// Edges are mutual and counted.
	assert.Equal(t, int32(0), a.InitPredecessorCount())
	assert.Equal(t, int32(1), b.InitPredecessorCount())
	assert.Equal(t, int32(2), c.InitPredecessorCount())
	assert.Equal(t, int32(2), c.CurrPredecessorCount())

	b.RemoveSuccessor(c)
	assert.Equal(t, []*Node{a}, c.Predecessors())
	assert.Equal(t, int32(1), c.InitPredecessorCount())
	assert.Equal(t, int32(1), c.CurrPredecessorCount())
}

func TestNode_Workloads(t *testing.T) {
	n := NewNode("n")

	w := NewMicroSchedulerWorkload(func(ctx *WorkloadContext) {})
	n.AddWorkload(w)

	assert.Equal(t, Workload(w), n.Workload(WorkloadTypeMicroScheduler))
	assert.Nil(t, n.Workload(WorkloadTypeCustom))

	// A second workload of the same type is a programming error.
	var fired bool
	prev := utils.SetAssertHandler(func(string) { fired = true })
	n.AddWorkload(NewMicroSchedulerWorkload(func(ctx *WorkloadContext) {}))
	utils.SetAssertHandler(prev)
	assert.True(t, fired)

	n.RemoveWorkload(WorkloadTypeMicroScheduler)
	assert.Nil(t, n.Workload(WorkloadTypeMicroScheduler))
}

func TestNode_ReadinessProtocol(t *testing.T) {
	a := NewNode("A")
	b := NewNode("B")
	c := NewNode("C")
	a.AddSuccessor(c)
	b.AddSuccessor(c)

	require.False(t, c.Ready())

	// First predecessor resolves: not ready yet.
	assert.False(t, c.CompletePredecessor())
	// Second predecessor resolves: the caller owns the ready transition.
	assert.True(t, c.CompletePredecessor())
	assert.True(t, c.Ready())

	// The workload may only run once both predecessors finished their
	// bookkeeping.
	c.FinishPredecessor()
	c.FinishPredecessor()
	c.WaitUntilComplete() // must not block
}

func TestResetGraph(t *testing.T) {
	a := NewNode("A")
	b := NewNode("B")
	c := NewNode("C")
	d := NewNode("D")
	a.AddSuccessor(b)
	a.AddSuccessor(c)
	b.AddSuccessor(d)
	c.AddSuccessor(d)

	// Simulate one execution.
	b.CompletePredecessor()
	c.CompletePredecessor()
	d.CompletePredecessor()
	d.CompletePredecessor()
	b.FinishPredecessor()
	c.FinishPredecessor()
	d.FinishPredecessor()
	d.FinishPredecessor()

	ResetGraph(a)

	for _, n := range []*Node{a, b, c, d} {
		assert.Equal(t, n.InitPredecessorCount(), n.CurrPredecessorCount(), "node %s", n.Name())
	}
	assert.False(t, d.Ready())
}

func TestNode_CostAndRank(t *testing.T) {
	n := NewNode("n")

	n.ObserveExecutionCost(1000)
	assert.Equal(t, uint64(1000), n.ExecutionCost())
	n.ObserveExecutionCost(2000)
	// EWMA moves toward the new sample without jumping to it.
	assert.Greater(t, n.ExecutionCost(), uint64(1000))
	assert.Less(t, n.ExecutionCost(), uint64(2000))

	n.SetRank(7)
	assert.Equal(t, int64(7), n.Rank())
}

func TestNode_Affinity(t *testing.T) {
	n := NewNode("n")
	assert.Equal(t, AnyResource, n.Affinity())
	assert.False(t, n.Affinity().Valid())

	id := MakeResourceID(1, 2)
	n.SetAffinity(id)
	assert.Equal(t, id, n.Affinity())
	assert.Equal(t, uint16(1), id.Owner())
	assert.Equal(t, uint16(2), id.Local())
}

func TestNode_NameCap(t *testing.T) {
	long := make([]byte, 100)
	for i := range long {
		long[i] = 'x'
	}
	n := NewNode(string(long))
	assert.Len(t, n.Name(), 64)
}
