package dag

// Schedule is the state of one execution of a graph: ready-node storage,
// the done flag, and a reference count held by the resources draining it.
// Each scheduling policy provides its own implementation.
type Schedule interface {
	// Source returns the schedule's entry node.
	Source() *Node
	// Sink returns the schedule's exit node.
	Sink() *Node

	// InsertReadyNode makes a node available to compute resources.
	InsertReadyNode(n *Node)
	// PopNextNode returns the next node the resource should run, or nil.
	PopNextNode(r ComputeResource) *Node

	// TryMarkDone marks the schedule done if n is the sink. Returns
	// whether the done flag flipped.
	TryMarkDone(n *Node) bool
	// IsDone reports whether the sink has completed.
	IsDone() bool
	// ResetDone rearms the schedule for another execution.
	ResetDone()

	// Ref and Unref track resources currently working on the schedule.
	Ref()
	Unref()
	// Refs returns the current reference count.
	Refs() int64

	// ObserveExecutionCost records a node cost seen by a resource, feeding
	// heterogeneity-aware policies.
	ObserveExecutionCost(id ResourceID, cost uint64)
}

// ComputeResource is an execution back-end: a pool of workers that can run
// certain workload kinds.
type ComputeResource interface {
	// ID returns the globally unique resource id.
	ID() ResourceID
	// Type returns the workload kind this resource executes.
	Type() WorkloadType
	// CanExecute reports whether the node carries a workload this resource
	// can run.
	CanExecute(n *Node) bool
	// ProcessorCount returns the number of workers.
	ProcessorCount() int

	// Process drains ready nodes from the schedule. With canBlock the call
	// returns only when the schedule is done; otherwise it arranges for
	// idle workers to pull from the schedule and returns immediately.
	Process(s Schedule, canBlock bool)
	// Notify wakes the resource's workers to look at the schedule.
	Notify(s Schedule)

	// RegisterSchedule and UnregisterSchedule bracket a schedule's
	// lifetime on this resource.
	RegisterSchedule(s Schedule)
	UnregisterSchedule(s Schedule)

	// ReceiveAffinitizedNode accepts a node pinned to this resource and
	// runs it without going through the schedule's ready storage.
	ReceiveAffinitizedNode(s Schedule, n *Node)

	// SetExecutionNormalizationFactor records the resource's relative
	// slowness: 1.0 is the reference, larger is slower.
	SetExecutionNormalizationFactor(f float64)
	// ExecutionNormalizationFactor returns the configured factor.
	ExecutionNormalizationFactor() float64

	// SetMaxRank and MaxRank expose the resource's position in a ranked
	// schedule's queue array: the lowest queue index this resource serves.
	SetMaxRank(rank int)
	MaxRank() int
}

// MacroScheduler owns a graph's nodes and turns (source, sink) pairs into
// executable schedules under one policy.
type MacroScheduler interface {
	// AllocateNode creates a node owned by this scheduler.
	AllocateNode(name string) *Node
	// DestroyNode releases a node after its last schedule is freed.
	DestroyNode(n *Node)

	// BuildSchedule constructs a schedule for the graph between source and
	// sink and registers it with every compute resource.
	BuildSchedule(source, sink *Node) Schedule
	// ExecuteSchedule runs the schedule to completion. The caller's
	// resource participates with its own thread. An unknown caller id is
	// an InvalidArgument error.
	ExecuteSchedule(s Schedule, caller ResourceID) error
	// FreeSchedule waits for the schedule to drain and destroys it.
	FreeSchedule(s Schedule)

	// ComputeResources returns the resources the scheduler dispatches to,
	// sorted by ascending normalization factor (fastest first).
	ComputeResources() []ComputeResource
}
