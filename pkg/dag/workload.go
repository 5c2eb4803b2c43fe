package dag

// WorkloadContext is handed to a workload when it executes. It carries
// enough of the surrounding machinery for the workload to inspect the
// graph or re-enter the scheduler, e.g. to fan work out onto the same
// worker pool it is running on.
type WorkloadContext struct {
	// Node is the node being executed.
	Node *Node
	// Schedule is the execution this node belongs to.
	Schedule Schedule
	// Resource is the compute resource running the workload.
	Resource ComputeResource
	// Scheduler owns the node and built the schedule.
	Scheduler MacroScheduler
	// WorkerIndex identifies the pool worker executing the workload.
	WorkerIndex int
}

// Workload is a unit of work a node carries for one compute-resource kind.
type Workload interface {
	// Type returns the workload's compute-resource tag.
	Type() WorkloadType
	// Execute runs the workload.
	Execute(ctx *WorkloadContext)
}

// FuncWorkload wraps a function as a workload; captured variables play the
// role of stored arguments.
type FuncWorkload struct {
	workloadType WorkloadType
	fn           func(ctx *WorkloadContext)
}

// NewFuncWorkload creates a workload from a function.
func NewFuncWorkload(t WorkloadType, fn func(ctx *WorkloadContext)) *FuncWorkload {
	return &FuncWorkload{workloadType: t, fn: fn}
}

// NewMicroSchedulerWorkload creates a function workload tagged for the
// micro-scheduler compute resource, the common case.
func NewMicroSchedulerWorkload(fn func(ctx *WorkloadContext)) *FuncWorkload {
	return NewFuncWorkload(WorkloadTypeMicroScheduler, fn)
}

// Type implements Workload.
func (w *FuncWorkload) Type() WorkloadType {
	return w.workloadType
}

// Execute implements Workload.
func (w *FuncWorkload) Execute(ctx *WorkloadContext) {
	w.fn(ctx)
}
