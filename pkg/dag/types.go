// Package dag defines the persistent task-graph data model: nodes, their
// dependency edges, the workloads they carry, and the interfaces the
// schedule and compute-resource layers implement on top of them.
package dag

// ResourceID identifies a compute resource. The high half is the owner
// sub-id (the scheduler that created the resource), the low half the local
// sub-id within that owner.
type ResourceID uint32

// AnyResource is the affinity value of a node that may run anywhere.
const AnyResource ResourceID = ^ResourceID(0)

// MakeResourceID composes a resource id from its owner and local sub-ids.
func MakeResourceID(owner, local uint16) ResourceID {
	return ResourceID(uint32(owner)<<16 | uint32(local))
}

// Owner returns the owner sub-id.
func (id ResourceID) Owner() uint16 {
	return uint16(id >> 16)
}

// Local returns the local sub-id.
func (id ResourceID) Local() uint16 {
	return uint16(id)
}

// Valid reports whether the id names a concrete resource.
func (id ResourceID) Valid() bool {
	return id != AnyResource
}

// WorkloadType tags a workload with the kind of compute resource that can
// run it. A node carries at most one workload per type.
type WorkloadType uint32

const (
	// WorkloadTypeMicroScheduler marks workloads run by the micro-scheduler
	// compute resource.
	WorkloadTypeMicroScheduler WorkloadType = iota
	// WorkloadTypeCustom is the first tag available to user-defined
	// resources.
	WorkloadTypeCustom
)

// NumWorkloadTypes bounds the per-node workload table.
const NumWorkloadTypes = 8
