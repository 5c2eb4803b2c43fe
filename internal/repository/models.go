package repository

import "time"

// ScheduleRun is one executed schedule, as stored in the run-history
// database.
type ScheduleRun struct {
	ID             int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Policy         string    `gorm:"column:policy;size:32;index" json:"policy"`
	NumNodes       int       `gorm:"column:num_nodes" json:"num_nodes"`
	NumEdges       int       `gorm:"column:num_edges" json:"num_edges"`
	NumResources   int       `gorm:"column:num_resources" json:"num_resources"`
	Iterations     int       `gorm:"column:iterations" json:"iterations"`
	MakespanMicros int64     `gorm:"column:makespan_micros" json:"makespan_micros"`
	CommittedBytes uint64    `gorm:"column:committed_bytes" json:"committed_bytes"`
	ReservedBytes  uint64    `gorm:"column:reserved_bytes" json:"reserved_bytes"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// TableName overrides the GORM table name.
func (ScheduleRun) TableName() string {
	return "schedule_run"
}

// NodeCost is the execution cost one node settled at during a run.
type NodeCost struct {
	ID        int64  `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	RunID     int64  `gorm:"column:run_id;index" json:"run_id"`
	NodeName  string `gorm:"column:node_name;size:64" json:"node_name"`
	CostTicks uint64 `gorm:"column:cost_ticks" json:"cost_ticks"`
	Resource  uint32 `gorm:"column:resource" json:"resource"`
}

// TableName overrides the GORM table name.
func (NodeCost) TableName() string {
	return "node_cost"
}
