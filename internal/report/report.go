// Package report exports schedule run reports to object storage: a JSON
// document per run, written either to the local filesystem or to Tencent
// Cloud COS.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/taskgraph/internal/repository"
	"github.com/taskgraph/pkg/config"
)

// Store is the storage backend a report exporter writes through.
type Store interface {
	// Put uploads data under the given key.
	Put(ctx context.Context, key string, reader io.Reader) error

	// Get downloads the object at the given key.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists checks whether an object exists at the given key.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes the object at the given key.
	Delete(ctx context.Context, key string) error

	// URL returns the object's URL, when the backend has one.
	URL(key string) string
}

// StoreType represents the storage backend kind.
type StoreType string

const (
	StoreTypeLocal StoreType = "local"
	StoreTypeCOS   StoreType = "cos"
)

// NewStore creates a storage backend from configuration.
func NewStore(cfg *config.ReportConfig) (Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("report config is nil")
	}
	switch StoreType(cfg.Type) {
	case StoreTypeLocal, "":
		return NewLocalStore(cfg.LocalPath)
	case StoreTypeCOS:
		return NewCOSStore(cfg)
	default:
		return nil, fmt.Errorf("unsupported report storage type: %s", cfg.Type)
	}
}

// RunReport is the document exported for one schedule run.
type RunReport struct {
	Run       *repository.ScheduleRun `json:"run"`
	NodeCosts []*repository.NodeCost  `json:"node_costs,omitempty"`
	Exported  time.Time               `json:"exported"`
}

// Exporter writes run reports through a storage backend.
type Exporter struct {
	store Store
}

// NewExporter creates an exporter over the given backend.
func NewExporter(store Store) *Exporter {
	return &Exporter{store: store}
}

// Export serializes the report and uploads it. Returns the object key.
func (e *Exporter) Export(ctx context.Context, rep *RunReport) (string, error) {
	rep.Exported = time.Now().UTC()

	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal run report: %w", err)
	}

	key := fmt.Sprintf("runs/%s/run-%d.json", rep.Run.Policy, rep.Run.ID)
	if err := e.store.Put(ctx, key, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("failed to upload run report: %w", err)
	}
	return key, nil
}
