package report

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskgraph/internal/repository"
	"github.com/taskgraph/pkg/config"
)

func TestLocalStore_RoundTrip(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	const key = "runs/dynamic/run-1.json"

	ok, err := store.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Put(ctx, key, strings.NewReader("{\"run\":1}")))

	ok, err = store.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	rc, err := store.Get(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	rc.Close()
	assert.Equal(t, "{\"run\":1}", string(data))

	require.NoError(t, store.Delete(ctx, key))
	ok, err = store.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	// Deleting a missing key is not an error.
	assert.NoError(t, store.Delete(ctx, key))
}

func TestNewStore_Factory(t *testing.T) {
	t.Run("LocalDefault", func(t *testing.T) {
		s, err := NewStore(&config.ReportConfig{Type: "local", LocalPath: t.TempDir()})
		require.NoError(t, err)
		assert.IsType(t, &LocalStore{}, s)
	})

	t.Run("COSRequiresCredentials", func(t *testing.T) {
		_, err := NewStore(&config.ReportConfig{Type: "cos", Bucket: "b", Region: "r"})
		assert.Error(t, err)
	})

	t.Run("Unsupported", func(t *testing.T) {
		_, err := NewStore(&config.ReportConfig{Type: "s3"})
		assert.Error(t, err)
	})
}

func TestExporter_Export(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	exp := NewExporter(store)

	rep := &RunReport{
		Run: &repository.ScheduleRun{ID: 7, Policy: "critical_node", NumNodes: 12},
		NodeCosts: []*repository.NodeCost{
			{RunID: 7, NodeName: "crit0", CostTicks: 4000},
		},
	}

	key, err := exp.Export(context.Background(), rep)
	require.NoError(t, err)
	assert.Equal(t, "runs/critical_node/run-7.json", key)

	rc, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	rc.Close()
	assert.Contains(t, string(data), "\"crit0\"")
	assert.Contains(t, string(data), "\"critical_node\"")
}
