package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromReader_Defaults(t *testing.T) {
	cfg, err := LoadFromReader("yaml", []byte(""))
	require.NoError(t, err)

	assert.Equal(t, "central_queue", cfg.Scheduler.Policy)
	assert.Equal(t, 1, cfg.Scheduler.Iterations)
	assert.Equal(t, 4, cfg.Allocator.SlabSizeMiB)
	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, "local", cfg.Report.Type)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFromReader_FullConfig(t *testing.T) {
	content := []byte(`
scheduler:
  policy: critical_node
  iterations: 5
  resources:
    - workers: 4
      normalization_factor: 1.0
    - workers: 2
      normalization_factor: 2.0
allocator:
  slab_size_mib: 8
database:
  type: postgres
  host: db.internal
  port: 5432
  database: taskgraph
  user: sched
  password: secret
report:
  type: cos
  bucket: runs-1250000000
  region: ap-guangzhou
log:
  level: debug
`)

	cfg, err := LoadFromReader("yaml", content)
	require.NoError(t, err)

	assert.Equal(t, "critical_node", cfg.Scheduler.Policy)
	assert.Equal(t, 5, cfg.Scheduler.Iterations)
	require.Len(t, cfg.Scheduler.Resources, 2)
	assert.Equal(t, 4, cfg.Scheduler.Resources[0].Workers)
	assert.Equal(t, 2.0, cfg.Scheduler.Resources[1].NormalizationFactor)
	assert.Equal(t, 8, cfg.Allocator.SlabSizeMiB)
	assert.Equal(t, "postgres", cfg.Database.Type)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "cos", cfg.Report.Type)
	assert.Equal(t, "debug", cfg.Log.Level)

	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := LoadFromReader("yaml", []byte(""))
		require.NoError(t, err)
		return cfg
	}

	t.Run("UnknownPolicy", func(t *testing.T) {
		cfg := base()
		cfg.Scheduler.Policy = "fifo"
		assert.Error(t, cfg.Validate())
	})

	t.Run("BadWorkerCount", func(t *testing.T) {
		cfg := base()
		cfg.Scheduler.Resources = []ResourceConfig{{Workers: 0}}
		assert.Error(t, cfg.Validate())
	})

	t.Run("BadSlabSize", func(t *testing.T) {
		cfg := base()
		cfg.Allocator.SlabSizeMiB = 3
		assert.Error(t, cfg.Validate())
	})

	t.Run("MissingDatabaseHost", func(t *testing.T) {
		cfg := base()
		cfg.Database.Type = "mysql"
		cfg.Database.Host = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("Valid", func(t *testing.T) {
		assert.NoError(t, base().Validate())
	})
}
