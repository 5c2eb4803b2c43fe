package cmd

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/taskgraph/pkg/config"
	"github.com/taskgraph/pkg/pprof"
	"github.com/taskgraph/pkg/telemetry"
	"github.com/taskgraph/pkg/utils"
)

var (
	// Global flags
	verbose    bool
	configPath string
	trace      bool

	// Pprof flags
	pprofEnabled  bool
	pprofDir      string
	pprofProfiles string

	logger utils.Logger
	cfg    *config.Config

	telemetryShutdown telemetry.ShutdownFunc
	pprofCollector    *pprof.Collector
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "taskgraph",
	Short: "A two-level parallel task scheduler for heterogeneous CPUs",
	Long: `taskgraph executes persistent task graphs on pools of worker threads.

Graphs are scheduled under one of three policies: central_queue shares one
ready queue across homogeneous resources, dynamic delegates successor
propagation to the work-stealing layer, and critical_node steers the
critical path onto the fastest resources using observed execution costs.
Run history is recorded to a database and reports can be exported to
object storage.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logLevel := utils.LevelInfo
		if verbose {
			logLevel = utils.LevelDebug
		}
		logger = utils.NewDefaultLogger(logLevel, os.Stdout)
		utils.SetGlobalLogger(logger)

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}

		if trace {
			telemetry.SetCaptureMask(telemetry.ChannelAll)
		}
		telemetryShutdown, err = telemetry.Init(cmd.Context())
		if err != nil {
			logger.Warn("Failed to initialize telemetry: %v", err)
			telemetryShutdown = nil
		}

		if pprofEnabled {
			pcfg, err := buildPprofConfig()
			if err != nil {
				return err
			}
			collector, err := pprof.NewCollector(pcfg)
			if err != nil {
				return err
			}
			if err := collector.Start(); err != nil {
				return err
			}
			pprofCollector = collector
			logger.Info("pprof collection started (dir: %s)", pcfg.OutputDir)
		}

		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if pprofCollector != nil {
			if err := pprofCollector.Stop(); err != nil {
				logger.Warn("Failed to stop pprof collector: %v", err)
			}
			logger.Info("pprof data saved to: %s", pprofCollector.Writer().GetOutputDir())
		}
		if telemetryShutdown != nil {
			return telemetryShutdown(context.Background())
		}
		return nil
	},
}

// buildPprofConfig builds pprof configuration from command line flags.
func buildPprofConfig() (*pprof.Config, error) {
	pcfg := pprof.DefaultConfig()
	pcfg.Enabled = true
	pcfg.Mode = pprof.ModeFile
	pcfg.OutputDir = pprofDir

	profiles, err := pprof.ParseProfileTypes(pprofProfiles)
	if err != nil {
		return nil, err
	}
	pcfg.Profiles = profiles

	if err := pcfg.Validate(); err != nil {
		return nil, err
	}
	return pcfg, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	rootCmd.PersistentFlags().BoolVar(&trace, "trace", false, "Enable all capture channels for tracing")

	rootCmd.PersistentFlags().BoolVar(&pprofEnabled, "pprof", false, "Enable pprof performance profiling")
	rootCmd.PersistentFlags().StringVar(&pprofDir, "pprof-dir", "./pprof", "Output directory for pprof data")
	rootCmd.PersistentFlags().StringVar(&pprofProfiles, "pprof-profiles", "cpu,heap,goroutine", "Comma-separated profile types: cpu,heap,goroutine,block,mutex,allocs")

	binName := BinName()
	rootCmd.Example = `  # Run a generated graph under the critical-node policy
  ` + binName + ` run --policy critical_node --ranks 20 --width 6 --iterations 10

  # Run the quick-start diamond graph
  ` + binName + ` run --graph diamond

  # Benchmark the binned allocator
  ` + binName + ` bench --ops 1000000 --goroutines 8`
}

// GetLogger returns the configured logger
func GetLogger() utils.Logger {
	return logger
}

// BinName returns the base name of the current executable
func BinName() string {
	return filepath.Base(os.Args[0])
}
