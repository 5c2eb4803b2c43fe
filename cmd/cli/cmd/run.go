package cmd

import (
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskgraph/internal/micro"
	"github.com/taskgraph/internal/report"
	"github.com/taskgraph/internal/repository"
	"github.com/taskgraph/internal/sched"
	"github.com/taskgraph/pkg/config"
	"github.com/taskgraph/pkg/dag"
	"github.com/taskgraph/pkg/utils"
)

var (
	runPolicy     string
	runGraph      string
	runRanks      int
	runWidth      int
	runEdgeProb   float64
	runIterations int
	runSeed       int64
	runRecord     bool
	runExport     bool
	runSpinMicros int
)

// runCmd executes a task graph under a scheduling policy.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a task graph under a scheduling policy",
	Long: `Build a task graph, execute it for the configured number of
iterations under the selected policy, and optionally record the run to the
history database and export a report.

Graph shapes:
  diamond   the four-node quick-start graph
  chain     a serial chain of --ranks nodes
  layered   --ranks layers of --width nodes with --edge-prob connectivity`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runPolicy, "policy", "", "Scheduling policy (overrides config)")
	runCmd.Flags().StringVar(&runGraph, "graph", "layered", "Graph shape: diamond, chain, layered")
	runCmd.Flags().IntVar(&runRanks, "ranks", 20, "Number of layers (or chain length)")
	runCmd.Flags().IntVar(&runWidth, "width", 6, "Nodes per layer for layered graphs")
	runCmd.Flags().Float64Var(&runEdgeProb, "edge-prob", 0.5, "Edge probability between adjacent layers")
	runCmd.Flags().IntVar(&runIterations, "iterations", 0, "Execution iterations (overrides config)")
	runCmd.Flags().Int64Var(&runSeed, "seed", 1, "Random seed for layered graphs")
	runCmd.Flags().BoolVar(&runRecord, "record", false, "Record the run to the history database")
	runCmd.Flags().BoolVar(&runExport, "export", false, "Export a run report to report storage")
	runCmd.Flags().IntVar(&runSpinMicros, "spin", 50, "Busy work per node in microseconds")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	policy := cfg.Scheduler.Policy
	if runPolicy != "" {
		policy = runPolicy
	}
	iterations := cfg.Scheduler.Iterations
	if runIterations > 0 {
		iterations = runIterations
	}
	if iterations < 1 {
		iterations = 1
	}

	resources, cleanup := buildResources()
	defer cleanup()

	scheduler, err := buildScheduler(policy, resources)
	if err != nil {
		return err
	}

	source, sink, numNodes, numEdges := buildGraph(scheduler)
	logger.Info("Executing %s graph (%d nodes, %d edges) under %s with %d resources",
		runGraph, numNodes, numEdges, policy, len(resources))

	schedule := scheduler.BuildSchedule(source, sink)
	timer := utils.NewTimer("run")

	pt := timer.Start("execute")
	for i := 0; i < iterations; i++ {
		if err := scheduler.ExecuteSchedule(schedule, resources[0].ID()); err != nil {
			return err
		}
	}
	makespan := pt.Stop()

	scheduler.FreeSchedule(schedule)

	logger.Info("Completed %d iterations in %v (%v per iteration)",
		iterations, makespan, makespan/time.Duration(iterations))
	fmt.Println(timer.Summary())

	if !runRecord && !runExport {
		return nil
	}

	run := &repository.ScheduleRun{
		Policy:         policy,
		NumNodes:       numNodes,
		NumEdges:       numEdges,
		NumResources:   len(resources),
		Iterations:     iterations,
		MakespanMicros: makespan.Microseconds(),
	}

	if runRecord {
		db, err := repository.NewGormDB(&cfg.Database)
		if err != nil {
			return err
		}
		repos, err := repository.NewRepositories(db)
		if err != nil {
			return err
		}
		defer repos.Close()

		if err := repos.Runs.SaveRun(cmd.Context(), run); err != nil {
			return err
		}
		logger.Info("Recorded run %d to %s history", run.ID, cfg.Database.Type)
	}

	if runExport {
		store, err := report.NewStore(&cfg.Report)
		if err != nil {
			return err
		}
		key, err := report.NewExporter(store).Export(cmd.Context(), &report.RunReport{Run: run})
		if err != nil {
			return err
		}
		logger.Info("Exported run report to %s", store.URL(key))
	}

	return nil
}

// buildResources creates the compute resources from configuration; a
// single reference resource when none are configured.
func buildResources() ([]dag.ComputeResource, func()) {
	resCfgs := cfg.Scheduler.Resources
	if len(resCfgs) == 0 {
		resCfgs = []config.ResourceConfig{{Workers: 4, NormalizationFactor: 1.0}}
	}

	resources := make([]dag.ComputeResource, len(resCfgs))
	micros := make([]*micro.Resource, len(resCfgs))
	for i, rc := range resCfgs {
		r := micro.NewResource(micro.ResourceConfig{
			ID:                  dag.MakeResourceID(0, uint16(i)),
			Workers:             rc.Workers,
			NormalizationFactor: rc.NormalizationFactor,
			Logger:              logger,
		})
		resources[i] = r
		micros[i] = r
	}
	return resources, func() {
		for _, r := range micros {
			r.Shutdown()
		}
	}
}

func buildScheduler(policy string, resources []dag.ComputeResource) (dag.MacroScheduler, error) {
	scfg := sched.Config{Resources: resources, Logger: logger}
	switch policy {
	case "central_queue":
		if s := sched.NewCentralQueueScheduler(scfg); s != nil {
			return s, nil
		}
	case "dynamic":
		if s := sched.NewDynamicScheduler(scfg); s != nil {
			return s, nil
		}
	case "critical_node":
		if s := sched.NewCriticalNodeScheduler(scfg); s != nil {
			return s, nil
		}
	default:
		return nil, fmt.Errorf("unknown scheduling policy: %s", policy)
	}
	return nil, fmt.Errorf("scheduler init failed for policy %s", policy)
}

// buildGraph constructs the requested graph shape and returns its source,
// sink, and size.
func buildGraph(s dag.MacroScheduler) (source, sink *dag.Node, numNodes, numEdges int) {
	spin := time.Duration(runSpinMicros) * time.Microsecond
	work := func(ctx *dag.WorkloadContext) {
		end := time.Now().Add(spin)
		var sink64 atomic.Int64
		for time.Now().Before(end) {
			sink64.Add(1)
		}
	}

	addNode := func(name string) *dag.Node {
		n := s.AllocateNode(name)
		n.AddWorkload(dag.NewMicroSchedulerWorkload(work))
		numNodes++
		return n
	}
	link := func(a, b *dag.Node) {
		a.AddSuccessor(b)
		numEdges++
	}

	switch runGraph {
	case "diamond":
		a, b, c, d := addNode("A"), addNode("B"), addNode("C"), addNode("D")
		link(a, b)
		link(a, c)
		link(b, d)
		link(c, d)
		return a, d, numNodes, numEdges

	case "chain":
		first := addNode("n0")
		prev := first
		for i := 1; i < runRanks; i++ {
			n := addNode(fmt.Sprintf("n%d", i))
			link(prev, n)
			prev = n
		}
		return first, prev, numNodes, numEdges

	default: // layered
		rng := rand.New(rand.NewSource(runSeed))
		source = addNode("source")
		sink = addNode("sink")
		all := []*dag.Node{}
		prev := []*dag.Node{source}
		for rank := 0; rank < runRanks; rank++ {
			level := make([]*dag.Node, runWidth)
			for i := range level {
				n := addNode(fmt.Sprintf("r%d_%d", rank, i))
				level[i] = n
				all = append(all, n)
				linked := false
				for _, p := range prev {
					if rng.Float64() < runEdgeProb {
						link(p, n)
						linked = true
					}
				}
				if !linked {
					link(prev[rng.Intn(len(prev))], n)
				}
			}
			prev = level
		}
		// Terminal nodes all feed the sink so it completes last.
		for _, n := range all {
			if len(n.Successors()) == 0 {
				link(n, sink)
			}
		}
		return source, sink, numNodes, numEdges
	}
}
