package cmd

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/spf13/cobra"

	"github.com/taskgraph/pkg/binned"
	"github.com/taskgraph/pkg/memstore"
	"github.com/taskgraph/pkg/utils"
)

var (
	benchOps        int
	benchGoroutines int
	benchMaxSize    int
	benchLive       int
)

// benchCmd exercises the binned allocator and prints throughput numbers.
var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Benchmark the binned allocator",
	Long: `Run an allocation workload against the binned allocator: each
goroutine owns one allocator over a shared memory store and churns through
randomly sized blocks, keeping a bounded live set so pages cycle through
commit and decommit.`,
	RunE: runBench,
}

func init() {
	benchCmd.Flags().IntVar(&benchOps, "ops", 1_000_000, "Allocations per goroutine")
	benchCmd.Flags().IntVar(&benchGoroutines, "goroutines", 4, "Concurrent goroutines")
	benchCmd.Flags().IntVar(&benchMaxSize, "max-size", 32<<10, "Maximum allocation size in bytes")
	benchCmd.Flags().IntVar(&benchLive, "live", 256, "Live blocks kept per goroutine")

	rootCmd.AddCommand(benchCmd)
}

func runBench(cmd *cobra.Command, args []string) error {
	store := memstore.NewStore(memstore.StoreConfig{
		SlabSize: uintptr(cfg.Allocator.SlabSizeMiB) << 20,
		Logger:   logger,
	})

	logger.Info("Benchmarking: %d goroutines x %d ops, sizes up to %d bytes",
		benchGoroutines, benchOps, benchMaxSize)

	timer := utils.NewTimer("bench")
	pt := timer.Start("churn")

	var wg sync.WaitGroup
	for g := 0; g < benchGoroutines; g++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			a := binned.NewAllocator(store, logger)
			defer a.Shutdown()

			live := make([][]byte, 0, benchLive)
			for i := 0; i < benchOps; i++ {
				size := uintptr(1 + rng.Intn(benchMaxSize))
				b := a.Alloc(size)
				if b == nil {
					logger.Error("allocation of %d bytes failed", size)
					return
				}
				b[0] = byte(i)

				if len(live) < benchLive {
					live = append(live, b)
					continue
				}
				victim := rng.Intn(len(live))
				a.Free(live[victim])
				live[victim] = b
			}
			for _, b := range live {
				a.Free(b)
			}
		}(int64(g) + 1)
	}
	wg.Wait()
	elapsed := pt.Stop()

	totalOps := int64(benchOps) * int64(benchGoroutines)
	fmt.Printf("ops:        %d\n", totalOps)
	fmt.Printf("elapsed:    %v\n", elapsed)
	fmt.Printf("ops/sec:    %.0f\n", float64(totalOps)/elapsed.Seconds())
	fmt.Printf("reserved:   %d MiB\n", store.ReservedBytes()>>20)
	fmt.Printf("committed:  %d MiB\n", store.CommittedBytes()>>20)

	store.Shutdown()
	return nil
}
