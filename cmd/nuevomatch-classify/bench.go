package main

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/spf13/cobra"

	"github.com/theojepsen/nuevomatch/nmtype"
)

func newBenchCmd(flags *globalFlags) *cobra.Command {
	var count int
	var seed int64

	cmd := &cobra.Command{
		Use:   "bench <blob>",
		Short: "Benchmark classification throughput against synthetic headers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench(args[0], count, seed, flags)
		},
	}
	cmd.Flags().IntVar(&count, "count", 100000, "number of synthetic headers to classify")
	cmd.Flags().Int64Var(&seed, "seed", 1, "PRNG seed for synthetic header generation")
	return cmd
}

func runBench(blobPath string, count int, seed int64, flags *globalFlags) error {
	c, cleanup, err := loadContainer(blobPath, flags)
	if err != nil {
		return err
	}
	defer cleanup()

	rng := rand.New(rand.NewSource(seed))
	headers := make([]nmtype.PacketHeader, count)
	for i := range headers {
		headers[i] = nmtype.PacketHeader{
			rng.Uint32(), rng.Uint32(),
			uint32(rng.Intn(65536)), uint32(rng.Intn(65536)),
			uint32(rng.Intn(256)), uint32(rng.Intn(256)),
		}
	}

	c.ResetCounters()
	c.StartPerformanceMeasurement()
	start := time.Now()
	matched := 0
	for i := range headers {
		if c.Classify(&headers[i]).IsMatch() {
			matched++
		}
	}
	elapsed := time.Since(start)
	c.StopPerformanceMeasurement()

	fmt.Printf("classified=%d matched=%d elapsed=%s throughput=%.0f pkt/s\n",
		count, matched, elapsed, float64(count)/elapsed.Seconds())

	maybePrintStats(c, flags)
	return nil
}
