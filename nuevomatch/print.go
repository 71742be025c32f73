package nuevomatch

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
)

// Print renders a one-table summary of the classifier's subsets to w;
// with verbose set it adds a second table of per-worker performance
// counters, the table-formatted analogue of spec.md's print(verbose)
// operation.
func (c *ClassifierContainer) Print(w io.Writer, verbose bool) {
	fmt.Fprintf(w, "rules=%d size=%d build_time_ms=%d\n", c.numRules, c.sizeBytes, c.buildTimeMs)

	subsets := tablewriter.NewWriter(w)
	subsets.SetHeader([]string{"worker", "kind", "detail", "size_bytes"})
	for _, is := range c.isets {
		if is == nil {
			continue
		}
		subsets.Append([]string{"-", "iset", "field=" + strconv.Itoa(int(is.FieldIndex())), strconv.Itoa(int(is.SizeBytes()))})
	}
	if c.remainder != nil {
		subsets.Append([]string{"-", "remainder", c.remainder.Type().String(), strconv.Itoa(c.remainder.Size())})
	}
	subsets.Render()

	if !verbose {
		return
	}

	stats := tablewriter.NewWriter(w)
	stats.SetHeader([]string{"worker", "jobs", "throughput/us", "utilization", "backpressure/us", "avg_work_us"})
	for _, wk := range c.workers {
		snap := wk.Stats().Snapshot()
		stats.Append([]string{
			strconv.Itoa(wk.Index()),
			strconv.FormatUint(snap.Jobs, 10),
			strconv.FormatFloat(snap.ThroughputPerUs, 'f', 3, 64),
			strconv.FormatFloat(snap.UtilizationFraction, 'f', 3, 64),
			strconv.FormatFloat(snap.BackpressurePerUs, 'f', 3, 64),
			strconv.FormatFloat(snap.AvgWorkUs, 'f', 3, 64),
		})
	}
	stats.Render()
}
