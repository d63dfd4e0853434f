package cli

import (
	"fmt"
	"slices"

	"github.com/raphaelgruber/chatsync-go/internal/metrics"
)

// printClientStats displays the in-memory client statistics.
func printClientStats(c *metrics.Collector) {
	snap := c.Snapshot()

	fmt.Printf("Client Statistics (in-memory, this run)\n")
	fmt.Printf("═══════════════════════════════════════════════\n")
	fmt.Printf("Uptime: %.1f seconds\n", snap.UptimeSeconds)

	for _, op := range snap.Operations {
		fmt.Printf("\n%s:\n", op.Name)
		printOpStats(op)
		printTokenStats(op)
	}

	if len(snap.Events) == 0 {
		return
	}

	names := make([]string, 0, len(snap.Events))
	for name := range snap.Events {
		names = append(names, name)
	}
	slices.Sort(names)

	fmt.Printf("\nEvents:\n")
	fmt.Printf("  %-24s %8s %8s %8s %8s\n", "", "recv", "applied", "dropped", "ignored")
	for _, name := range names {
		e := snap.Events[name]
		fmt.Printf("  %-24s %8d %8d %8d %8d\n", name, e.Received, e.Applied, e.Dropped, e.Ignored)
	}
}

// printOpStats displays timing statistics for an operation.
func printOpStats(op metrics.OperationSnapshot) {
	fmt.Printf("  Calls: %d, Errors: %d, Total: %dms\n", op.Count, op.Errors, op.TotalTimeMs)
	fmt.Printf("  Time: avg %.1fms, min %dms, max %dms\n",
		op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
}

// printTokenStats displays token statistics if available.
func printTokenStats(op metrics.OperationSnapshot) {
	if op.TotalInputTokens == nil || op.TotalOutputTokens == nil {
		return
	}
	fmt.Printf("  Tokens In:  %d total, avg %.0f\n",
		*op.TotalInputTokens, float64(*op.TotalInputTokens)/float64(op.Count))
	fmt.Printf("  Tokens Out: %d total, avg %.0f\n",
		*op.TotalOutputTokens, float64(*op.TotalOutputTokens)/float64(op.Count))
}
