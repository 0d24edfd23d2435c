// Package report formats recorded measurements into per-operation summary
// tables.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/weiihann/ddlbench/engine"
	"github.com/weiihann/ddlbench/harness"
	"github.com/weiihann/ddlbench/workload"
)

// Run is the input of a report: the measurements of one run on one engine.
type Run struct {
	RunID        string                `json:"run_id"`
	System       engine.System         `json:"system"`
	LogSizeBytes uint64                `json:"log_size_bytes,omitempty"`
	Measurements []harness.Measurement `json:"measurements"`
}

// Stat aggregates the measurements of one operation at one granularity.
type Stat struct {
	Granularity workload.Granularity `json:"granularity"`
	Operation   workload.Operation   `json:"operation"`
	Count       int                  `json:"count"`
	Total       time.Duration        `json:"total_ns"`
	Fastest     time.Duration        `json:"fastest_ns"`
	Slowest     time.Duration        `json:"slowest_ns"`
}

// Mean returns the average duration.
func (s Stat) Mean() time.Duration {
	if s.Count == 0 {
		return 0
	}

	return s.Total / time.Duration(s.Count)
}

// operationOrder is the order operations appear in a phase.
var operationOrder = []workload.Operation{
	workload.OpCreate,
	workload.OpDrop,
	workload.OpAlter,
	workload.OpComment,
	workload.OpShow,
	workload.OpInspect,
}

// Summarize groups measurements by granularity and operation, ordered by
// ascending granularity and then by phase order.
func Summarize(measurements []harness.Measurement) []Stat {
	type key struct {
		g  workload.Granularity
		op workload.Operation
	}

	index := make(map[key]int)

	var stats []Stat

	for _, m := range measurements {
		k := key{m.Granularity, m.Operation}

		i, ok := index[k]
		if !ok {
			i = len(stats)
			index[k] = i
			stats = append(stats, Stat{
				Granularity: m.Granularity,
				Operation:   m.Operation,
				Fastest:     m.Elapsed,
				Slowest:     m.Elapsed,
			})
		}

		s := &stats[i]
		s.Count++
		s.Total += m.Elapsed
		s.Fastest = min(s.Fastest, m.Elapsed)
		s.Slowest = max(s.Slowest, m.Elapsed)
	}

	slices.SortStableFunc(stats, func(a, b Stat) int {
		if a.Granularity != b.Granularity {
			return int(a.Granularity - b.Granularity)
		}

		return operationRank(a.Operation) - operationRank(b.Operation)
	})

	return stats
}

func operationRank(op workload.Operation) int {
	if i := slices.Index(operationOrder, op); i >= 0 {
		return i
	}

	return len(operationOrder)
}

// Generate writes a markdown summary table for run.
func Generate(w io.Writer, run Run) error {
	if len(run.Measurements) == 0 {
		return fmt.Errorf("no measurements to report")
	}

	stats := Summarize(run.Measurements)

	var engineTime time.Duration
	for _, s := range stats {
		engineTime += s.Total
	}

	// Header.
	fmt.Fprintf(w, "## DDL Benchmark Results: %s\n", run.System)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Run: `%s`\n", run.RunID)
	fmt.Fprintf(w, "Measurements: %d, engine time: %s, log size: %s\n",
		len(run.Measurements),
		formatDuration(engineTime),
		formatBytes(run.LogSizeBytes),
	)
	fmt.Fprintln(w)

	// Table header.
	fmt.Fprintln(w, "| Granularity | Operation | Count | Total "+
		"| Mean | Fastest | Slowest |")
	fmt.Fprintln(w, "|-------------|-----------|-------|-------"+
		"|------|---------|---------|")

	for _, s := range stats {
		fmt.Fprintf(w, "| %d | %s | %d | %s | %s | %s | %s |\n",
			s.Granularity,
			s.Operation,
			s.Count,
			formatDuration(s.Total),
			formatDuration(s.Mean()),
			formatDuration(s.Fastest),
			formatDuration(s.Slowest),
		)
	}

	return nil
}

// GenerateJSON writes run, its recorded rows included, as JSON to w.
func GenerateJSON(w io.Writer, run Run) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(struct {
		Run
		Stats []Stat `json:"stats"`
	}{run, Summarize(run.Measurements)})
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%.2fms", float64(d)/float64(time.Millisecond))
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}

func formatBytes(b uint64) string {
	if b == 0 {
		return "-"
	}

	units := []string{"B", "KB", "MB", "GB", "TB"}
	size := float64(b)
	unit := 0

	for size >= 1024 && unit < len(units)-1 {
		size /= 1024
		unit++
	}

	formatted := fmt.Sprintf("%.1f", size)
	formatted = strings.TrimRight(formatted, "0")
	formatted = strings.TrimRight(formatted, ".")

	return formatted + " " + units[unit]
}
