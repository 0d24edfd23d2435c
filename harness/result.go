// Package harness runs a DDL experiment against one engine: it times every
// statement, records each timing as a Measurement and tears the schema down
// between granularity levels.
package harness

import (
	"time"

	"github.com/weiihann/ddlbench/engine"
	"github.com/weiihann/ddlbench/workload"
)

// Measurement is one timed statement execution.
type Measurement struct {
	RunID       string               `json:"run_id"`
	System      engine.System        `json:"system"`
	Operation   workload.Operation   `json:"operation"`
	Statement   string               `json:"statement"`
	Object      workload.ObjectKind  `json:"object"`
	Granularity workload.Granularity `json:"granularity"`
	Repetition  int                  `json:"repetition"`
	ObjectIndex int                  `json:"object_index"`
	Elapsed     time.Duration        `json:"elapsed_ns"`
	Start       time.Time            `json:"start"`
	End         time.Time            `json:"end"`
}

// Summary describes a finished or aborted run.
type Summary struct {
	RunID        string        `json:"run_id"`
	System       engine.System `json:"system"`
	Phases       int           `json:"phases_completed"`
	Measurements int           `json:"measurements"`
	EngineTime   time.Duration `json:"engine_time_ns"`
}
