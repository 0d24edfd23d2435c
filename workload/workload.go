// Package workload defines the deterministic DDL experiment plan: which
// operations run at which granularity, and which object each of them targets.
// A plan is fully determined by its Config, so a seed reproduces a run.
package workload

import (
	"encoding/json"
	"fmt"
	"io"
	mrand "math/rand"
	"slices"
	"strconv"
	"strings"
)

// Repetitions is the number of alter/comment/show/inspect rounds per level.
const Repetitions = 3

// Granularity is the number of objects that exist while a phase is measured.
type Granularity int

// The granularity scale. Levels always run in ascending order.
const (
	G1      Granularity = 1
	G10     Granularity = 10
	G100    Granularity = 100
	G1000   Granularity = 1_000
	G10000  Granularity = 10_000
	G100000 Granularity = 100_000
)

// Scale returns every supported granularity in ascending order.
func Scale() []Granularity {
	return []Granularity{G1, G10, G100, G1000, G10000, G100000}
}

// ParseGranularities validates the given object counts against the scale and
// returns them deduplicated and sorted ascending.
func ParseGranularities(values []int) ([]Granularity, error) {
	if len(values) == 0 {
		return Scale(), nil
	}

	scale := Scale()
	out := make([]Granularity, 0, len(values))

	for _, v := range values {
		g := Granularity(v)
		if !slices.Contains(scale, g) {
			return nil, fmt.Errorf("granularity %d is not on the scale %v", v, scale)
		}

		if !slices.Contains(out, g) {
			out = append(out, g)
		}
	}

	slices.Sort(out)

	return out, nil
}

// Operation classifies a timed DDL statement in the result log.
type Operation string

const (
	OpCreate  Operation = "CREATE"
	OpDrop    Operation = "DROP"
	OpAlter   Operation = "ALTER"
	OpComment Operation = "COMMENT"
	OpShow    Operation = "SHOW"
	OpInspect Operation = "INFORMATION_SCHEMA"
)

// ObjectKind is the kind of schema object under test.
type ObjectKind string

const (
	ObjectTable    ObjectKind = "table"
	ObjectIndex    ObjectKind = "index"
	ObjectView     ObjectKind = "view"
	ObjectFunction ObjectKind = "function"
	ObjectSequence ObjectKind = "sequence"
	ObjectDatabase ObjectKind = "database"
)

// ObjectKinds returns every defined object kind.
func ObjectKinds() []ObjectKind {
	return []ObjectKind{
		ObjectTable, ObjectIndex, ObjectView,
		ObjectFunction, ObjectSequence, ObjectDatabase,
	}
}

// ParseObjectKind maps a name to an ObjectKind.
func ParseObjectKind(name string) (ObjectKind, error) {
	kind := ObjectKind(strings.ToLower(name))
	if !slices.Contains(ObjectKinds(), kind) {
		return "", fmt.Errorf("unknown object kind %q", name)
	}

	return kind, nil
}

// NoIndex marks steps that do not target a single object.
const NoIndex = -1

// Step is one timed operation of the plan.
type Step struct {
	Op          Operation   `json:"op"`
	Object      ObjectKind  `json:"object"`
	Granularity Granularity `json:"granularity"`
	Repetition  int         `json:"repetition"`
	Index       int         `json:"index"`
}

// HasIndex reports whether the step targets a single object.
func (s Step) HasIndex() bool {
	return s.Index != NoIndex
}

// Phase holds every step of one granularity level, in execution order.
type Phase struct {
	Granularity Granularity
	Steps       []Step
}

// Summary contains statistics about a generated plan.
type Summary struct {
	Phases          int
	TotalOperations int
	Creates         int
	Repetitions     int
}

// Config controls plan generation.
type Config struct {
	Granularities []Granularity
	Object        ObjectKind
	Seed          int64
}

// Generator produces deterministic plans from a Config.
type Generator struct {
	cfg Config
	rng *mrand.Rand
}

// NewGenerator creates a Generator from the given Config. Granularities are
// sorted ascending; an empty list selects the whole scale.
func NewGenerator(cfg Config) *Generator {
	if len(cfg.Granularities) == 0 {
		cfg.Granularities = Scale()
	} else {
		cfg.Granularities = slices.Clone(cfg.Granularities)
		slices.Sort(cfg.Granularities)
		cfg.Granularities = slices.Compact(cfg.Granularities)
	}

	if cfg.Object == "" {
		cfg.Object = ObjectTable
	}

	return &Generator{cfg: cfg}
}

// Phases builds the full plan. The random choices are drawn in phase order
// from a source seeded on every call, so the same Config always yields the
// same plan.
func (g *Generator) Phases() []Phase {
	g.rng = mrand.New(mrand.NewSource(g.cfg.Seed))

	phases := make([]Phase, 0, len(g.cfg.Granularities))

	for _, gran := range g.cfg.Granularities {
		phases = append(phases, g.phase(gran))
	}

	return phases
}

func (g *Generator) phase(gran Granularity) Phase {
	n := int(gran)
	steps := make([]Step, 0, n+4*Repetitions)

	for i := 0; i < n; i++ {
		steps = append(steps, g.step(OpCreate, gran, 0, i))
	}

	for r := 0; r < Repetitions; r++ {
		// ALTER and COMMENT draw independently and may hit different objects.
		steps = append(steps,
			g.step(OpAlter, gran, r, g.rng.Intn(n)),
			g.step(OpComment, gran, r, g.rng.Intn(n)),
			g.step(OpShow, gran, r, NoIndex),
			g.step(OpInspect, gran, r, NoIndex),
		)
	}

	return Phase{Granularity: gran, Steps: steps}
}

func (g *Generator) step(op Operation, gran Granularity, rep, index int) Step {
	return Step{
		Op:          op,
		Object:      g.cfg.Object,
		Granularity: gran,
		Repetition:  rep,
		Index:       index,
	}
}

// Generate writes the plan as JSONL to w and returns a Summary.
func (g *Generator) Generate(w io.Writer) (Summary, error) {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	phases := g.Phases()

	for _, phase := range phases {
		for _, step := range phase.Steps {
			if err := enc.Encode(step); err != nil {
				return Summary{}, fmt.Errorf("encode %s step: %w", step.Op, err)
			}
		}
	}

	return Summarize(phases), nil
}

// Summarize counts the steps of a plan.
func Summarize(phases []Phase) Summary {
	var summary Summary

	for _, phase := range phases {
		for _, step := range phase.Steps {
			summary.TotalOperations++
			if step.Op == OpCreate {
				summary.Creates++
			}
		}

		summary.Phases++
		summary.Repetitions += Repetitions
	}

	return summary
}

// FormatGranularities renders levels as a comma separated list.
func FormatGranularities(levels []Granularity) string {
	parts := make([]string, len(levels))
	for i, g := range levels {
		parts[i] = strconv.Itoa(int(g))
	}

	return strings.Join(parts, ",")
}
