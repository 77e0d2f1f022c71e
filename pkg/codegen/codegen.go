// Package codegen implements spec.md §4.3's Code Generator and assembler: it
// walks a Policy's resources in dependency-respecting topological order,
// emits one labeled instruction block per resource, and assembles the
// resulting instruction list into a compact binary image.
//
// Grounded on original_source/src/clockd.c's per-resource job emission shape
// (prologue/attr-ops/epilogue), rewritten around a text-instruction
// intermediate so the assembler stage can be tested independently of
// resource-walking.
package codegen

import (
	"fmt"
	"sort"

	"github.com/clockwork-org/clockd/pkg/evaluator"
)

// InstrOp is the opcode of one textual assembly instruction.
type InstrOp int

const (
	OpLabel InstrOp = iota
	OpResource
	OpAttr
	OpEnd
)

var instrOpNames = map[InstrOp]string{
	OpLabel:    "LABEL",
	OpResource: "RESOURCE",
	OpAttr:     "ATTR",
	OpEnd:      "END",
}

func (o InstrOp) String() string {
	if s, ok := instrOpNames[o]; ok {
		return s
	}
	return fmt.Sprintf("InstrOp(%d)", int(o))
}

// Instruction is one emitted assembly line: an opcode plus its string
// operands, e.g. {OpAttr, []string{"mode", "0644"}}.
type Instruction struct {
	Op   InstrOp
	Args []string
}

// topoSort orders resource indices [0,n) so every dependency edge's Before
// index precedes its After index, breaking ties by original (insertion)
// index — spec.md §4.3: "ties broken by insertion order."
func topoSort(policy *evaluator.Policy) ([]int, error) {
	n := len(policy.Resources)
	keyIndex := make(map[string]int, n)
	for i, r := range policy.Resources {
		keyIndex[r.Key] = i
	}

	adj := make([][]int, n)
	inDegree := make([]int, n)
	for _, e := range policy.Deps {
		bi, aOk := keyIndex[e.Before]
		ai, bOk := keyIndex[e.After]
		if !aOk || !bOk {
			// Already rejected by the evaluator's dependency sanity pass;
			// defensive only.
			continue
		}
		adj[bi] = append(adj[bi], ai)
		inDegree[ai]++
	}

	emitted := make([]bool, n)
	order := make([]int, 0, n)
	for len(order) < n {
		best := -1
		for i := 0; i < n; i++ {
			if emitted[i] || inDegree[i] > 0 {
				continue
			}
			if best == -1 || i < best {
				best = i
			}
		}
		if best == -1 {
			return nil, fmt.Errorf("dependency graph contains a cycle among %d unresolved resource(s)", n-len(order))
		}
		emitted[best] = true
		order = append(order, best)
		for _, next := range adj[best] {
			inDegree[next]--
		}
	}
	return order, nil
}

// Emit produces the textual instruction list for policy: one LABEL/RESOURCE
// prologue, one ATTR per enforced attribute (schema order, for determinism),
// and an END epilogue, per resource, in topological order.
func Emit(policy *evaluator.Policy) ([]Instruction, error) {
	order, err := topoSort(policy)
	if err != nil {
		return nil, err
	}
	var out []Instruction
	for _, idx := range order {
		r := policy.Resources[idx]
		out = append(out, Instruction{Op: OpLabel, Args: []string{r.Key}})
		out = append(out, Instruction{Op: OpResource, Args: []string{string(r.Kind), r.Key}})
		for _, attr := range r.EnforcedAttrs() {
			out = append(out, Instruction{Op: OpAttr, Args: []string{attr, r.Values[attr].String()}})
		}
		out = append(out, Instruction{Op: OpEnd, Args: nil})
	}
	return out, nil
}

// sortedLabels returns every label instruction's argument, for validating
// that no later reference names an undefined label (only labels codegen
// itself emits currently reference each other — reserved for future
// notification-trigger instructions spec.md §4.3 alludes to).
func sortedLabels(instrs []Instruction) []string {
	var labels []string
	for _, in := range instrs {
		if in.Op == OpLabel {
			labels = append(labels, in.Args[0])
		}
	}
	sort.Strings(labels)
	return labels
}
