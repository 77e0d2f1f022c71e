// Package evaluator implements the tree-walking specializer of spec.md §4.2:
// given a host's root node and a fact bundle, it walks the Manifest's syntax
// tree and produces a Policy — an ordered resource list, a dependency edge
// list, and a by-key index.
//
// Grounded on original_source/ast.c's evaluate-family of functions (the
// opcode switch over AST_OP_* is the same shape, rewritten around
// pkg/ast.Op and pkg/resource.Resource instead of the original's refcounted
// C structs).
package evaluator

import (
	"fmt"

	"github.com/clockwork-org/clockd/pkg/ast"
	"github.com/clockwork-org/clockd/pkg/clockerr"
	"github.com/clockwork-org/clockd/pkg/fact"
	"github.com/clockwork-org/clockd/pkg/resource"
)

// DependencyEdge records an ordering constraint: Before must be reconciled
// before After. Both are resource keys (e.g. "file:/etc/sudoers").
type DependencyEdge struct {
	Before string
	After  string
}

// Policy is the Evaluator's output: a specialized, ordered resource set plus
// dependency edges, scoped to one session (spec.md §2 "Policy").
type Policy struct {
	Resources []*resource.Resource
	Deps      []DependencyEdge

	byKey map[string]*resource.Resource
}

// ByKey looks up a resource by its kind-prefixed key.
func (p *Policy) ByKey(key string) (*resource.Resource, bool) {
	r, ok := p.byKey[key]
	return r, ok
}

func newPolicy() *Policy {
	return &Policy{byKey: make(map[string]*resource.Resource)}
}

// walker carries the mutable state spec.md §4.2 describes: the output
// policy, the fact bundle, and the "current resource" slot.
type walker struct {
	m       *ast.Manifest
	facts   *fact.Bundle
	policy  *Policy
	current *resource.Resource
	errs    []error
}

// EvaluateHost looks up hostName in m and evaluates it against facts.
func EvaluateHost(m *ast.Manifest, hostName string, facts *fact.Bundle) (*Policy, error) {
	root, ok := m.Hosts[hostName]
	if !ok {
		return nil, &clockerr.EvalError{Msg: fmt.Sprintf("unknown host %q", hostName)}
	}
	return Evaluate(m, root, facts)
}

// Evaluate walks the subtree rooted at root (normally a HOST node) against
// facts and returns the resulting Policy. evaluate(AST, facts) is a pure
// function of its inputs (spec.md §8 property 2): it never mutates m beyond
// reading it.
func Evaluate(m *ast.Manifest, root ast.NodeRef, facts *fact.Bundle) (*Policy, error) {
	w := &walker{m: m, facts: facts, policy: newPolicy()}
	w.eval(root)
	w.checkDependencies()
	if len(w.errs) > 0 {
		return w.policy, &clockerr.EvalError{Msg: w.errs[0].Error()}
	}
	return w.policy, nil
}

func (w *walker) fail(format string, args ...interface{}) {
	w.errs = append(w.errs, fmt.Errorf(format, args...))
}

func (w *walker) eval(ref ast.NodeRef) {
	if ref == ast.NoRef {
		return
	}
	n := w.m.Node(ref)
	switch n.Op {
	case ast.PROG, ast.NOOP, ast.POLICY:
		w.evalChildren(n)

	case ast.HOST:
		w.evalChildren(n)

	case ast.ENFORCE:
		policyRoot, ok := w.m.Policies[n.Data1]
		if !ok {
			w.fail("enforce: unknown policy %q", n.Data1)
			return
		}
		w.eval(policyRoot)

	case ast.INCLUDE:
		// By the time evaluation runs, every INCLUDE node's children have
		// been resolved to the referenced policy's root (pkg/parser).
		w.evalChildren(n)

	case ast.IF:
		if len(n.Children) != 2 {
			w.fail("malformed IF node (expected 2 children, got %d)", len(n.Children))
			return
		}
		val, present := w.facts.Get(n.Data1)
		if present && val == n.Data2 {
			w.eval(n.Children[0])
		} else {
			w.eval(n.Children[1])
		}

	case ast.RESOURCE:
		w.evalResource(n)

	case ast.ATTR:
		if w.current == nil {
			w.fail("attribute %q set with no enclosing resource", n.Data1)
			return
		}
		if err := w.current.SetAttr(n.Data1, n.Data2); err != nil {
			w.fail("%v", err)
		}

	case ast.DEPENDENCY:
		w.evalDependency(n)

	case ast.RESOURCE_ID:
		// Only ever reached as a DEPENDENCY child, handled directly there;
		// a bare RESOURCE_ID elsewhere is a parser bug.
		w.fail("internal: RESOURCE_ID evaluated outside a DEPENDENCY node")

	default:
		w.fail("unknown opcode %s during evaluation", n.Op)
	}
}

func (w *walker) evalChildren(n *ast.Node) {
	for _, c := range n.Children {
		w.eval(c)
	}
}

func (w *walker) evalResource(n *ast.Node) {
	kind := n.Data1
	if !resource.ValidKind(kind) {
		w.fail("unknown resource kind %q", kind)
		return
	}
	key := kind + ":" + n.Data2
	if _, exists := w.policy.byKey[key]; exists {
		w.fail("resource key collision: %q defined more than once", key)
		return
	}

	r := resource.New(resource.Kind(kind), n.Data2)
	w.policy.Resources = append(w.policy.Resources, r)
	w.policy.byKey[key] = r

	saved := w.current
	w.current = r
	w.evalChildren(n)
	w.current = saved
}

func (w *walker) evalDependency(n *ast.Node) {
	if len(n.Children) != 2 {
		w.fail("malformed DEPENDENCY node (expected 2 children, got %d)", len(n.Children))
		return
	}
	before := w.m.Node(n.Children[0])
	after := w.m.Node(n.Children[1])
	if before.Op != ast.RESOURCE_ID || after.Op != ast.RESOURCE_ID {
		w.fail("internal: DEPENDENCY children must be RESOURCE_ID nodes")
		return
	}
	w.policy.Deps = append(w.policy.Deps, DependencyEdge{
		Before: before.Data1 + ":" + before.Data2,
		After:  after.Data1 + ":" + after.Data2,
	})
}

// checkDependencies implements spec.md §4.2's dependency sanity pass: both
// endpoints of every edge must resolve to existing resources.
func (w *walker) checkDependencies() {
	for _, e := range w.policy.Deps {
		if _, ok := w.policy.byKey[e.Before]; !ok {
			w.fail("dependency edge references unknown resource %q", e.Before)
		}
		if _, ok := w.policy.byKey[e.After]; !ok {
			w.fail("dependency edge references unknown resource %q", e.After)
		}
	}
}
