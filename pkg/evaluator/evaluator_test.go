package evaluator

import (
	"testing"

	"github.com/clockwork-org/clockd/pkg/ast"
	"github.com/clockwork-org/clockd/pkg/fact"
)

// buildS1Manifest builds the manifest from spec.md §8 scenario S1:
// policy "p" { file "/tmp/x" { mode: 0644 } } host "h" { enforce "p" }
func buildS1Manifest() (*ast.Manifest, ast.NodeRef) {
	m := ast.NewManifest()
	mode := m.New(ast.ATTR, "mode", "0644")
	res := m.New(ast.RESOURCE, "file", "/tmp/x")
	m.AddChild(res, mode)
	polRoot := m.New(ast.POLICY, "p", "")
	m.AddChild(polRoot, res)
	m.DefinePolicy("p", polRoot)

	enforce := m.New(ast.ENFORCE, "p", "")
	hostRoot := m.New(ast.HOST, "h", "")
	m.AddChild(hostRoot, enforce)
	m.DefineHost("h", hostRoot)

	return m, hostRoot
}

func TestEvaluateS1YieldsSingleResource(t *testing.T) {
	m, hostRoot := buildS1Manifest()
	policy, err := Evaluate(m, hostRoot, fact.New())
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if len(policy.Resources) != 1 {
		t.Fatalf("expected 1 resource, got %d", len(policy.Resources))
	}
	r := policy.Resources[0]
	if r.Key != "file:/tmp/x" {
		t.Fatalf("key = %q", r.Key)
	}
	if !r.Enforced("mode") || r.Values["mode"].Mode != 0644 {
		t.Fatalf("expected mode=0644 enforced, got %+v", r.Values)
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	m, hostRoot := buildS1Manifest()
	facts := fact.New()
	facts.Set("os", "linux")

	p1, err := Evaluate(m, hostRoot, facts)
	if err != nil {
		t.Fatalf("first evaluate: %v", err)
	}
	p2, err := Evaluate(m, hostRoot, facts)
	if err != nil {
		t.Fatalf("second evaluate: %v", err)
	}
	if len(p1.Resources) != len(p2.Resources) {
		t.Fatalf("resource count differs across calls")
	}
	if p1.Resources[0].Pack() != p2.Resources[0].Pack() {
		t.Fatalf("packed resource differs across calls: %q vs %q", p1.Resources[0].Pack(), p2.Resources[0].Pack())
	}
}

func TestEvaluateIFSelectsBranchByFact(t *testing.T) {
	m := ast.NewManifest()
	thenAttr := m.New(ast.ATTR, "mode", "0644")
	thenRes := m.New(ast.RESOURCE, "file", "/etc/a")
	m.AddChild(thenRes, thenAttr)
	thenProg := m.New(ast.PROG, "", "")
	m.AddChild(thenProg, thenRes)

	elseAttr := m.New(ast.ATTR, "mode", "0600")
	elseRes := m.New(ast.RESOURCE, "file", "/etc/b")
	m.AddChild(elseRes, elseAttr)
	elseProg := m.New(ast.PROG, "", "")
	m.AddChild(elseProg, elseRes)

	ifNode := m.New(ast.IF, "os", "linux")
	m.AddChild(ifNode, thenProg)
	m.AddChild(ifNode, elseProg)

	polRoot := m.New(ast.POLICY, "p", "")
	m.AddChild(polRoot, ifNode)
	m.DefinePolicy("p", polRoot)
	enforce := m.New(ast.ENFORCE, "p", "")
	hostRoot := m.New(ast.HOST, "h", "")
	m.AddChild(hostRoot, enforce)
	m.DefineHost("h", hostRoot)

	facts := fact.New()
	facts.Set("os", "linux")
	policy, err := Evaluate(m, hostRoot, facts)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(policy.Resources) != 1 || policy.Resources[0].Key != "file:/etc/a" {
		t.Fatalf("expected the then-branch resource, got %+v", policy.Resources)
	}

	facts2 := fact.New() // missing "os" fact behaves as not-equal
	policy2, err := Evaluate(m, hostRoot, facts2)
	if err != nil {
		t.Fatalf("evaluate with missing fact: %v", err)
	}
	if len(policy2.Resources) != 1 || policy2.Resources[0].Key != "file:/etc/b" {
		t.Fatalf("expected the else-branch resource when fact is missing, got %+v", policy2.Resources)
	}
}

func TestEvaluateResourceKeyCollisionIsFatal(t *testing.T) {
	m := ast.NewManifest()
	res1 := m.New(ast.RESOURCE, "file", "/etc/x")
	res2 := m.New(ast.RESOURCE, "file", "/etc/x")
	polRoot := m.New(ast.POLICY, "p", "")
	m.AddChild(polRoot, res1)
	m.AddChild(polRoot, res2)
	m.DefinePolicy("p", polRoot)
	enforce := m.New(ast.ENFORCE, "p", "")
	hostRoot := m.New(ast.HOST, "h", "")
	m.AddChild(hostRoot, enforce)
	m.DefineHost("h", hostRoot)

	_, err := Evaluate(m, hostRoot, fact.New())
	if err == nil {
		t.Fatal("expected error for duplicate resource key")
	}
}

func TestEvaluateUnknownAttributeIsFatal(t *testing.T) {
	m := ast.NewManifest()
	attr := m.New(ast.ATTR, "bogus", "x")
	res := m.New(ast.RESOURCE, "file", "/etc/x")
	m.AddChild(res, attr)
	polRoot := m.New(ast.POLICY, "p", "")
	m.AddChild(polRoot, res)
	m.DefinePolicy("p", polRoot)
	enforce := m.New(ast.ENFORCE, "p", "")
	hostRoot := m.New(ast.HOST, "h", "")
	m.AddChild(hostRoot, enforce)
	m.DefineHost("h", hostRoot)

	_, err := Evaluate(m, hostRoot, fact.New())
	if err == nil {
		t.Fatal("expected error for unknown attribute")
	}
}

func TestEvaluateDependencyEdgeRecorded(t *testing.T) {
	m := ast.NewManifest()
	userRes := m.New(ast.RESOURCE, "user", "root")
	fileRes := m.New(ast.RESOURCE, "file", "/etc/sudoers")

	beforeRef := m.New(ast.RESOURCE_ID, "user", "root")
	afterRef := m.New(ast.RESOURCE_ID, "file", "/etc/sudoers")
	dep := m.New(ast.DEPENDENCY, "", "")
	m.AddChild(dep, beforeRef)
	m.AddChild(dep, afterRef)

	polRoot := m.New(ast.POLICY, "p", "")
	m.AddChild(polRoot, userRes)
	m.AddChild(polRoot, fileRes)
	m.AddChild(polRoot, dep)
	m.DefinePolicy("p", polRoot)
	enforce := m.New(ast.ENFORCE, "p", "")
	hostRoot := m.New(ast.HOST, "h", "")
	m.AddChild(hostRoot, enforce)
	m.DefineHost("h", hostRoot)

	policy, err := Evaluate(m, hostRoot, fact.New())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(policy.Deps) != 1 {
		t.Fatalf("expected 1 dependency edge, got %d", len(policy.Deps))
	}
	if policy.Deps[0].Before != "user:root" || policy.Deps[0].After != "file:/etc/sudoers" {
		t.Fatalf("unexpected edge: %+v", policy.Deps[0])
	}
}

func TestEvaluateDependencyUnresolvedEndpointIsFatal(t *testing.T) {
	m := ast.NewManifest()
	beforeRef := m.New(ast.RESOURCE_ID, "user", "ghost")
	afterRef := m.New(ast.RESOURCE_ID, "file", "/etc/x")
	dep := m.New(ast.DEPENDENCY, "", "")
	m.AddChild(dep, beforeRef)
	m.AddChild(dep, afterRef)

	fileRes := m.New(ast.RESOURCE, "file", "/etc/x")
	polRoot := m.New(ast.POLICY, "p", "")
	m.AddChild(polRoot, fileRes)
	m.AddChild(polRoot, dep)
	m.DefinePolicy("p", polRoot)
	enforce := m.New(ast.ENFORCE, "p", "")
	hostRoot := m.New(ast.HOST, "h", "")
	m.AddChild(hostRoot, enforce)
	m.DefineHost("h", hostRoot)

	_, err := Evaluate(m, hostRoot, fact.New())
	if err == nil {
		t.Fatal("expected error for unresolved dependency endpoint")
	}
}

func TestEvaluateUnknownHostIsError(t *testing.T) {
	m := ast.NewManifest()
	if _, err := EvaluateHost(m, "nope", fact.New()); err == nil {
		t.Fatal("expected error for unknown host")
	}
}
