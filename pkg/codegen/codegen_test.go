package codegen

import (
	"bytes"
	"testing"

	"github.com/clockwork-org/clockd/pkg/ast"
	"github.com/clockwork-org/clockd/pkg/evaluator"
	"github.com/clockwork-org/clockd/pkg/fact"
)

func evalSimple(t *testing.T) *evaluator.Policy {
	t.Helper()
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

	policy, err := evaluator.Evaluate(m, hostRoot, fact.New())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	return policy
}

func TestEmitProducesNonEmptyInstructions(t *testing.T) {
	policy := evalSimple(t)
	instrs, err := Emit(policy)
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	if len(instrs) == 0 {
		t.Fatal("expected non-empty instruction list")
	}
	if instrs[0].Op != OpLabel || instrs[0].Args[0] != "file:/tmp/x" {
		t.Fatalf("expected leading label, got %+v", instrs[0])
	}
}

func TestAssembleProducesNonEmptyImage(t *testing.T) {
	policy := evalSimple(t)
	instrs, err := Emit(policy)
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	img, err := Assemble(instrs, false)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if len(img.Code) == 0 {
		t.Fatal("expected non-empty code segment")
	}
	if img.Flags&FlagDebugSymbols != 0 {
		t.Fatal("debug flag should be clear when includeDebug=false")
	}
}

func TestImageRoundTripsThroughWriteRead(t *testing.T) {
	policy := evalSimple(t)
	instrs, err := Emit(policy)
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	img, err := Assemble(instrs, true)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}

	var buf bytes.Buffer
	if err := img.Write(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := ReadImage(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Version != img.Version || got.Flags != img.Flags {
		t.Fatalf("header mismatch: got %+v, want %+v", got, img)
	}
	if len(got.Strings) != len(img.Strings) {
		t.Fatalf("string table length mismatch: got %d, want %d", len(got.Strings), len(img.Strings))
	}
	if !bytes.Equal(got.Code, img.Code) {
		t.Fatal("code segment mismatch after round-trip")
	}
	if len(got.Debug) != len(img.Debug) {
		t.Fatalf("debug table length mismatch: got %d, want %d", len(got.Debug), len(img.Debug))
	}
}

func TestTopoSortRespectsDependencyOrder(t *testing.T) {
	m := ast.NewManifest()
	userRes := m.New(ast.RESOURCE, "user", "root")
	fileRes := m.New(ast.RESOURCE, "file", "/etc/sudoers")
	beforeRef := m.New(ast.RESOURCE_ID, "user", "root")
	afterRef := m.New(ast.RESOURCE_ID, "file", "/etc/sudoers")
	dep := m.New(ast.DEPENDENCY, "", "")
	m.AddChild(dep, beforeRef)
	m.AddChild(dep, afterRef)

	polRoot := m.New(ast.POLICY, "p", "")
	// File resource declared first in the manifest, but it depends on user,
	// so user must still be emitted first.
	m.AddChild(polRoot, fileRes)
	m.AddChild(polRoot, userRes)
	m.AddChild(polRoot, dep)
	m.DefinePolicy("p", polRoot)
	enforce := m.New(ast.ENFORCE, "p", "")
	hostRoot := m.New(ast.HOST, "h", "")
	m.AddChild(hostRoot, enforce)
	m.DefineHost("h", hostRoot)

	policy, err := evaluator.Evaluate(m, hostRoot, fact.New())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	instrs, err := Emit(policy)
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	var order []string
	for _, in := range instrs {
		if in.Op == OpLabel {
			order = append(order, in.Args[0])
		}
	}
	if len(order) != 2 || order[0] != "user:root" || order[1] != "file:/etc/sudoers" {
		t.Fatalf("expected [user:root file:/etc/sudoers], got %v", order)
	}
}

func TestTopoSortDetectsCycle(t *testing.T) {
	m := ast.NewManifest()
	aRes := m.New(ast.RESOURCE, "file", "/a")
	bRes := m.New(ast.RESOURCE, "file", "/b")

	aRef := m.New(ast.RESOURCE_ID, "file", "/a")
	bRef := m.New(ast.RESOURCE_ID, "file", "/b")
	dep1 := m.New(ast.DEPENDENCY, "", "")
	m.AddChild(dep1, aRef)
	m.AddChild(dep1, bRef)
	dep2 := m.New(ast.DEPENDENCY, "", "")
	m.AddChild(dep2, bRef)
	m.AddChild(dep2, aRef)

	polRoot := m.New(ast.POLICY, "p", "")
	m.AddChild(polRoot, aRes)
	m.AddChild(polRoot, bRes)
	m.AddChild(polRoot, dep1)
	m.AddChild(polRoot, dep2)
	m.DefinePolicy("p", polRoot)
	enforce := m.New(ast.ENFORCE, "p", "")
	hostRoot := m.New(ast.HOST, "h", "")
	m.AddChild(hostRoot, enforce)
	m.DefineHost("h", hostRoot)

	policy, err := evaluator.Evaluate(m, hostRoot, fact.New())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if _, err := Emit(policy); err == nil {
		t.Fatal("expected cycle detection error from Emit")
	}
}
