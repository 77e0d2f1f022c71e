package template

import (
	"errors"
	"strings"
	"testing"

	"github.com/clockwork-org/clockd/pkg/fact"
)

func TestRenderSubstitutesKnownFact(t *testing.T) {
	facts := fact.New()
	facts.Set("host.name", "web01")
	out, warnings, err := Render(strings.NewReader("server ${host.name} {\n}\n"), facts)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if string(out) != "server web01 {\n}\n" {
		t.Fatalf("got %q", out)
	}
}

func TestRenderMissingFactYieldsEmptyAndWarning(t *testing.T) {
	out, warnings, err := Render(strings.NewReader("x=${missing.fact}"), fact.New())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if string(out) != "x=" {
		t.Fatalf("got %q", out)
	}
	if len(warnings) != 1 || warnings[0] != "missing.fact" {
		t.Fatalf("expected one warning for missing.fact, got %v", warnings)
	}
}

func TestRenderLeavesUnterminatedTokenLiteral(t *testing.T) {
	out, _, err := Render(strings.NewReader("prefix ${oops"), fact.New())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if string(out) != "prefix ${oops" {
		t.Fatalf("got %q", out)
	}
}

func TestRenderLeavesBareDollarLiteral(t *testing.T) {
	out, _, err := Render(strings.NewReader("cost: $5.00"), fact.New())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if string(out) != "cost: $5.00" {
		t.Fatalf("got %q", out)
	}
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

func TestRenderPropagatesReadError(t *testing.T) {
	_, _, err := Render(errReader{}, fact.New())
	if err == nil {
		t.Fatal("expected error from a failing reader")
	}
}

func TestRenderHasNoLoopsOrConditionals(t *testing.T) {
	// Verifies the substitution is purely textual: a token appearing twice
	// is substituted independently both times, with no control flow.
	facts := fact.New()
	facts.Set("a", "1")
	out, _, err := Render(strings.NewReader("${a}-${a}"), facts)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if string(out) != "1-1" {
		t.Fatalf("got %q", out)
	}
}
