package resource

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSetAttrCoercesByType(t *testing.T) {
	r := New(KindFile, "/etc/sudoers")
	if err := r.SetAttr("mode", "0440"); err != nil {
		t.Fatalf("mode: %v", err)
	}
	if err := r.SetAttr("owner", "root"); err != nil {
		t.Fatalf("owner: %v", err)
	}
	if !r.Enforced("mode") || !r.Enforced("owner") {
		t.Fatal("expected mode and owner enforced")
	}
	if r.Enforced("group") {
		t.Fatal("group should not be enforced")
	}
	if r.Values["mode"].Mode != 0440 {
		t.Fatalf("mode = %o, want 0440", r.Values["mode"].Mode)
	}
}

func TestSetAttrUnknownIsError(t *testing.T) {
	r := New(KindFile, "/etc/x")
	if err := r.SetAttr("bogus", "1"); err == nil {
		t.Fatal("expected error for unknown attribute")
	}
}

func TestSetAttrBadBoolIsError(t *testing.T) {
	r := New(KindService, "app")
	if err := r.SetAttr("running", "maybe"); err == nil {
		t.Fatal("expected error for invalid boolean")
	}
}

func TestKeyIsKindPrefixed(t *testing.T) {
	r := New(KindFile, "/etc/sudoers")
	if r.Key != "file:/etc/sudoers" {
		t.Fatalf("key = %q", r.Key)
	}
}

func TestPackIsStableAcrossInsertionOrder(t *testing.T) {
	r1 := New(KindFile, "/etc/x")
	r1.SetAttr("mode", "0644")
	r1.SetAttr("owner", "root")

	r2 := New(KindFile, "/etc/x")
	r2.SetAttr("owner", "root")
	r2.SetAttr("mode", "0644")

	if r1.Pack() != r2.Pack() {
		t.Fatalf("pack differs by insertion order: %q vs %q", r1.Pack(), r2.Pack())
	}
}

func TestValidKind(t *testing.T) {
	if !ValidKind("file") {
		t.Fatal("file should be a valid kind")
	}
	if ValidKind("nonsense") {
		t.Fatal("nonsense should not be a valid kind")
	}
}

func TestDiffOnlyComparesEnforcedAttrs(t *testing.T) {
	r := New(KindFile, "/etc/x")
	r.SetAttr("mode", "0644")
	r.SetAttr("owner", "root")

	observed := map[string]Value{
		"mode":  {Type: TypeOctal, Mode: 0644},
		"owner": {Type: TypeString, Str: "root"},
		"group": {Type: TypeString, Str: "wheel"}, // not enforced, must be ignored
	}
	if diffs := r.Diff(observed); len(diffs) != 0 {
		t.Fatalf("expected no diffs, got %+v", diffs)
	}
	if !r.InSync(observed) {
		t.Fatal("expected InSync to report true")
	}
}

func TestDiffReportsMismatchedAndMissingAttrs(t *testing.T) {
	r := New(KindFile, "/etc/x")
	r.SetAttr("mode", "0644")
	r.SetAttr("owner", "root")

	observed := map[string]Value{
		"mode": {Type: TypeOctal, Mode: 0600},
	}
	diffs := r.Diff(observed)
	if len(diffs) != 2 {
		t.Fatalf("expected 2 diffs, got %+v", diffs)
	}
	if diffs[0].Attr != "mode" || !diffs[0].Present || diffs[0].Got.Mode != 0600 {
		t.Fatalf("unexpected mode diff: %+v", diffs[0])
	}
	if diffs[1].Attr != "owner" || diffs[1].Present {
		t.Fatalf("expected owner to be reported as not present, got %+v", diffs[1])
	}
	if r.InSync(observed) {
		t.Fatal("expected InSync to report false")
	}
}

func TestStatFileReportsAbsent(t *testing.T) {
	dir := t.TempDir()
	observed, err := Stat(KindFile, filepath.Join(dir, "nope"))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if !observed["absent"].Bool {
		t.Fatalf("expected absent=true, got %+v", observed)
	}
}

func TestStatFileReportsModeAndOwner(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	if err := os.WriteFile(path, []byte("x"), 0640); err != nil {
		t.Fatalf("write: %v", err)
	}

	observed, err := Stat(KindFile, path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if observed["absent"].Bool {
		t.Fatal("expected absent=false")
	}
	if observed["mode"].Mode != 0640 {
		t.Fatalf("expected mode 0640, got %o", observed["mode"].Mode)
	}
	if _, ok := observed["owner"]; !ok {
		t.Fatal("expected owner to be populated from the file's uid")
	}
}

func TestStatSymlinkReportsTarget(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	if err := os.WriteFile(target, []byte("x"), 0644); err != nil {
		t.Fatalf("write target: %v", err)
	}
	link := filepath.Join(dir, "link")
	if err := os.Symlink(target, link); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	observed, err := Stat(KindSymlink, link)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if observed["target"].Str != target {
		t.Fatalf("expected target %q, got %q", target, observed["target"].Str)
	}
}

func TestStatUnsupportedKindIsError(t *testing.T) {
	if _, err := Stat(KindService, "whatever"); err == nil {
		t.Fatal("expected an error for a kind with no local stat probe")
	}
}
