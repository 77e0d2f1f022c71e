package content

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/clockwork-org/clockd/pkg/fact"
	"github.com/clockwork-org/clockd/pkg/resource"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}

func TestOpenStaticComputesSHA1(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "motd", "hello world\n")

	r := resource.New(resource.KindFile, path)
	if err := r.SetAttr("source", path); err != nil {
		t.Fatalf("setattr: %v", err)
	}

	res := NewResolver(nil)
	c, err := res.Open(r, fact.New())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer c.Close()

	want := sha1.Sum([]byte("hello world\n"))
	if c.Digest() != hex.EncodeToString(want[:]) {
		t.Fatalf("digest = %s, want %s", c.Digest(), hex.EncodeToString(want[:]))
	}
}

func TestReadBlockSignalsEOFOnShortRead(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "small", "short")

	r := resource.New(resource.KindFile, path)
	r.SetAttr("source", path)
	res := NewResolver(nil)
	c, err := res.Open(r, fact.New())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer c.Close()

	block, eof, err := c.ReadBlock(0)
	if err != nil {
		t.Fatalf("readblock: %v", err)
	}
	if !eof {
		t.Fatal("expected eof=true for a file shorter than one block")
	}
	if string(block) != "short" {
		t.Fatalf("block = %q", block)
	}
}

func TestDigestCacheHitsOnUnchangedFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "cached", "content-a")

	cache, err := OpenDigestCache(dir)
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	defer cache.Close()

	r := resource.New(resource.KindFile, path)
	r.SetAttr("source", path)
	res := NewResolver(cache)

	c1, err := res.Open(r, fact.New())
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	d1 := c1.Digest()
	c1.Close()

	c2, err := res.Open(r, fact.New())
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer c2.Close()
	if c2.Digest() != d1 {
		t.Fatalf("digest changed across cached opens: %s vs %s", d1, c2.Digest())
	}
}

func TestOpenRenderedSubstitutesFacts(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "motd.tmpl", "welcome ${host.name}\n")

	r := resource.New(resource.KindFile, "/etc/motd")
	r.SetAttr("template", path)

	facts := fact.New()
	facts.Set("host.name", "db01")

	res := NewResolver(nil)
	c, err := res.Open(r, facts)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer c.Close()

	block, eof, err := c.ReadBlock(0)
	if err != nil {
		t.Fatalf("readblock: %v", err)
	}
	if !eof {
		t.Fatal("expected eof on small rendered output")
	}
	if string(block) != "welcome db01\n" {
		t.Fatalf("block = %q", block)
	}
}

func TestPackAndWalkArchiveRoundTrips(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "sub"), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeFile(t, root, "a.txt", "AAA")
	writeFile(t, filepath.Join(root, "sub"), "b.txt", "BBBB")

	var buf bytes.Buffer
	if err := PackArchive(&buf, root); err != nil {
		t.Fatalf("pack: %v", err)
	}

	var entries []ArchiveEntry
	contents := make(map[string]string)
	err := WalkArchive(&buf, func(e ArchiveEntry) error {
		entries = append(entries, e)
		data := make([]byte, e.Size)
		if _, err := io.ReadFull(e.R, data); err != nil {
			return err
		}
		contents[e.Path] = string(data)
		return nil
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if contents["a.txt"] != "AAA" {
		t.Fatalf("a.txt = %q", contents["a.txt"])
	}
	if contents[filepath.Join("sub", "b.txt")] != "BBBB" {
		t.Fatalf("sub/b.txt = %q", contents[filepath.Join("sub", "b.txt")])
	}
}

func TestPackArchiveSkipsDotfilesAndGitDir(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, ".git"), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeFile(t, root, "a.txt", "AAA")
	writeFile(t, root, ".hidden", "secret")
	writeFile(t, filepath.Join(root, ".git"), "HEAD", "ref: refs/heads/main")

	var buf bytes.Buffer
	if err := PackArchive(&buf, root); err != nil {
		t.Fatalf("pack: %v", err)
	}

	var paths []string
	err := WalkArchive(&buf, func(e ArchiveEntry) error {
		paths = append(paths, e.Path)
		_, err := io.Copy(io.Discard, e.R)
		return err
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if len(paths) != 1 || paths[0] != "a.txt" {
		t.Fatalf("expected only a.txt, got %v", paths)
	}
}
