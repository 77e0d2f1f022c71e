// Package content implements spec.md §4.5's Content Server: resolving a
// resource key to an opened byte stream (static file or rendered template),
// computing its SHA1 digest on first access, and serving it in fixed-size
// blocks for the FILE/DATA protocol exchange.
//
// Grounded on original_source/src/bdfa.c for the copydown archive's
// per-entry header layout, and the teacher's pkg/storage/boltdb.go
// (bucket-per-concern, db.Update/db.View) for the digest cache.
package content

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/clockwork-org/clockd/pkg/clockerr"
	"github.com/clockwork-org/clockd/pkg/fact"
	"github.com/clockwork-org/clockd/pkg/resource"
	"github.com/clockwork-org/clockd/pkg/template"
)

// BlockSize is the fixed DATA block size spec.md §4.5 mandates.
const BlockSize = 8192

// Content is an opened byte stream plus its digest, ready for block reads.
type Content struct {
	f      *os.File
	sha1   [20]byte
	digest string
	path   string
}

// Digest returns the hex-encoded SHA1 of the entire stream.
func (c *Content) Digest() string { return c.digest }

// ReadBlock reads up to BlockSize bytes starting at block index i. A short
// read at EOF returns (n, true, nil); a read error after byte 0 returns
// (0, false, err).
func (c *Content) ReadBlock(i int64) ([]byte, bool, error) {
	buf := make([]byte, BlockSize)
	n, err := c.f.ReadAt(buf, i*BlockSize)
	if err != nil && err != io.EOF {
		return nil, false, fmt.Errorf("reading block %d of %s: %w", i, c.path, err)
	}
	eof := err == io.EOF || n < BlockSize
	return buf[:n], eof, nil
}

// Close releases the underlying file handle, removing it if it was a
// temporary rendered-template file.
func (c *Content) Close() error {
	err := c.f.Close()
	if c.temp() {
		os.Remove(c.f.Name())
	}
	return err
}

func (c *Content) temp() bool {
	return filepath.Dir(c.f.Name()) == os.TempDir()
}

// Resolver opens Content for a resource's source or template attribute,
// using a DigestCache to avoid re-hashing unchanged static files.
type Resolver struct {
	cache *DigestCache
}

// NewResolver returns a Resolver backed by cache (may be nil to disable
// caching — every digest is then recomputed on each open).
func NewResolver(cache *DigestCache) *Resolver {
	return &Resolver{cache: cache}
}

// Open resolves r's content source against facts and returns an opened,
// digested Content. Exactly one of r's "source" or "template" attributes
// must be set; which one is the resource kind's contract, not this
// package's — callers pass whichever attribute applies.
func (res *Resolver) Open(r *resource.Resource, facts *fact.Bundle) (*Content, error) {
	if tmplPath, ok := r.Values["template"]; ok && tmplPath.Str != "" {
		return res.openRendered(tmplPath.Str, facts)
	}
	if srcPath, ok := r.Values["source"]; ok && srcPath.Str != "" {
		return res.openStatic(srcPath.Str)
	}
	return nil, &clockerr.ResourceNotFound{Key: r.Key}
}

func (res *Resolver) openStatic(path string) (*Content, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &clockerr.ContentIOError{Path: path, Err: err}
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, &clockerr.ContentIOError{Path: path, Err: err}
	}

	var digest string
	if res.cache != nil {
		if cached, ok := res.cache.Lookup(path, info); ok {
			digest = cached
		}
	}
	if digest == "" {
		sum, err := sha1Sum(f)
		if err != nil {
			f.Close()
			return nil, &clockerr.ContentIOError{Path: path, Err: err}
		}
		digest = hex.EncodeToString(sum[:])
		if res.cache != nil {
			res.cache.Store(path, info, digest)
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			f.Close()
			return nil, &clockerr.ContentIOError{Path: path, Err: err}
		}
	}

	return &Content{f: f, digest: digest, path: path}, nil
}

// openRendered never consults the digest cache: rendered output is
// fact-bound and not safe to key by path+mtime+size alone.
func (res *Resolver) openRendered(path string, facts *fact.Bundle) (*Content, error) {
	out, _, err := template.RenderFile(path, facts)
	if err != nil {
		return nil, &clockerr.ContentIOError{Path: path, Err: err}
	}

	tmp, err := os.CreateTemp("", "clockd-render-*")
	if err != nil {
		return nil, &clockerr.ContentIOError{Path: path, Err: err}
	}
	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, &clockerr.ContentIOError{Path: path, Err: err}
	}
	sum := sha1.Sum(out)
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, &clockerr.ContentIOError{Path: path, Err: err}
	}

	return &Content{f: tmp, sha1: sum, digest: hex.EncodeToString(sum[:]), path: path}, nil
}

// OpenArchive packs root into a spooled temp file via PackArchive and
// returns it as Content, ready to be served block-by-block over COPYDOWN/
// DATA exactly like a single file. Never cached: the archive's contents
// change whenever any file beneath root does, and bdfa.c never cached the
// packed form either.
func OpenArchive(root string) (*Content, error) {
	tmp, err := os.CreateTemp("", "clockd-copydown-*")
	if err != nil {
		return nil, &clockerr.ContentIOError{Path: root, Err: err}
	}
	h := sha1.New()
	if err := PackArchive(io.MultiWriter(tmp, h), root); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, err
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, &clockerr.ContentIOError{Path: root, Err: err}
	}
	var sum [20]byte
	copy(sum[:], h.Sum(nil))
	return &Content{f: tmp, sha1: sum, digest: hex.EncodeToString(sum[:]), path: root}, nil
}

func sha1Sum(f *os.File) ([20]byte, error) {
	h := sha1.New()
	if _, err := io.Copy(h, f); err != nil {
		return [20]byte{}, err
	}
	var out [20]byte
	copy(out[:], h.Sum(nil))
	return out, nil
}

// entryHeader is one copydown archive entry's fixed fields, written in the
// order original_source/src/bdfa.c's format describes: path length, path,
// mode, uid, gid, size.
type entryHeader struct {
	pathLen uint32
	path    string
	mode    uint32
	uid     uint32
	gid     uint32
	size    uint64
}

// PackArchive walks root and writes every regular file beneath it to w as a
// copydown archive: one entryHeader followed by size raw bytes, per entry,
// in lexical path order for determinism.
func PackArchive(w io.Writer, root string) error {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && isDotOrGit(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if isDotOrGit(d.Name()) {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return fmt.Errorf("walking %s: %w", root, err)
	}
	sort.Strings(paths)

	for _, path := range paths {
		if err := packEntry(w, root, path); err != nil {
			return err
		}
	}
	return nil
}

// isDotOrGit mirrors policyd's original copydown skip rule: dotfiles and
// the .git directory never make it into an archive.
func isDotOrGit(name string) bool {
	return len(name) > 0 && name[0] == '.'
}

func packEntry(w io.Writer, root, path string) error {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return fmt.Errorf("relativizing %s: %w", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return &clockerr.ContentIOError{Path: path, Err: err}
	}
	f, err := os.Open(path)
	if err != nil {
		return &clockerr.ContentIOError{Path: path, Err: err}
	}
	defer f.Close()

	uid, gid := statOwnership(info)
	hdr := entryHeader{
		pathLen: uint32(len(rel)),
		path:    rel,
		mode:    uint32(info.Mode().Perm()),
		uid:     uid,
		gid:     gid,
		size:    uint64(info.Size()),
	}
	if err := writeEntryHeader(w, hdr); err != nil {
		return err
	}
	if _, err := io.Copy(w, f); err != nil {
		return &clockerr.ContentIOError{Path: path, Err: err}
	}
	return nil
}
