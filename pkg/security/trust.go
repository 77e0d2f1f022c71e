package security

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"
)

// TrustDB is the flat-file trust database of spec.md §4.8: one
// "<hex pubkey> <identity>" line per trusted peer. Membership is by exact
// public key; identity is informational but checked when a caller supplies
// an expected identity at verify time.
type TrustDB struct {
	mu    sync.RWMutex
	byPub map[string]string // hex pubkey -> identity
	path  string
}

// LoadTrustDB reads a trust database from path. A missing file is treated
// as an empty, writable database.
func LoadTrustDB(path string) (*TrustDB, error) {
	db := &TrustDB{byPub: make(map[string]string), path: path}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return db, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening trust db %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t\r\n")
		if line == "" {
			continue
		}
		pubHex, identity, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("trust db %s: malformed line %q", path, line)
		}
		if _, err := hex.DecodeString(pubHex); err != nil {
			return nil, fmt.Errorf("trust db %s: bad pubkey hex %q: %w", path, pubHex, err)
		}
		db.byPub[pubHex] = identity
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading trust db %s: %w", path, err)
	}
	return db, nil
}

// Trusted reports whether pub is a known public key, and if so, under what
// identity it was recorded.
func (db *TrustDB) Trusted(pub []byte) (identity string, ok bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	identity, ok = db.byPub[hex.EncodeToString(pub)]
	return identity, ok
}

// Verify checks that pub is trusted, and — if wantIdentity is non-empty —
// that it is recorded under exactly that identity. Per spec.md §4.8's
// verify-flag semantics: a pubkey absent from the database fails when
// strict is true, and passes (as an anonymous/untrusted peer) when strict
// is false.
func (db *TrustDB) Verify(pub []byte, wantIdentity string, strict bool) bool {
	identity, ok := db.Trusted(pub)
	if !ok {
		return !strict
	}
	return wantIdentity == "" || identity == wantIdentity
}

// Add records pub under identity, overwriting any prior identity for that
// key, and persists the database to disk.
func (db *TrustDB) Add(pub []byte, identity string) error {
	db.mu.Lock()
	db.byPub[hex.EncodeToString(pub)] = identity
	db.mu.Unlock()
	return db.save()
}

// Remove deletes pub from the database and persists the change.
func (db *TrustDB) Remove(pub []byte) error {
	db.mu.Lock()
	delete(db.byPub, hex.EncodeToString(pub))
	db.mu.Unlock()
	return db.save()
}

// Entries returns a snapshot of every (pubkey-hex, identity) pair.
func (db *TrustDB) Entries() map[string]string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make(map[string]string, len(db.byPub))
	for k, v := range db.byPub {
		out[k] = v
	}
	return out
}

func (db *TrustDB) save() error {
	db.mu.RLock()
	var sb strings.Builder
	for pub, identity := range db.byPub {
		sb.WriteString(pub + " " + identity + "\n")
	}
	db.mu.RUnlock()
	if err := os.WriteFile(db.path, []byte(sb.String()), 0600); err != nil {
		return fmt.Errorf("writing trust db %s: %w", db.path, err)
	}
	return nil
}
