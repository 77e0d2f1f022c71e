// Package session implements spec.md §4.7's Session Cache: a fixed-capacity
// table of peer-id to Session, with a minimum-life window that protects
// recently active entries from best-effort purge sweeps and a force-touch
// hook for immediate eviction on BYE.
//
// Grounded on sigstore-policy-controller/pkg/webhook/registryauth's
// mutex-guarded wrapper around hashicorp/golang-lru/v2, adapted from a
// TTL-refresh cache to clockd's capacity+minimum-life eviction rule (an LRU
// cache alone doesn't express "full, but nothing old enough to evict" —
// CapacityExhausted — so golang-lru supplies storage/ordering while this
// package layers the age check and destructor callback on top).
package session

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/clockwork-org/clockd/pkg/ast"
	"github.com/clockwork-org/clockd/pkg/clockerr"
	"github.com/clockwork-org/clockd/pkg/evaluator"
	"github.com/clockwork-org/clockd/pkg/fact"
)

// State is the per-session protocol state spec.md §4.6 enumerates.
type State int

const (
	StateInit State = iota
	StateIdentified
	StateCopydown
	StatePolicy
	StateFile
	StateReport
)

// ContentHandle is the subset of content.Content the session needs to track
// an in-flight file transfer, kept as an interface here so pkg/session
// doesn't import pkg/content (layering: content is lower-level storage,
// session is a cache keyed by peer, not by content semantics).
type ContentHandle interface {
	Close() error
	Digest() string
}

// Session is one peer's per-connection record (spec.md §2 "Session /
// Client").
type Session struct {
	PeerID       string
	State        State
	Facts        *fact.Bundle
	Policy       *evaluator.Policy
	ManifestRoot ast.NodeRef
	Content      ContentHandle
	ContentSHA1  string
	offset       int64
	lastTouch    time.Time
	forced       bool
}

// Offset returns the session's current content read offset.
func (s *Session) Offset() int64 { return s.offset }

// SetOffset updates the session's current content read offset.
func (s *Session) SetOffset(off int64) { s.offset = off }

// Reset returns a session to the INIT state, dropping facts/policy/content
// (spec.md §2: "reset to INIT on BYE").
func (s *Session) Reset() {
	if s.Content != nil {
		s.Content.Close()
	}
	s.State = StateInit
	s.Facts = nil
	s.Policy = nil
	s.Content = nil
	s.ContentSHA1 = ""
	s.offset = 0
}

// Destructor is invoked once for every session a purge sweep or an explicit
// unset removes, so callers can release associated resources (open content
// handles, metrics).
type Destructor func(*Session)

// Cache is the bounded (peer id -> *Session) table of spec.md §4.7.
type Cache struct {
	mu       sync.Mutex
	lru      *lru.Cache[string, *Session]
	capacity int
	minLife  time.Duration
	destroy  Destructor
}

// New returns a Cache with the given capacity and minimum-life window. A
// nil destroy is treated as a no-op.
func New(capacity int, minLife time.Duration, destroy Destructor) (*Cache, error) {
	backing, err := lru.New[string, *Session](capacity)
	if err != nil {
		return nil, err
	}
	if destroy == nil {
		destroy = func(*Session) {}
	}
	return &Cache{lru: backing, capacity: capacity, minLife: minLife, destroy: destroy}, nil
}

// Get returns the session for peerID, if present.
func (c *Cache) Get(peerID string) (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Get(peerID)
}

// Set installs sess under peerID. If the cache is at capacity and no
// existing entry's age exceeds the minimum-life threshold, Set fails with
// CapacityExhausted and installs nothing — the caller should reply "server
// busy" (spec.md §4.7, §7).
func (c *Cache) Set(peerID string, sess *Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.lru.Peek(peerID); !exists && c.lru.Len() >= c.capacity {
		if !c.hasPurgeableLocked() {
			return &clockerr.CapacityExhausted{}
		}
		c.purgeLocked()
		if c.lru.Len() >= c.capacity {
			return &clockerr.CapacityExhausted{}
		}
	}
	sess.lastTouch = time.Now()
	c.lru.Add(peerID, sess)
	return nil
}

// Unset removes peerID's session, if present, invoking the destructor.
func (c *Cache) Unset(peerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sess, ok := c.lru.Get(peerID); ok {
		c.lru.Remove(peerID)
		c.destroy(sess)
	}
}

// Touch refreshes peerID's last-activity stamp. With force=true, the
// session's age is set to effectively infinite, making it immediately
// purgeable (spec.md §4.7: used on BYE).
func (c *Cache) Touch(peerID string, force bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sess, ok := c.lru.Peek(peerID)
	if !ok {
		return
	}
	if force {
		sess.forced = true
	} else {
		sess.lastTouch = time.Now()
		sess.forced = false
	}
}

// Purge removes every session whose age exceeds the minimum-life
// threshold (or which was force-touched), invoking the destructor for
// each. It returns the number of sessions removed.
func (c *Cache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.purgeLocked()
}

func (c *Cache) purgeLocked() int {
	var victims []string
	for _, key := range c.lru.Keys() {
		sess, ok := c.lru.Peek(key)
		if ok && c.purgeableLocked(sess) {
			victims = append(victims, key)
		}
	}
	for _, key := range victims {
		if sess, ok := c.lru.Get(key); ok {
			c.lru.Remove(key)
			c.destroy(sess)
		}
	}
	return len(victims)
}

func (c *Cache) purgeableLocked(sess *Session) bool {
	return sess.forced || time.Since(sess.lastTouch) > c.minLife
}

func (c *Cache) hasPurgeableLocked() bool {
	for _, key := range c.lru.Keys() {
		if sess, ok := c.lru.Peek(key); ok && c.purgeableLocked(sess) {
			return true
		}
	}
	return false
}

// Len returns the number of sessions currently held.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Snapshot returns peer id -> protocol state for every session currently
// held, for read-only introspection (pkg/adminsrv's /sessions endpoint).
func (c *Cache) Snapshot() map[string]State {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]State, c.lru.Len())
	for _, key := range c.lru.Keys() {
		if sess, ok := c.lru.Peek(key); ok {
			out[key] = sess.State
		}
	}
	return out
}
