// Package registry implements the ConnectionRegistry: a process-wide set
// of active outbound TCP 5-tuples keyed by an opaque, length-prefixed
// session-id, so a capture engine sharing this process can recognise its
// own traffic. Grounded directly on original_source/capture/http.c's
// HASH_FIND/HASH_ADD bucketed hash table over ArkimeHttpConn_t and its
// connectionsSet fd bitset, with the fd bitset realised using
// github.com/bits-and-blooms/bitset (see DESIGN.md) instead of a
// fixed-size uint64 array.
package registry

import (
	"sync"

	"github.com/bits-and-blooms/bitset"
)

// Entry is one registered outbound connection. SessionID is opaque and
// length-prefixed: SessionID[0] is its own length, mirroring
// ARKIME_SESSIONID_LEN-bounded keys in the source.
type Entry struct {
	SessionID []byte
}

// sessionIDEqual mirrors arkime_http_conn_cmp's memcmp over
// min(len(a), len(b)) bytes — not a full-length compare. This is
// unusual but intentional: preserved verbatim per §9's open question
// rather than "fixed" to a saner full-length comparison.
func sessionIDEqual(a, b []byte) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Registry is the process-wide ConnectionRegistry. It is intentionally a
// package-level singleton candidate (callers construct one with New and
// share it across Server instances that sit behind the same capture
// plane, per §4.4) rather than a hidden global.
type Registry struct {
	mu      sync.RWMutex
	buckets map[uint32][]*Entry
	fds     *bitset.BitSet
	logger  func(format string, args ...interface{})
}

// New returns an empty Registry. logf receives duplicate-insert warnings
// (§4.4, §7) and must not block — callers typically pass a
// ports.Logger.Logf bound method.
func New(logf func(format string, args ...interface{})) *Registry {
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}
	return &Registry{
		buckets: make(map[uint32][]*Entry),
		fds:     bitset.New(1024),
		logger:  logf,
	}
}

// Insert adds a connection's session-id under hash, setting the fd bit so
// IsFD can answer in O(1). A duplicate session-id (same hash, memcmp-equal
// key) is logged and the existing entry kept — the new one is dropped
// without ever being allocated, which is the non-leaking variant of the
// source's documented leak (§9).
func (r *Registry) Insert(hash uint32, sessionID []byte, fd int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.buckets[hash] {
		if sessionIDEqual(e.SessionID, sessionID) {
			r.logger("registry: duplicate connection insert for session-id (hash=%d)", hash)
			r.fds.Set(uint(fd))
			return
		}
	}

	r.buckets[hash] = append(r.buckets[hash], &Entry{SessionID: sessionID})
	r.fds.Set(uint(fd))
}

// Remove deletes the connection identified by hash/sessionID and clears
// its fd bit. Removing an unknown session-id is a no-op.
func (r *Registry) Remove(hash uint32, sessionID []byte, fd int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bucket := r.buckets[hash]
	for i, e := range bucket {
		if sessionIDEqual(e.SessionID, sessionID) {
			bucket[i] = bucket[len(bucket)-1]
			r.buckets[hash] = bucket[:len(bucket)-1]
			break
		}
	}
	r.fds.Clear(uint(fd))
}

// IsOurs reports whether sessionID (looked up by hash) is a connection
// this process's pool currently has open — the host-facing IsArkime query.
func (r *Registry) IsOurs(hash uint32, sessionID []byte) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.buckets[hash] {
		if sessionIDEqual(e.SessionID, sessionID) {
			return true
		}
	}
	return false
}

// IsFD reports whether fd belongs to a connection this pool currently
// owns — the O(1) bitset test described in §3/§4.4.
func (r *Registry) IsFD(fd int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fds.Test(uint(fd))
}

// Count returns the number of distinct registered connections, used for
// Server's connections introspection counter.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, bucket := range r.buckets {
		n += len(bucket)
	}
	return n
}
