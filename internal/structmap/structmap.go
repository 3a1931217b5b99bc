// Package structmap implements refmap's structural map (spec §4.2): a hash
// index layered over internal/slotarena's generational slot storage. It
// gives O(1) handle-based access without re-hashing, and survives slot
// reuse because every handle carries the slot's generation.
//
// The split (open-addressed index storing slot ids + generational arena
// storing the entries) mirrors original_source/src/util_handle_map.rs's
// HandleHashMap, which layers hashbrown::raw::RawTable over
// slotmap::SlotMap. Go has neither crate; the index below is a from-scratch
// linear-probed, backward-shift-deletion open-addressing table, and
// internal/slotarena plays the role of SlotMap.
//
// Every exported method except Len, IsEmpty and Iter is wrapped in
// internal/reentrancy.Guard (ContainsKey through FindKey), following
// the original's DebugReentrancy discipline: the map invokes user-supplied
// equality predicates during probes and hands K/V back to the caller during
// Remove, whose own cleanup may re-enter the map. Removal unlinks the index
// entry before removing the slot, so any such re-entry observes a fully
// consistent structure (spec §4.2 "Removal ordering").
//
// © 2025 refmap authors. MIT License.
package structmap

import (
	"fmt"

	"github.com/Voskan/refmap/internal/reentrancy"
	"github.com/Voskan/refmap/internal/slotarena"
)

// Handle re-exports slotarena.Handle as the structural map's handle type.
type Handle = slotarena.Handle

// ErrDuplicateKey is returned by Insert/InsertWith when the key already has
// a live entry.
type ErrDuplicateKey struct{ msg string }

func (e *ErrDuplicateKey) Error() string { return e.msg }

var errDuplicateKey = &ErrDuplicateKey{msg: "structmap: duplicate key"}

type entry[K comparable, V any] struct {
	key   K
	value V
	hash  uint64
}

type bucket struct {
	used   bool
	hash   uint64
	handle slotarena.Handle
}

const emptyHandleIndex = ^uint32(0)

// Map is a hash index + generational slot table keyed by K, storing V,
// addressable by both key and stable Handle.
type Map[K comparable, V any] struct {
	hashFn func(K) uint64
	table  []bucket
	mask   uint64
	size   int
	arena  *slotarena.Arena[entry[K, V]]
	guard  reentrancy.Guard
}

const initialCapacity = 8

// New constructs an empty structural map. hashFn must be deterministic and
// is invoked on the key passed to Insert/InsertWith/FindKey/ContainsKey; a
// stored entry's hash is never recomputed (spec's "hash stability"
// invariant — resizes reuse the stored hash).
func New[K comparable, V any](hashFn func(K) uint64) *Map[K, V] {
	m := &Map[K, V]{
		hashFn: hashFn,
		arena:  slotarena.New[entry[K, V]](),
	}
	m.table = make([]bucket, initialCapacity)
	for i := range m.table {
		m.table[i].handle.Index = emptyHandleIndex
	}
	m.mask = uint64(initialCapacity - 1)
	return m
}

// Len returns the number of live entries.
func (m *Map[K, V]) Len() int { return m.size }

// IsEmpty reports whether the map has no live entries.
func (m *Map[K, V]) IsEmpty() bool { return m.size == 0 }

func (m *Map[K, V]) homeOf(hash uint64) int { return int(hash & m.mask) }

// probe walks the linear probe sequence starting at hash's home bucket,
// calling pred for each occupied bucket whose stored hash equals hash and
// stopping at the first empty bucket (or when pred reports a match). It returns the index
// of the match (if found) and the index of the first empty bucket seen
// (valid for insertion) plus whether a match was found.
func (m *Map[K, V]) probe(hash uint64, pred func(slotarena.Handle) bool) (matchIdx int, insertIdx int, found bool) {
	n := len(m.table)
	start := m.homeOf(hash)
	insertIdx = -1
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		b := &m.table[idx]
		if !b.used {
			if insertIdx == -1 {
				insertIdx = idx
			}
			return 0, insertIdx, false
		}
		if b.hash == hash && pred(b.handle) {
			return idx, insertIdx, true
		}
	}
	return 0, insertIdx, false
}

func (m *Map[K, V]) keyEqual(handle slotarena.Handle, key K) bool {
	e, ok := m.arena.Get(handle)
	return ok && e.key == key
}

func (m *Map[K, V]) grow() {
	old := m.table
	newCap := len(old) * 2
	m.table = make([]bucket, newCap)
	for i := range m.table {
		m.table[i].handle.Index = emptyHandleIndex
	}
	m.mask = uint64(newCap - 1)

	// Rehash using each entry's stored hash; the hash function is never
	// invoked again.
	m.arena.Iter(func(h slotarena.Handle, e *entry[K, V]) bool {
		_, insertIdx, _ := m.probe(e.hash, func(slotarena.Handle) bool { return false })
		m.table[insertIdx] = bucket{used: true, hash: e.hash, handle: h}
		return true
	})
}

func (m *Map[K, V]) maybeGrow() {
	// Keep load factor at or below 0.75.
	if (m.size+1)*4 > len(m.table)*3 {
		m.grow()
	}
}

// Insert adds key -> value and returns its handle, or ErrDuplicateKey if the
// key already has a live entry (no side effects on failure).
func (m *Map[K, V]) Insert(key K, value V) (slotarena.Handle, error) {
	return m.InsertWith(key, func() V { return value })
}

// InsertWith is like Insert but the value-producing thunk runs only on a
// successful insert; on DuplicateKey it is never invoked.
func (m *Map[K, V]) InsertWith(key K, thunk func() V) (slotarena.Handle, error) {
	s := m.guard.Enter()
	defer s.Exit()

	hash := m.hashFn(key)

	// First pass: detect duplicates without mutating anything, so a late
	// collision after growth leaves the map untouched and the thunk unrun.
	if _, _, found := m.probe(hash, func(h slotarena.Handle) bool { return m.keyEqual(h, key) }); found {
		return slotarena.Handle{}, errDuplicateKey
	}

	m.maybeGrow()

	_, insertIdx, found := m.probe(hash, func(h slotarena.Handle) bool { return m.keyEqual(h, key) })
	if found {
		// Growth changed nothing about key presence, but guard against the
		// theoretical case of a hash function that is not referentially
		// stable across calls (a programmer error outside our control).
		return slotarena.Handle{}, errDuplicateKey
	}
	if insertIdx == -1 {
		panic("structmap: no vacant bucket found after growth; load-factor invariant violated")
	}

	handle := m.arena.Insert(entry[K, V]{key: key, value: thunk(), hash: hash})
	m.table[insertIdx] = bucket{used: true, hash: hash, handle: handle}
	m.size++
	return handle, nil
}

// Find looks up the handle for the entry whose stored hash equals hash and
// whose key satisfies equalFn. This is the borrowed-key lookup primitive
// spec's find(q) describes (q a borrowed form of K, looked up via hash(q)
// plus an equality predicate): Go generics cannot express K: Borrow<Q>, so
// the caller supplies hash and equalFn directly instead of an owned Q.
// FindKey wraps this for the common case of looking up by an owned K.
func (m *Map[K, V]) Find(hash uint64, equalFn func(K) bool) (slotarena.Handle, bool) {
	s := m.guard.Enter()
	defer s.Exit()
	return m.findLocked(hash, equalFn)
}

func (m *Map[K, V]) findLocked(hash uint64, equalFn func(K) bool) (slotarena.Handle, bool) {
	idx, _, found := m.probe(hash, func(h slotarena.Handle) bool {
		e, ok := m.arena.Get(h)
		return ok && equalFn(e.key)
	})
	if !found {
		return slotarena.Handle{}, false
	}
	return m.table[idx].handle, true
}

// FindKey looks up the handle for the entry whose key equals key — Find's
// convenience wrapper for the Q == K case.
func (m *Map[K, V]) FindKey(key K) (slotarena.Handle, bool) {
	s := m.guard.Enter()
	defer s.Exit()
	return m.findLocked(m.hashFn(key), func(k K) bool { return k == key })
}

// ContainsKey reports whether key has a live entry.
func (m *Map[K, V]) ContainsKey(key K) bool {
	_, found := m.FindKey(key)
	return found
}

// ContainsKeyFunc is ContainsKey's borrowed-key counterpart: it reports
// whether a live entry satisfies equalFn under hash, without minting
// anything beyond the lookup itself.
func (m *Map[K, V]) ContainsKeyFunc(hash uint64, equalFn func(K) bool) bool {
	s := m.guard.Enter()
	defer s.Exit()
	_, found := m.findLocked(hash, equalFn)
	return found
}

// Remove removes the entry referenced by h, returning its key and value.
// Unlinks the index entry before removing the slot, so any user code that
// runs while the caller drops the returned K/V may safely re-enter the map.
func (m *Map[K, V]) Remove(h slotarena.Handle) (K, V, bool) {
	s := m.guard.Enter()
	defer s.Exit()

	var zeroK K
	var zeroV V

	e, ok := m.arena.Get(h)
	if !ok {
		return zeroK, zeroV, false
	}

	idx, _, found := m.probe(e.hash, func(candidate slotarena.Handle) bool { return candidate == h })
	if !found {
		panic(fmt.Sprintf("structmap: index/slot inconsistency: live slot %v missing from index", h))
	}
	m.removeBucketBackwardShift(idx)

	got, removed := m.arena.Remove(h)
	if !removed {
		panic("structmap: slot disappeared between index lookup and removal")
	}
	return got.key, got.value, true
}

// removeBucketBackwardShift empties table[idx] and shifts entries from the
// following run of occupied buckets backward to close the probe-sequence
// gap, avoiding tombstones (linear-probing backward-shift deletion).
func (m *Map[K, V]) removeBucketBackwardShift(idx int) {
	n := len(m.table)
	m.table[idx].used = false
	m.table[idx].handle.Index = emptyHandleIndex

	cur := idx
	next := (idx + 1) % n
	for m.table[next].used {
		// Move the entry at next into the gap at cur unless its home lies
		// cyclically in (cur, next]: a probe starting from such a home
		// begins past cur and would never reach the entry there.
		home := m.homeOf(m.table[next].hash)
		if (cur < next && (home <= cur || home > next)) || (cur > next && home <= cur && home > next) {
			m.table[cur] = m.table[next]
			m.table[next].used = false
			m.table[next].handle.Index = emptyHandleIndex
			cur = next
		}
		next = (next + 1) % n
	}
	m.size--
}

// Value returns a copy of the value for h.
func (m *Map[K, V]) Value(h slotarena.Handle) (V, bool) {
	s := m.guard.Enter()
	defer s.Exit()
	e, ok := m.arena.Get(h)
	if !ok {
		var zero V
		return zero, false
	}
	return e.value, true
}

// ValuePtr returns a pointer to the value for h, valid until the next
// structural mutation (Insert/Remove) of the map.
func (m *Map[K, V]) ValuePtr(h slotarena.Handle) *V {
	s := m.guard.Enter()
	defer s.Exit()
	e := m.arena.GetPtr(h)
	if e == nil {
		return nil
	}
	return &e.value
}

// Key returns a copy of the key for h.
func (m *Map[K, V]) Key(h slotarena.Handle) (K, bool) {
	s := m.guard.Enter()
	defer s.Exit()
	e, ok := m.arena.Get(h)
	if !ok {
		var zero K
		return zero, false
	}
	return e.key, true
}

// Iter calls fn once for every live (Handle, K, *V), in unspecified but
// deterministic order for an unmodified map. Iter takes no reentrancy
// guard. fn must not insert into the map; it may Remove entries, and a
// removed entry not yet reached is skipped.
func (m *Map[K, V]) Iter(fn func(slotarena.Handle, K, *V) bool) {
	m.arena.Iter(func(h slotarena.Handle, e *entry[K, V]) bool {
		return fn(h, e.key, &e.value)
	})
}
