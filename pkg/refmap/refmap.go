// Package refmap implements a single-threaded, in-memory, reference-counted
// associative container with generational handles (spec §4). A Map never
// evicts: an entry lives exactly as long as at least one Ref to it is
// outstanding, and is removed the instant the last Ref is released. Refs
// held inside a removed key or value are not released by that removal; a
// DAG cascade proceeds only as the caller releases those Refs itself.
//
// The three-layer design (internal/structmap's hash index + generational
// arena, internal/count's per-entry reference counting, this package's
// public Ref/Map) mirrors original_source's HandleHashMap ->
// CountedHashMap -> RcHashMap layering one to one.
//
// © 2025 refmap authors. MIT License.
package refmap

import (
	"unsafe"

	"github.com/Voskan/refmap/internal/count"
	"go.uber.org/zap"
)

// rcVal wraps a user value with the keepalive token that, while held,
// proves the owning container is still alive. Go's garbage collector
// already keeps container reachable as long as any Map or Ref points to
// it; the keepalive counter is kept anyway so the container-wide strong
// count stays observable the way original_source's Inner::keepalive is
// (see DESIGN.md's Open Question resolution on Rc vs. GC keepalive).
type rcVal[V any] struct {
	value     V
	keepalive count.Token
}

// container holds a Map's shared state. Map and every Ref minted from it
// hold a pointer to the same container; there is exactly one per Map.
type container[K comparable, V any] struct {
	m         *countedMap[K, rcVal[V]]
	keepalive *count.KeepaliveCounter
	strong    int32

	cfg     *config[K, V]
	metrics metricsSink
	journal *journal[K]

	// hashBytes hashes a raw byte slice under the same seed as the default
	// hasher, for borrowed-key lookups (HashBytes/FindFunc). nil when the
	// Map was constructed with WithHasher, since a caller-supplied hash
	// function has no byte-hashing counterpart to share.
	hashBytes func([]byte) uint64
}

// Map is refmap's public, reference-counted associative container.
type Map[K comparable, V any] struct {
	c *container[K, V]
}

// New constructs an empty Map.
func New[K comparable, V any](opts ...Option[K, V]) *Map[K, V] {
	cfg := defaultConfig[K, V]()
	applyOptions(cfg, opts)

	c := &container[K, V]{
		cfg:     cfg,
		metrics: newMetricsSink(cfg.registry),
	}
	c.keepalive = count.NewKeepaliveCounter(&c.strong)

	hashFn := cfg.hashFn
	if hashFn == nil {
		h := newHasher[K]()
		hashFn = h.hash
		c.hashBytes = h.hashBytes
	}
	c.m = newCountedMap[K, rcVal[V]](hashFn)
	if cfg.journalDB != nil {
		c.journal = newJournal[K](cfg.journalDB, cfg.journalEncodeKey)
	}
	return &Map[K, V]{c: c}
}

func newIntCounter() count.Counter { return count.NewIntCounter(0) }

// Len returns the number of live entries.
func (m *Map[K, V]) Len() int { return m.c.m.Len() }

// IsEmpty reports whether the map has no live entries.
func (m *Map[K, V]) IsEmpty() bool { return m.c.m.IsEmpty() }

// ContainsKey reports whether key currently has a live entry.
func (m *Map[K, V]) ContainsKey(key K) bool { return m.c.m.ContainsKey(key) }

// Insert adds key -> value and returns a Ref owning the new entry, or
// ErrDuplicateKey if key already has a live entry.
func (m *Map[K, V]) Insert(key K, value V) (Ref[K, V], error) {
	return m.InsertWith(key, func() V { return value })
}

// InsertWith is like Insert, but value is produced lazily: thunk runs only
// when the insert succeeds, never on a rejected duplicate.
func (m *Map[K, V]) InsertWith(key K, thunk func() V) (Ref[K, V], error) {
	c := m.c
	ch, err := c.m.insertWith(key, func() rcVal[V] {
		return rcVal[V]{value: thunk(), keepalive: c.keepalive.Acquire()}
	}, newIntCounter)
	if err != nil {
		c.metrics.incDuplicateRejected()
		return Ref[K, V]{}, ErrDuplicateKey
	}
	c.metrics.incInsert()
	c.metrics.setLiveEntries(c.m.Len())
	if c.journal != nil {
		if jerr := c.journal.recordLive(key); jerr != nil {
			c.cfg.logger.Warn("refmap: journal recordLive failed", zap.Error(jerr))
		}
	}
	return Ref[K, V]{c: c, h: ch}, nil
}

// Find returns a Ref to key's live entry, if any.
func (m *Map[K, V]) Find(key K) (Ref[K, V], bool) {
	c := m.c
	ch, ok := c.m.find(key, newIntCounter)
	if !ok {
		return Ref[K, V]{}, false
	}
	return Ref[K, V]{c: c, h: ch}, true
}

// FindFunc is Find's borrowed-key counterpart: hash and equalFn let a
// caller look up an entry via a borrowed form of K (spec's find(q), where q
// is a borrowed form of K found through hash(q) plus an equality
// predicate) without Go generics needing to express K: Borrow<Q>. HashBytes
// computes a hash consistent with hash for byte-slice views of a key.
func (m *Map[K, V]) FindFunc(hash uint64, equalFn func(K) bool) (Ref[K, V], bool) {
	c := m.c
	ch, ok := c.m.findFunc(hash, equalFn, newIntCounter)
	if !ok {
		return Ref[K, V]{}, false
	}
	return Ref[K, V]{c: c, h: ch}, true
}

// ContainsKeyFunc is ContainsKey's borrowed-key counterpart, checking
// presence under a caller-supplied hash and equality predicate without
// minting a Ref.
func (m *Map[K, V]) ContainsKeyFunc(hash uint64, equalFn func(K) bool) bool {
	return m.c.m.ContainsKeyFunc(hash, equalFn)
}

// HashBytes hashes b under the same seed as the Map's default hasher, for
// FindFunc/ContainsKeyFunc lookups keyed by a borrowed byte-slice view of K
// (for instance looking up a string-keyed Map by a []byte holding the same
// bytes, with no string allocation). It reports false if the Map was
// constructed with WithHasher, since a caller-supplied hash function has no
// byte-hashing counterpart to share.
func (m *Map[K, V]) HashBytes(b []byte) (uint64, bool) {
	if m.c.hashBytes == nil {
		return 0, false
	}
	return m.c.hashBytes(b), true
}

// Close logs m's closure, mirroring the teacher's Cache.Close
// (pkg/cache.go): it logs at Info, or warns if entries are still live,
// since that means Refs are outstanding when the caller expected to be
// done with the Map (those Refs keep m.c reachable via Go's garbage
// collector regardless, so Close never frees anything early — see
// DESIGN.md's Open Question resolution on Rc vs. GC keepalive). Close does
// not close a caller-supplied WithJournal database; the caller owns that
// database's lifetime.
func (m *Map[K, V]) Close() {
	if n := m.c.m.Len(); n > 0 {
		m.c.cfg.logger.Warn("refmap: Map closed with live entries outstanding", zap.Int("live_entries", n))
		return
	}
	m.c.cfg.logger.Info("refmap: Map closed")
}

// Ref is a live reference to one entry of a Map. Cloning mints another
// reference to the same entry; Release returns one. An entry is physically
// removed exactly when its last outstanding Ref is released; Refs that the
// removed value itself holds are not released by that.
type Ref[K comparable, V any] struct {
	c *container[K, V]
	h countedHandle
}

func (r Ref[K, V]) sameOwner(m *Map[K, V]) bool { return r.c == m.c }

// Clone mints a new Ref to the same entry, incrementing its per-entry
// reference count.
func (r Ref[K, V]) Clone() Ref[K, V] {
	r.c.metrics.incClone()
	return Ref[K, V]{c: r.c, h: r.c.m.get(r.h)}
}

// Release returns this Ref's token. If it was the last outstanding Ref for
// the entry, the entry is physically removed immediately: it is unlinked
// from the map first, and the container's keepalive token is released
// last, following original_source/src/rc_hash_map.rs's Drop order. Release
// does not release any Ref held inside the removed key or value; cascading
// into such Refs is left to the caller, which then observes a fully
// unlinked entry.
func (r Ref[K, V]) Release() {
	res := r.c.m.put(r.h)
	if !res.removed {
		return
	}
	r.c.metrics.incRemove()
	r.c.metrics.setLiveEntries(r.c.m.Len())
	if r.c.journal != nil {
		if jerr := r.c.journal.recordGone(res.key); jerr != nil {
			r.c.cfg.logger.Warn("refmap: journal recordGone failed", zap.Error(jerr))
		}
	}
	r.c.keepalive.Release(res.value.keepalive)
}

// Key returns the entry's key, or ErrWrongMap if m did not mint this Ref.
func (r Ref[K, V]) Key(m *Map[K, V]) (K, error) {
	if !r.sameOwner(m) {
		var zero K
		return zero, ErrWrongMap
	}
	k, ok := r.c.m.keyOf(r.h.handle)
	if !ok {
		var zero K
		return zero, ErrWrongMap
	}
	return k, nil
}

// Value returns a copy of the entry's value, or ErrWrongMap if m did not
// mint this Ref.
func (r Ref[K, V]) Value(m *Map[K, V]) (V, error) {
	if !r.sameOwner(m) {
		var zero V
		return zero, ErrWrongMap
	}
	vp := r.c.m.valuePtr(r.h.handle)
	if vp == nil {
		var zero V
		return zero, ErrWrongMap
	}
	return vp.value, nil
}

// ValueMut returns a pointer to the entry's value for in-place mutation, or
// ErrWrongMap if m did not mint this Ref. The pointer is valid until the
// next structural mutation of m.
func (r Ref[K, V]) ValueMut(m *Map[K, V]) (*V, error) {
	if !r.sameOwner(m) {
		return nil, ErrWrongMap
	}
	vp := r.c.m.valuePtr(r.h.handle)
	if vp == nil {
		return nil, ErrWrongMap
	}
	return &vp.value, nil
}

// Equal reports whether r and other refer to the same entry of the same
// Map.
func (r Ref[K, V]) Equal(other Ref[K, V]) bool {
	return r.c == other.c && r.h.handle == other.h.handle
}

// HashKey returns a stable identity hash for r, letting Refs serve as plain
// map keys or set members despite Go generics having no Hash trait to
// implement (unlike original_source's Hash impl on Ref).
func (r Ref[K, V]) HashKey() uint64 {
	owner := uint64(uintptr(unsafe.Pointer(r.c)))
	return owner<<20 ^ uint64(r.h.handle.Index)<<12 ^ uint64(r.h.handle.Generation)
}

// Iter calls fn once for every live entry, minting a fresh Ref for each. A
// Ref passed to fn must be Cloned to retain beyond the call.
func (m *Map[K, V]) Iter(fn func(ref Ref[K, V], key K) bool) {
	c := m.c
	c.m.iterRaw(func(ch countedHandle, k K, _ *rcVal[V]) bool {
		ref := Ref[K, V]{c: c, h: ch}
		cont := fn(ref, k)
		ref.Release()
		return cont
	})
}

// ItemMut is yielded by IterMut: a Ref paired with the entry's key and a
// mutable pointer to its value.
type ItemMut[K comparable, V any] struct {
	Ref   Ref[K, V]
	Key   K
	Value *V
}

// IterMut calls fn once for every live entry with a mutable value pointer.
// Per spec §10's conservative iterMut rule, fn may Release or Clone the
// current item's Ref, but must not trigger removal of an entry IterMut has
// not yet visited.
func (m *Map[K, V]) IterMut(fn func(item ItemMut[K, V]) bool) {
	c := m.c
	c.m.iterRaw(func(ch countedHandle, k K, v *rcVal[V]) bool {
		return fn(ItemMut[K, V]{Ref: Ref[K, V]{c: c, h: ch}, Key: k, Value: &v.value})
	})
}
