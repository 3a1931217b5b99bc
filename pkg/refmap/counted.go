package refmap

// counted.go implements the Counted Map layer (spec §4.4): a structmap.Map
// whose values each carry their own count.Counter, so a handle returned by
// find/findFunc/get/insertWith/iterRaw represents one live reference rather than bare
// storage access. This mirrors original_source/src/counted_hash_map.rs's
// CountedHashMap<K,V> built over HandleHashMap<K, Counted<V>>.
//
// © 2025 refmap authors. MIT License.

import (
	"github.com/Voskan/refmap/internal/count"
	"github.com/Voskan/refmap/internal/structmap"
)

// countedHandle pairs a structural handle with the linear Token minted for
// it; it must be returned via countedMap.put exactly once.
type countedHandle struct {
	handle structmap.Handle
	token  count.Token
}

type counted[V any] struct {
	counter count.Counter
	value   V
}

// putResult reports what happened when the last outstanding token for an
// entry was returned.
type putResult[K comparable, V any] struct {
	removed bool
	key     K
	value   V
}

// countedMap layers per-entry reference counting over a structmap.Map.
type countedMap[K comparable, V any] struct {
	inner *structmap.Map[K, counted[V]]
}

func newCountedMap[K comparable, V any](hashFn func(K) uint64) *countedMap[K, V] {
	return &countedMap[K, V]{inner: structmap.New[K, counted[V]](hashFn)}
}

func (m *countedMap[K, V]) Len() int           { return m.inner.Len() }
func (m *countedMap[K, V]) IsEmpty() bool      { return m.inner.IsEmpty() }
func (m *countedMap[K, V]) ContainsKey(k K) bool { return m.inner.ContainsKey(k) }

// ContainsKeyFunc is the borrowed-key counterpart of ContainsKey: it checks
// presence under a caller-supplied hash and equality predicate, minting no
// token.
func (m *countedMap[K, V]) ContainsKeyFunc(hash uint64, equalFn func(K) bool) bool {
	return m.inner.ContainsKeyFunc(hash, equalFn)
}

// find locates key and mints a fresh token for it, or reports absence.
func (m *countedMap[K, V]) find(key K, newCounter func() count.Counter) (countedHandle, bool) {
	h, ok := m.inner.FindKey(key)
	if !ok {
		return countedHandle{}, false
	}
	c := m.inner.ValuePtr(h)
	return countedHandle{handle: h, token: c.counter.Acquire()}, true
}

// findFunc is find's borrowed-key counterpart: hash and equalFn let a
// caller look up an entry via a borrowed form of K (spec's find(q)) without
// Go generics needing to express K: Borrow<Q>.
func (m *countedMap[K, V]) findFunc(hash uint64, equalFn func(K) bool, newCounter func() count.Counter) (countedHandle, bool) {
	h, ok := m.inner.Find(hash, equalFn)
	if !ok {
		return countedHandle{}, false
	}
	c := m.inner.ValuePtr(h)
	return countedHandle{handle: h, token: c.counter.Acquire()}, true
}

// get mints another token for the entry ch already refers to, validating
// that it is still live (it always should be, since ch itself is a live
// token).
func (m *countedMap[K, V]) get(ch countedHandle) countedHandle {
	c := m.inner.ValuePtr(ch.handle)
	if c == nil {
		panic("refmap: countedMap.get called with a handle for an already-removed entry")
	}
	return countedHandle{handle: ch.handle, token: c.counter.Acquire()}
}

// insertWith inserts key with a lazily produced value, minting the first
// token for it via newCounter. thunk runs only when the insert succeeds.
func (m *countedMap[K, V]) insertWith(key K, thunk func() V, newCounter func() count.Counter) (countedHandle, error) {
	var tok count.Token
	h, err := m.inner.InsertWith(key, func() counted[V] {
		c := newCounter()
		tok = c.Acquire()
		return counted[V]{counter: c, value: thunk()}
	})
	if err != nil {
		return countedHandle{}, err
	}
	return countedHandle{handle: h, token: tok}, nil
}

func (m *countedMap[K, V]) valuePtr(h structmap.Handle) *V {
	c := m.inner.ValuePtr(h)
	if c == nil {
		return nil
	}
	return &c.value
}

func (m *countedMap[K, V]) keyOf(h structmap.Handle) (K, bool) {
	return m.inner.Key(h)
}

// put returns ch's token; when it was the last outstanding token for its
// entry, the entry is physically removed and its key/value returned.
func (m *countedMap[K, V]) put(ch countedHandle) putResult[K, V] {
	c := m.inner.ValuePtr(ch.handle)
	if c == nil {
		panic("refmap: put called with a countedHandle for an already-removed entry")
	}
	if !c.counter.Release(ch.token) {
		return putResult[K, V]{}
	}
	k, v, ok := m.inner.Remove(ch.handle)
	if !ok {
		panic("refmap: entry vanished between counter reaching zero and removal")
	}
	return putResult[K, V]{removed: true, key: k, value: v.value}
}

// iterRaw calls fn once per live entry, minting a fresh token for each one.
// Every minted countedHandle must eventually be returned via put.
func (m *countedMap[K, V]) iterRaw(fn func(countedHandle, K, *V) bool) {
	m.inner.Iter(func(h structmap.Handle, k K, c *counted[V]) bool {
		ch := countedHandle{handle: h, token: c.counter.Acquire()}
		return fn(ch, k, &c.value)
	})
}
