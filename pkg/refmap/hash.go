package refmap

import (
	"hash/maphash"
	"unsafe"
)

// hasher computes maphash-based hashes for comparable K, seeded once per Map
// instance with maphash.MakeSeed(). This is the teacher's own hashing
// technique (github.com/Voskan/arena-cache's pkg/cache.go shard.hash): a
// type switch for the common string/[]byte cases, falling back to hashing
// the key's raw bytes for scalar types. We keep it verbatim because it is
// exactly the "Index" component's hasher contract (spec §4.2) — stable
// across resizes, called once per Insert or key lookup.
//
// hashBytes shares hash's seed, so a caller holding a borrowed view of a key
// (a []byte with the same bytes as a string key, say) can compute the same
// hash FindFunc needs without constructing an owned K — the Go expression
// of spec's Borrow<Q> lookup (SPEC_FULL.md §5).
type hasher[K comparable] struct {
	seed maphash.Seed
}

func newHasher[K comparable]() hasher[K] {
	return hasher[K]{seed: maphash.MakeSeed()}
}

func (h hasher[K]) hash(key K) uint64 {
	var mh maphash.Hash
	mh.SetSeed(h.seed)
	switch k := any(key).(type) {
	case string:
		mh.WriteString(k)
	case []byte:
		mh.Write(k)
	default:
		ptr := unsafe.Pointer(&key)
		size := unsafe.Sizeof(key)
		mh.Write(unsafe.Slice((*byte)(ptr), size))
	}
	return mh.Sum64()
}

func (h hasher[K]) hashBytes(b []byte) uint64 {
	var mh maphash.Hash
	mh.SetSeed(h.seed)
	mh.Write(b)
	return mh.Sum64()
}
