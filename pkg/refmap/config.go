package refmap

// config.go defines the functional-option configuration surface, following
// the teacher's pkg/config.go pattern: a private config[K,V] struct filled
// in by defaultConfig and mutated, in order, by the slice of Option[K,V]
// closures that applyOptions runs.
//
// © 2025 refmap authors. MIT License.

import (
	"github.com/dgraph-io/badger/v4"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Option configures a Map at construction time.
type Option[K comparable, V any] func(*config[K, V])

type config[K comparable, V any] struct {
	registry *prometheus.Registry
	logger   *zap.Logger
	hashFn   func(K) uint64

	journalDB        *badger.DB
	journalEncodeKey func(K) []byte
}

func defaultConfig[K comparable, V any]() *config[K, V] {
	return &config[K, V]{
		logger: zap.NewNop(),
	}
}

// WithMetrics enables Prometheus metrics collection for the Map. Passing
// nil disables metrics (the default).
func WithMetrics[K comparable, V any](reg *prometheus.Registry) Option[K, V] {
	return func(c *config[K, V]) {
		c.registry = reg
	}
}

// WithLogger plugs an external zap.Logger. The map never logs on the hot
// path (Insert/Find/Clone/Release); the only events it logs are journal
// errors and Map.Close. Fail-fast conditions (reentrancy, token leaks,
// counter overflow) panic unlogged, the same way the teacher's
// invariant-violation panics do — they are programmer errors, not events
// to report and continue past.
func WithLogger[K comparable, V any](l *zap.Logger) Option[K, V] {
	return func(c *config[K, V]) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithHasher overrides the Map's default maphash-based hasher with h,
// mirroring original_source/src/rc_hash_map.rs's `with_hasher(hasher: S)`
// constructor (spec.md's required `Map::with_hasher` surface). h must be
// deterministic for a given key, exactly like the default hasher's
// contract (SPEC_FULL.md §5). Supplying a custom hasher disables
// Map.HashBytes, since there is no guarantee a caller-supplied hash
// function treats a byte-slice view the way the default one does.
func WithHasher[K comparable, V any](h func(K) uint64) Option[K, V] {
	return func(c *config[K, V]) {
		c.hashFn = h
	}
}

// WithJournal enables the optional durability journal (see journal.go):
// every Insert that produces a live Ref is recorded in db, and the record
// is deleted once the entry's last Ref is released. encodeKey must be a
// deterministic, collision-free encoding of K.
func WithJournal[K comparable, V any](db *badger.DB, encodeKey func(K) []byte) Option[K, V] {
	return func(c *config[K, V]) {
		c.journalDB = db
		c.journalEncodeKey = encodeKey
	}
}

func applyOptions[K comparable, V any](cfg *config[K, V], opts []Option[K, V]) {
	for _, opt := range opts {
		opt(cfg)
	}
}
