package refmap

// journal.go repurposes github.com/dgraph-io/badger/v4 — the teacher's
// second-level disk store behind EjectCallback (pkg/cache.go, examples/
// disk_eject) — as an optional durability journal. Rather than caching
// evicted values (this map never evicts), the journal tracks which keys
// currently have at least one live Ref. A process that crashes while
// holding Refs can replay the journal on restart to recover that Ref-free
// keyset, something original_source has no equivalent of (the Rust crate
// is purely in-memory) but which is natural for the interner/DAG-store use
// cases spec.md §1 names.
//
// © 2025 refmap authors. MIT License.

import (
	"github.com/dgraph-io/badger/v4"
)

// journal records key presence in a badger.DB keyed by an opaque encoded
// key. It never stores values — only "this key currently has a live Ref".
type journal[K comparable] struct {
	db        *badger.DB
	encodeKey func(K) []byte
}

func newJournal[K comparable](db *badger.DB, encodeKey func(K) []byte) *journal[K] {
	return &journal[K]{db: db, encodeKey: encodeKey}
}

// recordLive marks key as having at least one outstanding Ref.
func (j *journal[K]) recordLive(key K) error {
	if j == nil {
		return nil
	}
	return j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(j.encodeKey(key), []byte{1})
	})
}

// recordGone marks key as no longer having any outstanding Ref.
func (j *journal[K]) recordGone(key K) error {
	if j == nil {
		return nil
	}
	return j.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(j.encodeKey(key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
}

// RecoverLiveKeys replays a journal database written by a prior process,
// decoding each recorded key with decodeKey. It is a package-level helper
// rather than a Map method because recovery happens before a Map exists:
// callers typically Insert the decoded keys back into a fresh Map and
// re-derive their values from whatever system of record produced them
// originally (the journal intentionally does not persist values).
func RecoverLiveKeys[K comparable](db *badger.DB, decodeKey func([]byte) K) ([]K, error) {
	var keys []K
	err := db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			k := item.KeyCopy(nil)
			keys = append(keys, decodeKey(k))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}
