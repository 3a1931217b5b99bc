package refmap

import "errors"

// Sentinel errors, following the teacher's errInvalidCap-style package-level
// var block (pkg/config.go) rather than per-call error construction.
var (
	// ErrDuplicateKey is returned by Insert/InsertWith when the key already
	// has a live Ref somewhere.
	ErrDuplicateKey = errors.New("refmap: key already has a live reference")

	// ErrWrongMap is returned by Ref.Key/Ref.Value/Ref.ValueMut when called
	// against a Map that did not mint the Ref.
	ErrWrongMap = errors.New("refmap: ref does not belong to this map")
)
