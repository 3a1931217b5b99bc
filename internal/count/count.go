// Package count implements refmap's per-entry reference counters (spec
// §4.3): a Counter mints Tokens on Acquire and consumes them
// on Release, reporting when the count has reached zero.
//
// original_source/src/tokens.rs expresses a Token as a value whose Drop
// impl panics unless core::mem::forget'd by Count::put — the borrow
// checker then statically forbids using a Token after that. Go has
// neither a borrow checker nor a Drop hook, so Token instead carries an
// explicit consumed flag: Release panics if called twice, and a
// runtime.SetFinalizer net (grounded on pebble's invariants.SetFinalizer
// leak check, see other_examples) reports a Token that was garbage
// collected while still unconsumed. The finalizer is a diagnostic
// best-effort net, not a guarantee — Go finalizers run at the GC's
// discretion and may never run for a short-lived process.
//
// © 2025 refmap authors. MIT License.
package count

import (
	"fmt"
	"math"
	"runtime"
)

// Counter is a source of counted references, enforced by Token flow: every
// Acquire must eventually be matched by exactly one Release of the token it
// returned.
type Counter interface {
	// Acquire mints a new Token representing one held reference.
	Acquire() Token
	// Release consumes a Token previously minted by this Counter. It
	// panics if t was not minted by this Counter or has already been
	// released. It returns true if the count reached zero.
	Release(t Token) bool
}

// Token is a linear proof that a reference was acquired from a particular
// Counter. The zero Token is invalid; only values returned by
// Counter.Acquire are meaningful. A Token must be passed to exactly one
// Counter.Release call, on the same Counter that minted it.
type Token struct {
	state *tokenState
}

// tokenState carries owner, the minting Counter's identity, so Release can
// detect a Token presented to the wrong Counter (spec's linear-token brand
// that statically prevents this in Rust; Go has no such brand, so the check
// is a runtime one instead) rather than silently decrementing an unrelated
// counter.
type tokenState struct {
	owner    Counter
	consumed bool
}

func newToken(owner Counter) Token {
	st := &tokenState{owner: owner}
	t := Token{state: st}
	runtime.SetFinalizer(st, func(s *tokenState) {
		if !s.consumed {
			panic("refmap: token leaked: garbage collected without Release (Counter.Release was never called)")
		}
	})
	return t
}

func (t Token) consume(name string, owner Counter) {
	if t.state == nil {
		panic(fmt.Sprintf("refmap: %s called with a zero Token (not minted by Acquire)", name))
	}
	if t.state.consumed {
		panic(fmt.Sprintf("refmap: %s called on an already-released Token", name))
	}
	if t.state.owner != owner {
		panic(fmt.Sprintf("refmap: %s called with a Token minted by a different Counter", name))
	}
	t.state.consumed = true
	runtime.SetFinalizer(t.state, nil)
}

// IntCounter is a single-threaded reference counter backed by a plain int.
// It mirrors original_source's UsizeCount: Acquire never fails except by
// panicking on overflow (mirroring Rc's abort-on-overflow discipline, made
// a panic rather than a process abort since Go has no direct equivalent
// and recoverable failure is more idiomatic here).
type IntCounter struct {
	n int64
}

// NewIntCounter constructs a counter starting at the given count with no
// outstanding tokens minted for it; callers that want a token for the
// initial reference should call Acquire immediately after.
func NewIntCounter(initial int64) *IntCounter {
	return &IntCounter{n: initial}
}

// Count returns the current count without minting or consuming a token.
func (c *IntCounter) Count() int64 { return c.n }

// Acquire increments the count and mints a Token for it.
func (c *IntCounter) Acquire() Token {
	if c.n == math.MaxInt64 {
		panic("refmap: reference count overflow")
	}
	c.n++
	return newToken(c)
}

// Release consumes t, decrements the count, and reports whether the count
// reached zero. It panics if t was minted by a different Counter.
func (c *IntCounter) Release(t Token) bool {
	t.consume("IntCounter.Release", c)
	if c.n <= 0 {
		panic("refmap: reference count underflow (Release called more times than Acquire)")
	}
	c.n--
	return c.n == 0
}

// KeepaliveCounter mirrors original_source's RcCount: rather than keeping
// its own integer, it manipulates a *int32 strong-count cell shared with
// the whole-container Ref (pkg/refmap's keepalive mechanism), so per-entry
// tokens and the container-wide strong count are visible through the same
// field.
type KeepaliveCounter struct {
	strong *int32
}

// NewKeepaliveCounter wraps a shared strong-count cell. The caller owns the
// cell's lifetime and initial value.
func NewKeepaliveCounter(strong *int32) *KeepaliveCounter {
	return &KeepaliveCounter{strong: strong}
}

// Acquire increments the shared strong count and mints a Token for it.
func (c *KeepaliveCounter) Acquire() Token {
	if *c.strong == math.MaxInt32 {
		panic("refmap: reference count overflow")
	}
	*c.strong++
	return newToken(c)
}

// Release consumes t, decrements the shared strong count, and reports
// whether it reached zero. It panics if t was minted by a different
// Counter.
func (c *KeepaliveCounter) Release(t Token) bool {
	t.consume("KeepaliveCounter.Release", c)
	if *c.strong <= 0 {
		panic("refmap: reference count underflow (Release called more times than Acquire)")
	}
	*c.strong--
	return *c.strong == 0
}
