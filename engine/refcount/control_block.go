// Package refcount implements the control block and handle types: a
// per-object triple refcount (shared, weak, optimistic) plus the
// strong/weak/optimistic smart-pointer handles built on top of it.
//
// Control-block operations are bounded atomic sequences; none of them
// suspend or block on a transport.
package refcount

import "sync/atomic"

// Destructor is invoked exactly once, by the goroutine that observes
// shared reaching zero. It should release whatever the object held (the
// underlying implementation, per-zone stub maps, and so on).
type Destructor func()

// ControlBlock is the per-object refcount triple. It is safe for
// concurrent use. The zero value is not usable; construct with
// NewControlBlock.
type ControlBlock struct {
	shared      atomic.Int32
	weak        atomic.Int32
	optimistic  atomic.Int32
	destroyed   atomic.Bool
	destructor  Destructor
}

// NewControlBlock creates a control block in the "make_strong" state:
// one strong reference, backed by a self-reference in the weak count so
// the block outlives the object it describes.
func NewControlBlock(destructor Destructor) *ControlBlock {
	cb := &ControlBlock{destructor: destructor}
	cb.shared.Store(1)
	cb.weak.Store(1)
	return cb
}

// Shared returns the current shared (strong) count.
func (cb *ControlBlock) Shared() int32 { return cb.shared.Load() }

// Weak returns the current weak count.
func (cb *ControlBlock) Weak() int32 { return cb.weak.Load() }

// Optimistic returns the current optimistic count.
func (cb *ControlBlock) Optimistic() int32 { return cb.optimistic.Load() }

// Destroyed reports whether the object has been destroyed (shared reached
// zero). Once true, it is never false again.
func (cb *ControlBlock) Destroyed() bool { return cb.destroyed.Load() }

// Freed reports whether the control block itself is eligible for release:
// all three counts are zero.
func (cb *ControlBlock) Freed() bool {
	return cb.shared.Load() == 0 && cb.weak.Load() == 0 && cb.optimistic.Load() == 0
}

// CloneStrong atomically increments the shared count and returns true,
// or returns false without incrementing if shared was already zero: a
// destroyed object can never be resurrected.
func (cb *ControlBlock) CloneStrong() bool {
	for {
		cur := cb.shared.Load()
		if cur == 0 {
			return false
		}
		if cb.shared.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

// DropStrong decrements the shared count. If it reaches zero, the
// destroyed flag is set, the destructor runs exactly once (by this call,
// which observed the transition), and the weak count is then
// decremented to release the self-reference made at construction.
func (cb *ControlBlock) DropStrong() {
	if cb.shared.Add(-1) == 0 {
		cb.destroyed.Store(true)
		if cb.destructor != nil {
			cb.destructor()
		}
		cb.DropWeak()
	}
}

// CloneWeak increments the weak count unconditionally; a weak handle may
// always be cloned (it does not require the object to be alive).
func (cb *ControlBlock) CloneWeak() {
	cb.weak.Add(1)
}

// DropWeak decrements the weak count. Callers that freed the last
// reference (Freed() becomes true) are responsible for releasing the
// control block's own storage.
func (cb *ControlBlock) DropWeak() {
	cb.weak.Add(-1)
}

// UpgradeWeak attempts to produce a new strong reference from a weak
// one: compare-and-swap shared from any nonzero value to value+1. Fails
// if shared was already 0.
func (cb *ControlBlock) UpgradeWeak() bool {
	return cb.CloneStrong()
}

// CloneOptimistic increments the optimistic count. Optimistic references
// are independent of shared: they do not gate object destruction, only
// control-block and pass-through lifetime.
func (cb *ControlBlock) CloneOptimistic() {
	cb.optimistic.Add(1)
}

// DropOptimistic decrements the optimistic count.
func (cb *ControlBlock) DropOptimistic() {
	cb.optimistic.Add(-1)
}
