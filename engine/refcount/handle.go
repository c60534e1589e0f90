package refcount

import "github.com/dev-feyisayo/canopy/engine/canopyerr"

// Referent is the thing a handle ultimately points to: a local object or a
// proxy standing in for a remote one. Both expose their control block so
// handles can operate generically; the payload itself is opaque to refcount
// and is type-asserted by the caller (objectstub/proxystub own the concrete
// types).
type Referent interface {
	ControlBlock() *ControlBlock
}

// Kind distinguishes the three handle flavours.
type Kind int

const (
	// Strong keeps the object alive; yields ObjectNotFound on a dangling
	// remote access (serious, unexpected).
	Strong Kind = iota
	// Weak does not keep the object alive; upgrades to Strong and fails
	// cleanly if the object is gone.
	Weak
	// Optimistic does not keep the object alive but keeps the routing
	// path callable; yields ObjectGone on dangling access (expected for
	// independently-managed objects). Obtainable only by conversion from
	// a Strong handle.
	Optimistic
)

// Handle is an application-visible smart pointer to a Referent. The zero
// value is an empty handle (no referent).
type Handle struct {
	kind     Kind
	referent Referent
}

// Empty returns a handle with no referent, e.g. the result of a failed
// clone or upgrade.
func Empty() Handle { return Handle{} }

// IsEmpty reports whether the handle refers to nothing.
func (h Handle) IsEmpty() bool { return h.referent == nil }

// Kind reports the handle's flavour.
func (h Handle) Kind() Kind { return h.kind }

// Referent exposes the underlying referent, or nil for an empty handle.
func (h Handle) Referent() Referent { return h.referent }

// NewStrong wraps referent in a fresh strong handle without incrementing
// the control block (the caller already holds the reference this handle
// represents, e.g. the one made by NewControlBlock).
func NewStrong(referent Referent) Handle {
	return Handle{kind: Strong, referent: referent}
}

// NewHandle wraps referent in a handle of the given kind without touching
// the control block. Callers use this when they have already performed
// the matching Clone* themselves (e.g. a proxy that folds several local
// optimistic handles onto one remote add_ref) and only need the typed
// wrapper back.
func NewHandle(kind Kind, referent Referent) Handle {
	return Handle{kind: kind, referent: referent}
}

// CloneStrong produces a new strong handle to the same referent sharing
// this handle's control block, incrementing the shared count. Returns an
// empty handle if the referent was already destroyed.
func (h Handle) CloneStrong() Handle {
	if h.referent == nil {
		return Empty()
	}
	if !h.referent.ControlBlock().CloneStrong() {
		return Empty()
	}
	return Handle{kind: Strong, referent: h.referent}
}

// Drop releases this handle's contribution to its control block. It is an
// error to use h after calling Drop; Drop itself is idempotent-unsafe by
// design (matching the source control block semantics) so callers must
// call it exactly once per handle.
func (h Handle) Drop() {
	if h.referent == nil {
		return
	}
	cb := h.referent.ControlBlock()
	switch h.kind {
	case Strong:
		cb.DropStrong()
	case Weak:
		cb.DropWeak()
	case Optimistic:
		cb.DropOptimistic()
	}
}

// ToWeak converts a strong handle to a new weak handle without affecting
// the shared count, cloning the weak count instead.
func (h Handle) ToWeak() Handle {
	if h.referent == nil {
		return Empty()
	}
	h.referent.ControlBlock().CloneWeak()
	return Handle{kind: Weak, referent: h.referent}
}

// Upgrade attempts to produce a strong handle from a weak one. Returns
// ObjectNotFound if the object is already gone (spec: strong-handle
// semantics surface object-not-found, not object-gone, on a dangling
// access — upgrade failure is the strong-handle path).
func (h Handle) Upgrade() (Handle, error) {
	if h.kind != Weak || h.referent == nil {
		return Empty(), canopyerr.New(canopyerr.InvalidData, "upgrade requires a weak handle")
	}
	if !h.referent.ControlBlock().UpgradeWeak() {
		return Empty(), canopyerr.New(canopyerr.ObjectNotFound, "object is gone")
	}
	return Handle{kind: Strong, referent: h.referent}, nil
}

// ToOptimistic converts a strong handle to a new optimistic handle.
// Optimistic handles are obtainable only by conversion from a strong
// handle.
func (h Handle) ToOptimistic() (Handle, error) {
	if h.kind != Strong || h.referent == nil {
		return Empty(), canopyerr.New(canopyerr.InvalidData, "optimistic handles are obtained only from a strong handle")
	}
	h.referent.ControlBlock().CloneOptimistic()
	return Handle{kind: Optimistic, referent: h.referent}, nil
}

// Access validates that the referent is still usable for a call issued
// through this handle: a strong handle reaching a dead referent is
// ObjectNotFound (unexpected); an optimistic handle reaching a dead
// referent is ObjectGone (expected). Weak handles cannot be used
// directly for calls; Upgrade first.
func (h Handle) Access() error {
	if h.referent == nil {
		return canopyerr.New(canopyerr.ObjectNotFound, "empty handle")
	}
	cb := h.referent.ControlBlock()
	switch h.kind {
	case Strong:
		if cb.Destroyed() {
			return canopyerr.New(canopyerr.ObjectNotFound, "object destroyed")
		}
		return nil
	case Optimistic:
		if cb.Destroyed() {
			return canopyerr.New(canopyerr.ObjectGone, "object gone")
		}
		return nil
	default:
		return canopyerr.New(canopyerr.InvalidData, "weak handle must be upgraded before use")
	}
}
