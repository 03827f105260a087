package output

import "sync/atomic"

// Ref is a strong/weak control block modeling obs_weak_output_t / obs_ref_t.
//
// The strong count governs destruction of target (DestroyFunc runs when
// strong reaches zero). The weak count governs destruction of the control
// block itself: a WeakRef may outlive every strong holder, and only frees
// the block when its own weak count drops to zero. A WeakRef can only
// resolve back to a live strong Ref while strong > 0.
type Ref struct {
	strong  atomic.Int64
	weak    atomic.Int64
	target  *Output
	destroy func(*Output)
}

// NewRef creates a control block with one strong reference.
func NewRef(target *Output, destroy func(*Output)) *Ref {
	r := &Ref{target: target, destroy: destroy}
	r.strong.Store(1)
	r.weak.Store(1)
	return r
}

// Get returns the target while holding this strong reference alive.
func (r *Ref) Get() *Output { return r.target }

// AddRef increments the strong count. Use when sharing an already-strong
// handle (e.g. handing the Output to a second owner).
func (r *Ref) AddRef() {
	r.strong.Add(1)
}

// Release drops one strong reference. At strong -> 0, destroy runs and
// the implicit weak reference held by the strong side (see NewRef) is
// released as well.
func (r *Ref) Release() {
	if r.strong.Add(-1) == 0 {
		if r.destroy != nil {
			r.destroy(r.target)
		}
		r.releaseWeak()
	}
}

// Weak returns a new WeakRef to this control block.
func (r *Ref) Weak() *WeakRef {
	r.weak.Add(1)
	return &WeakRef{ctrl: r}
}

func (r *Ref) releaseWeak() {
	if r.weak.Add(-1) == 0 {
		r.target = nil
	}
}

// WeakRef is an externally held weak reference: it may be retained after
// every strong owner has released, but only resolves to a live Output
// while the strong count is still positive.
type WeakRef struct {
	ctrl *Ref
}

// GetRef attempts to acquire a strong reference, returning nil if the
// target has already been destroyed. This is a CAS-increment loop on the
// strong counter: it only succeeds while strong > 0.
//
// While strong > 0 the implicit weak reference taken by NewRef is still
// held, so upgrading does not need its own weak increment — it mirrors
// the classic strong/weak split where weak count only drops to zero once
// every strong holder (and the implicit one) has released.
func (w *WeakRef) GetRef() *Ref {
	for {
		cur := w.ctrl.strong.Load()
		if cur <= 0 {
			return nil
		}
		if w.ctrl.strong.CompareAndSwap(cur, cur+1) {
			return w.ctrl
		}
	}
}

// Release drops this weak reference.
func (w *WeakRef) Release() {
	w.ctrl.releaseWeak()
}
