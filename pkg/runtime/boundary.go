package runtime

import (
	"github.com/loomui/loom/pkg/element"
)

// updateErrorBoundary renders a boundary's children, or its fallback once a
// descendant has failed. The engine supplies no default fallback; callers
// always provide one.
func (rt *Runtime) updateErrorBoundary(f *fiber) {
	if f.boundary.hasError {
		rt.reconcileChildren(f, []*element.Element{f.boundary.fallback})
		return
	}
	rt.reconcileChildren(f, f.childElements)
}

// captureError routes a component failure to the nearest ancestor error
// boundary. During initial tree construction the substitution happens
// inline and the returned fiber is the next unit of work (the fallback's
// first child); after a tree is committed the boundary takes the batched
// re-render path and nil is returned. A failure with no ancestor boundary
// is terminal for that subtree: logged, and the unit yields no children.
func (rt *Runtime) captureError(f *fiber, err error) *fiber {
	rt.metrics.countBoundaryError()

	b := rt.nearestErrorBoundary(f)
	if b == nil {
		rt.logger.Error("unhandled render failure", "error", err, "fiber", f.kind.String())
		return nil
	}
	if b.boundary.hasError {
		// A boundary already showing its fallback is not re-triggered by
		// further failures from the same subtree.
		return nil
	}
	b.boundary.hasError = true
	if cb := b.boundary.onError; cb != nil {
		rt.invokeErrorCallback(cb, err)
	}

	if rt.currentRoot == nil && rt.wipRoot != nil {
		// No committed root yet: substitute the fallback in-line and
		// continue the walk at its first child. The partially built
		// children are discarded wholesale; their scopes close with the
		// deletion pass.
		for _, c := range collectChildren(b) {
			c.op = opDelete
			rt.deletions = append(rt.deletions, c)
		}
		rt.reconcileAgainst(b, []*element.Element{b.boundary.fallback}, nil)
		if b.child != nil {
			return b.child
		}
		return nil
	}

	rt.enqueue(b)
	return nil
}

// invokeErrorCallback shields the runtime from a panicking error callback.
func (rt *Runtime) invokeErrorCallback(cb func(error), err error) {
	defer func() {
		if r := recover(); r != nil {
			rt.logger.Error("error boundary callback panicked", "panic", r)
		}
	}()
	cb(err)
}

// nearestErrorBoundary walks parent links for the nearest ancestor fiber
// carrying error-boundary state.
func (rt *Runtime) nearestErrorBoundary(f *fiber) *fiber {
	for n := f.parent; n != nil; n = n.parent {
		if n.kind == element.KindErrorBoundary && n.boundary != nil {
			return n
		}
	}
	return nil
}
