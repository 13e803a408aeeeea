package runtime

import (
	"reflect"
	"slices"

	"github.com/loomui/loom/pkg/element"
)

// updateSuspense drives a suspense boundary's state machine during the
// render walk. States: showing-children and showing-fallback; the boundary
// shows fallback as long as any parked descendant is still pending and
// swaps back to content exactly once when every slot is ready.
func (rt *Runtime) updateSuspense(f *fiber) {
	b := f.boundary

	// Slots a previous swap never re-adopted: their elements are gone from
	// the child list, so their scopes go too.
	for _, s := range b.adopting {
		rt.teardownScopes(s.fiber, true)
	}
	b.adopting = nil

	switch {
	case len(b.slots) > 0 && b.allReady():
		// Discard the fallback generation outright: queue every previous
		// child for deletion and rebuild the real children. Each parked
		// fiber is spliced back in when the walk reaches its recorded
		// position in the rebuilt subtree.
		if f.alternate != nil {
			for _, c := range collectChildren(f.alternate) {
				c.op = opDelete
				rt.deletions = append(rt.deletions, c)
			}
		}
		rt.reconcileAgainst(f, f.childElements, nil)
		b.adopting = b.slots
		b.slots = nil
		b.showingFallback = false

	case b.showingFallback:
		rt.reconcileChildren(f, []*element.Element{b.fallback})

	default:
		rt.reconcileChildren(f, f.childElements)
	}
}

// park marks a component fiber whose first emission lost the threshold
// race. Its resource scope survives normal deletion; a background task
// keeps waiting for the eventual first emission. The first suspension flips
// the boundary to fallback; later ones are no-ops against it.
func (rt *Runtime) park(f *fiber, sb *fiber) {
	b := sb.boundary
	slot := &parkedSlot{fiber: f, path: fiberPath(sb, f)}
	f.parked = true
	b.slots = append(b.slots, slot)
	rt.metrics.countSuspension()

	if !b.showingFallback {
		b.showingFallback = true
		b.contentCommitted = false
		b.fellBack = true
		rt.enqueue(sb)
	}

	src := f.src
	ctx := f.scope.context()
	go func() {
		select {
		case em, ok := <-src.ch:
			if !ok {
				return
			}
			rt.post(func() {
				if em.err != nil {
					// An error always wins over the suspense fallback.
					b.dropSlot(slot)
					f.parked = false
					f.scope.close()
					rt.captureError(f, em.err)
					rt.enqueue(sb)
					return
				}
				f.lastValue = em.el
				slot.ready = true
				rt.enqueue(sb)
			})
		case <-ctx.Done():
		}
	}()
}

// takeParked removes and returns the parked fiber recorded at the given
// boundary-relative path, provided the rebuilt position still invokes the
// component the fiber was parked for.
func (b *boundaryState) takeParked(path []int, fn element.Func) *fiber {
	for i, s := range b.adopting {
		if !slices.Equal(s.path, path) || !sameFn(s.fiber.fn, fn) {
			continue
		}
		b.adopting = append(b.adopting[:i], b.adopting[i+1:]...)
		return s.fiber
	}
	return nil
}

// fiberPath returns the child-index path from a boundary down to one of its
// descendants, derived from parent links and sibling positions. Two
// generations built from the same element tree yield equal paths.
func fiberPath(sb, f *fiber) []int {
	var path []int
	for n := f; n != nil && n != sb; n = n.parent {
		idx := 0
		for c := n.parent.child; c != nil && c != n; c = c.sibling {
			idx++
		}
		path = append(path, idx)
	}
	slices.Reverse(path)
	return path
}

func sameFn(a, b element.Func) bool {
	return a != nil && b != nil &&
		reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}
