package runtime

import (
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/loomui/loom/pkg/cell"
	"github.com/loomui/loom/pkg/element"
)

// renderPass runs the work loop to completion and commits the finished
// tree. The render phase never touches the live document; the commit phase
// applies every queued operation in one pass.
func (rt *Runtime) renderPass(reason string) {
	ctx, span := rt.tracer.Start(rt.ctx, "loom.render")
	span.SetAttributes(attribute.String("loom.reason", reason))
	start := time.Now()

	units := rt.workLoopFrom(rt.wipRoot, nil)

	span.SetAttributes(attribute.Int("loom.units", units))
	rt.metrics.observeRender(time.Since(start))
	span.End()

	if rt.wipRoot != nil {
		rt.commitRoot(ctx)
	}
}

// workLoopFrom processes units of work depth-first starting at root, until
// the traversal climbs out of root's subtree (stop, exclusive). Returns the
// number of units processed.
func (rt *Runtime) workLoopFrom(root, stop *fiber) int {
	units := 0
	next := root
	for next != nil && next != stop {
		next = rt.performUnit(next, stop)
		units++
	}
	return units
}

// performUnit processes exactly one fiber and returns the next unit of
// work: child first, else nearest following sibling, else up. Boundary
// coordinators may redirect the walk by returning a different next fiber.
func (rt *Runtime) performUnit(f *fiber, stop *fiber) *fiber {
	var redirect *fiber
	switch f.kind {
	case element.KindComponent:
		redirect = rt.updateComponent(f)
	case element.KindErrorBoundary:
		rt.updateErrorBoundary(f)
	case element.KindSuspense:
		rt.updateSuspense(f)
	case element.KindHost, element.KindList:
		rt.reconcileChildren(f, f.childElements)
	case element.KindText:
		// Leaf; nothing to expand.
	}
	if redirect != nil {
		return redirect
	}

	if f.child != nil {
		return f.child
	}
	for n := f; n != nil && n != stop; n = n.parent {
		if n.sibling != nil {
			return n.sibling
		}
	}
	return nil
}

// updateComponent invokes a component fiber's body, normalizes its result
// to an emission source, awaits the first value (racing a suspense
// threshold when a boundary is in scope), and reconciles the emitted
// element as the fiber's single child. Returns a redirected next unit when
// an error boundary substitutes its fallback inline.
func (rt *Runtime) updateComponent(f *fiber) *fiber {
	// The rebuild that follows a suspense swap reaches a parked component's
	// position as a fresh fiber; the parked fiber itself is spliced back in
	// and resumes with its cached first value.
	if f.op == opInsert && f.alternate == nil {
		if sb := rt.nearestSuspense(f); sb != nil && len(sb.boundary.adopting) > 0 {
			if parked := sb.boundary.takeParked(fiberPath(sb, f), f.fn); parked != nil {
				replaceFiber(f, parked)
				parked.child = nil
				parked.alternate = nil
				parked.op = opInsert
				parked.unparking = true
				return parked
			}
		}
	}

	// A re-adopted parked fiber reuses its cached first value; the
	// component is not invoked a second time.
	if f.unparking {
		f.unparking = false
		f.parked = false
		rt.reconcileChildren(f, childList(f.lastValue))
		if f.src.live() {
			f.src.last = f.lastValue
			rt.watchStream(f, f.src)
		}
		return nil
	}

	// A multi-valued component whose sequence is still producing keeps its
	// subscription across re-renders and renders its latest emission.
	if f.src.live() && f.alternate != nil {
		f.lastValue = f.src.last
		rt.reconcileChildren(f, childList(f.src.last))
		return nil
	}

	if f.scope == nil {
		f.scope = newScope(rt.ctx)
	} else {
		// Replace, never stack, the subscriptions of the prior evaluation.
		f.scope.reset(rt.ctx)
	}

	res, reads, err := rt.invoke(f)
	if err != nil {
		return rt.captureError(f, err)
	}
	f.reads = reads
	rt.subscribeReads(f)

	src := newSource(f.scope.context(), res)
	f.src = src

	// Await the first emission. With a suspense boundary in scope the wait
	// races the boundary's threshold; otherwise it is unbounded.
	sb := rt.nearestSuspense(f)
	var em emission
	var ok bool
	if sb != nil && sb.boundary.threshold > 0 {
		timer := time.NewTimer(sb.boundary.threshold)
		select {
		case em, ok = <-src.ch:
			timer.Stop()
			if !ok {
				return nil
			}
		case <-timer.C:
			rt.park(f, sb)
			return nil
		}
	} else {
		select {
		case em, ok = <-src.ch:
			if !ok {
				return nil
			}
		case <-rt.ctx.Done():
			return nil
		}
	}

	if em.err != nil {
		return rt.captureError(f, em.err)
	}
	f.lastValue = em.el
	if src.multi {
		src.last = em.el
		rt.watchStream(f, src)
	}
	rt.reconcileChildren(f, childList(em.el))
	return nil
}

// invoke runs the component body with panic recovery and cell-read
// tracking. Only the synchronous body is tracked; deferred and streamed
// work runs outside the tracking wrapper.
func (rt *Runtime) invoke(f *fiber) (res element.Result, reads []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("runtime: component panicked: %v", r)
		}
	}()
	reads = cell.Track(func() {
		res = f.fn(f.props)
	})
	return res, reads, nil
}

// subscribeReads subscribes the fiber, within its own resource scope, to
// every cell its last evaluation read. The immediate replay is dropped so
// only future changes trigger work.
func (rt *Runtime) subscribeReads(f *fiber) {
	for _, name := range f.reads {
		unsub := rt.store.Subscribe(name, func(any) {
			rt.post(func() { rt.enqueue(f) })
		})
		f.scope.add(unsub)
	}
}

// watchStream forwards a live source's later emissions onto the runtime
// goroutine: each value updates the fiber's cached emission and queues a
// re-render; a failure after the first emission is an independent failure
// event routed like any render failure.
func (rt *Runtime) watchStream(f *fiber, src *source) {
	ctx := f.scope.context()
	go func() {
		for {
			select {
			case em, ok := <-src.ch:
				if !ok {
					return
				}
				rt.post(func() {
					if em.err != nil {
						// A stream failure always postdates a commit, so
						// this takes the batched re-render path.
						rt.captureError(f, em.err)
						return
					}
					f.lastValue = em.el
					src.last = em.el
					rt.enqueue(f)
				})
				if em.err != nil {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// nearestSuspense walks parent links for the nearest ancestor suspense
// boundary fiber.
func (rt *Runtime) nearestSuspense(f *fiber) *fiber {
	for n := f.parent; n != nil; n = n.parent {
		if n.kind == element.KindSuspense && n.boundary != nil {
			return n
		}
	}
	return nil
}

// childList wraps a component's emitted value as a child-element list.
func childList(el *element.Element) []*element.Element {
	if el == nil {
		return nil
	}
	return []*element.Element{el}
}
