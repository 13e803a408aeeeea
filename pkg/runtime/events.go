package runtime

import (
	"context"

	"golang.org/x/net/html"

	"github.com/loomui/loom/pkg/element"
)

// Effect is deferred work handed back from an event handler. It is executed
// outside the handler's call stack; a failure is routed to the nearest
// error boundary the same way render-time failures are.
type Effect func(ctx context.Context) error

// setListener installs or replaces a handler in the per-node table.
// Replacement is idempotent: dispatch always sees exactly one handler per
// (node, event) pair.
func (rt *Runtime) setListener(n *html.Node, event string, h element.Handler) {
	m := rt.listeners[n]
	if m == nil {
		m = make(map[string]element.Handler)
		rt.listeners[n] = m
	}
	m[event] = h
}

// removeListener drops a handler from the per-node table.
func (rt *Runtime) removeListener(n *html.Node, event string) {
	if m := rt.listeners[n]; m != nil {
		delete(m, event)
		if len(m) == 0 {
			delete(rt.listeners, n)
		}
	}
}

// asHandler normalizes the handler prop forms components may attach.
func asHandler(v any) element.Handler {
	switch h := v.(type) {
	case element.Handler:
		return h
	case func(element.Event) any:
		return h
	case func(element.Event):
		return func(ev element.Event) any {
			h(ev)
			return nil
		}
	case func():
		return func(element.Event) any {
			h()
			return nil
		}
	default:
		return nil
	}
}

// Dispatch delivers a document event to the handler attached to node. The
// handler runs on the runtime goroutine; a returned Effect is executed on
// its own goroutine, off the handler's call stack.
func (rt *Runtime) Dispatch(node *html.Node, ev element.Event) error {
	return rt.call(func() {
		m := rt.listeners[node]
		if m == nil {
			return
		}
		h := m[ev.Type]
		if h == nil {
			return
		}
		owner := rt.nodeOwner[node]
		ret := h(ev)
		if eff := asEffect(ret); eff != nil {
			rt.runEffect(owner, eff)
		}
	})
}

// asEffect recognizes deferred work in a handler's return value.
func asEffect(v any) Effect {
	switch e := v.(type) {
	case Effect:
		return e
	case func(ctx context.Context) error:
		return e
	case func() error:
		return func(context.Context) error { return e() }
	default:
		return nil
	}
}

// runEffect executes deferred handler work. Failures post back onto the
// runtime goroutine and route through the owning fiber's error boundary.
func (rt *Runtime) runEffect(owner *fiber, eff Effect) {
	go func() {
		err := eff(rt.ctx)
		if err == nil {
			return
		}
		rt.post(func() {
			if owner == nil {
				rt.logger.Error("unhandled effect failure", "error", err)
				return
			}
			rt.captureError(owner, err)
		})
	}()
}
