package runtime

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/net/html"

	"github.com/loomui/loom/pkg/element"
)

// commitRoot applies all queued document mutations in one pass: deletions
// first, then a depth-first walk applying inserts and updates. Afterwards
// wipRoot is promoted to currentRoot and alternate links are discarded.
func (rt *Runtime) commitRoot(ctx context.Context) {
	_, span := rt.tracer.Start(ctx, "loom.commit")
	start := time.Now()

	for _, d := range rt.deletions {
		rt.commitDeletion(d)
		rt.metrics.countOp("delete")
	}
	span.SetAttributes(attribute.Int("loom.deletions", len(rt.deletions)))
	rt.deletions = nil

	rt.commitWork(rt.wipRoot.child)

	clearAlternates(rt.wipRoot)
	rt.currentRoot = rt.wipRoot
	rt.wipRoot = nil
	rt.nextUnit = nil

	rt.metrics.observeCommit(time.Since(start))
	span.End()
}

// commitWork walks the finished tree depth-first. Fibers without a document
// node are transparent; insert fibers place their node under the nearest
// ancestor node, update fibers diff-apply attributes and listeners onto the
// existing node.
func (rt *Runtime) commitWork(f *fiber) {
	if f == nil {
		return
	}

	switch {
	case f.node != nil && f.op == opInsert:
		rt.applyProps(f, nil)
		rt.placeNode(f)
		rt.nodeOwner[f.node] = f
		rt.signalContentCommitted(f)
	case f.node != nil && f.op == opUpdate:
		if f.kind == element.KindText {
			if f.alternate != nil && f.alternate.text != f.text {
				f.node.Data = f.text
			}
		} else {
			var prev element.Props
			if f.alternate != nil {
				prev = f.alternate.props
			}
			rt.applyProps(f, prev)
		}
		rt.placeNode(f)
		rt.nodeOwner[f.node] = f
	}
	f.op = opNone

	rt.commitWork(f.child)
	rt.commitWork(f.sibling)
}

// placeNode positions a fiber's node under the nearest ancestor fiber's
// node, immediately before the next already-attached sibling node (document
// order follows fiber order, so keyed reorders reposition nodes instead of
// recreating them). A node already in position is left alone.
func (rt *Runtime) placeNode(f *fiber) {
	host := nearestNodeAncestor(f)
	if host == nil {
		return
	}
	parent := host.node
	before := nextAttachedNode(f, host, parent)

	if f.node.Parent == parent {
		if before == nil && f.node.NextSibling == nil {
			return
		}
		if f.node.NextSibling == before {
			return
		}
		parent.RemoveChild(f.node)
	}
	if before != nil {
		parent.InsertBefore(f.node, before)
	} else {
		parent.AppendChild(f.node)
	}
}

// nearestNodeAncestor returns the closest ancestor fiber owning a document
// node. Component and structural fibers own none and are skipped.
func nearestNodeAncestor(f *fiber) *fiber {
	for n := f.parent; n != nil; n = n.parent {
		if n.node != nil {
			return n
		}
	}
	return nil
}

// nextAttachedNode finds the first document node, among fibers following f
// within host's subtree, that is already attached to parent. It anchors
// insertions and moves.
func nextAttachedNode(f, host *fiber, parent *html.Node) *html.Node {
	n := f
	for {
		for n.sibling == nil {
			n = n.parent
			if n == nil || n == host {
				return nil
			}
		}
		n = n.sibling
		if nd := firstAttachedNode(n, parent); nd != nil {
			return nd
		}
	}
}

// firstAttachedNode returns the first node in f's subtree attached to
// parent, descending only through node-less fibers.
func firstAttachedNode(f *fiber, parent *html.Node) *html.Node {
	if f.node != nil {
		if f.node.Parent == parent {
			return f.node
		}
		return nil
	}
	for c := f.child; c != nil; c = c.sibling {
		if nd := firstAttachedNode(c, parent); nd != nil {
			return nd
		}
	}
	return nil
}

// applyProps diff-applies attribute and listener changes from prev to the
// fiber's current props. Listener replacement is idempotent through the
// per-node table.
func (rt *Runtime) applyProps(f *fiber, prev element.Props) {
	changed := false
	// Removed or stale entries.
	for key := range prev {
		if key == "key" {
			continue
		}
		if _, ok := f.props[key]; ok {
			continue
		}
		if isEventProp(key) {
			rt.removeListener(f.node, eventType(key))
		} else {
			removeAttr(f.node, key)
		}
		changed = true
	}
	// Added or updated entries.
	for key, val := range f.props {
		if key == "key" {
			continue
		}
		if isEventProp(key) {
			if h := asHandler(val); h != nil {
				rt.setListener(f.node, eventType(key), h)
			}
			continue
		}
		if isBooleanAttr(key) {
			if b, ok := val.(bool); ok {
				if b {
					if _, present := getAttr(f.node, key); !present {
						setAttr(f.node, key, "")
						changed = true
					}
				} else {
					removeAttr(f.node, key)
					changed = true
				}
				continue
			}
		}
		next := propString(val)
		if cur, ok := getAttr(f.node, key); !ok || cur != next {
			setAttr(f.node, key, next)
			changed = true
		}
	}
	if f.op == opUpdate {
		if changed {
			rt.metrics.countOp("update")
		}
	} else {
		rt.metrics.countOp("insert")
	}
}

// commitDeletion recursively closes the fiber's resource scope (parked
// fibers excepted), then removes its document node; a fiber owning no node
// recurses into children to find the nodes to remove.
func (rt *Runtime) commitDeletion(f *fiber) {
	rt.teardownScopes(f, false)
	rt.removeNodes(f)
}

// teardownScopes closes the resource scopes of f and all descendants.
// Parked fibers are skipped unless includeParked, which is set when the
// owning suspense boundary is itself torn down (its parked slots go too).
func (rt *Runtime) teardownScopes(f *fiber, includeParked bool) {
	if f == nil {
		return
	}
	if f.scope != nil && (includeParked || !f.parked) {
		f.scope.close()
	}
	if f.boundary != nil {
		for _, slot := range f.boundary.slots {
			rt.teardownScopes(slot.fiber, true)
		}
		f.boundary.slots = nil
		for _, slot := range f.boundary.adopting {
			rt.teardownScopes(slot.fiber, true)
		}
		f.boundary.adopting = nil
	}
	for c := f.child; c != nil; c = c.sibling {
		rt.teardownScopes(c, includeParked)
	}
}

// removeNodes detaches the topmost document nodes in f's subtree and drops
// their listener-table entries.
func (rt *Runtime) removeNodes(f *fiber) {
	if f == nil {
		return
	}
	if f.node != nil {
		rt.forgetSubtree(f.node)
		detach(f.node)
		return
	}
	for c := f.child; c != nil; c = c.sibling {
		rt.removeNodes(c)
	}
}

// forgetSubtree clears listener and ownership table entries for a node and
// all its descendants.
func (rt *Runtime) forgetSubtree(n *html.Node) {
	delete(rt.listeners, n)
	delete(rt.nodeOwner, n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		rt.forgetSubtree(c)
	}
}

// signalContentCommitted notifies the nearest suspense boundary that its
// primary content has actually reached the document, not merely been
// computed. When a fallback was shown first this completes the swap, which
// is counted once per fallback episode.
func (rt *Runtime) signalContentCommitted(f *fiber) {
	sb := rt.nearestSuspense(f)
	if sb == nil || sb.boundary.showingFallback || sb.boundary.contentCommitted {
		return
	}
	sb.boundary.contentCommitted = true
	if sb.boundary.fellBack {
		sb.boundary.fellBack = false
		rt.metrics.countSwap()
		rt.logger.Debug("suspense content committed after fallback")
	}
}

// clearAlternates drops previous-generation links after commit so retired
// fiber trees are collectable.
func clearAlternates(f *fiber) {
	if f == nil {
		return
	}
	f.alternate = nil
	for c := f.child; c != nil; c = c.sibling {
		clearAlternates(c)
	}
}
