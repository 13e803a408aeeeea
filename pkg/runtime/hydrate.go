package runtime

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/loomui/loom/pkg/element"
)

// HydrationError is a structural mismatch between an element tree and the
// markup it is being hydrated against. It is not caught by error
// boundaries; the caller decides whether to fall back to a fresh client
// render.
type HydrationError struct {
	Path     string // human-readable ancestor path, e.g. "div > ul > li:2"
	Expected string
	Got      string
}

func (e *HydrationError) Error() string {
	return fmt.Sprintf("runtime: hydration mismatch at %s: expected %s, got %s",
		e.Path, e.Expected, e.Got)
}

// Hydrate walks container's existing markup and the element tree together,
// building a fiber tree that reuses existing nodes exactly — no creation,
// no removal — while attaching event listeners and reactive subscriptions.
// Document text content wins over the server-rendered string. The only
// exception is a suspense boundary the server left in its fallback state:
// its gap is discarded and the boundary client-rendered fresh.
func (rt *Runtime) Hydrate(root *element.Element, container *html.Node) error {
	if root == nil || container == nil {
		return errors.New("runtime: Hydrate requires a root element and a container node")
	}
	var err error
	cerr := rt.call(func() {
		if rt.currentRoot != nil || rt.wipRoot != nil {
			err = ErrMounted
			return
		}
		rt.container = container
		rt.rootElement = root
		wip := &fiber{
			kind:          element.KindHost,
			tag:           container.Data,
			node:          container,
			childElements: []*element.Element{root},
		}
		h := &hydrator{rt: rt}
		if _, herr := h.children(wip, wip.childElements, container.FirstChild, nil); herr != nil {
			// Abandon the partial walk; subscriptions it started must not
			// outlive the failed call.
			for _, c := range collectChildren(wip) {
				rt.teardownScopes(c, true)
			}
			rt.deletions = nil
			err = herr
			return
		}
		rt.wipRoot = wip
		rt.deletions = nil
		rt.commitRoot(rt.ctx)
	})
	if cerr != nil {
		return cerr
	}
	return err
}

type hydrator struct {
	rt *Runtime
}

// children hydrates an ordered element list against sibling document nodes
// starting at cur, linking the resulting fibers under parent. It returns
// the cursor past the last consumed node. Fibers are linked before the
// error check, so a failed walk still reaches — and can tear down — every
// fiber it already built.
func (h *hydrator) children(parent *fiber, elems []*element.Element, cur *html.Node, path []string) (*html.Node, error) {
	var last *fiber
	for idx, el := range elems {
		if el == nil {
			continue
		}
		f, next, err := h.one(parent, el, cur, path, idx)
		if f != nil {
			if last == nil {
				parent.child = f
			} else {
				last.sibling = f
			}
			last = f
		}
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

// one hydrates a single element at the cursor and returns the fiber plus
// the next sibling document node not yet consumed. On failure partway
// through a subtree, the partially built fiber is returned alongside the
// error so the caller can link it and the cleanup can reach it.
func (h *hydrator) one(parent *fiber, el *element.Element, cur *html.Node, path []string, idx int) (*fiber, *html.Node, error) {
	rt := h.rt

	switch el.Kind {
	case element.KindText:
		cur = skipSeparators(cur)
		if cur == nil || cur.Type != html.TextNode {
			return nil, nil, &HydrationError{Path: pathString(path), Expected: "text", Got: nodeDesc(cur)}
		}
		// Document content wins; the text is not rewritten.
		f := adoptFiber(el, cur, parent)
		return f, cur.NextSibling, nil

	case element.KindHost:
		cur = skipSeparators(cur)
		if cur == nil || cur.Type != html.ElementNode || !strings.EqualFold(cur.Data, el.Tag) {
			return nil, nil, &HydrationError{Path: pathString(path), Expected: "<" + el.Tag + ">", Got: nodeDesc(cur)}
		}
		f := adoptFiber(el, cur, parent)
		rt.hydrateListeners(f)
		if _, err := h.children(f, el.Children, cur.FirstChild, append(path, pathSegment(el.Tag, idx))); err != nil {
			return f, nil, err
		}
		return f, cur.NextSibling, nil

	case element.KindList:
		// Structural lists hydrate children at the current cursor without
		// consuming an extra node.
		f := adoptFiber(el, nil, parent)
		next, err := h.children(f, el.Children, cur, path)
		if err != nil {
			return f, nil, err
		}
		return f, next, nil

	case element.KindErrorBoundary:
		f := adoptFiber(el, nil, parent)
		next, err := h.children(f, el.Children, cur, path)
		if err != nil {
			return f, nil, err
		}
		return f, next, nil

	case element.KindComponent:
		// Components own no wrapper node: the first emitted value hydrates
		// at the same cursor position.
		f := adoptFiber(el, nil, parent)
		value, err := h.evaluate(f)
		if err != nil {
			return f, nil, fmt.Errorf("runtime: hydrating component at %s: %w", pathString(path), err)
		}
		if value == nil {
			return f, cur, nil
		}
		cf, next, err := h.one(f, value, cur, path, idx)
		f.child = cf
		if err != nil {
			return f, nil, err
		}
		return f, next, nil

	case element.KindSuspense:
		return h.suspense(parent, el, cur, path, idx)
	}

	return nil, nil, &HydrationError{Path: pathString(path), Expected: "element", Got: el.Kind.String()}
}

// suspense dispatches on the boundary's leading comment marker: resolved
// content hydrates positionally and skips the matching close marker; a
// fallback marker means the server never computed real content, so every
// node in the gap is discarded and the boundary is rendered fresh on the
// client.
func (h *hydrator) suspense(parent *fiber, el *element.Element, cur *html.Node, path []string, idx int) (*fiber, *html.Node, error) {
	rt := h.rt
	cur = skipSeparators(cur)
	if cur == nil || cur.Type != html.CommentNode ||
		(cur.Data != element.MarkerResolved && cur.Data != element.MarkerFallback) {
		return nil, nil, &HydrationError{Path: pathString(path), Expected: "suspense marker", Got: nodeDesc(cur)}
	}

	f := adoptFiber(el, nil, parent)

	if cur.Data == element.MarkerResolved {
		after, err := h.children(f, el.Children, cur.NextSibling, append(path, pathSegment("suspense", idx)))
		if err != nil {
			return f, nil, err
		}
		after = skipSeparators(after)
		if after == nil || after.Type != html.CommentNode || after.Data != element.MarkerClose {
			return f, nil, &HydrationError{Path: pathString(path), Expected: "suspense close marker", Got: nodeDesc(after)}
		}
		return f, after.NextSibling, nil
	}

	// Fallback marker: collect the gap up to the matching close marker,
	// counting nested boundary markers.
	depth := 1
	n := cur.NextSibling
	var gap []*html.Node
	for n != nil {
		if n.Type == html.CommentNode {
			switch {
			case strings.HasPrefix(n.Data, "sus:"):
				depth++
			case n.Data == element.MarkerClose:
				depth--
			}
			if depth == 0 {
				break
			}
		}
		gap = append(gap, n)
		n = n.NextSibling
	}
	if n == nil {
		return f, nil, &HydrationError{Path: pathString(path), Expected: "suspense close marker", Got: "end of markup"}
	}
	next := n.NextSibling

	parentNode := cur.Parent
	for _, g := range gap {
		parentNode.RemoveChild(g)
	}
	parentNode.RemoveChild(cur)
	parentNode.RemoveChild(n)

	// Fresh client-side render of the boundary in the gap. The subtree's
	// inserts are applied by the commit pass that follows the walk,
	// anchored before the hydrated siblings that follow it.
	rt.buildSubtree(f)
	return f, next, nil
}

// evaluate invokes a component fiber during hydration: tracked reads are
// subscribed, the result is normalized, and the first emitted value
// returned.
func (h *hydrator) evaluate(f *fiber) (*element.Element, error) {
	rt := h.rt
	f.scope = newScope(rt.ctx)
	res, reads, err := rt.invoke(f)
	if err != nil {
		return nil, err
	}
	f.reads = reads
	rt.subscribeReads(f)

	src := newSource(f.scope.context(), res)
	f.src = src
	var em emission
	var ok bool
	select {
	case em, ok = <-src.ch:
		if !ok {
			return nil, nil
		}
	case <-rt.ctx.Done():
		return nil, ErrClosed
	}
	if em.err != nil {
		return nil, em.err
	}
	f.lastValue = em.el
	if src.multi {
		src.last = em.el
		rt.watchStream(f, src)
	}
	return em.el, nil
}

// hydrateListeners attaches a reused node's event handlers and ownership.
func (rt *Runtime) hydrateListeners(f *fiber) {
	for key, val := range f.props {
		if !isEventProp(key) {
			continue
		}
		if hd := asHandler(val); hd != nil {
			rt.setListener(f.node, eventType(key), hd)
		}
	}
	rt.nodeOwner[f.node] = f
}

// buildSubtree runs the work scheduler over root's subtree only, leaving
// the rest of the (hydrated) tree untouched.
func (rt *Runtime) buildSubtree(root *fiber) {
	next := rt.performUnit(root, root)
	for next != nil {
		next = rt.performUnit(next, root)
	}
}

// adoptFiber builds a fiber that reuses an existing document node (nil for
// node-less kinds) with no pending operation.
func adoptFiber(el *element.Element, node *html.Node, parent *fiber) *fiber {
	f := &fiber{
		kind:          el.Kind,
		tag:           el.Tag,
		fn:            el.Fn,
		props:         el.Props,
		text:          el.Text,
		node:          node,
		parent:        parent,
		childElements: el.Children,
	}
	switch el.Kind {
	case element.KindErrorBoundary:
		f.boundary = &boundaryState{fallback: el.Fallback, onError: el.OnError}
	case element.KindSuspense:
		f.boundary = &boundaryState{fallback: el.Fallback, threshold: el.Threshold}
	}
	return f
}

// skipSeparators advances past the empty comment nodes the serializer
// emits between adjacent text leaves.
func skipSeparators(n *html.Node) *html.Node {
	for n != nil && n.Type == html.CommentNode && n.Data == "" {
		n = n.NextSibling
	}
	return n
}

// pathString renders an ancestor path for hydration errors.
func pathString(path []string) string {
	if len(path) == 0 {
		return "root"
	}
	return strings.Join(path, " > ")
}

// pathSegment names one ancestor step; positions past the first are made
// explicit, e.g. "li:2".
func pathSegment(name string, idx int) string {
	if idx > 0 {
		return fmt.Sprintf("%s:%d", name, idx)
	}
	return name
}

// nodeDesc describes a document node for error messages.
func nodeDesc(n *html.Node) string {
	if n == nil {
		return "nothing"
	}
	switch n.Type {
	case html.ElementNode:
		return "<" + n.Data + ">"
	case html.TextNode:
		return fmt.Sprintf("text %q", n.Data)
	case html.CommentNode:
		return fmt.Sprintf("comment %q", n.Data)
	default:
		return fmt.Sprintf("node type %d", n.Type)
	}
}
