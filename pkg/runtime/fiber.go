package runtime

import (
	"time"

	"golang.org/x/net/html"

	"github.com/loomui/loom/pkg/element"
)

// opTag is the pending commit operation for a fiber.
type opTag uint8

const (
	opNone opTag = iota
	opInsert
	opUpdate
	opDelete
)

func (op opTag) String() string {
	switch op {
	case opNone:
		return "None"
	case opInsert:
		return "Insert"
	case opUpdate:
		return "Update"
	case opDelete:
		return "Delete"
	default:
		return "Unknown"
	}
}

// fiber is the mutable work/result node mirroring one element instance
// across renders. Fibers are created fresh (opInsert), cloned from the
// previous generation (opUpdate, via alternate), or inherited verbatim when
// a suspense boundary re-adopts a parked fiber.
type fiber struct {
	kind  element.Kind
	tag   string
	fn    element.Func
	props element.Props
	text  string

	// Owned document node. Component and structural fibers own no node.
	node *html.Node

	parent  *fiber
	child   *fiber
	sibling *fiber

	// alternate links the previous-generation fiber. Valid only during the
	// render phase; cleared when the commit that supersedes it completes.
	alternate *fiber

	op opTag

	// childElements are the ordered child elements to reconcile under this
	// fiber. For component fibers this is the emitted value; for the others
	// it comes from the element tree.
	childElements []*element.Element

	// scope owns subscriptions and background listens started by this fiber.
	scope *scope

	// reads is the set of reactive cells read during the last evaluation.
	reads []string

	// lastValue is the most recent emitted value of a multi-valued (or
	// parked) component.
	lastValue *element.Element

	// src is the live emission source of a component fiber.
	src *source

	// boundary carries error-boundary or suspense state. The same state
	// object is shared across generations of the boundary fiber.
	boundary *boundaryState

	// parked marks a fiber held by a suspended boundary: its scope must
	// outlive normal deletion until unparked or the boundary is torn down.
	parked bool

	// unparking tells the scheduler to reuse lastValue instead of
	// re-invoking the component on the next visit.
	unparking bool
}

// boundaryState is per-boundary coordinator state, shared across the
// boundary fiber's generations.
type boundaryState struct {
	fallback *element.Element

	// Error boundary.
	onError  func(error)
	hasError bool

	// Suspense.
	threshold       time.Duration
	showingFallback bool
	slots           []*parkedSlot

	// adopting holds ready slots between the swap render and the walk
	// reaching each parked fiber's position in the rebuilt subtree.
	adopting []*parkedSlot

	// contentCommitted flips when the boundary's primary content actually
	// reaches the document; fellBack marks that a fallback was shown first,
	// so the commit signal can count the completed swap.
	contentCommitted bool
	fellBack         bool
}

// parkedSlot tracks one suspended descendant of a suspense boundary.
type parkedSlot struct {
	fiber *fiber
	path  []int // child-index path from the boundary down to the fiber
	ready bool  // first emission has arrived
}

func (b *boundaryState) allReady() bool {
	for _, s := range b.slots {
		if !s.ready {
			return false
		}
	}
	return true
}

func (b *boundaryState) dropSlot(slot *parkedSlot) {
	for i, s := range b.slots {
		if s == slot {
			b.slots = append(b.slots[:i], b.slots[i+1:]...)
			break
		}
	}
	if len(b.slots) == 0 {
		b.showingFallback = false
	}
}

// newFiber creates a fresh fiber (tag=insert) from an element. Host and text
// fibers create their document node immediately, detached; the node is only
// attached to the live document during commit.
func newFiber(el *element.Element) *fiber {
	f := &fiber{
		kind:          el.Kind,
		tag:           el.Tag,
		fn:            el.Fn,
		props:         el.Props,
		text:          el.Text,
		op:            opInsert,
		childElements: el.Children,
	}
	switch el.Kind {
	case element.KindHost:
		f.node = newElementNode(el.Tag)
	case element.KindText:
		f.node = &html.Node{Type: html.TextNode, Data: el.Text}
	case element.KindErrorBoundary:
		f.boundary = &boundaryState{fallback: el.Fallback, onError: el.OnError}
	case element.KindSuspense:
		f.boundary = &boundaryState{fallback: el.Fallback, threshold: el.Threshold}
	}
	return f
}

// cloneFiber creates an update fiber reusing the previous generation's
// document node, scope, live source, and boundary state.
func cloneFiber(prev *fiber, el *element.Element) *fiber {
	f := &fiber{
		kind:          el.Kind,
		tag:           el.Tag,
		fn:            el.Fn,
		props:         el.Props,
		text:          el.Text,
		node:          prev.node,
		alternate:     prev,
		op:            opUpdate,
		childElements: el.Children,
		scope:         prev.scope,
		lastValue:     prev.lastValue,
		src:           prev.src,
		boundary:      prev.boundary,
	}
	// Boundary configuration refreshes from the new element; coordinator
	// flags and parked slots carry over.
	if f.boundary != nil {
		f.boundary.fallback = el.Fallback
		switch el.Kind {
		case element.KindErrorBoundary:
			f.boundary.onError = el.OnError
		case element.KindSuspense:
			f.boundary.threshold = el.Threshold
		}
	}
	return f
}

// replaceFiber splices repl into old's position in the fiber tree. The
// caller fixes up repl's own links beyond parent and sibling.
func replaceFiber(old, repl *fiber) {
	repl.parent = old.parent
	repl.sibling = old.sibling
	if old.parent.child == old {
		old.parent.child = repl
		return
	}
	for c := old.parent.child; c != nil; c = c.sibling {
		if c.sibling == old {
			c.sibling = repl
			return
		}
	}
}

// collectChildren returns a fiber's child chain as a slice.
func collectChildren(f *fiber) []*fiber {
	if f == nil {
		return nil
	}
	var out []*fiber
	for c := f.child; c != nil; c = c.sibling {
		out = append(out, c)
	}
	return out
}
