package runtime

import (
	"reflect"

	"github.com/loomui/loom/pkg/element"
)

// reconcileChildren diffs a fiber's new child elements against its
// previous-generation children (via alternate) and links the new child
// fiber chain, tagging each fiber for insert, update, or delete.
func (rt *Runtime) reconcileChildren(wip *fiber, elems []*element.Element) {
	var prev []*fiber
	if wip.alternate != nil {
		prev = collectChildren(wip.alternate)
	}
	rt.reconcileAgainst(wip, elems, prev)
}

// reconcileAgainst is reconcileChildren with an explicit previous-children
// list, used by the suspense coordinator when it discards its fallback
// generation outright.
//
// Matching partitions previous children into a keyed bucket (exact key
// match only) and an unkeyed bucket (first-fit by kind and invocation
// target, consumed on match). First-fit is intentional: it preserves the
// observable reorder behavior of unkeyed lists.
func (rt *Runtime) reconcileAgainst(wip *fiber, elems []*element.Element, prev []*fiber) {
	keyed := make(map[string]*fiber)
	keyedConsumed := make(map[string]bool)
	var unkeyed []*fiber
	unkeyedConsumed := make([]bool, 0)
	for _, p := range prev {
		if k := fiberKey(p); k != "" {
			keyed[k] = p
		} else {
			unkeyed = append(unkeyed, p)
			unkeyedConsumed = append(unkeyedConsumed, false)
		}
	}

	var first, last *fiber
	link := func(f *fiber) {
		f.parent = wip
		if first == nil {
			first = f
		} else {
			last.sibling = f
		}
		last = f
	}

	for _, el := range elems {
		if el == nil {
			continue
		}

		var match *fiber
		if k := el.Key(); k != "" {
			if m, ok := keyed[k]; ok && !keyedConsumed[k] {
				match = m
				keyedConsumed[k] = true
			}
		} else {
			for i, c := range unkeyed {
				if !unkeyedConsumed[i] && sameTarget(c, el) {
					match = c
					unkeyedConsumed[i] = true
					break
				}
			}
		}

		switch {
		case match != nil && sameTarget(match, el):
			link(cloneFiber(match, el))
		case match != nil:
			// Keyed match with a different kind/target: replace.
			match.op = opDelete
			rt.deletions = append(rt.deletions, match)
			link(newFiber(el))
		default:
			link(newFiber(el))
		}
	}

	// Every previous child not consumed is deleted: leftover keyed entries
	// first (in original order), then leftover unkeyed entries.
	unkeyedIdx := 0
	for _, p := range prev {
		if k := fiberKey(p); k != "" {
			if !keyedConsumed[k] || keyed[k] != p {
				p.op = opDelete
				rt.deletions = append(rt.deletions, p)
			}
		}
	}
	for _, p := range prev {
		if fiberKey(p) == "" {
			if !unkeyedConsumed[unkeyedIdx] {
				p.op = opDelete
				rt.deletions = append(rt.deletions, p)
			}
			unkeyedIdx++
		}
	}

	// An empty new-children list clears the parent's child link entirely.
	wip.child = first
}

// fiberKey returns a fiber's explicit reconciliation key, or "".
func fiberKey(f *fiber) string {
	if f == nil || f.props == nil {
		return ""
	}
	return (&element.Element{Props: f.props}).Key()
}

// sameTarget reports whether a previous fiber and a new element share kind
// and invocation target exactly: tag for host elements, function identity
// for components.
func sameTarget(f *fiber, el *element.Element) bool {
	if f.kind != el.Kind {
		return false
	}
	switch el.Kind {
	case element.KindHost:
		return f.tag == el.Tag
	case element.KindComponent:
		return f.fn != nil && el.Fn != nil &&
			reflect.ValueOf(f.fn).Pointer() == reflect.ValueOf(el.Fn).Pointer()
	default:
		return true
	}
}
