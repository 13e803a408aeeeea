package element

import (
	"fmt"
	"time"
)

// El builds a host element. Args may be Props (merged in order), *Element
// children, strings (converted to text leaves), []*Element slices (spliced),
// or nil (skipped).
func El(tag string, args ...any) *Element {
	e := &Element{Kind: KindHost, Tag: tag}
	for _, arg := range args {
		switch a := arg.(type) {
		case nil:
		case Props:
			if e.Props == nil {
				e.Props = Props{}
			}
			for k, v := range a {
				e.Props[k] = v
			}
		case *Element:
			if a != nil {
				e.Children = append(e.Children, a)
			}
		case []*Element:
			for _, c := range a {
				if c != nil {
					e.Children = append(e.Children, c)
				}
			}
		case string:
			e.Children = append(e.Children, Text(a))
		default:
			panic(fmt.Sprintf("element.El: unsupported argument type %T", arg))
		}
	}
	return e
}

// Text builds a text leaf.
func Text(content string) *Element {
	return &Element{Kind: KindText, Text: content}
}

// Textf builds a formatted text leaf.
func Textf(format string, args ...any) *Element {
	return Text(fmt.Sprintf(format, args...))
}

// List groups children without a wrapper node.
func List(children ...*Element) *Element {
	e := &Element{Kind: KindList}
	for _, c := range children {
		if c != nil {
			e.Children = append(e.Children, c)
		}
	}
	return e
}

// Component builds a component reference with its invocation inputs.
func Component(fn Func, props Props) *Element {
	return &Element{Kind: KindComponent, Fn: fn, Props: props}
}

// Suspense builds a suspense boundary. While a descendant's first value is
// pending past threshold, fallback is shown instead of children.
func Suspense(fallback *Element, threshold time.Duration, children ...*Element) *Element {
	e := &Element{Kind: KindSuspense, Fallback: fallback, Threshold: threshold}
	for _, c := range children {
		if c != nil {
			e.Children = append(e.Children, c)
		}
	}
	return e
}

// ErrorBoundary builds an error boundary. When a descendant fails, fallback
// replaces the children and onError (if non-nil) is invoked once.
func ErrorBoundary(fallback *Element, onError func(error), children ...*Element) *Element {
	e := &Element{Kind: KindErrorBoundary, Fallback: fallback, OnError: onError}
	for _, c := range children {
		if c != nil {
			e.Children = append(e.Children, c)
		}
	}
	return e
}

// Key returns a props entry carrying an explicit reconciliation key.
func Key(key any) Props {
	return Props{"key": key}
}

// If returns node when condition is true, nil otherwise.
func If(condition bool, node *Element) *Element {
	if condition {
		return node
	}
	return nil
}

// Range maps a slice to child elements.
func Range[T any](items []T, fn func(item T, index int) *Element) []*Element {
	out := make([]*Element, 0, len(items))
	for i, item := range items {
		if e := fn(item, i); e != nil {
			out = append(out, e)
		}
	}
	return out
}
