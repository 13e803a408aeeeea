package element

import (
	"fmt"
	"strconv"
	"time"
)

// Kind is the element type discriminator.
type Kind uint8

const (
	KindHost          Kind = iota // <div>, <button>, etc.
	KindText                      // Plain text leaf
	KindList                      // Grouping without wrapper
	KindErrorBoundary             // Substitutes fallback on descendant failure
	KindSuspense                  // Shows fallback while content is pending
	KindComponent                 // Component invocation
)

// String returns the string representation of the Kind.
func (k Kind) String() string {
	switch k {
	case KindHost:
		return "Host"
	case KindText:
		return "Text"
	case KindList:
		return "List"
	case KindErrorBoundary:
		return "ErrorBoundary"
	case KindSuspense:
		return "Suspense"
	case KindComponent:
		return "Component"
	default:
		return "Unknown"
	}
}

// Props holds attributes, event handlers, and the reconciliation key.
type Props map[string]any

// Element is an immutable description of what to render. A fresh tree is
// produced on every render; identity across renders comes from an explicit
// "key" prop, else positional type matching.
type Element struct {
	Kind     Kind
	Tag      string     // Host tag name (e.g. "div")
	Props    Props      // Inputs, including "key" and "on*" handlers
	Children []*Element // Ordered children (host/list/boundary kinds)
	Text     string     // For KindText
	Fn       Func       // Component body (KindComponent)

	// Boundary configuration, set for KindErrorBoundary and KindSuspense.
	Fallback  *Element
	Threshold time.Duration // Suspense wait threshold
	OnError   func(error)   // Error boundary side-effect callback
}

// Key returns the element's explicit reconciliation key, or "".
func (e *Element) Key() string {
	if e == nil || e.Props == nil {
		return ""
	}
	switch k := e.Props["key"].(type) {
	case string:
		return k
	case int:
		return strconv.Itoa(k)
	case fmt.Stringer:
		return k.String()
	default:
		return ""
	}
}
