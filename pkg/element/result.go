package element

import "context"

// Result is what a component body produces: a plain element, a single
// deferred element, or a sequence of elements over time. The runtime
// normalizes all three to a sequence with at least a first value.
type Result interface {
	isResult()
}

// Immediate is a plain element, available synchronously.
type Immediate struct {
	El *Element
}

// Deferred is a single pending computation with one eventual emission.
type Deferred struct {
	Wait func(ctx context.Context) (*Element, error)
}

// Stream is a naturally multi-valued sequence of elements over time.
// The producer closes C when it has no further values; an Emission with a
// non-nil Err terminates the sequence as a failure.
type Stream struct {
	C <-chan Emission
}

// Emission is one value (or failure) of a Stream.
type Emission struct {
	El  *Element
	Err error
}

func (Immediate) isResult() {}
func (Deferred) isResult()  {}
func (Stream) isResult()    {}

// Func is a component body: a function from inputs to a Result. It may read
// reactive cells through the tracking store and may attach event handlers
// that return deferred work.
type Func func(props Props) Result

// Of wraps a plain element as an Immediate result.
func Of(el *Element) Result {
	return Immediate{El: el}
}

// Async wraps a single pending computation as a Deferred result.
func Async(wait func(ctx context.Context) (*Element, error)) Result {
	return Deferred{Wait: wait}
}

// Over wraps a channel of emissions as a Stream result.
func Over(c <-chan Emission) Result {
	return Stream{C: c}
}
