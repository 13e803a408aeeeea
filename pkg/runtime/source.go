package runtime

import (
	"context"
	"sync/atomic"

	"github.com/loomui/loom/pkg/element"
)

// emission is one normalized value (or failure) from a component's result.
type emission struct {
	el  *element.Element
	err error
}

// source is a component result normalized to a value-producing sequence
// with at least a first value: a plain value becomes a one-shot sequence, a
// deferred computation a sequence with one pending emission, and a Stream
// passes through unchanged.
type source struct {
	ch    chan emission
	multi bool
	done  atomic.Bool

	// last is the most recent emitted value of a multi-valued source. The
	// source is shared across a fiber's generations, so the latest value
	// survives cloning. Read and written only on the runtime goroutine.
	last *element.Element
}

// newSource normalizes a component result. Deferred and Stream results are
// driven by a goroutine bound to ctx (the fiber's scope), so closing the
// scope cancels the background work.
func newSource(ctx context.Context, res element.Result) *source {
	switch r := res.(type) {
	case element.Immediate:
		s := &source{ch: make(chan emission, 1)}
		s.ch <- emission{el: r.El}
		s.done.Store(true)
		close(s.ch)
		return s

	case element.Deferred:
		s := &source{ch: make(chan emission, 1)}
		go func() {
			defer s.done.Store(true)
			defer close(s.ch)
			el, err := r.Wait(ctx)
			if ctx.Err() != nil {
				return
			}
			s.ch <- emission{el: el, err: err}
		}()
		return s

	case element.Stream:
		s := &source{ch: make(chan emission, 1), multi: true}
		go func() {
			defer s.done.Store(true)
			defer close(s.ch)
			for {
				select {
				case em, ok := <-r.C:
					if !ok {
						return
					}
					select {
					case s.ch <- emission{el: em.El, err: em.Err}:
					case <-ctx.Done():
						return
					}
					if em.Err != nil {
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}()
		return s

	case nil:
		s := &source{ch: make(chan emission, 1)}
		s.ch <- emission{}
		s.done.Store(true)
		close(s.ch)
		return s

	default:
		// Result is a closed set; anything else is a component bug.
		s := &source{ch: make(chan emission, 1)}
		s.ch <- emission{err: errUnknownResult}
		s.done.Store(true)
		close(s.ch)
		return s
	}
}

// live reports whether the source may still produce values.
func (s *source) live() bool {
	return s != nil && s.multi && !s.done.Load()
}
