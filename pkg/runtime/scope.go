package runtime

import (
	"context"
	"sync"
)

// scope is a fiber's owned resource scope. Closing it cancels all
// subscriptions and background listens the fiber started. A re-evaluated
// fiber resets its scope so prior subscriptions are replaced, not stacked.
type scope struct {
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	unsubs []func()
	closed bool
}

func newScope(parent context.Context) *scope {
	ctx, cancel := context.WithCancel(parent)
	return &scope{ctx: ctx, cancel: cancel}
}

// context returns the scope's cancellation context for background listens.
func (s *scope) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// add registers an unsubscribe hook to run when the scope resets or closes.
func (s *scope) add(unsub func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		unsub()
		return
	}
	s.unsubs = append(s.unsubs, unsub)
}

// reset cancels everything the scope owns and re-arms it for the fiber's
// next evaluation.
func (s *scope) reset(parent context.Context) {
	s.mu.Lock()
	unsubs := s.unsubs
	s.unsubs = nil
	cancel := s.cancel
	s.ctx, s.cancel = context.WithCancel(parent)
	s.closed = false
	s.mu.Unlock()

	cancel()
	for _, unsub := range unsubs {
		unsub()
	}
}

// close cancels everything and marks the scope dead. Closing twice is a
// no-op.
func (s *scope) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	unsubs := s.unsubs
	s.unsubs = nil
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	for _, unsub := range unsubs {
		unsub()
	}
}
