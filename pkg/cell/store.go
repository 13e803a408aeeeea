// Package cell implements the named reactive value store consumed by the
// rendering runtime. Cells are identified by name; reads performed inside a
// Track call are recorded so the runtime can subscribe a fiber to exactly
// the cells its last evaluation touched.
package cell

import (
	"sort"
	"sync"
)

// Store holds named reactive cells.
type Store struct {
	mu    sync.RWMutex
	cells map[string]*state
}

type state struct {
	mu           sync.Mutex
	value        any
	subs         []*subscription
	nextSubID    uint64
	serializable bool
}

type subscription struct {
	id uint64
	fn func(any)
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{cells: make(map[string]*state)}
}

// cell returns the named cell, creating it on first use.
func (s *Store) cell(name string) *state {
	s.mu.RLock()
	c := s.cells[name]
	s.mu.RUnlock()
	if c != nil {
		return c
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if c = s.cells[name]; c == nil {
		c = &state{}
		s.cells[name] = c
	}
	return c
}

// Get returns the cell's current value (nil if never set). When called on a
// goroutine with an active Track, the read is recorded.
func (s *Store) Get(name string) any {
	record(name)
	c := s.cell(name)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// GetInt is Get with an int assertion, returning 0 for unset or mistyped cells.
func (s *Store) GetInt(name string) int {
	v, _ := s.Get(name).(int)
	return v
}

// GetString is Get with a string assertion.
func (s *Store) GetString(name string) string {
	v, _ := s.Get(name).(string)
	return v
}

// Set stores a new value and notifies subscribers. Setting an equal value
// still notifies; deduplication is the subscriber's concern.
func (s *Store) Set(name string, value any) {
	c := s.cell(name)
	c.mu.Lock()
	c.value = value
	// Copy before notify so a callback may unsubscribe without deadlock.
	subs := make([]*subscription, len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	for _, sub := range subs {
		sub.fn(value)
	}
}

// Update applies fn to the current value and stores the result.
func (s *Store) Update(name string, fn func(any) any) {
	c := s.cell(name)
	c.mu.Lock()
	next := fn(c.value)
	c.value = next
	subs := make([]*subscription, len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	for _, sub := range subs {
		sub.fn(next)
	}
}

// SubscribeOption configures a subscription.
type SubscribeOption func(*subscribeOptions)

type subscribeOptions struct {
	immediate bool
}

// WithImmediate replays the cell's current value to the callback before
// Subscribe returns. Without it only future changes are delivered.
func WithImmediate() SubscribeOption {
	return func(o *subscribeOptions) { o.immediate = true }
}

// Subscribe registers a callback for changes to the named cell and returns
// an unsubscribe function. Unsubscribing twice is a no-op.
func (s *Store) Subscribe(name string, fn func(any), opts ...SubscribeOption) func() {
	var o subscribeOptions
	for _, opt := range opts {
		opt(&o)
	}

	c := s.cell(name)
	c.mu.Lock()
	c.nextSubID++
	sub := &subscription{id: c.nextSubID, fn: fn}
	c.subs = append(c.subs, sub)
	current := c.value
	c.mu.Unlock()

	if o.immediate {
		fn(current)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			for i, existing := range c.subs {
				if existing.id == sub.id {
					c.subs = append(c.subs[:i], c.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// ToSeq exposes the cell as a value-over-time sequence: the current value
// first, then every subsequent change, until stop is called. The channel is
// buffered; a slow consumer drops intermediate values rather than blocking
// the writer.
func (s *Store) ToSeq(name string) (<-chan any, func()) {
	ch := make(chan any, 16)
	push := func(v any) {
		select {
		case ch <- v:
		default:
		}
	}
	unsub := s.Subscribe(name, push, WithImmediate())
	var once sync.Once
	stop := func() {
		once.Do(func() {
			unsub()
			close(ch)
		})
	}
	return ch, stop
}

// Names returns all cell names in sorted order.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.cells))
	for name := range s.cells {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
