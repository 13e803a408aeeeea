// Package demo contains the example application served by the loom CLI.
// It exercises the full runtime surface: reactive cells, keyed lists,
// deferred components behind a suspense boundary, a streaming clock, and
// an error boundary around a component that can fail.
package demo

import (
	"context"
	"fmt"
	"time"

	"github.com/loomui/loom/pkg/cell"
	"github.com/loomui/loom/pkg/element"
	"github.com/loomui/loom/pkg/runtime"
)

// Seed populates the store with the demo's initial state and marks the
// cells the server dehydrates into the page.
func Seed(store *cell.Store) {
	store.Set("count", 0)
	store.Set("todos", []string{"write spec", "ship runtime"})
	store.MarkSerializable("count", "todos")
}

// App builds the demo page tree.
func App(store *cell.Store) *element.Element {
	return element.El("div", element.Props{"id": "demo"},
		element.El("h1", "Loom Demo"),
		element.Component(Counter(store), nil),
		element.Component(TodoList(store), nil),
		element.Suspense(
			element.El("p", "loading greeting..."),
			80*time.Millisecond,
			element.Component(SlowGreeting, element.Props{"name": "world"}),
		),
		element.ErrorBoundary(
			element.El("p", "something went wrong"),
			nil,
			element.Component(Clock, nil),
		),
	)
}

// Counter renders the current count and a button whose handler returns an
// Effect; the runtime executes it off the event path and the resulting
// cell write re-renders the subscribed component.
func Counter(store *cell.Store) element.Func {
	return func(element.Props) element.Result {
		count := store.GetInt("count")
		return element.Of(element.El("div", element.Props{"class": "counter"},
			element.Textf("Count: %d", count),
			element.El("button",
				element.On("click", func(element.Event) any {
					return runtime.Effect(func(context.Context) error {
						store.Update("count", func(v any) any {
							n, _ := v.(int)
							return n + 1
						})
						return nil
					})
				}),
				"+1",
			),
		))
	}
}

// TodoList renders the "todos" cell as a keyed list so item identity
// survives reordering.
func TodoList(store *cell.Store) element.Func {
	return func(element.Props) element.Result {
		todos, _ := store.Get("todos").([]string)
		items := element.Range(todos, func(todo string, i int) *element.Element {
			return element.El("li", element.Key(todo), todo)
		})
		return element.Of(element.El("ul", element.Props{"class": "todos"}, items))
	}
}

// SlowGreeting resolves after a short delay, long enough to trip the
// demo's suspense threshold.
func SlowGreeting(props element.Props) element.Result {
	name, _ := props["name"].(string)
	return element.Async(func(ctx context.Context) (*element.Element, error) {
		select {
		case <-time.After(200 * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return element.El("p", fmt.Sprintf("Hello, %s!", name)), nil
	})
}

// Clock emits a new value per tick over a stream result. The runtime stops
// reading when the component unmounts; a send that stays blocked past the
// patience window means no reader is coming back, so the producer closes
// the stream and stops the ticker instead of leaking.
func Clock(props element.Props) element.Result {
	interval, _ := props["interval"].(time.Duration)
	if interval <= 0 {
		interval = time.Second
	}
	patience, _ := props["patience"].(time.Duration)
	if patience <= 0 {
		patience = 10 * interval
	}

	ch := make(chan element.Emission, 1)
	go func() {
		defer close(ch)
		tick := time.NewTicker(interval)
		defer tick.Stop()
		send := func(t time.Time) bool {
			em := element.Emission{El: element.El("p", element.Props{"class": "clock"},
				element.Textf("It is %s", t.Format("15:04:05")))}
			select {
			case ch <- em:
				return true
			case <-time.After(patience):
				return false
			}
		}
		if !send(time.Now()) {
			return
		}
		for t := range tick.C {
			if !send(t) {
				return
			}
		}
	}()
	return element.Over(ch)
}
