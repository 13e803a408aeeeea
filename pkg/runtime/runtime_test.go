package runtime

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/loomui/loom/pkg/cell"
	"github.com/loomui/loom/pkg/element"
)

func newContainer() *html.Node {
	return &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
}

func markup(t *testing.T, n *html.Node) string {
	t.Helper()
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		t.Fatalf("render: %v", err)
	}
	return buf.String()
}

// findTag returns the first descendant element with the given tag.
func findTag(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findTag(c, tag); found != nil {
			return found
		}
	}
	return nil
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, rt *Runtime, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		rt.Sync()
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

func newTestRuntime(t *testing.T) (*Runtime, *html.Node) {
	t.Helper()
	rt := New(Config{Store: cell.NewStore()})
	t.Cleanup(rt.Close)
	return rt, newContainer()
}

func TestMountRendersInitialTree(t *testing.T) {
	rt, container := newTestRuntime(t)

	root := element.El("div", element.Props{"class": "box"},
		element.El("span", "hello"),
	)
	if err := rt.Mount(root, container); err != nil {
		t.Fatalf("Mount: %v", err)
	}

	got := markup(t, container)
	want := `<div class="box"><span>hello</span></div>`
	if !strings.Contains(got, want) {
		t.Fatalf("markup = %s, want substring %s", got, want)
	}
}

func TestMountTwiceFails(t *testing.T) {
	rt, container := newTestRuntime(t)

	if err := rt.Mount(element.El("div"), container); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if err := rt.Mount(element.El("div"), container); err != ErrMounted {
		t.Fatalf("second Mount = %v, want ErrMounted", err)
	}
}

func TestMountRequiresArguments(t *testing.T) {
	rt, container := newTestRuntime(t)
	if err := rt.Mount(nil, container); err == nil {
		t.Fatal("Mount(nil, container) succeeded")
	}
	if err := rt.Mount(element.El("div"), nil); err == nil {
		t.Fatal("Mount(root, nil) succeeded")
	}
}

func TestComponentRendersStoreValue(t *testing.T) {
	rt, container := newTestRuntime(t)
	rt.Store().Set("count", 41)

	counter := func(element.Props) element.Result {
		return element.Of(element.El("p", element.Textf("Count: %d", rt.Store().GetInt("count"))))
	}
	if err := rt.Mount(element.Component(counter, nil), container); err != nil {
		t.Fatalf("Mount: %v", err)
	}

	if got := markup(t, container); !strings.Contains(got, "Count: 41") {
		t.Fatalf("markup = %s", got)
	}
}

func TestCellWriteTriggersBatchedRerender(t *testing.T) {
	rt, container := newTestRuntime(t)
	rt.Store().Set("count", 0)

	counter := func(element.Props) element.Result {
		return element.Of(element.El("p", element.Textf("Count: %d", rt.Store().GetInt("count"))))
	}
	if err := rt.Mount(element.Component(counter, nil), container); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	p := findTag(container, "p")
	if p == nil {
		t.Fatal("no <p> committed")
	}

	rt.Store().Set("count", 1)
	rt.Sync()

	if got := markup(t, container); !strings.Contains(got, "Count: 1") {
		t.Fatalf("markup = %s, want Count: 1", got)
	}
	// The host node is updated in place, never recreated.
	if again := findTag(container, "p"); again != p {
		t.Fatal("host node was recreated on re-render")
	}
}

func TestMultipleWritesCoalesceIntoOneBatch(t *testing.T) {
	rt, container := newTestRuntime(t)
	rt.Store().Set("count", 0)

	invocations := 0
	counter := func(element.Props) element.Result {
		invocations++
		return element.Of(element.El("p", element.Textf("Count: %d", rt.Store().GetInt("count"))))
	}
	if err := rt.Mount(element.Component(counter, nil), container); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if invocations != 1 {
		t.Fatalf("invocations after mount = %d", invocations)
	}

	// Burst of writes before the runtime goroutine gets to flush: one
	// batch, rendered against the final value.
	err := rt.call(func() {
		for i := 1; i <= 5; i++ {
			rt.store.Set("count", i)
		}
	})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	rt.Sync()

	if got := markup(t, container); !strings.Contains(got, "Count: 5") {
		t.Fatalf("markup = %s", got)
	}
	if invocations != 2 {
		t.Fatalf("invocations = %d, want 2 (mount + one batch)", invocations)
	}
}

func TestSubscriptionsFollowReads(t *testing.T) {
	rt, container := newTestRuntime(t)
	rt.Store().Set("mode", "a")
	rt.Store().Set("a", "left")
	rt.Store().Set("b", "right")

	invocations := 0
	comp := func(element.Props) element.Result {
		invocations++
		mode := rt.Store().GetString("mode")
		return element.Of(element.El("p", rt.Store().GetString(mode)))
	}
	if err := rt.Mount(element.Component(comp, nil), container); err != nil {
		t.Fatalf("Mount: %v", err)
	}

	// While mode is "a", writes to "b" are not subscribed.
	rt.Store().Set("b", "changed")
	rt.Sync()
	if invocations != 1 {
		t.Fatalf("invocations = %d after unrelated write, want 1", invocations)
	}

	rt.Store().Set("mode", "b")
	rt.Sync()
	if got := markup(t, container); !strings.Contains(got, "changed") {
		t.Fatalf("markup = %s", got)
	}

	// Now "a" is no longer read; its subscription was replaced.
	before := invocations
	rt.Store().Set("a", "stale")
	rt.Sync()
	if invocations != before {
		t.Fatalf("invocations = %d after write to dropped cell, want %d", invocations, before)
	}
}

func TestDispatchRunsHandlerAndEffect(t *testing.T) {
	rt, container := newTestRuntime(t)
	rt.Store().Set("count", 0)

	counter := func(element.Props) element.Result {
		count := rt.Store().GetInt("count")
		return element.Of(element.El("div",
			element.Textf("Count: %d", count),
			element.El("button",
				element.On("click", func(element.Event) any {
					return Effect(func(context.Context) error {
						rt.Store().Update("count", func(v any) any {
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
	if err := rt.Mount(element.Component(counter, nil), container); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if got := markup(t, container); !strings.Contains(got, "Count: 0") {
		t.Fatalf("markup = %s", got)
	}

	button := findTag(container, "button")
	if button == nil {
		t.Fatal("no button committed")
	}
	div := findTag(container, "div")

	if err := rt.Dispatch(button, element.Event{Type: "click"}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	waitFor(t, rt, func() bool {
		return strings.Contains(markup(t, container), "Count: 1")
	})

	if findTag(container, "div") != div {
		t.Fatal("container host recreated across event re-render")
	}
}

func TestDispatchOnUnknownNodeIsNoOp(t *testing.T) {
	rt, container := newTestRuntime(t)
	if err := rt.Mount(element.El("div"), container); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if err := rt.Dispatch(newContainer(), element.Event{Type: "click"}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
}

func TestUnmountRemovesNodesAndSubscriptions(t *testing.T) {
	rt, container := newTestRuntime(t)
	rt.Store().Set("count", 0)

	invocations := 0
	comp := func(element.Props) element.Result {
		invocations++
		return element.Of(element.El("p", element.Textf("%d", rt.Store().GetInt("count"))))
	}
	if err := rt.Mount(element.Component(comp, nil), container); err != nil {
		t.Fatalf("Mount: %v", err)
	}

	rt.Unmount()
	if container.FirstChild != nil {
		t.Fatalf("container not emptied: %s", markup(t, container))
	}

	before := invocations
	rt.Store().Set("count", 1)
	rt.Sync()
	if invocations != before {
		t.Fatal("component re-rendered after unmount")
	}
}

func TestCloseStopsRuntime(t *testing.T) {
	rt := New(Config{Store: cell.NewStore()})
	rt.Close()
	rt.Close() // idempotent

	if err := rt.Mount(element.El("div"), newContainer()); err != ErrClosed {
		t.Fatalf("Mount after Close = %v, want ErrClosed", err)
	}
}

func TestStreamComponentRerendersPerEmission(t *testing.T) {
	rt, container := newTestRuntime(t)

	ch := make(chan element.Emission, 1)
	comp := func(element.Props) element.Result {
		return element.Over(ch)
	}
	ch <- element.Emission{El: element.El("p", "first")}

	if err := rt.Mount(element.Component(comp, nil), container); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if got := markup(t, container); !strings.Contains(got, "first") {
		t.Fatalf("markup = %s", got)
	}
	p := findTag(container, "p")

	ch <- element.Emission{El: element.El("p", "second")}
	waitFor(t, rt, func() bool {
		return strings.Contains(markup(t, container), "second")
	})

	// A later emission still renders even though the committed fiber
	// generation has moved on since the stream was subscribed.
	ch <- element.Emission{El: element.El("p", "third")}
	waitFor(t, rt, func() bool {
		return strings.Contains(markup(t, container), "third")
	})

	if findTag(container, "p") != p {
		t.Fatal("stream emission recreated the host node")
	}
	close(ch)
}

func TestStreamFailureAfterFirstEmissionHitsBoundary(t *testing.T) {
	rt, container := newTestRuntime(t)

	ch := make(chan element.Emission, 1)
	comp := func(element.Props) element.Result {
		return element.Over(ch)
	}
	ch <- element.Emission{El: element.El("p", "live")}

	var captured error
	root := element.ErrorBoundary(
		element.El("p", "broken"),
		func(err error) { captured = err },
		element.Component(comp, nil),
	)
	if err := rt.Mount(root, container); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if got := markup(t, container); !strings.Contains(got, "live") {
		t.Fatalf("markup = %s", got)
	}

	// A failure arriving after the stream already produced values is routed
	// to the nearest boundary like any render failure.
	ch <- element.Emission{Err: errors.New("feed dropped")}
	waitFor(t, rt, func() bool {
		return strings.Contains(markup(t, container), "broken")
	})
	if got := markup(t, container); strings.Contains(got, "live") {
		t.Fatalf("failed stream content survived: %s", got)
	}
	if captured == nil || !strings.Contains(captured.Error(), "feed dropped") {
		t.Fatalf("captured = %v", captured)
	}
}

func TestNilComponentResultRendersNothing(t *testing.T) {
	rt, container := newTestRuntime(t)

	comp := func(element.Props) element.Result { return nil }
	root := element.El("div", element.Component(comp, nil), element.El("span"))
	if err := rt.Mount(root, container); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	got := markup(t, container)
	if !strings.Contains(got, "<span></span>") {
		t.Fatalf("markup = %s", got)
	}
}
