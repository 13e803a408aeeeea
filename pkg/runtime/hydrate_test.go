package runtime

import (
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/loomui/loom/pkg/element"
)

// parseInto parses a markup fragment and attaches the resulting nodes to a
// fresh container, the way a browser would hand us server output.
func parseInto(t *testing.T, fragment string) *html.Node {
	t.Helper()
	container := newContainer()
	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), ctx)
	if err != nil {
		t.Fatalf("ParseFragment: %v", err)
	}
	for _, n := range nodes {
		container.AppendChild(n)
	}
	return container
}

// collectNodes gathers every descendant node of the container.
func collectNodes(n *html.Node) map[*html.Node]bool {
	out := make(map[*html.Node]bool)
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			out[c] = true
			walk(c)
		}
	}
	walk(n)
	return out
}

func TestHydrateReusesExistingNodes(t *testing.T) {
	rt, _ := newTestRuntime(t)
	rt.Store().Set("count", 3)

	counter := func(element.Props) element.Result {
		return element.Of(element.El("div", element.Props{"class": "counter"},
			element.Textf("Count: %d", rt.Store().GetInt("count"))))
	}

	container := parseInto(t, `<div class="counter">Count: 3</div>`)
	before := collectNodes(container)

	if err := rt.Hydrate(element.Component(counter, nil), container); err != nil {
		t.Fatalf("Hydrate: %v", err)
	}

	after := collectNodes(container)
	if len(after) != len(before) {
		t.Fatalf("node count changed: %d -> %d", len(before), len(after))
	}
	for n := range after {
		if !before[n] {
			t.Fatal("hydration created a node")
		}
	}
}

func TestHydratedTreeStaysReactive(t *testing.T) {
	rt, _ := newTestRuntime(t)
	rt.Store().Set("count", 3)

	counter := func(element.Props) element.Result {
		return element.Of(element.El("div",
			element.Textf("Count: %d", rt.Store().GetInt("count"))))
	}

	container := parseInto(t, `<div>Count: 3</div>`)
	if err := rt.Hydrate(element.Component(counter, nil), container); err != nil {
		t.Fatalf("Hydrate: %v", err)
	}
	div := findTag(container, "div")

	rt.Store().Set("count", 4)
	rt.Sync()

	if got := markup(t, container); !strings.Contains(got, "Count: 4") {
		t.Fatalf("markup = %s", got)
	}
	if findTag(container, "div") != div {
		t.Fatal("hydrated node replaced on first re-render")
	}
}

func TestHydrateAttachesListeners(t *testing.T) {
	rt, _ := newTestRuntime(t)
	rt.Store().Set("count", 0)

	counter := func(element.Props) element.Result {
		count := rt.Store().GetInt("count")
		return element.Of(element.El("div",
			element.Textf("Count: %d", count),
			element.El("button",
				element.On("click", func(element.Event) any {
					return func() error {
						rt.Store().Update("count", func(v any) any {
							n, _ := v.(int)
							return n + 1
						})
						return nil
					}
				}),
				"+1",
			),
		))
	}

	container := parseInto(t, `<div>Count: 0<!----><button>+1</button></div>`)
	if err := rt.Hydrate(element.Component(counter, nil), container); err != nil {
		t.Fatalf("Hydrate: %v", err)
	}

	button := findTag(container, "button")
	if err := rt.Dispatch(button, element.Event{Type: "click"}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	waitFor(t, rt, func() bool {
		return strings.Contains(markup(t, container), "Count: 1")
	})
}

func TestHydrateDocumentTextWins(t *testing.T) {
	rt, _ := newTestRuntime(t)

	// The document already drifted (say, a user typed); hydration must not
	// clobber it.
	container := parseInto(t, `<div>drifted</div>`)
	if err := rt.Hydrate(element.El("div", "original"), container); err != nil {
		t.Fatalf("Hydrate: %v", err)
	}
	if got := markup(t, container); !strings.Contains(got, "drifted") {
		t.Fatalf("markup = %s, document text was rewritten", got)
	}
}

func TestHydrateSkipsTextSeparators(t *testing.T) {
	rt, _ := newTestRuntime(t)

	container := parseInto(t, `<div>one<!---->two</div>`)
	root := element.El("div", element.Text("one"), element.Text("two"))
	if err := rt.Hydrate(root, container); err != nil {
		t.Fatalf("Hydrate: %v", err)
	}
}

func TestHydrateMismatchAtRoot(t *testing.T) {
	rt, _ := newTestRuntime(t)

	container := parseInto(t, `<span>hello</span>`)
	err := rt.Hydrate(element.El("div", "hello"), container)

	var herr *HydrationError
	if !errors.As(err, &herr) {
		t.Fatalf("err = %v, want *HydrationError", err)
	}
	if herr.Path != "root" {
		t.Fatalf("path = %q, want root", herr.Path)
	}
	if herr.Expected != "<div>" || herr.Got != "<span>" {
		t.Fatalf("expected=%q got=%q", herr.Expected, herr.Got)
	}
}

func TestHydrateMismatchReportsAncestorPath(t *testing.T) {
	rt, _ := newTestRuntime(t)

	container := parseInto(t, `<div><ul><li>a</li><span>b</span></ul></div>`)
	root := element.El("div",
		element.El("ul",
			element.El("li", "a"),
			element.El("li", "b"),
		),
	)
	err := rt.Hydrate(root, container)

	var herr *HydrationError
	if !errors.As(err, &herr) {
		t.Fatalf("err = %v, want *HydrationError", err)
	}
	if herr.Path != "div > ul" {
		t.Fatalf("path = %q, want div > ul", herr.Path)
	}
	if herr.Expected != "<li>" {
		t.Fatalf("expected = %q", herr.Expected)
	}
}

func TestHydrateMissingNode(t *testing.T) {
	rt, _ := newTestRuntime(t)

	container := parseInto(t, `<div></div>`)
	err := rt.Hydrate(element.El("div", element.El("span")), container)

	var herr *HydrationError
	if !errors.As(err, &herr) {
		t.Fatalf("err = %v, want *HydrationError", err)
	}
	if herr.Got != "nothing" {
		t.Fatalf("got = %q, want nothing", herr.Got)
	}
}

func TestHydrateFailureLeavesRuntimeMountable(t *testing.T) {
	rt, _ := newTestRuntime(t)

	container := parseInto(t, `<span>x</span>`)
	if err := rt.Hydrate(element.El("div"), container); err == nil {
		t.Fatal("mismatched hydration succeeded")
	}

	// The failed walk left no mounted tree; a fresh mount works.
	fresh := newContainer()
	if err := rt.Mount(element.El("div", "ok"), fresh); err != nil {
		t.Fatalf("Mount after failed hydrate: %v", err)
	}
	if got := markup(t, fresh); !strings.Contains(got, "ok") {
		t.Fatalf("markup = %s", got)
	}
}

func TestHydrateFailureTearsDownSubscriptions(t *testing.T) {
	rt, _ := newTestRuntime(t)
	rt.Store().Set("greeting", "hi")

	greeter := func(element.Props) element.Result {
		return element.Of(element.El("span", rt.Store().GetString("greeting")))
	}
	root := element.El("div",
		element.Component(greeter, nil),
		element.El("em", "mark"),
	)

	// The walk evaluates the component (subscribing it to "greeting") and
	// then fails on the <em>/<b> mismatch after it.
	container := parseInto(t, `<div><span>hi</span><b>x</b></div>`)
	if err := rt.Hydrate(root, container); err == nil {
		t.Fatal("mismatched hydration succeeded")
	}

	var invocations atomic.Int32
	counting := func(element.Props) element.Result {
		invocations.Add(1)
		return element.Of(element.El("p", "ok"))
	}
	fresh := newContainer()
	if err := rt.Mount(element.Component(counting, nil), fresh); err != nil {
		t.Fatalf("Mount after failed hydrate: %v", err)
	}
	if n := invocations.Load(); n != 1 {
		t.Fatalf("invocations = %d, want 1", n)
	}

	// A write to the cell the abandoned walk read must not schedule work:
	// the failed hydration's subscriptions died with it.
	rt.Store().Set("greeting", "changed")
	rt.Sync()
	if n := invocations.Load(); n != 1 {
		t.Fatalf("invocations = %d after unrelated write, want 1", n)
	}
}

func TestHydrateResolvedSuspense(t *testing.T) {
	rt, _ := newTestRuntime(t)

	container := parseInto(t,
		`<div><!--sus:resolved--><p>content</p><!--/sus--><footer>end</footer></div>`)
	before := collectNodes(container)

	root := element.El("div",
		element.Suspense(element.El("p", "loading"), 50*time.Millisecond,
			element.El("p", "content")),
		element.El("footer", "end"),
	)
	if err := rt.Hydrate(root, container); err != nil {
		t.Fatalf("Hydrate: %v", err)
	}

	after := collectNodes(container)
	for n := range after {
		if !before[n] {
			t.Fatal("resolved suspense hydration created a node")
		}
	}
	if got := markup(t, container); !strings.Contains(got, "content") {
		t.Fatalf("markup = %s", got)
	}
}

func TestHydrateFallbackSuspenseRendersFresh(t *testing.T) {
	rt, _ := newTestRuntime(t)

	quick := func(element.Props) element.Result {
		return element.Of(element.El("p", "real content"))
	}
	container := parseInto(t,
		`<div><!--sus:fallback--><p>loading</p><!--/sus--><footer>end</footer></div>`)

	root := element.El("div",
		element.Suspense(element.El("p", "loading"), 50*time.Millisecond,
			element.Component(quick, nil)),
		element.El("footer", "end"),
	)
	if err := rt.Hydrate(root, container); err != nil {
		t.Fatalf("Hydrate: %v", err)
	}
	rt.Sync()

	got := markup(t, container)
	if strings.Contains(got, "loading") {
		t.Fatalf("fallback gap not discarded: %s", got)
	}
	if !strings.Contains(got, "real content") {
		t.Fatalf("markup = %s", got)
	}
	// The fresh subtree lands before the hydrated siblings that follow it.
	if p, f := strings.Index(got, "real content"), strings.Index(got, "<footer>"); p > f {
		t.Fatalf("content inserted after its siblings: %s", got)
	}
}

func TestHydrateMissingSuspenseMarker(t *testing.T) {
	rt, _ := newTestRuntime(t)

	container := parseInto(t, `<div><p>content</p></div>`)
	root := element.El("div",
		element.Suspense(element.El("p", "loading"), 50*time.Millisecond,
			element.El("p", "content")),
	)
	err := rt.Hydrate(root, container)

	var herr *HydrationError
	if !errors.As(err, &herr) {
		t.Fatalf("err = %v, want *HydrationError", err)
	}
	if herr.Expected != "suspense marker" {
		t.Fatalf("expected = %q", herr.Expected)
	}
}

func TestHydrateTwiceFails(t *testing.T) {
	rt, _ := newTestRuntime(t)

	container := parseInto(t, `<div></div>`)
	if err := rt.Hydrate(element.El("div"), container); err != nil {
		t.Fatalf("Hydrate: %v", err)
	}
	if err := rt.Hydrate(element.El("div"), container); err != ErrMounted {
		t.Fatalf("second Hydrate = %v, want ErrMounted", err)
	}
}
