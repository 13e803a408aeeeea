// Package render serializes element trees to markup for server delivery.
// The output follows the hydration contract: text and attribute values are
// escaped, boolean attributes render as bare names when true and are
// omitted when false, explicit keys become data-key attributes, an empty
// comment separates adjacent text leaves so node splitting survives
// parsing, and suspense boundaries are wrapped in comment-marker pairs.
package render

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/loomui/loom/pkg/element"
)

// Config configures the markup renderer.
type Config struct {
	// Logger receives failures swallowed by error boundaries. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

// Renderer serializes element trees to markup.
type Renderer struct {
	logger *slog.Logger
}

// New creates a Renderer.
func New(cfg Config) *Renderer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{logger: logger}
}

// RenderToString renders an element tree to a markup string.
func (r *Renderer) RenderToString(ctx context.Context, el *element.Element) (string, error) {
	var buf bytes.Buffer
	if err := r.RenderToWriter(ctx, &buf, el); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderToWriter streams an element tree to w.
func (r *Renderer) RenderToWriter(ctx context.Context, w io.Writer, el *element.Element) error {
	st := &renderState{}
	return r.renderNode(ctx, w, el, st)
}

// renderState threads text-adjacency across fragment and component
// recursion so the separator comment lands between adjacent text leaves.
type renderState struct {
	lastText bool
}

// renderNode dispatches on element kind.
func (r *Renderer) renderNode(ctx context.Context, w io.Writer, el *element.Element, st *renderState) error {
	if el == nil {
		return nil
	}
	switch el.Kind {
	case element.KindHost:
		return r.renderHost(ctx, w, el, st)
	case element.KindText:
		return r.renderText(w, el, st)
	case element.KindList:
		return r.renderChildren(ctx, w, el.Children, st)
	case element.KindComponent:
		return r.renderComponent(ctx, w, el, st)
	case element.KindErrorBoundary:
		return r.renderErrorBoundary(ctx, w, el, st)
	case element.KindSuspense:
		return r.renderSuspense(ctx, w, el, st)
	default:
		return fmt.Errorf("render: unknown element kind %d", el.Kind)
	}
}

func (r *Renderer) renderChildren(ctx context.Context, w io.Writer, children []*element.Element, st *renderState) error {
	for _, c := range children {
		if err := r.renderNode(ctx, w, c, st); err != nil {
			return err
		}
	}
	return nil
}

func (r *Renderer) renderHost(ctx context.Context, w io.Writer, el *element.Element, st *renderState) error {
	st.lastText = false
	if _, err := fmt.Fprintf(w, "<%s", el.Tag); err != nil {
		return err
	}
	if err := renderAttributes(w, el); err != nil {
		return err
	}
	if isVoidElement(el.Tag) {
		_, err := w.Write([]byte{'>'})
		return err
	}
	if _, err := w.Write([]byte{'>'}); err != nil {
		return err
	}
	inner := &renderState{}
	if err := r.renderChildren(ctx, w, el.Children, inner); err != nil {
		return err
	}
	st.lastText = false
	_, err := fmt.Fprintf(w, "</%s>", el.Tag)
	return err
}

// renderText writes an escaped text leaf, preceded by an empty-comment
// boundary marker when the previous sibling was also a text leaf.
func (r *Renderer) renderText(w io.Writer, el *element.Element, st *renderState) error {
	if st.lastText {
		if _, err := w.Write([]byte("<!---->")); err != nil {
			return err
		}
	}
	st.lastText = true
	_, err := w.Write([]byte(escapeHTML(el.Text)))
	return err
}

// renderComponent invokes a component and serializes its first emitted
// value. The server path never subscribes; it only needs one value.
func (r *Renderer) renderComponent(ctx context.Context, w io.Writer, el *element.Element, st *renderState) error {
	value, err := firstValue(ctx, el)
	if err != nil {
		return err
	}
	return r.renderNode(ctx, w, value, st)
}

// renderErrorBoundary serializes children into a side buffer; on any
// failure the fallback is serialized instead and the boundary's callback
// invoked, matching the client coordinator's substitution.
func (r *Renderer) renderErrorBoundary(ctx context.Context, w io.Writer, el *element.Element, st *renderState) error {
	var buf bytes.Buffer
	inner := *st
	err := r.renderChildren(ctx, &buf, el.Children, &inner)
	if err == nil {
		*st = inner
		_, werr := w.Write(buf.Bytes())
		return werr
	}

	r.logger.Warn("error boundary captured render failure", "error", err)
	if cb := el.OnError; cb != nil {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					r.logger.Error("error boundary callback panicked", "panic", rec)
				}
			}()
			cb(err)
		}()
	}
	return r.renderNode(ctx, w, el.Fallback, st)
}

// renderSuspense races the children's serialization against the boundary's
// threshold — a best-effort time-box, not an indefinite wait. Content that
// resolves in time is wrapped in resolved markers; otherwise the fallback
// is wrapped in fallback markers with no further server-side retry.
func (r *Renderer) renderSuspense(ctx context.Context, w io.Writer, el *element.Element, st *renderState) error {
	type result struct {
		buf bytes.Buffer
		err error
	}
	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch := make(chan *result, 1)
	go func() {
		res := &result{}
		inner := &renderState{}
		res.err = r.renderChildren(raceCtx, &res.buf, el.Children, inner)
		ch <- res
	}()

	threshold := el.Threshold
	if threshold <= 0 {
		threshold = 50 * time.Millisecond
	}
	timer := time.NewTimer(threshold)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.err != nil {
			// An error always wins over the suspense fallback; it
			// propagates to the nearest error boundary.
			return res.err
		}
		st.lastText = false
		if _, err := fmt.Fprintf(w, "<!--%s-->", element.MarkerResolved); err != nil {
			return err
		}
		if _, err := w.Write(res.buf.Bytes()); err != nil {
			return err
		}
		_, err := fmt.Fprintf(w, "<!--%s-->", element.MarkerClose)
		return err

	case <-timer.C:
		st.lastText = false
		if _, err := fmt.Fprintf(w, "<!--%s-->", element.MarkerFallback); err != nil {
			return err
		}
		inner := &renderState{}
		if err := r.renderNode(ctx, w, el.Fallback, inner); err != nil {
			return err
		}
		_, err := fmt.Fprintf(w, "<!--%s-->", element.MarkerClose)
		return err
	}
}

// firstValue invokes a component body and resolves its first emission.
func firstValue(ctx context.Context, el *element.Element) (value *element.Element, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("render: component panicked: %v", rec)
		}
	}()

	res := el.Fn(el.Props)
	switch r := res.(type) {
	case element.Immediate:
		return r.El, nil
	case element.Deferred:
		return r.Wait(ctx)
	case element.Stream:
		select {
		case em, ok := <-r.C:
			if !ok {
				return nil, nil
			}
			return em.El, em.Err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("render: component returned an unknown result type %T", res)
	}
}

// renderAttributes writes an element's attributes in sorted key order.
// Event handlers are never serialized; an explicit key is emitted as
// data-key so client reconciliation can match server output.
func renderAttributes(w io.Writer, el *element.Element) error {
	if el.Props == nil {
		return nil
	}
	keys := make([]string, 0, len(el.Props))
	for key := range el.Props {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := el.Props[key]
		if isEventProp(key, value) {
			continue
		}
		if key == "key" {
			if k := el.Key(); k != "" {
				if _, err := fmt.Fprintf(w, ` data-key="%s"`, escapeAttr(k)); err != nil {
					return err
				}
			}
			continue
		}
		if isBooleanAttr(key) {
			if b, ok := value.(bool); ok {
				if b {
					if _, err := fmt.Fprintf(w, " %s", key); err != nil {
						return err
					}
				}
				continue
			}
		}
		if _, err := fmt.Fprintf(w, ` %s="%s"`, key, escapeAttr(attrString(value))); err != nil {
			return err
		}
	}
	return nil
}

// isEventProp reports whether a prop is an event handler entry.
func isEventProp(key string, value any) bool {
	if len(key) <= 2 || !strings.EqualFold(key[:2], "on") {
		return false
	}
	switch value.(type) {
	case element.Handler, func(element.Event) any, func(element.Event), func():
		return true
	}
	return false
}

func attrString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		if val {
			return "true"
		}
		return "false"
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// booleanAttrs render as bare names when true, omitted when false.
var booleanAttrs = map[string]bool{
	"async":     true,
	"autofocus": true,
	"checked":   true,
	"defer":     true,
	"disabled":  true,
	"hidden":    true,
	"loop":      true,
	"multiple":  true,
	"muted":     true,
	"open":      true,
	"readonly":  true,
	"required":  true,
	"selected":  true,
}

func isBooleanAttr(key string) bool {
	return booleanAttrs[key]
}

// voidElements have no closing tag.
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"source": true, "track": true, "wbr": true,
}

func isVoidElement(tag string) bool {
	return voidElements[tag]
}
