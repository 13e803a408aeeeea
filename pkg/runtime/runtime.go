// Package runtime is the reconciliation engine: a two-phase (render/commit)
// fiber scheduler with keyed diffing, suspense and error-boundary state
// machines, a reactive-subscription batching layer, and a hydration walker
// that maps server-rendered markup back onto a fresh fiber tree. The live
// document tree is only ever mutated inside the commit phase.
package runtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/html"

	"github.com/loomui/loom/pkg/cell"
	"github.com/loomui/loom/pkg/element"
)

var (
	// ErrClosed is returned by operations on a closed runtime.
	ErrClosed = errors.New("runtime: closed")

	// ErrMounted is returned when Mount or Hydrate is called twice.
	ErrMounted = errors.New("runtime: already mounted")

	errUnknownResult = errors.New("runtime: component returned an unknown result type")
)

// Config configures a Runtime. The zero value is usable with a non-nil
// Store.
type Config struct {
	// Store is the reactive value store components read through. Required.
	Store *cell.Store

	// Logger receives unhandled failures and debug events. Defaults to
	// slog.Default().
	Logger *slog.Logger

	// Metrics, when non-nil, records render/commit instrumentation.
	Metrics *Metrics

	// Tracer traces render and commit passes. Defaults to the global otel
	// tracer, which is a no-op unless a provider is installed.
	Tracer trace.Tracer
}

// Runtime is one rendering runtime instance: the explicit work state the
// engine needs across renders. All fiber-tree mutation happens on a single
// goroutine fed by a job queue; public methods post work onto it.
type Runtime struct {
	logger  *slog.Logger
	store   *cell.Store
	metrics *Metrics
	tracer  trace.Tracer

	// Work state. Touched only on the runtime goroutine.
	container   *html.Node
	rootElement *element.Element
	currentRoot *fiber
	wipRoot     *fiber
	nextUnit    *fiber
	deletions   []*fiber

	renderQueue    map[*fiber]struct{}
	batchScheduled bool

	// listeners is the per-document-node table of attached handler
	// callbacks, replaced idempotently on update.
	listeners map[*html.Node]map[string]element.Handler
	// nodeOwner maps a document node to the fiber that committed it, used
	// to route event-effect failures to the right boundary.
	nodeOwner map[*html.Node]*fiber

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool

	jobMu   sync.Mutex
	jobList []func()
	jobKick chan struct{}
	stopped chan struct{}
}

// New creates a runtime and starts its work goroutine.
func New(cfg Config) *Runtime {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	store := cfg.Store
	if store == nil {
		store = cell.NewStore()
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer("loom")
	}

	ctx, cancel := context.WithCancel(context.Background())
	rt := &Runtime{
		logger:      logger,
		store:       store,
		metrics:     cfg.Metrics,
		tracer:      tracer,
		renderQueue: make(map[*fiber]struct{}),
		listeners:   make(map[*html.Node]map[string]element.Handler),
		nodeOwner:   make(map[*html.Node]*fiber),
		ctx:         ctx,
		cancel:      cancel,
		jobKick:     make(chan struct{}, 1),
		stopped:     make(chan struct{}),
	}
	go rt.loop()
	return rt
}

// Store returns the runtime's reactive value store.
func (rt *Runtime) Store() *cell.Store {
	return rt.store
}

// loop drains the job queue on a single goroutine. Work units execute
// synchronously within one job; asynchronous emissions post follow-up jobs.
func (rt *Runtime) loop() {
	defer close(rt.stopped)
	for {
		select {
		case <-rt.jobKick:
			for {
				rt.jobMu.Lock()
				if len(rt.jobList) == 0 {
					rt.jobMu.Unlock()
					break
				}
				job := rt.jobList[0]
				rt.jobList = rt.jobList[1:]
				rt.jobMu.Unlock()
				job()
			}
		case <-rt.ctx.Done():
			return
		}
	}
}

// post enqueues a job for the runtime goroutine. Safe from any goroutine,
// including the runtime goroutine itself.
func (rt *Runtime) post(fn func()) {
	if rt.closed.Load() {
		return
	}
	rt.jobMu.Lock()
	rt.jobList = append(rt.jobList, fn)
	rt.jobMu.Unlock()
	select {
	case rt.jobKick <- struct{}{}:
	default:
	}
}

// call runs fn on the runtime goroutine and waits for it.
func (rt *Runtime) call(fn func()) error {
	if rt.closed.Load() {
		return ErrClosed
	}
	done := make(chan struct{})
	rt.post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-rt.ctx.Done():
		return ErrClosed
	}
}

// Sync blocks until the job queue is quiescent: every queued job, including
// batches those jobs scheduled, has run. Async emissions still in flight on
// other goroutines are not waited for.
func (rt *Runtime) Sync() {
	for {
		if rt.call(func() {}) != nil {
			return
		}
		rt.jobMu.Lock()
		pending := len(rt.jobList)
		rt.jobMu.Unlock()
		if pending == 0 {
			return
		}
	}
}

// Mount renders root into container and commits the initial tree. It
// returns after the first commit.
func (rt *Runtime) Mount(root *element.Element, container *html.Node) error {
	if root == nil || container == nil {
		return errors.New("runtime: Mount requires a root element and a container node")
	}
	var err error
	cerr := rt.call(func() {
		if rt.currentRoot != nil || rt.wipRoot != nil {
			err = ErrMounted
			return
		}
		rt.container = container
		rt.rootElement = root
		rt.wipRoot = &fiber{
			kind:          element.KindHost,
			tag:           container.Data,
			node:          container,
			childElements: []*element.Element{root},
		}
		rt.nextUnit = rt.wipRoot
		rt.deletions = nil
		rt.renderPass("mount")
	})
	if cerr != nil {
		return cerr
	}
	return err
}

// Unmount tears down the committed tree: every fiber's resource scope is
// closed (parked fibers included), document nodes removed, and the listener
// table cleared.
func (rt *Runtime) Unmount() {
	rt.call(func() {
		if rt.currentRoot == nil {
			return
		}
		for _, c := range collectChildren(rt.currentRoot) {
			rt.teardownScopes(c, true)
			rt.removeNodes(c)
		}
		rt.currentRoot = nil
		rt.wipRoot = nil
		rt.rootElement = nil
		rt.renderQueue = make(map[*fiber]struct{})
		rt.batchScheduled = false
		rt.listeners = make(map[*html.Node]map[string]element.Handler)
		rt.nodeOwner = make(map[*html.Node]*fiber)
	})
}

// Close stops the runtime goroutine and cancels all outstanding scopes via
// context cancellation. The runtime cannot be reused.
func (rt *Runtime) Close() {
	if rt.closed.Swap(true) {
		return
	}
	rt.cancel()
	<-rt.stopped
}
