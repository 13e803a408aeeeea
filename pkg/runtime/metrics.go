package runtime

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures runtime instrumentation.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "loom").
	Namespace string

	// Subsystem is the metrics subsystem (default: "runtime").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for pass durations.
	// Default: prometheus.DefBuckets.
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer.
	Registry prometheus.Registerer
}

// MetricsOption configures runtime instrumentation.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) { c.Namespace = namespace }
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) { c.Subsystem = subsystem }
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) { c.ConstLabels = labels }
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) { c.Buckets = buckets }
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(reg prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) { c.Registry = reg }
}

// Metrics records render/commit instrumentation for one runtime. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	rendersTotal     prometheus.Counter
	commitsTotal     prometheus.Counter
	fiberOps         *prometheus.CounterVec
	renderDuration   prometheus.Histogram
	commitDuration   prometheus.Histogram
	batchSize        prometheus.Histogram
	suspensionsTotal prometheus.Counter
	suspenseSwaps    prometheus.Counter
	boundaryErrors   prometheus.Counter
}

// NewMetrics creates and registers runtime metrics.
func NewMetrics(opts ...MetricsOption) *Metrics {
	cfg := MetricsConfig{
		Namespace: "loom",
		Subsystem: "runtime",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	factory := promauto.With(cfg.Registry)

	return &Metrics{
		rendersTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "renders_total", Help: "Render passes completed.",
			ConstLabels: cfg.ConstLabels,
		}),
		commitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "commits_total", Help: "Commit passes applied to the document.",
			ConstLabels: cfg.ConstLabels,
		}),
		fiberOps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "fiber_ops_total", Help: "Committed fiber operations by kind.",
			ConstLabels: cfg.ConstLabels,
		}, []string{"op"}),
		renderDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "render_duration_seconds", Help: "Render pass duration.",
			Buckets: cfg.Buckets, ConstLabels: cfg.ConstLabels,
		}),
		commitDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "commit_duration_seconds", Help: "Commit pass duration.",
			Buckets: cfg.Buckets, ConstLabels: cfg.ConstLabels,
		}),
		batchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "batch_size", Help: "Fibers queued per re-render batch.",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64}, ConstLabels: cfg.ConstLabels,
		}),
		suspensionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "suspensions_total", Help: "Fibers parked past a suspense threshold.",
			ConstLabels: cfg.ConstLabels,
		}),
		suspenseSwaps: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "suspense_swaps_total", Help: "Suspense fallbacks replaced by committed content.",
			ConstLabels: cfg.ConstLabels,
		}),
		boundaryErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "boundary_errors_total", Help: "Failures routed to error boundaries.",
			ConstLabels: cfg.ConstLabels,
		}),
	}
}

func (m *Metrics) observeRender(d time.Duration) {
	if m == nil {
		return
	}
	m.rendersTotal.Inc()
	m.renderDuration.Observe(d.Seconds())
}

func (m *Metrics) observeCommit(d time.Duration) {
	if m == nil {
		return
	}
	m.commitsTotal.Inc()
	m.commitDuration.Observe(d.Seconds())
}

func (m *Metrics) countOp(op string) {
	if m == nil {
		return
	}
	m.fiberOps.WithLabelValues(op).Inc()
}

func (m *Metrics) observeBatch(size int) {
	if m == nil {
		return
	}
	m.batchSize.Observe(float64(size))
}

func (m *Metrics) countSuspension() {
	if m == nil {
		return
	}
	m.suspensionsTotal.Inc()
}

func (m *Metrics) countSwap() {
	if m == nil {
		return
	}
	m.suspenseSwaps.Inc()
}

func (m *Metrics) countBoundaryError() {
	if m == nil {
		return
	}
	m.boundaryErrors.Inc()
}
