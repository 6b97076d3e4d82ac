// Package prometheus records core.MetricsRecorder calls as Prometheus
// counter and histogram vectors.
package prometheus

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/goliatone/go-integrations/core"
)

// DefaultBuckets suit durations recorded in milliseconds.
var DefaultBuckets = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

type Option func(*Recorder)

func WithBuckets(buckets []float64) Option {
	return func(r *Recorder) {
		if len(buckets) > 0 {
			r.buckets = append([]float64(nil), buckets...)
		}
	}
}

// WithRegistry records into registry instead of a private one.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(r *Recorder) {
		if registry != nil {
			r.registry = registry
		}
	}
}

// Recorder creates one vector per metric name on first use. The label set of
// a vector is fixed by the tags of that first call; later calls fill missing
// labels with "" and drop unknown ones.
type Recorder struct {
	registry *prometheus.Registry
	factory  promauto.Factory
	buckets  []float64

	mu         sync.Mutex
	counters   map[string]*labeledCounter
	histograms map[string]*labeledHistogram
}

type labeledCounter struct {
	vec    *prometheus.CounterVec
	labels []string
}

type labeledHistogram struct {
	vec    *prometheus.HistogramVec
	labels []string
}

func New(opts ...Option) *Recorder {
	r := &Recorder{
		registry:   prometheus.NewRegistry(),
		buckets:    DefaultBuckets,
		counters:   map[string]*labeledCounter{},
		histograms: map[string]*labeledHistogram{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	r.factory = promauto.With(r.registry)
	return r
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	metric := MetricName(name)
	if metric == "" || value < 0 {
		return
	}
	if !strings.HasSuffix(metric, "_total") {
		metric += "_total"
	}
	r.mu.Lock()
	counter, ok := r.counters[metric]
	if !ok {
		labels := labelNames(tags)
		counter = &labeledCounter{
			vec: r.factory.NewCounterVec(prometheus.CounterOpts{
				Name: metric,
				Help: "Count of " + strings.TrimSpace(name) + ".",
			}, labels),
			labels: labels,
		}
		r.counters[metric] = counter
	}
	r.mu.Unlock()
	counter.vec.WithLabelValues(labelValues(counter.labels, tags)...).Add(float64(value))
}

func (r *Recorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	metric := MetricName(name)
	if metric == "" {
		return
	}
	r.mu.Lock()
	histogram, ok := r.histograms[metric]
	if !ok {
		labels := labelNames(tags)
		histogram = &labeledHistogram{
			vec: r.factory.NewHistogramVec(prometheus.HistogramOpts{
				Name:    metric,
				Help:    "Distribution of " + strings.TrimSpace(name) + ".",
				Buckets: r.buckets,
			}, labels),
			labels: labels,
		}
		r.histograms[metric] = histogram
	}
	r.mu.Unlock()
	histogram.vec.WithLabelValues(labelValues(histogram.labels, tags)...).Observe(value)
}

// MetricName maps a dotted metric name to a valid Prometheus name, e.g.
// "integrations.webhooks.handle.total" becomes
// "integrations_webhooks_handle_total".
func MetricName(name string) string {
	return sanitize(name, true)
}

func labelNames(tags map[string]string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(tags))
	for key := range tags {
		label := sanitize(key, false)
		if label == "" || strings.HasPrefix(label, "__") {
			continue
		}
		if _, dup := seen[label]; dup {
			continue
		}
		seen[label] = struct{}{}
		out = append(out, label)
	}
	sort.Strings(out)
	return out
}

func labelValues(labels []string, tags map[string]string) []string {
	byLabel := make(map[string]string, len(tags))
	for key, value := range tags {
		byLabel[sanitize(key, false)] = value
	}
	out := make([]string, len(labels))
	for i, label := range labels {
		out[i] = byLabel[label]
	}
	return out
}

func sanitize(raw string, allowColon bool) string {
	raw = strings.TrimSpace(raw)
	var b strings.Builder
	for i, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteRune('_')
			}
			b.WriteRune(r)
		case r == ':' && allowColon:
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

var _ core.MetricsRecorder = (*Recorder)(nil)
