// Package metrics exposes counters, gauges and histograms in the Prometheus
// text format (version 0.0.4).
//
// Label values are passed positionally and must match the label names given
// when the metric was created; a mismatch panics, as it is a programming
// error.
//
//	reg := metrics.NewRegistry()
//	hits := reg.NewCounter("apilab_hits_total", "Hits.", "route")
//	hits.Inc("/users")
//	http.Handle("GET /metrics", reg.Handler())
package metrics

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
)

// Metric types as written on # TYPE lines.
const (
	typeCounter   = "counter"
	typeGauge     = "gauge"
	typeHistogram = "histogram"
)

// DefaultBuckets are latency buckets in seconds.
var DefaultBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

type sample struct {
	suffix string
	labels []string // name, value pairs
	value  float64
}

type collector interface {
	name() string
	help() string
	kind() string
	collect() []sample
}

// Registry holds metrics for exposition.
type Registry struct {
	mu         sync.RWMutex
	collectors []collector
	names      map[string]bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]bool)}
}

func (r *Registry) register(c collector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.names[c.name()] {
		panic("metrics: duplicate metric " + c.name())
	}
	r.names[c.name()] = true
	r.collectors = append(r.collectors, c)
}

// series is a set of float values keyed by label values.
type series struct {
	metricName string
	helpText   string
	labelNames []string

	mu     sync.Mutex
	values map[string]*seriesValue
}

type seriesValue struct {
	labels []string
	v      float64
}

func newSeries(name, help string, labels []string) series {
	return series{metricName: name, helpText: help, labelNames: labels, values: make(map[string]*seriesValue)}
}

func (s *series) name() string { return s.metricName }
func (s *series) help() string { return s.helpText }

// checkLabels panics when labelValues does not match the label names. It
// runs before any lock is taken.
func (s *series) checkLabels(labelValues []string) {
	if len(labelValues) != len(s.labelNames) {
		panic(fmt.Sprintf("metrics: %s wants %d label values, got %d", s.metricName, len(s.labelNames), len(labelValues)))
	}
}

// update applies fn to the value for labelValues under the series lock.
func (s *series) update(labelValues []string, fn func(v *seriesValue)) {
	s.checkLabels(labelValues)
	key := strings.Join(labelValues, "\x00")

	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if !ok {
		v = &seriesValue{labels: pairs(s.labelNames, labelValues)}
		s.values[key] = v
	}
	fn(v)
}

func (s *series) collect() []sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sample, 0, len(s.values))
	for _, v := range s.values {
		out = append(out, sample{labels: v.labels, value: v.v})
	}
	return out
}

// Counter only goes up.
type Counter struct{ series }

// NewCounter creates and registers a counter.
func (r *Registry) NewCounter(name, help string, labels ...string) *Counter {
	c := &Counter{newSeries(name, help, labels)}
	r.register(c)
	return c
}

func (c *Counter) kind() string { return typeCounter }

// Inc adds one.
func (c *Counter) Inc(labelValues ...string) { c.Add(1, labelValues...) }

// Add adds delta. Negative deltas are ignored.
func (c *Counter) Add(delta float64, labelValues ...string) {
	if delta < 0 {
		return
	}
	c.update(labelValues, func(v *seriesValue) { v.v += delta })
}

// Value returns the current value, mainly for tests.
func (c *Counter) Value(labelValues ...string) float64 {
	var out float64
	c.update(labelValues, func(v *seriesValue) { out = v.v })
	return out
}

// Gauge goes up and down.
type Gauge struct{ series }

// NewGauge creates and registers a gauge.
func (r *Registry) NewGauge(name, help string, labels ...string) *Gauge {
	g := &Gauge{newSeries(name, help, labels)}
	r.register(g)
	return g
}

func (g *Gauge) kind() string { return typeGauge }

// Set replaces the value.
func (g *Gauge) Set(v float64, labelValues ...string) {
	g.update(labelValues, func(sv *seriesValue) { sv.v = v })
}

// Add adds delta, which may be negative.
func (g *Gauge) Add(delta float64, labelValues ...string) {
	g.update(labelValues, func(v *seriesValue) { v.v += delta })
}

type gaugeFunc struct {
	metricName, helpText string
	fn                   func() float64
}

func (g *gaugeFunc) name() string      { return g.metricName }
func (g *gaugeFunc) help() string      { return g.helpText }
func (g *gaugeFunc) kind() string      { return typeGauge }
func (g *gaugeFunc) collect() []sample { return []sample{{value: g.fn()}} }

// NewGaugeFunc registers an unlabelled gauge whose value is read from fn at
// scrape time.
func (r *Registry) NewGaugeFunc(name, help string, fn func() float64) {
	r.register(&gaugeFunc{metricName: name, helpText: help, fn: fn})
}

// Histogram counts observations into cumulative buckets.
type Histogram struct {
	metricName string
	helpText   string
	labelNames []string
	bounds     []float64

	mu     sync.Mutex
	values map[string]*histogramValue
}

type histogramValue struct {
	labels []string
	counts []uint64 // per bound, not cumulative
	sum    float64
	count  uint64
}

// NewHistogram creates and registers a histogram. Nil buckets use
// DefaultBuckets. A +Inf bucket is always added.
func (r *Registry) NewHistogram(name, help string, buckets []float64, labels ...string) *Histogram {
	if buckets == nil {
		buckets = DefaultBuckets
	}
	bounds := slices.Clone(buckets)
	slices.Sort(bounds)
	if len(bounds) == 0 || !math.IsInf(bounds[len(bounds)-1], 1) {
		bounds = append(bounds, math.Inf(1))
	}
	h := &Histogram{
		metricName: name,
		helpText:   help,
		labelNames: labels,
		bounds:     bounds,
		values:     make(map[string]*histogramValue),
	}
	r.register(h)
	return h
}

func (h *Histogram) name() string { return h.metricName }
func (h *Histogram) help() string { return h.helpText }
func (h *Histogram) kind() string { return typeHistogram }

// Observe records v.
func (h *Histogram) Observe(v float64, labelValues ...string) {
	if len(labelValues) != len(h.labelNames) {
		panic(fmt.Sprintf("metrics: %s wants %d label values, got %d", h.metricName, len(h.labelNames), len(labelValues)))
	}
	key := strings.Join(labelValues, "\x00")

	h.mu.Lock()
	defer h.mu.Unlock()
	hv, ok := h.values[key]
	if !ok {
		hv = &histogramValue{labels: pairs(h.labelNames, labelValues), counts: make([]uint64, len(h.bounds))}
		h.values[key] = hv
	}
	i, _ := slices.BinarySearch(h.bounds, v)
	hv.counts[i]++
	hv.sum += v
	hv.count++
}

func (h *Histogram) collect() []sample {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]sample, 0, len(h.values)*(len(h.bounds)+2))
	for _, hv := range h.values {
		var cumulative uint64
		for i, bound := range h.bounds {
			cumulative += hv.counts[i]
			labels := append(slices.Clone(hv.labels), "le", formatFloat(bound))
			out = append(out, sample{suffix: "_bucket", labels: labels, value: float64(cumulative)})
		}
		out = append(out,
			sample{suffix: "_sum", labels: hv.labels, value: hv.sum},
			sample{suffix: "_count", labels: hv.labels, value: float64(hv.count)},
		)
	}
	return out
}

// Handler serves every registered metric.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_ = r.Write(w)
	})
}

// Write writes every metric with at least one sample to w. Samples of a
// metric are sorted by their labels.
func (r *Registry) Write(w io.Writer) error {
	r.mu.RLock()
	collectors := slices.Clone(r.collectors)
	r.mu.RUnlock()

	var b strings.Builder
	for _, c := range collectors {
		samples := c.collect()
		if len(samples) == 0 {
			continue
		}
		lines := make([]string, 0, len(samples))
		for _, s := range samples {
			lines = append(lines, c.name()+s.suffix+formatLabels(s.labels)+" "+formatFloat(s.value))
		}
		slices.Sort(lines)
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s %s\n", c.name(), escapeHelp(c.help()), c.name(), c.kind())
		for _, l := range lines {
			b.WriteString(l)
			b.WriteByte('\n')
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func pairs(names, values []string) []string {
	out := make([]string, 0, 2*len(names))
	for i, n := range names {
		out = append(out, n, values[i])
	}
	return out
}

func formatLabels(labels []string) string {
	if len(labels) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteByte('{')
	for i := 0; i < len(labels); i += 2 {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(labels[i])
		b.WriteString(`="`)
		b.WriteString(escapeLabelValue(labels[i+1]))
		b.WriteByte('"')
	}
	b.WriteByte('}')
	return b.String()
}

func formatFloat(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "+Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	case math.IsNaN(v):
		return "NaN"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

var (
	helpEscaper  = strings.NewReplacer(`\`, `\\`, "\n", `\n`)
	labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
)

func escapeHelp(s string) string       { return helpEscaper.Replace(s) }
func escapeLabelValue(s string) string { return labelEscaper.Replace(s) }
