// Package metrics exports hook firings and operation executions as
// Prometheus metrics.
package metrics

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/leandroluk/golem-statichooks/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector implements core.Observer and provides a core.Middleware.
type Collector struct {
	registry *prometheus.Registry

	// hookFirings counts hooks executed per firing.
	// Labels: operation, phase, kind, origin
	hookFirings *prometheus.CounterVec

	// operations counts built-in executions.
	// Labels: operation, status (success, error)
	operations *prometheus.CounterVec

	// operationDuration measures built-in executions in seconds.
	// Labels: operation
	operationDuration *prometheus.HistogramVec
}

var _ core.Observer = (*Collector)(nil)

// NewCollector registers the metrics on registry. A nil registry uses a new
// private one.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	factory := promauto.With(registry)
	return &Collector{
		registry: registry,
		hookFirings: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "golem",
			Name:      "hook_firings_total",
			Help:      "Total hooks executed, by operation, phase, context kind and dispatch origin",
		}, []string{"operation", "phase", "kind", "origin"}),
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "golem",
			Name:      "operations_total",
			Help:      "Total built-in operation executions by status",
		}, []string{"operation", "status"}),
		operationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "golem",
			Name:      "operation_duration_seconds",
			Help:      "Built-in operation execution latency in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"operation"}),
	}
}

// HookFired implements core.Observer.
func (c *Collector) HookFired(hc core.HookContext, count int) {
	c.hookFirings.WithLabelValues(
		string(hc.Operation), string(hc.Phase), string(hc.Kind), string(hc.Origin),
	).Add(float64(count))
}

// Middleware records every built-in execution.
func (c *Collector) Middleware(next core.Handler) core.Handler {
	return func(ctx context.Context, op core.Operation, payload any) error {
		start := time.Now()
		err := next(ctx, op, payload)
		c.operationDuration.WithLabelValues(string(op)).Observe(time.Since(start).Seconds())
		status := "success"
		if err != nil {
			status = "error"
		}
		c.operations.WithLabelValues(string(op), status).Inc()
		return err
	}
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// HookTotal is one row of Summary.
type HookTotal struct {
	Operation string
	Phase     string
	Kind      string
	Origin    string
	Count     float64
}

// Summary gathers the hook firing counter, sorted by its labels.
func (c *Collector) Summary() ([]HookTotal, error) {
	familyList, err := c.registry.Gather()
	if err != nil {
		return nil, err
	}
	totalList := []HookTotal{}
	for _, family := range familyList {
		if family.GetName() != "golem_hook_firings_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			total := HookTotal{Count: metric.GetCounter().GetValue()}
			for _, label := range metric.GetLabel() {
				switch label.GetName() {
				case "operation":
					total.Operation = label.GetValue()
				case "phase":
					total.Phase = label.GetValue()
				case "kind":
					total.Kind = label.GetValue()
				case "origin":
					total.Origin = label.GetValue()
				}
			}
			totalList = append(totalList, total)
		}
	}
	sort.Slice(totalList, func(i, j int) bool {
		a, b := totalList[i], totalList[j]
		if a.Operation != b.Operation {
			return a.Operation < b.Operation
		}
		if a.Phase != b.Phase {
			return a.Phase > b.Phase // pre before post
		}
		if a.Origin != b.Origin {
			return a.Origin < b.Origin
		}
		return a.Kind < b.Kind
	})
	return totalList, nil
}
