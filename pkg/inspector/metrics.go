// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package inspector

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stacklok/flowhive/pkg/engine/events"
)

// Collector aggregates workflow progress events into Prometheus metrics.
// It owns its registry so tests and embedders never collide with the
// process-global default.
type Collector struct {
	registry *prometheus.Registry

	executionsTotal *prometheus.CounterVec
	stepsTotal      *prometheus.CounterVec
	stepDuration    *prometheus.HistogramVec
}

// NewCollector creates a collector with an empty registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		executionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowhive",
			Name:      "executions_total",
			Help:      "Workflow executions reaching a terminal state, by workflow and status.",
		}, []string{"workflow", "status"}),
		stepsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowhive",
			Name:      "steps_total",
			Help:      "Step outcomes, by action and status.",
		}, []string{"action", "status"}),
		stepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "flowhive",
			Name:      "step_duration_seconds",
			Help:      "Completed step durations in seconds, by action.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"action"}),
	}
}

// Attach subscribes the collector to a progress bus. The returned
// function unsubscribes it.
func (c *Collector) Attach(bus *events.Bus) func() {
	return bus.Subscribe(c.observe)
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) observe(evt events.Event) {
	switch evt.Type {
	case events.ExecutionComplete:
		c.executionsTotal.WithLabelValues(evt.WorkflowName, "completed").Inc()
	case events.ExecutionFailed:
		c.executionsTotal.WithLabelValues(evt.WorkflowName, "failed").Inc()
	case events.StepComplete:
		c.stepsTotal.WithLabelValues(action(evt), "completed").Inc()
		if evt.Data != nil && evt.Data.Duration != nil {
			c.stepDuration.WithLabelValues(action(evt)).Observe(float64(*evt.Data.Duration) / 1000)
		}
	case events.StepFailed:
		c.stepsTotal.WithLabelValues(action(evt), "failed").Inc()
	case events.StepSkipped:
		c.stepsTotal.WithLabelValues(action(evt), "skipped").Inc()
	}
}

func action(evt events.Event) string {
	if evt.Data == nil || evt.Data.Action == "" {
		return "unknown"
	}
	return evt.Data.Action
}
