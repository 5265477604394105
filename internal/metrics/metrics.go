// Package metrics counts journal activity as Prometheus metrics.
//
// A Collector owns a private registry, so any number of journals can be
// observed side by side (one per scenario in a test run) without colliding
// in the global default registry.
package metrics

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/roach88/rewind/internal/ir"
	"github.com/roach88/rewind/internal/journal"
)

const namespace = "rewind"

// Collector turns journal bus events into counters.
type Collector struct {
	registry *prometheus.Registry

	Committed   prometheus.Counter
	Merged      prometheus.Counter
	Undos       prometheus.Counter
	Redos       prometheus.Counter
	Cleared     prometheus.Counter
	Discarded   prometheus.Counter
	Evicted     prometheus.Counter
	Diagnostics *prometheus.CounterVec
	Version     prometheus.Gauge
}

// NewCollector creates a Collector with its own registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		})
	}

	return &Collector{
		registry:  reg,
		Committed: counter("actions_committed_total", "Actions committed as new history entries."),
		Merged:    counter("actions_merged_total", "Actions merged into the previous history entry."),
		Undos:     counter("undo_total", "Successful undo steps."),
		Redos:     counter("redo_total", "Successful redo steps outside of commits."),
		Cleared:   counter("history_cleared_total", "Calls that cleared the history."),
		Discarded: counter("actions_discarded_total", "Redo entries dropped by a new commit or a clear."),
		Evicted:   counter("actions_evicted_total", "Oldest entries dropped to respect the history limit."),
		Diagnostics: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diagnostics_total",
			Help:      "Non-fatal dispatch problems by kind.",
		}, []string{"kind"}),
		Version: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "version",
			Help:      "Current journal version.",
		}),
	}
}

// Registry returns the collector's registry, for serving or gathering.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Attach subscribes the collector to j and returns the cancel func.
func (c *Collector) Attach(j *journal.Journal) (detach func()) {
	c.Version.Set(float64(j.Version()))
	return j.Subscribe(c.Observe)
}

// Observe records one bus event.
func (c *Collector) Observe(e journal.Event) {
	switch e.Kind {
	case ir.EventActionCommitted:
		c.Committed.Inc()
	case ir.EventActionMerged:
		c.Merged.Inc()
	case ir.EventUndo:
		c.Undos.Inc()
	case ir.EventRedo:
		c.Redos.Inc()
	case ir.EventHistoryCleared:
		c.Cleared.Inc()
	case ir.EventActionDiscarded:
		c.Discarded.Inc()
	case ir.EventActionEvicted:
		c.Evicted.Inc()
	case ir.EventDiagnostic:
		kind := "unknown"
		if s, ok := e.Detail["kind"].(ir.IRString); ok {
			kind = string(s)
		}
		c.Diagnostics.WithLabelValues(kind).Inc()
	case ir.EventVersionChanged:
		c.Version.Set(float64(e.Version))
	}
}

// WriteText writes every metric in the Prometheus text exposition format.
func (c *Collector) WriteText(w io.Writer) error {
	families, err := c.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	return writeFamilies(w, families)
}

func writeFamilies(w io.Writer, families []*dto.MetricFamily) error {
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}
