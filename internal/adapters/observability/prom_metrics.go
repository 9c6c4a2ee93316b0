package observability

import (
	"log"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/veridrive/sigproof/internal/domain"
	"github.com/veridrive/sigproof/internal/ports"
)

type PromObs struct {
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
	drops    *prometheus.CounterVec
}

// NewPromObs registers the correlation pipeline metrics on reg; pass nil
// to use the default registerer.
func NewPromObs(reg prometheus.Registerer) *PromObs {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	signals := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sigproof_signal_events_total",
		Help: "Signal events accepted into the correlation buffers.",
	})
	detections := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sigproof_detections_total",
		Help: "Detections consumed from the external stream.",
	})
	matches := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sigproof_matches_total",
		Help: "Latency results produced by the correlation engine.",
	})
	retries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sigproof_adapter_start_retries_total",
		Help: "Adapter Start attempts that failed and were retried.",
	})
	flushed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sigproof_results_flushed_total",
		Help: "Latency results flushed to the result store.",
	})
	sessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sigproof_active_sessions",
		Help: "Validation sessions currently in RUNNING state.",
	})
	buffered := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sigproof_buffered_signal_events",
		Help: "Signal events currently held in correlation ring buffers.",
	})
	journal := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sigproof_result_journal_bytes",
		Help: "Size of the on-disk result journal.",
	})
	correlation := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sigproof_correlation_seconds",
		Help:    "Time spent correlating one detection against all buffers.",
		Buckets: prometheus.ExponentialBuckets(0.000001, 4, 10),
	})
	measured := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sigproof_measured_latency_seconds",
		Help:    "Absolute detection-to-signal latency of matched pairs.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
	})
	drops := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sigproof_dropped_events_total",
		Help: "Signal events discarded before correlation, by reason.",
	}, []string{"source_id", "reason"})

	reg.MustRegister(signals, detections, matches, retries, flushed,
		sessions, buffered, journal, correlation, measured, drops)

	return &PromObs{
		counters: map[string]prometheus.Counter{
			"sigproof_signal_events_total":         signals,
			"sigproof_detections_total":            detections,
			"sigproof_matches_total":               matches,
			"sigproof_adapter_start_retries_total": retries,
			"sigproof_results_flushed_total":       flushed,
		},
		gauges: map[string]prometheus.Gauge{
			"sigproof_active_sessions":        sessions,
			"sigproof_buffered_signal_events": buffered,
			"sigproof_result_journal_bytes":   journal,
		},
		histos: map[string]prometheus.Observer{
			"sigproof_correlation_seconds":      correlation,
			"sigproof_measured_latency_seconds": measured,
		},
		drops: drops,
	}
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	if err != nil {
		log.Printf("ERROR: %s: %v", msg, err)
	}
}

func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	if err != nil {
		log.Printf("CRITICAL: %s: %v", msg, err)
	}
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func (p *PromObs) RecordDrop(sourceID string, ev *domain.SignalEvent, reason string) {
	p.drops.WithLabelValues(sourceID, reason).Inc()
}

var _ ports.Observability = (*PromObs)(nil)
