package escalation

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes monitor counters. A nil *Metrics records nothing.
type Metrics struct {
	cycles         *prometheus.CounterVec
	fetchFailures  prometheus.Counter
	fetched        prometheus.Counter
	fresh          prometheus.Counter
	unmatched      prometheus.Counter
	alerts         *prometheus.CounterVec
	notifyFailures *prometheus.CounterVec
	processed      prometheus.Gauge
}

// NewMetrics creates the monitor metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "escalation_monitor_cycles_total",
			Help: "Number of poll cycles, by result.",
		}, []string{"result"}),
		fetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "escalation_monitor_fetch_failures_total",
			Help: "Number of cycles where work items could not be fetched.",
		}),
		fetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "escalation_monitor_items_fetched_total",
			Help: "Number of work items fetched from the saved query.",
		}),
		fresh: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "escalation_monitor_items_new_total",
			Help: "Number of fetched work items that were new.",
		}),
		unmatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "escalation_monitor_items_unmatched_total",
			Help: "Number of new work items no category matched.",
		}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "escalation_monitor_alerts_sent_total",
			Help: "Number of alert messages delivered, by category.",
		}, []string{"category"}),
		notifyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "escalation_monitor_notify_failures_total",
			Help: "Number of alert messages that failed to deliver, by category.",
		}, []string{"category"}),
		processed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "escalation_monitor_processed_items",
			Help: "Number of work items alerted on since the process started.",
		}),
	}
	reg.MustRegister(m.cycles, m.fetchFailures, m.fetched, m.fresh, m.unmatched, m.alerts, m.notifyFailures, m.processed)
	return m
}

func (m *Metrics) observe(report CycleReport, processed int, err error) {
	if m == nil {
		return
	}
	result := "ok"
	switch {
	case err != nil:
		result = "error"
	case report.FetchError != nil:
		result = "fetch_failed"
		m.fetchFailures.Inc()
	}
	m.cycles.WithLabelValues(result).Inc()

	m.fetched.Add(float64(report.Fetched))
	m.fresh.Add(float64(report.New))
	m.unmatched.Add(float64(report.Unmatched))
	for _, category := range report.Sent {
		m.alerts.WithLabelValues(category).Inc()
	}
	for _, category := range report.Failed {
		m.notifyFailures.WithLabelValues(category).Inc()
	}
	m.processed.Set(float64(processed))
}
