package metric

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/pairlink-go/internal/core/domain"
)

// SessionSource reports the live session population.
type SessionSource interface {
	CountByState() map[domain.State]int
	PendingReconnects() int
}

// Collector samples session counts at scrape time.
type Collector struct {
	src SessionSource

	sessions *prometheus.Desc
	pending  *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a collector over src.
func NewCollector(src SessionSource) *Collector {
	return &Collector{
		src: src,
		sessions: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "sessions"),
			"Registered sessions by state.",
			[]string{"state"}, nil,
		),
		pending: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "reconnects_pending"),
			"Reconnect timers waiting to fire.",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.sessions
	ch <- c.pending
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	counts := c.src.CountByState()
	for _, state := range domain.AllStates {
		ch <- prometheus.MustNewConstMetric(c.sessions, prometheus.GaugeValue, float64(counts[state]), string(state))
	}
	ch <- prometheus.MustNewConstMetric(c.pending, prometheus.GaugeValue, float64(c.src.PendingReconnects()))
}
