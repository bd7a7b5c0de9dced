// Package metrics exposes the result of an ingest run to a Prometheus Pushgateway.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "d2_itemdb"

// Metrics holds run gauges in a private registry. Gauges rather than counters:
// every run replaces the previous push for the job.
type Metrics struct {
	registry *prometheus.Registry

	localeDocuments *prometheus.GaugeVec
	localeSuccess   *prometheus.GaugeVec
	localeDuration  *prometheus.GaugeVec

	runSuccess  prometheus.Gauge
	runDuration prometheus.Gauge
	runFinished prometheus.Gauge

	pushURL string
	job     string
}

// New registers the updater metrics. An empty pushURL makes Push a no-op.
func New(pushURL, job string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		pushURL:  pushURL,
		job:      job,

		localeDocuments: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "locale_documents",
			Help:      "Documents handled by the last run, by locale and stage.",
		}, []string{"locale", "stage"}),
		localeSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "locale_success",
			Help:      "1 if the locale was loaded by the last run, 0 otherwise.",
		}, []string{"locale"}),
		localeDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "locale_duration_seconds",
			Help:      "Wall time of the locale pipeline in the last run.",
		}, []string{"locale"}),

		runSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_success",
			Help:      "1 if every locale of the last run succeeded.",
		}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run.",
		}),
		runFinished: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_last_finished_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
	}

	m.registry.MustRegister(
		m.localeDocuments,
		m.localeSuccess,
		m.localeDuration,
		m.runSuccess,
		m.runDuration,
		m.runFinished,
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveLocale records the outcome of one locale pipeline.
func (m *Metrics) ObserveLocale(locale string, fetched, inserted, skipped int, d time.Duration, err error) {
	m.localeDocuments.WithLabelValues(locale, "fetched").Set(float64(fetched))
	m.localeDocuments.WithLabelValues(locale, "inserted").Set(float64(inserted))
	m.localeDocuments.WithLabelValues(locale, "skipped").Set(float64(skipped))
	m.localeDuration.WithLabelValues(locale).Set(d.Seconds())

	ok := 1.0
	if err != nil {
		ok = 0
	}
	m.localeSuccess.WithLabelValues(locale).Set(ok)
}

// ObserveRun records the outcome of the whole run.
func (m *Metrics) ObserveRun(d time.Duration, failed bool, finishedAt time.Time) {
	ok := 1.0
	if failed {
		ok = 0
	}
	m.runSuccess.Set(ok)
	m.runDuration.Set(d.Seconds())
	m.runFinished.Set(float64(finishedAt.Unix()))
}

// Push replaces the job's metrics on the Pushgateway.
func (m *Metrics) Push(ctx context.Context) error {
	if m.pushURL == "" {
		return nil
	}
	if err := push.New(m.pushURL, m.job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("metrics: push to %s: %w", m.pushURL, err)
	}
	return nil
}
