// Package metrics exports flow sensors and stage invocation timings to
// Prometheus.
package metrics

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/drblury/dagflow/internal/runtime/stage"
)

const (
	namespace = "dagflow"
	subsystem = "stage"
)

// Source is a flow whose sensors are exported. *flow.Flow satisfies it.
type Source interface {
	Label() string
	ReadSensors() []stage.Reading
	QueueDepths() map[string]int
}

// Metrics collects sensor readings from watched flows on every scrape and
// records invocation outcomes through stage hooks.
type Metrics struct {
	mu      sync.RWMutex
	sources []Source

	attemptDuration *prometheus.HistogramVec
	attemptsTotal   *prometheus.CounterVec
	droppedTotal    *prometheus.CounterVec

	inputDesc      *prometheus.Desc
	outputDesc     *prometheus.Desc
	erroredDesc    *prometheus.Desc
	failedDesc     *prometheus.Desc
	executionDesc  *prometheus.Desc
	throughputDesc *prometheus.Desc
	queueDesc      *prometheus.Desc

	registerer prometheus.Registerer
	registered bool
}

func newCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

func newHistogramVec(name, help string, buckets []float64, labels []string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
			Buckets:   buckets,
		},
		labels,
	)
}

func newDesc(subsystem, name, help string, labels ...string) *prometheus.Desc {
	return prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, name), help, labels, nil)
}

// New creates the collectors. A nil registerer means the default registry.
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	nodeLabels := []string{"flow", "node"}
	return &Metrics{
		registerer:      registerer,
		attemptDuration: newHistogramVec("attempt_duration_seconds", "Duration of stage executions", prometheus.DefBuckets, []string{"flow", "node", "outcome"}),
		attemptsTotal:   newCounterVec("attempts_total", "Stage executions by outcome", []string{"flow", "node", "outcome"}),
		droppedTotal:    newCounterVec("dropped_total", "Messages dropped after every retry failed", nodeLabels),
		inputDesc:       newDesc(subsystem, "input_records", "Messages received by the stage", nodeLabels...),
		outputDesc:      newDesc(subsystem, "output_records", "Messages emitted by the stage", nodeLabels...),
		erroredDesc:     newDesc(subsystem, "errored_records", "Messages the stage failed to process", nodeLabels...),
		failedDesc:      newDesc(subsystem, "failed_attempts", "Failed stage executions including retries", nodeLabels...),
		executionDesc:   newDesc(subsystem, "execution_seconds", "Cumulative time spent executing the stage", nodeLabels...),
		throughputDesc:  newDesc(subsystem, "records_per_second", "Input records per second of execution time", nodeLabels...),
		queueDesc:       newDesc("queue", "depth", "Queued and unacknowledged messages", "flow", "queue"),
	}
}

// Register registers the collectors. Safe to call multiple times.
func (m *Metrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.attemptDuration,
		m.attemptsTotal,
		m.droppedTotal,
		sensorCollector{m},
	}
	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

// Watch adds src to the flows exported on every scrape.
func (m *Metrics) Watch(src Source) {
	if src == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources = append(m.sources, src)
}

// Hooks returns stage hooks recording invocations of the flow called label.
func (m *Metrics) Hooks(label string) stage.Hooks {
	return stage.Hooks{
		OnDone: func(inv stage.Invocation) {
			m.observe(label, inv, "success")
		},
		OnError: func(inv stage.Invocation, _ error) {
			m.attemptsTotal.WithLabelValues(label, inv.Node, "error").Inc()
		},
		OnDrop: func(inv stage.Invocation, _ error) {
			m.droppedTotal.WithLabelValues(label, inv.Node).Inc()
			m.attemptDuration.WithLabelValues(label, inv.Node, "dropped").Observe(inv.Duration.Seconds())
		},
	}
}

func (m *Metrics) observe(label string, inv stage.Invocation, outcome string) {
	m.attemptsTotal.WithLabelValues(label, inv.Node, outcome).Inc()
	m.attemptDuration.WithLabelValues(label, inv.Node, outcome).Observe(inv.Duration.Seconds())
}

// Reset clears every recorded series (useful for testing).
func (m *Metrics) Reset() {
	m.attemptDuration.Reset()
	m.attemptsTotal.Reset()
	m.droppedTotal.Reset()
}

// sensorCollector turns sensor readings into const metrics at scrape time.
type sensorCollector struct{ m *Metrics }

func (c sensorCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.m.inputDesc, c.m.outputDesc, c.m.erroredDesc, c.m.failedDesc,
		c.m.executionDesc, c.m.throughputDesc, c.m.queueDesc,
	} {
		ch <- d
	}
}

func (c sensorCollector) Collect(ch chan<- prometheus.Metric) {
	c.m.mu.RLock()
	sources := append([]Source(nil), c.m.sources...)
	c.m.mu.RUnlock()

	for _, src := range sources {
		label := src.Label()
		for _, r := range src.ReadSensors() {
			ch <- prometheus.MustNewConstMetric(c.m.inputDesc, prometheus.CounterValue, float64(r.Input), label, r.Node)
			ch <- prometheus.MustNewConstMetric(c.m.outputDesc, prometheus.CounterValue, float64(r.Output), label, r.Node)
			ch <- prometheus.MustNewConstMetric(c.m.erroredDesc, prometheus.CounterValue, float64(r.Errored), label, r.Node)
			ch <- prometheus.MustNewConstMetric(c.m.failedDesc, prometheus.CounterValue, float64(r.FailedAttempts), label, r.Node)
			ch <- prometheus.MustNewConstMetric(c.m.executionDesc, prometheus.CounterValue, r.ExecutionTime.Seconds(), label, r.Node)
			ch <- prometheus.MustNewConstMetric(c.m.throughputDesc, prometheus.GaugeValue, r.RecordsPerSecond, label, r.Node)
		}
		for name, depth := range src.QueueDepths() {
			ch <- prometheus.MustNewConstMetric(c.m.queueDesc, prometheus.GaugeValue, float64(depth), label, name)
		}
	}
}
