// Package metrics exposes the loris atomic counters in Prometheus format.
package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dalspace/loris/channel"
	"github.com/dalspace/loris/dispatch"
	"github.com/dalspace/loris/link"
)

const namespace = "loris"

// Registry is a dedicated Prometheus registry. Counters are read from the
// components' own atomics at scrape time, so nothing needs to be pushed.
type Registry struct {
	reg *prometheus.Registry
}

// New creates a registry carrying the Go runtime and process collectors.
func New() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Registry{reg: reg}
}

// Prometheus returns the underlying registry.
func (r *Registry) Prometheus() *prometheus.Registry {
	return r.reg
}

// Handler serves the registry in the exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// RegisterChannel exports the I/O counters of a byte channel.
func (r *Registry) RegisterChannel(m *channel.Metrics) error {
	return r.registerCounters("channel", []counter{
		{"reads_total", "Underlying read calls that returned data.", &m.ReadCount},
		{"read_bytes_total", "Bytes read from the channel.", &m.BytesRead},
		{"writes_total", "Underlying write calls.", &m.WriteCount},
		{"written_bytes_total", "Bytes accepted by the channel.", &m.BytesWritten},
		{"short_writes_total", "Writes that were not fully accepted.", &m.ShortWriteCount},
	})
}

// RegisterLink exports the framed transport counters.
func (r *Registry) RegisterLink(m *link.Metrics) error {
	return r.registerCounters("link", []counter{
		{"messages_sent_total", "Send calls that wrote a payload.", &m.MessagesSent},
		{"messages_received_total", "Recv calls that returned data.", &m.MessagesReceived},
		{"sent_bytes_total", "Payload bytes sent.", &m.BytesSent},
		{"received_bytes_total", "Payload bytes received.", &m.BytesReceived},
		{"blocks_sent_total", "FEC codewords sent.", &m.BlocksSent},
		{"blocks_received_total", "FEC codewords received.", &m.BlocksReceived},
		{"corrected_symbols_total", "Codeword bytes repaired by the decoder.", &m.CorrectedSymbols},
		{"correction_failures_total", "Codewords that could not be decoded.", &m.CorrectionFailures},
		{"discarded_bytes_total", "Decoded bytes beyond the requested length.", &m.DiscardedBytes},
		{"conversations_total", "Exclusive request/response exchanges.", &m.Conversations},
		{"timeouts_total", "Reads abandoned after the block timeout.", &m.Timeouts},
	})
}

// RegisterDispatcher exports per-opcode request counts and handler outcomes.
func (r *Registry) RegisterDispatcher(d *dispatch.Dispatcher) error {
	return r.reg.Register(&dispatcherCollector{d: d})
}

type counter struct {
	name string
	help string
	v    *atomic.Uint64
}

func (r *Registry) registerCounters(subsystem string, counters []counter) error {
	for _, c := range counters {
		v := c.v
		cf := prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      c.name,
			Help:      c.help,
		}, func() float64 { return float64(v.Load()) })

		if err := r.reg.Register(cf); err != nil {
			return err
		}
	}

	return nil
}

var (
	requestsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "dispatch", "requests_total"),
		"Requests dispatched by opcode.",
		[]string{"opcode", "name"}, nil,
	)
	unknownDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "dispatch", "unknown_opcodes_total"),
		"Opcodes that were not recognized.",
		nil, nil,
	)
	failuresDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "dispatch", "handler_failures_total"),
		"Handlers that returned an error.",
		nil, nil,
	)
)

// dispatcherCollector reads the dispatcher's counters on each scrape.
type dispatcherCollector struct {
	d *dispatch.Dispatcher
}

func (c *dispatcherCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- requestsDesc
	ch <- unknownDesc
	ch <- failuresDesc
}

func (c *dispatcherCollector) Collect(ch chan<- prometheus.Metric) {
	for _, info := range dispatch.Opcodes() {
		ch <- prometheus.MustNewConstMetric(
			requestsDesc, prometheus.CounterValue,
			float64(c.d.Count(info.Code)), info.Code.String(), info.Name,
		)
	}

	ch <- prometheus.MustNewConstMetric(unknownDesc, prometheus.CounterValue, float64(c.d.UnknownCount()))
	ch <- prometheus.MustNewConstMetric(failuresDesc, prometheus.CounterValue, float64(c.d.FailureCount()))
}
