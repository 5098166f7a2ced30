package observability

import (
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codescan-io/lintbridge/internal/eventbus"
)

const namespace = "lintbridge"

// PollerStats exposes event poller counters.
type PollerStats interface {
	Polls() uint64
	Count() int
}

// ControlStats exposes the control server state.
type ControlStats interface {
	IsStarted() bool
	Port() int
}

// Sources lists what the exporter reads on every scrape. Nil members are
// skipped.
type Sources struct {
	Bus           *eventbus.Bus
	Events        *EventCounter
	Usage         func() map[string]uint64
	Poller        PollerStats
	Control       ControlStats
	Subscriptions func() int
}

// Exporter is a prometheus.Collector over the daemon components.
type Exporter struct {
	src      Sources
	registry *prometheus.Registry

	events        *prometheus.Desc
	published     *prometheus.Desc
	dropped       *prometheus.Desc
	usage         *prometheus.Desc
	polls         *prometheus.Desc
	registrations *prometheus.Desc
	subscriptions *prometheus.Desc
	controlUp     *prometheus.Desc
	controlPort   *prometheus.Desc
}

// NewExporter builds an exporter with its own registry, including Go
// runtime and process collectors.
func NewExporter(src Sources) *Exporter {
	e := &Exporter{
		src:      src,
		registry: prometheus.NewRegistry(),
		events: prometheus.NewDesc(prometheus.BuildFQName(namespace, "eventbus", "events_total"),
			"Events published per topic and source.", []string{"topic", "source"}, nil),
		published: prometheus.NewDesc(prometheus.BuildFQName(namespace, "eventbus", "publish_total"),
			"Events published on the bus.", nil, nil),
		dropped: prometheus.NewDesc(prometheus.BuildFQName(namespace, "eventbus", "dropped_total"),
			"Events dropped because a subscriber queue was full.", nil, nil),
		usage: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "usage_total"),
			"Usage counters persisted by the daemon.", []string{"counter"}, nil),
		polls: prometheus.NewDesc(prometheus.BuildFQName(namespace, "notifications", "polls_total"),
			"Server event poll cycles.", nil, nil),
		registrations: prometheus.NewDesc(prometheus.BuildFQName(namespace, "notifications", "registrations"),
			"Projects registered with the event poller.", nil, nil),
		subscriptions: prometheus.NewDesc(prometheus.BuildFQName(namespace, "notifications", "subscriptions"),
			"Open projects with a notification subscriber.", nil, nil),
		controlUp: prometheus.NewDesc(prometheus.BuildFQName(namespace, "control_server", "up"),
			"1 when the loopback control server is listening.", nil, nil),
		controlPort: prometheus.NewDesc(prometheus.BuildFQName(namespace, "control_server", "port"),
			"Port the control server is bound to, 0 when stopped.", nil, nil),
	}
	e.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		e,
	)
	return e
}

// Describe implements prometheus.Collector.
func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		e.events, e.published, e.dropped, e.usage, e.polls,
		e.registrations, e.subscriptions, e.controlUp, e.controlPort,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	if e.src.Events != nil {
		for key, n := range e.src.Events.Snapshot() {
			ch <- prometheus.MustNewConstMetric(e.events, prometheus.CounterValue, float64(n), string(key.Topic), string(key.Source))
		}
	}
	if e.src.Bus != nil {
		m := e.src.Bus.Metrics()
		ch <- prometheus.MustNewConstMetric(e.published, prometheus.CounterValue, float64(m.PublishTotal))
		ch <- prometheus.MustNewConstMetric(e.dropped, prometheus.CounterValue, float64(m.DroppedTotal))
	}
	if e.src.Usage != nil {
		for name, n := range e.src.Usage() {
			ch <- prometheus.MustNewConstMetric(e.usage, prometheus.CounterValue, float64(n), name)
		}
	}
	if e.src.Poller != nil {
		ch <- prometheus.MustNewConstMetric(e.polls, prometheus.CounterValue, float64(e.src.Poller.Polls()))
		ch <- prometheus.MustNewConstMetric(e.registrations, prometheus.GaugeValue, float64(e.src.Poller.Count()))
	}
	if e.src.Subscriptions != nil {
		ch <- prometheus.MustNewConstMetric(e.subscriptions, prometheus.GaugeValue, float64(e.src.Subscriptions()))
	}
	if e.src.Control != nil {
		up := 0.0
		if e.src.Control.IsStarted() {
			up = 1
		}
		ch <- prometheus.MustNewConstMetric(e.controlUp, prometheus.GaugeValue, up)
		ch <- prometheus.MustNewConstMetric(e.controlPort, prometheus.GaugeValue, float64(e.src.Control.Port()))
	}
}

// Handler serves the registry in the Prometheus text format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{ErrorLog: log.Default()})
}
