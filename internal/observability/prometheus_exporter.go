package observability

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/updraft-ota/updraft/internal/eventbus"
)

// ControllerSnapshot is a point-in-time view of the update controller used
// when rendering controller metrics.
type ControllerSnapshot struct {
	State   string
	Started bool
}

// PrometheusExporter renders observability metrics in Prometheus text format.
type PrometheusExporter struct {
	bus        *eventbus.Bus
	counter    *EventCounter
	controller func() ControllerSnapshot
}

// NewPrometheusExporter constructs an exporter backed by the provided bus and event counter.
func NewPrometheusExporter(bus *eventbus.Bus, counter *EventCounter) *PrometheusExporter {
	return &PrometheusExporter{
		bus:     bus,
		counter: counter,
	}
}

// WithController enables exporting controller state metrics.
func (e *PrometheusExporter) WithController(provider func() ControllerSnapshot) {
	e.controller = provider
}

// Export produces the metrics payload in Prometheus' text exposition format.
func (e *PrometheusExporter) Export() []byte {
	var buf bytes.Buffer

	e.writeEventCounters(&buf)
	e.writeBusMetrics(&buf)
	e.writeControllerMetrics(&buf)

	return buf.Bytes()
}

func (e *PrometheusExporter) writeEventCounters(buf *bytes.Buffer) {
	if e.counter == nil {
		return
	}

	counts := e.counter.Snapshot()
	if len(counts) == 0 {
		return
	}

	buf.WriteString("# HELP updraft_eventbus_events_total Total number of published events per topic.\n")
	buf.WriteString("# TYPE updraft_eventbus_events_total counter\n")

	topics := make([]string, 0, len(counts))
	for topic := range counts {
		topics = append(topics, string(topic))
	}
	sort.Strings(topics)
	for _, topicName := range topics {
		value := counts[eventbus.Topic(topicName)]
		buf.WriteString(fmt.Sprintf("updraft_eventbus_events_total{topic=%q} %d\n", topicName, value))
	}
}

func (e *PrometheusExporter) writeBusMetrics(buf *bytes.Buffer) {
	if e.bus == nil {
		return
	}

	metrics := e.bus.Metrics()

	buf.WriteString("# HELP updraft_eventbus_publish_total Total number of events published on the bus.\n")
	buf.WriteString("# TYPE updraft_eventbus_publish_total counter\n")
	buf.WriteString(fmt.Sprintf("updraft_eventbus_publish_total %d\n", metrics.PublishTotal))

	buf.WriteString("# HELP updraft_eventbus_dropped_total Total number of events dropped by slow subscribers.\n")
	buf.WriteString("# TYPE updraft_eventbus_dropped_total counter\n")
	buf.WriteString(fmt.Sprintf("updraft_eventbus_dropped_total %d\n", metrics.DroppedTotal))
}

func (e *PrometheusExporter) writeControllerMetrics(buf *bytes.Buffer) {
	if e.controller == nil {
		return
	}

	snapshot := e.controller()

	buf.WriteString("# HELP updraft_controller_started Whether the controller's launch sequence has completed.\n")
	buf.WriteString("# TYPE updraft_controller_started gauge\n")
	buf.WriteString(fmt.Sprintf("updraft_controller_started %d\n", boolValue(snapshot.Started)))

	buf.WriteString("# HELP updraft_controller_state Controller capability state, one series per state.\n")
	buf.WriteString("# TYPE updraft_controller_state gauge\n")
	for _, state := range []string{"uninitialized", "enabled", "disabled", "dev-launcher"} {
		buf.WriteString(fmt.Sprintf("updraft_controller_state{state=%q} %d\n", state, boolValue(snapshot.State == state)))
	}
}

func boolValue(v bool) int {
	if v {
		return 1
	}
	return 0
}
