package metrics

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
)

// PrometheusExporter renders a Collector in the Prometheus text exposition
// format.
type PrometheusExporter struct {
	collector *Collector
	namespace string
}

// NewPrometheusExporter returns an exporter whose metric names are prefixed
// with namespace and an underscore (e.g. "satcom_auth_failures_total").
func NewPrometheusExporter(c *Collector, namespace string) *PrometheusExporter {
	return &PrometheusExporter{collector: c, namespace: namespace}
}

// Handler serves WriteMetrics.
func (e *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		e.WriteMetrics(w)
	})
}

type promCounter struct {
	name  string
	help  string
	value func(Snapshot) uint64
}

// uplinkCounters are the unlabelled counters, in exposition order.
var uplinkCounters = []promCounter{
	{"datagrams_received_total", "Datagrams read from the bus socket", func(s Snapshot) uint64 { return s.DatagramsReceived }},
	{"bytes_received_total", "Bytes read from the bus socket", func(s Snapshot) uint64 { return s.BytesReceived }},
	{"rate_limited_total", "Datagrams dropped by the per-source rate limiter", func(s Snapshot) uint64 { return s.RateLimited }},
	{"read_errors_total", "Failed socket reads", func(s Snapshot) uint64 { return s.ReadErrors }},
	{"unauthorized_total", "Packets from ground stations not on the allow-list", func(s Snapshot) uint64 { return s.Unauthorized }},
	{"auth_failures_total", "Packets whose HMAC trailer did not verify", func(s Snapshot) uint64 { return s.AuthFailures }},
	{"commands_accepted_total", "Packets that passed every firewall check", func(s Snapshot) uint64 { return s.CommandsAccepted }},
	{"commands_executed_total", "Commands handed to the command handler", func(s Snapshot) uint64 { return s.CommandsExecuted }},
	{"handler_errors_total", "Command handler failures", func(s Snapshot) uint64 { return s.HandlerErrors }},
	{"packets_sent_total", "Packets transmitted by ground stations", func(s Snapshot) uint64 { return s.PacketsSent }},
	{"bytes_sent_total", "Bytes transmitted by ground stations", func(s Snapshot) uint64 { return s.BytesSent }},
	{"send_errors_total", "Failed transmissions", func(s Snapshot) uint64 { return s.SendErrors }},
}

// WriteMetrics writes every metric of the collector's current snapshot.
func (e *PrometheusExporter) WriteMetrics(w io.Writer) {
	snap := e.collector.Snapshot()
	p := promWriter{w: bufio.NewWriter(w), ns: e.namespace, base: renderLabels(snap.Labels)}
	defer p.w.Flush()

	for _, c := range uplinkCounters {
		p.header(c.name, c.help, "counter")
		p.sample(c.name, "", float64(c.value(snap)))
	}

	p.header("decode_failures_total", "Packets rejected as malformed, by validation step", "counter")
	for _, kind := range snap.DecodeKinds() {
		p.sample("decode_failures_total", `kind="`+labelEscaper.Replace(kind)+`"`, float64(snap.DecodeFailuresByKind[kind]))
	}

	p.header("uptime_seconds", "Time since the collector was created", "gauge")
	p.sample("uptime_seconds", "", snap.Uptime.Seconds())

	p.histogram("inspect_duration_microseconds", "Firewall inspection duration in microseconds", snap.InspectLatency)
}

type promWriter struct {
	w    *bufio.Writer
	ns   string
	base string // rendered collector labels
}

func (p *promWriter) header(name, help, kind string) {
	fmt.Fprintf(p.w, "# HELP %s_%s %s\n# TYPE %s_%s %s\n", p.ns, name, help, p.ns, name, kind)
}

// sample writes one line. extra is appended after the collector labels.
func (p *promWriter) sample(name, extra string, v float64) {
	labels := p.base
	switch {
	case labels == "":
		labels = extra
	case extra != "":
		labels += "," + extra
	}
	p.w.WriteString(p.ns + "_" + name)
	if labels != "" {
		p.w.WriteString("{" + labels + "}")
	}
	p.w.WriteString(" " + strconv.FormatFloat(v, 'g', -1, 64) + "\n")
}

func (p *promWriter) histogram(name, help string, h HistogramSummary) {
	p.header(name, help, "histogram")
	for _, b := range h.Buckets {
		le := "+Inf"
		if !math.IsInf(b.UpperBound, 1) {
			le = strconv.FormatFloat(b.UpperBound, 'g', -1, 64)
		}
		p.sample(name+"_bucket", `le="`+le+`"`, float64(b.Count))
	}
	p.sample(name+"_sum", "", h.Sum)
	p.sample(name+"_count", "", float64(h.Count))
}

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

// renderLabels returns labels as sorted k="v" pairs joined by commas.
func renderLabels(labels Labels) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + `="` + labelEscaper.Replace(labels[k]) + `"`
	}
	return strings.Join(pairs, ",")
}
