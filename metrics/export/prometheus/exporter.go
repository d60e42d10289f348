package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/authbridge/authbridge"
	internalmetrics "github.com/authbridge/authbridge/internal/metrics"
	"github.com/authbridge/authbridge/metrics/export/internaldefs"
)

const rejectionsName = "authbridge_rejections_total"

type metricsSource interface {
	MetricsSnapshot() authbridge.MetricsSnapshot
	AuditDropped() uint64
}

// PrometheusExporter renders gateway metrics in Prometheus text exposition format.
type PrometheusExporter struct {
	source metricsSource
}

// NewPrometheusExporter creates a Prometheus exporter that reads from gateway.
func NewPrometheusExporter(gateway *authbridge.Gateway) *PrometheusExporter {
	return &PrometheusExporter{source: gateway}
}

// NewPrometheusExporterFromSource creates a Prometheus exporter from a
// custom metrics source.
func NewPrometheusExporterFromSource(source metricsSource) *PrometheusExporter {
	return &PrometheusExporter{source: source}
}

// Handler returns an http.Handler that serves Prometheus metrics.
func (p *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(p.Render()))
	})
}

// Render returns the exposition text for the current snapshot: one family per
// gateway counter, authbridge_rejections_total split by op and reason, the
// verify latency histogram and audit drops. It returns "" while metrics are
// disabled.
func (p *PrometheusExporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}

	snapshot := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 {
		return ""
	}

	var e exposition
	for _, def := range internaldefs.CounterDefs {
		e.family(def.Name, def.Help, "counter")
		e.sample(def.Name, nil, snapshot.Counters[def.ID])
	}

	e.family(rejectionsName, "Failed gateway operations by reason code returned to the caller.", "counter")
	for _, key := range internalmetrics.SortedRejections(snapshot.Rejections) {
		e.sample(rejectionsName, []label{{"op", key.Op}, {"reason", key.Reason}}, snapshot.Rejections[key])
	}

	for _, def := range internaldefs.HistogramDefs {
		raw, ok := snapshot.Histograms[def.ID]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		e.family(def.Name, def.Help, "histogram")
		for i, le := range internaldefs.HistogramBounds {
			e.sample(def.Name+"_bucket", []label{{"le", le}}, cumulative[i])
		}
		e.sample(def.Name+"_count", nil, cumulative[len(cumulative)-1])
		// Snapshots carry no sum.
		e.sample(def.Name+"_sum", nil, 0)
	}

	e.family("authbridge_audit_dropped_total", "Audit events dropped on a full buffer or a delivery timeout.", "counter")
	e.sample("authbridge_audit_dropped_total", nil, dropped)

	return e.String()
}

type label struct {
	name, value string
}

// exposition accumulates text format 0.0.4 lines.
type exposition struct {
	strings.Builder
}

func (e *exposition) family(name, help, kind string) {
	e.WriteString("# HELP " + name + " " + escapeHelp(help) + "\n")
	e.WriteString("# TYPE " + name + " " + kind + "\n")
}

func (e *exposition) sample(name string, labels []label, value uint64) {
	e.WriteString(name)
	if len(labels) > 0 {
		e.WriteByte('{')
		for i, l := range labels {
			if i > 0 {
				e.WriteByte(',')
			}
			e.WriteString(l.name + `="` + escapeLabel(l.value) + `"`)
		}
		e.WriteByte('}')
	}
	e.WriteByte(' ')
	e.WriteString(strconv.FormatUint(value, 10))
	e.WriteByte('\n')
}

func escapeHelp(help string) string {
	return strings.NewReplacer(`\`, `\\`, "\n", `\n`).Replace(help)
}

func escapeLabel(v string) string {
	return strings.NewReplacer(`\`, `\\`, "\n", `\n`, `"`, `\"`).Replace(v)
}
