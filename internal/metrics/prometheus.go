package metrics

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
)

const namespace = "aero_webrtc_rendezvous_relay"

// Gauge is one labelled sample of a point-in-time relay value, such as the
// depth of a role's queue.
type Gauge struct {
	Name   string // without namespace
	Help   string
	Labels map[string]string
	Value  float64
}

// GaugeFunc collects gauges at scrape time. It is typically backed by a hub
// status snapshot, so it takes the request context.
type GaugeFunc func(ctx context.Context) ([]Gauge, error)

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

// PrometheusHandler writes the event counters as one events_total family
// keyed by `event`, followed by whatever gauges collects. A gauge collection
// error is reported as a 503 so a scrape never sees partial relay state.
func PrometheusHandler(m *Metrics, gauges GaugeFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m == nil {
			http.Error(w, "metrics not configured", http.StatusInternalServerError)
			return
		}

		var samples []Gauge
		if gauges != nil {
			var err error
			if samples, err = gauges(r.Context()); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}

		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		writeCounters(w, m.Snapshot())
		writeGauges(w, samples)
	})
}

func writeCounters(w io.Writer, snap map[string]uint64) {
	events := make([]string, 0, len(snap))
	for k := range snap {
		events = append(events, k)
	}
	sort.Strings(events)

	name := namespace + "_events_total"
	fmt.Fprintf(w, "# HELP %s Rendezvous relay event counters.\n", name)
	fmt.Fprintf(w, "# TYPE %s counter\n", name)
	for _, ev := range events {
		fmt.Fprintf(w, "%s%s %d\n", name, formatLabels(map[string]string{"event": ev}), snap[ev])
	}
}

// writeGauges groups samples into families, keeping the order in which each
// family first appears.
func writeGauges(w io.Writer, samples []Gauge) {
	var order []string
	families := make(map[string][]Gauge)
	for _, g := range samples {
		if _, ok := families[g.Name]; !ok {
			order = append(order, g.Name)
		}
		families[g.Name] = append(families[g.Name], g)
	}
	for _, fam := range order {
		gs := families[fam]
		name := namespace + "_" + fam
		if gs[0].Help != "" {
			fmt.Fprintf(w, "# HELP %s %s\n", name, gs[0].Help)
		}
		fmt.Fprintf(w, "# TYPE %s gauge\n", name)
		for _, g := range gs {
			fmt.Fprintf(w, "%s%s %g\n", name, formatLabels(g.Labels), g.Value)
		}
	}
}

func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, `%s="%s"`, k, labelEscaper.Replace(labels[k]))
	}
	b.WriteByte('}')
	return b.String()
}
