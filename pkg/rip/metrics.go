package rip

import "github.com/prometheus/client_golang/prometheus"

const (
	LabelCommand = "command"
	LabelReason  = "reason"
	LabelKind    = "kind"
)

// Route change kinds.
const (
	ChangeAdded       = "added"
	ChangeUpdated     = "updated"
	ChangeInvalidated = "invalidated"
	ChangeRemoved     = "removed"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	PacketsRX        *prometheus.CounterVec
	PacketsTX        *prometheus.CounterVec
	PacketsRxInvalid *prometheus.CounterVec
	ReadErrors       prometheus.Counter
	WriteErrors      prometheus.Counter
	Routes           prometheus.Gauge
	RouteChanges     *prometheus.CounterVec
	TableFullDrops   prometheus.Counter
	Updates          *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		PacketsRX: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ripd_packets_rx_total",
				Help: "Valid RIP messages received by command.",
			},
			[]string{LabelCommand},
		),
		PacketsTX: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ripd_packets_tx_total",
				Help: "RIP datagrams sent by command.",
			},
			[]string{LabelCommand},
		),
		PacketsRxInvalid: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ripd_packets_rx_invalid_total",
				Help: "Datagrams dropped as malformed (bad_length, bad_command, too_many_entries, bad_metric).",
			},
			[]string{LabelReason},
		),
		ReadErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ripd_read_errors_total",
			Help: "Non-fatal transport read errors.",
		}),
		WriteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ripd_write_errors_total",
			Help: "Non-fatal transport write errors.",
		}),
		Routes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ripd_routes",
			Help: "Entries currently in the routing table, including unreachable ones.",
		}),
		RouteChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ripd_route_changes_total",
				Help: "Routing table changes by kind.",
			},
			[]string{LabelKind},
		),
		TableFullDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ripd_table_full_drops_total",
			Help: "New routes dropped because the table was full.",
		}),
		Updates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ripd_updates_total",
				Help: "Updates sent to neighbors by kind (periodic, triggered).",
			},
			[]string{LabelKind},
		),
	}
}

// Register all metrics with the provided registry.
func (m *Metrics) Register(r prometheus.Registerer) {
	r.MustRegister(
		m.PacketsRX,
		m.PacketsTX,
		m.PacketsRxInvalid,
		m.ReadErrors,
		m.WriteErrors,
		m.Routes,
		m.RouteChanges,
		m.TableFullDrops,
		m.Updates,
	)
}

func (m *Metrics) packetRX(cmd Command) {
	if m == nil {
		return
	}
	m.PacketsRX.WithLabelValues(cmd.String()).Inc()
}

func (m *Metrics) packetTX(cmd Command) {
	if m == nil {
		return
	}
	m.PacketsTX.WithLabelValues(cmd.String()).Inc()
}

func (m *Metrics) packetInvalid(reason string) {
	if m == nil {
		return
	}
	m.PacketsRxInvalid.WithLabelValues(reason).Inc()
}

func (m *Metrics) readError() {
	if m == nil {
		return
	}
	m.ReadErrors.Inc()
}

func (m *Metrics) writeError() {
	if m == nil {
		return
	}
	m.WriteErrors.Inc()
}

func (m *Metrics) routes(n int) {
	if m == nil {
		return
	}
	m.Routes.Set(float64(n))
}

func (m *Metrics) routeChange(kind string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.RouteChanges.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) tableFull() {
	if m == nil {
		return
	}
	m.TableFullDrops.Inc()
}

func (m *Metrics) update(kind string) {
	if m == nil {
		return
	}
	m.Updates.WithLabelValues(kind).Inc()
}
