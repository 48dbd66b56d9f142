package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "roadcast"

var (
	// ActiveConnections 本实例当前连接数
	ActiveConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ws_active_connections",
		Help:      "Number of websocket connections held by this instance.",
	})

	// HandshakeRejected 握手被拒绝次数
	HandshakeRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ws_handshake_rejected_total",
		Help:      "Rejected websocket handshakes by reason.",
	}, []string{"reason"})

	// EventsTotal 上行事件处理次数
	EventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ws_events_total",
		Help:      "Inbound client events by type and result.",
	}, []string{"type", "result"})

	// DispatchTotal 投递结果
	DispatchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dispatch_total",
		Help:      "Per-recipient delivery outcomes.",
	}, []string{"kind", "outcome"})

	// RelayPublished 中继发布次数
	RelayPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "relay_published_total",
		Help:      "Relay messages published by channel and result.",
	}, []string{"channel", "result"})

	// RelayReceived 中继接收次数
	RelayReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "relay_received_total",
		Help:      "Relay messages received by channel.",
	}, []string{"channel"})

	// ReportsSwept 清理的不准确上报
	ReportsSwept = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reports_swept_total",
		Help:      "Hazard reports deleted for inaccuracy.",
	})
)

// Register 在 main 包里调用
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		ActiveConnections,
		HandshakeRejected,
		EventsTotal,
		DispatchTotal,
		RelayPublished,
		RelayReceived,
		ReportsSwept,
	)
}
