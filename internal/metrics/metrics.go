package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// AppMetrics 自定义业务指标
type AppMetrics struct {
	FramesTx          prometheus.Counter     // 发往设备的帧数
	FramesRx          prometheus.Counter     // 收到的合法帧数
	FrameDecodeErrors prometheus.Counter     // 流解码丢弃的损坏帧数
	CommandTotal      *prometheus.CounterVec // labels: command, result=ok|timeout|rejected|error
	SequenceMismatch  prometheus.Counter     // 序列位不一致的确认帧数
	UnsolicitedTotal  *prometheus.CounterVec // labels: opcode（设备主动通知）
	ConnectedGauge    prometheus.Gauge       // 当前是否已连接设备 (0/1)
	ConnectTotal      *prometheus.CounterVec // labels: result=ok|error
	HandshakeSeconds  prometheus.Histogram   // 初始化握手耗时
}

// NewAppMetrics 注册并返回业务指标
func NewAppMetrics(reg *prometheus.Registry) *AppMetrics {
	m := &AppMetrics{
		FramesTx: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "headset_frames_tx_total",
			Help: "Total frames written to the device channel.",
		}),
		FramesRx: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "headset_frames_rx_total",
			Help: "Total well-formed frames received from the device.",
		}),
		FrameDecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "headset_frame_decode_errors_total",
			Help: "Corrupt frame candidates dropped by the stream decoder.",
		}),
		CommandTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "headset_command_total",
			Help: "Device commands by name and result.",
		}, []string{"command", "result"}),
		SequenceMismatch: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "headset_sequence_mismatch_total",
			Help: "Acknowledgements whose sequence bit did not match the in-flight command.",
		}),
		UnsolicitedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "headset_notify_total",
			Help: "Unsolicited device frames by opcode.",
		}, []string{"opcode"}),
		ConnectedGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "headset_connected",
			Help: "Whether a device session is currently established.",
		}),
		ConnectTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "headset_connect_total",
			Help: "Connection attempts by result.",
		}, []string{"result"}),
		HandshakeSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "headset_handshake_duration_seconds",
			Help:    "Duration of the two-step init handshake.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
	}
	reg.MustRegister(m.FramesTx, m.FramesRx, m.FrameDecodeErrors, m.CommandTotal, m.SequenceMismatch, m.UnsolicitedTotal, m.ConnectedGauge, m.ConnectTotal, m.HandshakeSeconds)
	return m
}
