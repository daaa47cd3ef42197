package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标。
//
// 所有指标注册在实例自己的注册表上，方法允许 nil 接收者，
// 未配置监控的组件可以直接传 nil。
type Metrics struct {
	registry *prometheus.Registry

	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestSize     *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// 地址指标
	AddressesProvisioned prometheus.Counter
	AddressesDeleted     prometheus.Counter
	AddressesExpired     prometheus.Counter
	AddressesActive      prometheus.Gauge

	// 邮件指标
	MessagesDelivered prometheus.Counter
	MessagesRejected  *prometheus.CounterVec
	MessagesRead      prometheus.Counter
	MessagesDeleted   prometheus.Counter
	MessagesExpired   prometheus.Counter
	MessagesStored    prometheus.Gauge
	MessageSize       prometheus.Histogram
	DeliveryDuration  prometheus.Histogram

	// SMTP 指标
	SMTPSessions       *prometheus.CounterVec
	SMTPSessionsActive prometheus.Gauge
	SMTPRecipients     *prometheus.CounterVec
	SMTPDataAborted    prometheus.Counter

	// 推送指标
	Notifications *prometheus.CounterVec
	Subscribers   prometheus.Gauge

	// 系统指标
	SystemUptime prometheus.Gauge
	MemoryUsage  prometheus.Gauge

	// 错误指标
	PanicsTotal     prometheus.Counter
	RateLimitBlocks *prometheus.CounterVec
}

// NewMetrics 创建监控指标
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempie_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tempie_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		HTTPRequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tempie_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "endpoint"},
		),
		HTTPResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tempie_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "endpoint"},
		),

		AddressesProvisioned: factory.NewCounter(prometheus.CounterOpts{
			Name: "tempie_addresses_provisioned_total",
			Help: "Total number of provisioned addresses",
		}),
		AddressesDeleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "tempie_addresses_deleted_total",
			Help: "Total number of explicitly deleted addresses",
		}),
		AddressesExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "tempie_addresses_expired_total",
			Help: "Total number of addresses removed by the sweeper",
		}),
		AddressesActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tempie_addresses_active",
			Help: "Number of live addresses",
		}),

		MessagesDelivered: factory.NewCounter(prometheus.CounterOpts{
			Name: "tempie_messages_delivered_total",
			Help: "Total number of stored messages",
		}),
		MessagesRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempie_messages_rejected_total",
				Help: "Total number of messages rejected by the abuse filter",
			},
			[]string{"reason"},
		),
		MessagesRead: factory.NewCounter(prometheus.CounterOpts{
			Name: "tempie_messages_read_total",
			Help: "Total number of messages opened",
		}),
		MessagesDeleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "tempie_messages_deleted_total",
			Help: "Total number of explicitly deleted messages",
		}),
		MessagesExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "tempie_messages_expired_total",
			Help: "Total number of messages removed by the sweeper",
		}),
		MessagesStored: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tempie_messages_stored",
			Help: "Number of messages currently held in memory",
		}),
		MessageSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "tempie_message_size_bytes",
			Help:    "Size of delivered messages in bytes",
			Buckets: prometheus.ExponentialBuckets(512, 4, 8),
		}),
		DeliveryDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "tempie_delivery_duration_seconds",
			Help:    "Time spent filtering and storing one message",
			Buckets: prometheus.DefBuckets,
		}),

		SMTPSessions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempie_smtp_sessions_total",
				Help: "Total number of SMTP sessions by admission result",
			},
			[]string{"result"},
		),
		SMTPSessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tempie_smtp_sessions_active",
			Help: "Number of open SMTP sessions",
		}),
		SMTPRecipients: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempie_smtp_recipients_total",
				Help: "Total number of RCPT commands by result",
			},
			[]string{"result"},
		),
		SMTPDataAborted: factory.NewCounter(prometheus.CounterOpts{
			Name: "tempie_smtp_data_aborted_total",
			Help: "Total number of DATA streams that failed mid-transfer",
		}),

		Notifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempie_notifications_total",
				Help: "Total number of new-message notifications by result",
			},
			[]string{"result"},
		),
		Subscribers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tempie_notification_subscribers",
			Help: "Number of connected notification subscribers",
		}),

		SystemUptime: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tempie_system_uptime_seconds",
			Help: "System uptime in seconds",
		}),
		MemoryUsage: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tempie_memory_usage_bytes",
			Help: "Heap memory in use in bytes",
		}),

		PanicsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "tempie_panics_total",
			Help: "Total number of recovered panics",
		}),
		RateLimitBlocks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempie_rate_limit_blocks_total",
				Help: "Total number of requests blocked by rate limiting",
			},
			[]string{"limit_type"},
		),
	}
}

// Registry 返回指标注册表
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest 记录 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration, requestSize, responseSize int64) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	m.HTTPRequestSize.WithLabelValues(method, endpoint).Observe(float64(requestSize))
	m.HTTPResponseSize.WithLabelValues(method, endpoint).Observe(float64(responseSize))
}

// RecordAddressProvisioned 记录地址生成
func (m *Metrics) RecordAddressProvisioned() {
	if m == nil {
		return
	}
	m.AddressesProvisioned.Inc()
}

// RecordAddressDeleted 记录地址删除
func (m *Metrics) RecordAddressDeleted() {
	if m == nil {
		return
	}
	m.AddressesDeleted.Inc()
}

// RecordSweep 记录一次清理的结果
func (m *Metrics) RecordSweep(addresses, messages int) {
	if m == nil {
		return
	}
	m.AddressesExpired.Add(float64(addresses))
	m.MessagesExpired.Add(float64(messages))
}

// UpdateAddressesActive 更新有效地址数
func (m *Metrics) UpdateAddressesActive(count int) {
	if m == nil {
		return
	}
	m.AddressesActive.Set(float64(count))
}

// RecordMessageDelivered 记录一封成功入库的邮件
func (m *Metrics) RecordMessageDelivered(size int64, duration time.Duration) {
	if m == nil {
		return
	}
	m.MessagesDelivered.Inc()
	m.MessageSize.Observe(float64(size))
	m.DeliveryDuration.Observe(duration.Seconds())
}

// RecordMessageRejected 记录过滤器拒收
func (m *Metrics) RecordMessageRejected(reason string) {
	if m == nil {
		return
	}
	m.MessagesRejected.WithLabelValues(reason).Inc()
}

// RecordMessageRead 记录邮件被打开
func (m *Metrics) RecordMessageRead() {
	if m == nil {
		return
	}
	m.MessagesRead.Inc()
}

// RecordMessageDeleted 记录邮件删除
func (m *Metrics) RecordMessageDeleted(count int) {
	if m == nil {
		return
	}
	m.MessagesDeleted.Add(float64(count))
}

// UpdateMessagesStored 更新内存中的邮件数
func (m *Metrics) UpdateMessagesStored(count int) {
	if m == nil {
		return
	}
	m.MessagesStored.Set(float64(count))
}

// RecordSMTPSession 记录会话建立结果
func (m *Metrics) RecordSMTPSession(result string) {
	if m == nil {
		return
	}
	m.SMTPSessions.WithLabelValues(result).Inc()
}

// SMTPSessionOpened 会话数加一
func (m *Metrics) SMTPSessionOpened() {
	if m == nil {
		return
	}
	m.SMTPSessionsActive.Inc()
}

// SMTPSessionClosed 会话数减一
func (m *Metrics) SMTPSessionClosed() {
	if m == nil {
		return
	}
	m.SMTPSessionsActive.Dec()
}

// RecordRecipient 记录 RCPT 结果
func (m *Metrics) RecordRecipient(result string) {
	if m == nil {
		return
	}
	m.SMTPRecipients.WithLabelValues(result).Inc()
}

// RecordDataAborted 记录中途失败的 DATA 传输
func (m *Metrics) RecordDataAborted() {
	if m == nil {
		return
	}
	m.SMTPDataAborted.Inc()
}

// RecordNotification 记录推送结果
func (m *Metrics) RecordNotification(result string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(result).Inc()
}

// UpdateSubscribers 更新订阅连接数
func (m *Metrics) UpdateSubscribers(count int) {
	if m == nil {
		return
	}
	m.Subscribers.Set(float64(count))
}

// RecordPanic 记录 panic
func (m *Metrics) RecordPanic() {
	if m == nil {
		return
	}
	m.PanicsTotal.Inc()
}

// RecordRateLimitBlock 记录限流阻止
func (m *Metrics) RecordRateLimitBlock(limitType string) {
	if m == nil {
		return
	}
	m.RateLimitBlocks.WithLabelValues(limitType).Inc()
}

// UpdateSystemUptime 更新系统运行时间
func (m *Metrics) UpdateSystemUptime(uptime time.Duration) {
	if m == nil {
		return
	}
	m.SystemUptime.Set(uptime.Seconds())
}

// UpdateMemoryUsage 更新内存使用量
func (m *Metrics) UpdateMemoryUsage(bytes uint64) {
	if m == nil {
		return
	}
	m.MemoryUsage.Set(float64(bytes))
}

// HTTPHandler 返回 Prometheus HTTP 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
