package websocket

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"tempiemail/backend/internal/domain"
	"tempiemail/backend/internal/mailparse"
	"tempiemail/backend/internal/monitoring"
	"tempiemail/backend/internal/pool"
)

const (
	// clientBuffer 每个客户端的待发送事件上限
	clientBuffer = 64
	// previewLength 推送预览的最大字符数
	previewLength = 100
)

// EventType 推送事件类型
type EventType string

const (
	EventNewEmail     EventType = "new_email"
	EventSubscribed   EventType = "subscribed"
	EventUnsubscribed EventType = "unsubscribed"
	EventError        EventType = "error"
)

// EmailEvent 新邮件通知数据
type EmailEvent struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	Subject   string    `json:"subject"`
	Timestamp time.Time `json:"timestamp"`
	Read      bool      `json:"read"`
	Preview   string    `json:"preview,omitempty"`
}

// Event 服务端推送给订阅者的事件
type Event struct {
	Type      EventType   `json:"type"`
	Address   string      `json:"address,omitempty"`
	Data      *EmailEvent `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Hub 按地址分组的发布订阅中心。
//
// 同一地址可以有任意多个订阅者，也可以没有；发布从不阻塞调用方，
// 送达失败只记录日志。
type Hub struct {
	clients   map[string]*Client            // clientID -> Client
	addresses map[string]map[string]*Client // address -> clientID -> Client
	mu        sync.RWMutex

	pool           *pool.WorkerPool
	metrics        *monitoring.Metrics
	log            *zap.Logger
	allowedOrigins []string
}

// NewHub 创建 Hub
//
// 参数:
//   - allowedOrigins: 允许的 Origin 列表，为空时允许所有来源
//   - workers: 推送使用的协程池，为 nil 时在调用方协程中直接派发
func NewHub(allowedOrigins []string, workers *pool.WorkerPool, log *zap.Logger) *Hub {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		clients:        make(map[string]*Client),
		addresses:      make(map[string]map[string]*Client),
		pool:           workers,
		log:            log,
		allowedOrigins: allowedOrigins,
	}
}

// SetMetrics 设置监控指标
func (h *Hub) SetMetrics(m *monitoring.Metrics) {
	h.metrics = m
}

// NewClient 注册一个进程内订阅者
func (h *Hub) NewClient() *Client {
	return h.register(nil)
}

func (h *Hub) register(conn *websocket.Conn) *Client {
	client := &Client{
		ID:        uuid.NewString(),
		hub:       h,
		conn:      conn,
		events:    make(chan Event, clientBuffer),
		addresses: make(map[string]struct{}),
	}

	h.mu.Lock()
	h.clients[client.ID] = client
	count := len(h.clients)
	h.mu.Unlock()

	h.metrics.UpdateSubscribers(count)
	h.log.Debug("client registered", zap.String("client_id", client.ID))
	return client
}

// Subscribe 让客户端加入某个地址的频道，重复订阅无副作用
func (h *Hub) Subscribe(client *Client, address string) error {
	normalized, err := domain.ValidateAddress(address)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; !ok {
		return fmt.Errorf("client %s: %w", client.ID, domain.ErrNotFound)
	}
	if h.addresses[normalized] == nil {
		h.addresses[normalized] = make(map[string]*Client)
	}
	h.addresses[normalized][client.ID] = client
	client.addresses[normalized] = struct{}{}

	h.log.Debug("subscribed to address",
		zap.String("client_id", client.ID),
		zap.String("address", normalized),
	)
	return nil
}

// Unsubscribe 让客户端离开某个地址的频道
func (h *Hub) Unsubscribe(client *Client, address string) {
	normalized := domain.NormalizeAddress(address)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(client, normalized)
}

// Remove 注销客户端并关闭其事件通道
func (h *Hub) Remove(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client.ID]; !ok {
		h.mu.Unlock()
		return
	}
	for address := range client.addresses {
		h.leaveLocked(client, address)
	}
	delete(h.clients, client.ID)
	count := len(h.clients)
	h.mu.Unlock()

	client.close()
	h.metrics.UpdateSubscribers(count)
	h.log.Debug("client unregistered", zap.String("client_id", client.ID))
}

func (h *Hub) leaveLocked(client *Client, address string) {
	delete(client.addresses, address)
	if subscribers, ok := h.addresses[address]; ok {
		delete(subscribers, client.ID)
		if len(subscribers) == 0 {
			delete(h.addresses, address)
		}
	}
}

// SubscriberCount 某地址当前的订阅者数量
func (h *Hub) SubscriberCount(address string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.addresses[domain.NormalizeAddress(address)])
}

// ClientCount 已注册的客户端数量
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish 把新入库的邮件推送给该地址的所有订阅者。
//
// 每个订阅者最多收到一次；队列已满或客户端阻塞时直接丢弃。
func (h *Hub) Publish(address string, msg *domain.Message) {
	address = domain.NormalizeAddress(address)

	h.mu.RLock()
	subscribers := make([]*Client, 0, len(h.addresses[address]))
	for _, client := range h.addresses[address] {
		subscribers = append(subscribers, client)
	}
	h.mu.RUnlock()

	if len(subscribers) == 0 {
		return
	}

	event := Event{
		Type:    EventNewEmail,
		Address: address,
		Data: &EmailEvent{
			ID:        msg.ID,
			From:      msg.From,
			Subject:   msg.Subject,
			Timestamp: msg.ReceivedAt,
			Read:      msg.IsRead,
			Preview:   mailparse.Preview(msg.Text, msg.HTML, previewLength),
		},
		Timestamp: time.Now(),
	}

	fanout := func() { h.fanout(subscribers, event) }
	if h.pool == nil {
		fanout()
		return
	}
	if !h.pool.TrySubmit(fanout) {
		h.metrics.RecordNotification("dropped")
		h.log.Warn("notification queue full, dropping event",
			zap.String("address", address),
			zap.String("message_id", msg.ID),
			zap.Int("subscribers", len(subscribers)),
		)
	}
}

func (h *Hub) fanout(subscribers []*Client, event Event) {
	for _, client := range subscribers {
		if client.deliver(event) {
			h.metrics.RecordNotification("sent")
			continue
		}
		h.metrics.RecordNotification("dropped")
		h.log.Warn("subscriber blocked, dropping event",
			zap.String("client_id", client.ID),
			zap.String("address", event.Address),
		)
	}
}

// Run 阻塞直到 ctx 结束，然后关闭所有客户端
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.clients = make(map[string]*Client)
	h.addresses = make(map[string]map[string]*Client)
	h.mu.Unlock()

	for _, client := range clients {
		client.close()
	}
	h.metrics.UpdateSubscribers(0)
	h.log.Info("websocket hub stopped", zap.Int("clients", len(clients)))
}
