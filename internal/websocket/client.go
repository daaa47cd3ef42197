package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	// maxFrameSize 客户端帧只包含订阅指令
	maxFrameSize = 4096
)

// frameType 客户端发送的指令类型
type frameType string

const (
	frameSubscribe   frameType = "subscribe"
	frameUnsubscribe frameType = "unsubscribe"
)

// frame 客户端指令
type frame struct {
	Type    frameType `json:"type"`
	Address string    `json:"address"`
}

// Client 一个订阅者，可以是 WebSocket 连接，也可以是进程内的监听方
type Client struct {
	ID   string
	hub  *Hub
	conn *websocket.Conn

	// addresses 由 hub.mu 保护
	addresses map[string]struct{}

	mu     sync.Mutex
	events chan Event
	closed bool
}

// Events 返回事件通道，客户端注销后通道关闭
func (c *Client) Events() <-chan Event {
	return c.events
}

// OnMessage 对每个新邮件事件调用 fn，直到 ctx 结束或客户端注销
func (c *Client) OnMessage(ctx context.Context, fn func(Event)) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-c.events:
			if !ok {
				return
			}
			if event.Type == EventNewEmail {
				fn(event)
			}
		}
	}
}

// Close 注销客户端
func (c *Client) Close() {
	c.hub.Remove(c)
}

// deliver 非阻塞地投递一个事件，通道已满或已关闭时返回 false
func (c *Client) deliver(event Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.events <- event:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.events)
}

// upgraderFactory 创建带有 Origin 验证的 WebSocket 升级器
func upgraderFactory(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			requestOrigin := r.Header.Get("Origin")
			if requestOrigin == "" {
				return true
			}
			for _, origin := range allowedOrigins {
				if origin == "*" || origin == requestOrigin {
					return true
				}
			}
			return false
		},
	}
}

// HandleWebSocket 处理 WebSocket 连接
func HandleWebSocket(hub *Hub) gin.HandlerFunc {
	upgrader := upgraderFactory(hub.allowedOrigins)

	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.log.Warn("failed to upgrade connection",
				zap.Error(err),
				zap.String("origin", c.Request.Header.Get("Origin")),
				zap.String("remote_addr", c.ClientIP()),
			)
			return
		}

		client := hub.register(conn)
		go client.writePump()
		go client.readPump()
	}
}

// readPump 处理客户端指令
func (c *Client) readPump() {
	defer func() {
		c.hub.Remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var f frame
		if err := c.conn.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn("websocket read error", zap.String("client_id", c.ID), zap.Error(err))
			}
			return
		}
		c.handleFrame(f)
	}
}

// writePump 把事件写给客户端
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.events:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				c.hub.log.Debug("websocket write failed", zap.String("client_id", c.ID), zap.Error(err))
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleFrame 处理一条客户端指令
func (c *Client) handleFrame(f frame) {
	switch f.Type {
	case frameSubscribe:
		if err := c.hub.Subscribe(c, f.Address); err != nil {
			c.reply(Event{Type: EventError, Address: f.Address, Error: err.Error()})
			return
		}
		c.reply(Event{Type: EventSubscribed, Address: f.Address})
	case frameUnsubscribe:
		c.hub.Unsubscribe(c, f.Address)
		c.reply(Event{Type: EventUnsubscribed, Address: f.Address})
	default:
		c.reply(Event{Type: EventError, Error: "unknown frame type " + string(f.Type)})
	}
}

func (c *Client) reply(event Event) {
	event.Timestamp = time.Now()
	if !c.deliver(event) {
		c.hub.log.Warn("client channel blocked", zap.String("client_id", c.ID))
	}
}
