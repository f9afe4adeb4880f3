package hub

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Client 代表一个连接到 Hub 的 WebSocket 客户端。
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	id   string      // 连接 ID，同时是参与者 ID
	send chan []byte // 出站消息的缓冲通道
}

// NewClient 创建一个 Client 实例。
func NewClient(hub *Hub, conn *websocket.Conn, id string) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		id:   id,
		send: make(chan []byte, sendBufferSize),
	}
}

// ID 返回连接 ID。
func (c *Client) ID() string { return c.id }

// CloseConn 强制关闭底层连接，由此终止 ReadPump。
func (c *Client) CloseConn() { c.conn.Close() }

// Run 启动客户端的读写 goroutine。
func (c *Client) Run() {
	go c.writePump()
	go c.readPump()
}

// deliver 非阻塞地把消息放入客户端的发送队列。
// 返回 false 表示队列已满，消息被丢弃。
func (c *Client) deliver(payload []byte) bool {
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// readPump 把消息从 WebSocket 连接直接送入协调器。
// 在连接自己的 goroutine 中同步调用协调器，
// 天然保证同一连接的消息按发送顺序处理。
func (c *Client) readPump() {
	defer func() {
		// 断开只在这里上报一次：先让协调器处理离开语义，再清理连接。
		c.hub.coordinator.CloseSession(c.id)
		c.hub.Unregister(c)
		c.conn.Close()
		logrus.WithField("conn_id", c.id).Info("readPump exited, session closed")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			logCtx := logrus.WithField("conn_id", c.id)
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logCtx.WithError(err).Warn("WebSocket read error (unexpected close)")
			} else {
				logCtx.Debug("WebSocket connection closed")
			}
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}
		c.hub.coordinator.HandleMessage(c.id, message)
	}
}

// writePump 把消息从 send 通道泵送到 WebSocket 连接，并定期发送 Ping。
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		logrus.WithField("conn_id", c.id).Debug("writePump exited")
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub 关闭了发送通道（注销时），通知对端后退出。
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logrus.WithField("conn_id", c.id).WithError(err).Warn("Failed to write message to websocket")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logrus.WithField("conn_id", c.id).WithError(err).Warn("Failed to send ping message")
				return
			}
		}
	}
}
