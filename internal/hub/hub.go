package hub

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/NEO6667/Collaborative-Canvas/internal/service"
)

// 包级别的 WebSocket 常量，供 hub 和 client 使用。
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	// 一条笔画的路径可能包含几百个坐标点，上限放宽到 64KB。
	maxMessageSize = 64 * 1024

	// 单个客户端出站队列的缓冲大小。
	sendBufferSize = 256
)

// Hub 是复制/广播层：维护连接集合和按房间组织的扇出集合，
// 把协调器产出的消息投递给当前已知的房间成员。
// 它实现 service.Transport。
//
// 投递是 fire-and-forget：发送队列已满的慢客户端直接跳过，
// 绝不让单个连接阻塞整个房间的扇出。
type Hub struct {
	coordinator *service.Coordinator

	mu sync.RWMutex
	// 所有活跃连接，按连接 ID 索引。
	conns map[string]*Client
	// 每个房间的扇出集合。
	rooms map[string]map[string]*Client
	// 连接当前归属的房间，用于 O(1) 清理。
	membership map[string]string
}

// NewHub 创建 Hub 并把自己作为传输层绑定到协调器。
func NewHub(coordinator *service.Coordinator) *Hub {
	if coordinator == nil {
		panic("Coordinator cannot be nil for Hub")
	}
	h := &Hub{
		coordinator: coordinator,
		conns:       make(map[string]*Client),
		rooms:       make(map[string]map[string]*Client),
		membership:  make(map[string]string),
	}
	coordinator.AttachTransport(h)
	return h
}

// Register 把新升级的连接纳入 Hub 管理。
func (h *Hub) Register(client *Client) {
	if client == nil {
		logrus.Error("Hub: attempted to register a nil client")
		return
	}
	h.mu.Lock()
	h.conns[client.ID()] = client
	h.mu.Unlock()
	logrus.WithField("conn_id", client.ID()).Info("Client registered to Hub")
}

// Unregister 移除连接并关闭它的发送通道（由此终止 WritePump）。
// 重复调用是 no-op。
func (h *Hub) Unregister(client *Client) {
	if client == nil {
		return
	}
	connID := client.ID()

	h.mu.Lock()
	if _, ok := h.conns[connID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.conns, connID)
	h.removeFromRoomLocked(connID)
	h.mu.Unlock()

	close(client.send)
	logrus.WithField("conn_id", connID).Info("Client unregistered from Hub")
}

// --- service.Transport 实现 ---

// JoinRoom 把连接加入房间的扇出集合。
func (h *Hub) JoinRoom(roomID, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.conns[connID]
	if !ok {
		logrus.WithFields(logrus.Fields{"room_id": roomID, "conn_id": connID}).
			Warn("JoinRoom for unknown connection, skipped")
		return
	}
	// 连接同一时刻只属于一个房间；重新加入前先离开旧房间。
	h.removeFromRoomLocked(connID)

	members, ok := h.rooms[roomID]
	if !ok {
		members = make(map[string]*Client)
		h.rooms[roomID] = members
	}
	members[connID] = client
	h.membership[connID] = roomID
}

// LeaveRoom 把连接移出房间的扇出集合。
func (h *Hub) LeaveRoom(roomID, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.membership[connID] == roomID {
		h.removeFromRoomLocked(connID)
	}
}

// Unicast 只投递给指定连接，连接未知或队列已满时丢弃。
func (h *Hub) Unicast(connID string, payload []byte) {
	h.mu.RLock()
	client, ok := h.conns[connID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	client.deliver(payload)
}

// Broadcast 投递给房间内除 exceptConnID 以外的所有连接。
func (h *Hub) Broadcast(roomID string, payload []byte, exceptConnID string) {
	// 先在锁内拷贝接收者列表，避免写套接字时长时间持锁。
	h.mu.RLock()
	members := h.rooms[roomID]
	recipients := make([]*Client, 0, len(members))
	for connID, client := range members {
		if connID == exceptConnID {
			continue
		}
		recipients = append(recipients, client)
	}
	h.mu.RUnlock()

	for _, client := range recipients {
		if !client.deliver(payload) {
			logrus.WithFields(logrus.Fields{
				"room_id": roomID,
				"conn_id": client.ID(),
			}).Warn("Client send queue full during broadcast, message dropped for this client")
		}
	}
}

// --- 生命周期 ---

// Shutdown 关闭所有客户端连接，用于进程退出。
func (h *Hub) Shutdown() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.conns))
	for _, c := range h.conns {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.CloseConn()
	}
	logrus.WithField("count", len(clients)).Info("Hub shut down, client connections closed")
}

// removeFromRoomLocked 把连接移出其当前房间。调用方必须持有 h.mu 写锁。
func (h *Hub) removeFromRoomLocked(connID string) {
	roomID, ok := h.membership[connID]
	if !ok {
		return
	}
	delete(h.membership, connID)
	if members, ok := h.rooms[roomID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
}
