package service

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/NEO6667/Collaborative-Canvas/internal/domain"
	"github.com/NEO6667/Collaborative-Canvas/internal/dto"
	"github.com/NEO6667/Collaborative-Canvas/internal/oplog"
	"github.com/NEO6667/Collaborative-Canvas/internal/registry"
	"github.com/NEO6667/Collaborative-Canvas/internal/sequencer"
)

// Transport 是协调器对复制/广播层的最小依赖，由 hub 实现。
// 投递语义是 "deliver to currently-known members"：
// 在排序和扇出之间断开的成员单纯收不到该条消息，不做重试。
type Transport interface {
	// JoinRoom 把连接纳入房间的扇出集合。
	JoinRoom(roomID, connID string)
	// LeaveRoom 把连接移出房间的扇出集合。
	LeaveRoom(roomID, connID string)
	// Unicast 只投递给指定连接。
	Unicast(connID string, payload []byte)
	// Broadcast 投递给房间内除 exceptConnID 以外的所有连接；
	// exceptConnID 为空串时投递给所有成员。
	Broadcast(roomID string, payload []byte, exceptConnID string)
}

// 连接的会话状态机：Unjoined -> Joined -> Closed。
// 只有 Joined 状态接受绘图和控制消息，其余情况静默丢弃。
type sessionState int

const (
	stateUnjoined sessionState = iota
	stateJoined
	stateClosed
)

// session 保存单个连接的协议状态。
// 字段只被该连接自己的读取 goroutine 访问（消息按连接内发送顺序到达），
// sessions map 本身由 Coordinator.mu 保护。
type session struct {
	connID      string
	state       sessionState
	roomID      string
	displayName string
}

// Coordinator 是每连接的协议处理器（会话协调器）：
// 校验入站消息、为操作分配权威标识和顺序、驱动 RoomRegistry 与
// OperationLog，并决定向谁广播什么。
// 同一房间的全部变更通过 sequencer 串行，到达顺序即房间内的总序。
type Coordinator struct {
	registry  *registry.Registry
	ops       *oplog.Store
	seq       *sequencer.Sequencer
	transport Transport

	mu       sync.Mutex
	sessions map[string]*session
}

// NewCoordinator 创建会话协调器。传输层随后通过 AttachTransport 绑定
// （hub 依赖协调器，协调器只依赖 Transport 接口，避免环形依赖）。
func NewCoordinator(reg *registry.Registry, ops *oplog.Store) *Coordinator {
	if reg == nil {
		panic("Registry cannot be nil for Coordinator")
	}
	if ops == nil {
		panic("Operation log store cannot be nil for Coordinator")
	}
	return &Coordinator{
		registry: reg,
		ops:      ops,
		seq:      sequencer.New(),
		sessions: make(map[string]*session),
	}
}

// AttachTransport 绑定复制层。必须在处理任何消息之前完成。
func (c *Coordinator) AttachTransport(t Transport) {
	if t == nil {
		panic("Transport cannot be nil for Coordinator")
	}
	c.transport = t
}

// OpenSession 为新连接注册一个 Unjoined 会话。
func (c *Coordinator) OpenSession(connID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.sessions[connID]; ok {
		return ErrSessionExists
	}
	c.sessions[connID] = &session{connID: connID, state: stateUnjoined}
	logrus.WithField("conn_id", connID).Debug("Session opened")
	return nil
}

// HandleMessage 处理来自某个连接的一条原始消息。
// 传输层保证同一连接的消息按发送顺序到达这里。
func (c *Coordinator) HandleMessage(connID string, raw []byte) {
	logCtx := logrus.WithField("conn_id", connID)
	if c.transport == nil {
		logCtx.WithError(ErrNoTransport).Error("Dropping message")
		return
	}

	sess := c.lookupSession(connID)
	if sess == nil || sess.state == stateClosed {
		logCtx.Debug("Message for unknown or closed session, dropped")
		return
	}

	var head dto.TypeHeader
	if err := json.Unmarshal(raw, &head); err != nil {
		logCtx.WithError(err).Warn("Failed to parse message envelope, dropped")
		return
	}

	switch head.Type {
	case dto.TypeJoin:
		c.handleJoin(sess, raw)
	case dto.TypeHeartbeat:
		// 心跳与房间状态无关，任何未关闭的会话都可以使用。
		c.handleHeartbeat(sess, raw)
	case dto.TypeOperationSubmit, dto.TypeCursorMove,
		dto.TypeUndoRequest, dto.TypeRedoRequest, dto.TypeClearRequest:
		if sess.state != stateJoined {
			// join 完成之前的一切绘图/控制消息都静默丢弃。
			logCtx.WithField("message_type", head.Type).Debug("Message before join, dropped")
			return
		}
		switch head.Type {
		case dto.TypeOperationSubmit:
			c.handleOperationSubmit(sess, raw)
		case dto.TypeCursorMove:
			c.handleCursorMove(sess, raw)
		case dto.TypeUndoRequest:
			c.handleUndo(sess)
		case dto.TypeRedoRequest:
			c.handleRedo(sess)
		case dto.TypeClearRequest:
			c.handleClear(sess)
		}
	default:
		logCtx.WithField("message_type", head.Type).Warn("Unknown message type, dropped")
	}
}

// CloseSession 处理连接断开：若已加入房间，移除参与者并通知剩余成员；
// 房间变空时连同操作日志一起销毁。幂等，重复调用是 no-op。
func (c *Coordinator) CloseSession(connID string) {
	c.mu.Lock()
	sess, ok := c.sessions[connID]
	if !ok || sess.state == stateClosed {
		c.mu.Unlock()
		return
	}
	wasJoined := sess.state == stateJoined
	roomID := sess.roomID
	sess.state = stateClosed
	delete(c.sessions, connID)
	c.mu.Unlock()

	if wasJoined {
		c.leaveRoom(roomID, connID)
	}
	logrus.WithField("conn_id", connID).Debug("Session closed")
}

// --- 各消息的处理逻辑 ---

// handleJoin 实现 Unjoined -> Joined 迁移。
// 已加入状态下的再次 join 按全新加入处理（重新注册），不是错误。
func (c *Coordinator) handleJoin(sess *session, raw []byte) {
	var msg dto.JoinRequest
	if err := json.Unmarshal(raw, &msg); err != nil {
		logrus.WithField("conn_id", sess.connID).WithError(err).Warn("Invalid join payload, dropped")
		return
	}
	roomID := msg.RoomID
	if roomID == "" {
		roomID = "default"
	}
	name := msg.DisplayName
	if name == "" {
		name = domain.DefaultDisplayName(sess.connID)
	}

	// 切换房间的重新加入：先正常退出旧房间。
	if sess.state == stateJoined && sess.roomID != roomID {
		c.leaveRoom(sess.roomID, sess.connID)
	}

	p := domain.Participant{
		ID:          sess.connID,
		DisplayName: name,
		Color:       domain.ColorFor(sess.connID),
	}

	c.seq.Do(roomID, func() {
		c.registry.Join(roomID, p)
		c.transport.JoinRoom(roomID, sess.connID)

		// 完整快照只发给请求者本人。
		snap := c.registry.Snapshot(roomID)
		if payload, ok := encode(dto.RoomSnapshot{
			Type:         dto.TypeRoomSnapshot,
			Participants: snap.Participants,
			Operations:   c.ops.List(roomID),
			CanvasSize:   snap.CanvasSize,
		}); ok {
			c.transport.Unicast(sess.connID, payload)
		}

		// 其余成员只收到加入通知。
		if payload, ok := encode(dto.ParticipantJoined{
			Type:        dto.TypeParticipantJoined,
			Participant: p,
		}); ok {
			c.transport.Broadcast(roomID, payload, sess.connID)
		}
	})

	sess.state = stateJoined
	sess.roomID = roomID
	sess.displayName = name
	logrus.WithFields(logrus.Fields{
		"conn_id":      sess.connID,
		"room_id":      roomID,
		"display_name": name,
	}).Info("Participant joined room")
}

// handleOperationSubmit 为操作分配权威字段、入日志并广播给其他成员。
// 发送者本地已经渲染过这笔操作，不回显。
func (c *Coordinator) handleOperationSubmit(sess *session, raw []byte) {
	logCtx := logrus.WithFields(logrus.Fields{"conn_id": sess.connID, "room_id": sess.roomID})

	var msg dto.OperationSubmit
	if err := json.Unmarshal(raw, &msg); err != nil {
		logCtx.WithError(err).Warn("Invalid operation payload, dropped")
		return
	}
	if !domain.ValidTool(msg.Tool) {
		logCtx.WithField("tool", msg.Tool).Warn("Unsupported tool, operation dropped")
		return
	}

	// 服务端是 operationId/authorId/authorColor/createdAt 的唯一分配者，
	// 客户端提交的同名字段一律忽略，杜绝伪造。
	op := domain.Operation{
		OperationID: uuid.NewString(),
		RoomID:      sess.roomID,
		AuthorID:    sess.connID,
		AuthorColor: domain.ColorFor(sess.connID),
		Tool:        msg.Tool,
		Color:       msg.Color,
		Size:        msg.Size,
		Path:        msg.Path,
		CreatedAt:   time.Now().UTC().UnixMilli(),
	}

	c.seq.Do(sess.roomID, func() {
		stored := c.ops.Append(op)
		if payload, ok := encode(dto.OperationBroadcast{
			Type:      dto.TypeOperationBroadcast,
			Operation: stored,
		}); ok {
			c.transport.Broadcast(sess.roomID, payload, sess.connID)
		}
	})
	logCtx.WithField("op_id", op.OperationID).Debug("Operation appended and broadcast")
}

// handleCursorMove 更新参与者的光标并转发给其他成员。
// 光标永远不进日志、不重放：服务端只是无状态中继，
// 过期光标的隐藏由客户端自己的超时负责。
func (c *Coordinator) handleCursorMove(sess *session, raw []byte) {
	var msg dto.CursorMove
	if err := json.Unmarshal(raw, &msg); err != nil {
		logrus.WithField("conn_id", sess.connID).WithError(err).Warn("Invalid cursor payload, dropped")
		return
	}

	cursor := domain.Cursor{X: msg.X, Y: msg.Y}
	c.seq.Do(sess.roomID, func() {
		if !c.registry.UpdateCursor(sess.roomID, sess.connID, cursor) {
			return
		}
		if payload, ok := encode(dto.CursorBroadcast{
			Type:          dto.TypeCursorBroadcast,
			ParticipantID: sess.connID,
			X:             msg.X,
			Y:             msg.Y,
			Color:         domain.ColorFor(sess.connID),
			DisplayName:   sess.displayName,
		}); ok {
			c.transport.Broadcast(sess.roomID, payload, sess.connID)
		}
	})
}

// handleUndo 撤销房间内最后一笔操作（全局 LIFO，不限作者），
// 向包括请求者在内的所有成员广播移除通知，保证各端一致地丢弃渲染状态。
// 日志为空时不广播。
func (c *Coordinator) handleUndo(sess *session) {
	c.seq.Do(sess.roomID, func() {
		removed := c.ops.Undo(sess.roomID)
		if removed == nil {
			return
		}
		if payload, ok := encode(dto.OperationRemoved{
			Type:        dto.TypeOperationRemoved,
			OperationID: removed.OperationID,
			RequestedBy: sess.connID,
		}); ok {
			c.transport.Broadcast(sess.roomID, payload, "")
		}
		logrus.WithFields(logrus.Fields{
			"room_id": sess.roomID,
			"op_id":   removed.OperationID,
			"conn_id": sess.connID,
		}).Debug("Operation undone")
	})
}

// handleRedo 恢复最近撤销的操作并把完整操作广播给所有成员。
// undone 栈为空时不广播。
func (c *Coordinator) handleRedo(sess *session) {
	c.seq.Do(sess.roomID, func() {
		restored := c.ops.Redo(sess.roomID)
		if restored == nil {
			return
		}
		if payload, ok := encode(dto.OperationRestored{
			Type:      dto.TypeOperationRestored,
			Operation: *restored,
		}); ok {
			c.transport.Broadcast(sess.roomID, payload, "")
		}
		logrus.WithFields(logrus.Fields{
			"room_id": sess.roomID,
			"op_id":   restored.OperationID,
			"conn_id": sess.connID,
		}).Debug("Operation restored")
	})
}

// handleClear 清空房间日志并通知所有成员。
func (c *Coordinator) handleClear(sess *session) {
	c.seq.Do(sess.roomID, func() {
		c.ops.Clear(sess.roomID)
		if payload, ok := encode(dto.CanvasCleared{
			Type:      dto.TypeCanvasCleared,
			ClearedBy: sess.connID,
		}); ok {
			c.transport.Broadcast(sess.roomID, payload, "")
		}
	})
	logrus.WithFields(logrus.Fields{
		"room_id": sess.roomID,
		"conn_id": sess.connID,
	}).Info("Canvas cleared")
}

// handleHeartbeat 原样回显令牌给请求者，仅用于延迟测量。
func (c *Coordinator) handleHeartbeat(sess *session, raw []byte) {
	var msg dto.Heartbeat
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	if payload, ok := encode(dto.Heartbeat{Type: dto.TypeHeartbeat, Token: msg.Token}); ok {
		c.transport.Unicast(sess.connID, payload)
	}
}

// --- 内部辅助 ---

func (c *Coordinator) lookupSession(connID string) *session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[connID]
}

// leaveRoom 在房间的串行上下文中移除参与者并通知剩余成员。
// 房间变空时连同操作日志一并销毁，内存立即回收。
func (c *Coordinator) leaveRoom(roomID, connID string) {
	c.seq.Do(roomID, func() {
		c.transport.LeaveRoom(roomID, connID)
		removed, roomRemoved := c.registry.Leave(roomID, connID)
		if roomRemoved {
			c.ops.Drop(roomID)
		}
		if removed {
			if payload, ok := encode(dto.ParticipantLeft{
				Type:          dto.TypeParticipantLeft,
				ParticipantID: connID,
			}); ok {
				c.transport.Broadcast(roomID, payload, connID)
			}
		}
	})
}

// encode 序列化出站消息；失败时记录日志并指示调用方跳过投递。
func encode(v interface{}) ([]byte, bool) {
	payload, err := json.Marshal(v)
	if err != nil {
		logrus.WithError(err).Error("Failed to marshal outbound message")
		return nil, false
	}
	return payload, true
}
