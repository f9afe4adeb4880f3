package dto

import "github.com/NEO6667/Collaborative-Canvas/internal/domain"

// 逻辑消息通道上的消息类型。所有消息都是带 "type" 字段的 JSON 记录。
const (
	// client -> server
	TypeJoin            = "join"
	TypeOperationSubmit = "operation-submit"
	TypeCursorMove      = "cursor-move"
	TypeUndoRequest     = "undo-request"
	TypeRedoRequest     = "redo-request"
	TypeClearRequest    = "clear-request"
	TypeHeartbeat       = "heartbeat"

	// server -> client
	TypeRoomSnapshot       = "room-snapshot"
	TypeOperationBroadcast = "operation-broadcast"
	TypeCursorBroadcast    = "cursor-broadcast"
	TypeParticipantJoined  = "participant-joined"
	TypeParticipantLeft    = "participant-left"
	TypeOperationRemoved   = "operation-removed"
	TypeOperationRestored  = "operation-restored"
	TypeCanvasCleared      = "canvas-cleared"
)

// TypeHeader 只用于探测入站消息的类型字段。
type TypeHeader struct {
	Type string `json:"type"`
}

// --- 入站消息 (client -> server) ---

// JoinRequest 请求加入（或重新加入）一个房间。
type JoinRequest struct {
	Type        string `json:"type"`
	RoomID      string `json:"roomId"`
	DisplayName string `json:"displayName"`
}

// OperationSubmit 提交一次完成的笔画。
// 服务端负责分配 operationId / authorId / authorColor / createdAt，
// 客户端只提供绘制内容本身。
type OperationSubmit struct {
	Type  string         `json:"type"`
	Tool  string         `json:"tool"`
	Color string         `json:"color"`
	Size  float64        `json:"size"`
	Path  []domain.Point `json:"path"`
}

// CursorMove 上报发送者的光标位置。
type CursorMove struct {
	Type string  `json:"type"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

// Heartbeat 携带客户端的回显令牌，用于测量延迟。
// 服务端原样返回，不影响任何房间状态。
type Heartbeat struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// --- 出站消息 (server -> client) ---

// RoomSnapshot 是发送给新加入者的完整房间状态。
type RoomSnapshot struct {
	Type         string               `json:"type"`
	Participants []domain.Participant `json:"participants"`
	Operations   []domain.Operation   `json:"operations"`
	CanvasSize   domain.CanvasSize    `json:"canvasSize"`
}

// OperationBroadcast 把一条已入日志的操作分发给房间内其他成员。
type OperationBroadcast struct {
	Type      string           `json:"type"`
	Operation domain.Operation `json:"operation"`
}

// CursorBroadcast 把某个参与者的光标位置分发给房间内其他成员。
type CursorBroadcast struct {
	Type          string  `json:"type"`
	ParticipantID string  `json:"participantId"`
	X             float64 `json:"x"`
	Y             float64 `json:"y"`
	Color         string  `json:"color"`
	DisplayName   string  `json:"displayName"`
}

// ParticipantJoined 通知房间内其他成员有新参与者加入。
type ParticipantJoined struct {
	Type        string             `json:"type"`
	Participant domain.Participant `json:"participant"`
}

// ParticipantLeft 通知房间内剩余成员某个参与者已离开。
type ParticipantLeft struct {
	Type          string `json:"type"`
	ParticipantID string `json:"participantId"`
}

// OperationRemoved 通知房间内所有成员（包括请求者）某条操作已被撤销。
type OperationRemoved struct {
	Type        string `json:"type"`
	OperationID string `json:"operationId"`
	RequestedBy string `json:"requestedBy"`
}

// OperationRestored 把重做恢复的完整操作分发给所有成员（包括请求者）。
type OperationRestored struct {
	Type      string           `json:"type"`
	Operation domain.Operation `json:"operation"`
}

// CanvasCleared 通知所有成员画布已被清空。
type CanvasCleared struct {
	Type      string `json:"type"`
	ClearedBy string `json:"clearedBy"`
}
