package registry

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/NEO6667/Collaborative-Canvas/internal/domain"
)

// Snapshot 是某个房间当前的成员视图，连同画布尺寸。
type Snapshot struct {
	Participants []domain.Participant
	CanvasSize   domain.CanvasSize
}

// Registry 跟踪参与者的房间归属和在场元数据。
// 房间在首次 Join 时创建，在最后一个参与者离开时立即销毁并回收。
//
// Registry 级别的锁只保护 rooms map；每个房间有自己的锁。
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string]*room
	canvas domain.CanvasSize
}

type room struct {
	mu           sync.Mutex
	participants map[string]domain.Participant
	canvas       domain.CanvasSize
}

// New 创建一个 Registry，canvas 是新房间的画布尺寸。
func New(canvas domain.CanvasSize) *Registry {
	if canvas.Width <= 0 || canvas.Height <= 0 {
		canvas = domain.DefaultCanvasSize()
	}
	return &Registry{
		rooms:  make(map[string]*room),
		canvas: canvas,
	}
}

// Join 把参与者加入房间，房间不存在时创建。
// 同一 ID 重复加入会覆盖之前的元数据（幂等重注册）。
func (r *Registry) Join(roomID string, p domain.Participant) domain.Participant {
	r.mu.Lock()
	rm, ok := r.rooms[roomID]
	if !ok {
		rm = &room{
			participants: make(map[string]domain.Participant),
			canvas:       r.canvas,
		}
		r.rooms[roomID] = rm
		logrus.WithField("room_id", roomID).Info("Room created")
	}
	r.mu.Unlock()

	rm.mu.Lock()
	rm.participants[p.ID] = p
	rm.mu.Unlock()
	return p
}

// Leave 把参与者从房间移除。返回是否确实移除了参与者，
// 以及房间是否因此变空而被销毁。房间或参与者不存在时是 no-op。
func (r *Registry) Leave(roomID, participantID string) (removed, roomRemoved bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return false, false
	}

	rm.mu.Lock()
	if _, ok := rm.participants[participantID]; ok {
		delete(rm.participants, participantID)
		removed = true
	}
	empty := len(rm.participants) == 0
	rm.mu.Unlock()

	if empty {
		delete(r.rooms, roomID)
		roomRemoved = true
		logrus.WithField("room_id", roomID).Info("Room empty, removed from registry")
	}
	return removed, roomRemoved
}

// UpdateCursor 把新的光标位置合并进参与者记录，参与者不存在时是 no-op。
func (r *Registry) UpdateCursor(roomID, participantID string, cursor domain.Cursor) bool {
	r.mu.RLock()
	rm, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	p, ok := rm.participants[participantID]
	if !ok {
		return false
	}
	p.Cursor = cursor
	rm.participants[participantID] = p
	return true
}

// Snapshot 返回房间当前的参与者列表和画布尺寸。
// 未知房间返回空列表和默认画布，而不是报错：房间可能只是尚未存在。
func (r *Registry) Snapshot(roomID string) Snapshot {
	r.mu.RLock()
	rm, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return Snapshot{
			Participants: []domain.Participant{},
			CanvasSize:   r.canvas,
		}
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	out := make([]domain.Participant, 0, len(rm.participants))
	for _, p := range rm.participants {
		out = append(out, p)
	}
	return Snapshot{Participants: out, CanvasSize: rm.canvas}
}

// Count 返回房间当前的参与者数量，未知房间为 0。
func (r *Registry) Count(roomID string) int {
	r.mu.RLock()
	rm, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return 0
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return len(rm.participants)
}
