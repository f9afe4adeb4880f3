package oplog

import (
	"sync"

	"github.com/NEO6667/Collaborative-Canvas/internal/domain"
)

// DefaultMaxHistory 是单个房间保留的最大操作数。
// 超出后最旧的操作被静默淘汰（不移入 undone，永久丢失）——
// 这是内存占用与无限历史之间的既定取舍。
const DefaultMaxHistory = 1000

// Store 按房间维护操作日志。房间日志在首次引用时惰性创建，
// 与 RoomRegistry 的惰性语义保持一致。
//
// Store 级别的锁只保护 rooms map 本身；每个房间日志持有自己的锁，
// 不同房间的操作互不阻塞。跨操作的串行化（总序）由上层的
// sequencer 保证，这里的锁只负责内存安全。
type Store struct {
	mu    sync.RWMutex
	limit int
	rooms map[string]*roomLog
}

// roomLog 是单个房间的操作日志：
// history 保存已应用的操作（最旧在前），undone 保存被撤销的操作
// （最近撤销的在最后），index 提供 O(1) 的按 ID 查找，
// 且只覆盖当前在 history 中的操作。
type roomLog struct {
	mu      sync.Mutex
	history []domain.Operation
	undone  []domain.Operation
	index   map[string]domain.Operation
}

// NewStore 创建一个操作日志存储。limit <= 0 时使用 DefaultMaxHistory。
func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = DefaultMaxHistory
	}
	return &Store{
		limit: limit,
		rooms: make(map[string]*roomLog),
	}
}

// get 返回房间日志，不存在时惰性创建。
func (s *Store) get(roomID string) *roomLog {
	s.mu.RLock()
	rl, ok := s.rooms[roomID]
	s.mu.RUnlock()
	if ok {
		return rl
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if rl, ok = s.rooms[roomID]; ok {
		return rl
	}
	rl = &roomLog{index: make(map[string]domain.Operation)}
	s.rooms[roomID] = rl
	return rl
}

// peek 返回房间日志但不创建，用于只读路径。
func (s *Store) peek(roomID string) (*roomLog, bool) {
	s.mu.RLock()
	rl, ok := s.rooms[roomID]
	s.mu.RUnlock()
	return rl, ok
}

// Append 把操作追加到所属房间的 history 并建立索引。
// 新操作会清空 undone 栈：新的创作使任何待重做的操作失效。
// 超出保留上限时，最旧的操作同时从 history 和索引中淘汰。
func (s *Store) Append(op domain.Operation) domain.Operation {
	rl := s.get(op.RoomID)
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.history = append(rl.history, op)
	rl.index[op.OperationID] = op
	rl.undone = nil

	if len(rl.history) > s.limit {
		evicted := rl.history[0]
		rl.history = rl.history[1:]
		delete(rl.index, evicted.OperationID)
	}
	return op
}

// Undo 移除 history 中最后追加的操作（全局 LIFO，不区分作者），
// 把它压入 undone 栈并从索引删除。history 为空时返回 nil（no-op）。
func (s *Store) Undo(roomID string) *domain.Operation {
	rl, ok := s.peek(roomID)
	if !ok {
		return nil
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if len(rl.history) == 0 {
		return nil
	}
	last := rl.history[len(rl.history)-1]
	rl.history = rl.history[:len(rl.history)-1]
	rl.undone = append(rl.undone, last)
	delete(rl.index, last.OperationID)
	return &last
}

// Redo 弹出最近撤销的操作，原样（含原 OperationID）追加回 history 末尾
// 并重建索引。undone 为空时返回 nil（no-op）。
func (s *Store) Redo(roomID string) *domain.Operation {
	rl, ok := s.peek(roomID)
	if !ok {
		return nil
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if len(rl.undone) == 0 {
		return nil
	}
	restored := rl.undone[len(rl.undone)-1]
	rl.undone = rl.undone[:len(rl.undone)-1]
	rl.history = append(rl.history, restored)
	rl.index[restored.OperationID] = restored
	return &restored
}

// Clear 清空房间的 history、undone 和索引。
func (s *Store) Clear(roomID string) {
	rl, ok := s.peek(roomID)
	if !ok {
		return
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.history = nil
	rl.undone = nil
	rl.index = make(map[string]domain.Operation)
}

// List 按顺序返回房间的 history 副本，用于构建加入时的快照。
// 未知房间返回空切片，不会创建房间。
func (s *Store) List(roomID string) []domain.Operation {
	rl, ok := s.peek(roomID)
	if !ok {
		return []domain.Operation{}
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	out := make([]domain.Operation, len(rl.history))
	copy(out, rl.history)
	return out
}

// Lookup 按操作 ID 做 O(1) 查找，只命中当前在 history 中的操作。
func (s *Store) Lookup(roomID, operationID string) (domain.Operation, bool) {
	rl, ok := s.peek(roomID)
	if !ok {
		return domain.Operation{}, false
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	op, ok := rl.index[operationID]
	return op, ok
}

// Drop 丢弃整个房间的日志，在房间被销毁（最后一个参与者离开）时调用。
func (s *Store) Drop(roomID string) {
	s.mu.Lock()
	delete(s.rooms, roomID)
	s.mu.Unlock()
}
