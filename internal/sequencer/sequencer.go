package sequencer

import "sync"

// Sequencer 按 key（这里是房间 ID）串行化闭包的执行。
// 同一房间的所有变更按到达顺序严格串行——这本身就是冲突解决机制；
// 不同房间之间互不阻塞，没有跨房间的进程级锁。
//
// 条目按引用计数管理：某个房间没有在执行或等待的闭包时，
// 对应的锁条目立即回收，不会随房间数量无限增长。
type Sequencer struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// New 创建一个 Sequencer。
func New() *Sequencer {
	return &Sequencer{entries: make(map[string]*entry)}
}

// Do 在 key 对应的串行上下文中执行 fn。
// 同一 key 的调用按锁的获取顺序依次执行，不同 key 的调用并行。
func (s *Sequencer) Do(key string, fn func()) {
	e := s.acquire(key)
	e.mu.Lock()
	defer func() {
		e.mu.Unlock()
		s.release(key, e)
	}()
	fn()
}

func (s *Sequencer) acquire(key string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		e = &entry{}
		s.entries[key] = e
	}
	e.refs++
	return e
}

func (s *Sequencer) release(key string, e *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(s.entries, key)
	}
}
