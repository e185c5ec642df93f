package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"pdf-chat-go/internal/model"
	"pdf-chat-go/internal/retrieval"
	"pdf-chat-go/pkg/log"
	"pdf-chat-go/pkg/metrics"
)

type memoryEntry struct {
	mu         sync.Mutex
	sess       Session
	lastAccess time.Time
}

// MemoryStore 是进程内实现：map 由读写锁保护，每个会话另有自己的互斥锁。
// 会话在 TTL 内无访问即过期，由 janitor 协程定期清理。
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	opts    Options
	now     func() time.Time

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewMemoryStore 创建内存会话存储，JanitorInterval > 0 时启动清理协程。
func NewMemoryStore(opts Options) *MemoryStore {
	m := &MemoryStore{
		entries: make(map[string]*memoryEntry),
		opts:    opts,
		now:     time.Now,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	if opts.JanitorInterval > 0 {
		go m.janitor(opts.JanitorInterval)
	} else {
		close(m.done)
	}
	return m
}

func (m *MemoryStore) janitor(interval time.Duration) {
	defer close(m.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				log.Infof("[SessionStore] 清理过期会话 %d 个", n)
			}
		case <-m.stop:
			return
		}
	}
}

// Sweep 删除所有已过期的会话并返回删除数量。
func (m *MemoryStore) Sweep() int {
	if m.opts.TTL <= 0 {
		return 0
	}
	now := m.now()

	m.mu.RLock()
	var expired []string
	for id, e := range m.entries {
		e.mu.Lock()
		if now.Sub(e.lastAccess) > m.opts.TTL {
			expired = append(expired, id)
		}
		e.mu.Unlock()
	}
	m.mu.RUnlock()
	if len(expired) == 0 {
		return 0
	}

	removed := 0
	m.mu.Lock()
	for _, id := range expired {
		e, ok := m.entries[id]
		if !ok {
			continue
		}
		// 重新确认，期间可能被访问过
		e.mu.Lock()
		stale := now.Sub(e.lastAccess) > m.opts.TTL
		e.mu.Unlock()
		if stale {
			delete(m.entries, id)
			removed++
		}
	}
	metrics.ActiveSessions.Set(float64(len(m.entries)))
	m.mu.Unlock()
	return removed
}

// Create 实现 Store。
func (m *MemoryStore) Create(_ context.Context, s Session) error {
	if s.Info.ID == "" {
		return ErrNotFound
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[s.Info.ID]; ok && !m.expired(e) {
		return ErrExists
	}
	s.History = copyHistory(s.History)
	m.entries[s.Info.ID] = &memoryEntry{sess: s, lastAccess: m.now()}
	metrics.ActiveSessions.Set(float64(len(m.entries)))
	return nil
}

func (m *MemoryStore) expired(e *memoryEntry) bool {
	if m.opts.TTL <= 0 {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return m.now().Sub(e.lastAccess) > m.opts.TTL
}

// lookup 返回未过期的条目，已过期的条目会被立即删除。
func (m *MemoryStore) lookup(id string) (*memoryEntry, error) {
	m.mu.RLock()
	e, ok := m.entries[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if m.expired(e) {
		m.mu.Lock()
		if cur, ok := m.entries[id]; ok && cur == e {
			delete(m.entries, id)
			metrics.ActiveSessions.Set(float64(len(m.entries)))
		}
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	return e, nil
}

// Get 实现 Store，刷新过期时间。
func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	e, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastAccess = m.now()
	out := e.sess
	out.History = copyHistory(e.sess.History)
	out.Info.MessageCount = len(out.History)
	return &out, nil
}

// AppendTurn 实现 Store。
func (m *MemoryStore) AppendTurn(_ context.Context, id string, user, assistant model.ChatMessage) error {
	e, err := m.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sess.History = trimHistory(append(e.sess.History, user, assistant), m.opts.MaxHistory)
	e.lastAccess = m.now()
	return nil
}

// History 实现 Store。
func (m *MemoryStore) History(_ context.Context, id string) ([]model.ChatMessage, error) {
	e, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastAccess = m.now()
	return copyHistory(e.sess.History), nil
}

// SetRetriever 实现 Store。
func (m *MemoryStore) SetRetriever(_ context.Context, id string, r retrieval.Retriever, info model.SessionInfo) error {
	e, err := m.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	info.ID = id
	e.sess.Info = info
	e.sess.Retriever = r
	e.lastAccess = m.now()
	return nil
}

// Delete 实现 Store，不存在时无操作。
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.entries, id)
	metrics.ActiveSessions.Set(float64(len(m.entries)))
	m.mu.Unlock()
	return nil
}

// List 返回未过期会话的元数据，按上传时间排序。不刷新过期时间。
func (m *MemoryStore) List(_ context.Context) ([]model.SessionInfo, error) {
	m.mu.RLock()
	entries := make([]*memoryEntry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	out := make([]model.SessionInfo, 0, len(entries))
	for _, e := range entries {
		if m.expired(e) {
			continue
		}
		e.mu.Lock()
		info := e.sess.Info
		info.MessageCount = len(e.sess.History)
		e.mu.Unlock()
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].UploadedAt.Time(), out[j].UploadedAt.Time()
		if ti.Equal(tj) {
			return out[i].ID < out[j].ID
		}
		return ti.Before(tj)
	})
	return out, nil
}

// Len 返回当前条目数（含尚未清理的过期条目）。
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close 停止清理协程。
func (m *MemoryStore) Close() error {
	m.closeOnce.Do(func() { close(m.stop) })
	<-m.done
	return nil
}
