package session

import (
	"context"
	"sync"
)

// Locker 是按 key 加锁的互斥锁，用来把同一会话的整轮问答串行化。
// 不再使用的 key 会被回收，不会无限增长。
type Locker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

// NewLocker 创建一个 Locker。
func NewLocker() *Locker {
	return &Locker{locks: make(map[string]*keyLock)}
}

// Lock 获取 key 的锁，ctx 结束时放弃等待并返回 ctx.Err()。
// 成功时返回的 unlock 必须且只能调用一次。
func (l *Locker) Lock(ctx context.Context, key string) (unlock func(), err error) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, kl)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-kl.ch
			l.release(key, kl)
		})
	}, nil
}

func (l *Locker) release(key string, kl *keyLock) {
	l.mu.Lock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()
}

// Len 返回当前持有或等待中的 key 数。
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
