package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"pdf-chat-go/internal/model"
	"pdf-chat-go/internal/retrieval"

	"github.com/go-redis/redis/v8"
)

const (
	keyPrefix   = "pdfchat:session:"
	sessionsKey = "pdfchat:sessions"
)

func metaKey(id string) string    { return keyPrefix + id + ":meta" }
func historyKey(id string) string { return keyPrefix + id + ":history" }

// RedisStore 把元数据和聊天历史放在 Redis 中，多个实例可以共享历史。
// 检索器无法序列化，保存在进程内的注册表里；注册表缺失时 Get 返回 ErrIndexLost。
type RedisStore struct {
	rdb  *redis.Client
	opts Options

	mu         sync.Mutex
	retrievers map[string]registered
}

type registered struct {
	r         retrieval.Retriever
	lastTouch time.Time
}

// NewRedisStore 创建基于 Redis 的会话存储。
func NewRedisStore(rdb *redis.Client, opts Options) *RedisStore {
	return &RedisStore{rdb: rdb, opts: opts, retrievers: make(map[string]registered)}
}

func (s *RedisStore) register(id string, r retrieval.Retriever) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	// 顺带清理 TTL 之外没有访问过的检索器
	if s.opts.TTL > 0 {
		for k, v := range s.retrievers {
			if now.Sub(v.lastTouch) > s.opts.TTL {
				delete(s.retrievers, k)
			}
		}
	}
	if r == nil {
		delete(s.retrievers, id)
		return
	}
	s.retrievers[id] = registered{r: r, lastTouch: now}
}

func (s *RedisStore) retriever(id string) retrieval.Retriever {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.retrievers[id]
	if !ok {
		return nil
	}
	v.lastTouch = time.Now()
	s.retrievers[id] = v
	return v.r
}

// Create 使用 SETNX 写入元数据，ID 已存在时返回 ErrExists。
func (s *RedisStore) Create(ctx context.Context, sess Session) error {
	id := sess.Info.ID
	data, err := json.Marshal(sess.Info)
	if err != nil {
		return fmt.Errorf("marshal session info: %w", err)
	}
	ok, err := s.rdb.SetNX(ctx, metaKey(id), data, s.opts.TTL).Result()
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if !ok {
		return ErrExists
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, historyKey(id))
		if len(sess.History) > 0 {
			pipe.RPush(ctx, historyKey(id), encodeMessages(sess.History)...)
			if s.opts.TTL > 0 {
				pipe.Expire(ctx, historyKey(id), s.opts.TTL)
			}
		}
		pipe.SAdd(ctx, sessionsKey, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("init session history: %w", err)
	}
	s.register(id, sess.Retriever)
	return nil
}

func encodeMessages(msgs []model.ChatMessage) []interface{} {
	out := make([]interface{}, 0, len(msgs))
	for _, m := range msgs {
		b, _ := json.Marshal(m)
		out = append(out, b)
	}
	return out
}

func (s *RedisStore) loadInfo(ctx context.Context, id string) (model.SessionInfo, error) {
	var info model.SessionInfo
	data, err := s.rdb.Get(ctx, metaKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		s.register(id, nil)
		return info, ErrNotFound
	}
	if err != nil {
		return info, fmt.Errorf("get session: %w", err)
	}
	if err := json.Unmarshal(data, &info); err != nil {
		return info, fmt.Errorf("unmarshal session info: %w", err)
	}
	return info, nil
}

func (s *RedisStore) touch(ctx context.Context, id string) {
	if s.opts.TTL <= 0 {
		return
	}
	pipe := s.rdb.Pipeline()
	pipe.Expire(ctx, metaKey(id), s.opts.TTL)
	pipe.Expire(ctx, historyKey(id), s.opts.TTL)
	_, _ = pipe.Exec(ctx)
}

// Get 实现 Store。元数据存在但检索器不在本进程时，返回会话与 ErrIndexLost。
func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	info, err := s.loadInfo(ctx, id)
	if err != nil {
		return nil, err
	}
	history, err := s.History(ctx, id)
	if err != nil {
		return nil, err
	}
	info.MessageCount = len(history)
	sess := &Session{Info: info, History: history, Retriever: s.retriever(id)}
	if sess.Retriever == nil {
		return sess, ErrIndexLost
	}
	return sess, nil
}

// AppendTurn 在一个 MULTI 事务中追加两条消息、截断并刷新过期时间。
func (s *RedisStore) AppendTurn(ctx context.Context, id string, user, assistant model.ChatMessage) error {
	n, err := s.rdb.Exists(ctx, metaKey(id)).Result()
	if err != nil {
		return fmt.Errorf("check session: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, historyKey(id), encodeMessages([]model.ChatMessage{user, assistant})...)
		if s.opts.MaxHistory > 0 {
			pipe.LTrim(ctx, historyKey(id), int64(-s.opts.MaxHistory), -1)
		}
		if s.opts.TTL > 0 {
			pipe.Expire(ctx, historyKey(id), s.opts.TTL)
			pipe.Expire(ctx, metaKey(id), s.opts.TTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

// History 实现 Store。
func (s *RedisStore) History(ctx context.Context, id string) ([]model.ChatMessage, error) {
	raw, err := s.rdb.LRange(ctx, historyKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if len(raw) == 0 {
		n, err := s.rdb.Exists(ctx, metaKey(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("check session: %w", err)
		}
		if n == 0 {
			return nil, ErrNotFound
		}
	}
	out := make([]model.ChatMessage, 0, len(raw))
	for _, item := range raw {
		var m model.ChatMessage
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			return nil, fmt.Errorf("unmarshal message: %w", err)
		}
		out = append(out, m)
	}
	s.touch(ctx, id)
	return out, nil
}

// SetRetriever 实现 Store。
func (s *RedisStore) SetRetriever(ctx context.Context, id string, r retrieval.Retriever, info model.SessionInfo) error {
	info.ID = id
	info.MessageCount = 0
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshal session info: %w", err)
	}
	ok, err := s.rdb.SetXX(ctx, metaKey(id), data, s.opts.TTL).Result()
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	s.register(id, r)
	return nil
}

// Delete 实现 Store。
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, metaKey(id), historyKey(id))
		pipe.SRem(ctx, sessionsKey, id)
		return nil
	})
	s.register(id, nil)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// List 返回所有未过期会话的元数据，并顺带移除已过期的 ID。
func (s *RedisStore) List(ctx context.Context) ([]model.SessionInfo, error) {
	ids, err := s.rdb.SMembers(ctx, sessionsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	out := make([]model.SessionInfo, 0, len(ids))
	for _, id := range ids {
		info, err := s.loadInfo(ctx, id)
		if errors.Is(err, ErrNotFound) {
			s.rdb.SRem(ctx, sessionsKey, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		if n, err := s.rdb.LLen(ctx, historyKey(id)).Result(); err == nil {
			info.MessageCount = int(n)
		}
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

// Close 释放进程内注册表，Redis 客户端由调用方关闭。
func (s *RedisStore) Close() error {
	s.mu.Lock()
	s.retrievers = make(map[string]registered)
	s.mu.Unlock()
	return nil
}
