package session

import (
	"context"
	"testing"
	"time"

	"pdf-chat-go/internal/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRedisStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	_, rdb := newRedis(t)
	s := NewRedisStore(rdb, Options{TTL: time.Hour, MaxHistory: 4})

	sess := newSession("r1", "kopi robusta", "teh hijau")
	sess.Info.UploadedAt = model.LocalTime(time.Date(2024, 5, 1, 10, 0, 0, 0, time.Local))
	require.NoError(t, s.Create(ctx, sess))
	assert.ErrorIs(t, s.Create(ctx, sess), ErrExists)

	for _, q := range []string{"q1", "q2", "q3"} {
		u, a := turn(q, "a"+q[1:])
		require.NoError(t, s.AppendTurn(ctx, "r1", u, a))
	}

	got, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "r1.pdf", got.Info.DocumentName)
	assert.Equal(t, []string{"kopi robusta", "teh hijau"}, got.Retriever.Chunks())
	require.Len(t, got.History, 4)
	assert.Equal(t, "q2", got.History[0].Content)
	assert.Equal(t, "a3", got.History[3].Content)
	assert.Equal(t, 4, got.Info.MessageCount)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "r1", list[0].ID)
	assert.Equal(t, 4, list[0].MessageCount)

	require.NoError(t, s.Delete(ctx, "r1"))
	_, err = s.Get(ctx, "r1")
	assert.ErrorIs(t, err, ErrNotFound)
	u, a := turn("q", "a")
	assert.ErrorIs(t, s.AppendTurn(ctx, "r1", u, a), ErrNotFound)
}

func TestRedisStore_IndexLostAfterRestart(t *testing.T) {
	ctx := context.Background()
	_, rdb := newRedis(t)
	first := NewRedisStore(rdb, Options{})
	require.NoError(t, first.Create(ctx, newSession("r1")))
	u, a := turn("q", "a")
	require.NoError(t, first.AppendTurn(ctx, "r1", u, a))

	// 新进程共享 Redis，但没有检索器
	second := NewRedisStore(rdb, Options{})
	got, err := second.Get(ctx, "r1")
	assert.ErrorIs(t, err, ErrIndexLost)
	require.NotNil(t, got)
	assert.Nil(t, got.Retriever)
	assert.Len(t, got.History, 2)

	require.NoError(t, second.SetRetriever(ctx, "r1", newSession("r1").Retriever, got.Info))
	got, err = second.Get(ctx, "r1")
	require.NoError(t, err)
	assert.NotNil(t, got.Retriever)
	assert.Len(t, got.History, 2)
}

func TestRedisStore_Expiry(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newRedis(t)
	s := NewRedisStore(rdb, Options{TTL: time.Minute})
	require.NoError(t, s.Create(ctx, newSession("r1")))

	mr.FastForward(2 * time.Minute)

	_, err := s.Get(ctx, "r1")
	assert.ErrorIs(t, err, ErrNotFound)
	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.ErrorIs(t, s.SetRetriever(ctx, "r1", nil, model.SessionInfo{}), ErrNotFound)
}
