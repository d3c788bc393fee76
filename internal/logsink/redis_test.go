package logsink

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 RedisMirror 测试
// =============================================================================

func setupTestRedis(t *testing.T, maxLen int) (*miniredis.Miniredis, *RedisMirror) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	mirror, err := NewRedisMirror(RedisConfig{
		Addr:   mr.Addr(),
		Key:    "godlike:activity",
		MaxLen: maxLen,
	}, zap.NewNop())
	require.NoError(t, err)

	return mr, mirror
}

func TestRedisMirror_AppendsAndTrims(t *testing.T) {
	mr, mirror := setupTestRedis(t, 3)
	defer mr.Close()
	defer mirror.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, mirror.Write(ctx, fmt.Sprintf("line %d", i)))
	}

	list, err := mr.List("godlike:activity")
	require.NoError(t, err)
	assert.Equal(t, []string{"line 2", "line 3", "line 4"}, list)
}

func TestRedisMirror_Check(t *testing.T) {
	mr, mirror := setupTestRedis(t, 10)
	defer mr.Close()

	assert.Equal(t, "redis", mirror.Name())
	assert.NoError(t, mirror.Check(context.Background()))

	require.NoError(t, mirror.Close())
	require.NoError(t, mirror.Close())
	assert.Error(t, mirror.Check(context.Background()))
	assert.Error(t, mirror.Write(context.Background(), "x"))
}

func TestRedisMirror_RequiresKey(t *testing.T) {
	_, err := NewRedisMirror(RedisConfig{Addr: "localhost:6379"}, nil)
	assert.Error(t, err)
}

func TestRedisMirror_ConnectFailure(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	_, err = NewRedisMirror(RedisConfig{Addr: addr, Key: "k"}, zap.NewNop())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to redis")
}

func TestSink_WithRedisMirror(t *testing.T) {
	mr, mirror := setupTestRedis(t, DefaultCapacity)
	defer mr.Close()

	s := New(DefaultConfig(), WithClock(fixedClock()), WithMirror(mirror))
	s.Add("[Bot-1] Starting...")
	s.Add("[Bot-1] Session finished. Closing.")
	require.NoError(t, s.Close(context.Background()))

	list, err := mr.List("godlike:activity")
	require.NoError(t, err)
	assert.Equal(t, s.Entries(), list)
}
