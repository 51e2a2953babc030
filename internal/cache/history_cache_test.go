package cache

import (
	"context"
	"os"
	"testing"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transcript-assistant/internal/model"
)

func TestKeysAreScopedPerConversation(t *testing.T) {
	c := NewHistoryCache(nil, 0, 0)
	assert.Equal(t, "transcript-assistant:conversation:7:history", c.historyKey(7))
	assert.Equal(t, "transcript-assistant:conversation:7:dirty", c.dirtyKey(7))
	assert.Equal(t, DefaultHistoryTTL, c.historyTTL)
}

func TestHistoryCacheRoundTrip(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set, skipping redis cache test")
	}
	client := redisv9.NewClient(&redisv9.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	c := NewHistoryCache(client, time.Minute, time.Second)
	id := uint(time.Now().UnixNano() % 1_000_000)
	t.Cleanup(func() { _ = c.DeleteHistory(ctx, id) })

	_, hit, err := c.GetHistory(ctx, id)
	require.NoError(t, err)
	assert.False(t, hit)

	msgs := []model.Message{{ConversationID: id, Role: "user", Content: "seller note?"}}
	require.NoError(t, c.SetHistory(ctx, id, msgs))
	got, hit, err := c.GetHistory(ctx, id)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "seller note?", got[0].Content)

	require.NoError(t, c.MarkDirty(ctx, id))
	dirty, err := c.IsDirty(ctx, id)
	require.NoError(t, err)
	assert.True(t, dirty)
}
