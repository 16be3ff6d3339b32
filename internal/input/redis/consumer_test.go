package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConsumerRequiresKey(t *testing.T) {
	_, err := NewConsumer(Config{Addr: "127.0.0.1:6379"})
	assert.Error(t, err)
}

func TestConsumerPushPop(t *testing.T) {
	addr := os.Getenv("OPSMEMORY_REDIS_ADDR")
	if addr == "" {
		t.Skip("OPSMEMORY_REDIS_ADDR not set")
	}
	c, err := NewConsumer(Config{Addr: addr, Key: "opsmemory-test:events:" + uuid.NewString(), BlockTimeout: 100 * time.Millisecond})
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.Push(ctx, []byte(`{"id":"a"}`), []byte(`{"id":"b"}`)))

	first, err := c.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"id":"a"}`, string(first))
	second, err := c.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"id":"b"}`, string(second))

	empty, err := c.Pop(ctx)
	require.NoError(t, err)
	assert.Nil(t, empty)
}
