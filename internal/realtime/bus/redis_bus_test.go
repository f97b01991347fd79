package bus

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/vidrag-backend/internal/pkg/logger"
	"github.com/yungbote/vidrag-backend/internal/realtime"
)

func TestEncodeDecode(t *testing.T) {
	raw, err := encode(realtime.SSEMessage{Channel: "profile:x", Event: realtime.SSEEventVideoStatusChanged, Data: map[string]string{"status": "READY"}})
	require.NoError(t, err)
	msg, err := decode(string(raw))
	require.NoError(t, err)
	assert.Equal(t, "profile:x", msg.Channel)
	assert.Equal(t, map[string]any{"status": "READY"}, msg.Data)

	_, err = encode(realtime.SSEMessage{Event: realtime.SSEEventVideoStatusChanged})
	assert.Error(t, err)
	_, err = decode(`{"channel":"c"}`)
	assert.Error(t, err)
	_, err = decode(`not json`)
	assert.Error(t, err)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("REDIS_CHANNEL", "")
	cfg := ConfigFromEnv(Config{})
	assert.False(t, cfg.Enabled())
	assert.Equal(t, "vidrag:sse", cfg.Channel)

	_, err := NewRedisBus(logger.Nop(), cfg)
	assert.Error(t, err)
}

// Runs against a live server when TEST_REDIS_ADDR is set.
func TestRedisBusRoundTrip(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis integration tests")
	}
	b, err := NewRedisBus(logger.Nop(), Config{Addr: addr, Channel: "vidrag:test"})
	require.NoError(t, err)
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got := make(chan realtime.SSEMessage, 1)
	require.NoError(t, b.StartForwarder(ctx, func(m realtime.SSEMessage) { got <- m }))
	require.NoError(t, b.Publish(ctx, realtime.SSEMessage{Channel: "profile:p", Event: realtime.SSEEventVideoStatusChanged}))

	select {
	case m := <-got:
		assert.Equal(t, "profile:p", m.Channel)
	case <-ctx.Done():
		t.Fatal("no message forwarded")
	}
}
