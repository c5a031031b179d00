package pubsub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageMapping_RoundTripsFields(t *testing.T) {
	msg := Message{
		Topic:    "ws.data.direct",
		UserID:   "u1",
		Payload:  []byte(`{"a":1}`),
		Metadata: map[string]string{"trace": "t-1"},
	}

	back := mapToPubSubMessage(mapToWatermillMessage(msg))

	assert.Equal(t, msg.Topic, back.Topic)
	assert.Equal(t, msg.UserID, back.UserID)
	assert.Equal(t, msg.Payload, back.Payload)
	assert.Equal(t, "t-1", back.Metadata["trace"])
	assert.Equal(t, "u1", back.Metadata[metaKeyUserID])
	assert.NotContains(t, back.Metadata, metaKeyTopic)
}

func TestWatermillBridge_DeliversInPublishOrder(t *testing.T) {
	bridge := NewWatermillBridge(nil)
	defer bridge.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []string
	require.NoError(t, bridge.Subscribe(ctx, "test.topic", func(ctx context.Context, msg Message) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, string(msg.Payload))
		return nil
	}))

	for _, p := range []string{"1", "2", "3", "4"} {
		require.NoError(t, bridge.Publish(ctx, Message{Topic: "test.topic", Payload: []byte(p)}))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 4
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"1", "2", "3", "4"}, got)
}

func TestWatermillBridge_HandlerErrorDoesNotRedeliver(t *testing.T) {
	bridge := NewWatermillBridge(nil)
	defer bridge.Close()
	ctx := context.Background()

	var mu sync.Mutex
	calls := 0
	require.NoError(t, bridge.Subscribe(ctx, "failing", func(ctx context.Context, msg Message) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return errors.New("boom")
	}))

	require.NoError(t, bridge.Publish(ctx, Message{Topic: "failing", Payload: []byte("x")}))
	require.NoError(t, bridge.Publish(ctx, Message{Topic: "failing", Payload: []byte("y")}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 2
	}, time.Second, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, calls)
}

func TestTypedEvent_PublishAndSubscribe(t *testing.T) {
	type greeting struct {
		To string `json:"to"`
	}
	event := NewEvent[greeting]("test.greeting", "a greeting")
	assert.Equal(t, "test.greeting", event.Name())

	bridge := NewWatermillBridge(nil)
	defer bridge.Close()
	ctx := context.Background()

	received := make(chan greeting, 1)
	require.NoError(t, Subscribe(ctx, bridge, event, func(ctx context.Context, g greeting) error {
		received <- g
		return nil
	}))
	require.NoError(t, Publish(ctx, bridge, event, greeting{To: "bob"}))

	select {
	case g := <-received:
		assert.Equal(t, "bob", g.To)
	case <-time.After(time.Second):
		t.Fatal("typed event not delivered")
	}
}
