package events

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestHub_PublishSubscribe(t *testing.T) {
	hub := NewHub(4)
	sub, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	hub.Publish(Event{Type: TypeRunStarted, RunID: "r1"})

	select {
	case ev := <-sub:
		assert.Equal(t, TypeRunStarted, ev.Type)
		assert.Equal(t, "r1", ev.RunID)
		assert.False(t, ev.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestHub_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	hub := NewHub(1)
	_, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	for range 5 {
		hub.Publish(Event{Type: TypeTestFinished})
	}
	assert.Equal(t, uint64(4), hub.Dropped())
}

func TestHub_UnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub(1)
	sub, unsubscribe := hub.Subscribe()
	assert.Equal(t, 1, hub.Subscribers())

	unsubscribe()
	unsubscribe()
	_, ok := <-sub
	assert.False(t, ok)
	assert.Zero(t, hub.Subscribers())
}

func TestHub_Close(t *testing.T) {
	hub := NewHub(1)
	sub, unsubscribe := hub.Subscribe()
	hub.Close()
	_, ok := <-sub
	assert.False(t, ok)
	unsubscribe()

	late, _ := hub.Subscribe()
	_, ok = <-late
	assert.False(t, ok)
}

func TestHub_NilPublishIsNoop(t *testing.T) {
	var hub *Hub
	assert.NotPanics(t, func() { hub.Publish(Event{Type: TypeRunFinished}) })
}

func TestHandler_StreamsEvents(t *testing.T) {
	hub := NewHub(8)
	srv := httptest.NewServer(NewHandler(hub, nil, nil))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?type=" + TypeRunFinished
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	hub.Publish(Event{Type: TypeRunStarted, RunID: "skipped"})
	hub.Publish(Event{Type: TypeRunFinished, RunID: "r1", Data: map[string]any{"status": "passed"}})

	var got Event
	require.NoError(t, wsjson.Read(ctx, conn, &got))
	assert.Equal(t, TypeRunFinished, got.Type)
	assert.Equal(t, "r1", got.RunID)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))
	assert.Eventually(t, func() bool { return hub.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
}
