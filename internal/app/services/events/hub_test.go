package events

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seanotes/seanotes/internal/logging"
	"github.com/seanotes/seanotes/internal/metrics"
)

func receive(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.C:
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestHubPublishesToAllConnectionsOfUser(t *testing.T) {
	hub := NewHub(logging.NewDiscard(), metrics.New())
	tab1 := hub.Subscribe("u1")
	tab2 := hub.Subscribe("u1")
	other := hub.Subscribe("u2")

	assert.Equal(t, 3, hub.ConnectionCount())
	assert.Equal(t, 2, hub.Publish("u1", NewEvent(TypeTitleUpdated, map[string]string{"noteId": "1"})))

	assert.Equal(t, TypeTitleUpdated, receive(t, tab1).Type)
	assert.Equal(t, TypeTitleUpdated, receive(t, tab2).Type)
	select {
	case ev := <-other.C:
		t.Fatalf("unexpected event for other user: %+v", ev)
	default:
	}
}

func TestHubDropsEventsForSlowSubscriber(t *testing.T) {
	hub := NewHub(logging.NewDiscard(), nil)
	sub := hub.Subscribe("u1")

	for i := 0; i < subscriberBuffer; i++ {
		require.Equal(t, 1, hub.Publish("u1", NewEvent(TypePing, nil)))
	}
	assert.Equal(t, 0, hub.Publish("u1", NewEvent(TypePing, nil)))
	assert.Len(t, sub.C, subscriberBuffer)
}

func TestHubUnsubscribeAndClose(t *testing.T) {
	hub := NewHub(logging.NewDiscard(), nil)
	a := hub.Subscribe("u1")
	b := hub.Subscribe("u2")

	hub.Unsubscribe(a)
	hub.Unsubscribe(a)
	_, ok := <-a.C
	assert.False(t, ok)
	assert.False(t, hub.HasConnection("u1"))

	hub.Close()
	_, ok = <-b.C
	assert.False(t, ok)
	assert.Nil(t, hub.Subscribe("u3"))
	assert.Equal(t, 0, hub.ConnectionCount())
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub(logging.NewDiscard(), nil)
	a := hub.Subscribe("u1")
	b := hub.Subscribe("u2")

	assert.Equal(t, 2, hub.Broadcast(NewEvent(TypePing, nil)))
	assert.Equal(t, TypePing, receive(t, a).Type)
	assert.Equal(t, TypePing, receive(t, b).Type)
}

func TestHelpersShapePayload(t *testing.T) {
	hub := NewHub(logging.NewDiscard(), nil)
	sub := hub.Subscribe("u1")

	hub.NameUpdated("u1", "env-1", "Staging")
	ev := receive(t, sub)
	assert.Equal(t, TypeNameUpdated, ev.Type)
	assert.NotZero(t, ev.Timestamp)
	assert.Equal(t, map[string]string{"environmentId": "env-1", "name": "Staging", "userId": "u1"}, ev.Data)
}

func TestServeSSE(t *testing.T) {
	hub := NewHub(logging.NewDiscard(), nil)
	handler := NewHandler(hub, 50*time.Millisecond, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeSSE(w, r, "u1")
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	next := func() Event {
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if strings.HasPrefix(line, "data: ") {
				var ev Event
				require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &ev))
				return ev
			}
		}
	}

	assert.Equal(t, TypeConnected, next().Type)
	require.Eventually(t, func() bool { return hub.HasConnection("u1") }, time.Second, 5*time.Millisecond)

	hub.TitleUpdated("u1", "n1", "Groceries")
	for {
		ev := next()
		if ev.Type == TypePing {
			continue
		}
		assert.Equal(t, TypeTitleUpdated, ev.Type)
		break
	}
	assert.Equal(t, TypePing, next().Type)
}

func TestServeWebSocket(t *testing.T) {
	hub := NewHub(logging.NewDiscard(), nil)
	handler := NewHandler(hub, time.Minute, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeWebSocket(w, r, "u1")
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, TypeConnected, ev.Type)

	require.Eventually(t, func() bool { return hub.HasConnection("u1") }, time.Second, 5*time.Millisecond)
	hub.SummaryUpdated("u1", "n1", "Short summary")

	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, TypeSummaryUpdated, ev.Type)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return !hub.HasConnection("u1") }, time.Second, 5*time.Millisecond)
}
