package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSubscriberServer(t *testing.T, b *Broadcaster, sessionID string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			t.Logf("WebSocket accept error: %v", err)
			return
		}
		b.HandleSubscriber(r.Context(), sessionID, conn, 5*time.Second)
	}))
	t.Cleanup(server.Close)
	return server
}

func connectWS(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + server.URL[len("http"):]
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readText(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	return string(data)
}

func waitForSubscriber(t *testing.T, b *Broadcaster, sessionID string) {
	t.Helper()
	require.Eventually(t, func() bool { return b.HasSubscriber(sessionID) }, 5*time.Second, 5*time.Millisecond)
}

func TestHandleSubscriberPingPong(t *testing.T) {
	b := NewBroadcaster()
	server := setupSubscriberServer(t, b, "s-1")
	conn := connectWS(t, server)

	ctx := context.Background()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("ping")))
	assert.Equal(t, "pong", readText(t, conn))

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"action":"ping"}`)))
	assert.JSONEq(t, `{"type":"pong"}`, readText(t, conn))

	// Unknown messages are ignored; the next ping still works.
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("hello")))
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("ping")))
	assert.Equal(t, "pong", readText(t, conn))
}

func TestHandleSubscriberReceivesEvents(t *testing.T) {
	b := NewBroadcaster()
	server := setupSubscriberServer(t, b, "s-1")
	conn := connectWS(t, server)
	waitForSubscriber(t, b, "s-1")

	require.NoError(t, b.Publish(context.Background(), "s-1", StageStarted("s-1", "symptom_analyzer", "Clinical Analysis", testTime)))

	var ev Event
	require.NoError(t, json.Unmarshal([]byte(readText(t, conn)), &ev))
	assert.Equal(t, EventTypeStageStarted, ev.Type)
	assert.Equal(t, "symptom_analyzer", ev.StageName)
	assert.Equal(t, "Clinical Analysis", ev.Phase)
}

func TestHandleSubscriberSupersededConnectionIsClosed(t *testing.T) {
	b := NewBroadcaster()
	server := setupSubscriberServer(t, b, "s-1")

	first := connectWS(t, server)
	waitForSubscriber(t, b, "s-1")

	second := connectWS(t, server)

	// The first connection is closed by the server without any event.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := first.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))

	waitForSubscriber(t, b, "s-1")
	require.NoError(t, b.Publish(context.Background(), "s-1", StageStarted("s-1", "a", "A", testTime)))

	var ev Event
	require.NoError(t, json.Unmarshal([]byte(readText(t, second)), &ev))
	assert.Equal(t, "a", ev.StageName)
}

func TestHandleSubscriberDisconnectDetaches(t *testing.T) {
	b := NewBroadcaster()
	server := setupSubscriberServer(t, b, "s-1")

	conn := connectWS(t, server)
	waitForSubscriber(t, b, "s-1")

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))
	require.Eventually(t, func() bool { return !b.HasSubscriber("s-1") }, 5*time.Second, 5*time.Millisecond)
}
