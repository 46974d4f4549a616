package relay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/lnrelay/errors"
)

// eclairServer accepts sockets on /ws when the Basic password matches and
// pushes the given frames before closing normally.
func eclairServer(t *testing.T, password string, frames ...string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "" || pass != password {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
		// Wait for the client to acknowledge the close
		_, _, _ = conn.ReadMessage()
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestWebsocketDialer_SendsBasicAuth(t *testing.T) {
	srv := eclairServer(t, "s3cret", `{"type":"payment-received"}`)

	link, err := BuildLink(srv.URL, "s3cret")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(link, "ws://:s3cret@"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := NewWebsocketDialer(nil, time.Second).Dial(ctx, link)
	require.NoError(t, err)
	defer conn.Close()

	messageType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, messageType)
	assert.JSONEq(t, `{"type":"payment-received"}`, string(data))

	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, isCloseError(err))
}

func TestWebsocketDialer_Unauthorized(t *testing.T) {
	srv := eclairServer(t, "s3cret")

	link, err := BuildLink(srv.URL, "wrong")
	require.NoError(t, err)

	_, err = NewWebsocketDialer(nil, time.Second).Dial(context.Background(), link)
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	assert.Contains(t, err.Error(), "HTTP 401")
	assert.NotContains(t, err.Error(), "wrong")
}

func TestWebsocketDialer_Cancelled(t *testing.T) {
	srv := eclairServer(t, "pw")
	link, err := BuildLink(srv.URL, "pw")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = NewWebsocketDialer(nil, time.Second).Dial(ctx, link)
	require.Error(t, err)
}

func TestSplitCredentials(t *testing.T) {
	target, headers, err := splitCredentials("wss://:pw@host:8080/ws")
	require.NoError(t, err)
	assert.Equal(t, "wss://host:8080/ws", target)

	req := &http.Request{Header: headers}
	user, pass, ok := req.BasicAuth()
	require.True(t, ok)
	assert.Empty(t, user)
	assert.Equal(t, "pw", pass)

	target, headers, err = splitCredentials("ws://host/ws")
	require.NoError(t, err)
	assert.Equal(t, "ws://host/ws", target)
	assert.Empty(t, headers.Get("Authorization"))
}

func TestSupervisor_RelaysFromWebsocketServer(t *testing.T) {
	srv := eclairServer(t, "pw", `{"type":"channel-state-changed"}`)

	n := eclairNode(1)
	n.ServerURL = srv.URL
	n.APIPassword = "pw"

	clock := &fakeClock{}
	disp := &recordingDispatcher{}
	sup, err := New(DefaultConfig(), newMapResolver(n), disp, WithAfterFunc(clock.AfterFunc))
	require.NoError(t, err)
	require.NoError(t, sup.Start(context.Background()))
	defer func() { _ = sup.Stop(5 * time.Second) }()

	require.NoError(t, sup.Connect(context.Background(), &n))

	require.Eventually(t, func() bool { return disp.eventCount() == 1 }, waitFor, tick)
	assert.JSONEq(t, `{"type":"channel-state-changed","source":"ECL"}`, string(disp.event(0).payload))

	// The server closes after its frames; the relay schedules a reconnect
	require.Eventually(t, func() bool { return clock.count() == 1 }, waitFor, tick)
	assert.Zero(t, disp.errorCount())
}
