package connection

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serve upgrades one request and hands the wrapped connection to fn.
func serve(t *testing.T, fn func(c *WebSocketConnection)) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fn(NewWebSocketConnection(ws, Options{MaxMessageSize: 64}))
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestWebSocketEcho(t *testing.T) {
	client := serve(t, func(c *WebSocketConnection) {
		defer c.Close("bye")
		frame, err := c.ReadFrame()
		if err != nil {
			return
		}
		_ = c.WriteFrame(append([]byte("echo:"), frame...))
	})

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("hi")))
	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "echo:hi", string(data))

	_, _, err = client.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseNormalClosure, closeErr.Code)
	assert.Equal(t, "bye", closeErr.Text)
}

func TestWebSocketRejectsBinaryFrames(t *testing.T) {
	errs := make(chan error, 1)
	client := serve(t, func(c *WebSocketConnection) {
		defer c.Close("")
		_, err := c.ReadFrame()
		errs <- err
	})

	require.NoError(t, client.WriteMessage(websocket.BinaryMessage, []byte{1, 2}))
	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrBinaryFrame)
	case <-time.After(2 * time.Second):
		t.Fatal("no read result")
	}
}

func TestWebSocketReadLimit(t *testing.T) {
	errs := make(chan error, 1)
	client := serve(t, func(c *WebSocketConnection) {
		defer c.Close("")
		_, err := c.ReadFrame()
		errs <- err
	})

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(strings.Repeat("x", 128))))
	select {
	case err := <-errs:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("no read result")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	done := make(chan struct{})
	serve(t, func(c *WebSocketConnection) {
		defer close(done)
		first := c.Close("")
		assert.Equal(t, first, c.Close(""))
	})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never ran")
	}
}

func TestPingPeriod(t *testing.T) {
	assert.Equal(t, 54*time.Second, PingPeriod(60*time.Second))
}
