// SPDX-License-Identifier: MIT
package transport

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialTestServer(t *testing.T, wst *WebSocketTransport) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(wst.Handler())
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + wsPath
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return wst.Clients() == 1 }, 2*time.Second, time.Millisecond)
	return conn
}

func TestWebSocketDeliversJSONFrames(t *testing.T) {
	wst := NewWebSocketTransport("", 1000)
	t.Cleanup(func() { wst.Close() })
	conn := dialTestServer(t, wst)

	sent := Frame{Seq: 7, Timestamp: 1234, Bands: []float32{0.25, 1.5}}
	require.NoError(t, wst.Send(sent))

	var got Frame
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, sent, got)
}

func TestWebSocketRateLimitsPerClient(t *testing.T) {
	wst := NewWebSocketTransport("", 1) // one frame per second, burst 1
	t.Cleanup(func() { wst.Close() })
	conn := dialTestServer(t, wst)

	for i := range 5 {
		require.NoError(t, wst.Send(Frame{Seq: uint32(i + 1)}))
	}

	var got Frame
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, uint32(1), got.Seq)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	assert.Error(t, conn.ReadJSON(&got), "frames over the rate must be dropped")
}

func TestWebSocketClientDisconnect(t *testing.T) {
	wst := NewWebSocketTransport("", 1000)
	t.Cleanup(func() { wst.Close() })
	conn := dialTestServer(t, wst)

	conn.Close()
	assert.Eventually(t, func() bool { return wst.Clients() == 0 }, 2*time.Second, time.Millisecond)
}

func TestWebSocketClose(t *testing.T) {
	wst := NewWebSocketTransport("", 1000)
	conn := dialTestServer(t, wst)

	require.NoError(t, wst.Close())
	assert.Zero(t, wst.Clients())
	assert.ErrorIs(t, wst.Send(Frame{}), ErrClosed)
	require.NoError(t, wst.Close())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "server side must have closed the connection")
}
