// SPDX-License-Identifier: MIT
package transport

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"fractalwave/internal/log"
)

const (
	wsPath         = "/ws"
	wsWriteTimeout = time.Second
	wsClientQueue  = 4
)

// WebSocketTransport serves band frames as JSON to every client connected
// to /ws. Each client is rate limited independently; frames beyond a
// client's rate, or beyond its small send queue, are dropped for that
// client only.
type WebSocketTransport struct {
	addr     string
	maxRate  rate.Limit
	upgrader websocket.Upgrader
	log      *log.Logger

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool
	server  *http.Server

	wg sync.WaitGroup
}

type wsClient struct {
	conn    *websocket.Conn
	send    chan Frame
	limiter *rate.Limiter
	done    chan struct{}
	once    sync.Once
}

func (c *wsClient) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// NewWebSocketTransport creates a transport that serves on addr when Serve
// is called. maxRate is the per-client frame rate in frames per second.
func NewWebSocketTransport(addr string, maxRate float64) *WebSocketTransport {
	return &WebSocketTransport{
		addr:    addr,
		maxRate: rate.Limit(maxRate),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins
			},
		},
		log:     log.New("transport/websocket"),
		clients: make(map[*wsClient]struct{}),
	}
}

func (wst *WebSocketTransport) Name() string { return "websocket" }

// Handler returns the HTTP handler serving the WebSocket endpoint.
func (wst *WebSocketTransport) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(wsPath, wst.handleWebSocket)
	return mux
}

// Serve listens on the configured address until ctx is done.
func (wst *WebSocketTransport) Serve(ctx context.Context) error {
	wst.mu.Lock()
	if wst.closed {
		wst.mu.Unlock()
		return ErrClosed
	}
	server := &http.Server{
		Addr:              wst.addr,
		Handler:           wst.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	wst.server = server
	wst.mu.Unlock()

	go func() {
		<-ctx.Done()
		server.Close()
	}()

	wst.log.Infof("serving band frames on ws://%s%s", wst.addr, wsPath)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// handleWebSocket upgrades HTTP connections to WebSocket
func (wst *WebSocketTransport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wst.upgrader.Upgrade(w, r, nil)
	if err != nil {
		wst.log.Warnf("upgrade error: %v", err)
		return
	}

	c := &wsClient{
		conn:    conn,
		send:    make(chan Frame, wsClientQueue),
		limiter: rate.NewLimiter(wst.maxRate, 1),
		done:    make(chan struct{}),
	}

	wst.mu.Lock()
	if wst.closed {
		wst.mu.Unlock()
		conn.Close()
		return
	}
	wst.clients[c] = struct{}{}
	total := len(wst.clients)
	wst.wg.Add(2)
	wst.mu.Unlock()
	wst.log.Infof("client connected from %s, total: %d", conn.RemoteAddr(), total)

	go wst.writeLoop(c)
	go wst.readLoop(c)
}

// readLoop discards client messages and unregisters the client when the
// connection ends.
func (wst *WebSocketTransport) readLoop(c *wsClient) {
	defer wst.wg.Done()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			wst.remove(c)
			return
		}
	}
}

func (wst *WebSocketTransport) writeLoop(c *wsClient) {
	defer wst.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case f := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteJSON(f); err != nil {
				wst.log.Debugf("error sending to client: %v", err)
				wst.remove(c)
				return
			}
		}
	}
}

func (wst *WebSocketTransport) remove(c *wsClient) {
	wst.mu.Lock()
	_, ok := wst.clients[c]
	delete(wst.clients, c)
	total := len(wst.clients)
	wst.mu.Unlock()

	c.close()
	if ok {
		wst.log.Infof("client disconnected, total: %d", total)
	}
}

// Clients returns the number of connected clients.
func (wst *WebSocketTransport) Clients() int {
	wst.mu.Lock()
	defer wst.mu.Unlock()
	return len(wst.clients)
}

// Send queues f for every client whose rate allows it. It never blocks.
func (wst *WebSocketTransport) Send(f Frame) error {
	wst.mu.Lock()
	defer wst.mu.Unlock()
	if wst.closed {
		return ErrClosed
	}
	for c := range wst.clients {
		if !c.limiter.Allow() {
			continue
		}
		select {
		case c.send <- f:
		default:
			// Slow client, drop the frame.
		}
	}
	return nil
}

// Close disconnects every client and shuts down the server.
func (wst *WebSocketTransport) Close() error {
	wst.mu.Lock()
	if wst.closed {
		wst.mu.Unlock()
		return nil
	}
	wst.closed = true
	clients := wst.clients
	wst.clients = make(map[*wsClient]struct{})
	server := wst.server
	wst.mu.Unlock()

	for c := range clients {
		c.close()
	}
	var err error
	if server != nil {
		err = server.Close()
	}
	wst.wg.Wait()
	return err
}

// Ensure WebSocketTransport satisfies the interface
var _ Transport = (*WebSocketTransport)(nil)
