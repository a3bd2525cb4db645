// SPDX-License-Identifier: MIT
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"pulse/internal/analysis"
	applog "pulse/internal/log"

	"github.com/gorilla/websocket"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("transport closed")

const writeTimeout = time.Second

// WebSocketTransport broadcasts snapshots as JSON to every client connected
// on /ws. Snapshots arriving faster than minInterval, or while the
// broadcast queue is full, are dropped.
type WebSocketTransport struct {
	addr        string
	minInterval time.Duration
	upgrader    websocket.Upgrader

	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex

	broadcast chan Message
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	server    *http.Server

	mu       sync.Mutex
	seq      uint64
	lastSent time.Time
	meter    *analysis.BandMeter
	levels   []float64
}

var _ Transport = (*WebSocketTransport)(nil)

// NewWebSocketTransport creates the transport and its broadcast loop. Call
// Start to listen on addr, or mount Handler on an existing server.
func NewWebSocketTransport(addr string, minInterval time.Duration) *WebSocketTransport {
	wst := &WebSocketTransport{
		addr:        addr,
		minInterval: minInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Scene clients are served from anywhere.
			},
		},
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Message, 64),
		done:      make(chan struct{}),
	}

	wst.wg.Add(1)
	go wst.handleBroadcasts()
	return wst
}

// Handler returns the /ws upgrade handler.
func (wst *WebSocketTransport) Handler() http.Handler {
	return http.HandlerFunc(wst.handleWebSocket)
}

// Start binds the configured address and serves /ws in the background. A
// bind failure, such as the port already being taken, is returned.
func (wst *WebSocketTransport) Start() error {
	ln, err := net.Listen("tcp", wst.addr)
	if err != nil {
		return fmt.Errorf("websocket: listening on %s: %w", wst.addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", wst.Handler())
	wst.server = &http.Server{
		Addr:              wst.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	applog.Infof("WebSocket: Serving snapshots on ws://%s/ws", ln.Addr())
	go func() {
		if err := wst.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			applog.Errorf("WebSocket: Server error: %v", err)
		}
	}()
	return nil
}

func (wst *WebSocketTransport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wst.upgrader.Upgrade(w, r, nil)
	if err != nil {
		applog.Warnf("WebSocket: Upgrade error: %v", err)
		return
	}

	wst.clientsMu.Lock()
	select {
	case <-wst.done:
		wst.clientsMu.Unlock()
		_ = conn.Close()
		return
	default:
	}
	wst.clients[conn] = true
	total := len(wst.clients)
	wst.clientsMu.Unlock()
	applog.Infof("WebSocket: Client connected, total: %d", total)

	// Reads only detect disconnects; clients never send data.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				wst.drop(conn)
				return
			}
		}
	}()
}

func (wst *WebSocketTransport) drop(conn *websocket.Conn) {
	wst.clientsMu.Lock()
	_, ok := wst.clients[conn]
	delete(wst.clients, conn)
	total := len(wst.clients)
	wst.clientsMu.Unlock()
	if ok {
		_ = conn.Close()
		applog.Infof("WebSocket: Client disconnected, total: %d", total)
	}
}

func (wst *WebSocketTransport) handleBroadcasts() {
	defer wst.wg.Done()
	for {
		select {
		case <-wst.done:
			return
		case msg := <-wst.broadcast:
			wst.clientsMu.Lock()
			for client := range wst.clients {
				_ = client.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := client.WriteJSON(msg); err != nil {
					applog.Warnf("WebSocket: Error sending to client: %v", err)
					_ = client.Close()
					delete(wst.clients, client)
				}
			}
			wst.clientsMu.Unlock()
		}
	}
}

// Send queues snap for broadcast.
func (wst *WebSocketTransport) Send(snap analysis.Snapshot) error {
	select {
	case <-wst.done:
		return ErrClosed
	default:
	}

	now := time.Now()
	wst.mu.Lock()
	if !wst.lastSent.IsZero() && now.Sub(wst.lastSent) < wst.minInterval {
		wst.mu.Unlock()
		return nil
	}
	wst.lastSent = now
	wst.seq++
	msg := NewMessage(wst.seq, snap, now)
	if wst.meter != nil {
		wst.levels = wst.meter.Levels(snap, wst.levels)
		msg.Bands = make(map[string]float64, len(wst.levels))
		for i, name := range wst.meter.Names() {
			msg.Bands[name] = wst.levels[i]
		}
	}
	wst.mu.Unlock()

	select {
	case wst.broadcast <- msg:
	default:
		// Queue full; scene clients only want the newest state.
	}
	return nil
}

// SetBandMeter adds band levels to every message sent after the call.
func (wst *WebSocketTransport) SetBandMeter(m *analysis.BandMeter) {
	wst.mu.Lock()
	defer wst.mu.Unlock()
	wst.meter = m
}

// Clients returns the number of connected clients.
func (wst *WebSocketTransport) Clients() int {
	wst.clientsMu.Lock()
	defer wst.clientsMu.Unlock()
	return len(wst.clients)
}

// Close disconnects every client and stops the server. Later calls do
// nothing.
func (wst *WebSocketTransport) Close() error {
	var err error
	wst.closeOnce.Do(func() {
		applog.Info("WebSocket: Closing server")
		close(wst.done)
		wst.wg.Wait()

		wst.clientsMu.Lock()
		for client := range wst.clients {
			_ = client.Close()
		}
		wst.clients = make(map[*websocket.Conn]bool)
		wst.clientsMu.Unlock()

		if wst.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			err = wst.server.Shutdown(ctx)
		}
	})
	return err
}
