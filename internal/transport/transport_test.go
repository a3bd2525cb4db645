// SPDX-License-Identifier: MIT
package transport

import (
	"errors"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pulse/internal/analysis"

	"github.com/gorilla/websocket"
)

type recordingTransport struct {
	sent    []analysis.Snapshot
	sendErr error
	closed  int
}

func (r *recordingTransport) Send(snap analysis.Snapshot) error {
	r.sent = append(r.sent, append(analysis.Snapshot(nil), snap...))
	return r.sendErr
}

func (r *recordingTransport) Close() error {
	r.closed++
	return nil
}

func TestMultiFansOut(t *testing.T) {
	a := &recordingTransport{}
	b := &recordingTransport{sendErr: errors.New("b failed")}
	m := NewMulti(a, nil, b)
	if m.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", m.Len())
	}

	err := m.Send(analysis.Snapshot{1, 2, 3})
	if err == nil || !strings.Contains(err.Error(), "b failed") {
		t.Errorf("Send error = %v", err)
	}
	if len(a.sent) != 1 || len(b.sent) != 1 {
		t.Errorf("sent a=%d b=%d, want 1 each", len(a.sent), len(b.sent))
	}

	_ = m.Close()
	_ = m.Close()
	if a.closed != 1 || b.closed != 1 {
		t.Errorf("closed a=%d b=%d, want 1 each", a.closed, b.closed)
	}
}

func TestLoggingTransport(t *testing.T) {
	lt := NewLoggingTransport(0)
	for range 5 {
		if err := lt.Send(analysis.Snapshot{1}); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}
	if lt.Count() != 5 {
		t.Errorf("Count() = %d, want 5", lt.Count())
	}
	if err := lt.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestNewMessageCopiesBins(t *testing.T) {
	snap := analysis.Snapshot{0, 128, 255}
	at := time.UnixMilli(1700000000123)
	msg := NewMessage(7, snap, at)
	snap[0] = 9
	if msg.Type != "snapshot" || msg.Seq != 7 || msg.Timestamp != 1700000000123 {
		t.Errorf("unexpected header %+v", msg)
	}
	if msg.Bins[0] != 0 || msg.Bins[2] != 255 {
		t.Errorf("bins = %v", msg.Bins)
	}
}

func dialWebSocket(t *testing.T, wst *WebSocketTransport) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(wst.Handler())
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for wst.Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if wst.Clients() != 1 {
		t.Fatalf("Clients() = %d, want 1", wst.Clients())
	}
	return conn
}

func TestWebSocketBroadcast(t *testing.T) {
	wst := NewWebSocketTransport("", 0)
	defer wst.Close()
	conn := dialWebSocket(t, wst)

	if err := wst.Send(analysis.Snapshot{10, 20, 30}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if msg.Seq != 1 || len(msg.Bins) != 3 || msg.Bins[1] != 20 {
		t.Errorf("unexpected message %+v", msg)
	}
}

func TestWebSocketBandLevels(t *testing.T) {
	wst := NewWebSocketTransport("", 0)
	defer wst.Close()
	bands := []analysis.Band{
		{Name: "low", LowHz: 0, HighHz: 100},
		{Name: "high", LowHz: 100, HighHz: 1000},
	}
	wst.SetBandMeter(analysis.NewBandMeter(bands, 2, func(i int) float64 { return float64(i) * 200 }))
	conn := dialWebSocket(t, wst)

	if err := wst.Send(analysis.Snapshot{255, 0}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if msg.Bands["low"] != 1 || msg.Bands["high"] != 0 {
		t.Errorf("bands = %v", msg.Bands)
	}
}

func TestWebSocketRateLimit(t *testing.T) {
	wst := NewWebSocketTransport("", time.Hour)
	defer wst.Close()
	conn := dialWebSocket(t, wst)

	_ = wst.Send(analysis.Snapshot{1})
	_ = wst.Send(analysis.Snapshot{2})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if msg.Bins[0] != 1 {
		t.Errorf("first message bins = %v", msg.Bins)
	}

	_ = conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if err := conn.ReadJSON(&msg); err == nil {
		t.Errorf("rate-limited snapshot was delivered: %+v", msg)
	}
}

func TestWebSocketClose(t *testing.T) {
	wst := NewWebSocketTransport("", 0)
	conn := dialWebSocket(t, wst)

	if err := wst.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := wst.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if !errors.Is(wst.Send(analysis.Snapshot{1}), ErrClosed) {
		t.Error("Send after Close should fail")
	}
	if wst.Clients() != 0 {
		t.Errorf("Clients() = %d after Close", wst.Clients())
	}

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("client connection should be closed")
	}
}

func TestWebSocketStartReportsBusyAddress(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	wst := NewWebSocketTransport(ln.Addr().String(), 0)
	defer wst.Close()
	if err := wst.Start(); err == nil {
		t.Fatal("Start on a port in use should fail")
	}

	free := NewWebSocketTransport("127.0.0.1:0", 0)
	if err := free.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := free.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
