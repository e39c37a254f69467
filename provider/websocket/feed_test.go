package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// fakeFeed is a websocket server speaking the feed protocol. Snapshot
// requests are answered from snapshots; an unknown symbol gets no answer.
type fakeFeed struct {
	t      *testing.T
	server *httptest.Server

	mu        sync.Mutex
	conn      *websocket.Conn
	requests  []Request
	snapshots map[string]string
	rejects   map[string]string
	connected chan struct{}
}

func newFakeFeed(t *testing.T) *fakeFeed {
	f := &fakeFeed{
		t:         t,
		snapshots: make(map[string]string),
		rejects:   make(map[string]string),
		connected: make(chan struct{}),
	}
	upgrader := websocket.Upgrader{}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		f.mu.Lock()
		f.conn = conn
		f.mu.Unlock()
		close(f.connected)
		f.serve(conn)
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeFeed) url() string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http")
}

func (f *fakeFeed) serve(conn *websocket.Conn) {
	for {
		var req Request
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		f.mu.Lock()
		f.requests = append(f.requests, req)
		f.mu.Unlock()

		symbol := ""
		if len(req.Params) > 0 {
			symbol = req.Params[0]
		}

		switch req.Method {
		case methodSnapshot:
			f.mu.Lock()
			snap, ok := f.snapshots[symbol]
			reason, rejected := f.rejects[symbol]
			f.mu.Unlock()
			if rejected {
				_ = f.write(Frame{ID: req.ID, Error: reason})
			} else if ok {
				_ = f.write(Frame{ID: req.ID, Result: json.RawMessage(snap)})
			}
		case methodRecap:
			_ = f.write(Frame{Stream: symbol, Data: json.RawMessage(
				`{"type":"RECAP","seq":1,"symbol":"` + symbol + `","fields":{"bid_price":"10"}}`)})
		}
	}
}

func (f *fakeFeed) write(frame Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conn.WriteJSON(frame)
}

func (f *fakeFeed) push(stream, data string) {
	require.NoError(f.t, f.write(Frame{Stream: stream, Data: json.RawMessage(data)}))
}

func (f *fakeFeed) setSnapshot(symbol, data string) {
	f.mu.Lock()
	f.snapshots[symbol] = data
	f.mu.Unlock()
}

func (f *fakeFeed) reject(symbol, reason string) {
	f.mu.Lock()
	f.rejects[symbol] = reason
	f.mu.Unlock()
}

func (f *fakeFeed) methods(method string) []Request {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []Request
	for _, r := range f.requests {
		if r.Method == method {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakeFeed) waitFor(method string, n int) []Request {
	var got []Request
	require.Eventually(f.t, func() bool {
		got = f.methods(method)
		return len(got) >= n
	}, time.Second, 5*time.Millisecond)
	return got
}

func connect(t *testing.T, f *fakeFeed) *StreamClient {
	c := NewStreamClient(f.url(), nil)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { c.Close() })
	<-f.connected
	return c
}
