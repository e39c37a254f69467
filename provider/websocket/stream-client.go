// Package websocket is the JSON websocket feed adapter: one connection
// carries topic streams and request/response traffic.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/spooky-finn/go-marketdata-checker/domain"
	"github.com/spooky-finn/go-marketdata-checker/provider"
)

const (
	handshakeTimeout = 5 * time.Second
	streamBuffer     = 64
)

var (
	ErrTimeout      = errors.New("request timed out")
	ErrClosed       = errors.New("connection closed")
	ErrNotConnected = errors.New("connection is not established")
)

// ResponseError is an error reported by the feed for a request.
type ResponseError struct {
	Method string
	Reason string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s rejected: %s", e.Method, e.Reason)
}

// StreamClient owns one websocket connection. Topic subscriptions are
// reference counted: the feed sees SUBSCRIBE for the first subscriber and
// UNSUBSCRIBE after the last one leaves.
type StreamClient struct {
	url    string
	dialer *websocket.Dialer
	logger *slog.Logger

	conn    *websocket.Conn
	writeMu sync.Mutex

	topics *provider.Fanout[[]byte]

	pendingMu sync.Mutex
	pending   map[string]chan Frame

	done      chan struct{}
	closeOnce sync.Once
}

func NewStreamClient(url string, logger *slog.Logger) *StreamClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamClient{
		url: url,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
		logger:  logger.With("component", "stream-client"),
		topics:  provider.NewFanout[[]byte](streamBuffer),
		pending: make(map[string]chan Frame),
		done:    make(chan struct{}),
	}
}

func (c *StreamClient) Connect(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}
	c.conn = conn
	c.logger.Info("connected", "url", c.url)

	go c.read()
	return nil
}

func (c *StreamClient) Subscribe(topic string) (*domain.Subscription[[]byte], error) {
	if c.conn == nil {
		return nil, ErrNotConnected
	}

	sub, first := c.topics.Subscribe(topic, func() {
		c.logger.Info("unsubscribing", "topic", topic)
		if err := c.Send("UNSUBSCRIBE", topic); err != nil {
			c.logger.Warn("unsubscribe_failed", "topic", topic, "error", err)
		}
	})

	if first {
		c.logger.Info("subscribing", "topic", topic)
		if err := c.Send("SUBSCRIBE", topic); err != nil {
			sub.Unsubscribe()
			return nil, fmt.Errorf("subscribe %s: %w", topic, err)
		}
	}
	return sub, nil
}

// Send writes a request without waiting for its response.
func (c *StreamClient) Send(method string, params ...string) error {
	return c.writeRequest(Request{ID: uuid.NewString(), Method: method, Params: params})
}

// Request writes a request and waits for the response carrying its id.
func (c *StreamClient) Request(ctx context.Context, method string, params ...string) (json.RawMessage, error) {
	id := uuid.NewString()
	wait := make(chan Frame, 1)

	c.pendingMu.Lock()
	c.pending[id] = wait
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	if err := c.writeRequest(Request{ID: id, Method: method, Params: params}); err != nil {
		return nil, err
	}

	select {
	case frame := <-wait:
		if frame.Error != "" {
			return nil, &ResponseError{Method: method, Reason: frame.Error}
		}
		return frame.Result, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s %v: %w", ErrTimeout, method, params, ctx.Err())
	case <-c.done:
		return nil, ErrClosed
	}
}

func (c *StreamClient) writeRequest(req Request) error {
	if c.conn == nil {
		return ErrNotConnected
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(req)
}

// Done is closed once the connection is gone.
func (c *StreamClient) Done() <-chan struct{} {
	return c.done
}

func (c *StreamClient) Close() error {
	if c.conn == nil {
		return nil
	}
	c.shutdown()
	return c.conn.Close()
}

func (c *StreamClient) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.topics.Close()
	})
}

func (c *StreamClient) read() {
	defer c.shutdown()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Error("read_failed", "error", err)
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logger.Warn("bad_frame", "error", err, "frame", string(data))
			continue
		}

		switch {
		case frame.ID != "":
			c.pendingMu.Lock()
			wait, ok := c.pending[frame.ID]
			c.pendingMu.Unlock()
			if !ok {
				if frame.Error != "" {
					c.logger.Warn("request_rejected", "id", frame.ID, "reason", frame.Error)
				}
				continue
			}
			select {
			case wait <- frame:
			default:
			}
		case frame.Stream != "":
			c.topics.Publish(frame.Stream, frame.Data)
		}
	}
}
