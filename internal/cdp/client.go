// Package cdp implements a minimal Chrome DevTools Protocol client for the
// Node.js inspector: id-matched request/response over a websocket, plus
// out-of-band protocol events decoded into typed values on a channel.
//
// The read pump starts before any domain is enabled, so no event emitted
// after Debugger.enable/Runtime.enable can be lost between subscription and
// enablement.
package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
)

// eventBuffer sizes the event channel. The session drains it promptly; the
// buffer only absorbs bursts around a pause.
const eventBuffer = 64

type response struct {
	result json.RawMessage
	err    *ProtocolError
}

// Client is one inspector connection. Safe for concurrent Call use; Events
// must be consumed by a single reader.
type Client struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	mu      sync.Mutex
	nextID  atomic.Int64
	pending map[int64]chan response

	events chan Event
	closed atomic.Bool
	done   chan struct{}
}

// Dial discovers the websocket endpoint on 127.0.0.1:port and connects to it.
// The event pump is running before Dial returns.
func Dial(ctx context.Context, port int) (*Client, error) {
	wsURL, err := DiscoverTarget(ctx, "127.0.0.1", port)
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial inspector %s: %w", wsURL, err)
	}
	c := &Client{
		conn:    conn,
		pending: make(map[int64]chan response),
		events:  make(chan Event, eventBuffer),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Events returns the typed event stream. The channel is closed when the
// connection ends.
func (c *Client) Events() <-chan Event { return c.events }

// Close tears the connection down. Pending callers are released with a
// shutdown error; repeated calls are no-ops.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	close(c.done)
	c.mu.Lock()
	c.pending = make(map[int64]chan response)
	c.mu.Unlock()
	return c.conn.Close()
}

// Call issues a protocol request and decodes the result into result when
// non-nil. Protocol-level rejections come back as *ProtocolError.
func (c *Client) Call(ctx context.Context, method string, params, result any) error {
	if c.closed.Load() {
		return &ProtocolError{Message: "connection closed"}
	}
	id := c.nextID.Add(1)
	ch := make(chan response, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	msg := struct {
		ID     int64  `json:"id"`
		Method string `json:"method"`
		Params any    `json:"params,omitempty"`
	}{ID: id, Method: method, Params: params}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", method, err)
	}
	c.writeMu.Lock()
	err = c.conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("send %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return &ProtocolError{Message: "connection closed"}
	case resp := <-ch:
		if resp.err != nil {
			return resp.err
		}
		if result != nil && len(resp.result) > 0 {
			if err := json.Unmarshal(resp.result, result); err != nil {
				return fmt.Errorf("unmarshal %s result: %w", method, err)
			}
		}
		return nil
	}
}

func (c *Client) readLoop() {
	defer close(c.events)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			_ = c.Close()
			return
		}
		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	msg := gjson.ParseBytes(data)
	if id := msg.Get("id"); id.Exists() {
		resp := response{}
		if e := msg.Get("error"); e.Exists() {
			resp.err = &ProtocolError{
				Code:    int(e.Get("code").Int()),
				Message: e.Get("message").String(),
			}
		} else if r := msg.Get("result"); r.Exists() {
			resp.result = json.RawMessage(r.Raw)
		}
		c.mu.Lock()
		ch, ok := c.pending[id.Int()]
		if ok {
			delete(c.pending, id.Int())
		}
		c.mu.Unlock()
		if ok {
			ch <- resp
		}
		return
	}
	method := msg.Get("method").String()
	if method == "" {
		return
	}
	evt, ok := decodeEvent(method, msg.Get("params"))
	if !ok {
		return
	}
	select {
	case c.events <- evt:
	case <-c.done:
	}
}
