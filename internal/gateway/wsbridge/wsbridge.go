// Package wsbridge implements gateway.Client over a single persistent
// websocket connection to an external gateway tool-server, for platforms
// without a first-class Go SDK in this module. The wire shape is a small
// JSON-RPC-style request/response envelope correlated by id, adapted from
// nothing in the teacher (which has no websocket transport) and grounded
// instead on github.com/gorilla/websocket's documented read/write-pump
// pattern.
package wsbridge

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/gorilla/websocket"

	"roomkeeper/internal/gateway"
	"roomkeeper/internal/roomdata"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type request struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params jsoniter.RawMessage `json:"params"`
}

type response struct {
	ID     string              `json:"id"`
	Result jsoniter.RawMessage `json:"result,omitempty"`
	Error  string              `json:"error,omitempty"`
}

type Client struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	nextID  int64

	pendingMu sync.Mutex
	pending   map[string]chan response
}

func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("wsbridge: dial: %w", err)
	}

	c := &Client{conn: conn, pending: make(map[string]chan response)}
	go c.readLoop()
	return c, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.failAllPending(err)
			return
		}
		var resp response
		if err := json.Unmarshal(data, &resp); err != nil {
			continue
		}

		c.pendingMu.Lock()
		ch, ok := c.pending[resp.ID]
		if ok {
			delete(c.pending, resp.ID)
		}
		c.pendingMu.Unlock()

		if ok {
			ch <- resp
		}
	}
}

func (c *Client) failAllPending(err error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, ch := range c.pending {
		ch <- response{ID: id, Error: err.Error()}
		delete(c.pending, id)
	}
}

func (c *Client) call(ctx context.Context, method string, params any) (jsoniter.RawMessage, error) {
	paramsRaw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("wsbridge: marshal params: %w", err)
	}

	id := fmt.Sprintf("%d", atomic.AddInt64(&c.nextID, 1))
	req := request{ID: id, Method: method, Params: paramsRaw}

	replyCh := make(chan response, 1)
	c.pendingMu.Lock()
	c.pending[id] = replyCh
	c.pendingMu.Unlock()

	reqBytes, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("wsbridge: marshal request: %w", err)
	}

	c.writeMu.Lock()
	err = c.conn.WriteMessage(websocket.TextMessage, reqBytes)
	c.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("wsbridge: write: %w", err)
	}

	select {
	case resp := <-replyCh:
		if resp.Error != "" {
			return nil, fmt.Errorf("wsbridge: %s: %s", method, resp.Error)
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(30 * time.Second):
		return nil, fmt.Errorf("wsbridge: %s: timed out waiting for response", method)
	}
}

func (c *Client) BatchGetRecentContext(ctx context.Context, target roomdata.Target, limit int) gateway.BatchResult {
	result, err := c.call(ctx, "batch_get_recent_context", map[string]any{
		"target_id": target.ID,
		"kind":      string(target.Kind),
		"limit":     limit,
	})
	if err != nil {
		return gateway.BatchResult{Err: err}
	}

	var payload struct {
		Messages          []gateway.RawMessage `json:"messages"`
		CompressedSummary string                `json:"compressed_summary"`
		DisplayName       string                `json:"display_name"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return gateway.BatchResult{Err: fmt.Errorf("wsbridge: decode batch result: %w", err)}
	}
	return gateway.BatchResult{
		Messages:          payload.Messages,
		CompressedSummary: payload.CompressedSummary,
		DisplayName:       payload.DisplayName,
	}
}

func (c *Client) SendMessage(ctx context.Context, targetID string, kind roomdata.Kind, content string) (string, error) {
	result, err := c.call(ctx, "send_message", map[string]any{
		"target_id": targetID,
		"kind":      string(kind),
		"content":   content,
	})
	if err != nil {
		return "", err
	}

	var payload struct {
		MessageID string `json:"message_id"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return "", fmt.Errorf("wsbridge: decode send result: %w", err)
	}
	return payload.MessageID, nil
}

func (c *Client) CompressContext(ctx context.Context, target roomdata.Target) error {
	_, err := c.call(ctx, "compress_context", map[string]any{
		"target_id": target.ID,
		"kind":      string(target.Kind),
	})
	return err
}
