// Package wsremote implements fncall.RemoteTool over a WebSocket connection speaking
// JSON-RPC 2.0 with the tool-protocol methods "tools/call" and "tools/list".
package wsremote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/skosovsky/fncall"
)

// ErrClosed is returned for requests on a closed connection.
var ErrClosed = errors.New("wsremote: connection closed")

const (
	methodToolsCall = "tools/call"
	methodToolsList = "tools/list"
)

// Option configures a Client.
type Option func(*options)

type options struct {
	header  http.Header
	dialer  *websocket.Dialer
	timeout time.Duration
	logger  *slog.Logger
}

// WithHeader sets HTTP headers sent with the WebSocket handshake (e.g. Authorization).
func WithHeader(h http.Header) Option {
	return func(o *options) {
		o.header = h
	}
}

// WithDialer overrides websocket.DefaultDialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(o *options) {
		o.dialer = d
	}
}

// WithRequestTimeout bounds each request when the caller's context has no deadline.
// Default 30s; 0 disables.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithLogger sets the logger for connection diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Client is a tool-protocol client multiplexing concurrent requests over one connection.
// It implements fncall.RemoteTool.
type Client struct {
	conn *websocket.Conn
	opts options

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan rpcResponse
	closed  bool
	nextID  atomic.Uint64

	done chan struct{}
}

// Dial connects to url (ws:// or wss://) and starts the response reader.
func Dial(ctx context.Context, url string, opts ...Option) (*Client, error) {
	o := options{timeout: 30 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}
	if o.dialer == nil {
		o.dialer = websocket.DefaultDialer
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	conn, resp, err := o.dialer.DialContext(ctx, url, o.header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("wsremote: dial %s: %w", url, err)
	}
	c := &Client{
		conn:    conn,
		opts:    o,
		pending: make(map[string]chan rpcResponse),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Invoke calls the remote tool name with arguments. A result flagged isError is returned
// as an error carrying the tool's text content.
func (c *Client) Invoke(ctx context.Context, name string, arguments any) (any, error) {
	raw, err := c.call(ctx, methodToolsCall, callParams{Name: name, Arguments: arguments})
	if err != nil {
		return nil, err
	}
	var res callResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("wsremote: decode %s result: %w", methodToolsCall, err)
	}
	if res.IsError {
		msg := res.text()
		if msg == "" {
			msg = fmt.Sprintf("remote tool '%s' failed", name)
		}
		return nil, errors.New(msg)
	}
	return res.value(), nil
}

// ListTools returns the schemas the server advertises.
func (c *Client) ListTools(ctx context.Context) ([]fncall.ToolSchema, error) {
	raw, err := c.call(ctx, methodToolsList, struct{}{})
	if err != nil {
		return nil, err
	}
	var res listResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("wsremote: decode %s result: %w", methodToolsList, err)
	}
	out := make([]fncall.ToolSchema, 0, len(res.Tools))
	for _, t := range res.Tools {
		out = append(out, fncall.ToolSchema{Name: t.Name, Description: t.Description, Parameters: t.InputSchema})
	}
	return out, nil
}

// RemoteFunctions lists the server's tools as functions with a RemoteBinding, ready to
// be registered alongside local functions.
func (c *Client) RemoteFunctions(ctx context.Context, opts ...fncall.FunctionOption) ([]fncall.Function, error) {
	schemas, err := c.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	fns := make([]fncall.Function, 0, len(schemas))
	for _, s := range schemas {
		fn, err := fncall.NewRemoteFunction(s, opts...)
		if err != nil {
			return nil, fmt.Errorf("wsremote: tool %q: %w", s.Name, err)
		}
		fns = append(fns, fn)
	}
	return fns, nil
}

// Close sends a close frame, closes the connection and fails in-flight requests.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		<-c.done
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	err := c.conn.Close()
	<-c.done
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if _, ok := ctx.Deadline(); !ok && c.opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.timeout)
		defer cancel()
	}

	id := strconv.FormatUint(c.nextID.Add(1), 10)
	ch := make(chan rpcResponse, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()

	req := rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	if err := c.writeJSON(req); err != nil {
		c.forget(id)
		return nil, fmt.Errorf("wsremote: send %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		c.forget(id)
		return nil, ctx.Err()
	case resp := <-ch:
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	}
}

func (c *Client) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.failPending(err)
			_ = c.conn.Close()
			return
		}
		var resp rpcResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			c.opts.logger.Debug("wsremote: dropping malformed message", "error", err)
			continue
		}
		if resp.Method != "" {
			// Server notifications are not handled.
			continue
		}
		id := rpcIDToString(resp.ID)
		c.mu.Lock()
		ch := c.pending[id]
		delete(c.pending, id)
		c.mu.Unlock()
		if ch == nil {
			c.opts.logger.Debug("wsremote: response for unknown request", "id", id)
			continue
		}
		ch <- resp
	}
}

func (c *Client) failPending(cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.opts.logger.Warn("wsremote: connection lost", "error", cause)
	}
	c.closed = true
	for id, ch := range c.pending {
		delete(c.pending, id)
		ch <- rpcResponse{Error: &RPCError{Code: -32000, Message: ErrClosed.Error()}}
	}
}

var _ fncall.RemoteTool = (*Client)(nil)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
	Method  string          `json:"method,omitempty"`
}

// RPCError is a JSON-RPC error object returned by the server.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type callParams struct {
	Name      string `json:"name"`
	Arguments any    `json:"arguments,omitempty"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type callResult struct {
	Content           []contentBlock  `json:"content"`
	StructuredContent json.RawMessage `json:"structuredContent,omitempty"`
	IsError           bool            `json:"isError,omitempty"`
}

func (r callResult) text() string {
	parts := make([]string, 0, len(r.Content))
	for _, b := range r.Content {
		if b.Type == "text" || b.Type == "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// value prefers structured content, then text content decoded as JSON, then the raw text.
func (r callResult) value() any {
	if len(r.StructuredContent) > 0 && string(r.StructuredContent) != "null" {
		var v any
		if err := json.Unmarshal(r.StructuredContent, &v); err == nil {
			return v
		}
	}
	text := r.text()
	var v any
	if err := json.Unmarshal([]byte(text), &v); err == nil {
		return v
	}
	return text
}

type toolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

type listResult struct {
	Tools []toolDescriptor `json:"tools"`
}

func rpcIDToString(id any) string {
	switch v := id.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return fmt.Sprintf("%v", v)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}
