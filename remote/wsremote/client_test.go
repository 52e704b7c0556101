package wsremote

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
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skosovsky/fncall"
)

// fakeServer answers tools/list and tools/call requests with handle.
type fakeServer struct {
	tools  []toolDescriptor
	handle func(params callParams) (callResult, *RPCError)
	delay  time.Duration
}

func (s *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	var writeMu sync.Mutex
	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		var req struct {
			JSONRPC string          `json:"jsonrpc"`
			ID      string          `json:"id"`
			Method  string          `json:"method"`
			Params  json.RawMessage `json:"params"`
		}
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp := s.respond(req.Method, req.Params)
			resp.JSONRPC = "2.0"
			resp.ID = req.ID
			writeMu.Lock()
			defer writeMu.Unlock()
			_ = conn.WriteJSON(resp)
		}()
	}
}

func (s *fakeServer) respond(method string, raw json.RawMessage) rpcResponse {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	switch method {
	case methodToolsList:
		data, _ := json.Marshal(listResult{Tools: s.tools})
		return rpcResponse{Result: data}
	case methodToolsCall:
		var p callParams
		_ = json.Unmarshal(raw, &p)
		res, rpcErr := s.handle(p)
		if rpcErr != nil {
			return rpcResponse{Error: rpcErr}
		}
		data, _ := json.Marshal(res)
		return rpcResponse{Result: data}
	}
	return rpcResponse{Error: &RPCError{Code: -32601, Message: "method not found"}}
}

func dialFake(t *testing.T, s *fakeServer, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c, err := Dial(context.Background(), url, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func textResult(text string) callResult {
	return callResult{Content: []contentBlock{{Type: "text", Text: text}}}
}

func TestClient_Invoke(t *testing.T) {
	s := &fakeServer{handle: func(p callParams) (callResult, *RPCError) {
		args, _ := json.Marshal(p.Arguments)
		return textResult(`{"tool":"` + p.Name + `","args":` + string(args) + `}`), nil
	}}
	c := dialFake(t, s)

	out, err := c.Invoke(context.Background(), "search", map[string]any{"q": "go"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"tool": "search", "args": map[string]any{"q": "go"}}, out)
}

func TestClient_InvokeResultShapes(t *testing.T) {
	tests := []struct {
		name string
		res  callResult
		want any
	}{
		{name: "plain text", res: textResult("sunny"), want: "sunny"},
		{name: "json text", res: textResult(`[1,2]`), want: []any{float64(1), float64(2)}},
		{
			name: "structured content",
			res:  callResult{Content: []contentBlock{{Type: "text", Text: "ignored"}}, StructuredContent: json.RawMessage(`{"temp":18}`)},
			want: map[string]any{"temp": float64(18)},
		},
		{
			name: "multiple blocks",
			res:  callResult{Content: []contentBlock{{Type: "text", Text: "a"}, {Type: "image"}, {Type: "text", Text: "b"}}},
			want: "a\nb",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := dialFake(t, &fakeServer{handle: func(callParams) (callResult, *RPCError) { return tt.res, nil }})
			out, err := c.Invoke(context.Background(), "f", nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestClient_InvokeToolError(t *testing.T) {
	c := dialFake(t, &fakeServer{handle: func(callParams) (callResult, *RPCError) {
		r := textResult("city not found")
		r.IsError = true
		return r, nil
	}})
	_, err := c.Invoke(context.Background(), "get_weather", map[string]any{"city": "Atlantis"})
	require.EqualError(t, err, "city not found")
}

func TestClient_InvokeRPCError(t *testing.T) {
	c := dialFake(t, &fakeServer{handle: func(callParams) (callResult, *RPCError) {
		return callResult{}, &RPCError{Code: -32602, Message: "unknown tool"}
	}})
	_, err := c.Invoke(context.Background(), "nope", nil)
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32602, rpcErr.Code)
	assert.Equal(t, "rpc error -32602: unknown tool", err.Error())
}

func TestClient_ConcurrentRequests(t *testing.T) {
	c := dialFake(t, &fakeServer{
		delay: 5 * time.Millisecond,
		handle: func(p callParams) (callResult, *RPCError) {
			return textResult(p.Name), nil
		},
	})
	var wg sync.WaitGroup
	names := []string{"a", "b", "c", "d", "e"}
	results := make([]any, len(names))
	for i, name := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := c.Invoke(context.Background(), name, nil)
			assert.NoError(t, err)
			results[i] = out
		}()
	}
	wg.Wait()
	for i, name := range names {
		assert.Equal(t, name, results[i])
	}
}

func TestClient_ContextTimeout(t *testing.T) {
	c := dialFake(t, &fakeServer{
		delay:  200 * time.Millisecond,
		handle: func(callParams) (callResult, *RPCError) { return textResult("late"), nil },
	})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := c.Invoke(ctx, "slow", nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_ListToolsAndRemoteFunctions(t *testing.T) {
	s := &fakeServer{
		tools: []toolDescriptor{
			{Name: "search", Description: "Search the web", InputSchema: map[string]any{"type": "object"}},
			{Name: "fetch", Description: "Fetch a URL"},
		},
		handle: func(p callParams) (callResult, *RPCError) { return textResult("ok:" + p.Name), nil },
	}
	c := dialFake(t, s)

	schemas, err := c.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, schemas, 2)
	assert.Equal(t, "search", schemas[0].Name)
	assert.Equal(t, map[string]any{"type": "object"}, schemas[0].Parameters)

	fns, err := c.RemoteFunctions(context.Background())
	require.NoError(t, err)
	reg, err := fncall.NewRegistry(fns)
	require.NoError(t, err)
	assert.Equal(t, []string{"search", "fetch"}, reg.Names())

	out := fncall.Dispatch(context.Background(), fncall.CallBatch{{Name: "fetch", Arguments: map[string]any{"url": "x"}}}, reg, nil, c)
	require.Len(t, out, 1)
	assert.Equal(t, "ok:fetch", out[0].Result.Value)
}

func TestClient_Close(t *testing.T) {
	c := dialFake(t, &fakeServer{handle: func(callParams) (callResult, *RPCError) { return textResult("x"), nil }})
	require.NoError(t, c.Close())
	_, err := c.Invoke(context.Background(), "f", nil)
	require.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, c.Close(), "second close is a no-op")
}

func TestDial_Error(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	_, err := Dial(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"))
	require.Error(t, err)
}
