// Package testutil provides test helpers for fncall (mock functions, remote tools and sinks).
package testutil

import (
	"context"
	"sync"

	"github.com/skosovsky/fncall"
)

// MockFunction is a configurable Function for tests. With Remote set it is bound
// remotely; otherwise InvokeFn (or a nil-returning stub) is its local implementation.
type MockFunction struct {
	NameVal   string
	DescVal   string
	ParamsVal map[string]any
	Remote    bool
	InvokeFn  fncall.InvokeFunc
}

// Schema returns the function schema; the name defaults to "mock".
func (m *MockFunction) Schema() fncall.ToolSchema {
	name := m.NameVal
	if name == "" {
		name = "mock"
	}
	params := m.ParamsVal
	if params == nil {
		params = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return fncall.ToolSchema{Name: name, Description: m.DescVal, Parameters: params}
}

// Binding returns a RemoteBinding when Remote is set, otherwise a LocalBinding.
func (m *MockFunction) Binding() fncall.Binding {
	if m.Remote {
		return fncall.RemoteBinding{}
	}
	return fncall.LocalBinding{Invoke: m.invoke}
}

func (m *MockFunction) invoke(ctx context.Context, args any) (any, error) {
	if m.InvokeFn != nil {
		return m.InvokeFn(ctx, args)
	}
	return nil, nil
}

// RemoteCall is one invocation recorded by MockRemote.
type RemoteCall struct {
	Name      string
	Arguments any
}

// MockRemote is a RemoteTool that records every invocation. InvokeFn computes the result;
// when nil the call returns the function name.
type MockRemote struct {
	InvokeFn func(ctx context.Context, name string, arguments any) (any, error)

	mu    sync.Mutex
	calls []RemoteCall
}

// Invoke records the call and runs InvokeFn.
func (m *MockRemote) Invoke(ctx context.Context, name string, arguments any) (any, error) {
	m.mu.Lock()
	m.calls = append(m.calls, RemoteCall{Name: name, Arguments: arguments})
	m.mu.Unlock()
	if m.InvokeFn != nil {
		return m.InvokeFn(ctx, name, arguments)
	}
	return name, nil
}

// Calls returns the recorded invocations in order.
func (m *MockRemote) Calls() []RemoteCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RemoteCall(nil), m.calls...)
}

// RecordingSink stores every event it receives. It is safe for concurrent use.
type RecordingSink struct {
	mu     sync.Mutex
	events []fncall.Event
}

// OnEvent records ev.
func (s *RecordingSink) OnEvent(_ context.Context, ev fncall.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

// Events returns the recorded events in emission order.
func (s *RecordingSink) Events() []fncall.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]fncall.Event(nil), s.events...)
}

// Kinds returns the kinds of the recorded events in emission order.
func (s *RecordingSink) Kinds() []fncall.EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make([]fncall.EventKind, len(s.events))
	for i, ev := range s.events {
		kinds[i] = ev.Kind
	}
	return kinds
}

var (
	_ fncall.Function   = (*MockFunction)(nil)
	_ fncall.RemoteTool = (*MockRemote)(nil)
	_ fncall.EventSink  = (*RecordingSink)(nil)
)
