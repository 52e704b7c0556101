package fncall

import (
	"context"
	"sync"
)

// EventKind discriminates dispatch lifecycle events.
type EventKind string

const (
	EventFunctionCallStart EventKind = "function_call_start"
	EventError             EventKind = "error"
	EventFunctionCallEnd   EventKind = "function_call_end"
)

// Event is reported to an EventSink during dispatch.
// Start and end events carry Calls; error events carry Call and Message.
type Event struct {
	Kind    EventKind
	Calls   CallBatch
	Call    *FunctionCall
	Message string
}

// EventSink receives dispatch events. Emission is fire-and-forget.
type EventSink interface {
	OnEvent(ctx context.Context, ev Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ctx context.Context, ev Event)

func (f EventSinkFunc) OnEvent(ctx context.Context, ev Event) { f(ctx, ev) }

// NopSink discards all events.
type NopSink struct{}

func (NopSink) OnEvent(context.Context, Event) {}

// MultiSink fans events out to every non-nil sink in order.
func MultiSink(sinks ...EventSink) EventSink {
	var out multiSink
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

type multiSink []EventSink

func (m multiSink) OnEvent(ctx context.Context, ev Event) {
	for _, s := range m {
		s.OnEvent(ctx, ev)
	}
}

// serialSink serializes calls to the wrapped sink so it does not need to be goroutine-safe.
type serialSink struct {
	mu   sync.Mutex
	next EventSink
}

func (s *serialSink) OnEvent(ctx context.Context, ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next.OnEvent(ctx, ev)
}
