package fncall

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// RemoteTool executes functions that have no local implementation (e.g. a tool-protocol client).
type RemoteTool interface {
	Invoke(ctx context.Context, name string, arguments any) (any, error)
}

// RemoteToolFunc adapts a function to RemoteTool.
type RemoteToolFunc func(ctx context.Context, name string, arguments any) (any, error)

func (f RemoteToolFunc) Invoke(ctx context.Context, name string, arguments any) (any, error) {
	return f(ctx, name, arguments)
}

// Dispatcher resolves calls against a Registry, invokes them and records per-call results.
// Failures are recorded on the failing call only; the rest of the batch always runs.
type Dispatcher struct {
	opts dispatcherOptions
}

// NewDispatcher creates a Dispatcher. Defaults: no event sink, 30s call timeout,
// sequential execution, panic recovery enabled.
func NewDispatcher(opts ...DispatcherOption) *Dispatcher {
	o := dispatcherOptions{
		timeout:        30 * time.Second,
		maxConcurrency: 1,
		recoverPanics:  true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.sink == nil {
		o.sink = NopSink{}
	}
	if o.maxConcurrency < 1 {
		o.maxConcurrency = 1
	}
	return &Dispatcher{opts: o}
}

// Dispatch runs calls with a one-off Dispatcher. sink and remote may be nil.
func Dispatch(ctx context.Context, calls CallBatch, reg *Registry, sink EventSink, remote RemoteTool) CallBatch {
	return NewDispatcher(WithEventSink(sink), WithRemoteTool(remote)).Dispatch(ctx, calls, reg)
}

// Dispatch resolves and invokes every call in order and returns a new batch in which each
// call carries a Result. The input batch is not modified. function_call_start and
// function_call_end bracket the whole batch exactly once; an error event is emitted for
// every failed call.
func (d *Dispatcher) Dispatch(ctx context.Context, calls CallBatch, reg *Registry) CallBatch {
	out := calls.Clone()
	if out == nil {
		out = CallBatch{}
	}
	var sink EventSink = d.opts.sink
	if d.opts.maxConcurrency > 1 {
		sink = &serialSink{next: sink}
	}
	sink.OnEvent(ctx, Event{Kind: EventFunctionCallStart, Calls: out.Clone()})

	if d.opts.maxConcurrency == 1 || len(out) < 2 {
		for i := range out {
			d.dispatchOne(ctx, &out[i], reg, sink)
		}
	} else {
		// Each goroutine owns exactly one slot of out; dispatchOne never returns an error.
		var g errgroup.Group
		g.SetLimit(d.opts.maxConcurrency)
		for i := range out {
			g.Go(func() error {
				d.dispatchOne(ctx, &out[i], reg, sink)
				return nil
			})
		}
		_ = g.Wait()
	}

	sink.OnEvent(ctx, Event{Kind: EventFunctionCallEnd, Calls: out.Clone()})
	return out
}

func (d *Dispatcher) dispatchOne(ctx context.Context, call *FunctionCall, reg *Registry, sink EventSink) {
	if d.opts.onBefore != nil {
		d.opts.onBefore(ctx, *call)
	}
	start := time.Now()
	value, err := d.resolve(ctx, *call, reg)
	if err != nil {
		call.Result = ErrorResult(err)
		d.logger().DebugContext(ctx, "function call failed", "function", call.Name, "error", err)
		failed := *call
		sink.OnEvent(ctx, Event{Kind: EventError, Call: &failed, Message: call.Result.Error})
	} else {
		call.Result = ValueResult(value)
	}
	if d.opts.onAfter != nil {
		d.opts.onAfter(ctx, *call, time.Since(start))
	}
}

func (d *Dispatcher) resolve(ctx context.Context, call FunctionCall, reg *Registry) (value any, err error) {
	fn, ok := reg.Lookup(call.Name)
	if !ok {
		return nil, notFoundError(call.Name)
	}
	if fm, ok := fn.(FunctionMetadata); ok && fm.IsDangerous() {
		if d.opts.approve == nil || !d.opts.approve(ctx, call) {
			return nil, notApprovedError(call.Name)
		}
	}

	timeout := d.opts.timeout
	if fm, ok := fn.(FunctionMetadata); ok && fm.Timeout() > 0 {
		timeout = fm.Timeout()
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if d.opts.recoverPanics {
		defer func() {
			if p := recover(); p != nil {
				value = nil
				err = &SystemError{Err: &panicError{p: p}}
			}
		}()
	}

	switch b := fn.Binding().(type) {
	case LocalBinding:
		if b.Invoke == nil {
			return nil, &SystemError{Err: errors.New("local binding without implementation")}
		}
		value, err = b.Invoke(ctx, call.Arguments)
	case RemoteBinding:
		if d.opts.remote == nil {
			return nil, noRemoteError(call.Name)
		}
		value, err = d.opts.remote.Invoke(ctx, call.Name, call.Arguments)
	default:
		return nil, &SystemError{Err: errors.New("function has no binding")}
	}
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		return nil, timeoutError(call.Name, err)
	}
	return value, err
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.opts.logger != nil {
		return d.opts.logger
	}
	return slog.Default()
}
