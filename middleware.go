package fncall

import (
	"context"
	"log/slog"
	"time"
)

// Middleware wraps a Function with cross-cutting behavior (logging, recovery, timeout).
// Built-in middlewares only wrap functions with a LocalBinding; remote functions pass through.
type Middleware func(Function) Function

// WithLogging returns a middleware that logs start, end, duration, and errors.
func WithLogging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return LocalMiddleware(func(name string, next InvokeFunc) InvokeFunc {
		return func(ctx context.Context, args any) (any, error) {
			logger.InfoContext(ctx, "function start", "function", name)
			start := time.Now()
			res, err := next(ctx, args)
			dur := time.Since(start)
			if err != nil {
				logger.ErrorContext(ctx, "function error", "function", name, "duration", dur, "error", err)
				return nil, err
			}
			logger.InfoContext(ctx, "function end", "function", name, "duration", dur)
			return res, nil
		}
	})
}

// WithRecovery returns a middleware that recovers panics and returns SystemError.
func WithRecovery() Middleware {
	return LocalMiddleware(func(_ string, next InvokeFunc) InvokeFunc {
		return func(ctx context.Context, args any) (res any, err error) {
			defer func() {
				if p := recover(); p != nil {
					res = nil
					err = &SystemError{Err: &panicError{p: p}}
				}
			}()
			return next(ctx, args)
		}
	})
}

// WithTimeoutMiddleware returns a middleware that enforces a timeout on the wrapped function.
// When the dispatcher's call timeout also applies, the effective timeout is the minimum of the two.
func WithTimeoutMiddleware(d time.Duration) Middleware {
	return LocalMiddleware(func(_ string, next InvokeFunc) InvokeFunc {
		if d <= 0 {
			return next
		}
		return func(ctx context.Context, args any) (any, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(ctx, args)
		}
	})
}

// LocalMiddleware builds a Middleware from a function that decorates local implementations.
// Functions with a RemoteBinding are returned unchanged.
func LocalMiddleware(wrap func(name string, next InvokeFunc) InvokeFunc) Middleware {
	return func(next Function) Function {
		lb, ok := next.Binding().(LocalBinding)
		if !ok || lb.Invoke == nil {
			return next
		}
		return &wrappedFunction{
			functionBase: functionBase{next: next},
			invoke:       wrap(next.Schema().Name, lb.Invoke),
		}
	}
}

// functionBase delegates Function and FunctionMetadata to the wrapped Function.
type functionBase struct{ next Function }

func (b *functionBase) Schema() ToolSchema { return b.next.Schema() }

func (b *functionBase) Timeout() time.Duration {
	if fm, ok := b.next.(FunctionMetadata); ok {
		return fm.Timeout()
	}
	return 0
}

func (b *functionBase) Tags() []string {
	if fm, ok := b.next.(FunctionMetadata); ok {
		return fm.Tags()
	}
	return nil
}

func (b *functionBase) IsDangerous() bool {
	if fm, ok := b.next.(FunctionMetadata); ok {
		return fm.IsDangerous()
	}
	return false
}

type wrappedFunction struct {
	functionBase
	invoke InvokeFunc
}

func (w *wrappedFunction) Binding() Binding { return LocalBinding{Invoke: w.invoke} }

var (
	_ Function         = (*wrappedFunction)(nil)
	_ FunctionMetadata = (*wrappedFunction)(nil)
)
