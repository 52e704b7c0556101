// Package fncallotel adds OpenTelemetry tracing to fncall: a middleware that wraps local
// invocations in spans and an event sink that records dispatch events on the current span.
package fncallotel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/skosovsky/fncall"
)

const instrumentationName = "github.com/skosovsky/fncall/ext/fncallotel"

// Attribute keys set on spans and span events.
const (
	AttrFunction = attribute.Key("fncall.function")
	AttrCalls    = attribute.Key("fncall.calls")
	AttrFailed   = attribute.Key("fncall.failed")
	AttrMessage  = attribute.Key("fncall.message")
)

// Option configures the tracer used by this package.
type Option func(*config)

type config struct {
	provider trace.TracerProvider
}

// WithTracerProvider sets the provider; the global provider is used by default.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *config) {
		c.provider = tp
	}
}

func newTracer(opts []Option) trace.Tracer {
	var c config
	for _, opt := range opts {
		opt(&c)
	}
	if c.provider == nil {
		c.provider = otel.GetTracerProvider()
	}
	return c.provider.Tracer(instrumentationName)
}

// Middleware returns a fncall.Middleware that runs each local invocation in a
// "fncall.invoke" span. Failed invocations set the span status to Error.
func Middleware(opts ...Option) fncall.Middleware {
	tracer := newTracer(opts)
	return fncall.LocalMiddleware(func(name string, next fncall.InvokeFunc) fncall.InvokeFunc {
		return func(ctx context.Context, args any) (any, error) {
			ctx, span := tracer.Start(ctx, "fncall.invoke",
				trace.WithSpanKind(trace.SpanKindInternal),
				trace.WithAttributes(AttrFunction.String(name)),
			)
			defer span.End()
			res, err := next(ctx, args)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return nil, err
			}
			span.SetStatus(codes.Ok, "")
			return res, nil
		}
	})
}

// StartDispatch starts a "fncall.dispatch" span for a batch. Pass the returned context to
// Dispatch so Sink and Middleware attach to it, and end the span when dispatch returns.
func StartDispatch(ctx context.Context, calls fncall.CallBatch, opts ...Option) (context.Context, trace.Span) {
	return newTracer(opts).Start(ctx, "fncall.dispatch",
		trace.WithAttributes(
			AttrCalls.Int(len(calls)),
			attribute.StringSlice("fncall.functions", calls.Names()),
		),
	)
}

// Sink returns an EventSink that adds every dispatch event to the span in the event's
// context. Events outside a recording span are dropped.
func Sink() fncall.EventSink {
	return fncall.EventSinkFunc(func(ctx context.Context, ev fncall.Event) {
		span := trace.SpanFromContext(ctx)
		if !span.IsRecording() {
			return
		}
		switch ev.Kind {
		case fncall.EventFunctionCallStart:
			span.AddEvent("fncall.function_call_start", trace.WithAttributes(AttrCalls.Int(len(ev.Calls))))
		case fncall.EventError:
			attrs := []attribute.KeyValue{AttrMessage.String(ev.Message)}
			if ev.Call != nil {
				attrs = append(attrs, AttrFunction.String(ev.Call.Name))
			}
			span.AddEvent("fncall.error", trace.WithAttributes(attrs...))
		case fncall.EventFunctionCallEnd:
			failed := len(ev.Calls.Failed())
			span.AddEvent("fncall.function_call_end", trace.WithAttributes(
				AttrCalls.Int(len(ev.Calls)),
				AttrFailed.Int(failed),
			))
			if failed > 0 {
				span.SetStatus(codes.Error, "one or more function calls failed")
			}
		}
	})
}
