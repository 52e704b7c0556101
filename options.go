package fncall

import (
	"context"
	"log/slog"
	"time"
)

// functionOptions hold optional function settings (timeout, strict, tags, etc.).
type functionOptions struct {
	strict    bool
	timeout   time.Duration
	tags      []string
	dangerous bool
}

// FunctionOption configures a function (e.g. WithStrict, WithTimeout).
type FunctionOption func(*functionOptions)

func applyFunctionOptions(opts []FunctionOption) functionOptions {
	var o functionOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithStrict sets strict mode for generated and dynamic schemas: additionalProperties: false
// for all objects, and all properties become required.
func WithStrict() FunctionOption {
	return func(o *functionOptions) {
		o.strict = true
	}
}

// WithTimeout sets a per-function timeout that overrides the dispatcher default.
func WithTimeout(d time.Duration) FunctionOption {
	return func(o *functionOptions) {
		o.timeout = d
	}
}

// WithTags sets function tags (metadata for discovery).
func WithTags(tags ...string) FunctionOption {
	return func(o *functionOptions) {
		o.tags = tags
	}
}

// WithDangerous marks the function as dangerous; the dispatcher invokes it only
// when its approval callback (WithApproval) allows the call.
func WithDangerous() FunctionOption {
	return func(o *functionOptions) {
		o.dangerous = true
	}
}

// RegistryOption configures a Registry.
type RegistryOption func(*registryOptions)

type registryOptions struct {
	middlewares []Middleware
}

// WithMiddleware wraps every registered function with the given middlewares (onion order:
// first middleware is outermost).
func WithMiddleware(middlewares ...Middleware) RegistryOption {
	return func(o *registryOptions) {
		o.middlewares = append(o.middlewares, middlewares...)
	}
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*dispatcherOptions)

type dispatcherOptions struct {
	sink           EventSink
	remote         RemoteTool
	timeout        time.Duration
	maxConcurrency int
	recoverPanics  bool
	approve        func(context.Context, FunctionCall) bool
	onBefore       func(context.Context, FunctionCall)
	onAfter        func(context.Context, FunctionCall, time.Duration)
	logger         *slog.Logger
}

// WithEventSink sets the sink receiving dispatch lifecycle events.
func WithEventSink(sink EventSink) DispatcherOption {
	return func(o *dispatcherOptions) {
		o.sink = sink
	}
}

// WithRemoteTool sets the capability used for functions with a RemoteBinding.
func WithRemoteTool(rt RemoteTool) DispatcherOption {
	return func(o *dispatcherOptions) {
		o.remote = rt
	}
}

// WithCallTimeout sets the default per-call timeout. Pass 0 to disable.
func WithCallTimeout(d time.Duration) DispatcherOption {
	return func(o *dispatcherOptions) {
		o.timeout = d
	}
}

// WithMaxConcurrency lets up to n calls of one batch run at once. The default of 1
// dispatches calls one at a time; values below 1 are treated as 1.
func WithMaxConcurrency(n int) DispatcherOption {
	return func(o *dispatcherOptions) {
		o.maxConcurrency = n
	}
}

// WithRecoverPanics enables panic recovery around invocations (the call gets a SystemError result).
func WithRecoverPanics(enable bool) DispatcherOption {
	return func(o *dispatcherOptions) {
		o.recoverPanics = enable
	}
}

// WithApproval sets the callback consulted before invoking functions marked WithDangerous.
// Without it dangerous functions are never invoked. The callback may be called
// concurrently under WithMaxConcurrency.
func WithApproval(fn func(context.Context, FunctionCall) bool) DispatcherOption {
	return func(o *dispatcherOptions) {
		o.approve = fn
	}
}

// WithOnBeforeCall sets a hook called before each call is resolved.
// Under WithMaxConcurrency the hook runs on the worker goroutines and may be called
// concurrently, unlike the event sink; it must be safe for concurrent use.
func WithOnBeforeCall(fn func(context.Context, FunctionCall)) DispatcherOption {
	return func(o *dispatcherOptions) {
		o.onBefore = fn
	}
}

// WithOnAfterCall sets a hook called with the enriched call after it is resolved.
// Like WithOnBeforeCall it may be called concurrently under WithMaxConcurrency.
func WithOnAfterCall(fn func(context.Context, FunctionCall, time.Duration)) DispatcherOption {
	return func(o *dispatcherOptions) {
		o.onAfter = fn
	}
}

// WithDispatcherLogger sets the logger for dispatch diagnostics.
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(o *dispatcherOptions) {
		o.logger = logger
	}
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*extractorOptions)

type extractorOptions struct {
	repair       bool
	legacyShapes bool
	logger       *slog.Logger
}

// WithRepair lets the extractor run fenced block contents and string arguments that fail
// to parse through a JSON repair pass before giving up on them.
func WithRepair() ExtractorOption {
	return func(o *extractorOptions) {
		o.repair = true
	}
}

// WithLegacyShapes accepts the single-call shapes {"function_call": {...}} and
// {"next_function_call": {...}} when a document carries no batch.
func WithLegacyShapes() ExtractorOption {
	return func(o *extractorOptions) {
		o.legacyShapes = true
	}
}

// WithExtractorLogger sets the logger for extraction diagnostics.
func WithExtractorLogger(logger *slog.Logger) ExtractorOption {
	return func(o *extractorOptions) {
		o.logger = logger
	}
}

// EncoderOption configures an Encoder.
type EncoderOption func(*encoderOptions)

type encoderOptions struct {
	legacyFormats bool
	indent        string
}

// WithLegacyFormats makes the encoder advertise the single-call shapes in addition to
// the batch format. Pair it with WithLegacyShapes on the extractor.
func WithLegacyFormats() EncoderOption {
	return func(o *encoderOptions) {
		o.legacyFormats = true
	}
}

// WithSchemaIndent sets the indentation of the function schema JSON ("" for compact output).
func WithSchemaIndent(indent string) EncoderOption {
	return func(o *encoderOptions) {
		o.indent = indent
	}
}
