// Package fncallprom exposes Prometheus collectors for fncall dispatch activity.
package fncallprom

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/skosovsky/fncall"
)

const (
	namespace = "fncall"
	subsystem = "dispatch"
)

// UnknownFunction is the function label for calls naming no registered function.
// Model output is unbounded, so such names never become label values.
const UnknownFunction = "_unknown"

// Metrics holds the dispatch collectors. Feed it through Sink and AfterCall, or pass
// DispatcherOptions to fncall.NewDispatcher.
type Metrics struct {
	batches  prometheus.Counter
	calls    *prometheus.CounterVec
	errors   *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// MustNewMetrics creates and registers the collectors with reg (the default registerer
// when nil). Registration errors panic, except that already registered collectors of the
// same shape are reused.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "batches_total",
			Help:      "Number of call batches dispatched.",
		}),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "calls_total",
			Help:      "Number of function calls dispatched, by function and status.",
		}, []string{"function", "status"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "call_errors_total",
			Help:      "Number of failed function calls, by function and reason.",
		}, []string{"function", "reason"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "call_duration_seconds",
			Help:      "Time spent resolving and invoking one function call.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"function"}),
	}
	m.batches = register(reg, m.batches)
	m.calls = register(reg, m.calls)
	m.errors = register(reg, m.errors)
	m.duration = register(reg, m.duration)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// DispatcherOptions wires the metrics into a Dispatcher. The event sink option replaces
// any other sink; combine sinks with fncall.MultiSink when more than one is needed.
func (m *Metrics) DispatcherOptions() []fncall.DispatcherOption {
	return []fncall.DispatcherOption{
		fncall.WithEventSink(m.Sink()),
		fncall.WithOnAfterCall(m.AfterCall),
	}
}

// Sink counts batches and classifies failures from error events.
func (m *Metrics) Sink() fncall.EventSink {
	return fncall.EventSinkFunc(func(_ context.Context, ev fncall.Event) {
		if m == nil {
			return
		}
		switch ev.Kind {
		case fncall.EventFunctionCallStart:
			m.batches.Inc()
		case fncall.EventError:
			if ev.Call == nil {
				return
			}
			m.errors.WithLabelValues(functionLabel(*ev.Call), Reason(ev.Call.Result.Err())).Inc()
		}
	})
}

// AfterCall records the outcome and duration of one call. Its signature matches
// fncall.WithOnAfterCall.
func (m *Metrics) AfterCall(_ context.Context, call fncall.FunctionCall, d time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if call.Result.IsError() {
		status = "error"
	}
	name := functionLabel(call)
	m.calls.WithLabelValues(name, status).Inc()
	m.duration.WithLabelValues(name).Observe(d.Seconds())
}

func functionLabel(call fncall.FunctionCall) string {
	if errors.Is(call.Result.Err(), fncall.ErrFunctionNotFound) {
		return UnknownFunction
	}
	return call.Name
}

// Reason maps a call error to a low-cardinality label value.
func Reason(err error) string {
	switch {
	case err == nil:
		return "unknown"
	case errors.Is(err, fncall.ErrFunctionNotFound):
		return "not_found"
	case errors.Is(err, fncall.ErrTimeout):
		return "timeout"
	case errors.Is(err, fncall.ErrNotApproved):
		return "not_approved"
	case errors.Is(err, fncall.ErrNoRemoteTool):
		return "no_remote_tool"
	case fncall.IsClientError(err):
		return "invalid_arguments"
	case fncall.IsSystemError(err):
		return "system"
	default:
		return "function_error"
	}
}
