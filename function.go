package fncall

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"time"
	"unicode/utf8"
)

// InvokeFunc is a local function implementation. args is the extracted arguments value
// (usually map[string]any, or the raw string when the model sent unparseable arguments).
type InvokeFunc func(ctx context.Context, args any) (any, error)

// Binding says how a Function is executed: LocalBinding or RemoteBinding.
type Binding interface {
	binding()
}

// LocalBinding executes the function in-process.
type LocalBinding struct {
	Invoke InvokeFunc
}

// RemoteBinding delegates execution to the dispatcher's RemoteTool.
type RemoteBinding struct{}

func (LocalBinding) binding()  {}
func (RemoteBinding) binding() {}

// Function is a ToolSchema bound to exactly one execution mode.
type Function interface {
	Schema() ToolSchema
	Binding() Binding
}

// FunctionMetadata is implemented by functions built with the constructors in this package.
// Dispatcher uses Timeout() to override its default call timeout and IsDangerous() to
// require approval.
type FunctionMetadata interface {
	Timeout() time.Duration
	Tags() []string
	IsDangerous() bool
}

// function is the internal implementation of Function.
type function struct {
	schema  ToolSchema
	binding Binding
	opts    functionOptions
}

// NewLocalFunction binds fn to schema without argument validation.
func NewLocalFunction(schema ToolSchema, fn InvokeFunc, opts ...FunctionOption) (Function, error) {
	if schema.Name == "" {
		return nil, errors.New("function name must not be empty")
	}
	if fn == nil {
		return nil, errors.New("local function implementation must not be nil")
	}
	return newFunction(schema, LocalBinding{Invoke: fn}, opts), nil
}

// NewRemoteFunction declares a function executed through the dispatcher's RemoteTool.
func NewRemoteFunction(schema ToolSchema, opts ...FunctionOption) (Function, error) {
	if schema.Name == "" {
		return nil, errors.New("function name must not be empty")
	}
	return newFunction(schema, RemoteBinding{}, opts), nil
}

// NewFunction builds a Function from a typed Go function. The parameter schema is reflected
// from T; arguments are validated against it, decoded into T, and checked with
// Validatable if T implements it. The returned value of fn becomes the call result.
func NewFunction[T any, R any](
	name, description string,
	fn func(ctx context.Context, args T) (R, error),
	opts ...FunctionOption,
) (Function, error) {
	o := applyFunctionOptions(opts)
	binder, err := NewBinder[T](o.strict)
	if err != nil {
		return nil, err
	}
	invoke := func(ctx context.Context, args any) (any, error) {
		data, err := marshalArguments(args)
		if err != nil {
			return nil, err
		}
		in, err := binder.ParseAndValidate(data)
		if err != nil {
			return nil, err
		}
		return fn(ctx, in)
	}
	return &function{
		schema:  ToolSchema{Name: name, Description: description, Parameters: binder.Schema()},
		binding: LocalBinding{Invoke: invoke},
		opts:    o,
	}, nil
}

// NewDynamicFunction creates a Function from a raw JSON Schema map. Arguments are validated
// against the schema before fn runs. The provided schemaMap is not mutated.
func NewDynamicFunction(
	name, description string,
	schemaMap map[string]any,
	fn InvokeFunc,
	opts ...FunctionOption,
) (Function, error) {
	o := applyFunctionOptions(opts)
	if schemaMap == nil {
		return nil, errors.New("dynamic schema map must not be nil")
	}
	if fn == nil {
		return nil, errors.New("dynamic function handler must not be nil")
	}
	schemaCopy, err := deepCopySchema(schemaMap)
	if err != nil {
		return nil, err
	}
	if o.strict {
		applyStrictMode(schemaCopy)
	}
	stripSchemaIDs(schemaCopy)
	compiled, err := compileRawSchema(schemaCopy)
	if err != nil {
		return nil, fmt.Errorf("failed to compile dynamic schema: %w", err)
	}
	invoke := func(ctx context.Context, args any) (any, error) {
		data, err := marshalArguments(args)
		if err != nil {
			return nil, err
		}
		inst, err := decodeInstance(data)
		if err != nil {
			return nil, wrapJSONParseError(err)
		}
		if err := validateAgainstSchema(compiled, inst); err != nil {
			return nil, err
		}
		return fn(ctx, args)
	}
	return &function{
		schema:  ToolSchema{Name: name, Description: description, Parameters: schemaCopy},
		binding: LocalBinding{Invoke: invoke},
		opts:    o,
	}, nil
}

func newFunction(schema ToolSchema, b Binding, opts []FunctionOption) *function {
	schema.Parameters = maps.Clone(schema.Parameters)
	if schema.Parameters == nil {
		schema.Parameters = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return &function{schema: schema, binding: b, opts: applyFunctionOptions(opts)}
}

// Schema returns the advertised schema. Parameters is a shallow copy; nested maps are shared
// and must not be mutated.
func (f *function) Schema() ToolSchema {
	s := f.schema
	s.Parameters = maps.Clone(f.schema.Parameters)
	return s
}

func (f *function) Binding() Binding { return f.binding }

func (f *function) Timeout() time.Duration { return f.opts.timeout }
func (f *function) Tags() []string         { return append([]string(nil), f.opts.tags...) }
func (f *function) IsDangerous() bool      { return f.opts.dangerous }

// marshalArguments turns an extracted arguments value back into JSON for typed decoding.
// A nil value is treated as an empty object.
func marshalArguments(args any) ([]byte, error) {
	if args == nil {
		return []byte("{}"), nil
	}
	if s, ok := args.(string); ok {
		return nil, &ClientError{Reason: "arguments must be a JSON object, got string " + truncate(s, 64), Err: ErrValidation}
	}
	data, err := json.Marshal(args)
	if err != nil {
		return nil, &ClientError{Reason: "arguments are not JSON-encodable: " + err.Error(), Err: ErrValidation}
	}
	return data, nil
}

func deepCopySchema(schemaMap map[string]any) (map[string]any, error) {
	data, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("failed to deep copy schema map: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to deep copy schema map: %w", err)
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

var (
	_ Function         = (*function)(nil)
	_ FunctionMetadata = (*function)(nil)
)
