package fncall

import (
	"context"
	"errors"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func invokeLocal(t *testing.T, f Function, args any) (any, error) {
	t.Helper()
	lb, ok := f.Binding().(LocalBinding)
	require.True(t, ok, "expected a local binding")
	return lb.Invoke(context.Background(), args)
}

func TestNewFunction_Simple(t *testing.T) {
	type Args struct {
		X int `json:"x"`
	}
	type Result struct {
		Y int `json:"y"`
	}
	fn, err := NewFunction("add_one", "Add one", func(_ context.Context, a Args) (Result, error) {
		return Result{Y: a.X + 1}, nil
	})
	require.NoError(t, err)
	require.NotNil(t, fn)
	schema := fn.Schema()
	assert.Equal(t, "add_one", schema.Name)
	assert.Equal(t, "Add one", schema.Description)
	require.NotNil(t, findSchemaObject(schema.Parameters))

	out, err := invokeLocal(t, fn, map[string]any{"x": float64(5)})
	require.NoError(t, err)
	assert.Equal(t, Result{Y: 6}, out)
}

func TestNewFunction_StringArguments(t *testing.T) {
	type Args struct {
		X int `json:"x"`
	}
	fn, err := NewFunction("id", "desc", func(_ context.Context, a Args) (int, error) {
		return a.X, nil
	})
	require.NoError(t, err)
	_, err = invokeLocal(t, fn, "{not json")
	require.Error(t, err)
	assert.True(t, IsClientError(err))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestNewFunction_SchemaValidation(t *testing.T) {
	type Args struct {
		Count int `json:"count"`
	}
	fn, err := NewFunction("id", "desc", func(_ context.Context, _ Args) (struct{}, error) {
		return struct{}{}, nil
	})
	require.NoError(t, err)
	_, err = invokeLocal(t, fn, map[string]any{"count": "not a number"})
	require.Error(t, err)
	assert.True(t, IsClientError(err))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestNewFunction_HandlerErrorPassesThrough(t *testing.T) {
	type Args struct{}
	sentinel := errors.New("upstream unavailable")
	fn, err := NewFunction("fail", "Fails", func(_ context.Context, _ Args) (struct{}, error) {
		return struct{}{}, sentinel
	})
	require.NoError(t, err)
	_, err = invokeLocal(t, fn, map[string]any{})
	require.ErrorIs(t, err, sentinel)
	assert.Equal(t, "upstream unavailable", err.Error())
}

func TestNewFunction_NilArgumentsAreEmptyObject(t *testing.T) {
	type Args struct {
		Note string `json:"note,omitempty"`
	}
	fn, err := NewFunction("opt", "Optional", func(_ context.Context, a Args) (string, error) {
		return "note=" + a.Note, nil
	})
	require.NoError(t, err)
	out, err := invokeLocal(t, fn, nil)
	require.NoError(t, err)
	assert.Equal(t, "note=", out)
}

func TestWithStrict(t *testing.T) {
	type Args struct {
		X int    `json:"x"`
		S string `json:"s,omitempty"`
	}
	fn, err := NewFunction("strict_fn", "desc", func(_ context.Context, a Args) (int, error) {
		return a.X, nil
	}, WithStrict())
	require.NoError(t, err)
	obj := findSchemaObject(fn.Schema().Parameters)
	require.NotNil(t, obj)
	assert.Equal(t, []any{"s", "x"}, obj["required"])

	_, err = invokeLocal(t, fn, map[string]any{"x": 1, "s": "a"})
	require.NoError(t, err)
	_, err = invokeLocal(t, fn, map[string]any{"x": 1})
	require.Error(t, err, "strict mode makes every property required")
	assert.True(t, IsClientError(err))
}

func TestFunction_Metadata(t *testing.T) {
	fn, err := NewLocalFunction(ToolSchema{Name: "t"}, func(context.Context, any) (any, error) {
		return nil, nil
	}, WithTimeout(time.Second), WithTags("a", "b"), WithDangerous())
	require.NoError(t, err)
	meta, ok := fn.(FunctionMetadata)
	require.True(t, ok)
	assert.Equal(t, time.Second, meta.Timeout())
	assert.True(t, meta.IsDangerous())
	tags := meta.Tags()
	require.Equal(t, []string{"a", "b"}, tags)
	tags[0] = "mutated"
	require.Equal(t, []string{"a", "b"}, meta.Tags())
}

func TestFunction_Parameters_ReturnsCopy(t *testing.T) {
	type Args struct {
		X int `json:"x"`
	}
	fn, err := NewFunction("t", "d", func(_ context.Context, a Args) (int, error) {
		return a.X, nil
	})
	require.NoError(t, err)
	params := fn.Schema().Parameters
	params["mutated"] = true
	_, ok := fn.Schema().Parameters["mutated"]
	require.False(t, ok)
}

func TestNewLocalFunction(t *testing.T) {
	fn, err := NewLocalFunction(ToolSchema{Name: "echo", Description: "Echo"}, func(_ context.Context, args any) (any, error) {
		return args, nil
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"type": "object", "properties": map[string]any{}}, fn.Schema().Parameters)
	out, err := invokeLocal(t, fn, "raw text")
	require.NoError(t, err)
	assert.Equal(t, "raw text", out, "local functions see arguments unvalidated")

	_, err = NewLocalFunction(ToolSchema{}, func(context.Context, any) (any, error) { return nil, nil })
	require.Error(t, err)
	_, err = NewLocalFunction(ToolSchema{Name: "x"}, nil)
	require.Error(t, err)
}

func TestNewRemoteFunction(t *testing.T) {
	params := map[string]any{"type": "object"}
	fn, err := NewRemoteFunction(ToolSchema{Name: "search", Description: "Search", Parameters: params})
	require.NoError(t, err)
	assert.Equal(t, RemoteBinding{}, fn.Binding())
	assert.Equal(t, params, fn.Schema().Parameters)

	_, err = NewRemoteFunction(ToolSchema{})
	require.Error(t, err)
}

func TestNewDynamicFunction_Success(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"x": map[string]any{"type": "integer"},
		},
		"required": []any{"x"},
	}
	fn, err := NewDynamicFunction("dynamic", "A dynamic function", schema, func(_ context.Context, args any) (any, error) {
		return args, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "dynamic", fn.Schema().Name)
	out, err := invokeLocal(t, fn, map[string]any{"x": float64(42)})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"x": float64(42)}, out)
}

func TestNewDynamicFunction_ValidationError(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"unit": map[string]any{"type": "string", "enum": []any{"celsius", "fahrenheit"}},
		},
		"required": []any{"unit"},
	}
	fn, err := NewDynamicFunction("weather", "Weather", schema, func(context.Context, any) (any, error) {
		return map[string]any{}, nil
	})
	require.NoError(t, err)

	_, err = invokeLocal(t, fn, map[string]any{})
	require.Error(t, err)
	assert.True(t, IsClientError(err))

	_, err = invokeLocal(t, fn, map[string]any{"unit": "kelvin"})
	require.Error(t, err)
	assert.True(t, IsClientError(err))

	_, err = invokeLocal(t, fn, map[string]any{"unit": "celsius"})
	require.NoError(t, err)
}

func TestNewDynamicFunction_DoesNotMutateSchema(t *testing.T) {
	schema := map[string]any{
		"$id":  "urn:test",
		"type": "object",
		"properties": map[string]any{
			"x": map[string]any{"type": "integer"},
		},
	}
	_, err := NewDynamicFunction("d", "d", schema, func(context.Context, any) (any, error) {
		return nil, nil
	}, WithStrict())
	require.NoError(t, err)
	assert.Equal(t, "urn:test", schema["$id"])
	_, has := schema["additionalProperties"]
	assert.False(t, has)
}

func TestNewDynamicFunction_InvalidInput(t *testing.T) {
	_, err := NewDynamicFunction("d", "d", nil, func(context.Context, any) (any, error) { return nil, nil })
	require.Error(t, err)
	_, err = NewDynamicFunction("d", "d", map[string]any{"type": "object"}, nil)
	require.Error(t, err)
	_, err = NewDynamicFunction("d", "d", map[string]any{"type": 12}, func(context.Context, any) (any, error) { return nil, nil })
	require.Error(t, err, "schema that does not compile")
}

func BenchmarkInvoke(b *testing.B) {
	type Args struct {
		X int `json:"x"`
	}
	fn, err := NewFunction("bench", "desc", func(_ context.Context, a Args) (int, error) {
		return a.X + 1, nil
	})
	if err != nil {
		b.Fatal(err)
	}
	invoke := fn.Binding().(LocalBinding).Invoke
	ctx := context.Background()
	args := map[string]any{"x": float64(42)}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = invoke(ctx, args)
	}
}

func TestNewFunction_IDParameter(t *testing.T) {
	type Args struct {
		ID string `json:"id"`
	}
	for _, strict := range []bool{false, true} {
		var opts []FunctionOption
		if strict {
			opts = append(opts, WithStrict())
		}
		fn, err := NewFunction("get_order", "Get an order", func(_ context.Context, a Args) (string, error) {
			return a.ID, nil
		}, opts...)
		require.NoError(t, err)
		props := fn.Schema().Parameters["properties"].(map[string]any)
		assert.Contains(t, props, "id")

		out, err := invokeLocal(t, fn, map[string]any{"id": "42"})
		require.NoError(t, err)
		assert.Equal(t, "42", out)
	}
}

func TestNewDynamicFunction_IDParameter(t *testing.T) {
	schema := map[string]any{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type":    "object",
		"properties": map[string]any{
			"id":      map[string]any{"type": "string"},
			"$schema": map[string]any{"type": "string"},
		},
		"required":             []any{"id"},
		"additionalProperties": false,
	}
	fn, err := NewDynamicFunction("lookup", "Lookup", schema, func(_ context.Context, args any) (any, error) {
		return args, nil
	})
	require.NoError(t, err)
	props := fn.Schema().Parameters["properties"].(map[string]any)
	assert.Contains(t, props, "id")
	assert.Contains(t, props, "$schema")
	assert.NotContains(t, fn.Schema().Parameters, "$schema")

	_, err = invokeLocal(t, fn, map[string]any{"id": "42"})
	require.NoError(t, err)
}

func TestTruncate_RuneBoundary(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdef", 2))
	// "é" is two bytes; cutting at 2 would split it.
	out := truncate("aéb", 2)
	assert.Equal(t, "a...", out)
	assert.True(t, utf8.ValidString(out))
}
