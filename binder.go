package fncall

import (
	"encoding/json"
	"maps"
	"reflect"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Binder provides JSON Schema generation and two-layer validation (schema + Validatable)
// for argument type T without binding to a Function. Use it in custom orchestrators that
// need schema export and validated decoding of call arguments.
type Binder[T any] struct {
	schemaMap map[string]any
	compiled  *jsonschema.Schema
}

// NewBinder creates a Binder for type T. When strict is true, the generated schema
// has additionalProperties: false for all objects and all properties required.
func NewBinder[T any](strict bool) (*Binder[T], error) {
	schemaMap, compiled, err := generateSchema[T](strict)
	if err != nil {
		return nil, err
	}
	return &Binder[T]{
		schemaMap: schemaMap,
		compiled:  compiled,
	}, nil
}

// Schema returns a shallow copy of the JSON Schema (top-level keys only).
// Nested maps are shared; callers must not mutate them.
func (b *Binder[T]) Schema() map[string]any {
	return maps.Clone(b.schemaMap)
}

// ParseAndValidate deserializes argsJSON into T, runs Layer 1 (schema validation) and
// Layer 2 (Validatable.Validate() if T implements it). Returns ClientError for invalid
// JSON or validation failures so the message can go back to the model.
func (b *Binder[T]) ParseAndValidate(argsJSON []byte) (T, error) {
	var zero T
	v, err := decodeInstance(argsJSON)
	if err != nil {
		return zero, wrapJSONParseError(err)
	}
	if err := validateAgainstSchema(b.compiled, v); err != nil {
		return zero, err
	}
	var args T
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		return zero, wrapJSONParseError(err)
	}
	if err := runLayer2Validation(args); err != nil {
		if IsClientError(err) {
			return zero, err
		}
		return zero, &ClientError{Reason: err.Error(), Err: ErrValidation}
	}
	return args, nil
}

// runLayer2Validation runs Validatable.Validate() on args; if args does not implement Validatable,
// it tries &args for value types (pointer receiver). Never calls Validate twice for the same receiver.
func runLayer2Validation[T any](args T) error {
	if err := validateCustom(any(args)); err != nil {
		return err
	}
	if _, ok := any(args).(Validatable); ok {
		return nil
	}
	typ := reflect.TypeOf(args)
	if typ == nil || typ.Kind() == reflect.Pointer {
		return nil
	}
	return validateCustom(any(&args))
}
