package fncall

import (
	"encoding/json"
	"slices"
)

// Wire names used by the text convention shared by Encoder and Extractor.
const (
	BatchField           = "function_calls"
	LegacyCallField      = "function_call"
	LegacyNextCallField  = "next_function_call"
	ToolCallsStartMarker = "<==start_tool_calls==>"
	ToolCallsEndMarker   = "<==end_tool_calls==>"
)

// ToolSchema is the contract advertised to the model for one function.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// FunctionCall is a single call request recovered from model output.
// Result is nil until the call has been dispatched.
type FunctionCall struct {
	ID        string  `json:"id,omitempty"`
	Name      string  `json:"name"`
	Arguments any     `json:"arguments"`
	Result    *Result `json:"result,omitempty"`
}

// UnmarshalJSON reads a present "result": null as a successful call with a nil value,
// so a call that returned nothing is not mistaken for one that never ran.
func (c *FunctionCall) UnmarshalJSON(data []byte) error {
	type plain FunctionCall
	var aux struct {
		plain
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*c = FunctionCall(aux.plain)
	c.Result = nil
	if aux.Result == nil {
		return nil
	}
	var r Result
	if err := r.UnmarshalJSON(aux.Result); err != nil {
		return err
	}
	c.Result = &r
	return nil
}

// Result is the outcome of one dispatched call: either a value or an error message.
type Result struct {
	Value any
	Error string
	err   error
}

// ValueResult returns a successful Result.
func ValueResult(v any) *Result {
	return &Result{Value: v}
}

// ErrorResult returns a failed Result. The error is kept for errors.Is/errors.As;
// only its message is serialized.
func ErrorResult(err error) *Result {
	return &Result{Error: err.Error(), err: err}
}

// IsError reports whether the call failed.
func (r *Result) IsError() bool {
	return r != nil && (r.Error != "" || r.err != nil)
}

// Err returns the underlying error of a failed Result, or nil.
func (r *Result) Err() error {
	if r == nil {
		return nil
	}
	return r.err
}

// MarshalJSON encodes a failed Result as {"error": message} and a successful one as its value.
func (r Result) MarshalJSON() ([]byte, error) {
	if r.Error != "" || r.err != nil {
		return json.Marshal(struct {
			Error string `json:"error"`
		}{Error: r.Error})
	}
	return json.Marshal(r.Value)
}

// UnmarshalJSON accepts the shape produced by MarshalJSON. An object whose only key is
// "error" with a string value is read back as a failed Result.
func (r *Result) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if m, ok := v.(map[string]any); ok && len(m) == 1 {
		if msg, ok := m["error"].(string); ok {
			*r = Result{Error: msg}
			return nil
		}
	}
	*r = Result{Value: v}
	return nil
}

// CallBatch is the ordered list of calls recovered from one model response.
type CallBatch []FunctionCall

// Names returns the call names in batch order.
func (b CallBatch) Names() []string {
	names := make([]string, len(b))
	for i, c := range b {
		names[i] = c.Name
	}
	return names
}

// Failed returns the calls whose Result is an error.
func (b CallBatch) Failed() CallBatch {
	var out CallBatch
	for _, c := range b {
		if c.Result.IsError() {
			out = append(out, c)
		}
	}
	return out
}

// Clone returns a copy of the batch. Results are copied; arguments are shared.
func (b CallBatch) Clone() CallBatch {
	if b == nil {
		return nil
	}
	out := slices.Clone(b)
	for i := range out {
		if out[i].Result != nil {
			r := *out[i].Result
			out[i].Result = &r
		}
	}
	return out
}
