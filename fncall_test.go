package fncall

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestFunctionCall_JSON(t *testing.T) {
	call := FunctionCall{Name: "get_weather", Arguments: map[string]any{"city": "Paris"}}
	data, err := json.Marshal(call)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"get_weather","arguments":{"city":"Paris"}}`, string(data))

	call.Result = ValueResult(map[string]any{"temp": 18})
	data, err = json.Marshal(call)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"get_weather","arguments":{"city":"Paris"},"result":{"temp":18}}`, string(data))

	call.Result = ErrorResult(errors.New("boom"))
	data, err = json.Marshal(call)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"get_weather","arguments":{"city":"Paris"},"result":{"error":"boom"}}`, string(data))
}

func TestFunctionCall_UnmarshalJSON_NilValue(t *testing.T) {
	data, err := json.Marshal(CallBatch{
		{Name: "ran", Result: ValueResult(nil)},
		{Name: "pending"},
		{Name: "failed", Result: ErrorResult(errors.New("boom"))},
	})
	require.NoError(t, err)

	var batch CallBatch
	require.NoError(t, json.Unmarshal(data, &batch))
	require.Len(t, batch, 3)
	require.NotNil(t, batch[0].Result, "a call that returned nothing still ran")
	assert.False(t, batch[0].Result.IsError())
	assert.Nil(t, batch[0].Result.Value)
	assert.Nil(t, batch[1].Result)
	assert.Equal(t, "boom", batch[2].Result.Error)
	assert.Equal(t, "ran({}) -> null\npending({}) -> not executed\nfailed({}) -> error: boom", SummarizeResults(CallBatch{
		{Name: batch[0].Name, Arguments: map[string]any{}, Result: batch[0].Result},
		{Name: batch[1].Name, Arguments: map[string]any{}},
		{Name: batch[2].Name, Arguments: map[string]any{}, Result: batch[2].Result},
	}))
}

func TestResult_UnmarshalJSON(t *testing.T) {
	var r Result
	require.NoError(t, json.Unmarshal([]byte(`{"error":"nope"}`), &r))
	assert.True(t, r.IsError())
	assert.Equal(t, "nope", r.Error)

	require.NoError(t, json.Unmarshal([]byte(`{"error":"x","code":1}`), &r))
	assert.False(t, r.IsError(), "objects with more keys are plain values")
	assert.Equal(t, map[string]any{"error": "x", "code": float64(1)}, r.Value)
}

func TestResult_Err(t *testing.T) {
	var nilResult *Result
	assert.False(t, nilResult.IsError())
	assert.NoError(t, nilResult.Err())

	r := ErrorResult(notFoundError("x"))
	assert.ErrorIs(t, r.Err(), ErrFunctionNotFound)
	assert.Equal(t, "Function 'x' not found", r.Error)
	assert.False(t, ValueResult(nil).IsError())
}

func TestCallBatch_Helpers(t *testing.T) {
	batch := CallBatch{
		{Name: "a", Result: ValueResult(1)},
		{Name: "b", Result: ErrorResult(errors.New("bad"))},
		{Name: "c"},
	}
	assert.Equal(t, []string{"a", "b", "c"}, batch.Names())
	failed := batch.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "b", failed[0].Name)

	clone := batch.Clone()
	clone[0].Result.Value = 2
	clone[2].Name = "changed"
	assert.Equal(t, 1, batch[0].Result.Value, "results are copied")
	assert.Equal(t, "c", batch[2].Name)
	assert.Nil(t, CallBatch(nil).Clone())
}
