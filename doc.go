// Package fncall implements a text-based function-calling protocol for LLM agents.
//
// # Overview
//
// Models that lack native tool calling can still request function calls by emitting JSON in
// their text output. This package covers the three steps around that exchange:
//
//   - Encoder tells the model which functions exist and how to format a call.
//   - Extractor recovers an ordered CallBatch from the model's reply, tolerating prose,
//     fenced blocks and string-encoded arguments. It never fails; unusable input yields no calls.
//   - Dispatcher resolves each call against a Registry, invokes it locally or through a
//     RemoteTool, and attaches a Result (value or error) to every call. One failing call never
//     stops the others.
//
// Pipeline: Encoder.Encode → model → Extractor.Extract → Dispatcher.Dispatch →
// SummarizeResults → Encoder.EncodeFollowup → model.
//
// # Wire format
//
//	<==start_tool_calls==>
//	{"function_calls":[{"name":"get_weather","arguments":{"city":"Paris"}}]}
//	<==end_tool_calls==>
//
// A ```json fenced block, a bare JSON document, or a document carrying the batch one level
// down are accepted as well.
//
// # Example
//
//	type Args struct { City string `json:"city"` }
//	type Out  struct { Temp float64 `json:"temp"` }
//	weather, err := fncall.NewFunction("get_weather", "Get weather", func(_ context.Context, a Args) (Out, error) {
//	    return Out{Temp: 18}, nil
//	})
//	if err != nil { ... }
//	reg, err := fncall.NewRegistry([]fncall.Function{weather})
//	if err != nil { ... }
//	prompt := fncall.Encode("What is the weather in Paris?", reg.Functions())
//	// ... send prompt to the model, receive reply ...
//	results := fncall.NewDispatcher().Dispatch(ctx, fncall.Extract(reply), reg)
package fncall
