package fncall

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ResponseFormat asks the model to answer a followup in a specific format.
// The zero value requests no particular format.
type ResponseFormat string

// FormatJSON asks for a JSON-only answer.
const FormatJSON ResponseFormat = "json"

// Encoder renders function schemas and calling instructions into prompts.
type Encoder struct {
	opts encoderOptions
}

// NewEncoder creates an Encoder. The schema list is indented with two spaces by default.
func NewEncoder(opts ...EncoderOption) *Encoder {
	o := encoderOptions{indent: "  "}
	for _, opt := range opts {
		opt(&o)
	}
	return &Encoder{opts: o}
}

var defaultEncoder = NewEncoder()

// Encode runs the default Encoder.
func Encode(prompt string, functions []Function) string {
	return defaultEncoder.Encode(prompt, functions)
}

// EncodeFollowup runs the default Encoder.
func EncodeFollowup(original, previous, summary string, format ResponseFormat) string {
	return defaultEncoder.EncodeFollowup(original, previous, summary, format)
}

// Encode appends the function list and the call format to prompt. With no functions
// the prompt is returned unchanged.
func (e *Encoder) Encode(prompt string, functions []Function) string {
	if len(functions) == 0 {
		return prompt
	}
	schemas := make([]ToolSchema, 0, len(functions))
	for _, f := range functions {
		if f == nil {
			continue
		}
		schemas = append(schemas, f.Schema())
	}
	if len(schemas) == 0 {
		return prompt
	}

	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\n\nYou can call the following functions:\n")
	b.WriteString(e.marshal(schemas))
	b.WriteString("\n\nTo call one or more functions, reply with a block in exactly this format:\n")
	b.WriteString(ToolCallsStartMarker)
	b.WriteString("\n")
	fmt.Fprintf(&b, `{"%s":[{"name":"<function name>","arguments":{<arguments object>}}]}`, BatchField)
	b.WriteString("\n")
	b.WriteString(ToolCallsEndMarker)
	b.WriteString("\n\nRules:\n")
	b.WriteString("- Only use the function names listed above. Never invent a function.\n")
	b.WriteString("- \"arguments\" must be a JSON object matching the function's parameters.\n")
	b.WriteString("- List every call you need in the \"" + BatchField + "\" array, in the order they should run.\n")
	if e.opts.legacyFormats {
		fmt.Fprintf(&b, "- A single call may also be written as {\"%s\":{\"name\":...,\"arguments\":{...}}}, "+
			"or as {\"response\":\"<text>\",\"%s\":{\"name\":...,\"arguments\":{...}}} when you also answer.\n",
			LegacyCallField, LegacyNextCallField)
	} else {
		b.WriteString("- Do not use any other format for function calls.\n")
	}
	b.WriteString("- If no function is needed, answer normally without the block.")
	return b.String()
}

// EncodeFollowup composes the next turn after functions ran: the original question, the
// previous model response, a summary of the call results, and an optional format instruction.
func (e *Encoder) EncodeFollowup(original, previous, summary string, format ResponseFormat) string {
	var b strings.Builder
	b.WriteString("Original question:\n")
	b.WriteString(original)
	b.WriteString("\n\nYour previous response:\n")
	b.WriteString(previous)
	b.WriteString("\n\nFunction results:\n")
	b.WriteString(summary)
	b.WriteString("\n\nUsing these results, answer the original question.")
	switch {
	case format == FormatJSON:
		b.WriteString(" Respond with valid JSON only, without markdown fences or any other text.")
	case format != "":
		fmt.Fprintf(&b, " Format your answer as: %s", format)
	}
	return b.String()
}

// SummarizeResults renders one line per call, in batch order:
// "name(arguments) -> result" or "name(arguments) -> error: message".
func SummarizeResults(calls CallBatch) string {
	lines := make([]string, 0, len(calls))
	for _, c := range calls {
		line := c.Name + "(" + compactJSON(c.Arguments) + ") -> "
		switch {
		case c.Result == nil:
			line += "not executed"
		case c.Result.IsError():
			line += "error: " + c.Result.Error
		default:
			line += compactJSON(c.Result.Value)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (e *Encoder) marshal(schemas []ToolSchema) string {
	var data []byte
	var err error
	if e.opts.indent == "" {
		data, err = json.Marshal(schemas)
	} else {
		data, err = json.MarshalIndent(schemas, "", e.opts.indent)
	}
	if err != nil {
		// Parameters that cannot be encoded still leave names and descriptions usable.
		var b strings.Builder
		for _, s := range schemas {
			fmt.Fprintf(&b, "- %s: %s\n", s.Name, s.Description)
		}
		return strings.TrimRight(b.String(), "\n")
	}
	return string(data)
}

func compactJSON(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
