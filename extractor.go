package fncall

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Extractor recovers an ordered CallBatch from model output. It never fails: anything it
// cannot interpret contributes no calls. An Extractor is immutable and safe for concurrent use.
//
// Strategies, in priority order, stopping at the first that yields a call:
//  1. parse the whole input as one JSON document;
//  2. read the top-level "function_calls" array;
//  3. if there is no such field, look one level down (and only one) for an object carrying it;
//  4. if the text is not JSON at all, apply 1-3 to every fenced JSON block and concatenate.
type Extractor struct {
	opts extractorOptions
}

// NewExtractor creates an Extractor with the given options.
func NewExtractor(opts ...ExtractorOption) *Extractor {
	var o extractorOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &Extractor{opts: o}
}

var defaultExtractor = NewExtractor()

// Extract runs the default Extractor on content.
func Extract(content any) CallBatch {
	return defaultExtractor.Extract(content)
}

// Extract accepts raw text (string, []byte, json.RawMessage) or an already decoded value
// (map[string]any, or anything encoding/json can marshal). Fenced blocks are only searched
// for in raw text.
func (e *Extractor) Extract(content any) CallBatch {
	switch c := content.(type) {
	case nil:
		return nil
	case string:
		return e.ExtractText(c)
	case []byte:
		return e.ExtractText(string(c))
	case json.RawMessage:
		return e.ExtractText(string(c))
	}
	doc, err := documentFromValue(content)
	if err != nil {
		e.logger().Debug("extract: structured content is not usable", "error", err)
		return nil
	}
	return e.fromDocument(doc)
}

// ExtractText extracts calls from raw model output.
func (e *Extractor) ExtractText(text string) CallBatch {
	doc, err := parseDocument([]byte(text))
	if err == nil {
		return e.fromDocument(doc)
	}
	blocks := scanFencedBlocks(text)
	if len(blocks) == 0 {
		e.logger().Debug("extract: no JSON document or fenced block found", "length", len(text))
		return nil
	}
	var out CallBatch
	for i, block := range blocks {
		calls := e.fromBlock(block)
		e.logger().Debug("extract: fenced block", "index", i, "calls", len(calls))
		out = append(out, calls...)
	}
	return out
}

// fromBlock applies the structural strategies to one fenced block. A block that does not
// parse is searched for nested fences (e.g. ```json inside tool-call markers).
func (e *Extractor) fromBlock(content string) CallBatch {
	doc, err := parseDocument([]byte(content))
	if err != nil && e.opts.repair {
		if repaired, rerr := jsonrepair.JSONRepair(content); rerr == nil {
			doc, err = parseDocument([]byte(repaired))
		}
	}
	if err == nil {
		return e.fromDocument(doc)
	}
	inner := scanFencedBlocks(content)
	if len(inner) == 0 {
		e.logger().Debug("extract: skipping unparseable block", "error", err)
		return nil
	}
	var out CallBatch
	for _, block := range inner {
		out = append(out, e.fromBlock(block)...)
	}
	return out
}

func (e *Extractor) fromDocument(doc document) CallBatch {
	calls := e.batchCalls(doc)
	if len(calls) == 0 && e.opts.legacyShapes {
		calls = e.legacyCalls(doc)
	}
	return calls
}

// batchCalls reads the batch field at the top level, or failing that in the first
// immediate field that is an object carrying it. The search depth is fixed at one level.
func (e *Extractor) batchCalls(doc document) CallBatch {
	if raw, ok := doc.get(BatchField); ok {
		return e.callsFromList(raw)
	}
	for _, m := range doc {
		obj, ok := m.value.(map[string]any)
		if !ok {
			continue
		}
		if raw, ok := obj[BatchField]; ok {
			e.logger().Debug("extract: using nested batch", "field", m.key)
			return e.callsFromList(raw)
		}
	}
	return nil
}

func (e *Extractor) legacyCalls(doc document) CallBatch {
	var out CallBatch
	for _, m := range doc {
		if m.key != LegacyCallField && m.key != LegacyNextCallField {
			continue
		}
		if call, ok := e.callFromEntry(m.value); ok {
			out = append(out, call)
		}
	}
	return out
}

func (e *Extractor) callsFromList(raw any) CallBatch {
	var items []any
	switch v := raw.(type) {
	case []any:
		items = v
	case []map[string]any:
		items = make([]any, len(v))
		for i := range v {
			items[i] = v[i]
		}
	default:
		e.logger().Debug("extract: batch field is not an array")
		return nil
	}
	out := make(CallBatch, 0, len(items))
	for i, item := range items {
		call, ok := e.callFromEntry(item)
		if !ok {
			e.logger().Debug("extract: discarding entry without name", "index", i)
			continue
		}
		out = append(out, call)
	}
	return out
}

func (e *Extractor) callFromEntry(item any) (FunctionCall, bool) {
	obj, ok := item.(map[string]any)
	if !ok {
		return FunctionCall{}, false
	}
	name, _ := obj["name"].(string)
	name = strings.TrimSpace(name)
	if name == "" {
		return FunctionCall{}, false
	}
	call := FunctionCall{Name: name, Arguments: e.decodeArguments(obj["arguments"])}
	if id, ok := obj["id"].(string); ok {
		call.ID = id
	}
	return call, true
}

// decodeArguments returns structured arguments as-is and decodes string arguments as JSON,
// repeatedly for double-encoded payloads. A string that does not decode is kept verbatim.
func (e *Extractor) decodeArguments(v any) any {
	s, ok := v.(string)
	if !ok {
		if v == nil {
			return map[string]any{}
		}
		return v
	}
	var out any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		if !e.opts.repair {
			return s
		}
		repaired, rerr := jsonrepair.JSONRepair(s)
		if rerr != nil || json.Unmarshal([]byte(repaired), &out) != nil {
			return s
		}
	}
	if inner, ok := out.(string); ok && inner != s {
		return e.decodeArguments(inner)
	}
	return out
}

func (e *Extractor) logger() *slog.Logger {
	if e.opts.logger != nil {
		return e.opts.logger
	}
	return slog.Default()
}

// member is one top-level field of a decoded JSON object.
type member struct {
	key   string
	value any
}

// document is a decoded top-level JSON object with its key order. It is nil for
// JSON documents that are not objects.
type document []member

func (d document) get(key string) (any, bool) {
	for _, m := range d {
		if m.key == key {
			return m.value, true
		}
	}
	return nil, false
}

var errInvalidJSON = errors.New("not a valid JSON document")

// parseDocument decodes data as a single JSON document. Valid JSON that is not an object
// yields an empty document and no error.
func parseDocument(data []byte) (document, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || !json.Valid(data) {
		return nil, errInvalidJSON
	}
	if data[0] != '{' {
		return nil, nil
	}
	om := orderedmap.New[string, any]()
	if err := json.Unmarshal(data, om); err != nil {
		// The ordered decoder is stricter than encoding/json (e.g. invalid UTF-8 in keys).
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return documentFromValue(m)
	}
	doc := make(document, 0, om.Len())
	for pair := om.Oldest(); pair != nil; pair = pair.Next() {
		doc = append(doc, member{key: pair.Key, value: pair.Value})
	}
	return doc, nil
}

// documentFromValue adapts an already decoded value. A Go map has no key order, so its
// keys are visited in sorted order; other values are round-tripped through encoding/json.
func documentFromValue(v any) (document, error) {
	if m, ok := v.(map[string]any); ok {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		doc := make(document, len(keys))
		for i, k := range keys {
			doc[i] = member{key: k, value: m[k]}
		}
		return doc, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return parseDocument(data)
}

// scanFencedBlocks returns the contents of every complete fenced JSON block in textual order.
// Openers are a "```json" line (any case) closed by "```", or the tool-call start marker
// closed by the end marker; each delimiter sits on its own line. Unterminated blocks are dropped.
func scanFencedBlocks(text string) []string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	var blocks []string
	var buf []string
	closer := ""
	for _, line := range lines {
		trim := strings.TrimSpace(line)
		if closer == "" {
			closer = fenceCloser(trim)
			buf = buf[:0]
			continue
		}
		if trim == closer {
			blocks = append(blocks, strings.Join(buf, "\n"))
			closer = ""
			continue
		}
		buf = append(buf, line)
	}
	return blocks
}

func fenceCloser(opener string) string {
	switch {
	case strings.EqualFold(opener, "```json"):
		return "```"
	case opener == ToolCallsStartMarker:
		return ToolCallsEndMarker
	}
	return ""
}
