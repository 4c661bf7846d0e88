package delta

import (
	"bytes"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/papercomputeco/yui/pkg/sse"
	"github.com/papercomputeco/yui/pkg/utils"
)

// Extractor parses stream event payloads into deltas. It understands the
// OpenAI chat completion chunk shape, the legacy {"delta": "..."} and
// {"done": true} shapes, and the {"error": "..."} frame emitted by the yui
// proxy. Unparseable or unrecognized payloads produce no delta and a debug
// diagnostic.
type Extractor struct {
	logger *zap.Logger
}

// NewExtractor returns an Extractor logging diagnostics to logger. A nil
// logger discards them.
func NewExtractor(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger}
}

// Extract maps one event to zero or more deltas. end is true when the event
// ends the message and no further events should be processed.
func (e *Extractor) Extract(ev sse.StreamEvent) (deltas []Delta, end bool) {
	if ev.Terminator {
		return []Delta{Done(nil)}, true
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(ev.Payload), &fields); err != nil {
		e.logger.Debug("dropping unparseable stream payload",
			zap.Error(err),
			zap.String("payload", utils.Truncate(ev.Payload, 200)),
		)
		return nil, false
	}

	// 1. OpenAI chunk: choices[0].delta
	if choice, ok := firstChoice(fields); ok {
		if d, ok := objectField(choice, "delta"); ok {
			if text, ok := stringField(d, "reasoning_content"); ok && text != "" {
				deltas = append(deltas, Reasoning(text))
			}
			if text, ok := stringField(d, "content"); ok && text != "" {
				deltas = append(deltas, Content(text))
			}
			if reason, ok := finishReason(choice); ok {
				deltas = append(deltas, Done(&reason))
				return deltas, true
			}
			return deltas, false
		}
	}

	// 2. Legacy top-level delta string
	if raw, ok := fields["delta"]; ok {
		var text string
		if err := json.Unmarshal(raw, &text); err == nil {
			if text == "" {
				return nil, false
			}
			return []Delta{Content(text)}, false
		}
	}

	// 3. Top-level done flag
	if raw, ok := fields["done"]; ok && truthy(raw) {
		return []Delta{Done(nil)}, true
	}

	// Error frame
	if msg, ok := stringField(fields, "error"); ok && msg != "" {
		return []Delta{Error(msg)}, true
	}

	e.logger.Debug("dropping stream payload with unrecognized shape",
		zap.String("payload", utils.Truncate(ev.Payload, 200)),
	)
	return nil, false
}

// firstChoice returns choices[0] when it is a JSON object.
func firstChoice(fields map[string]json.RawMessage) (map[string]json.RawMessage, bool) {
	raw, ok := fields["choices"]
	if !ok {
		return nil, false
	}

	var choices []json.RawMessage
	if err := json.Unmarshal(raw, &choices); err != nil || len(choices) == 0 {
		return nil, false
	}

	var choice map[string]json.RawMessage
	if err := json.Unmarshal(choices[0], &choice); err != nil || choice == nil {
		return nil, false
	}
	return choice, true
}

// objectField returns fields[key] decoded as a JSON object.
func objectField(fields map[string]json.RawMessage, key string) (map[string]json.RawMessage, bool) {
	raw, ok := fields[key]
	if !ok {
		return nil, false
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

// stringField returns fields[key] when it is a JSON string.
func stringField(fields map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := fields[key]
	if !ok {
		return "", false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// finishReason reports a present, non-null finish_reason. Non-string values
// are kept in their JSON text form.
func finishReason(choice map[string]json.RawMessage) (string, bool) {
	raw, ok := choice["finish_reason"]
	if !ok {
		return "", false
	}

	raw = bytes.TrimSpace(raw)
	if bytes.Equal(raw, []byte("null")) {
		return "", false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	return string(raw), true
}

// truthy applies JavaScript truthiness to a JSON value.
func truthy(raw json.RawMessage) bool {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}

	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	default:
		return true
	}
}
