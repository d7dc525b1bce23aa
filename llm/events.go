package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

type eventKind string

const (
	eventDelta   eventKind = "delta"
	eventUsage   eventKind = "usage"
	eventError   eventKind = "error"
	eventDone    eventKind = "done"
	eventUnknown eventKind = "unknown"
)

// doneSentinel is the literal terminator frame some server versions send in
// place of a completion event.
const doneSentinel = "[DONE]"

type streamEvent struct {
	kind eventKind

	// payload is the decoded JSON object, nil for sentinel and malformed
	// frames.
	payload map[string]any
	raw     string
}

// classifyFrame decides what a frame means. An explicit event name wins over
// structural inference; frames whose data is not a JSON object classify as
// unknown rather than failing the stream.
func classifyFrame(frame sseFrame) streamEvent {
	if strings.TrimSpace(frame.data) == doneSentinel {
		return streamEvent{kind: eventDone, raw: frame.data}
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(frame.data), &payload); err != nil || payload == nil {
		return streamEvent{kind: eventUnknown, raw: frame.data}
	}

	if kind, ok := classifyByEventName(frame.event); ok {
		return streamEvent{kind: kind, payload: payload, raw: frame.data}
	}
	return streamEvent{kind: classifyByShape(payload), payload: payload, raw: frame.data}
}

// classifyByEventName matches the event name against the vocabularies seen
// across server versions. Matching is substring based since names like
// "response.output_text.delta" and "content.delta" vary by version.
func classifyByEventName(name string) (eventKind, bool) {
	if name == "" {
		return eventUnknown, false
	}
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "error") || strings.Contains(lower, "failed"):
		return eventError, true
	case strings.Contains(lower, "usage"):
		return eventUsage, true
	case strings.Contains(lower, "completed") || strings.Contains(lower, "done") || strings.Contains(lower, "stop"):
		return eventDone, true
	case strings.Contains(lower, "delta") || strings.Contains(lower, "chunk") || strings.Contains(lower, "output_text"):
		return eventDelta, true
	}
	return eventUnknown, false
}

func classifyByShape(payload map[string]any) eventKind {
	if _, ok := payload["error"]; ok {
		return eventError
	}
	if _, ok := usagePayload(payload); ok {
		return eventUsage
	}
	if finishReason(payload) != "" {
		return eventDone
	}
	if hasDeltaContent(payload) {
		return eventDelta
	}
	return eventUnknown
}

// textExtractor is a pure lookup for one historical payload shape. Extractors
// run in order and the first one that finds a string wins, so newer shapes
// must come before the looser fallbacks.
type textExtractor func(payload map[string]any) (string, bool)

var textExtractors = []textExtractor{
	extractChoiceDeltaText, // {"choices":[{"delta":{"content":"..."}}]}
	extractDeltaText,       // {"delta":{"content":"..."}} / {"delta":{"text":"..."}}
	extractBareText,        // {"content":"..."} / {"text":"..."}
}

func extractText(payload map[string]any) string {
	for _, extract := range textExtractors {
		if text, ok := extract(payload); ok {
			return text
		}
	}
	return ""
}

func extractChoiceDeltaText(payload map[string]any) (string, bool) {
	for _, choice := range payloadChoices(payload) {
		delta, ok := choice["delta"].(map[string]any)
		if !ok {
			continue
		}
		if text, ok := delta["content"].(string); ok {
			return text, true
		}
	}
	return "", false
}

func extractDeltaText(payload map[string]any) (string, bool) {
	delta, ok := payload["delta"].(map[string]any)
	if !ok {
		return "", false
	}
	if text, ok := delta["content"].(string); ok {
		return text, true
	}
	if text, ok := delta["text"].(string); ok {
		return text, true
	}
	return "", false
}

func extractBareText(payload map[string]any) (string, bool) {
	if text, ok := payload["content"].(string); ok {
		return text, true
	}
	if text, ok := payload["text"].(string); ok {
		return text, true
	}
	return "", false
}

func hasDeltaContent(payload map[string]any) bool {
	if _, ok := extractChoiceDeltaText(payload); ok {
		return true
	}
	if len(extractToolCallFragments(payload)) > 0 {
		return true
	}
	if _, ok := extractDeltaText(payload); ok {
		return true
	}
	_, ok := extractBareText(payload)
	return ok
}

// toolCallFragment is one streamed slice of a tool call. id and name are only
// present on the first fragment of a call; arguments arrive on any fragment.
type toolCallFragment struct {
	index     int
	id        string
	name      string
	arguments string
}

func extractToolCallFragments(payload map[string]any) []toolCallFragment {
	var fragments []toolCallFragment
	for _, choice := range payloadChoices(payload) {
		delta, ok := choice["delta"].(map[string]any)
		if !ok {
			continue
		}
		rawCalls, ok := delta["tool_calls"].([]any)
		if !ok {
			continue
		}
		for position, rawCall := range rawCalls {
			call, ok := rawCall.(map[string]any)
			if !ok {
				continue
			}
			fragment := toolCallFragment{index: position}
			if index, ok := call["index"].(float64); ok {
				fragment.index = int(index)
			}
			if id, ok := call["id"].(string); ok {
				fragment.id = id
			}
			if function, ok := call["function"].(map[string]any); ok {
				if name, ok := function["name"].(string); ok {
					fragment.name = name
				}
				if args, ok := function["arguments"].(string); ok {
					fragment.arguments = args
				}
			}
			fragments = append(fragments, fragment)
		}
	}
	return fragments
}

func payloadChoices(payload map[string]any) []map[string]any {
	rawChoices, ok := payload["choices"].([]any)
	if !ok {
		return nil
	}
	choices := make([]map[string]any, 0, len(rawChoices))
	for _, rawChoice := range rawChoices {
		if choice, ok := rawChoice.(map[string]any); ok {
			choices = append(choices, choice)
		}
	}
	return choices
}

func finishReason(payload map[string]any) string {
	for _, choice := range payloadChoices(payload) {
		if reason, ok := choice["finish_reason"].(string); ok && reason != "" && reason != "null" {
			return reason
		}
	}
	if status, ok := payload["status"].(string); ok && (status == "completed" || status == "incomplete") {
		return status
	}
	return ""
}

// usagePayload returns the object carrying token counts, either a nested
// "usage" member or the payload itself when counts appear at the top level.
func usagePayload(payload map[string]any) (map[string]any, bool) {
	if usage, ok := payload["usage"].(map[string]any); ok && len(usage) > 0 {
		return usage, true
	}
	for _, key := range []string{"prompt_tokens", "input_tokens"} {
		if _, ok := payload[key]; ok {
			return payload, true
		}
	}
	return nil, false
}

func usageCounts(usage map[string]any) TokenCounts {
	counts := TokenCounts{
		Prompt:     intField(usage, "prompt_tokens", "input_tokens"),
		Completion: intField(usage, "completion_tokens", "output_tokens"),
	}
	counts.Total = intField(usage, "total_tokens")
	if counts.Total == 0 {
		counts.Total = counts.Prompt + counts.Completion
	}
	return counts
}

func intField(payload map[string]any, keys ...string) int {
	for _, key := range keys {
		if value, ok := payload[key].(float64); ok {
			return int(value)
		}
	}
	return 0
}

// streamErrorMessage digs the human-readable message out of an error payload.
func streamErrorMessage(payload map[string]any) string {
	if errObject, ok := payload["error"].(map[string]any); ok {
		if message, ok := errObject["message"].(string); ok && message != "" {
			return message
		}
	}
	if message, ok := payload["error"].(string); ok && message != "" {
		return message
	}
	if message, ok := payload["message"].(string); ok && message != "" {
		return message
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("%v", payload)
	}
	return string(raw)
}
