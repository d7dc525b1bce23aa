package llm

import (
	"encoding/json"
	"strings"
)

// toolCallAccumulator assembles one streamed tool call from its fragments:
// id and name are written once by the first fragment that carries them, while
// argument fragments append in arrival order.
type toolCallAccumulator struct {
	id   string
	name string
	args strings.Builder
}

// streamCollector folds classified stream events into the final response.
// Classification decides control flow, but absorption is shape driven: a
// finishing frame that still carries a trailing delta or usage report loses
// nothing.
type streamCollector struct {
	text      strings.Builder
	calls     map[int]*toolCallAccumulator
	order     []int
	usage     TokenCounts
	usageSeen bool
	finish    string
	done      bool

	firstText *FirstChunkSignal
}

func newStreamCollector(firstText *FirstChunkSignal) *streamCollector {
	return &streamCollector{
		calls:     make(map[int]*toolCallAccumulator),
		firstText: firstText,
	}
}

// apply folds one event into the collector. Error events abort with a
// StreamError; everything else accumulates. It reports whether the stream is
// finished.
func (c *streamCollector) apply(event streamEvent) (bool, error) {
	switch event.kind {
	case eventError:
		return true, &StreamError{Message: streamErrorMessage(event.payload)}
	case eventDone:
		c.done = true
		if event.payload != nil {
			c.absorb(event.payload)
		}
		return true, nil
	case eventDelta, eventUsage:
		c.absorb(event.payload)
	}
	return false, nil
}

func (c *streamCollector) absorb(payload map[string]any) {
	if text := extractText(payload); text != "" {
		c.text.WriteString(text)
		if c.firstText != nil && strings.TrimSpace(c.text.String()) != "" {
			c.firstText.Fire()
		}
	}

	for _, fragment := range extractToolCallFragments(payload) {
		call, ok := c.calls[fragment.index]
		if !ok {
			call = &toolCallAccumulator{}
			c.calls[fragment.index] = call
			c.order = append(c.order, fragment.index)
		}
		if call.id == "" {
			call.id = fragment.id
		}
		if call.name == "" {
			call.name = fragment.name
		}
		call.args.WriteString(fragment.arguments)
	}

	if usage, ok := usagePayload(payload); ok {
		c.usage = usageCounts(usage)
		c.usageSeen = true
	}

	if reason := finishReason(payload); reason != "" {
		c.finish = reason
	}
}

// finalize assembles the accumulated tool calls. A call whose argument buffer
// is not valid JSON, or that never received an id or name, yields a
// ToolArgumentsError without affecting its siblings. Only called at end of
// stream: argument buffers are legitimately partial until then.
func (c *streamCollector) finalize() (toolCalls []ToolCall, invalid []error) {
	for _, index := range c.order {
		call := c.calls[index]
		args := call.args.String()
		if err := validateCallArguments(call, args); err != nil {
			invalid = append(invalid, err)
			continue
		}
		toolCalls = append(toolCalls, ToolCall{Id: call.id, Name: call.name, Arguments: args})
	}
	return toolCalls, invalid
}

func validateCallArguments(call *toolCallAccumulator, args string) error {
	if call.name == "" {
		return &ToolArgumentsError{Id: call.id, Name: call.name, Arguments: args, Err: errMissingName}
	}
	if strings.TrimSpace(args) == "" {
		// a call with no argument fragments is an argument-less invocation
		return nil
	}
	if !json.Valid([]byte(args)) {
		return &ToolArgumentsError{Id: call.id, Name: call.name, Arguments: args, Err: errMalformedArguments}
	}
	return nil
}

var (
	errMissingName        = &fieldError{"tool call never received a name"}
	errMalformedArguments = &fieldError{"argument buffer is not valid JSON"}
)

type fieldError struct{ msg string }

func (e *fieldError) Error() string { return e.msg }
