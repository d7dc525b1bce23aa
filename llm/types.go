package llm

import (
	"github.com/invopop/jsonschema"
)

type ChatMessageRole string

const (
	ChatMessageRoleSystem    ChatMessageRole = "system"
	ChatMessageRoleUser      ChatMessageRole = "user"
	ChatMessageRoleAssistant ChatMessageRole = "assistant"
	ChatMessageRoleTool      ChatMessageRole = "tool"
)

type ChatMessage struct {
	Role    ChatMessageRole `json:"role"`
	Content string          `json:"content"`

	// ToolCalls is set on assistant messages that requested tool invocations.
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`

	// ToolCallId is set on tool messages and refers back to the assistant
	// tool call the content responds to.
	ToolCallId string `json:"toolCallId,omitempty"`

	Name string `json:"name,omitempty"`
}

// ToolCall is a fully assembled tool invocation request from the model.
// Arguments holds the raw JSON argument object exactly as streamed.
type ToolCall struct {
	Id        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type Tool struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters"`
}

// TokenCounts records prompt/completion token accounting for one completion.
// Estimated is true when the counts come from the character-ratio fallback
// instead of a usage report from the server.
type TokenCounts struct {
	Prompt     int  `json:"prompt"`
	Completion int  `json:"completion"`
	Total      int  `json:"total"`
	Estimated  bool `json:"estimated"`
}

// ChatResponse is the fully accumulated result of one streamed completion.
type ChatResponse struct {
	Text         string      `json:"text"`
	ToolCalls    []ToolCall  `json:"toolCalls,omitempty"`
	Tokens       TokenCounts `json:"tokens"`
	FinishReason string      `json:"finishReason,omitempty"`

	// ToolCallErrors holds one ToolArgumentsError per streamed tool call whose
	// argument buffer never became valid JSON. Valid sibling calls still
	// appear in ToolCalls.
	ToolCallErrors []error `json:"-"`
}

func SystemMessage(content string) ChatMessage {
	return ChatMessage{Role: ChatMessageRoleSystem, Content: content}
}

func UserMessage(content string) ChatMessage {
	return ChatMessage{Role: ChatMessageRoleUser, Content: content}
}

func AssistantMessage(content string, toolCalls []ToolCall) ChatMessage {
	return ChatMessage{Role: ChatMessageRoleAssistant, Content: content, ToolCalls: toolCalls}
}

// ToolResponseMessage wraps a tool execution result so it can be fed back
// into the conversation on the next completion round.
func ToolResponseMessage(toolCall ToolCall, content string) ChatMessage {
	return ChatMessage{
		Role:       ChatMessageRoleTool,
		Content:    content,
		ToolCallId: toolCall.Id,
		Name:       toolCall.Name,
	}
}
