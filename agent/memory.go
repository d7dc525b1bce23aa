package agent

import (
	"sync"

	"hearth/llm"
)

// ConversationMemory is a token-budgeted sliding window over per-conversation
// transcripts. When a conversation outgrows the budget, the oldest
// non-system messages are evicted first; the system prompt always survives.
type ConversationMemory struct {
	mu            sync.Mutex
	budget        int
	conversations map[string][]llm.ChatMessage
}

func NewConversationMemory(tokenBudget int) *ConversationMemory {
	return &ConversationMemory{
		budget:        tokenBudget,
		conversations: make(map[string][]llm.ChatMessage),
	}
}

func (m *ConversationMemory) Append(conversationId string, messages ...llm.ChatMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	history := append(m.conversations[conversationId], messages...)
	m.conversations[conversationId] = m.trim(history)
}

// History returns a copy of the conversation transcript; callers own the
// returned slice for the duration of their turn.
func (m *ConversationMemory) History(conversationId string) []llm.ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]llm.ChatMessage(nil), m.conversations[conversationId]...)
}

func (m *ConversationMemory) Clear(conversationId string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conversations, conversationId)
}

func (m *ConversationMemory) trim(history []llm.ChatMessage) []llm.ChatMessage {
	if m.budget <= 0 {
		return history
	}
	for llm.EstimateMessageTokens(history) > m.budget {
		evicted := false
		for i, message := range history {
			if message.Role == llm.ChatMessageRoleSystem {
				continue
			}
			history = append(history[:i], history[i+1:]...)
			evicted = true
			break
		}
		if !evicted {
			break
		}
	}
	return history
}
