package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectTextClass(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		text string
		want string
	}{
		{"empty", "", "default"},
		{"plain english", "Turn on the kitchen light please", "english"},
		{"italian", "Accendi la luce in cucina, è già tardi perché sì così più", "italian"},
		{"code", `{"a":(1);"b":[2];"c":{3};x=<y>}{}[]()`, "code"},
		{"mixed scripts", "hello мир 世界 hello мир 世界", "mixed"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, detectTextClass(tc.text))
		})
	}
}

func TestEstimateTokens(t *testing.T) {
	t.Parallel()

	messages := []ChatMessage{
		SystemMessage(strings.Repeat("a", 130)),
		UserMessage(strings.Repeat("b", 13)),
	}
	counts := EstimateTokens(messages, strings.Repeat("c", 26))

	assert.True(t, counts.Estimated)
	// roughly 130/1.3 + 13/1.3 + 2 messages * 4 overhead
	assert.InDelta(t, 118, counts.Prompt, 2)
	assert.InDelta(t, 20, counts.Completion, 1)
	assert.Equal(t, counts.Prompt+counts.Completion, counts.Total)
}

func TestEstimateTokens_EmptyCompletion(t *testing.T) {
	t.Parallel()

	counts := EstimateTokens([]ChatMessage{UserMessage("hi")}, "")
	assert.True(t, counts.Estimated)
	assert.Zero(t, counts.Completion)
	assert.Positive(t, counts.Prompt)
}

func TestEstimateMessageTokens(t *testing.T) {
	t.Parallel()

	messages := []ChatMessage{
		UserMessage(strings.Repeat("x", 13)),
		AssistantMessage(strings.Repeat("y", 26), nil),
	}
	// roughly 10 + 20 content tokens + 2 * 4 overhead
	assert.InDelta(t, 38, EstimateMessageTokens(messages), 2)
}
