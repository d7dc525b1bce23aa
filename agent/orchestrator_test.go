package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hearth/common"
	"hearth/llm"
)

func orchestratorConfig() common.Config {
	cfg := common.DefaultConfig()
	cfg.APIBase = "http://unused.invalid"
	cfg.APITimeoutSeconds = 5
	cfg.FirstChunkWaitSeconds = 1
	return cfg
}

func TestOrchestrator_FastCompletionReturnsSynchronously(t *testing.T) {
	t.Parallel()

	client := &stubClient{completeReply: &llm.ChatResponse{
		Text:   "The light is on.",
		Tokens: llm.TokenCounts{Prompt: 5, Completion: 3, Total: 8},
	}}
	orchestrator := NewOrchestrator(client, nil, nil, nil, orchestratorConfig())

	result, err := orchestrator.ProcessTurn(context.Background(), "conv-1", "lights on", []llm.ChatMessage{llm.UserMessage("lights on")})
	require.NoError(t, err)

	assert.Equal(t, "The light is on.", result.Text)
	assert.False(t, result.Pending)
	assert.Equal(t, 8, result.Tokens.Total)
	assert.Zero(t, orchestrator.Store().Len())
}

func TestOrchestrator_SlowCompletionParksPendingAndResumes(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	client := &stubClient{
		completeReply: &llm.ChatResponse{Text: "Finally done."},
		block:         block,
	}
	orchestrator := NewOrchestrator(client, nil, nil, nil, orchestratorConfig())

	result, err := orchestrator.ProcessTurn(context.Background(), "conv-1", "do something slow", []llm.ChatMessage{llm.UserMessage("do something slow")})
	require.NoError(t, err)
	assert.True(t, result.Pending)
	assert.Equal(t, messagesForLanguage("en").stillProcessing, result.Text)
	assert.Equal(t, 1, orchestrator.Store().Len())

	close(block)

	// non-numeric input waits for the task and collects the real answer
	result, err = orchestrator.ProcessTurn(context.Background(), "conv-1", "keep waiting", nil)
	require.NoError(t, err)
	assert.False(t, result.Pending)
	assert.Equal(t, "Finally done.", result.Text)

	// delivery is exactly-once: the next turn on this conversation is fresh
	assert.Zero(t, orchestrator.Store().Len())
	_, err = orchestrator.ProcessTurn(context.Background(), "conv-1", "hello again", []llm.ChatMessage{llm.UserMessage("hello again")})
	require.NoError(t, err)
	completeCalls, _ := client.calls()
	assert.Equal(t, 2, completeCalls)
}

func TestOrchestrator_NumericWaitRenewsWithoutDiscardingPending(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	client := &stubClient{
		completeReply: &llm.ChatResponse{Text: "Done at last."},
		block:         block,
	}
	orchestrator := NewOrchestrator(client, nil, nil, nil, orchestratorConfig())

	result, err := orchestrator.ProcessTurn(context.Background(), "conv-9", "slow request", []llm.ChatMessage{llm.UserMessage("slow request")})
	require.NoError(t, err)
	require.True(t, result.Pending)

	// "1" waits one bounded second; the task is still blocked, so the entry
	// survives and the caller gets a renewed still-waiting message
	result, err = orchestrator.ProcessTurn(context.Background(), "conv-9", "1", nil)
	require.NoError(t, err)
	assert.True(t, result.Pending)
	assert.Equal(t, messagesForLanguage("en").stillWaitingAfter(1), result.Text)
	assert.Equal(t, 1, orchestrator.Store().Len())

	close(block)

	result, err = orchestrator.ProcessTurn(context.Background(), "conv-9", "2", nil)
	require.NoError(t, err)
	assert.False(t, result.Pending)
	assert.Equal(t, "Done at last.", result.Text)
	assert.Zero(t, orchestrator.Store().Len())
}

func TestOrchestrator_EarlyFirstChunkWaitsForFullAnswer(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	client := &stubClient{
		completeReply:  &llm.ChatResponse{Text: "Streamed answer."},
		block:          block,
		fireFirstChunk: true,
	}
	orchestrator := NewOrchestrator(client, nil, nil, nil, orchestratorConfig())

	// the task outlives the first-chunk window but text started flowing, so
	// the turn blocks for the real answer instead of parking
	time.AfterFunc(1500*time.Millisecond, func() { close(block) })

	result, err := orchestrator.ProcessTurn(context.Background(), "conv-2", "hi", []llm.ChatMessage{llm.UserMessage("hi")})
	require.NoError(t, err)
	assert.False(t, result.Pending)
	assert.Equal(t, "Streamed answer.", result.Text)
	assert.Zero(t, orchestrator.Store().Len())
}

func TestOrchestrator_FailuresBecomeLocalizedMessages(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want string
	}{
		{"generic error", errors.New("connection refused"), messagesForLanguage("en").failure},
		{"timeout", &llm.TimeoutError{Timeout: time.Second}, messagesForLanguage("en").timeout},
		{"cancellation", context.Canceled, messagesForLanguage("en").cancelled},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			client := &stubClient{err: tc.err}
			orchestrator := NewOrchestrator(client, nil, nil, nil, orchestratorConfig())

			result, err := orchestrator.ProcessTurn(context.Background(), "conv-err", "hi", []llm.ChatMessage{llm.UserMessage("hi")})
			require.NoError(t, err)
			assert.Equal(t, tc.want, result.Text)
			// raw error text never leaks into the answer
			assert.NotContains(t, result.Text, "connection refused")
		})
	}
}

func TestOrchestrator_EmptyAnswerBecomesFailureMessage(t *testing.T) {
	t.Parallel()

	client := &stubClient{completeReply: &llm.ChatResponse{Text: "   "}}
	orchestrator := NewOrchestrator(client, nil, nil, nil, orchestratorConfig())

	result, err := orchestrator.ProcessTurn(context.Background(), "conv-3", "hi", []llm.ChatMessage{llm.UserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, messagesForLanguage("en").failure, result.Text)
}

func TestOrchestrator_EarlyWaitDisabledBlocksForAnswer(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	client := &stubClient{completeReply: &llm.ChatResponse{Text: "Blocking answer."}, block: block}

	cfg := orchestratorConfig()
	cfg.EarlyWaitEnable = false
	orchestrator := NewOrchestrator(client, nil, nil, nil, cfg)

	time.AfterFunc(100*time.Millisecond, func() { close(block) })

	result, err := orchestrator.ProcessTurn(context.Background(), "conv-4", "hi", []llm.ChatMessage{llm.UserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, "Blocking answer.", result.Text)
	assert.Zero(t, orchestrator.Store().Len())
}

type recordingNotifier struct {
	mu      sync.Mutex
	results map[string]*TurnResult
}

func (n *recordingNotifier) AnswerReady(conversationId string, result *TurnResult) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.results == nil {
		n.results = make(map[string]*TurnResult)
	}
	n.results[conversationId] = result
}

func (n *recordingNotifier) get(conversationId string) *TurnResult {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.results[conversationId]
}

func TestOrchestrator_NotifierHearsAboutUncollectedAnswers(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	client := &stubClient{completeReply: &llm.ChatResponse{Text: "Late answer."}, block: block}
	notifier := &recordingNotifier{}
	orchestrator := NewOrchestrator(client, nil, nil, notifier, orchestratorConfig())

	result, err := orchestrator.ProcessTurn(context.Background(), "conv-5", "hi", []llm.ChatMessage{llm.UserMessage("hi")})
	require.NoError(t, err)
	require.True(t, result.Pending)

	close(block)

	require.Eventually(t, func() bool {
		return notifier.get("conv-5") != nil
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "Late answer.", notifier.get("conv-5").Text)

	// the cached result is still collectable after notification
	result, err = orchestrator.ProcessTurn(context.Background(), "conv-5", "anything", nil)
	require.NoError(t, err)
	assert.Equal(t, "Late answer.", result.Text)
}

func TestOrchestrator_SweepCancelsExpiredPending(t *testing.T) {
	t.Parallel()

	client := &stubClient{completeReply: &llm.ChatResponse{Text: "never delivered"}, block: make(chan struct{})}
	orchestrator := NewOrchestrator(client, nil, nil, nil, orchestratorConfig())

	result, err := orchestrator.ProcessTurn(context.Background(), "conv-6", "hi", []llm.ChatMessage{llm.UserMessage("hi")})
	require.NoError(t, err)
	require.True(t, result.Pending)

	swept := orchestrator.Store().Sweep(time.Now().Add(time.Hour))
	assert.Equal(t, []string{"conv-6"}, swept)
	assert.Zero(t, orchestrator.Store().Len())
}

func TestOrchestrator_SweptPendingStartsFreshTurn(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	client := &stubClient{completeReply: &llm.ChatResponse{Text: "Fresh answer."}, block: block}
	orchestrator := NewOrchestrator(client, nil, nil, nil, orchestratorConfig())

	result, err := orchestrator.ProcessTurn(context.Background(), "conv-7", "hi", []llm.ChatMessage{llm.UserMessage("hi")})
	require.NoError(t, err)
	require.True(t, result.Pending)

	orchestrator.Store().Sweep(time.Now().Add(time.Hour))
	close(block)

	// with nothing pending anymore the turn is a fresh start, not a failed
	// continuation
	result, err = orchestrator.ProcessTurn(context.Background(), "conv-7", "hi again", []llm.ChatMessage{llm.UserMessage("hi again")})
	require.NoError(t, err)
	assert.False(t, result.Pending)
	assert.Equal(t, "Fresh answer.", result.Text)

	completeCalls, _ := client.calls()
	assert.Equal(t, 2, completeCalls)
}

func TestParseNumericWait(t *testing.T) {
	t.Parallel()

	cases := []struct {
		input string
		want  int
		ok    bool
	}{
		{"15", 15, true},
		{" 42 ", 42, true},
		{"1", 1, true},
		{"600", 600, true},
		{"10000", 600, true},
		{"0", 0, false},
		{"-5", 0, false},
		{"abc", 0, false},
		{"15 seconds", 0, false},
		{"", 0, false},
	}

	for _, tc := range cases {
		seconds, ok := parseNumericWait(tc.input)
		assert.Equal(t, tc.ok, ok, "input %q", tc.input)
		if tc.ok {
			assert.Equal(t, tc.want, seconds, "input %q", tc.input)
		}
	}
}
