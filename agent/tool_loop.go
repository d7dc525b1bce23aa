package agent

import (
	"context"
	"fmt"
	"sync"

	"hearth/llm"
	"hearth/logger"
)

// LoopResult is the outcome of one tool-calling loop: the final answer text,
// the full transcript including tool exchanges, and token usage summed over
// every round trip.
type LoopResult struct {
	Text     string
	Messages []llm.ChatMessage
	Tokens   llm.TokenCounts
}

// ToolLoop drives repeated completions while the model keeps requesting tool
// invocations, feeding each result back into the transcript. The loop is
// bounded: when maxIterations completions have all come back with tool calls,
// one final tool-less completion turns the accumulated transcript into a
// natural-language conclusion instead of surfacing raw tool output.
type ToolLoop struct {
	client        llm.CompletionClient
	executor      ServiceExecutor
	tools         []*llm.Tool
	maxIterations int

	// parallel executes one round's tool calls concurrently. Off by default:
	// most targets mutate shared physical state, so order matters.
	parallel bool
}

func NewToolLoop(client llm.CompletionClient, executor ServiceExecutor, tools []*llm.Tool, maxIterations int, parallel bool) *ToolLoop {
	return &ToolLoop{
		client:        client,
		executor:      executor,
		tools:         tools,
		maxIterations: maxIterations,
		parallel:      parallel,
	}
}

func (l *ToolLoop) Run(ctx context.Context, messages []llm.ChatMessage, options llm.CompleteOptions) (*LoopResult, error) {
	log := logger.Get().With().Str("conversation_id", options.ConversationId).Logger()

	transcript := append([]llm.ChatMessage(nil), messages...)
	var tokens llm.TokenCounts

	for iteration := 0; iteration < l.maxIterations; iteration++ {
		response, err := l.client.CompleteWithTools(ctx, transcript, l.tools, options)
		if err != nil {
			return nil, err
		}
		tokens = addTokens(tokens, response.Tokens)

		if len(response.ToolCalls) == 0 {
			return &LoopResult{Text: response.Text, Messages: transcript, Tokens: tokens}, nil
		}

		log.Debug().
			Int("iteration", iteration).
			Int("tool_calls", len(response.ToolCalls)).
			Msg("model requested tool invocations")

		transcript = append(transcript, llm.AssistantMessage(response.Text, response.ToolCalls))
		transcript = append(transcript, l.executeRound(ctx, response.ToolCalls)...)
	}

	// iteration budget spent: close out with one tool-less completion so the
	// user gets prose, not tool-call JSON
	log.Warn().Int("max_iterations", l.maxIterations).Msg("tool loop budget exhausted, forcing conclusion")
	response, err := l.client.Complete(ctx, transcript, options)
	if err != nil {
		return nil, err
	}
	tokens = addTokens(tokens, response.Tokens)
	return &LoopResult{Text: response.Text, Messages: transcript, Tokens: tokens}, nil
}

// executeRound runs every tool call of one completion round and returns the
// tool messages to append, in the order the calls were issued.
func (l *ToolLoop) executeRound(ctx context.Context, calls []llm.ToolCall) []llm.ChatMessage {
	results := make([]ChatToolExchange, len(calls))

	if l.parallel && len(calls) > 1 {
		var wg sync.WaitGroup
		for i, call := range calls {
			wg.Add(1)
			go func(i int, call llm.ToolCall) {
				defer wg.Done()
				results[i] = l.executeOne(ctx, call)
			}(i, call)
		}
		wg.Wait()
	} else {
		for i, call := range calls {
			results[i] = l.executeOne(ctx, call)
		}
	}

	messages := make([]llm.ChatMessage, len(results))
	for i, exchange := range results {
		messages[i] = llm.ToolResponseMessage(exchange.Call, exchange.Content)
	}
	return messages
}

// ChatToolExchange pairs a tool call with the content fed back to the model.
type ChatToolExchange struct {
	Call    llm.ToolCall
	Content string
}

func (l *ToolLoop) executeOne(ctx context.Context, call llm.ToolCall) ChatToolExchange {
	result, err := l.executor.Execute(ctx, call)
	if err != nil {
		log := logger.Get()
		log.Warn().Err(err).Str("tool", call.Name).Msg("tool execution failed")
		return ChatToolExchange{Call: call, Content: fmt.Sprintf("error: %v", err)}
	}
	if !result.Success {
		return ChatToolExchange{Call: call, Content: fmt.Sprintf("failed: %s", result.Text)}
	}
	return ChatToolExchange{Call: call, Content: result.Text}
}

func addTokens(a, b llm.TokenCounts) llm.TokenCounts {
	return llm.TokenCounts{
		Prompt:     a.Prompt + b.Prompt,
		Completion: a.Completion + b.Completion,
		Total:      a.Total + b.Total,
		Estimated:  a.Estimated || b.Estimated,
	}
}
