package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"hearth/common"
	"hearth/logger"
	"hearth/utils"
)

// CompletionClient is the streaming completion surface the rest of hearth
// builds on. Both methods block until the stream is fully consumed.
type CompletionClient interface {
	Complete(ctx context.Context, messages []ChatMessage, options CompleteOptions) (*ChatResponse, error)
	CompleteWithTools(ctx context.Context, messages []ChatMessage, tools []*Tool, options CompleteOptions) (*ChatResponse, error)
}

// CompleteOptions carries per-request knobs that are not part of the message
// payload.
type CompleteOptions struct {
	// ConversationId tags log lines so concurrent turns can be told apart.
	ConversationId string

	// FirstChunk, when set, is fired as soon as the stream produces non-blank
	// answer text. Used by the orchestrator to race streaming against its
	// early-wait window.
	FirstChunk *FirstChunkSignal
}

// Client streams chat completions from an Azure OpenAI style endpoint,
// negotiating the api version, token-limit field name, and request shape the
// deployment actually accepts. The first accepted combination is remembered,
// so later requests skip the rejected attempts.
type Client struct {
	httpClient  *http.Client
	endpoint    string
	deployment  string
	apiKey      string
	maxTokens   int
	temperature float32
	timeout     time.Duration

	mu    sync.Mutex
	state negotiationState
}

var _ CompletionClient = (*Client)(nil)

// NewClient builds a Client from config. The api key is held as an opaque
// credential: it is sent as the api-key header and never logged.
func NewClient(config common.Config, httpClient *http.Client, apiKey string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	shape := requestShapeFlat
	version := config.APIVersion
	if deploymentWantsWrappedShape(config.Deployment) {
		shape = requestShapeWrapped
		if compareAPIVersions(version, wrappedMinAPIVersion) < 0 {
			version = wrappedMinAPIVersion
		}
	}

	return &Client{
		httpClient:  httpClient,
		endpoint:    strings.TrimRight(config.APIBase, "/"),
		deployment:  config.Deployment,
		apiKey:      apiKey,
		maxTokens:   config.MaxTokens,
		temperature: config.Temperature,
		timeout:     config.APITimeout(),
		state: negotiationState{
			apiVersion: version,
			tokenParam: defaultTokenParam(version, shape),
			shape:      shape,
		},
	}
}

// deploymentWantsWrappedShape guesses the starting request shape from the
// deployment name: reasoning model families are served on the responses
// route. Negotiation corrects a wrong guess.
func deploymentWantsWrappedShape(deployment string) bool {
	lower := strings.ToLower(deployment)
	for _, prefix := range []string{"o1", "o3", "o4"} {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

func (c *Client) Complete(ctx context.Context, messages []ChatMessage, options CompleteOptions) (*ChatResponse, error) {
	return c.complete(ctx, messages, nil, options)
}

// CompleteWithTools always negotiates on the flat shape: tool calling is a
// chat completions feature.
func (c *Client) CompleteWithTools(ctx context.Context, messages []ChatMessage, tools []*Tool, options CompleteOptions) (*ChatResponse, error) {
	return c.complete(ctx, messages, tools, options)
}

func (c *Client) complete(ctx context.Context, messages []ChatMessage, tools []*Tool, options CompleteOptions) (*ChatResponse, error) {
	state := c.snapshotState()
	shapeForcedForTools := len(tools) > 0 && state.shape != requestShapeFlat
	if shapeForcedForTools {
		state.shape = requestShapeFlat
		state.tokenParam = defaultTokenParam(state.apiVersion, state.shape)
	}

	log := logger.Get().With().
		Str("request_id", uuid.NewString()).
		Str("conversation_id", options.ConversationId).
		Str("deployment", c.deployment).
		Logger()

	attempted := make(map[string]bool)
	for {
		if attempted[state.key()] {
			log.Error().Int("attempts", len(attempted)).Msg("completion parameter negotiation exhausted")
			return nil, ErrNegotiationExhausted
		}
		attempted[state.key()] = true

		response, err := c.streamOnce(ctx, log, state, messages, tools, options)
		if err == nil {
			// a shape forced for tool calling is a per-request detour, not a
			// negotiated preference; remembering it would clobber the
			// deployment's accepted shape
			if !shapeForcedForTools {
				c.rememberState(state)
			}
			return response, nil
		}

		var statusErr *APIStatusError
		if !errors.As(err, &statusErr) {
			return nil, err
		}

		adjustment := classifyAPIError(statusErr, state)
		if adjustment.kind == adjustmentNone {
			log.Error().Int("status", statusErr.StatusCode).
				Str("body", utils.FirstN(statusErr.Body, 500)).
				Msg("completion request rejected")
			return nil, err
		}

		next := state.applyAdjustment(adjustment)
		log.Warn().Int("status", statusErr.StatusCode).
			Str("api_version", next.apiVersion).
			Str("token_param", next.tokenParam).
			Str("request_shape", string(next.shape)).
			Msg("retrying completion with adjusted parameters")
		state = next
	}
}

func (c *Client) snapshotState() negotiationState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) rememberState(state negotiationState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
}

// streamOnce performs a single HTTP attempt with fixed parameters and
// consumes the SSE stream to completion.
func (c *Client) streamOnce(ctx context.Context, log zerolog.Logger, state negotiationState, messages []ChatMessage, tools []*Tool, options CompleteOptions) (*ChatResponse, error) {
	payload, err := json.Marshal(c.buildRequestBody(state, messages, tools))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal completion request: %w", err)
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	request, err := http.NewRequestWithContext(requestCtx, http.MethodPost, c.requestURL(state), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build completion request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "text/event-stream")
	request.Header.Set("Cache-Control", "no-cache")
	request.Header.Set("api-key", c.apiKey)

	response, err := c.httpClient.Do(request)
	if err != nil {
		if timeoutErr := c.asTimeout(ctx, requestCtx, err); timeoutErr != nil {
			return nil, timeoutErr
		}
		return nil, fmt.Errorf("completion request failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(response.Body, 64*1024))
		return nil, &APIStatusError{StatusCode: response.StatusCode, Body: string(body)}
	}

	collector := newStreamCollector(options.FirstChunk)
	err = scanFrames(response.Body, func(frame sseFrame) error {
		event := classifyFrame(frame)
		if event.kind == eventUnknown {
			log.Debug().Str("data", utils.FirstN(event.raw, 200)).Msg("skipping unrecognized stream frame")
			return nil
		}
		finished, err := collector.apply(event)
		if err != nil {
			return err
		}
		if finished {
			return errStopScan
		}
		return nil
	})
	if err != nil {
		if timeoutErr := c.asTimeout(ctx, requestCtx, err); timeoutErr != nil {
			return nil, timeoutErr
		}
		var streamErr *StreamError
		if errors.As(err, &streamErr) {
			return nil, streamErr
		}
		return nil, fmt.Errorf("failed reading completion stream: %w", err)
	}

	text := collector.text.String()
	toolCalls, invalid := collector.finalize()
	for _, callErr := range invalid {
		log.Warn().Err(callErr).Msg("dropping tool call with incomplete arguments")
	}

	tokens := collector.usage
	if !collector.usageSeen {
		tokens = EstimateTokens(messages, text)
	}

	return &ChatResponse{
		Text:           text,
		ToolCalls:      toolCalls,
		Tokens:         tokens,
		FinishReason:   collector.finish,
		ToolCallErrors: invalid,
	}, nil
}

// asTimeout converts an attempt error into a TimeoutError when the per-request
// deadline elapsed while the caller's context is still live. A caller
// cancellation is not a timeout and propagates as-is.
func (c *Client) asTimeout(ctx, requestCtx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	if errors.Is(requestCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Timeout: c.timeout, cause: err}
	}
	return nil
}

func (c *Client) requestURL(state negotiationState) string {
	query := url.Values{"api-version": {state.apiVersion}}
	if state.shape == requestShapeWrapped {
		return fmt.Sprintf("%s/openai/responses?%s", c.endpoint, query.Encode())
	}
	return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?%s",
		c.endpoint, url.PathEscape(c.deployment), query.Encode())
}

func (c *Client) buildRequestBody(state negotiationState, messages []ChatMessage, tools []*Tool) map[string]any {
	body := map[string]any{
		"temperature":    c.temperature,
		"stream":         true,
		state.tokenParam: c.maxTokens,
	}

	if state.shape == requestShapeWrapped {
		body["model"] = c.deployment
		instructions, input := splitSystemInstructions(messages)
		if instructions != "" {
			body["instructions"] = instructions
		}
		body["input"] = utils.Map(input, wrappedInputItem)
		return body
	}

	body["messages"] = utils.Map(messages, flatWireMessage)
	if len(tools) > 0 {
		body["tools"] = utils.Map(tools, wireTool)
		body["tool_choice"] = "auto"
	}
	return body
}

func flatWireMessage(message ChatMessage) map[string]any {
	wire := map[string]any{
		"role":    string(message.Role),
		"content": message.Content,
	}
	if message.ToolCallId != "" {
		wire["tool_call_id"] = message.ToolCallId
	}
	if len(message.ToolCalls) > 0 {
		wire["tool_calls"] = utils.Map(message.ToolCalls, func(call ToolCall) map[string]any {
			return map[string]any{
				"id":   call.Id,
				"type": "function",
				"function": map[string]any{
					"name":      call.Name,
					"arguments": call.Arguments,
				},
			}
		})
	}
	return wire
}

// splitSystemInstructions lifts system content out of the message list: the
// wrapped shape carries it in a top-level instructions field instead of an
// input item.
func splitSystemInstructions(messages []ChatMessage) (string, []ChatMessage) {
	var instructions []string
	input := make([]ChatMessage, 0, len(messages))
	for _, message := range messages {
		if message.Role == ChatMessageRoleSystem {
			instructions = append(instructions, message.Content)
			continue
		}
		input = append(input, message)
	}
	return strings.Join(instructions, "\n\n"), input
}

func wrappedInputItem(message ChatMessage) map[string]any {
	role := string(message.Role)
	if message.Role == ChatMessageRoleTool {
		// the responses route has no tool role; feed results back as user text
		role = string(ChatMessageRoleUser)
	}
	return map[string]any{
		"role":    role,
		"content": message.Content,
	}
}

func wireTool(tool *Tool) map[string]any {
	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        tool.Name,
			"description": tool.Description,
			"parameters":  tool.Parameters,
		},
	}
}
