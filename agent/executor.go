package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"hearth/llm"
	"hearth/logger"
	"hearth/utils"
)

// ToolResult is the outcome of one tool invocation against the smart-home
// service layer.
type ToolResult struct {
	Success bool   `json:"success"`
	Text    string `json:"result"`
}

// ServiceExecutor runs one finalized tool call against the home platform.
// Whitelisting, entity validation and rate limiting live behind this
// interface, not in the loop controller.
type ServiceExecutor interface {
	Execute(ctx context.Context, call llm.ToolCall) (ToolResult, error)
}

// WebhookExecutor forwards tool calls to the home platform over a webhook:
// the call's name and raw argument JSON are posted and the platform answers
// with a success flag and a human-readable result.
type WebhookExecutor struct {
	httpClient *http.Client
	webhookURL string
	timeout    time.Duration
}

func NewWebhookExecutor(webhookURL string, httpClient *http.Client, timeout time.Duration) *WebhookExecutor {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &WebhookExecutor{
		httpClient: httpClient,
		webhookURL: webhookURL,
		timeout:    timeout,
	}
}

var _ ServiceExecutor = (*WebhookExecutor)(nil)

type webhookToolRequest struct {
	CallId    string          `json:"call_id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (e *WebhookExecutor) Execute(ctx context.Context, call llm.ToolCall) (ToolResult, error) {
	arguments := call.Arguments
	if arguments == "" {
		arguments = "{}"
	}
	payload, err := json.Marshal(webhookToolRequest{
		CallId:    call.Id,
		Name:      call.Name,
		Arguments: json.RawMessage(arguments),
	})
	if err != nil {
		return ToolResult{}, fmt.Errorf("failed to marshal tool call %s: %w", call.Name, err)
	}

	requestCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	request, err := http.NewRequestWithContext(requestCtx, http.MethodPost, e.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return ToolResult{}, fmt.Errorf("failed to build tool webhook request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := e.httpClient.Do(request)
	if err != nil {
		return ToolResult{}, fmt.Errorf("tool webhook request failed: %w", err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(io.LimitReader(response.Body, 256*1024))
	if err != nil {
		return ToolResult{}, fmt.Errorf("failed reading tool webhook response: %w", err)
	}
	if response.StatusCode >= 400 {
		log := logger.Get()
		log.Warn().
			Int("status", response.StatusCode).
			Str("tool", call.Name).
			Str("body", utils.FirstN(string(body), 200)).
			Msg("tool webhook rejected call")
		return ToolResult{Success: false, Text: fmt.Sprintf("service returned status %d", response.StatusCode)}, nil
	}

	var result ToolResult
	if err := json.Unmarshal(body, &result); err != nil {
		return ToolResult{}, fmt.Errorf("failed to decode tool webhook response: %w", err)
	}
	return result, nil
}
