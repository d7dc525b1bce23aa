package llm

import (
	"errors"
	"fmt"
	"time"

	"hearth/utils"
)

// ErrNegotiationExhausted is returned when every parameter combination the
// negotiation is willing to try has been attempted and rejected by the server.
var ErrNegotiationExhausted = errors.New("completion request rejected for every known parameter combination")

// APIStatusError is a non-2xx response from the completion endpoint. Body
// holds the raw error body, which the negotiation inspects for recoverable
// parameter complaints.
type APIStatusError struct {
	StatusCode int
	Body       string
}

func (e *APIStatusError) Error() string {
	return fmt.Sprintf("completion API returned status %d: %s", e.StatusCode, utils.FirstN(e.Body, 500))
}

// TimeoutError marks a completion attempt that exceeded the configured API
// timeout, as opposed to being rejected by the server. Callers report it
// differently and must not retry it.
type TimeoutError struct {
	Timeout time.Duration
	cause   error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("completion request timed out after %s", e.Timeout)
}

func (e *TimeoutError) Unwrap() error {
	return e.cause
}

// StreamError is an error event delivered inside an otherwise successful SSE
// stream.
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("completion stream reported an error: %s", e.Message)
}

// ToolArgumentsError marks a streamed tool call whose accumulated argument
// buffer is not valid JSON at end of stream, usually because the stream was
// cut mid-arguments.
type ToolArgumentsError struct {
	Id        string
	Name      string
	Arguments string
	Err       error
}

func (e *ToolArgumentsError) Error() string {
	return fmt.Sprintf("tool call %s (%s) has incomplete arguments %q: %v", e.Id, e.Name, utils.FirstN(e.Arguments, 200), e.Err)
}

func (e *ToolArgumentsError) Unwrap() error {
	return e.Err
}
