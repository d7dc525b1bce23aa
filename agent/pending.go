package agent

import (
	"context"
	"sync"
	"time"

	"hearth/llm"
	"hearth/logger"
)

// turnTask is one background completion outliving its original caller. The
// task runs on a detached context so abandoning the synchronous wait never
// cancels the work; only expiry sweeps and explicit cancellation do.
type turnTask struct {
	done   chan struct{}
	cancel context.CancelFunc

	// set before done is closed, read-only after
	result *TurnResult
	err    error
}

func newTurnTask(deadline time.Time) (*turnTask, context.Context) {
	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	return &turnTask{done: make(chan struct{}), cancel: cancel}, ctx
}

// finish records the outcome and releases waiters. Must be called exactly
// once, by the goroutine running the task.
func (t *turnTask) finish(result *TurnResult, err error) {
	t.result = result
	t.err = err
	close(t.done)
	t.cancel()
}

func (t *turnTask) finished() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// PendingContinuation tracks a turn whose first-chunk wait elapsed: the
// background task keeps running and a later correlated call collects it.
type PendingContinuation struct {
	Task     *turnTask
	Result   *TurnResult
	Deadline time.Time
}

// Cancel stops the underlying background task. Used when a conversation is
// discarded while work is still in flight.
func (p *PendingContinuation) Cancel() {
	p.Task.cancel()
}

// PendingStore holds at most one PendingContinuation per conversation id.
// All mutation goes through the store mutex; delivery is exactly-once because
// Claim removes the entry atomically.
type PendingStore struct {
	mu      sync.Mutex
	entries map[string]*PendingContinuation
}

func NewPendingStore() *PendingStore {
	return &PendingStore{entries: make(map[string]*PendingContinuation)}
}

func (s *PendingStore) Register(conversationId string, entry *PendingContinuation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[conversationId] = entry
}

// Peek reports the pending entry for a conversation without claiming it.
func (s *PendingStore) Peek(conversationId string) (*PendingContinuation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[conversationId]
	return entry, ok
}

func (s *PendingStore) Has(conversationId string) bool {
	_, ok := s.Peek(conversationId)
	return ok
}

// Claim removes and returns the entry, if any. The caller becomes the sole
// deliverer of the task's outcome.
func (s *PendingStore) Claim(conversationId string) (*PendingContinuation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[conversationId]
	if ok {
		delete(s.entries, conversationId)
	}
	return entry, ok
}

// CacheResult stores a finished task's result on the still-pending entry so a
// later correlated call can pick it up. Reports false when the entry was
// already claimed or swept, in which case the result is dropped.
func (s *PendingStore) CacheResult(conversationId string, result *TurnResult) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[conversationId]
	if !ok {
		return false
	}
	entry.Result = result
	return true
}

// HasResult reports whether a finished result is already cached for the
// conversation. Reading through the store keeps Result access serialized
// with CacheResult.
func (s *PendingStore) HasResult(conversationId string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[conversationId]
	return ok && entry.Result != nil
}

func (s *PendingStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep removes entries whose deadline has passed, cancelling their tasks,
// and returns the swept conversation ids. Scheduling the periodic call is the
// caller's concern.
func (s *PendingStore) Sweep(now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var swept []string
	for conversationId, entry := range s.entries {
		if now.Before(entry.Deadline) {
			continue
		}
		entry.Task.cancel()
		delete(s.entries, conversationId)
		swept = append(swept, conversationId)
	}
	if len(swept) > 0 {
		log := logger.Get()
		log.Info().Strs("conversation_ids", swept).Msg("swept expired pending continuations")
	}
	return swept
}

// TurnResult is the orchestrator's answer for one caller turn.
type TurnResult struct {
	Text   string          `json:"text"`
	Tokens llm.TokenCounts `json:"tokens"`

	// Pending marks interim "still processing" replies: the real answer is
	// still being computed and a follow-up turn will collect it.
	Pending bool `json:"pending"`
}
