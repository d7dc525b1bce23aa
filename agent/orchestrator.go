package agent

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"hearth/common"
	"hearth/llm"
	"hearth/logger"
)

// pendingGraceMargin is added to the request timeout to form a pending
// continuation's expiry deadline: enough slack for the caller to come back,
// not enough to leak tasks forever.
const pendingGraceMargin = 2 * time.Minute

// Numeric-wait bounds for continue-turn input, in seconds. The clamp stops a
// caller from pinning a wait open indefinitely by request.
const (
	minNumericWaitSeconds = 1
	maxNumericWaitSeconds = 600
)

// Notifier is told about answers that finished after every caller stopped
// waiting, so a collaborator can deliver them out-of-band.
type Notifier interface {
	AnswerReady(conversationId string, result *TurnResult)
}

// Orchestrator runs one caller turn per conversation: it starts the
// completion as a background task, races it against a bounded first-chunk
// wait, and turns timeouts into resumable pending continuations instead of
// failures.
type Orchestrator struct {
	client   llm.CompletionClient
	loop     *ToolLoop
	store    *PendingStore
	notifier Notifier
	config   common.Config
	messages turnMessages

	// locks serializes turns per conversation id; turns on different
	// conversations never contend
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func NewOrchestrator(client llm.CompletionClient, loop *ToolLoop, store *PendingStore, notifier Notifier, config common.Config) *Orchestrator {
	if store == nil {
		store = NewPendingStore()
	}
	return &Orchestrator{
		client:   client,
		loop:     loop,
		store:    store,
		notifier: notifier,
		config:   config,
		messages: messagesForLanguage(config.Language),
		locks:    make(map[string]*sync.Mutex),
	}
}

func (o *Orchestrator) Store() *PendingStore {
	return o.store
}

// ProcessTurn handles one caller turn. A turn on a conversation that already
// has a pending continuation is a continue, never a second independent
// start; the raw input then steers the wait behavior.
func (o *Orchestrator) ProcessTurn(ctx context.Context, conversationId string, input string, messages []llm.ChatMessage) (*TurnResult, error) {
	lock := o.conversationLock(conversationId)
	lock.Lock()
	defer lock.Unlock()

	// a single Peek decides the path: an entry claimed or swept before this
	// point means nothing is pending and the turn is a fresh start
	if entry, ok := o.store.Peek(conversationId); ok {
		return o.continueTurn(conversationId, input, entry)
	}
	return o.startTurn(ctx, conversationId, messages)
}

// startTurn launches the completion in the background and waits a bounded
// window for the first useful chunk. Producing text in time means the answer
// is close: the turn then blocks for the full result. No text in time means
// the caller gets an interim reply and the task keeps running unattended.
func (o *Orchestrator) startTurn(ctx context.Context, conversationId string, messages []llm.ChatMessage) (*TurnResult, error) {
	log := logger.Get().With().Str("conversation_id", conversationId).Logger()

	deadline := time.Now().Add(o.config.APITimeout() + pendingGraceMargin)
	task, taskCtx := newTurnTask(deadline)
	firstChunk := llm.NewFirstChunkSignal()

	go o.runCompletion(taskCtx, task, conversationId, messages, firstChunk)

	if !o.config.EarlyWaitEnable {
		<-task.done
		return o.resolveOutcome(log, task), nil
	}

	waitTimer := time.NewTimer(o.config.FirstChunkWait())
	defer waitTimer.Stop()

	select {
	case <-task.done:
		return o.resolveOutcome(log, task), nil
	case <-firstChunk.Done():
		// the model is talking; the rest of the answer is close behind
		<-task.done
		return o.resolveOutcome(log, task), nil
	case <-waitTimer.C:
	}

	log.Info().Dur("first_chunk_wait", o.config.FirstChunkWait()).Msg("no first chunk within wait, parking turn as pending")
	o.store.Register(conversationId, &PendingContinuation{Task: task, Deadline: deadline})
	go o.watchTask(task, conversationId)

	return &TurnResult{Text: o.messages.stillProcessing, Pending: true}, nil
}

// continueTurn collects a pending continuation. A cached or finished result
// is delivered exactly once; otherwise the input decides the wait: a bare
// positive integer waits that many seconds (clamped), anything else waits
// indefinitely. Both waits are shielded from the resuming caller's own
// cancellation so abandoning a wait never kills work a later caller may
// still collect.
func (o *Orchestrator) continueTurn(conversationId string, input string, entry *PendingContinuation) (*TurnResult, error) {
	log := logger.Get().With().Str("conversation_id", conversationId).Logger()

	if o.store.HasResult(conversationId) || entry.Task.finished() {
		return o.claimAndDeliver(log, conversationId, entry), nil
	}

	if seconds, ok := parseNumericWait(input); ok {
		waitTimer := time.NewTimer(time.Duration(seconds) * time.Second)
		defer waitTimer.Stop()
		select {
		case <-entry.Task.done:
			return o.claimAndDeliver(log, conversationId, entry), nil
		case <-waitTimer.C:
			log.Info().Int("waited_seconds", seconds).Msg("bounded continuation wait elapsed, still pending")
			return &TurnResult{Text: o.messages.stillWaitingAfter(seconds), Pending: true}, nil
		}
	}

	// non-numeric input: wait for the task however long it takes
	<-entry.Task.done
	return o.claimAndDeliver(log, conversationId, entry), nil
}

func (o *Orchestrator) runCompletion(ctx context.Context, task *turnTask, conversationId string, messages []llm.ChatMessage, firstChunk *llm.FirstChunkSignal) {
	options := llm.CompleteOptions{ConversationId: conversationId, FirstChunk: firstChunk}

	if o.loop != nil {
		loopResult, err := o.loop.Run(ctx, messages, options)
		if err != nil {
			task.finish(nil, err)
			return
		}
		task.finish(&TurnResult{Text: loopResult.Text, Tokens: loopResult.Tokens}, nil)
		return
	}

	response, err := o.client.Complete(ctx, messages, options)
	if err != nil {
		task.finish(nil, err)
		return
	}
	task.finish(&TurnResult{Text: response.Text, Tokens: response.Tokens}, nil)
}

// watchTask caches the task's outcome on the pending entry once it finishes,
// so a later correlated call can pick it up without re-waiting. If nobody is
// pending anymore the result is dropped; the notifier, when present, still
// hears about it.
func (o *Orchestrator) watchTask(task *turnTask, conversationId string) {
	<-task.done
	result := o.resolveOutcome(logger.Get().With().Str("conversation_id", conversationId).Logger(), task)
	if o.store.CacheResult(conversationId, result) && o.notifier != nil {
		o.notifier.AnswerReady(conversationId, result)
	}
}

func (o *Orchestrator) claimAndDeliver(log zerolog.Logger, conversationId string, entry *PendingContinuation) *TurnResult {
	if claimed, ok := o.store.Claim(conversationId); ok && claimed.Result != nil {
		return claimed.Result
	}
	return o.resolveOutcome(log, entry.Task)
}

// resolveOutcome converts a finished task into a caller-facing result. Raw
// protocol errors never reach the user: they become short localized failure
// strings, logged with full detail here.
func (o *Orchestrator) resolveOutcome(log zerolog.Logger, task *turnTask) *TurnResult {
	if task.err == nil {
		if task.result != nil && strings.TrimSpace(task.result.Text) != "" {
			return task.result
		}
		log.Warn().Msg("completion finished with empty answer text")
		return &TurnResult{Text: o.messages.failure}
	}

	var timeoutErr *llm.TimeoutError
	switch {
	case errors.As(task.err, &timeoutErr):
		log.Error().Err(task.err).Msg("completion timed out")
		return &TurnResult{Text: o.messages.timeout}
	case errors.Is(task.err, context.Canceled) || errors.Is(task.err, context.DeadlineExceeded):
		log.Error().Err(task.err).Msg("background completion cancelled")
		return &TurnResult{Text: o.messages.cancelled}
	default:
		log.Error().Err(task.err).Msg("completion failed")
		return &TurnResult{Text: o.messages.failure}
	}
}

func (o *Orchestrator) conversationLock(conversationId string) *sync.Mutex {
	o.locksMu.Lock()
	defer o.locksMu.Unlock()
	lock, ok := o.locks[conversationId]
	if !ok {
		lock = &sync.Mutex{}
		o.locks[conversationId] = lock
	}
	return lock
}

// parseNumericWait interprets continue-turn input as a bounded wait in
// seconds. Only a bare positive integer qualifies; the value is clamped so a
// caller cannot request an unbounded wait numerically.
func parseNumericWait(input string) (int, bool) {
	seconds, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil || seconds <= 0 {
		return 0, false
	}
	if seconds < minNumericWaitSeconds {
		seconds = minNumericWaitSeconds
	}
	if seconds > maxNumericWaitSeconds {
		seconds = maxNumericWaitSeconds
	}
	return seconds, true
}
