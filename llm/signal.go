package llm

import "sync"

// FirstChunkSignal is a one-shot signal fired the first time a streamed
// completion produces non-blank answer text. It is safe to fire from the
// streaming goroutine while another goroutine waits on Done.
type FirstChunkSignal struct {
	once sync.Once
	ch   chan struct{}
}

func NewFirstChunkSignal() *FirstChunkSignal {
	return &FirstChunkSignal{ch: make(chan struct{})}
}

// Fire closes the signal. Subsequent calls are no-ops.
func (s *FirstChunkSignal) Fire() {
	s.once.Do(func() {
		close(s.ch)
	})
}

// Done returns a channel that is closed once the signal has fired.
func (s *FirstChunkSignal) Done() <-chan struct{} {
	return s.ch
}

func (s *FirstChunkSignal) Fired() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}
