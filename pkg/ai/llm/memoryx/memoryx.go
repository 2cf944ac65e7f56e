package memoryx

import (
	"context"
	"net/http"
	"slices"
	"sync"

	"github.com/break1145/GraphDo/pkg/ai/llm"
	"github.com/break1145/GraphDo/pkg/errx"
	"github.com/break1145/GraphDo/pkg/kernel"
)

// Ledger is the per-thread conversation history. Threads never share state.
type Ledger interface {
	// Messages returns the thread history in append order; unknown threads are empty
	Messages(ctx context.Context, thread kernel.ThreadID) ([]llm.Message, error)

	// Append adds messages to the end of the thread
	Append(ctx context.Context, thread kernel.ThreadID, msgs ...llm.Message) error

	// Checkpoint marks the current end of the thread
	Checkpoint(ctx context.Context, thread kernel.ThreadID) (Checkpoint, error)

	// Restore drops everything appended after cp
	Restore(ctx context.Context, thread kernel.ThreadID, cp Checkpoint) error

	// Clear forgets the thread
	Clear(ctx context.Context, thread kernel.ThreadID) error
}

// Checkpoint is a position in a thread's history
type Checkpoint struct {
	Length int
}

var ErrRegistry = errx.NewRegistry("LEDGER")

var (
	CodeInvalidCheckpoint = ErrRegistry.Register("INVALID_CHECKPOINT", errx.TypeInternal, http.StatusInternalServerError, "Checkpoint is beyond the end of the thread")
	CodeUnavailable       = ErrRegistry.Register("UNAVAILABLE", errx.TypeUnavailable, http.StatusServiceUnavailable, "Conversation ledger unavailable")
)

func ErrInvalidCheckpoint() *errx.Error {
	return ErrRegistry.New(CodeInvalidCheckpoint)
}

func ErrUnavailable() *errx.Error {
	return ErrRegistry.New(CodeUnavailable)
}

// InMemoryLedger keeps threads in process memory
type InMemoryLedger struct {
	mu      sync.RWMutex
	threads map[kernel.ThreadID][]llm.Message
}

func NewInMemoryLedger() *InMemoryLedger {
	return &InMemoryLedger{threads: make(map[kernel.ThreadID][]llm.Message)}
}

func (l *InMemoryLedger) Messages(_ context.Context, thread kernel.ThreadID) ([]llm.Message, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.threads[thread]), nil
}

func (l *InMemoryLedger) Append(_ context.Context, thread kernel.ThreadID, msgs ...llm.Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.threads[thread] = append(l.threads[thread], msgs...)
	return nil
}

func (l *InMemoryLedger) Checkpoint(_ context.Context, thread kernel.ThreadID) (Checkpoint, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Checkpoint{Length: len(l.threads[thread])}, nil
}

func (l *InMemoryLedger) Restore(_ context.Context, thread kernel.ThreadID, cp Checkpoint) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	msgs := l.threads[thread]
	if cp.Length < 0 || cp.Length > len(msgs) {
		return ErrInvalidCheckpoint().
			WithDetail("thread_id", thread.String()).
			WithDetail("checkpoint", cp.Length).
			WithDetail("length", len(msgs))
	}
	l.threads[thread] = msgs[:cp.Length:cp.Length]
	return nil
}

func (l *InMemoryLedger) Clear(_ context.Context, thread kernel.ThreadID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.threads, thread)
	return nil
}

// Ping always succeeds for the in-process ledger
func (l *InMemoryLedger) Ping(context.Context) error { return nil }
