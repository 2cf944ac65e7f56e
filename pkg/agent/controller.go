// Package agent runs chat turns: classify the message, reconcile at most a
// bounded number of memory categories, then reply.
package agent

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/break1145/GraphDo/pkg/ai/llm"
	"github.com/break1145/GraphDo/pkg/ai/llm/memoryx"
	"github.com/break1145/GraphDo/pkg/kernel"
	"github.com/break1145/GraphDo/pkg/logx"
	"github.com/break1145/GraphDo/pkg/memory"
	"github.com/break1145/GraphDo/pkg/metrics"
	"github.com/break1145/GraphDo/pkg/search"
)

// State is a Turn Controller state
type State string

const (
	StateClassify              State = "CLASSIFY"
	StateReconcileProfile      State = "RECONCILE_PROFILE"
	StateReconcileTodo         State = "RECONCILE_TODO"
	StateReconcileInstructions State = "RECONCILE_INSTRUCTIONS"
	StateDone                  State = "DONE"
)

const (
	ackSkipped           = "skipped"
	DefaultMaxReconciles = 1
)

// stateFor maps a category to its reconcile state
func stateFor(c memory.Category) (State, error) {
	switch c {
	case memory.CategoryProfile:
		return StateReconcileProfile, nil
	case memory.CategoryTodo:
		return StateReconcileTodo, nil
	case memory.CategoryInstructions:
		return StateReconcileInstructions, nil
	default:
		return "", ErrRoutingFailed().WithDetail("category", string(c))
	}
}

type TurnRequest struct {
	UserID   kernel.UserID
	ThreadID kernel.ThreadID
	Input    string
}

// Step is one visited state, kept for diagnostics
type Step struct {
	State      State
	Category   memory.Category
	ToolCallID string
	Ack        string
	Duration   time.Duration
}

type TurnResult struct {
	ThreadID kernel.ThreadID
	Reply    string
	Trace    []Step
}

// Option configures a Controller
type Option func(*Controller)

// WithSearcher enables web search enrichment for every turn
func WithSearcher(s search.Searcher) Option {
	return func(c *Controller) {
		c.searcher = s
	}
}

func WithMaxReconciles(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.maxReconciles = n
		}
	}
}

func WithTurnTimeout(d time.Duration) Option {
	return func(c *Controller) {
		c.timeout = d
	}
}

func WithLocale(locale string) Option {
	return func(c *Controller) {
		c.locale = locale
	}
}

// WithReconciler replaces the reconciler for its category
func WithReconciler(r Reconciler) Option {
	return func(c *Controller) {
		c.overrides = append(c.overrides, r)
	}
}

// Controller owns the turn state machine. The model handle and the stores
// are shared by every turn; per-turn state lives on the stack of Run.
type Controller struct {
	store         memory.Store
	ledger        memoryx.Ledger
	classifier    *Classifier
	renderer      *Renderer
	reconcilers   map[memory.Category]Reconciler
	overrides     []Reconciler
	searcher      search.Searcher
	maxReconciles int
	timeout       time.Duration
	locale        string
	now           func() time.Time
}

func NewController(model llm.LLM, extractor Extractor, store memory.Store, ledger memoryx.Ledger, opts ...Option) *Controller {
	c := &Controller{
		store:         store,
		ledger:        ledger,
		classifier:    NewClassifier(model),
		renderer:      NewRenderer(store),
		maxReconciles: DefaultMaxReconciles,
		locale:        DefaultLocale,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.reconcilers = map[memory.Category]Reconciler{
		memory.CategoryProfile:      NewProfileReconciler(store, extractor),
		memory.CategoryTodo:         NewTodoReconciler(store, extractor),
		memory.CategoryInstructions: NewInstructionsReconciler(store, model, c.locale),
	}
	for _, r := range c.overrides {
		c.reconcilers[r.Category()] = r
	}
	return c
}

// turn is the scratch state of one Run. It is never persisted.
type turn struct {
	req        TurnRequest
	checkpoint memoryx.Checkpoint
	search     string
	emit       func(string) error
	history    []llm.Message
	decision   *Decision
	reconciles int
	trace      []Step
}

// Run executes one turn and returns the final reply
func (c *Controller) Run(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	return c.run(ctx, req, nil, "sync")
}

// RunStream executes one turn, forwarding model content deltas to emit as they arrive
func (c *Controller) RunStream(ctx context.Context, req TurnRequest, emit func(fragment string) error) (*TurnResult, error) {
	if emit == nil {
		emit = func(string) error { return nil }
	}
	return c.run(ctx, req, emit, "stream")
}

func (c *Controller) run(ctx context.Context, req TurnRequest, emit func(string) error, mode string) (*TurnResult, error) {
	start := c.now()
	defer func() {
		metrics.TurnLatency.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	}()

	req.Input = strings.TrimSpace(req.Input)
	if req.UserID.IsEmpty() || req.Input == "" {
		metrics.TurnsTotal.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidInput()
	}
	if req.ThreadID.IsEmpty() {
		req.ThreadID = kernel.NewThreadID()
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	t := &turn{req: req, emit: emit}
	t.search = c.enrich(ctx, req)

	if err := c.ledger.Append(ctx, req.ThreadID, llm.NewUserMessage(req.Input)); err != nil {
		metrics.TurnsTotal.WithLabelValues("error").Inc()
		return nil, ErrLedgerFailed().WithError(err)
	}
	cp, err := c.ledger.Checkpoint(ctx, req.ThreadID)
	if err != nil {
		metrics.TurnsTotal.WithLabelValues("error").Inc()
		return nil, ErrLedgerFailed().WithError(err)
	}
	t.checkpoint = cp

	reply, err := c.loop(ctx, t)
	if err != nil {
		c.rollback(t)
		outcome := "error"
		if errors.Is(err, ErrReconcileLimit()) {
			outcome = "limit"
		}
		metrics.TurnsTotal.WithLabelValues(outcome).Inc()
		logx.WithFields(logx.Fields{
			"user_id":   req.UserID.String(),
			"thread_id": req.ThreadID.String(),
			"error":     err.Error(),
		}).Warnf("turn failed after %d reconcile(s)", t.reconciles)
		return nil, err
	}

	metrics.TurnsTotal.WithLabelValues("reply").Inc()
	return &TurnResult{ThreadID: req.ThreadID, Reply: reply, Trace: t.trace}, nil
}

func (c *Controller) loop(ctx context.Context, t *turn) (string, error) {
	state := StateClassify
	var reply string

	for {
		stepStart := c.now()
		switch state {
		case StateClassify:
			next, text, err := c.classify(ctx, t)
			if err != nil {
				return "", err
			}
			t.trace = append(t.trace, Step{
				State:    StateClassify,
				Category: t.decisionCategory(),
				Duration: time.Since(stepStart),
			})
			reply = text
			state = next

		case StateReconcileProfile, StateReconcileTodo, StateReconcileInstructions:
			step, err := c.reconcile(ctx, t)
			if err != nil {
				return "", err
			}
			step.State = state
			step.Duration = time.Since(stepStart)
			t.trace = append(t.trace, step)
			state = StateClassify

		case StateDone:
			return reply, nil

		default:
			return "", ErrRoutingFailed().WithDetail("state", string(state))
		}
	}
}

func (t *turn) decisionCategory() memory.Category {
	if t.decision == nil {
		return ""
	}
	return t.decision.Category
}

// classify runs one classifier pass and returns the next state
func (c *Controller) classify(ctx context.Context, t *turn) (State, string, error) {
	history, err := c.ledger.Messages(ctx, t.req.ThreadID)
	if err != nil {
		return "", "", ErrLedgerFailed().WithError(err)
	}

	dec, err := c.classifier.Classify(ctx, ClassifyInput{
		User:          t.req.UserID.String(),
		Memory:        c.renderer.Render(ctx, t.req.UserID),
		History:       history,
		SearchContext: t.search,
		AllowUpdates:  t.reconciles < c.maxReconciles,
		Emit:          t.emit,
	})
	if err != nil {
		return "", "", err
	}

	if !dec.HasCategory() {
		t.decision = nil
		if err := c.ledger.Append(ctx, t.req.ThreadID, llm.NewAssistantMessage(dec.Message.Content)); err != nil {
			return "", "", ErrLedgerFailed().WithError(err)
		}
		return StateDone, dec.Message.Content, nil
	}

	if t.reconciles >= c.maxReconciles {
		return "", "", ErrReconcileLimit().
			WithDetail("max", c.maxReconciles).
			WithDetail("category", dec.Category.String())
	}

	next, err := stateFor(dec.Category)
	if err != nil {
		return "", "", err
	}
	if err := c.ledger.Append(ctx, t.req.ThreadID, dec.Message); err != nil {
		return "", "", ErrLedgerFailed().WithError(err)
	}
	t.history = history
	t.decision = dec
	return next, "", nil
}

// reconcile runs the decided category and acknowledges every tool call of
// the decision so none is left dangling
func (c *Controller) reconcile(ctx context.Context, t *turn) (Step, error) {
	dec := t.decision
	r, ok := c.reconcilers[dec.Category]
	if !ok {
		return Step{}, ErrRoutingFailed().WithDetail("category", dec.Category.String())
	}

	out, err := r.Reconcile(ctx, Input{
		UserID:     t.req.UserID,
		Transcript: transcriptOf(t.history),
		Hints:      dec.Hints,
	})

	var ack string
	if err != nil {
		ack = out.FailureAck(err)
		metrics.ReconciliationsTotal.WithLabelValues(dec.Category.String(), "failed").Inc()
		logx.WithFields(logx.Fields{
			"user_id":  t.req.UserID.String(),
			"category": dec.Category.String(),
			"written":  out.Written(),
			"error":    err.Error(),
		}).Warnf("reconcile failed")
	} else {
		ack = out.Ack()
		result := "ok"
		if out.Written() == 0 {
			result = "noop"
		}
		metrics.ReconciliationsTotal.WithLabelValues(dec.Category.String(), result).Inc()
	}

	acks := make([]llm.Message, 0, 1+len(dec.Extra))
	acks = append(acks, llm.NewToolMessage(dec.ToolCall.ID, ack))
	for _, tc := range dec.Extra {
		acks = append(acks, llm.NewToolMessage(tc.ID, ackSkipped))
	}
	if err := c.ledger.Append(ctx, t.req.ThreadID, acks...); err != nil {
		return Step{}, ErrLedgerFailed().WithError(err)
	}

	t.reconciles++
	t.decision = nil
	return Step{Category: dec.Category, ToolCallID: dec.ToolCall.ID, Ack: ack}, nil
}

// enrich fetches turn-scoped search context. Failures only cost the enrichment.
func (c *Controller) enrich(ctx context.Context, req TurnRequest) string {
	if c.searcher == nil {
		return ""
	}
	out, err := c.searcher.Search(ctx, req.Input)
	if err != nil {
		logx.WithFields(logx.Fields{
			"user_id": req.UserID.String(),
			"error":   err.Error(),
		}).Warnf("web search failed, continuing without it")
		return ""
	}
	return out
}

func (c *Controller) rollback(t *turn) {
	// The turn context may already be done
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.ledger.Restore(ctx, t.req.ThreadID, t.checkpoint); err != nil {
		logx.WithField("thread_id", t.req.ThreadID.String()).
			Errorf("failed to restore thread after failed turn: %v", err)
	}
}

// ============================================================================
// Direct reads
// ============================================================================

// Todos returns a user's tasks in storage order
func (c *Controller) Todos(ctx context.Context, user kernel.UserID) ([]memory.Task, error) {
	items, err := c.store.Search(ctx, memory.NewNamespace(memory.CategoryTodo, user))
	if err != nil {
		return nil, err
	}
	tasks := make([]memory.Task, 0, len(items))
	for _, it := range items {
		var t memory.Task
		if err := it.Decode(&t); err != nil {
			return nil, err
		}
		t.Key = it.Key
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// Profile returns the user's profile, or nil when none was recorded
func (c *Controller) Profile(ctx context.Context, user kernel.UserID) (*memory.Profile, error) {
	items, err := c.store.Search(ctx, memory.NewNamespace(memory.CategoryProfile, user))
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	var p memory.Profile
	if err := items[0].Decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Instructions returns every appended instruction in storage order
func (c *Controller) Instructions(ctx context.Context, user kernel.UserID) ([]memory.Instruction, error) {
	items, err := c.store.Search(ctx, memory.NewNamespace(memory.CategoryInstructions, user))
	if err != nil {
		return nil, err
	}
	out := make([]memory.Instruction, 0, len(items))
	for _, it := range items {
		var ins memory.Instruction
		if err := it.Decode(&ins); err != nil {
			return nil, err
		}
		ins.Key = it.Key
		out = append(out, ins)
	}
	return out, nil
}

// Forget drops a thread's conversation history. Long-term memory is kept.
func (c *Controller) Forget(ctx context.Context, thread kernel.ThreadID) error {
	if thread.IsEmpty() {
		return ErrInvalidInput().WithDetail("field", "thread_id")
	}
	if err := c.ledger.Clear(ctx, thread); err != nil {
		return ErrLedgerFailed().WithError(err)
	}
	return nil
}
