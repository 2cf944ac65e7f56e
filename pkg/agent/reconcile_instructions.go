package agent

import (
	"context"
	"strings"
	"time"

	"github.com/break1145/GraphDo/pkg/ai/llm"
	"github.com/break1145/GraphDo/pkg/kernel"
	"github.com/break1145/GraphDo/pkg/logx"
	"github.com/break1145/GraphDo/pkg/memory"
	"github.com/break1145/GraphDo/pkg/metrics"
)

const DefaultLocale = "zh-CN"

// InstructionsReconciler appends one instruction per update. Existing
// instructions are never rewritten.
type InstructionsReconciler struct {
	store  memory.Store
	llm    llm.LLM
	locale string
	now    func() time.Time
}

func NewInstructionsReconciler(store memory.Store, model llm.LLM, locale string) *InstructionsReconciler {
	if strings.TrimSpace(locale) == "" {
		locale = DefaultLocale
	}
	return &InstructionsReconciler{store: store, llm: model, locale: locale, now: time.Now}
}

func (r *InstructionsReconciler) Category() memory.Category { return memory.CategoryInstructions }

func (r *InstructionsReconciler) Reconcile(ctx context.Context, in Input) (Outcome, error) {
	out := Outcome{Category: memory.CategoryInstructions}
	ns := memory.NewNamespace(memory.CategoryInstructions, in.UserID)

	items, err := r.store.Search(ctx, ns)
	if err != nil {
		return out, err
	}
	current := make([]string, 0, len(items))
	for _, it := range items {
		var ins memory.Instruction
		if err := it.Decode(&ins); err != nil {
			return out, err
		}
		current = append(current, ins.Content)
	}

	msgs := make([]llm.Message, 0, len(in.Transcript)+2)
	msgs = append(msgs, llm.NewSystemMessage(buildInstructionsPrompt(strings.Join(current, "\n"))))
	msgs = append(msgs, in.Transcript...)
	follow := instructionsFollowUp
	if in.Hints != "" {
		follow += "\n" + hintsPrefix + in.Hints
	}
	msgs = append(msgs, llm.NewUserMessage(follow))

	start := r.now()
	resp, err := r.llm.Chat(ctx, msgs, llm.WithUser(in.UserID.String()))
	metrics.ObserveLLM("instructions", start, err)
	if err != nil {
		return out, ErrGenerationFailed().WithError(err).WithDetail("step", "instructions")
	}

	content := strings.TrimSpace(resp.Message.Content)
	if content == "" {
		return out, ErrEmptyInstruction()
	}

	ins := memory.Instruction{
		Key:      kernel.NewRecordKey().String(),
		Language: r.locale,
		Content:  content,
	}
	value, err := memory.Encode(ins)
	if err != nil {
		return out, err
	}
	if err := r.store.Put(ctx, ns, ins.Key, value); err != nil {
		return out, err
	}
	out.Inserted = append(out.Inserted, ins.Key)

	logx.WithFields(logx.Fields{
		"user_id": in.UserID.String(),
		"key":     ins.Key,
		"total":   len(items) + 1,
	}).Info("instruction appended")

	return out, nil
}
