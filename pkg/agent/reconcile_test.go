package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/break1145/GraphDo/pkg/ai/extract"
	"github.com/break1145/GraphDo/pkg/ai/llm"
	"github.com/break1145/GraphDo/pkg/ai/llm/llmtest"
	"github.com/break1145/GraphDo/pkg/memory"
	"github.com/break1145/GraphDo/pkg/memory/memoryinfra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutcome_Ack(t *testing.T) {
	assert.Equal(t, "done", Outcome{}.Ack())
	assert.Equal(t, "done; rejected: a; b", Outcome{Rejected: []string{"a", "b"}}.Ack())
}

func TestFailureAck(t *testing.T) {
	err := ErrRecordsRejected().WithDetail("reasons", []string{"no solutions"})
	assert.Equal(t, "failed: Every extracted record was rejected: no solutions", failureAck(err))

	err = ErrGenerationFailed().WithError(errors.New("timeout"))
	assert.Equal(t, "failed: Model call failed: timeout", failureAck(err))

	assert.Equal(t, "failed: boom", failureAck(errors.New("boom")))
}

func TestOutcome_FailureAck(t *testing.T) {
	err := memory.ErrStoreUnavailable()
	assert.Equal(t, "failed: Record store unavailable", Outcome{}.FailureAck(err))
	assert.Equal(t, "failed: Record store unavailable; saved before the failure: k1, k2",
		Outcome{Inserted: []string{"k1"}, Updated: []string{"k2"}}.FailureAck(err))
}

func TestTranscriptOf(t *testing.T) {
	history := []llm.Message{
		llm.NewUserMessage("我需要准备一场考试"),
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{call("c1", UpdateMemoryTool, `{"update_type":"todo"}`)}},
		llm.NewToolMessage("c1", "done"),
		llm.NewAssistantMessage("已添加"),
		llm.NewUserMessage("截止日期在6月9号"),
	}
	got := transcriptOf(history)
	require.Len(t, got, 3)
	assert.Equal(t, llm.RoleUser, got[0].Role)
	assert.Equal(t, "已添加", got[1].Content)
	assert.Equal(t, "截止日期在6月9号", got[2].Content)
}

func TestInstructionsReconciler_EmptyReply(t *testing.T) {
	store := memoryinfra.NewInMemoryStore()
	r := NewInstructionsReconciler(store, llmtest.New(llmtest.Text("   ")), "")

	_, err := r.Reconcile(context.Background(), Input{UserID: "alice"})
	assert.ErrorIs(t, err, ErrEmptyInstruction())

	items, err := store.Search(context.Background(), memory.NewNamespace(memory.CategoryInstructions, "alice"))
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestInstructionsReconciler_Locale(t *testing.T) {
	store := memoryinfra.NewInMemoryStore()
	model := llmtest.New(llmtest.Text("Always add a location"))
	r := NewInstructionsReconciler(store, model, "en-US")

	out, err := r.Reconcile(context.Background(), Input{UserID: "alice"})
	require.NoError(t, err)
	require.Len(t, out.Inserted, 1)
	assert.Equal(t, "alice", model.Calls()[0].Options.User)

	item, err := store.Get(context.Background(), memory.NewNamespace(memory.CategoryInstructions, "alice"), out.Inserted[0])
	require.NoError(t, err)
	var ins memory.Instruction
	require.NoError(t, item.Decode(&ins))
	assert.Equal(t, "en-US", ins.Language)
	assert.Equal(t, out.Inserted[0], ins.Key)
}

func TestProfileReconciler_NothingExtracted(t *testing.T) {
	store := memoryinfra.NewInMemoryStore()
	ext := extract.NewExtractor(llmtest.New(llmtest.Text("")))
	r := NewProfileReconciler(store, ext)

	out, err := r.Reconcile(context.Background(), Input{UserID: "alice"})
	require.NoError(t, err)
	assert.Zero(t, out.Written())
}

func TestProfileReconciler_ExtractorError(t *testing.T) {
	store := memoryinfra.NewInMemoryStore()
	ext := extract.NewExtractor(llmtest.New(llmtest.Fail(errors.New("down"))))
	r := NewProfileReconciler(store, ext)

	_, err := r.Reconcile(context.Background(), Input{UserID: "alice"})
	assert.ErrorIs(t, err, extract.ErrModelFailed())
}

func TestTodoReconciler_BadDeadlineRejected(t *testing.T) {
	store := memoryinfra.NewInMemoryStore()
	ext := extract.NewExtractor(llmtest.New(llmtest.ToolCall("x1", "ToDo",
		`{"task":"准备考试","deadline":"6月9号","solutions":["复习"],"planned_edits":["添加截止日期"]}`)))
	r := NewTodoReconciler(store, ext)

	out, err := r.Reconcile(context.Background(), Input{UserID: "alice"})
	assert.ErrorIs(t, err, ErrRecordsRejected())
	require.Len(t, out.Rejected, 1)
	assert.Contains(t, out.Rejected[0], "deadline")
}
