package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/break1145/GraphDo/pkg/ai/extract"
	"github.com/break1145/GraphDo/pkg/ai/llm"
	"github.com/break1145/GraphDo/pkg/ai/llm/llmtest"
	"github.com/break1145/GraphDo/pkg/ai/llm/memoryx"
	"github.com/break1145/GraphDo/pkg/kernel"
	"github.com/break1145/GraphDo/pkg/memory"
	"github.com/break1145/GraphDo/pkg/memory/memoryinfra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	chat   *llmtest.Scripted
	ext    *llmtest.Scripted
	store  *memoryinfra.InMemoryStore
	ledger *memoryx.InMemoryLedger
	ctrl   *Controller
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		chat:   llmtest.New(),
		ext:    llmtest.New(),
		store:  memoryinfra.NewInMemoryStore(),
		ledger: memoryx.NewInMemoryLedger(),
	}
	h.ctrl = NewController(h.chat, extract.NewExtractor(h.ext), h.store, h.ledger, opts...)
	return h
}

func (h *harness) run(t *testing.T, user, thread, input string) *TurnResult {
	t.Helper()
	res, err := h.ctrl.Run(context.Background(), TurnRequest{
		UserID:   kernel.UserID(user),
		ThreadID: kernel.ThreadID(thread),
		Input:    input,
	})
	require.NoError(t, err)
	return res
}

func (h *harness) thread(t *testing.T, thread string) []llm.Message {
	t.Helper()
	msgs, err := h.ledger.Messages(context.Background(), kernel.ThreadID(thread))
	require.NoError(t, err)
	return msgs
}

func (h *harness) putTask(t *testing.T, user, key string, task memory.Task) {
	t.Helper()
	task.Key = key
	raw, err := memory.Encode(task)
	require.NoError(t, err)
	ns := memory.NewNamespace(memory.CategoryTodo, kernel.UserID(user))
	require.NoError(t, h.store.Put(context.Background(), ns, key, raw))
}

func route(id, tag string) llmtest.Reply {
	return llmtest.ToolCall(id, UpdateMemoryTool, fmt.Sprintf(`{"update_type":%q}`, tag))
}

func states(trace []Step) []State {
	out := make([]State, len(trace))
	for i, s := range trace {
		out[i] = s.State
	}
	return out
}

func TestRun_NoDecisionReplies(t *testing.T) {
	h := newHarness(t)
	h.chat.Push(llmtest.Text("你好！有什么可以帮你？"))

	res := h.run(t, "alice", "t1", "你好")

	assert.Equal(t, "你好！有什么可以帮你？", res.Reply)
	assert.Equal(t, []State{StateClassify}, states(res.Trace))
	assert.Empty(t, h.ext.Calls())

	msgs := h.thread(t, "t1")
	require.Len(t, msgs, 2)
	assert.Equal(t, llm.RoleUser, msgs[0].Role)
	assert.Equal(t, llm.RoleAssistant, msgs[1].Role)
}

func TestRun_ExamScenario(t *testing.T) {
	h := newHarness(t)
	h.chat.Push(
		route("call_1", "todo"),
		llmtest.Text("已为你添加任务：准备考试。"),
	)
	h.ext.Push(llmtest.ToolCall("x1", "ToDo",
		`{"task":"准备考试","solutions":["制定复习计划","完成历年真题"],"planned_edits":["新增考试准备任务"]}`))

	res := h.run(t, "alice", "t1", "我需要准备一场考试")
	assert.Equal(t, "已为你添加任务：准备考试。", res.Reply)
	assert.Equal(t, []State{StateClassify, StateReconcileTodo, StateClassify}, states(res.Trace))
	assert.Equal(t, "done", res.Trace[1].Ack)
	assert.Len(t, h.chat.Calls(), 2)

	todos, err := h.ctrl.Todos(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, todos, 1)
	assert.Contains(t, todos[0].Task, "考试")
	assert.Equal(t, memory.TaskStatusNotStarted, todos[0].Status)
	assert.NotEmpty(t, todos[0].Solutions)
	assert.Nil(t, todos[0].Deadline)
	key := todos[0].Key
	require.NotEmpty(t, key)

	// second turn on the same thread sets the deadline on the same task
	h.chat.Push(
		route("call_2", "todo"),
		llmtest.Text("已更新截止日期为6月9日。"),
	)
	h.ext.Push(llmtest.ToolCall("x2", extract.UpdateToolName, fmt.Sprintf(
		`{"json_doc_id":%q,"doc":{"task":"准备考试","deadline":"2026-06-09","solutions":["制定复习计划"],"planned_edits":["添加截止日期"]}}`, key)))

	h.run(t, "alice", "t1", "对于那场考试，截止日期在6月9号")

	todos, err = h.ctrl.Todos(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, todos, 1)
	assert.Equal(t, key, todos[0].Key)
	require.NotNil(t, todos[0].Deadline)
	assert.True(t, todos[0].Deadline.Equal(time.Date(2026, 6, 9, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, []string{"添加截止日期"}, todos[0].PlannedEdits)

	// the extractor saw the prior task and no routing tool traffic
	calls := h.ext.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "alice", calls[1].Options.User)
	assert.Equal(t, "alice", h.chat.Calls()[0].Options.User)
	for _, m := range calls[1].Messages {
		assert.NotEqual(t, llm.RoleTool, m.Role)
		assert.False(t, m.HasToolCalls())
	}
	assert.Len(t, calls[1].Options.Tools, 2)
}

func TestRun_SecondClassifyCannotUpdate(t *testing.T) {
	h := newHarness(t)
	h.chat.Push(route("call_1", "todo"), llmtest.Text("好的"))
	h.ext.Push(llmtest.ToolCall("x1", "ToDo", `{"task":"买菜","solutions":["去超市"],"planned_edits":["新增任务"]}`))

	h.run(t, "alice", "t1", "提醒我买菜")

	calls := h.chat.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, llm.ToolChoiceAuto, calls[0].Options.ToolChoice)
	assert.Equal(t, llm.ToolChoiceNone, calls[1].Options.ToolChoice)
	require.NotNil(t, calls[0].Options.ParallelToolCalls)
	assert.False(t, *calls[0].Options.ParallelToolCalls)

	msgs := h.thread(t, "t1")
	require.Len(t, msgs, 4)
	assert.True(t, msgs[1].HasToolCalls())
	assert.Equal(t, llm.RoleTool, msgs[2].Role)
	assert.Equal(t, "call_1", msgs[2].ToolCallID)
	assert.Equal(t, "done", msgs[2].Content)
}

func TestRun_InsertAndUpdateInOnePass(t *testing.T) {
	h := newHarness(t)
	h.putTask(t, "alice", "t1", memory.Task{
		Task:         "Schedule dentist",
		Solutions:    []string{"call the clinic"},
		Status:       memory.TaskStatusInProgress,
		PlannedEdits: []string{"created"},
	})
	h.chat.Push(route("call_1", "todo"), llmtest.Text("好的"))
	h.ext.Push(llmtest.ToolCalls(
		llm.ToolCall{ID: "x1", Type: "function", Function: llm.FunctionCall{
			Name:      extract.UpdateToolName,
			Arguments: `{"json_doc_id":"t1","doc":{"task":"Schedule dentist","solutions":["Book Dr. Li for Tuesday"],"planned_edits":["narrowed the clinic"]}}`,
		}},
		llm.ToolCall{ID: "x2", Type: "function", Function: llm.FunctionCall{
			Name:      "ToDo",
			Arguments: `{"task":"Renew passport","solutions":["book an appointment online"],"planned_edits":["new task"]}`,
		}},
	))

	res := h.run(t, "alice", "th", "dentist with Dr. Li on Tuesday, and I need to renew my passport")
	assert.Equal(t, "done", res.Trace[1].Ack)

	todos, err := h.ctrl.Todos(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, todos, 2)
	assert.Equal(t, "t1", todos[0].Key)
	assert.Equal(t, []string{"Book Dr. Li for Tuesday"}, todos[0].Solutions)
	// status is carried over when the model omits it
	assert.Equal(t, memory.TaskStatusInProgress, todos[0].Status)
	assert.Equal(t, "Renew passport", todos[1].Task)
	assert.NotEqual(t, "t1", todos[1].Key)
}

func TestRun_EmptySolutionsRejected(t *testing.T) {
	h := newHarness(t)
	h.chat.Push(route("call_1", "todo"), llmtest.Text("抱歉，任务没有保存成功。"))
	h.ext.Push(llmtest.ToolCall("x1", "ToDo", `{"task":"准备考试","solutions":[],"planned_edits":["新增任务"]}`))

	res := h.run(t, "alice", "t1", "我需要准备一场考试")
	assert.Equal(t, "抱歉，任务没有保存成功。", res.Reply)
	assert.True(t, strings.HasPrefix(res.Trace[1].Ack, "failed: "))
	assert.Contains(t, res.Trace[1].Ack, "solutions")

	todos, err := h.ctrl.Todos(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, todos)

	msgs := h.thread(t, "t1")
	require.Len(t, msgs, 4)
	assert.Equal(t, "call_1", msgs[2].ToolCallID)
	assert.True(t, strings.HasPrefix(msgs[2].Content, "failed: "))
}

func TestRun_MissingPlannedEditsRejected(t *testing.T) {
	h := newHarness(t)
	h.chat.Push(route("call_1", "todo"), llmtest.Text("好的"))
	h.ext.Push(llmtest.ToolCall("x1", "ToDo", `{"task":"准备考试","solutions":["复习"]}`))

	res := h.run(t, "alice", "t1", "我需要准备一场考试")
	assert.Contains(t, res.Trace[1].Ack, "planned_edits")

	todos, err := h.ctrl.Todos(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, todos)
}

func TestRun_UpdateOfUnknownKeyRejected(t *testing.T) {
	h := newHarness(t)
	h.putTask(t, "alice", "t1", memory.Task{
		Task:         "Schedule dentist",
		Solutions:    []string{"call"},
		Status:       memory.TaskStatusNotStarted,
		PlannedEdits: []string{"created"},
	})
	h.chat.Push(route("call_1", "todo"), llmtest.Text("好的"))
	h.ext.Push(llmtest.ToolCall("x1", extract.UpdateToolName,
		`{"json_doc_id":"ghost","doc":{"task":"Ghost","solutions":["x"],"planned_edits":["y"]}}`))

	res := h.run(t, "alice", "t1", "update it")
	assert.Contains(t, res.Trace[1].Ack, "ghost")

	todos, err := h.ctrl.Todos(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, todos, 1)
	assert.Equal(t, "Schedule dentist", todos[0].Task)
}

func TestRun_InstructionsAppendOnly(t *testing.T) {
	h := newHarness(t)
	h.chat.Push(
		route("call_1", "instructions"),
		llmtest.Text("添加任务时请写明具体地点。"),
		llmtest.Text("好的，我记住了。"),
		route("call_2", "instructions"),
		llmtest.Text("截止日期使用年月日格式。"),
		llmtest.Text("明白。"),
	)

	h.run(t, "alice", "t1", "以后添加任务时写上地点")
	h.run(t, "alice", "t1", "截止日期请写年月日")

	ins, err := h.ctrl.Instructions(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, ins, 2)
	assert.Equal(t, "添加任务时请写明具体地点。", ins[0].Content)
	assert.Equal(t, "截止日期使用年月日格式。", ins[1].Content)
	assert.Equal(t, DefaultLocale, ins[0].Language)
	assert.NotEqual(t, ins[0].Key, ins[1].Key)

	// the second generation call sees the first instruction as current state
	calls := h.chat.Calls()
	require.Len(t, calls, 6)
	gen := calls[4]
	assert.Contains(t, gen.Messages[0].Content, "<current_instructions>\n添加任务时请写明具体地点。\n</current_instructions>")
	last := gen.Messages[len(gen.Messages)-1]
	assert.Equal(t, llm.RoleUser, last.Role)
	assert.Equal(t, instructionsFollowUp, last.Content)
	assert.Empty(t, gen.Options.Tools)
}

func TestRun_ProfileRewrite(t *testing.T) {
	h := newHarness(t)
	h.chat.Push(route("call_1", "user"), llmtest.Text("很高兴认识你"))
	h.ext.Push(llmtest.ToolCall("x1", "Profile", `{"name":"小明","location":"上海","interests":["游泳"]}`))

	h.run(t, "alice", "t1", "我叫小明，住在上海，喜欢游泳")

	p, err := h.ctrl.Profile(context.Background(), "alice")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "小明", *p.Name)
	assert.Equal(t, []string{"游泳"}, p.Interests)
	assert.NotNil(t, p.Connections)

	items, err := h.store.Search(context.Background(), memory.NewNamespace(memory.CategoryProfile, "alice"))
	require.NoError(t, err)
	require.Len(t, items, 1)
	key := items[0].Key

	h.chat.Push(route("call_2", "user"), llmtest.Text("好的"))
	h.ext.Push(llmtest.ToolCall("x2", extract.UpdateToolName, fmt.Sprintf(
		`{"json_doc_id":%q,"doc":{"name":"小明","location":"北京","interests":["游泳"]}}`, key)))

	h.run(t, "alice", "t1", "我搬到北京了")

	items, err = h.store.Search(context.Background(), memory.NewNamespace(memory.CategoryProfile, "alice"))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, key, items[0].Key)

	p, err = h.ctrl.Profile(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "北京", *p.Location)

	// an existing profile is offered for update only
	calls := h.ext.Calls()
	require.Len(t, calls, 2)
	require.Len(t, calls[1].Options.Tools, 1)
	assert.Equal(t, extract.UpdateToolName, calls[1].Options.Tools[0].Function.Name)
}

func TestRun_FirstValidDecisionWins(t *testing.T) {
	h := newHarness(t)
	h.chat.Push(
		llmtest.ToolCalls(
			llm.ToolCall{ID: "a", Type: "function", Function: llm.FunctionCall{Name: UpdateMemoryTool, Arguments: `{"update_type":"calendar"}`}},
			llm.ToolCall{ID: "b", Type: "function", Function: llm.FunctionCall{Name: UpdateMemoryTool, Arguments: `{"update_type":"todo"}`}},
			llm.ToolCall{ID: "c", Type: "function", Function: llm.FunctionCall{Name: UpdateMemoryTool, Arguments: `{"update_type":"user"}`}},
		),
		llmtest.Text("好的"),
	)
	h.ext.Push(llmtest.ToolCall("x1", "ToDo", `{"task":"买菜","solutions":["去超市"],"planned_edits":["新增任务"]}`))

	res := h.run(t, "alice", "t1", "提醒我买菜")
	assert.Equal(t, StateReconcileTodo, res.Trace[1].State)
	assert.Equal(t, "b", res.Trace[1].ToolCallID)

	acks := map[string]string{}
	for _, m := range h.thread(t, "t1") {
		if m.Role == llm.RoleTool {
			acks[m.ToolCallID] = m.Content
		}
	}
	assert.Equal(t, map[string]string{"a": "skipped", "b": "done", "c": "skipped"}, acks)
}

func TestRun_UnknownTagFailsAndRestores(t *testing.T) {
	h := newHarness(t)
	h.chat.Push(route("call_1", "calendar"))

	_, err := h.ctrl.Run(context.Background(), TurnRequest{UserID: "alice", ThreadID: "t1", Input: "明天开会"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRoutingFailed())
	assert.Empty(t, h.ext.Calls())

	// the user message is kept for a retry
	msgs := h.thread(t, "t1")
	require.Len(t, msgs, 1)
	assert.Equal(t, "明天开会", msgs[0].Content)
}

func TestRun_ClassificationFailure(t *testing.T) {
	h := newHarness(t)
	h.chat.Push(llmtest.Fail(errors.New("upstream timeout")))

	_, err := h.ctrl.Run(context.Background(), TurnRequest{UserID: "alice", ThreadID: "t1", Input: "你好"})
	assert.ErrorIs(t, err, ErrClassificationFailed())
	assert.Len(t, h.thread(t, "t1"), 1)
}

func TestRun_ReconcileLimitFailsClosed(t *testing.T) {
	h := newHarness(t)
	h.chat.Push(route("call_1", "todo"), route("call_2", "todo"))
	h.ext.Push(llmtest.ToolCall("x1", "ToDo", `{"task":"买菜","solutions":["去超市"],"planned_edits":["新增任务"]}`))

	_, err := h.ctrl.Run(context.Background(), TurnRequest{UserID: "alice", ThreadID: "t1", Input: "提醒我买菜"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrReconcileLimit())
	assert.Len(t, h.chat.Calls(), 2)
	assert.Len(t, h.thread(t, "t1"), 1)
}

func TestRun_HigherReconcileLimit(t *testing.T) {
	h := newHarness(t, WithMaxReconciles(2))
	h.chat.Push(route("call_1", "todo"), route("call_2", "instructions"), llmtest.Text("请写地点"), llmtest.Text("好的"))
	h.ext.Push(llmtest.ToolCall("x1", "ToDo", `{"task":"买菜","solutions":["去超市"],"planned_edits":["新增任务"]}`))

	res := h.run(t, "alice", "t1", "提醒我买菜，以后写上地点")
	assert.Equal(t, []State{
		StateClassify, StateReconcileTodo,
		StateClassify, StateReconcileInstructions,
		StateClassify,
	}, states(res.Trace))
	assert.Equal(t, llm.ToolChoiceAuto, h.chat.Calls()[1].Options.ToolChoice)
}

func TestRun_NamespaceIsolation(t *testing.T) {
	h := newHarness(t)
	h.chat.Push(route("call_1", "todo"), llmtest.Text("好的"), llmtest.Text("你好 bob"))
	h.ext.Push(llmtest.ToolCall("x1", "ToDo", `{"task":"准备考试","solutions":["复习"],"planned_edits":["新增任务"]}`))

	h.run(t, "alice", "ta", "我需要准备一场考试")
	h.run(t, "bob", "tb", "你好")

	todos, err := h.ctrl.Todos(context.Background(), "bob")
	require.NoError(t, err)
	assert.Empty(t, todos)

	calls := h.chat.Calls()
	require.Len(t, calls, 3)
	assert.NotContains(t, calls[2].Messages[0].Content, "准备考试")
	assert.Contains(t, calls[1].Messages[0].Content, "准备考试")
	// bob's thread does not see alice's messages
	require.Len(t, calls[2].Messages, 3)
}

type fakeSearcher struct {
	out     string
	err     error
	queries []string
}

func (f *fakeSearcher) Search(_ context.Context, query string) (string, error) {
	f.queries = append(f.queries, query)
	return f.out, f.err
}

func TestRun_SearchContextIsTurnScoped(t *testing.T) {
	s := &fakeSearcher{out: "这是结合网络搜索给出的建议：- 选附近的游泳馆"}
	h := newHarness(t, WithSearcher(s))
	h.chat.Push(llmtest.Text("可以考虑附近的游泳馆"))

	h.run(t, "alice", "t1", "给宝宝报游泳课")

	assert.Equal(t, []string{"给宝宝报游泳课"}, s.queries)
	call := h.chat.Calls()[0]
	require.Len(t, call.Messages, 4)
	assert.Equal(t, llm.RoleUser, call.Messages[2].Role)
	assert.Equal(t, s.out, call.Messages[2].Content)

	for _, m := range h.thread(t, "t1") {
		assert.NotEqual(t, s.out, m.Content)
	}
}

func TestRun_SearchFailureIgnored(t *testing.T) {
	h := newHarness(t, WithSearcher(&fakeSearcher{err: errors.New("quota")}))
	h.chat.Push(llmtest.Text("好的"))

	res := h.run(t, "alice", "t1", "你好")
	assert.Equal(t, "好的", res.Reply)
	assert.Len(t, h.chat.Calls()[0].Messages, 3)
}

type brokenReads struct {
	memory.Store
}

func (brokenReads) Search(context.Context, memory.Namespace) ([]memory.Item, error) {
	return nil, memory.ErrStoreUnavailable()
}

func TestRun_ReadFailureRendersEmpty(t *testing.T) {
	chat := llmtest.New(llmtest.Text("你好"))
	store := brokenReads{Store: memoryinfra.NewInMemoryStore()}
	ctrl := NewController(chat, extract.NewExtractor(llmtest.New()), store, memoryx.NewInMemoryLedger())

	res, err := ctrl.Run(context.Background(), TurnRequest{UserID: "alice", Input: "你好"})
	require.NoError(t, err)
	assert.Equal(t, "你好", res.Reply)
	assert.Contains(t, chat.Calls()[0].Messages[0].Content, "<todo>\n\n</todo>")
}

// failingWrites lets the first allow writes through and fails the rest
type failingWrites struct {
	memory.Store
	allow int
}

func (f *failingWrites) Put(ctx context.Context, ns memory.Namespace, key string, value []byte) error {
	if f.allow > 0 {
		f.allow--
		return f.Store.Put(ctx, ns, key, value)
	}
	return memory.ErrStoreUnavailable()
}

func TestRun_WriteFailureIsAcknowledged(t *testing.T) {
	chat := llmtest.New(route("call_1", "todo"), llmtest.Text("抱歉，任务没有保存成功。"))
	ext := llmtest.New(llmtest.ToolCall("x1", "ToDo",
		`{"task":"准备考试","solutions":["复习"],"planned_edits":["新增任务"]}`))
	ledger := memoryx.NewInMemoryLedger()
	store := &failingWrites{Store: memoryinfra.NewInMemoryStore()}
	ctrl := NewController(chat, extract.NewExtractor(ext), store, ledger)

	res, err := ctrl.Run(context.Background(), TurnRequest{UserID: "alice", ThreadID: "t1", Input: "我需要准备一场考试"})
	require.NoError(t, err)
	assert.Equal(t, "抱歉，任务没有保存成功。", res.Reply)
	assert.Equal(t, []State{StateClassify, StateReconcileTodo, StateClassify}, states(res.Trace))
	assert.Equal(t, "failed: Record store unavailable", res.Trace[1].Ack)

	msgs, err := ledger.Messages(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, llm.RoleTool, msgs[2].Role)
	assert.Equal(t, "failed: Record store unavailable", msgs[2].Content)

	todos, err := ctrl.Todos(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, todos)
}

func TestRun_PartialWriteListsSavedKeys(t *testing.T) {
	chat := llmtest.New(route("call_1", "todo"), llmtest.Text("只保存了一个任务。"))
	ext := llmtest.New(llmtest.ToolCalls(
		llm.ToolCall{ID: "x1", Type: "function", Function: llm.FunctionCall{
			Name:      "ToDo",
			Arguments: `{"task":"准备考试","solutions":["复习"],"planned_edits":["新增任务"]}`,
		}},
		llm.ToolCall{ID: "x2", Type: "function", Function: llm.FunctionCall{
			Name:      "ToDo",
			Arguments: `{"task":"续签护照","solutions":["网上预约"],"planned_edits":["新增任务"]}`,
		}},
	))
	store := &failingWrites{Store: memoryinfra.NewInMemoryStore(), allow: 1}
	ctrl := NewController(chat, extract.NewExtractor(ext), store, memoryx.NewInMemoryLedger())

	res, err := ctrl.Run(context.Background(), TurnRequest{UserID: "alice", ThreadID: "t1", Input: "考试和护照"})
	require.NoError(t, err)

	todos, err := ctrl.Todos(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, todos, 1)
	assert.Equal(t, "failed: Record store unavailable; saved before the failure: "+todos[0].Key, res.Trace[1].Ack)
}

func TestRun_GeneratesThreadID(t *testing.T) {
	h := newHarness(t)
	h.chat.Push(llmtest.Text("hi"))

	res := h.run(t, "alice", "", "hello")
	assert.False(t, res.ThreadID.IsEmpty())
	assert.Len(t, h.thread(t, res.ThreadID.String()), 2)
}

func TestRun_InvalidInput(t *testing.T) {
	h := newHarness(t)
	for _, req := range []TurnRequest{
		{UserID: "", Input: "hi"},
		{UserID: "alice", Input: "   "},
	} {
		_, err := h.ctrl.Run(context.Background(), req)
		assert.ErrorIs(t, err, ErrInvalidInput())
	}
	assert.Empty(t, h.chat.Calls())
}

func TestRunStream_ForwardsFragments(t *testing.T) {
	h := newHarness(t)
	h.chat.Push(route("call_1", "todo"), llmtest.Text("已添加"))
	h.ext.Push(llmtest.ToolCall("x1", "ToDo", `{"task":"买菜","solutions":["去超市"],"planned_edits":["新增任务"]}`))

	var fragments []string
	res, err := h.ctrl.RunStream(context.Background(),
		TurnRequest{UserID: "alice", ThreadID: "t1", Input: "提醒我买菜"},
		func(f string) error {
			fragments = append(fragments, f)
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, []string{"已", "添", "加"}, fragments)
	assert.Equal(t, "已添加", res.Reply)

	todos, err := h.ctrl.Todos(context.Background(), "alice")
	require.NoError(t, err)
	assert.Len(t, todos, 1)
}

func TestRunStream_EmitErrorAbortsTurn(t *testing.T) {
	h := newHarness(t)
	h.chat.Push(llmtest.Text("hello"))

	_, err := h.ctrl.RunStream(context.Background(),
		TurnRequest{UserID: "alice", ThreadID: "t1", Input: "hi"},
		func(string) error { return errors.New("client gone") })
	assert.ErrorIs(t, err, ErrClassificationFailed())
	assert.Len(t, h.thread(t, "t1"), 1)
}

func TestForget(t *testing.T) {
	h := newHarness(t)
	h.chat.Push(llmtest.Text("hi"))
	h.run(t, "alice", "t1", "hello")

	require.NoError(t, h.ctrl.Forget(context.Background(), "t1"))
	assert.Empty(t, h.thread(t, "t1"))
	assert.ErrorIs(t, h.ctrl.Forget(context.Background(), ""), ErrInvalidInput())
}

func TestProfile_NoneRecorded(t *testing.T) {
	h := newHarness(t)
	p, err := h.ctrl.Profile(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, p)
}
