package memory

import (
	"testing"
	"time"

	"github.com/break1145/GraphDo/pkg/errx"
	"github.com/break1145/GraphDo/pkg/ptrx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCategory(t *testing.T) {
	tests := []struct {
		tag  string
		want Category
	}{
		{"user", CategoryProfile},
		{"profile", CategoryProfile},
		{"todo", CategoryTodo},
		{" Instructions ", CategoryInstructions},
	}
	for _, tt := range tests {
		got, err := ParseCategory(tt.tag)
		require.NoError(t, err, tt.tag)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseCategory("calendar")
	require.Error(t, err)
	assert.True(t, errx.IsType(err, errx.TypeValidation))
}

func TestNamespacePrefix(t *testing.T) {
	assert.Equal(t, "todo.alice", NewNamespace(CategoryTodo, "alice").Prefix())
	assert.Equal(t, "instructions.u-1", NewNamespace(CategoryInstructions, "u-1").Prefix())
}

func TestTask_ValidateReconciled(t *testing.T) {
	valid := Task{
		Task:         "准备考试",
		Solutions:    []string{"每天复习两小时"},
		Status:       TaskStatusNotStarted,
		PlannedEdits: []string{"新建考试任务"},
	}
	require.NoError(t, valid.ValidateReconciled())

	noSolutions := valid
	noSolutions.Solutions = []string{"  "}
	err := noSolutions.ValidateReconciled()
	require.ErrorIs(t, err, ErrInvalidRecord())
	e, _ := errx.As(err)
	assert.Equal(t, "solutions", e.Details["field"])

	noEdits := valid
	noEdits.PlannedEdits = nil
	require.Error(t, noEdits.ValidateReconciled())

	badStatus := valid
	badStatus.Status = "paused"
	require.Error(t, badStatus.ValidateReconciled())

	blank := valid
	blank.Task = " "
	require.Error(t, blank.Validate())
}

func TestTask_NormalizeDefaultsStatus(t *testing.T) {
	task := Task{Task: "  buy milk ", Solutions: []string{" store ", ""}}
	task.Normalize()
	assert.Equal(t, "buy milk", task.Task)
	assert.Equal(t, TaskStatusNotStarted, task.Status)
	assert.Equal(t, []string{"store"}, task.Solutions)
	assert.NotNil(t, task.PlannedEdits)
}

func TestProfile_Normalize(t *testing.T) {
	p := Profile{Name: ptrx.String("  "), Job: ptrx.String(" nurse ")}
	p.Normalize()
	assert.Nil(t, p.Name)
	assert.Equal(t, "nurse", *p.Job)
	assert.Equal(t, []string{}, p.Interests)
}

func TestInstruction_Validate(t *testing.T) {
	require.NoError(t, Instruction{Language: "zh-CN", Content: "用中文回复"}.Validate())
	require.Error(t, Instruction{Language: "zh-CN", Content: " "}.Validate())
	require.Error(t, Instruction{Content: "x"}.Validate())
}

func TestParseDeadline(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2026-06-09", time.Date(2026, 6, 9, 0, 0, 0, 0, time.UTC)},
		{"2026-06-09T18:30:00", time.Date(2026, 6, 9, 18, 30, 0, 0, time.UTC)},
		{"2026-06-09 18:30", time.Date(2026, 6, 9, 18, 30, 0, 0, time.UTC)},
		{"2026-06-09T18:30:00+08:00", time.Date(2026, 6, 9, 10, 30, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := ParseDeadline(tt.in)
		require.NoError(t, err, tt.in)
		require.NotNil(t, got)
		assert.True(t, got.Equal(tt.want), "%s: got %s", tt.in, got)
	}

	got, err := ParseDeadline("  ")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = ParseDeadline("6月9号")
	assert.ErrorIs(t, err, ErrInvalidRecord())
}

func TestTodoRequest_ToTask(t *testing.T) {
	req := TodoRequest{
		UserID:         "alice",
		Task:           "  买牛奶 ",
		TimeToComplete: ptrx.Int(10),
		Deadline:       ptrx.String("2026-06-09"),
		Solutions:      []string{" 超市 ", ""},
	}
	task, err := req.ToTask("k1")
	require.NoError(t, err)
	assert.Equal(t, "k1", task.Key)
	assert.Equal(t, "买牛奶", task.Task)
	assert.Equal(t, TaskStatusNotStarted, task.Status)
	assert.Equal(t, []string{"超市"}, task.Solutions)
	require.NotNil(t, task.Deadline)
	assert.True(t, task.Deadline.Equal(time.Date(2026, 6, 9, 0, 0, 0, 0, time.UTC)))

	_, err = TodoRequest{Task: " "}.ToTask("k2")
	assert.ErrorIs(t, err, ErrInvalidRequest())
}
