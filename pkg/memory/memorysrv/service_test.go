package memorysrv

import (
	"context"
	"testing"
	"time"

	"github.com/break1145/GraphDo/pkg/kernel"
	"github.com/break1145/GraphDo/pkg/memory"
	"github.com/break1145/GraphDo/pkg/memory/memoryinfra"
	"github.com/break1145/GraphDo/pkg/ptrx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService() *MemoryService {
	return NewMemoryService(memoryinfra.NewInMemoryStore())
}

func TestInstructions_CRUD(t *testing.T) {
	ctx := context.Background()
	s := newService()

	created, err := s.CreateInstruction(ctx, memory.InstructionCreateRequest{
		UserID: " alice ", Language: "zh-CN", Content: "  添加待办时附上地点 ",
	})
	require.NoError(t, err)
	assert.Equal(t, "添加待办时附上地点", created.Content)

	list, err := s.ListInstructions(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, created.Key, list[0].Key)

	_, err = s.UpdateInstruction(ctx, "alice", created.Key, memory.InstructionUpdateRequest{Language: "en-US", Content: "add a location"})
	require.NoError(t, err)
	list, err = s.ListInstructions(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "add a location", list[0].Content)

	require.NoError(t, s.DeleteInstruction(ctx, "alice", created.Key))
	list, err = s.ListInstructions(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCreateInstruction_Blank(t *testing.T) {
	_, err := newService().CreateInstruction(context.Background(), memory.InstructionCreateRequest{
		UserID: "alice", Language: "zh-CN", Content: "   ",
	})
	require.ErrorIs(t, err, memory.ErrInvalidRequest())
}

func TestUpdateInstruction_Missing(t *testing.T) {
	_, err := newService().UpdateInstruction(context.Background(), "alice", "nope",
		memory.InstructionUpdateRequest{Language: "zh-CN", Content: "x"})
	assert.ErrorIs(t, err, memory.ErrRecordNotFound())
}

func TestProfile_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := newService()

	_, err := s.GetProfile(ctx, "alice")
	require.ErrorIs(t, err, memory.ErrProfileNotFound())

	_, err = s.UpdateProfile(ctx, "alice", memory.ProfileRequest{Name: ptrx.String("小明")})
	require.ErrorIs(t, err, memory.ErrProfileNotFound())

	_, err = s.CreateProfile(ctx, memory.ProfileRequest{UserID: "alice", Name: ptrx.String("小明")})
	require.NoError(t, err)
	_, err = s.CreateProfile(ctx, memory.ProfileRequest{UserID: "alice", Name: ptrx.String("小红")})
	require.NoError(t, err)

	_, err = s.UpdateProfile(ctx, "alice", memory.ProfileRequest{Name: ptrx.String("小明"), Interests: []string{"游泳", " "}})
	require.NoError(t, err)

	p, err := s.GetProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "小明", *p.Name)
	assert.Equal(t, []string{"游泳"}, p.Interests)
	assert.Empty(t, p.Connections)

	items, err := s.store.Search(ctx, memory.NewNamespace(memory.CategoryProfile, "alice"))
	require.NoError(t, err)
	assert.Len(t, items, 1, "the profile stays a singleton")
}

func TestTodos_CRUD(t *testing.T) {
	ctx := context.Background()
	s := newService()

	created, err := s.CreateTodo(ctx, memory.TodoRequest{
		UserID:   "alice",
		Task:     "准备考试",
		Deadline: ptrx.String("2026-06-09"),
	})
	require.NoError(t, err)
	assert.Equal(t, memory.TaskStatusNotStarted, created.Status)
	require.NotNil(t, created.Deadline)
	assert.True(t, created.Deadline.Equal(time.Date(2026, 6, 9, 0, 0, 0, 0, time.UTC)))
	assert.Empty(t, created.Solutions)

	updated, err := s.UpdateTodo(ctx, "alice", created.Key, memory.TodoRequest{
		Task:   "准备期末考试",
		Status: "in progress",
	})
	require.NoError(t, err)
	assert.Nil(t, updated.Deadline)

	list, err := s.ListTodos(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "准备期末考试", list[0].Task)
	assert.Equal(t, memory.TaskStatusInProgress, list[0].Status)

	require.NoError(t, s.DeleteTodo(ctx, "alice", created.Key))
	assert.ErrorIs(t, s.DeleteTodo(ctx, "alice", created.Key), memory.ErrRecordNotFound())
}

func TestCreateTodo_Validation(t *testing.T) {
	ctx := context.Background()
	s := newService()

	tests := []struct {
		name string
		req  memory.TodoRequest
		err  error
	}{
		{"blank user", memory.TodoRequest{UserID: " ", Task: "x"}, memory.ErrInvalidRequest()},
		{"blank task", memory.TodoRequest{UserID: "alice", Task: " "}, memory.ErrInvalidRequest()},
		{"bad status", memory.TodoRequest{UserID: "alice", Task: "x", Status: "later"}, memory.ErrInvalidRecord()},
		{"bad deadline", memory.TodoRequest{UserID: "alice", Task: "x", Deadline: ptrx.String("下周")}, memory.ErrInvalidRecord()},
		{"negative time", memory.TodoRequest{UserID: "alice", Task: "x", TimeToComplete: ptrx.Int(-5)}, memory.ErrInvalidRecord()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.CreateTodo(ctx, tt.req)
			assert.ErrorIs(t, err, tt.err)
		})
	}

	list, err := s.ListTodos(ctx, kernel.UserID("alice"))
	require.NoError(t, err)
	assert.Empty(t, list)
}
