package memoryx

import (
	"context"
	"testing"

	"github.com/break1145/GraphDo/pkg/ai/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryLedger_CheckpointRestore(t *testing.T) {
	ctx := context.Background()
	l := NewInMemoryLedger()

	require.NoError(t, l.Append(ctx, "t1", llm.NewUserMessage("hi")))
	cp, err := l.Checkpoint(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, cp.Length)

	require.NoError(t, l.Append(ctx, "t1",
		llm.Message{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: "c1"}}},
		llm.NewToolMessage("c1", "done"),
	))
	require.NoError(t, l.Restore(ctx, "t1", cp))

	msgs, err := l.Messages(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Content)

	// appending after a restore must not resurrect dropped messages
	require.NoError(t, l.Append(ctx, "t1", llm.NewAssistantMessage("hello")))
	msgs, _ = l.Messages(ctx, "t1")
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello", msgs[1].Content)
}

func TestInMemoryLedger_RestoreBeyondEnd(t *testing.T) {
	ctx := context.Background()
	l := NewInMemoryLedger()

	err := l.Restore(ctx, "t1", Checkpoint{Length: 3})
	require.ErrorIs(t, err, ErrInvalidCheckpoint())
}

func TestInMemoryLedger_ThreadsIsolated(t *testing.T) {
	ctx := context.Background()
	l := NewInMemoryLedger()

	require.NoError(t, l.Append(ctx, "a", llm.NewUserMessage("for a")))
	msgs, err := l.Messages(ctx, "b")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	require.NoError(t, l.Clear(ctx, "a"))
	msgs, _ = l.Messages(ctx, "a")
	assert.Empty(t, msgs)
}

func TestInMemoryLedger_MessagesIsCopy(t *testing.T) {
	ctx := context.Background()
	l := NewInMemoryLedger()
	require.NoError(t, l.Append(ctx, "a", llm.NewUserMessage("x")))

	msgs, _ := l.Messages(ctx, "a")
	msgs[0].Content = "mutated"

	again, _ := l.Messages(ctx, "a")
	assert.Equal(t, "x", again[0].Content)
}
