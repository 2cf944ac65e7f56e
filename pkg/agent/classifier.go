package agent

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/break1145/GraphDo/pkg/ai/extract"
	"github.com/break1145/GraphDo/pkg/ai/llm"
	"github.com/break1145/GraphDo/pkg/memory"
	"github.com/break1145/GraphDo/pkg/metrics"
	"github.com/goccy/go-json"
	"github.com/kaptinlin/jsonrepair"
)

// UpdateMemoryTool is the single routing tool offered to the classifier
const UpdateMemoryTool = "UpdateMemory"

type updateMemoryArgs struct {
	UpdateType string `json:"update_type" jsonschema:"enum=user,enum=todo,enum=instructions,description=Which kind of memory to update"`
	Hints      string `json:"hints,omitempty" jsonschema:"description=Optional short note on what changed"`
}

var updateMemorySchema = extract.SchemaFor(
	UpdateMemoryTool,
	"Decide which type of memory to update: user (profile), todo (task list) or instructions (preferences for updating the task list).",
	&updateMemoryArgs{},
)

// Decision is one classifier pass. Category is empty when the model only replied.
type Decision struct {
	Message  llm.Message
	Category memory.Category
	ToolCall *llm.ToolCall
	Hints    string
	// Extra holds tool calls that were not acted on this pass
	Extra []llm.ToolCall
}

func (d *Decision) HasCategory() bool {
	return d.Category != ""
}

type ClassifyInput struct {
	// User is forwarded to the provider for attribution
	User    string
	Memory  Memory
	History []llm.Message
	// SearchContext is turn-scoped enrichment placed after the system framing
	SearchContext string
	// AllowUpdates=false keeps the tool visible but sets tool choice to none
	AllowUpdates bool
	// Emit receives content deltas; nil uses a non-streaming call
	Emit func(fragment string) error
}

// Classifier decides whether a message needs a memory update and of which kind
type Classifier struct {
	llm llm.LLM
	now func() time.Time
}

func NewClassifier(model llm.LLM) *Classifier {
	return &Classifier{llm: model, now: time.Now}
}

func (c *Classifier) Classify(ctx context.Context, in ClassifyInput) (*Decision, error) {
	msgs := c.messages(in)

	opts := []llm.Option{
		llm.WithTools([]llm.Tool{llm.NewFunctionTool(
			updateMemorySchema.Name,
			updateMemorySchema.Description,
			updateMemorySchema.Parameters,
		)}),
		llm.WithParallelToolCalls(false),
	}
	if in.User != "" {
		opts = append(opts, llm.WithUser(in.User))
	}
	if in.AllowUpdates {
		opts = append(opts, llm.WithToolChoice(llm.ToolChoiceAuto))
	} else {
		opts = append(opts, llm.WithToolChoice(llm.ToolChoiceNone))
	}

	start := c.now()
	msg, err := c.call(ctx, msgs, in.Emit, opts)
	metrics.ObserveLLM("classify", start, err)
	if err != nil {
		return nil, ErrClassificationFailed().WithError(err)
	}
	msg.Role = llm.RoleAssistant

	return decide(msg)
}

func (c *Classifier) messages(in ClassifyInput) []llm.Message {
	msgs := make([]llm.Message, 0, len(in.History)+3)
	msgs = append(msgs,
		llm.NewSystemMessage(buildSystemPrompt(in.Memory)),
		llm.NewSystemMessage(chineseOnlyPrompt),
	)
	if in.SearchContext != "" {
		msgs = append(msgs, llm.NewUserMessage(in.SearchContext))
	}
	return append(msgs, in.History...)
}

func (c *Classifier) call(ctx context.Context, msgs []llm.Message, emit func(string) error, opts []llm.Option) (llm.Message, error) {
	if emit == nil {
		resp, err := c.llm.Chat(ctx, msgs, opts...)
		if err != nil {
			return llm.Message{}, err
		}
		return resp.Message, nil
	}

	stream, err := c.llm.ChatStream(ctx, msgs, opts...)
	if err != nil {
		return llm.Message{}, err
	}
	defer stream.Close()

	var (
		content strings.Builder
		out     llm.Message
	)
	for {
		chunk, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return llm.Message{}, err
		}
		if chunk.Content != "" {
			content.WriteString(chunk.Content)
			if err := emit(chunk.Content); err != nil {
				return llm.Message{}, err
			}
		}
		out.ToolCalls = append(out.ToolCalls, chunk.ToolCalls...)
	}
	out.Content = content.String()
	return out, nil
}

// decide picks the first tool call carrying a valid update_type. The
// remaining calls are returned in Extra so they can be acknowledged.
func decide(msg llm.Message) (*Decision, error) {
	d := &Decision{Message: msg}
	if !msg.HasToolCalls() {
		return d, nil
	}

	var firstErr error
	for i := range msg.ToolCalls {
		tc := msg.ToolCalls[i]
		if d.ToolCall != nil {
			d.Extra = append(d.Extra, tc)
			continue
		}
		cat, hints, err := parseUpdateMemory(tc)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			d.Extra = append(d.Extra, tc)
			continue
		}
		d.Category = cat
		d.Hints = hints
		d.ToolCall = &tc
	}

	if d.ToolCall == nil {
		return nil, firstErr
	}
	return d, nil
}

func parseUpdateMemory(tc llm.ToolCall) (memory.Category, string, error) {
	if tc.Function.Name != UpdateMemoryTool {
		return "", "", ErrRoutingFailed().
			WithDetail("tool", tc.Function.Name).
			WithDetail("tool_call_id", tc.ID)
	}

	raw := strings.TrimSpace(tc.Function.Arguments)
	var args updateMemoryArgs
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(raw)
		if repairErr != nil {
			return "", "", ErrClassificationFailed().WithError(err).WithDetail("tool_call_id", tc.ID)
		}
		if err := json.Unmarshal([]byte(repaired), &args); err != nil {
			return "", "", ErrClassificationFailed().WithError(err).WithDetail("tool_call_id", tc.ID)
		}
	}

	cat, err := memory.ParseCategory(args.UpdateType)
	if err != nil {
		return "", "", ErrRoutingFailed().
			WithError(err).
			WithDetail("update_type", args.UpdateType).
			WithDetail("tool_call_id", tc.ID)
	}
	return cat, strings.TrimSpace(args.Hints), nil
}
