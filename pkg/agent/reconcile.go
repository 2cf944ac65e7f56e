package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/break1145/GraphDo/pkg/ai/extract"
	"github.com/break1145/GraphDo/pkg/ai/llm"
	"github.com/break1145/GraphDo/pkg/errx"
	"github.com/break1145/GraphDo/pkg/kernel"
	"github.com/break1145/GraphDo/pkg/memory"
)

// Extractor is the structured extraction capability used by the reconcilers
type Extractor interface {
	Extract(ctx context.Context, req extract.Request) (*extract.Result, error)
}

// Input is what a reconciler sees of the turn
type Input struct {
	UserID kernel.UserID
	// Transcript is the conversation without the routing tool call
	Transcript []llm.Message
	Hints      string
}

// Outcome lists the keys a reconciler wrote
type Outcome struct {
	Category memory.Category
	Inserted []string
	Updated  []string
	Rejected []string
}

func (o Outcome) Written() int {
	return len(o.Inserted) + len(o.Updated)
}

// Ack is the tool message content recorded after a successful reconcile
func (o Outcome) Ack() string {
	if len(o.Rejected) == 0 {
		return "done"
	}
	return "done; rejected: " + strings.Join(o.Rejected, "; ")
}

// FailureAck is the tool message content recorded when a reconcile fails.
// Keys written before the failure are listed so the reply can mention them.
func (o Outcome) FailureAck(err error) string {
	ack := failureAck(err)
	if o.Written() == 0 {
		return ack
	}
	saved := append(append([]string{}, o.Inserted...), o.Updated...)
	return ack + "; saved before the failure: " + strings.Join(saved, ", ")
}

// Reconciler merges transcript signal into one category's records
type Reconciler interface {
	Category() memory.Category
	Reconcile(ctx context.Context, in Input) (Outcome, error)
}

// failureAck is the tool message content recorded when a reconcile fails
func failureAck(err error) string {
	if e, ok := errx.As(err); ok {
		reason := e.Message
		if rs, ok := e.Details["reasons"].([]string); ok && len(rs) > 0 {
			reason += ": " + strings.Join(rs, "; ")
		} else if e.Err != nil {
			reason += ": " + e.Err.Error()
		}
		return "failed: " + reason
	}
	return "failed: " + err.Error()
}

// transcriptOf keeps the user and assistant text of a thread. Tool calls and
// acknowledgements belong to the routing step and are dropped.
func transcriptOf(history []llm.Message) []llm.Message {
	out := make([]llm.Message, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case llm.RoleUser:
			out = append(out, llm.NewUserMessage(m.Content))
		case llm.RoleAssistant:
			if strings.TrimSpace(m.Content) != "" {
				out = append(out, llm.NewAssistantMessage(m.Content))
			}
		}
	}
	return out
}

// reasonOf renders a rejection reason, including the offending field when known
func reasonOf(err error) string {
	if e, ok := errx.As(err); ok {
		if field, ok := e.Details["field"]; ok {
			return fmt.Sprintf("%s: %v %v", e.Message, field, e.Details["reason"])
		}
		if e.Err != nil {
			return e.Message + ": " + e.Err.Error()
		}
		return e.Message
	}
	return err.Error()
}
