// Package llmtest provides a scripted llm.LLM for tests.
package llmtest

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/break1145/GraphDo/pkg/ai/llm"
)

// Call is one recorded request
type Call struct {
	Messages []llm.Message
	Options  *llm.ChatOptions
}

// Reply is one scripted answer. Err takes precedence over Message.
type Reply struct {
	Message llm.Message
	Err     error
}

// Responder picks the reply for a request. Returning ok=false falls through to the queue.
type Responder func(call Call) (Reply, bool)

// Scripted replays replies in order and records every call
type Scripted struct {
	mu        sync.Mutex
	replies   []Reply
	responder Responder
	calls     []Call
}

func New(replies ...Reply) *Scripted {
	return &Scripted{replies: replies}
}

// WithResponder installs a function consulted before the queue
func (s *Scripted) WithResponder(r Responder) *Scripted {
	s.responder = r
	return s
}

// Push queues more replies
func (s *Scripted) Push(replies ...Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, replies...)
}

// Calls returns the recorded requests
func (s *Scripted) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

func (s *Scripted) next(messages []llm.Message, opts []llm.Option) (llm.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	call := Call{Messages: append([]llm.Message(nil), messages...), Options: llm.Apply(opts...)}
	s.calls = append(s.calls, call)

	if s.responder != nil {
		if r, ok := s.responder(call); ok {
			return r.Message, r.Err
		}
	}
	if len(s.replies) == 0 {
		return llm.Message{}, fmt.Errorf("llmtest: no scripted reply for call %d", len(s.calls))
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	if r.Err != nil {
		return llm.Message{}, r.Err
	}
	msg := r.Message
	if msg.Role == "" {
		msg.Role = llm.RoleAssistant
	}
	return msg, nil
}

func (s *Scripted) Chat(_ context.Context, messages []llm.Message, opts ...llm.Option) (llm.Response, error) {
	msg, err := s.next(messages, opts)
	if err != nil {
		return llm.Response{}, err
	}
	return llm.Response{Message: msg}, nil
}

// ChatStream splits the scripted content into one delta per rune
func (s *Scripted) ChatStream(_ context.Context, messages []llm.Message, opts ...llm.Option) (llm.Stream, error) {
	msg, err := s.next(messages, opts)
	if err != nil {
		return nil, err
	}
	var chunks []llm.Message
	for _, r := range msg.Content {
		chunks = append(chunks, llm.Message{Role: llm.RoleAssistant, Content: string(r)})
	}
	if len(msg.ToolCalls) > 0 {
		chunks = append(chunks, llm.Message{Role: llm.RoleAssistant, ToolCalls: msg.ToolCalls})
	}
	return &stream{chunks: chunks}, nil
}

type stream struct {
	chunks []llm.Message
}

func (s *stream) Next() (llm.Message, error) {
	if len(s.chunks) == 0 {
		return llm.Message{}, io.EOF
	}
	m := s.chunks[0]
	s.chunks = s.chunks[1:]
	return m, nil
}

func (s *stream) Close() error { return nil }

// Text is a plain assistant reply
func Text(content string) Reply {
	return Reply{Message: llm.NewAssistantMessage(content)}
}

// ToolCall is an assistant reply carrying one tool call
func ToolCall(id, name, arguments string) Reply {
	return Reply{Message: llm.Message{
		Role: llm.RoleAssistant,
		ToolCalls: []llm.ToolCall{{
			ID:       id,
			Type:     "function",
			Function: llm.FunctionCall{Name: name, Arguments: arguments},
		}},
	}}
}

// ToolCalls is an assistant reply carrying several tool calls
func ToolCalls(calls ...llm.ToolCall) Reply {
	return Reply{Message: llm.Message{Role: llm.RoleAssistant, ToolCalls: calls}}
}

// Fail is a reply that errors
func Fail(err error) Reply {
	return Reply{Err: err}
}
