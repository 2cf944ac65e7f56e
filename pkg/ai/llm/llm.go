package llm

import (
	"context"
	"strings"
)

// LLM represents a generic large language model interface
type LLM interface {
	// Chat generates a response based on the conversation history
	Chat(ctx context.Context, messages []Message, opts ...Option) (Response, error)

	// ChatStream streams the response as content deltas
	ChatStream(ctx context.Context, messages []Message, opts ...Option) (Stream, error)
}

// Response contains the model's response and additional metadata
type Response struct {
	Message Message
	Usage   Usage
}

// Stream represents a streaming response
type Stream interface {
	// Next returns the next delta. Content holds only the new text; tool
	// calls are delivered once, fully assembled, on the last chunk.
	// Returns io.EOF when the stream is complete
	Next() (Message, error)

	// Close closes the stream
	Close() error
}

// Client is an LLM with default options applied before per-call ones
type Client struct {
	llm      LLM
	defaults []Option
}

// NewClient creates a new LLM client
func NewClient(llm LLM, defaults ...Option) *Client {
	return &Client{llm: llm, defaults: defaults}
}

// Chat generates a response based on the conversation history
func (c *Client) Chat(ctx context.Context, messages []Message, opts ...Option) (Response, error) {
	return c.llm.Chat(ctx, messages, c.merge(opts)...)
}

// ChatStream streams the response tokens
func (c *Client) ChatStream(ctx context.Context, messages []Message, opts ...Option) (Stream, error) {
	return c.llm.ChatStream(ctx, messages, c.merge(opts)...)
}

func (c *Client) merge(opts []Option) []Option {
	if len(c.defaults) == 0 {
		return opts
	}
	all := make([]Option, 0, len(c.defaults)+len(opts))
	all = append(all, c.defaults...)
	return append(all, opts...)
}

// Collect drains a stream into a single assistant message
func Collect(s Stream) (Message, error) {
	defer s.Close()

	var (
		content strings.Builder
		out     = Message{Role: RoleAssistant}
	)
	for {
		chunk, err := s.Next()
		if err != nil {
			if isEOF(err) {
				out.Content = content.String()
				return out, nil
			}
			return out, err
		}
		content.WriteString(chunk.Content)
		if len(chunk.ToolCalls) > 0 {
			out.ToolCalls = append(out.ToolCalls, chunk.ToolCalls...)
		}
	}
}
