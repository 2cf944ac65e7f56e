package aiopenai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"

	"github.com/break1145/GraphDo/pkg/ai/llm"
	"github.com/break1145/GraphDo/pkg/errx"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared/constant"
)

// OpenAIProvider implements the LLM interface for OpenAI and compatible endpoints
type OpenAIProvider struct {
	client openai.Client
}

// NewOpenAIProvider creates a new OpenAI provider. SDK retries are off unless
// opts turn them back on: a failed call must reach the caller.
func NewOpenAIProvider(apiKey string, opts ...option.RequestOption) *OpenAIProvider {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}

	options := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, opts...)
	client := openai.NewClient(options...)

	return &OpenAIProvider{
		client: client,
	}
}

func defaultChatOptions() *llm.ChatOptions {
	options := llm.DefaultOptions()
	options.Model = "gpt-4o-mini"
	return options
}

func (p *OpenAIProvider) buildParams(messages []llm.Message, opts []llm.Option) (openai.ChatCompletionNewParams, error) {
	options := defaultChatOptions()
	for _, opt := range opts {
		opt(options)
	}

	openAIMessages := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		openAIMsg, err := convertToOpenAIMessage(msg)
		if err != nil {
			return openai.ChatCompletionNewParams{}, err
		}
		openAIMessages = append(openAIMessages, openAIMsg)
	}

	params := openai.ChatCompletionNewParams{
		Messages: openAIMessages,
		Model:    options.Model,
	}

	if options.Temperature != nil {
		params.Temperature = openai.Float(float64(*options.Temperature))
	}

	if options.User != "" {
		params.User = openai.String(options.User)
	}

	if len(options.Tools) > 0 {
		params.Tools = convertToOpenAITools(options.Tools)

		// parallel_tool_calls is rejected by the API when no tools are sent
		if options.ParallelToolCalls != nil {
			params.ParallelToolCalls = openai.Bool(*options.ParallelToolCalls)
		}
		if options.ToolChoice != nil {
			params.ToolChoice = convertToOpenAIToolChoice(options.ToolChoice)
		}
	}

	return params, nil
}

// Chat implements the LLM interface
func (p *OpenAIProvider) Chat(ctx context.Context, messages []llm.Message, opts ...llm.Option) (llm.Response, error) {
	params, err := p.buildParams(messages, opts)
	if err != nil {
		return llm.Response{}, err
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return llm.Response{}, errx.Wrap(err, "chat completion failed", errx.TypeExternal).
			WithDetail("model", params.Model)
	}

	return convertFromOpenAIResponse(completion)
}

// ChatStream implements streaming for Chat Completions API
func (p *OpenAIProvider) ChatStream(ctx context.Context, messages []llm.Message, opts ...llm.Option) (llm.Stream, error) {
	params, err := p.buildParams(messages, opts)
	if err != nil {
		return nil, err
	}

	sseStream := p.client.Chat.Completions.NewStreaming(ctx, params)

	return &openAIStream{
		stream:      sseStream,
		closer:      sseStream,
		accumulator: openai.ChatCompletionAccumulator{},
	}, nil
}

// openAIStream adapts the OpenAI streaming response to llm.Stream. Content is
// forwarded as deltas; tool calls are assembled by the accumulator and
// delivered once the server closes the stream.
type openAIStream struct {
	stream interface {
		Next() bool
		Current() openai.ChatCompletionChunk
		Err() error
	}
	closer        io.Closer
	accumulator   openai.ChatCompletionAccumulator
	lastError     error
	toolCallsSent bool
}

func (s *openAIStream) Next() (llm.Message, error) {
	if s.lastError != nil {
		return llm.Message{}, s.lastError
	}

	if !s.stream.Next() {
		if err := s.stream.Err(); err != nil {
			s.lastError = errx.Wrap(err, "chat stream failed", errx.TypeExternal)
			return llm.Message{}, s.lastError
		}
		if !s.toolCallsSent {
			s.toolCallsSent = true
			if calls := s.finishedToolCalls(); len(calls) > 0 {
				return llm.Message{Role: llm.RoleAssistant, ToolCalls: calls}, nil
			}
		}
		s.lastError = io.EOF
		return llm.Message{}, io.EOF
	}

	chunk := s.stream.Current()
	s.accumulator.AddChunk(chunk)

	if len(chunk.Choices) == 0 {
		return llm.Message{Role: llm.RoleAssistant}, nil
	}

	return llm.Message{
		Role:    llm.RoleAssistant,
		Content: chunk.Choices[0].Delta.Content,
	}, nil
}

func (s *openAIStream) finishedToolCalls() []llm.ToolCall {
	if len(s.accumulator.Choices) == 0 {
		return nil
	}
	calls := s.accumulator.Choices[0].Message.ToolCalls
	out := make([]llm.ToolCall, 0, len(calls))
	for _, tc := range calls {
		out = append(out, llm.ToolCall{
			ID:   tc.ID,
			Type: "function",
			Function: llm.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	return out
}

func (s *openAIStream) Close() error {
	return s.closer.Close()
}

func convertToOpenAIMessage(msg llm.Message) (openai.ChatCompletionMessageParamUnion, error) {
	switch msg.Role {
	case llm.RoleSystem:
		return openai.SystemMessage(msg.Content), nil
	case llm.RoleUser:
		return openai.UserMessage(msg.Content), nil
	case llm.RoleAssistant:
		if len(msg.ToolCalls) > 0 {
			toolCalls := make([]openai.ChatCompletionMessageToolCallUnionParam, 0, len(msg.ToolCalls))
			for _, tc := range msg.ToolCalls {
				toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
						ID:   tc.ID,
						Type: constant.Function("function"),
						Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      tc.Function.Name,
							Arguments: tc.Function.Arguments,
						},
					},
				})
			}

			return openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Role: constant.Assistant("assistant"),
					Content: openai.ChatCompletionAssistantMessageParamContentUnion{
						OfString: openai.String(msg.Content),
					},
					ToolCalls: toolCalls,
				},
			}, nil
		}

		return openai.AssistantMessage(msg.Content), nil
	case llm.RoleTool:
		return openai.ToolMessage(msg.Content, msg.ToolCallID), nil
	default:
		return openai.ChatCompletionMessageParamUnion{}, errors.New("unsupported role: " + msg.Role)
	}
}

func convertToOpenAITools(tools []llm.Tool) []openai.ChatCompletionToolUnionParam {
	result := make([]openai.ChatCompletionToolUnionParam, 0, len(tools))

	for _, tool := range tools {
		if tool.Type != "function" {
			continue
		}
		paramsJSON, _ := json.Marshal(tool.Function.Parameters)
		var parametersMap map[string]any
		_ = json.Unmarshal(paramsJSON, &parametersMap)

		result = append(result, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        tool.Function.Name,
			Description: openai.String(tool.Function.Description),
			Parameters:  openai.FunctionParameters(parametersMap),
		}))
	}

	return result
}

func convertToOpenAIToolChoice(toolChoice any) openai.ChatCompletionToolChoiceOptionUnionParam {
	switch choice := toolChoice.(type) {
	case string:
		switch choice {
		case llm.ToolChoiceNone, llm.ToolChoiceRequired:
			return openai.ChatCompletionToolChoiceOptionUnionParam{
				OfAuto: openai.String(choice),
			}
		}
	case llm.ToolChoiceFunction:
		return openai.ChatCompletionToolChoiceOptionUnionParam{
			OfFunctionToolChoice: &openai.ChatCompletionNamedToolChoiceParam{
				Function: openai.ChatCompletionNamedToolChoiceFunctionParam{
					Name: choice.Name,
				},
			},
		}
	}

	return openai.ChatCompletionToolChoiceOptionUnionParam{
		OfAuto: openai.String(llm.ToolChoiceAuto),
	}
}

func convertFromOpenAIResponse(completion *openai.ChatCompletion) (llm.Response, error) {
	if len(completion.Choices) == 0 {
		return llm.Response{}, errx.New("no choices in response", errx.TypeExternal)
	}

	choice := completion.Choices[0]

	message := llm.Message{
		Role:    llm.RoleAssistant,
		Content: choice.Message.Content,
	}

	if len(choice.Message.ToolCalls) > 0 {
		toolCalls := make([]llm.ToolCall, 0, len(choice.Message.ToolCalls))
		for _, tc := range choice.Message.ToolCalls {
			toolCalls = append(toolCalls, llm.ToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: llm.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		message.ToolCalls = toolCalls
	}

	usage := llm.Usage{
		PromptTokens:     int(completion.Usage.PromptTokens),
		CompletionTokens: int(completion.Usage.CompletionTokens),
		TotalTokens:      int(completion.Usage.TotalTokens),
	}

	return llm.Response{
		Message: message,
		Usage:   usage,
	}, nil
}
