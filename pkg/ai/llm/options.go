package llm

// ChatOptions contains options for generating chat completions
type ChatOptions struct {
	Model             string   // Model name/identifier
	Temperature       *float32 // Controls randomness; nil leaves the provider default
	Tools             []Tool   // Available tools
	ToolChoice        any      // ToolChoiceAuto/None/Required or ToolChoiceFunction
	ParallelToolCalls *bool    // nil leaves the provider default
	User              string   // Identifier representing end-user
}

// Option is a function type to modify ChatOptions
type Option func(*ChatOptions)

// WithModel sets the model to use
func WithModel(model string) Option {
	return func(o *ChatOptions) {
		o.Model = model
	}
}

// WithTemperature sets the sampling temperature
func WithTemperature(temp float32) Option {
	return func(o *ChatOptions) {
		o.Temperature = &temp
	}
}

// WithTools sets the available tools
func WithTools(tools []Tool) Option {
	return func(o *ChatOptions) {
		o.Tools = tools
	}
}

// WithToolChoice forces a specific tool
func WithToolChoice(toolChoice any) Option {
	return func(o *ChatOptions) {
		o.ToolChoice = toolChoice
	}
}

// WithParallelToolCalls allows or forbids several tool calls in one reply
func WithParallelToolCalls(enabled bool) Option {
	return func(o *ChatOptions) {
		o.ParallelToolCalls = &enabled
	}
}

// WithUser tags the request with the end user it is made for
func WithUser(user string) Option {
	return func(o *ChatOptions) {
		o.User = user
	}
}

// DefaultOptions returns the default options
func DefaultOptions() *ChatOptions {
	return &ChatOptions{}
}

// Apply folds opts over the defaults
func Apply(opts ...Option) *ChatOptions {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}
