// Package extract reconciles structured records against a conversation
// using tool calling. The schema is offered as an insert tool; existing
// records can be replaced through the UpdateDoc tool.
package extract

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/break1145/GraphDo/pkg/ai/llm"
	"github.com/break1145/GraphDo/pkg/errx"
	"github.com/break1145/GraphDo/pkg/metrics"
	"github.com/goccy/go-json"
	"github.com/invopop/jsonschema"
	"github.com/kaptinlin/jsonrepair"
)

// UpdateToolName is the tool used to rewrite an existing record
const UpdateToolName = "UpdateDoc"

// Schema describes the record type offered to the model
type Schema struct {
	Name        string
	Description string
	Parameters  any
}

// SchemaFor reflects a JSON schema from a Go value
func SchemaFor(name, description string, v any) Schema {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	s := r.Reflect(v)
	s.Version = ""
	return Schema{Name: name, Description: description, Parameters: s}
}

// Existing is a stored record the model may update
type Existing struct {
	Key   string
	Value json.RawMessage
}

type Request struct {
	Schema      Schema
	Instruction string
	Messages    []llm.Message
	Existing    []Existing
	// EnableInserts offers the insert tool even when records exist
	EnableInserts bool
	// User is forwarded to the provider for attribution
	User string
}

// Response is one record produced by the model
type Response struct {
	// Key is the existing record key for updates, empty for inserts
	Key        string
	Value      json.RawMessage
	Inserted   bool
	ToolCallID string
}

// Rejection is a tool call that could not be turned into a record
type Rejection struct {
	ToolCallID string
	Reason     string
}

type Result struct {
	Responses []Response
	Rejected  []Rejection
	Message   llm.Message
}

var ErrRegistry = errx.NewRegistry("EXTRACT")

var (
	CodeInvalidRequest = ErrRegistry.Register("INVALID_REQUEST", errx.TypeValidation, http.StatusBadRequest, "Invalid extraction request")
	CodeModelFailed    = ErrRegistry.Register("MODEL_FAILED", errx.TypeExternal, http.StatusBadGateway, "Extraction model call failed")
)

func ErrInvalidRequest() *errx.Error {
	return ErrRegistry.New(CodeInvalidRequest)
}

func ErrModelFailed() *errx.Error {
	return ErrRegistry.New(CodeModelFailed)
}

// Extractor runs extraction requests against a model
type Extractor struct {
	llm     llm.LLM
	options []llm.Option
	now     func() time.Time
}

func NewExtractor(model llm.LLM, opts ...llm.Option) *Extractor {
	return &Extractor{llm: model, options: opts, now: time.Now}
}

func (e *Extractor) Extract(ctx context.Context, req Request) (*Result, error) {
	if req.Schema.Name == "" || req.Schema.Name == UpdateToolName {
		return nil, ErrInvalidRequest().WithDetail("schema", req.Schema.Name)
	}

	tools := e.tools(req)
	opts := append([]llm.Option{}, e.options...)
	opts = append(opts, llm.WithTools(tools), llm.WithParallelToolCalls(true))
	if req.User != "" {
		opts = append(opts, llm.WithUser(req.User))
	}
	if len(tools) == 1 {
		opts = append(opts, llm.WithToolChoice(llm.ToolChoiceFunction{Name: tools[0].Function.Name}))
	} else {
		opts = append(opts, llm.WithToolChoice(llm.ToolChoiceRequired))
	}

	start := e.now()
	resp, err := e.llm.Chat(ctx, e.messages(req), opts...)
	metrics.ObserveLLM("extract", start, err)
	if err != nil {
		return nil, ErrModelFailed().WithError(err).WithDetail("schema", req.Schema.Name)
	}

	return parse(req, resp.Message), nil
}

func (e *Extractor) tools(req Request) []llm.Tool {
	var tools []llm.Tool
	if req.EnableInserts || len(req.Existing) == 0 {
		tools = append(tools, llm.NewFunctionTool(req.Schema.Name, req.Schema.Description, req.Schema.Parameters))
	}
	if len(req.Existing) > 0 {
		keys := make([]string, len(req.Existing))
		for i, ex := range req.Existing {
			keys[i] = ex.Key
		}
		tools = append(tools, llm.NewFunctionTool(
			UpdateToolName,
			fmt.Sprintf("Replace an existing %s document. Send the complete new document, not a diff.", req.Schema.Name),
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"json_doc_id": map[string]any{
						"type":        "string",
						"enum":        keys,
						"description": "The id of the existing document to replace",
					},
					"doc": req.Schema.Parameters,
				},
				"required": []string{"json_doc_id", "doc"},
			},
		))
	}
	return tools
}

func (e *Extractor) messages(req Request) []llm.Message {
	msgs := make([]llm.Message, 0, len(req.Messages)+2)
	if req.Instruction != "" {
		msgs = append(msgs, llm.NewSystemMessage(req.Instruction))
	}
	msgs = append(msgs, req.Messages...)

	if len(req.Existing) > 0 {
		var b strings.Builder
		b.WriteString("Existing ")
		b.WriteString(req.Schema.Name)
		b.WriteString(" documents:\n<existing>\n")
		for _, ex := range req.Existing {
			fmt.Fprintf(&b, "{\"json_doc_id\": %q, \"doc\": %s}\n", ex.Key, string(ex.Value))
		}
		b.WriteString("</existing>\n")
		if req.EnableInserts {
			fmt.Fprintf(&b, "Call %s with the full updated document for every existing document the conversation changes. "+
				"Call %s only for information that does not belong to any existing document. "+
				"Carry forward every field the conversation does not change.", UpdateToolName, req.Schema.Name)
		} else {
			fmt.Fprintf(&b, "Call %s with the full updated document. "+
				"Carry forward every field the conversation does not change.", UpdateToolName)
		}
		msgs = append(msgs, llm.NewUserMessage(b.String()))
	}
	return msgs
}

type updateArgs struct {
	DocID string          `json:"json_doc_id"`
	Doc   json.RawMessage `json:"doc"`
}

func parse(req Request, msg llm.Message) *Result {
	res := &Result{Message: msg}

	for _, tc := range msg.ToolCalls {
		switch tc.Function.Name {
		case req.Schema.Name:
			doc, err := decodeObject(tc.Function.Arguments)
			if err != nil {
				res.Rejected = append(res.Rejected, Rejection{ToolCallID: tc.ID, Reason: err.Error()})
				continue
			}
			res.Responses = append(res.Responses, Response{
				Value:      doc,
				Inserted:   true,
				ToolCallID: tc.ID,
			})

		case UpdateToolName:
			raw, err := decodeObject(tc.Function.Arguments)
			if err != nil {
				res.Rejected = append(res.Rejected, Rejection{ToolCallID: tc.ID, Reason: err.Error()})
				continue
			}
			var args updateArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				res.Rejected = append(res.Rejected, Rejection{ToolCallID: tc.ID, Reason: err.Error()})
				continue
			}
			if args.DocID == "" {
				res.Rejected = append(res.Rejected, Rejection{ToolCallID: tc.ID, Reason: "json_doc_id is missing"})
				continue
			}
			doc, err := decodeDoc(args.Doc)
			if err != nil {
				res.Rejected = append(res.Rejected, Rejection{ToolCallID: tc.ID, Reason: err.Error()})
				continue
			}
			res.Responses = append(res.Responses, Response{
				Key:        args.DocID,
				Value:      doc,
				ToolCallID: tc.ID,
			})

		default:
			res.Rejected = append(res.Rejected, Rejection{
				ToolCallID: tc.ID,
				Reason:     "unknown tool " + tc.Function.Name,
			})
		}
	}
	return res
}

// decodeObject parses tool arguments into a JSON object, repairing them when needed
func decodeObject(args string) (json.RawMessage, error) {
	args = strings.TrimSpace(args)
	if args == "" {
		return nil, fmt.Errorf("empty arguments")
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(args), &obj); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(args)
		if repairErr != nil {
			return nil, fmt.Errorf("invalid arguments: %w (repair failed: %v)", err, repairErr)
		}
		obj = nil
		if err := json.Unmarshal([]byte(repaired), &obj); err != nil {
			return nil, fmt.Errorf("invalid arguments after repair: %w", err)
		}
		args = repaired
	}
	if obj == nil {
		return nil, fmt.Errorf("arguments are not an object")
	}
	return json.RawMessage(args), nil
}

// decodeDoc accepts the doc either as an object or as a string holding one
func decodeDoc(raw json.RawMessage) (json.RawMessage, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("doc is missing")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return decodeObject(s)
	}
	return decodeObject(string(raw))
}
