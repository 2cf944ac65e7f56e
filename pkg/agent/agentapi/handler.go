package agentapi

import (
	"bufio"
	"context"
	"strings"
	"time"

	"github.com/break1145/GraphDo/pkg/agent"
	"github.com/break1145/GraphDo/pkg/errx"
	"github.com/break1145/GraphDo/pkg/kernel"
	"github.com/break1145/GraphDo/pkg/logx"
	"github.com/break1145/GraphDo/pkg/memory"
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
)

// Agent is the turn runner behind the chat endpoints
type Agent interface {
	Run(ctx context.Context, req agent.TurnRequest) (*agent.TurnResult, error)
	RunStream(ctx context.Context, req agent.TurnRequest, emit func(fragment string) error) (*agent.TurnResult, error)
	Todos(ctx context.Context, user kernel.UserID) ([]memory.Task, error)
	Profile(ctx context.Context, user kernel.UserID) (*memory.Profile, error)
	Instructions(ctx context.Context, user kernel.UserID) ([]memory.Instruction, error)
	Forget(ctx context.Context, thread kernel.ThreadID) error
}

type ChatRequest struct {
	UserID   string `json:"user_id"`
	Input    string `json:"input"`
	ThreadID string `json:"thread_id,omitempty"`
}

type ChatResponse struct {
	Response string `json:"response"`
	ThreadID string `json:"thread_id"`
	ClientIP string `json:"client_ip"`
}

const ThreadHeader = "X-Thread-ID"

// DefaultStreamTimeout bounds a streamed turn once the handler has returned
const DefaultStreamTimeout = 5 * time.Minute

type AgentHandlers struct {
	agent         Agent
	streamTimeout time.Duration
}

func NewAgentHandlers(a Agent, streamTimeout time.Duration) *AgentHandlers {
	if streamTimeout <= 0 {
		streamTimeout = DefaultStreamTimeout
	}
	return &AgentHandlers{agent: a, streamTimeout: streamTimeout}
}

func (h *AgentHandlers) RegisterRoutes(router fiber.Router) {
	g := router.Group("/agent")

	g.Post("/chat", h.Chat)
	g.Post("/chat/stream", h.ChatStream)
	g.Get("/todos/:user_id", h.GetTodos)
	g.Get("/profile/:user_id", h.GetProfile)
	g.Get("/instructions/:user_id", h.GetInstructions)
	g.Delete("/threads/:thread_id", h.ForgetThread)
}

func (h *AgentHandlers) parseChat(c *fiber.Ctx) (agent.TurnRequest, error) {
	var req ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return agent.TurnRequest{}, fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	tr := agent.TurnRequest{
		UserID:   kernel.UserID(strings.TrimSpace(req.UserID)),
		ThreadID: kernel.ThreadID(strings.TrimSpace(req.ThreadID)),
		Input:    strings.TrimSpace(req.Input),
	}
	if tr.UserID.IsEmpty() || tr.Input == "" {
		return agent.TurnRequest{}, agent.ErrInvalidInput()
	}
	return tr, nil
}

// chatError renders {error} without internal details
func chatError(c *fiber.Ctx, err error) error {
	if fe, ok := err.(*fiber.Error); ok {
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
	}
	return c.Status(errx.HTTPStatusOf(err)).JSON(fiber.Map{"error": errx.PublicMessage(err)})
}

func (h *AgentHandlers) Chat(c *fiber.Ctx) error {
	req, err := h.parseChat(c)
	if err != nil {
		return chatError(c, err)
	}

	res, err := h.agent.Run(c.UserContext(), req)
	if err != nil {
		logx.WithFields(logx.Fields{
			"user_id":    req.UserID.String(),
			"request_id": c.Get("X-Request-ID"),
		}).Errorf("chat turn failed: %v", err)
		return chatError(c, err)
	}

	c.Set(ThreadHeader, res.ThreadID.String())
	return c.JSON(ChatResponse{
		Response: res.Reply,
		ThreadID: res.ThreadID.String(),
		ClientIP: c.IP(),
	})
}

// ChatStream sends the reply as server-sent events, one fragment per event
func (h *AgentHandlers) ChatStream(c *fiber.Ctx) error {
	req, err := h.parseChat(c)
	if err != nil {
		return chatError(c, err)
	}
	if req.ThreadID.IsEmpty() {
		req.ThreadID = kernel.NewThreadID()
	}
	requestID := c.Get("X-Request-ID")

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")
	c.Set(ThreadHeader, req.ThreadID.String())

	// The fiber context is released when this handler returns; the writer
	// below only uses values captured here.
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		ctx, cancel := context.WithTimeout(context.Background(), h.streamTimeout)
		defer cancel()

		emit := func(fragment string) error {
			if err := writeEvent(w, fiber.Map{"response": fragment}); err != nil {
				return err
			}
			return w.Flush()
		}

		if _, err := h.agent.RunStream(ctx, req, emit); err != nil {
			logx.WithFields(logx.Fields{
				"user_id":    req.UserID.String(),
				"request_id": requestID,
			}).Errorf("streamed chat turn failed: %v", err)
			if werr := writeEvent(w, fiber.Map{"error": errx.PublicMessage(err)}); werr == nil {
				_ = w.Flush()
			}
		}
	}))
	return nil
}

func writeEvent(w *bufio.Writer, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := w.WriteString("data: "); err != nil {
		return err
	}
	if _, err := w.Write(b); err != nil {
		return err
	}
	_, err = w.WriteString("\n\n")
	return err
}

func userParam(c *fiber.Ctx) (kernel.UserID, error) {
	user := kernel.UserID(strings.TrimSpace(c.Params("user_id")))
	if user.IsEmpty() {
		return "", memory.ErrInvalidRequest().WithDetail("field", "user_id")
	}
	return user, nil
}

func (h *AgentHandlers) GetTodos(c *fiber.Ctx) error {
	user, err := userParam(c)
	if err != nil {
		return err
	}
	todos, err := h.agent.Todos(c.UserContext(), user)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"response": todos})
}

func (h *AgentHandlers) GetProfile(c *fiber.Ctx) error {
	user, err := userParam(c)
	if err != nil {
		return err
	}
	profile, err := h.agent.Profile(c.UserContext(), user)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"response": profile})
}

func (h *AgentHandlers) GetInstructions(c *fiber.Ctx) error {
	user, err := userParam(c)
	if err != nil {
		return err
	}
	ins, err := h.agent.Instructions(c.UserContext(), user)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"response": ins})
}

func (h *AgentHandlers) ForgetThread(c *fiber.Ctx) error {
	thread := kernel.ThreadID(strings.TrimSpace(c.Params("thread_id")))
	if err := h.agent.Forget(c.UserContext(), thread); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "thread_id": thread.String()})
}
