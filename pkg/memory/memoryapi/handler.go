package memoryapi

import (
	"github.com/break1145/GraphDo/pkg/memory"
	"github.com/break1145/GraphDo/pkg/memory/memorysrv"
	"github.com/gofiber/fiber/v2"
)

type MemoryHandlers struct {
	service *memorysrv.MemoryService
}

func NewMemoryHandlers(service *memorysrv.MemoryService) *MemoryHandlers {
	return &MemoryHandlers{service: service}
}

func (h *MemoryHandlers) RegisterRoutes(router fiber.Router) {
	api := router.Group("/api")

	ins := api.Group("/instructions")
	ins.Get("/:user_id", h.ListInstructions)
	ins.Post("/", h.CreateInstruction)
	ins.Put("/:user_id/:key", h.UpdateInstruction)
	ins.Delete("/:user_id/:key", h.DeleteInstruction)

	profile := api.Group("/profile")
	profile.Get("/:user_id", h.GetProfile)
	profile.Post("/", h.CreateProfile)
	profile.Put("/:user_id", h.UpdateProfile)

	todos := api.Group("/todos")
	todos.Get("/:user_id", h.ListTodos)
	todos.Post("/", h.CreateTodo)
	todos.Put("/:user_id/:key", h.UpdateTodo)
	todos.Delete("/:user_id/:key", h.DeleteTodo)
}

func ok(c *fiber.Ctx, response any) error {
	return c.JSON(fiber.Map{"success": true, "response": response})
}

func done(c *fiber.Ctx, message string) error {
	return c.JSON(fiber.Map{"success": true, "message": message})
}

func badBody(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
}

// ============================================================================
// Instructions
// ============================================================================

func (h *MemoryHandlers) ListInstructions(c *fiber.Ctx) error {
	user, err := memory.RequireUser(c.Params("user_id"))
	if err != nil {
		return err
	}
	list, err := h.service.ListInstructions(c.UserContext(), user)
	if err != nil {
		return err
	}
	return ok(c, list)
}

func (h *MemoryHandlers) CreateInstruction(c *fiber.Ctx) error {
	var req memory.InstructionCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	ins, err := h.service.CreateInstruction(c.UserContext(), req)
	if err != nil {
		return err
	}
	c.Set("X-Record-Key", ins.Key)
	return done(c, "指令创建成功")
}

func (h *MemoryHandlers) UpdateInstruction(c *fiber.Ctx) error {
	user, err := memory.RequireUser(c.Params("user_id"))
	if err != nil {
		return err
	}
	var req memory.InstructionUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	if _, err := h.service.UpdateInstruction(c.UserContext(), user, c.Params("key"), req); err != nil {
		return err
	}
	return done(c, "指令更新成功")
}

func (h *MemoryHandlers) DeleteInstruction(c *fiber.Ctx) error {
	user, err := memory.RequireUser(c.Params("user_id"))
	if err != nil {
		return err
	}
	if err := h.service.DeleteInstruction(c.UserContext(), user, c.Params("key")); err != nil {
		return err
	}
	return done(c, "指令删除成功")
}

// ============================================================================
// Profile
// ============================================================================

func (h *MemoryHandlers) GetProfile(c *fiber.Ctx) error {
	user, err := memory.RequireUser(c.Params("user_id"))
	if err != nil {
		return err
	}
	p, err := h.service.GetProfile(c.UserContext(), user)
	if err != nil {
		return err
	}
	return ok(c, p)
}

func (h *MemoryHandlers) CreateProfile(c *fiber.Ctx) error {
	var req memory.ProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	if _, err := h.service.CreateProfile(c.UserContext(), req); err != nil {
		return err
	}
	return done(c, "用户档案创建成功")
}

func (h *MemoryHandlers) UpdateProfile(c *fiber.Ctx) error {
	user, err := memory.RequireUser(c.Params("user_id"))
	if err != nil {
		return err
	}
	var req memory.ProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	if _, err := h.service.UpdateProfile(c.UserContext(), user, req); err != nil {
		return err
	}
	return done(c, "用户档案更新成功")
}

// ============================================================================
// Todos
// ============================================================================

func (h *MemoryHandlers) ListTodos(c *fiber.Ctx) error {
	user, err := memory.RequireUser(c.Params("user_id"))
	if err != nil {
		return err
	}
	list, err := h.service.ListTodos(c.UserContext(), user)
	if err != nil {
		return err
	}
	return ok(c, list)
}

func (h *MemoryHandlers) CreateTodo(c *fiber.Ctx) error {
	var req memory.TodoRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	t, err := h.service.CreateTodo(c.UserContext(), req)
	if err != nil {
		return err
	}
	c.Set("X-Record-Key", t.Key)
	return done(c, "待办事项创建成功")
}

func (h *MemoryHandlers) UpdateTodo(c *fiber.Ctx) error {
	user, err := memory.RequireUser(c.Params("user_id"))
	if err != nil {
		return err
	}
	var req memory.TodoRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	if _, err := h.service.UpdateTodo(c.UserContext(), user, c.Params("key"), req); err != nil {
		return err
	}
	return done(c, "待办事项更新成功")
}

func (h *MemoryHandlers) DeleteTodo(c *fiber.Ctx) error {
	user, err := memory.RequireUser(c.Params("user_id"))
	if err != nil {
		return err
	}
	if err := h.service.DeleteTodo(c.UserContext(), user, c.Params("key")); err != nil {
		return err
	}
	return done(c, "待办事项删除成功")
}
