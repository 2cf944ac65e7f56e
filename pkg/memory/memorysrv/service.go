package memorysrv

import (
	"context"

	"github.com/break1145/GraphDo/pkg/kernel"
	"github.com/break1145/GraphDo/pkg/logx"
	"github.com/break1145/GraphDo/pkg/memory"
)

// MemoryService is direct record management. Writes here bypass the
// conversation and only check request shape.
type MemoryService struct {
	store memory.Store
}

func NewMemoryService(store memory.Store) *MemoryService {
	return &MemoryService{store: store}
}

// ============================================================================
// Instructions
// ============================================================================

func (s *MemoryService) ListInstructions(ctx context.Context, user kernel.UserID) ([]memory.Instruction, error) {
	items, err := s.store.Search(ctx, memory.NewNamespace(memory.CategoryInstructions, user))
	if err != nil {
		return nil, err
	}
	out := make([]memory.Instruction, 0, len(items))
	for _, item := range items {
		var ins memory.Instruction
		if err := item.Decode(&ins); err != nil {
			return nil, err
		}
		ins.Key = item.Key
		out = append(out, ins)
	}
	return out, nil
}

func (s *MemoryService) CreateInstruction(ctx context.Context, req memory.InstructionCreateRequest) (*memory.Instruction, error) {
	if err := req.Normalize(); err != nil {
		return nil, err
	}
	ins := memory.Instruction{
		Key:      kernel.NewRecordKey().String(),
		Language: req.Language,
		Content:  req.Content,
	}
	ns := memory.NewNamespace(memory.CategoryInstructions, kernel.UserID(req.UserID))
	if err := s.put(ctx, ns, ins.Key, ins); err != nil {
		return nil, err
	}
	return &ins, nil
}

func (s *MemoryService) UpdateInstruction(ctx context.Context, user kernel.UserID, key string, req memory.InstructionUpdateRequest) (*memory.Instruction, error) {
	key, err := memory.RequireText("key", key)
	if err != nil {
		return nil, err
	}
	if err := req.Normalize(); err != nil {
		return nil, err
	}
	ns := memory.NewNamespace(memory.CategoryInstructions, user)
	if _, err := s.store.Get(ctx, ns, key); err != nil {
		return nil, err
	}
	ins := memory.Instruction{Key: key, Language: req.Language, Content: req.Content}
	if err := s.put(ctx, ns, key, ins); err != nil {
		return nil, err
	}
	return &ins, nil
}

func (s *MemoryService) DeleteInstruction(ctx context.Context, user kernel.UserID, key string) error {
	return s.delete(ctx, memory.NewNamespace(memory.CategoryInstructions, user), key)
}

// ============================================================================
// Profile
// ============================================================================

func (s *MemoryService) GetProfile(ctx context.Context, user kernel.UserID) (*memory.Profile, error) {
	item, err := s.profileItem(ctx, user)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, memory.ErrProfileNotFound().WithDetail("user_id", user.String())
	}
	var p memory.Profile
	if err := item.Decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateProfile writes the singleton profile, replacing one that already exists
func (s *MemoryService) CreateProfile(ctx context.Context, req memory.ProfileRequest) (*memory.Profile, error) {
	user, err := memory.RequireUser(req.UserID)
	if err != nil {
		return nil, err
	}
	item, err := s.profileItem(ctx, user)
	if err != nil {
		return nil, err
	}
	key := kernel.NewRecordKey().String()
	if item != nil {
		key = item.Key
	}
	p := req.Profile()
	if err := s.put(ctx, memory.NewNamespace(memory.CategoryProfile, user), key, p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *MemoryService) UpdateProfile(ctx context.Context, user kernel.UserID, req memory.ProfileRequest) (*memory.Profile, error) {
	item, err := s.profileItem(ctx, user)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, memory.ErrProfileNotFound().WithDetail("user_id", user.String())
	}
	p := req.Profile()
	if err := s.put(ctx, memory.NewNamespace(memory.CategoryProfile, user), item.Key, p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *MemoryService) profileItem(ctx context.Context, user kernel.UserID) (*memory.Item, error) {
	items, err := s.store.Search(ctx, memory.NewNamespace(memory.CategoryProfile, user))
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

// ============================================================================
// Todos
// ============================================================================

func (s *MemoryService) ListTodos(ctx context.Context, user kernel.UserID) ([]memory.Task, error) {
	items, err := s.store.Search(ctx, memory.NewNamespace(memory.CategoryTodo, user))
	if err != nil {
		return nil, err
	}
	out := make([]memory.Task, 0, len(items))
	for _, item := range items {
		var t memory.Task
		if err := item.Decode(&t); err != nil {
			return nil, err
		}
		t.Key = item.Key
		out = append(out, t)
	}
	return out, nil
}

func (s *MemoryService) CreateTodo(ctx context.Context, req memory.TodoRequest) (*memory.Task, error) {
	user, err := memory.RequireUser(req.UserID)
	if err != nil {
		return nil, err
	}
	t, err := req.ToTask(kernel.NewRecordKey().String())
	if err != nil {
		return nil, err
	}
	if err := s.put(ctx, memory.NewNamespace(memory.CategoryTodo, user), t.Key, t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *MemoryService) UpdateTodo(ctx context.Context, user kernel.UserID, key string, req memory.TodoRequest) (*memory.Task, error) {
	key, err := memory.RequireText("key", key)
	if err != nil {
		return nil, err
	}
	t, err := req.ToTask(key)
	if err != nil {
		return nil, err
	}
	ns := memory.NewNamespace(memory.CategoryTodo, user)
	if _, err := s.store.Get(ctx, ns, key); err != nil {
		return nil, err
	}
	if err := s.put(ctx, ns, key, t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *MemoryService) DeleteTodo(ctx context.Context, user kernel.UserID, key string) error {
	return s.delete(ctx, memory.NewNamespace(memory.CategoryTodo, user), key)
}

// ============================================================================
// helpers
// ============================================================================

func (s *MemoryService) put(ctx context.Context, ns memory.Namespace, key string, v any) error {
	raw, err := memory.Encode(v)
	if err != nil {
		return err
	}
	if err := s.store.Put(ctx, ns, key, raw); err != nil {
		return err
	}
	logx.WithFields(logx.Fields{
		"prefix": ns.Prefix(),
		"key":    key,
	}).Debugf("record written")
	return nil
}

func (s *MemoryService) delete(ctx context.Context, ns memory.Namespace, key string) error {
	key, err := memory.RequireText("key", key)
	if err != nil {
		return err
	}
	return s.store.Delete(ctx, ns, key)
}
