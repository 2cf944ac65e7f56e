package agent

import (
	"bytes"
	"context"
	"strings"

	"github.com/break1145/GraphDo/pkg/kernel"
	"github.com/break1145/GraphDo/pkg/logx"
	"github.com/break1145/GraphDo/pkg/memory"
	"github.com/goccy/go-json"
)

// Memory is the rendered long-term memory handed to the classifier
type Memory struct {
	Profile      string
	Todos        string
	Instructions string
}

// Renderer reads a user's three categories and serializes them as text.
// Read failures render as empty memory.
type Renderer struct {
	store memory.Store
}

func NewRenderer(store memory.Store) *Renderer {
	return &Renderer{store: store}
}

func (r *Renderer) Render(ctx context.Context, user kernel.UserID) Memory {
	return Memory{
		Profile:      r.profile(ctx, user),
		Todos:        r.lines(ctx, memory.NewNamespace(memory.CategoryTodo, user)),
		Instructions: r.lines(ctx, memory.NewNamespace(memory.CategoryInstructions, user)),
	}
}

func (r *Renderer) search(ctx context.Context, ns memory.Namespace) []memory.Item {
	items, err := r.store.Search(ctx, ns)
	if err != nil {
		logx.WithFields(logx.Fields{
			"namespace": ns.Prefix(),
			"error":     err.Error(),
		}).Warnf("memory read failed, rendering as empty")
		return nil
	}
	return items
}

func (r *Renderer) profile(ctx context.Context, user kernel.UserID) string {
	items := r.search(ctx, memory.NewNamespace(memory.CategoryProfile, user))
	if len(items) == 0 {
		return ""
	}
	return compactJSON(items[0].Value)
}

// lines renders one document per line in storage order
func (r *Renderer) lines(ctx context.Context, ns memory.Namespace) string {
	items := r.search(ctx, ns)
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, compactJSON(it.Value))
	}
	return strings.Join(out, "\n")
}

func compactJSON(raw []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(bytes.TrimSpace(raw))
	}
	return buf.String()
}
