package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/break1145/GraphDo/pkg/ai/extract"
	"github.com/break1145/GraphDo/pkg/errx"
	"github.com/break1145/GraphDo/pkg/kernel"
	"github.com/break1145/GraphDo/pkg/logx"
	"github.com/break1145/GraphDo/pkg/memory"
	"github.com/goccy/go-json"
)

// taskDraft is the task shape offered to the model. Deadline stays a string
// so date-only answers can be accepted.
type taskDraft struct {
	Task           string   `json:"task" jsonschema:"description=The task to be completed."`
	TimeToComplete *int     `json:"time_to_complete,omitempty" jsonschema:"description=Estimated time to complete the task (minutes)."`
	Deadline       string   `json:"deadline,omitempty" jsonschema:"description=When the task needs to be completed by (ISO 8601 date or date-time; if applicable)"`
	Solutions      []string `json:"solutions" jsonschema:"description=List of specific actionable solutions (specific ideas or service providers or concrete options relevant to completing the task),minItems=1"`
	Status         string   `json:"status,omitempty" jsonschema:"description=Current status of the task,enum=not started,enum=in progress,enum=done,enum=archived,default=not started"`
	PlannedEdits   []string `json:"planned_edits" jsonschema:"description=Planned changes or improvements to the task written in Chinese such as adding specific vendors or clarifying vague goals,minItems=1"`
}

var todoSchema = extract.SchemaFor("ToDo", "A task in the user's to-do list", &taskDraft{})

func (d taskDraft) toTask() (memory.Task, error) {
	deadline, err := memory.ParseDeadline(d.Deadline)
	if err != nil {
		return memory.Task{}, err
	}
	return memory.Task{
		Task:           d.Task,
		TimeToComplete: d.TimeToComplete,
		Deadline:       deadline,
		Solutions:      d.Solutions,
		Status:         memory.TaskStatus(strings.TrimSpace(d.Status)),
		PlannedEdits:   d.PlannedEdits,
	}, nil
}

// TodoReconciler inserts and updates tasks in one pass
type TodoReconciler struct {
	store     memory.Store
	extractor Extractor
	now       func() time.Time
}

func NewTodoReconciler(store memory.Store, extractor Extractor) *TodoReconciler {
	return &TodoReconciler{store: store, extractor: extractor, now: time.Now}
}

func (r *TodoReconciler) Category() memory.Category { return memory.CategoryTodo }

type taskWrite struct {
	key      string
	value    []byte
	inserted bool
}

func (r *TodoReconciler) Reconcile(ctx context.Context, in Input) (Outcome, error) {
	out := Outcome{Category: memory.CategoryTodo}
	ns := memory.NewNamespace(memory.CategoryTodo, in.UserID)

	items, err := r.store.Search(ctx, ns)
	if err != nil {
		return out, err
	}
	byKey := make(map[string]memory.Task, len(items))
	existing := make([]extract.Existing, 0, len(items))
	for _, it := range items {
		var t memory.Task
		if err := it.Decode(&t); err != nil {
			return out, err
		}
		byKey[it.Key] = t
		existing = append(existing, extract.Existing{Key: it.Key, Value: it.Value})
	}

	res, err := r.extractor.Extract(ctx, extract.Request{
		Schema:        todoSchema,
		Instruction:   buildExtractPrompt(r.now(), in.Hints),
		Messages:      in.Transcript,
		Existing:      existing,
		EnableInserts: true,
		User:          in.UserID.String(),
	})
	if err != nil {
		return out, err
	}
	for _, rj := range res.Rejected {
		out.Rejected = append(out.Rejected, rj.Reason)
	}

	// Validate everything before the first write
	var writes []taskWrite
	for _, resp := range res.Responses {
		w, err := r.prepare(resp, byKey)
		if err != nil {
			out.Rejected = append(out.Rejected, reasonOf(err))
			continue
		}
		writes = append(writes, w)
	}

	if len(writes) == 0 {
		if len(out.Rejected) > 0 {
			return out, ErrRecordsRejected().
				WithDetail("category", memory.CategoryTodo.String()).
				WithDetail("reasons", out.Rejected)
		}
		return out, nil
	}

	for _, w := range writes {
		if err := r.store.Put(ctx, ns, w.key, w.value); err != nil {
			return out, err
		}
		if w.inserted {
			out.Inserted = append(out.Inserted, w.key)
		} else {
			out.Updated = append(out.Updated, w.key)
		}
	}

	logx.WithFields(logx.Fields{
		"user_id":  in.UserID.String(),
		"inserted": len(out.Inserted),
		"updated":  len(out.Updated),
		"rejected": len(out.Rejected),
	}).Info("todo reconciled")

	return out, nil
}

func (r *TodoReconciler) prepare(resp extract.Response, byKey map[string]memory.Task) (taskWrite, error) {
	var draft taskDraft
	if err := json.Unmarshal(resp.Value, &draft); err != nil {
		return taskWrite{}, errx.Wrap(err, "task document does not match schema", errx.TypeValidation)
	}
	task, err := draft.toTask()
	if err != nil {
		return taskWrite{}, err
	}

	key := resp.Key
	if resp.Inserted {
		key = kernel.NewRecordKey().String()
	} else {
		prev, ok := byKey[key]
		if !ok {
			return taskWrite{}, fmt.Errorf("update names unknown task %q", key)
		}
		if task.Status == "" {
			task.Status = prev.Status
		}
	}

	task.Normalize()
	if err := task.ValidateReconciled(); err != nil {
		return taskWrite{}, err
	}
	task.Key = key

	value, err := memory.Encode(task)
	if err != nil {
		return taskWrite{}, err
	}
	return taskWrite{key: key, value: value, inserted: resp.Inserted}, nil
}
