package memory

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/break1145/GraphDo/pkg/errx"
	"github.com/break1145/GraphDo/pkg/kernel"
	"github.com/goccy/go-json"
)

// ============================================================================
// Category & Namespace
// ============================================================================

// Category partitions long-term memory
type Category string

const (
	CategoryProfile      Category = "profile"
	CategoryTodo         Category = "todo"
	CategoryInstructions Category = "instructions"
)

// Categories lists every category in routing order
var Categories = []Category{CategoryProfile, CategoryTodo, CategoryInstructions}

// ParseCategory maps a routing tag to a Category. "user" is the tag the
// classifier tool uses for profile updates.
func ParseCategory(tag string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "profile", "user":
		return CategoryProfile, nil
	case "todo":
		return CategoryTodo, nil
	case "instructions":
		return CategoryInstructions, nil
	default:
		return "", ErrUnknownCategory().WithDetail("tag", tag)
	}
}

func (c Category) String() string { return string(c) }

// Namespace addresses one (category, user) slice of the store
type Namespace struct {
	Category Category
	UserID   kernel.UserID
}

func NewNamespace(category Category, userID kernel.UserID) Namespace {
	return Namespace{Category: category, UserID: userID}
}

// Prefix renders the persisted namespace prefix "{category}.{user_id}"
func (n Namespace) Prefix() string {
	return string(n.Category) + "." + n.UserID.String()
}

// ============================================================================
// Item
// ============================================================================

// Item is one stored record document
type Item struct {
	Namespace Namespace       `json:"-"`
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Decode unmarshals the document into v
func (i Item) Decode(v any) error {
	if err := json.Unmarshal(i.Value, v); err != nil {
		return errx.Wrap(err, "failed to decode record", errx.TypeInternal).
			WithDetail("prefix", i.Namespace.Prefix()).
			WithDetail("key", i.Key)
	}
	return nil
}

// Encode serializes a record document
func Encode(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errx.Wrap(err, "failed to encode record", errx.TypeInternal)
	}
	return b, nil
}

// ============================================================================
// Records
// ============================================================================

// Profile is the singleton user profile. Nil fields mean unknown.
type Profile struct {
	Name        *string  `json:"name,omitempty" jsonschema:"description=The user's name"`
	Location    *string  `json:"location,omitempty" jsonschema:"description=The user's location"`
	Job         *string  `json:"job,omitempty" jsonschema:"description=The user's job"`
	Connections []string `json:"connections" jsonschema:"description=Personal connection of the user such as family members or friends or coworkers"`
	Interests   []string `json:"interests" jsonschema:"description=Interests that the user has"`
}

// Normalize trims string fields and replaces nil lists with empty ones
func (p *Profile) Normalize() {
	p.Name = trimPtr(p.Name)
	p.Location = trimPtr(p.Location)
	p.Job = trimPtr(p.Job)
	p.Connections = compact(p.Connections)
	p.Interests = compact(p.Interests)
}

type TaskStatus string

const (
	TaskStatusNotStarted TaskStatus = "not started"
	TaskStatusInProgress TaskStatus = "in progress"
	TaskStatusDone       TaskStatus = "done"
	TaskStatusArchived   TaskStatus = "archived"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusNotStarted, TaskStatusInProgress, TaskStatusDone, TaskStatusArchived:
		return true
	}
	return false
}

// Task is one to-do entry
type Task struct {
	Key            string     `json:"key,omitempty" jsonschema:"-"`
	Task           string     `json:"task" jsonschema:"description=The task to be completed."`
	TimeToComplete *int       `json:"time_to_complete,omitempty" jsonschema:"description=Estimated time to complete the task (minutes)."`
	Deadline       *time.Time `json:"deadline,omitempty" jsonschema:"description=When the task needs to be completed by (if applicable)"`
	Solutions      []string   `json:"solutions" jsonschema:"description=List of specific actionable solutions (specific ideas or service providers or concrete options relevant to completing the task),minItems=1"`
	Status         TaskStatus `json:"status" jsonschema:"description=Current status of the task,enum=not started,enum=in progress,enum=done,enum=archived,default=not started"`
	PlannedEdits   []string   `json:"planned_edits" jsonschema:"description=Planned changes or improvements to the task such as adding specific vendors or clarifying vague goals."`
}

// Normalize trims fields and applies the default status
func (t *Task) Normalize() {
	t.Task = strings.TrimSpace(t.Task)
	t.Solutions = compact(t.Solutions)
	t.PlannedEdits = compact(t.PlannedEdits)
	if t.Status == "" {
		t.Status = TaskStatusNotStarted
	}
}

// Validate checks the shape every stored task must have
func (t Task) Validate() error {
	if strings.TrimSpace(t.Task) == "" {
		return ErrInvalidRecord().WithDetail("field", "task").WithDetail("reason", "must not be empty")
	}
	if t.TimeToComplete != nil && *t.TimeToComplete < 0 {
		return ErrInvalidRecord().WithDetail("field", "time_to_complete").WithDetail("reason", "must not be negative")
	}
	if !t.Status.Valid() {
		return ErrInvalidRecord().WithDetail("field", "status").WithDetail("reason", "unknown status "+string(t.Status))
	}
	return nil
}

// ValidateReconciled is Validate plus the rules for writes produced from a conversation
func (t Task) ValidateReconciled() error {
	if err := t.Validate(); err != nil {
		return err
	}
	if len(compact(t.Solutions)) == 0 {
		return ErrInvalidRecord().WithDetail("field", "solutions").WithDetail("reason", "at least one solution is required")
	}
	if len(compact(t.PlannedEdits)) == 0 {
		return ErrInvalidRecord().WithDetail("field", "planned_edits").WithDetail("reason", "a rationale for the change is required")
	}
	return nil
}

var deadlineLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseDeadline accepts RFC 3339 or a plain ISO date(-time), read as UTC.
// A blank string is no deadline.
func ParseDeadline(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range deadlineLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return &t, nil
		}
	}
	return nil, ErrInvalidRecord().
		WithDetail("field", "deadline").
		WithDetail("reason", fmt.Sprintf("%q is not an ISO 8601 date", s))
}

// Instruction is one appended preference delta
type Instruction struct {
	Key      string `json:"key,omitempty"`
	Language string `json:"language"`
	Content  string `json:"content"`
}

func (i Instruction) Validate() error {
	if strings.TrimSpace(i.Language) == "" {
		return ErrInvalidRecord().WithDetail("field", "language").WithDetail("reason", "must not be empty")
	}
	if strings.TrimSpace(i.Content) == "" {
		return ErrInvalidRecord().WithDetail("field", "content").WithDetail("reason", "must not be empty")
	}
	return nil
}

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func compact(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ============================================================================
// Errors
// ============================================================================

var ErrRegistry = errx.NewRegistry("MEMORY")

var (
	CodeRecordNotFound   = ErrRegistry.Register("NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Record not found")
	CodeInvalidRecord    = ErrRegistry.Register("INVALID_RECORD", errx.TypeValidation, http.StatusBadRequest, "Record failed validation")
	CodeUnknownCategory  = ErrRegistry.Register("UNKNOWN_CATEGORY", errx.TypeValidation, http.StatusBadRequest, "Unknown memory category")
	CodeStoreUnavailable = ErrRegistry.Register("STORE_UNAVAILABLE", errx.TypeUnavailable, http.StatusServiceUnavailable, "Record store unavailable")
	CodeInvalidRequest   = ErrRegistry.Register("INVALID_REQUEST", errx.TypeValidation, http.StatusBadRequest, "Invalid request")
	CodeProfileNotFound  = ErrRegistry.Register("PROFILE_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Profile does not exist")
)

func ErrRecordNotFound() *errx.Error {
	return ErrRegistry.New(CodeRecordNotFound)
}

func ErrInvalidRecord() *errx.Error {
	return ErrRegistry.New(CodeInvalidRecord)
}

func ErrUnknownCategory() *errx.Error {
	return ErrRegistry.New(CodeUnknownCategory)
}

func ErrStoreUnavailable() *errx.Error {
	return ErrRegistry.New(CodeStoreUnavailable)
}

func ErrInvalidRequest() *errx.Error {
	return ErrRegistry.New(CodeInvalidRequest)
}

func ErrProfileNotFound() *errx.Error {
	return ErrRegistry.New(CodeProfileNotFound)
}
