package memory

import (
	"strings"

	"github.com/break1145/GraphDo/pkg/kernel"
)

const blankReason = "不能为空或仅包含空格"

// RequireText trims v and rejects a blank value for field
func RequireText(field, v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", ErrInvalidRequest().WithDetail("field", field).WithDetail("reason", blankReason)
	}
	return v, nil
}

// RequireUser trims a user id taken from a path or flag
func RequireUser(v string) (kernel.UserID, error) {
	s, err := RequireText("user_id", v)
	if err != nil {
		return "", err
	}
	return kernel.UserID(s), nil
}

type InstructionCreateRequest struct {
	UserID   string `json:"user_id"`
	Language string `json:"language"`
	Content  string `json:"content"`
}

func (r *InstructionCreateRequest) Normalize() error {
	var err error
	if r.UserID, err = RequireText("user_id", r.UserID); err != nil {
		return err
	}
	if r.Language, err = RequireText("language", r.Language); err != nil {
		return err
	}
	r.Content, err = RequireText("content", r.Content)
	return err
}

type InstructionUpdateRequest struct {
	Language string `json:"language"`
	Content  string `json:"content"`
}

func (r *InstructionUpdateRequest) Normalize() error {
	var err error
	if r.Language, err = RequireText("language", r.Language); err != nil {
		return err
	}
	r.Content, err = RequireText("content", r.Content)
	return err
}

// ProfileRequest creates or replaces a profile. UserID is ignored on update.
type ProfileRequest struct {
	UserID      string   `json:"user_id"`
	Name        *string  `json:"name,omitempty"`
	Location    *string  `json:"location,omitempty"`
	Job         *string  `json:"job,omitempty"`
	Connections []string `json:"connections"`
	Interests   []string `json:"interests"`
}

func (r ProfileRequest) Profile() Profile {
	p := Profile{
		Name:        r.Name,
		Location:    r.Location,
		Job:         r.Job,
		Connections: r.Connections,
		Interests:   r.Interests,
	}
	p.Normalize()
	return p
}

// TodoRequest creates or replaces a task. UserID is ignored on update.
type TodoRequest struct {
	UserID         string   `json:"user_id"`
	Task           string   `json:"task"`
	TimeToComplete *int     `json:"time_to_complete,omitempty"`
	Deadline       *string  `json:"deadline,omitempty"`
	Solutions      []string `json:"solutions"`
	Status         string   `json:"status"`
	PlannedEdits   []string `json:"planned_edits"`
}

// ToTask builds the stored task. Only the request shape is checked here;
// the solution and rationale rules apply to conversational writes.
func (r TodoRequest) ToTask(key string) (Task, error) {
	name, err := RequireText("task", r.Task)
	if err != nil {
		return Task{}, err
	}
	t := Task{
		Key:            key,
		Task:           name,
		TimeToComplete: r.TimeToComplete,
		Solutions:      r.Solutions,
		Status:         TaskStatus(strings.TrimSpace(r.Status)),
		PlannedEdits:   r.PlannedEdits,
	}
	if r.Deadline != nil {
		if t.Deadline, err = ParseDeadline(*r.Deadline); err != nil {
			return Task{}, err
		}
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return Task{}, err
	}
	return t, nil
}
