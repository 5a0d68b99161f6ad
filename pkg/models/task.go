package models

import "time"

type Status string

const (
	StatusBacklog    Status = "backlog"
	StatusTodo       Status = "todo"
	StatusInProgress Status = "inprogress"
	StatusTest       Status = "test"
	StatusComplete   Status = "complete"
	StatusDone       Status = "done"
)

func (s Status) Valid() bool {
	switch s {
	case StatusBacklog, StatusTodo, StatusInProgress, StatusTest, StatusComplete, StatusDone:
		return true
	}
	return false
}

// Completed reports whether the status counts as finished for the
// purposes of the completedAt stamp.
func (s Status) Completed() bool {
	return s == StatusComplete || s == StatusDone
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// UserRef is a denormalized snapshot of the acting user, not a live
// reference. It is captured at write time and travels with the record.
type UserRef struct {
	Name  string `json:"name"`
	Image string `json:"image"`
}

type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      Status     `json:"status"`
	Priority    Priority   `json:"priority"`
	DueDate     *time.Time `json:"dueDate"`
	Category    string     `json:"category"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt"`
	DeletedAt   *time.Time `json:"deletedAt"`
	CreatedBy   *UserRef   `json:"createdBy,omitempty"`
	UpdatedBy   *UserRef   `json:"updatedBy,omitempty"`
}

func (t *Task) Deleted() bool {
	return t.DeletedAt != nil
}
