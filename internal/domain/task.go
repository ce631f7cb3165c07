package domain

import "time"

// Task represents a single todo item owned by a user.
type Task struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	Completed   bool      `json:"is_completed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Clone returns a deep copy so snapshots never share the description pointer.
func (t Task) Clone() Task {
	if t.Description != nil {
		d := *t.Description
		t.Description = &d
	}
	return t
}

// TaskPatch carries a partial task update. Nil fields are left untouched.
type TaskPatch struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Completed   *bool   `json:"is_completed,omitempty"`
}

// ApplyTo returns a copy of task with the patch applied.
func (p TaskPatch) ApplyTo(task Task) Task {
	out := task.Clone()
	if p.Title != nil {
		out.Title = *p.Title
	}
	if p.Description != nil {
		d := *p.Description
		out.Description = &d
	}
	if p.Completed != nil {
		out.Completed = *p.Completed
	}
	return out
}

// Empty reports whether the patch changes nothing.
func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Completed == nil
}
