// Package tasks keeps the signed-in user's task list in sync with the API.
package tasks

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"tasklist/internal/apierr"
	"tasklist/internal/domain"
	"tasklist/internal/optimistic"
	"tasklist/internal/transport"
)

const PathTasks = "/api/tasks"

// Event is a change to the local task view.
type Event = optimistic.Event[int64, domain.Task]

// Board is the local view of the task list. Edits, toggles and deletions are
// shown immediately and reconciled with the server afterwards.
type Board struct {
	doer   transport.Doer
	store  *optimistic.Store[int64, domain.Task]
	coord  *optimistic.Coordinator[int64, domain.Task]
	logger logrus.FieldLogger
}

// NewBoard builds an empty board. doer should be the session controller so
// that a rejected credential signs the user out.
func NewBoard(doer transport.Doer, logger logrus.FieldLogger) *Board {
	if logger == nil {
		logger = logrus.New()
	}
	store := optimistic.NewStore[int64, domain.Task](
		func(t domain.Task) int64 { return t.ID },
		domain.Task.Clone,
	)
	return &Board{
		doer:   doer,
		store:  store,
		coord:  optimistic.NewCoordinator(store, logger),
		logger: logger.WithField("component", "tasks"),
	}
}

// Load replaces the local view with the server's list.
func (b *Board) Load(ctx context.Context) ([]domain.Task, error) {
	list, err := transport.Do[[]domain.Task](ctx, b.doer, http.MethodGet, PathTasks, nil)
	if err != nil {
		return nil, err
	}
	var all []domain.Task
	if list != nil {
		all = *list
	}
	b.store.Replace(all)
	b.logger.WithField("count", len(all)).Debug("tasks loaded")
	return b.store.List(), nil
}

type createRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
}

// Create adds a task. It is not optimistic: the task appears once the server
// has assigned its id.
func (b *Board) Create(ctx context.Context, title string, description *string) (domain.Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return domain.Task{}, apierr.Validation("", map[string]string{"title": "title is required"})
	}
	created, err := transport.Do[domain.Task](ctx, b.doer, http.MethodPost, PathTasks, createRequest{
		Title:       title,
		Description: description,
	})
	if err != nil {
		return domain.Task{}, err
	}
	if created == nil {
		return domain.Task{}, malformed("empty response to task creation")
	}
	b.store.PutFront(*created)
	return created.Clone(), nil
}

// Update applies patch locally, then sends it to the server.
func (b *Board) Update(ctx context.Context, id int64, patch domain.TaskPatch) (domain.Task, error) {
	current, ok := b.store.Get(id)
	if !ok {
		return domain.Task{}, notLoaded(id)
	}
	if patch.Empty() {
		return current, nil
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return domain.Task{}, apierr.Validation("", map[string]string{"title": "title is required"})
	}
	return b.coord.Apply(ctx, id,
		func(current domain.Task) domain.Task { return patch.ApplyTo(current) },
		func(ctx context.Context, _ domain.Task) (domain.Task, error) {
			return b.put(ctx, id, patch)
		})
}

// Toggle flips the completion flag. The server receives the explicit new
// value, so toggles queued on the same task compose.
func (b *Board) Toggle(ctx context.Context, id int64) (domain.Task, error) {
	if _, ok := b.store.Get(id); !ok {
		return domain.Task{}, notLoaded(id)
	}
	return b.coord.Apply(ctx, id,
		func(current domain.Task) domain.Task {
			current.Completed = !current.Completed
			return current
		},
		func(ctx context.Context, applied domain.Task) (domain.Task, error) {
			done := applied.Completed
			return b.put(ctx, id, domain.TaskPatch{Completed: &done})
		})
}

// Delete removes the task locally, then on the server.
func (b *Board) Delete(ctx context.Context, id int64) error {
	if _, ok := b.store.Get(id); !ok {
		return notLoaded(id)
	}
	return b.coord.Remove(ctx, id, func(ctx context.Context, _ domain.Task) error {
		_, err := b.doer.Execute(ctx, http.MethodDelete, taskPath(id), nil)
		return err
	})
}

func (b *Board) List() []domain.Task {
	return b.store.List()
}

func (b *Board) Get(id int64) (domain.Task, bool) {
	return b.store.Get(id)
}

// Pending reports queued or in-flight changes to the task.
func (b *Board) Pending(id int64) int {
	return b.coord.Pending(id)
}

// Clear empties the local view, e.g. after sign-out.
func (b *Board) Clear() {
	b.store.Replace(nil)
}

func (b *Board) Subscribe(fn func(Event)) (cancel func()) {
	return b.store.Subscribe(fn)
}

func (b *Board) put(ctx context.Context, id int64, patch domain.TaskPatch) (domain.Task, error) {
	updated, err := transport.Do[domain.Task](ctx, b.doer, http.MethodPut, taskPath(id), patch)
	if err != nil {
		return domain.Task{}, err
	}
	if updated == nil {
		return domain.Task{}, malformed("empty response to task update")
	}
	return *updated, nil
}

func taskPath(id int64) string {
	return fmt.Sprintf("%s/%d", PathTasks, id)
}

func notLoaded(id int64) error {
	return apierr.New(apierr.KindNotFound, fmt.Sprintf("task %d not found", id))
}

func malformed(msg string) error {
	ce := apierr.New(apierr.KindUnknown, msg)
	ce.Retryable = false
	return ce
}
