package service

import (
	"context"
	"errors"

	"tasklist/internal/domain"
	"tasklist/internal/repository"
)

var (
	ErrTaskNotFound  = errors.New("task not found")
	ErrTaskForbidden = errors.New("task belongs to another user")
)

// TaskService coordinates task level operations for one owner at a time.
type TaskService interface {
	CreateTask(ctx context.Context, userID int64, title string, description *string) (*domain.Task, error)
	ListTasks(ctx context.Context, userID int64) ([]domain.Task, error)
	GetTask(ctx context.Context, userID, id int64) (*domain.Task, error)
	UpdateTask(ctx context.Context, userID, id int64, patch domain.TaskPatch) (*domain.Task, error)
	ToggleTask(ctx context.Context, userID, id int64) (*domain.Task, error)
	DeleteTask(ctx context.Context, userID, id int64) error
}

type taskService struct {
	tasks repository.TaskRepository
}

func NewTaskService(tasks repository.TaskRepository) TaskService {
	return &taskService{tasks: tasks}
}

func (s *taskService) CreateTask(ctx context.Context, userID int64, title string, description *string) (*domain.Task, error) {
	task := &domain.Task{
		UserID:      userID,
		Title:       title,
		Description: description,
	}
	if _, err := s.tasks.Create(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

func (s *taskService) ListTasks(ctx context.Context, userID int64) ([]domain.Task, error) {
	return s.tasks.ListByUser(ctx, userID)
}

// GetTask distinguishes a missing task from one owned by someone else.
func (s *taskService) GetTask(ctx context.Context, userID, id int64) (*domain.Task, error) {
	task, err := s.tasks.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	if task.UserID != userID {
		return nil, ErrTaskForbidden
	}
	return task, nil
}

func (s *taskService) UpdateTask(ctx context.Context, userID, id int64, patch domain.TaskPatch) (*domain.Task, error) {
	task, err := s.GetTask(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	updated := patch.ApplyTo(*task)
	if err := s.tasks.Update(ctx, &updated); err != nil {
		return nil, s.mapMissing(err)
	}
	return &updated, nil
}

func (s *taskService) ToggleTask(ctx context.Context, userID, id int64) (*domain.Task, error) {
	task, err := s.GetTask(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	done := !task.Completed
	return s.UpdateTask(ctx, userID, id, domain.TaskPatch{Completed: &done})
}

func (s *taskService) DeleteTask(ctx context.Context, userID, id int64) error {
	if _, err := s.GetTask(ctx, userID, id); err != nil {
		return err
	}
	return s.mapMissing(s.tasks.Delete(ctx, id))
}

func (s *taskService) mapMissing(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrTaskNotFound
	}
	return err
}
