package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation"

	"tasklist/internal/domain"
	"tasklist/internal/service"
)

type createTaskRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
}

func (r *createTaskRequest) Validate() error {
	r.Title = strings.TrimSpace(r.Title)
	return validation.ValidateStruct(r,
		validation.Field(&r.Title, validation.Required, validation.RuneLength(1, 200)),
		validation.Field(&r.Description, validation.NilOrNotEmpty.Error("cannot be blank if present"), validation.RuneLength(0, 1000)),
	)
}

type updateTaskRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Completed   *bool   `json:"is_completed"`
}

func (r *updateTaskRequest) Validate() error {
	if r.Title != nil {
		t := strings.TrimSpace(*r.Title)
		r.Title = &t
	}
	return validation.ValidateStruct(r,
		validation.Field(&r.Title, validation.NilOrNotEmpty.Error("cannot be blank"), validation.RuneLength(1, 200)),
		validation.Field(&r.Description, validation.RuneLength(0, 1000)),
	)
}

func (r updateTaskRequest) patch() domain.TaskPatch {
	return domain.TaskPatch{Title: r.Title, Description: r.Description, Completed: r.Completed}
}

func (h *Handler) createTask(c *gin.Context) {
	var req createTaskRequest
	if !bindBody(c, &req) {
		return
	}

	task, err := h.tasks.CreateTask(c.Request.Context(), c.GetInt64(userIDKey), req.Title, req.Description)
	if err != nil {
		internalError(c, h, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (h *Handler) listTasks(c *gin.Context) {
	tasks, err := h.tasks.ListTasks(c.Request.Context(), c.GetInt64(userIDKey))
	if err != nil {
		internalError(c, h, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

func (h *Handler) getTask(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	task, err := h.tasks.GetTask(c.Request.Context(), c.GetInt64(userIDKey), id)
	if err != nil {
		h.taskError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *Handler) updateTask(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req updateTaskRequest
	if !bindBody(c, &req) {
		return
	}

	task, err := h.tasks.UpdateTask(c.Request.Context(), c.GetInt64(userIDKey), id, req.patch())
	if err != nil {
		h.taskError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *Handler) toggleTask(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	task, err := h.tasks.ToggleTask(c.Request.Context(), c.GetInt64(userIDKey), id)
	if err != nil {
		h.taskError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *Handler) deleteTask(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.tasks.DeleteTask(c.Request.Context(), c.GetInt64(userIDKey), id); err != nil {
		h.taskError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) taskError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrTaskNotFound):
		abortDetail(c, http.StatusNotFound, "Task not found")
	case errors.Is(err, service.ErrTaskForbidden):
		abortDetail(c, http.StatusForbidden, "You do not have permission to access this task")
	default:
		internalError(c, h, err)
	}
}
