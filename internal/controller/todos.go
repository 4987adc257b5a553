package controller

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"todo-sync/internal/middleware"
	"todo-sync/internal/models"
	"todo-sync/internal/repository"
	"todo-sync/internal/syncerr"
	"todo-sync/pkg/logger"
)

// TodoService is the durable authority behind the HTTP API.
type TodoService interface {
	ListJSON(ctx context.Context, limit int) ([]byte, error)
	Insert(ctx context.Context, t models.Todo) (models.Todo, error)
	Update(ctx context.Context, id string, patch models.TodoPatch) (models.Todo, error)
	Delete(ctx context.Context, id string) error
	Ready(ctx context.Context) error
}

type Todos struct {
	svc TodoService
}

func NewTodos(svc TodoService) *Todos {
	return &Todos{svc: svc}
}

// GetTodos returns the list as JSON, newest first. Supports ?limit=N.
func (h *Todos) GetTodos(c *gin.Context) {
	ctx := c.Request.Context()
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	b, err := h.svc.ListJSON(ctx, limit)
	if err != nil {
		if ctx.Err() != nil || isContextErr(err) {
			return
		}
		logger.Error(ctx, "GetTodos failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get todos"})
		return
	}
	c.Data(http.StatusOK, "application/json", b)
}

type createRequest struct {
	ID          string     `json:"id"`
	Text        string     `json:"text" binding:"required"`
	Description *string    `json:"description"`
	Completed   bool       `json:"completed"`
	CreatedAt   *time.Time `json:"createdAt"`
}

// CreateTodo (auth) stores a todo authored by the caller. A client-chosen id
// must be a uuid; without one the server assigns it.
func (h *Todos) CreateTodo(c *gin.Context) {
	ctx := c.Request.Context()
	who, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	var body createRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}
	if body.ID == "" {
		body.ID = uuid.NewString()
	} else if _, err := uuid.Parse(body.ID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid todo id"})
		return
	}
	t := models.Todo{
		ID:          body.ID,
		Text:        body.Text,
		Description: body.Description,
		Completed:   body.Completed,
		CreatedBy:   who.ID,
		DisplayName: who.DisplayName,
	}
	if body.CreatedAt != nil {
		t.CreatedAt = body.CreatedAt.UTC()
	}
	stored, err := h.svc.Insert(ctx, t)
	if err != nil {
		respondError(c, "CreateTodo", err)
		return
	}
	c.JSON(http.StatusCreated, stored)
}

// UpdateTodo (auth) merges the supplied fields into the todo.
func (h *Todos) UpdateTodo(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing todo id"})
		return
	}
	var patch models.TodoPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}
	stored, err := h.svc.Update(c.Request.Context(), id, patch)
	if err != nil {
		respondError(c, "UpdateTodo", err)
		return
	}
	c.JSON(http.StatusOK, stored)
}

// DeleteTodo (auth) removes the todo. Deleting an absent id is not an error.
func (h *Todos) DeleteTodo(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing todo id"})
		return
	}
	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		respondError(c, "DeleteTodo", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Health returns 200 if the process is alive. Used by load balancers.
func Health(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

// Ready returns 200 if the database and Redis are reachable.
func (h *Todos) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.svc.Ready(ctx); err != nil {
		logger.Debug(ctx, "Readiness check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.String(http.StatusOK, "OK")
}

func respondError(c *gin.Context, op string, err error) {
	ctx := c.Request.Context()
	var ve *syncerr.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Error()})
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Todo not found"})
	case errors.Is(err, repository.ErrDuplicate):
		c.JSON(http.StatusConflict, gin.H{"error": "Todo already exists"})
	case ctx.Err() != nil || isContextErr(err):
		return
	default:
		logger.Error(ctx, op+" failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save todo"})
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
