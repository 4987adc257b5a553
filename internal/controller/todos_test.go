package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"todo-sync/internal/middleware"
	"todo-sync/internal/models"
	"todo-sync/internal/repository"
	"todo-sync/internal/syncerr"
)

const secret = "controller-test-secret"

type fakeService struct {
	list     []byte
	listErr  error
	inserted []models.Todo
	patches  map[string]models.TodoPatch
	deleted  []string
	err      error
	readyErr error
}

func (f *fakeService) ListJSON(ctx context.Context, limit int) ([]byte, error) {
	return f.list, f.listErr
}

func (f *fakeService) Insert(ctx context.Context, t models.Todo) (models.Todo, error) {
	if f.err != nil {
		return models.Todo{}, f.err
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	}
	f.inserted = append(f.inserted, t)
	return t, nil
}

func (f *fakeService) Update(ctx context.Context, id string, patch models.TodoPatch) (models.Todo, error) {
	if f.err != nil {
		return models.Todo{}, f.err
	}
	if f.patches == nil {
		f.patches = map[string]models.TodoPatch{}
	}
	f.patches[id] = patch
	return patch.Apply(models.Todo{ID: id, Text: "milk"}), nil
}

func (f *fakeService) Delete(ctx context.Context, id string) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeService) Ready(ctx context.Context) error { return f.readyErr }

func newTestRouter(svc TodoService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewTodos(svc)
	r := gin.New()
	r.GET("/health", Health)
	r.GET("/ready", h.Ready)
	r.GET("/todos", h.GetTodos)
	api := r.Group("", middleware.AuthMiddleware(secret))
	api.POST("/todos", h.CreateTodo)
	api.PATCH("/todos/:id", h.UpdateTodo)
	api.DELETE("/todos/:id", h.DeleteTodo)
	return r
}

func token(t *testing.T) string {
	t.Helper()
	claims := models.Claims{Name: "Ann", RegisteredClaims: jwt.RegisteredClaims{Subject: "ann@example.com"}}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func do(t *testing.T, r http.Handler, method, path, body string, auth bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if auth {
		req.Header.Set("Authorization", "Bearer "+token(t))
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGetTodos(t *testing.T) {
	svc := &fakeService{list: []byte(`[{"id":"1","text":"milk"}]`)}
	w := do(t, newTestRouter(svc), http.MethodGet, "/todos?limit=5", "", false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"id":"1","text":"milk"}]`, w.Body.String())

	svc.listErr = errors.New("db down")
	w = do(t, newTestRouter(svc), http.MethodGet, "/todos", "", false)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestCreateTodoStampsAuthor(t *testing.T) {
	svc := &fakeService{}
	body := `{"id":"6f1c1d2e-8a57-4d0e-9a43-1e2b3c4d5e6f","text":"buy eggs","description":"a dozen"}`
	w := do(t, newTestRouter(svc), http.MethodPost, "/todos", body, true)
	require.Equal(t, http.StatusCreated, w.Code)

	require.Len(t, svc.inserted, 1)
	got := svc.inserted[0]
	assert.Equal(t, "6f1c1d2e-8a57-4d0e-9a43-1e2b3c4d5e6f", got.ID)
	assert.Equal(t, "ann@example.com", got.CreatedBy)
	assert.Equal(t, "Ann", got.DisplayName)
	assert.Equal(t, "a dozen", *got.Description)

	var resp models.Todo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "buy eggs", resp.Text)
}

func TestCreateTodoAssignsID(t *testing.T) {
	svc := &fakeService{}
	w := do(t, newTestRouter(svc), http.MethodPost, "/todos", `{"text":"milk"}`, true)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Len(t, svc.inserted[0].ID, 36)
}

func TestCreateTodoRejects(t *testing.T) {
	r := newTestRouter(&fakeService{})
	assert.Equal(t, http.StatusUnauthorized, do(t, r, http.MethodPost, "/todos", `{"text":"milk"}`, false).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodPost, "/todos", `{}`, true).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodPost, "/todos", `{"id":"1","text":"milk"}`, true).Code)

	svc := &fakeService{err: &syncerr.ValidationError{Field: "text", Err: syncerr.ErrEmptyText}}
	assert.Equal(t, http.StatusBadRequest, do(t, newTestRouter(svc), http.MethodPost, "/todos", `{"text":" "}`, true).Code)

	svc = &fakeService{err: repository.ErrDuplicate}
	assert.Equal(t, http.StatusConflict, do(t, newTestRouter(svc), http.MethodPost, "/todos", `{"text":"milk"}`, true).Code)
}

func TestUpdateTodo(t *testing.T) {
	svc := &fakeService{}
	w := do(t, newTestRouter(svc), http.MethodPatch, "/todos/1", `{"completed":true}`, true)
	require.Equal(t, http.StatusOK, w.Code)
	patch := svc.patches["1"]
	require.NotNil(t, patch.Completed)
	assert.True(t, *patch.Completed)
	assert.Nil(t, patch.Text)

	svc = &fakeService{err: repository.ErrNotFound}
	w = do(t, newTestRouter(svc), http.MethodPatch, "/todos/1", `{"completed":true}`, true)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteTodo(t *testing.T) {
	svc := &fakeService{}
	w := do(t, newTestRouter(svc), http.MethodDelete, "/todos/1", "", true)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"1"}, svc.deleted)

	svc = &fakeService{err: errors.New("db down")}
	w = do(t, newTestRouter(svc), http.MethodDelete, "/todos/1", "", true)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestProbes(t *testing.T) {
	svc := &fakeService{}
	assert.Equal(t, http.StatusOK, do(t, newTestRouter(svc), http.MethodGet, "/health", "", false).Code)
	assert.Equal(t, http.StatusOK, do(t, newTestRouter(svc), http.MethodGet, "/ready", "", false).Code)
	svc.readyErr = errors.New("redis unavailable")
	assert.Equal(t, http.StatusServiceUnavailable, do(t, newTestRouter(svc), http.MethodGet, "/ready", "", false).Code)
}
