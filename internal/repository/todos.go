package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"todo-sync/internal/models"
	"todo-sync/pkg/logger"
)

var (
	ErrNotFound  = errors.New("todo not found")
	ErrDuplicate = errors.New("todo already exists")
	ErrNoDB      = errors.New("database not available")
)

const uniqueViolation = "23505"

const todoColumns = `id, text, description, completed, created_by, display_name, created_at`

// Todos is the todos table.
type Todos struct {
	db *sql.DB
}

func NewTodos(db *sql.DB) *Todos {
	return &Todos{db: db}
}

// List returns todos newest first. limit <= 0 returns all of them.
func (r *Todos) List(ctx context.Context, limit int) (models.Snapshot, error) {
	if r.db == nil {
		return nil, ErrNoDB
	}
	q := `SELECT ` + todoColumns + ` FROM todos ORDER BY created_at DESC, id`
	args := []interface{}{}
	if limit > 0 {
		q += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		logger.Error(ctx, "Repository List failed", "error", err)
		return nil, err
	}
	defer rows.Close()
	todos := models.Snapshot{}
	for rows.Next() {
		t, err := scanTodo(rows)
		if err != nil {
			logger.Error(ctx, "Repository scan todo failed", "error", err)
			return nil, err
		}
		todos = append(todos, t)
	}
	return todos, rows.Err()
}

// Insert stores t. An empty id gets a fresh uuid and a zero CreatedAt gets
// the current time. The stored row is returned.
func (r *Todos) Insert(ctx context.Context, t models.Todo) (models.Todo, error) {
	if r.db == nil {
		return models.Todo{}, ErrNoDB
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO todos (id, text, description, completed, created_by, display_name, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		 RETURNING `+todoColumns,
		t.ID, t.Text, nullString(t.Description), t.Completed, t.CreatedBy, t.DisplayName, t.CreatedAt)
	stored, err := scanTodo(row)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return models.Todo{}, fmt.Errorf("insert %s: %w", t.ID, ErrDuplicate)
		}
		logger.Error(ctx, "Repository Insert failed", "error", err, "id", t.ID)
		return models.Todo{}, err
	}
	return stored, nil
}

// Update merges the supplied fields into the row with id and returns the
// result. An empty Description clears it.
func (r *Todos) Update(ctx context.Context, id string, patch models.TodoPatch) (models.Todo, error) {
	if r.db == nil {
		return models.Todo{}, ErrNoDB
	}
	var (
		text      sql.NullString
		completed sql.NullBool
		descSet   bool
		desc      string
	)
	if patch.Text != nil {
		text = sql.NullString{String: *patch.Text, Valid: true}
	}
	if patch.Completed != nil {
		completed = sql.NullBool{Bool: *patch.Completed, Valid: true}
	}
	if patch.Description != nil {
		descSet, desc = true, *patch.Description
	}
	row := r.db.QueryRowContext(ctx,
		`UPDATE todos SET
		   text = COALESCE($2, text),
		   description = CASE WHEN $3::boolean THEN NULLIF($4, '') ELSE description END,
		   completed = COALESCE($5, completed),
		   updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+todoColumns,
		id, text, descSet, desc, completed)
	t, err := scanTodo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Todo{}, fmt.Errorf("update %s: %w", id, ErrNotFound)
	}
	if err != nil {
		logger.Error(ctx, "Repository Update failed", "error", err, "id", id)
		return models.Todo{}, err
	}
	return t, nil
}

// Delete removes the row with id and reports whether one existed.
func (r *Todos) Delete(ctx context.Context, id string) (bool, error) {
	if r.db == nil {
		return false, ErrNoDB
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM todos WHERE id = $1`, id)
	if err != nil {
		logger.Error(ctx, "Repository Delete failed", "error", err, "id", id)
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Ping checks the pool.
func (r *Todos) Ping(ctx context.Context) error {
	if r.db == nil {
		return ErrNoDB
	}
	return r.db.PingContext(ctx)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTodo(s scanner) (models.Todo, error) {
	var (
		t    models.Todo
		desc sql.NullString
	)
	if err := s.Scan(&t.ID, &t.Text, &desc, &t.Completed, &t.CreatedBy, &t.DisplayName, &t.CreatedAt); err != nil {
		return models.Todo{}, err
	}
	if desc.Valid {
		d := desc.String
		t.Description = &d
	}
	t.CreatedAt = t.CreatedAt.UTC()
	return t, nil
}

func nullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
