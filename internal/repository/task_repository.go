package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/taskflow-api/internal/models"
)

// TaskRepository provides database access for per-user tasks. Every query is
// scoped by user_id so a user can never touch another user's tasks.
type TaskRepository struct {
	db *sqlx.DB
}

// NewTaskRepository creates a new instance of TaskRepository.
func NewTaskRepository(db *sqlx.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Create inserts a new task for the user.
func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.Status == "" {
		task.Status = models.StatusTodo
	}
	if task.Priority == "" {
		task.Priority = models.PriorityMedium
	}
	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now

	const query = `INSERT INTO tasks (id, user_id, title, description, status, priority, due_date, created_at, updated_at) VALUES (:id, :user_id, :title, :description, :status, :priority, :due_date, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, task); err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// ListByUser returns the user's tasks, optionally filtered by status and
// priority, newest first.
func (r *TaskRepository) ListByUser(ctx context.Context, userID string, filter models.TaskFilter) ([]models.Task, error) {
	query := `SELECT id, user_id, title, description, status, priority, due_date, created_at, updated_at FROM tasks WHERE user_id = $1`
	args := []interface{}{userID}

	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Priority != "" {
		args = append(args, filter.Priority)
		query += fmt.Sprintf(" AND priority = $%d", len(args))
	}

	query += " ORDER BY created_at DESC"

	tasks := []models.Task{}
	if err := r.db.SelectContext(ctx, &tasks, query, args...); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// FindByIDAndUser returns a task only when it belongs to the user.
func (r *TaskRepository) FindByIDAndUser(ctx context.Context, id, userID string) (*models.Task, error) {
	const query = `SELECT id, user_id, title, description, status, priority, due_date, created_at, updated_at FROM tasks WHERE id = $1 AND user_id = $2 LIMIT 1`
	var task models.Task
	if err := r.db.GetContext(ctx, &task, query, id, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find task: %w", err)
	}
	return &task, nil
}

// Update applies the non-nil fields of the request to the user's task and
// returns the updated row.
func (r *TaskRepository) Update(ctx context.Context, id, userID string, req models.UpdateTaskRequest) (*models.Task, error) {
	var sets []string
	var args []interface{}

	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if req.Title != nil {
		add("title", *req.Title)
	}
	if req.Description != nil {
		add("description", *req.Description)
	}
	if req.Status != nil {
		add("status", *req.Status)
	}
	if req.Priority != nil {
		add("priority", *req.Priority)
	}
	if req.DueDate != nil {
		add("due_date", *req.DueDate)
	}

	if len(sets) == 0 {
		return nil, fmt.Errorf("no fields to update")
	}

	add("updated_at", time.Now().UTC())

	args = append(args, id, userID)
	query := fmt.Sprintf(
		"UPDATE tasks SET %s WHERE id = $%d AND user_id = $%d RETURNING id, user_id, title, description, status, priority, due_date, created_at, updated_at",
		strings.Join(sets, ", "), len(args)-1, len(args),
	)

	var task models.Task
	if err := r.db.GetContext(ctx, &task, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("update task: %w", err)
	}
	return &task, nil
}

// Delete removes the user's task and reports whether a row was deleted.
func (r *TaskRepository) Delete(ctx context.Context, id, userID string) (bool, error) {
	const query = `DELETE FROM tasks WHERE id = $1 AND user_id = $2`
	res, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return false, fmt.Errorf("delete task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete task: %w", err)
	}
	return affected > 0, nil
}

type taskStatsRow struct {
	Total          int `db:"total"`
	Todo           int `db:"todo"`
	InProgress     int `db:"in_progress"`
	Completed      int `db:"completed"`
	LowPriority    int `db:"low_priority"`
	MediumPriority int `db:"medium_priority"`
	HighPriority   int `db:"high_priority"`
}

// Statistics aggregates the user's task counts in a single query.
func (r *TaskRepository) Statistics(ctx context.Context, userID string) (*models.TaskStatistics, error) {
	const query = `SELECT
		COUNT(*) AS total,
		COUNT(*) FILTER (WHERE status = 'todo') AS todo,
		COUNT(*) FILTER (WHERE status = 'in_progress') AS in_progress,
		COUNT(*) FILTER (WHERE status = 'completed') AS completed,
		COUNT(*) FILTER (WHERE priority = 'low') AS low_priority,
		COUNT(*) FILTER (WHERE priority = 'medium') AS medium_priority,
		COUNT(*) FILTER (WHERE priority = 'high') AS high_priority
	FROM tasks WHERE user_id = $1`

	var row taskStatsRow
	if err := r.db.GetContext(ctx, &row, query, userID); err != nil {
		return nil, fmt.Errorf("task statistics: %w", err)
	}

	return &models.TaskStatistics{
		Total: row.Total,
		ByStatus: map[string]int{
			string(models.StatusTodo):       row.Todo,
			string(models.StatusInProgress): row.InProgress,
			string(models.StatusCompleted):  row.Completed,
		},
		ByPriority: map[string]int{
			string(models.PriorityLow):    row.LowPriority,
			string(models.PriorityMedium): row.MediumPriority,
			string(models.PriorityHigh):   row.HighPriority,
		},
	}, nil
}
