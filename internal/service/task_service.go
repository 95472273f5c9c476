package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/taskflow-api/internal/models"
	appErrors "github.com/noah-isme/taskflow-api/pkg/errors"
	"github.com/noah-isme/taskflow-api/pkg/export"
)

type taskRepository interface {
	Create(ctx context.Context, task *models.Task) error
	ListByUser(ctx context.Context, userID string, filter models.TaskFilter) ([]models.Task, error)
	FindByIDAndUser(ctx context.Context, id, userID string) (*models.Task, error)
	Update(ctx context.Context, id, userID string, req models.UpdateTaskRequest) (*models.Task, error)
	Delete(ctx context.Context, id, userID string) (bool, error)
	Statistics(ctx context.Context, userID string) (*models.TaskStatistics, error)
}

// TaskService provides the task CRUD, statistics and export use cases.
type TaskService struct {
	repo      taskRepository
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewTaskService constructs a TaskService instance.
func NewTaskService(repo taskRepository, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *TaskService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TaskService{repo: repo, validator: validate, metrics: metrics, logger: logger}
}

// Create stores a new task for the user.
func (s *TaskService) Create(ctx context.Context, userID string, req models.CreateTaskRequest) (*models.Task, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid task payload")
	}

	task := &models.Task{
		UserID:      userID,
		Title:       req.Title,
		Description: req.Description,
		Status:      models.TaskStatus(req.Status),
		Priority:    models.TaskPriority(req.Priority),
		DueDate:     req.DueDate,
	}
	if err := s.repo.Create(ctx, task); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create task")
	}

	if s.metrics != nil {
		s.metrics.TaskCreated(string(task.Status))
	}
	s.logger.Info("task created", zap.String("task_id", task.ID), zap.String("user_id", userID))
	return task, nil
}

// List returns the user's tasks with optional status/priority filters.
func (s *TaskService) List(ctx context.Context, userID string, filter models.TaskFilter) ([]models.Task, error) {
	tasks, err := s.repo.ListByUser(ctx, userID, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list tasks")
	}
	return tasks, nil
}

// Get returns a single task owned by the user.
func (s *TaskService) Get(ctx context.Context, id, userID string) (*models.Task, error) {
	task, err := s.repo.FindByIDAndUser(ctx, id, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "task not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load task")
	}
	return task, nil
}

// Update applies a partial update to the user's task.
func (s *TaskService) Update(ctx context.Context, id, userID string, req models.UpdateTaskRequest) (*models.Task, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid task payload")
	}

	old, err := s.repo.FindByIDAndUser(ctx, id, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "task not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load task")
	}

	task, err := s.repo.Update(ctx, id, userID, req)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "task not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update task")
	}

	if s.metrics != nil {
		s.metrics.TaskStatusChanged(string(old.Status), string(task.Status))
	}
	s.logger.Info("task updated", zap.String("task_id", task.ID), zap.String("user_id", userID))
	return task, nil
}

// Delete removes the user's task.
func (s *TaskService) Delete(ctx context.Context, id, userID string) error {
	task, err := s.repo.FindByIDAndUser(ctx, id, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "task not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load task")
	}

	deleted, err := s.repo.Delete(ctx, id, userID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete task")
	}
	if !deleted {
		return appErrors.Clone(appErrors.ErrNotFound, "task not found")
	}

	if s.metrics != nil {
		s.metrics.TaskDeleted(string(task.Status))
	}
	s.logger.Info("task deleted", zap.String("task_id", id), zap.String("user_id", userID))
	return nil
}

// Statistics aggregates the user's task counts.
func (s *TaskService) Statistics(ctx context.Context, userID string) (*models.TaskStatistics, error) {
	stats, err := s.repo.Statistics(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute statistics")
	}
	return stats, nil
}

// Export renders the user's filtered task list as CSV or PDF bytes.
func (s *TaskService) Export(ctx context.Context, userID string, filter models.TaskFilter, format string) ([]byte, string, error) {
	tasks, err := s.List(ctx, userID, filter)
	if err != nil {
		return nil, "", err
	}

	table := export.Table{
		Title:   "Tasks",
		Headers: []string{"ID", "Title", "Status", "Priority", "Due Date", "Created At"},
	}
	for _, t := range tasks {
		due := ""
		if t.DueDate != nil {
			due = t.DueDate.Format(time.RFC3339)
		}
		table.Rows = append(table.Rows, []string{
			t.ID,
			t.Title,
			string(t.Status),
			string(t.Priority),
			due,
			t.CreatedAt.Format(time.RFC3339),
		})
	}

	switch format {
	case "pdf":
		data, err := export.PDF(table)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return data, "application/pdf", nil
	case "", "csv":
		data, err := export.CSV(table)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return data, "text/csv", nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
}
