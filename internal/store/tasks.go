package store

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"

	"taskboard-api/internal/apperr"
	"taskboard-api/internal/models"
)

// TaskFilter narrows FindAll. Zero fields do not filter.
type TaskFilter struct {
	AssigneeID string
	Status     models.TaskStatus
}

// TaskRepository is the durable record store for tasks.
// Every write is last-write-wins at column granularity.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Transaction runs fn against a repository bound to a single transaction.
func (r *TaskRepository) Transaction(ctx context.Context, fn func(tx *TaskRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&TaskRepository{db: tx})
	})
}

// FindAll returns tasks newest first.
func (r *TaskRepository) FindAll(ctx context.Context, f TaskFilter) ([]models.Task, error) {
	query := r.db.WithContext(ctx).Model(&models.Task{})
	if f.AssigneeID != "" {
		query = query.Where("assignee_id = ?", f.AssigneeID)
	}
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	tasks := make([]models.Task, 0)
	if err := query.Order("created_at desc").Order("id desc").Find(&tasks).Error; err != nil {
		return nil, apperr.WrapStoreReadError("tasks", err)
	}
	return tasks, nil
}

func (r *TaskRepository) FindByID(ctx context.Context, id string) (models.Task, error) {
	var task models.Task
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&task).Error; err != nil {
		return models.Task{}, apperr.WrapStoreReadError("task", err)
	}
	return task, nil
}

// Create persists t, assigning an id when it has none.
func (r *TaskRepository) Create(ctx context.Context, t *models.Task) error {
	if t.ID == "" {
		t.ID = ulid.Make().String()
	}
	if err := r.db.WithContext(ctx).Create(t).Error; err != nil {
		return apperr.WrapStoreWriteError("task", err)
	}
	return nil
}

// UpdateByID writes only the columns behind fields and returns the stored record.
func (r *TaskRepository) UpdateByID(ctx context.Context, id string, next models.Task, fields []models.Field) (models.Task, error) {
	if len(fields) == 0 {
		return r.FindByID(ctx, id)
	}
	columns := make([]string, 0, len(fields)+1)
	for _, f := range fields {
		columns = append(columns, f.Column())
	}
	columns = append(columns, "updated_at")
	next.UpdatedAt = time.Now().UTC()

	result := r.db.WithContext(ctx).Model(&models.Task{ID: id}).Select(columns).Updates(&next)
	if result.Error != nil {
		return models.Task{}, apperr.WrapStoreWriteError("task", result.Error)
	}
	if result.RowsAffected == 0 {
		return models.Task{}, apperr.New(apperr.NotFound, "Task not found", nil)
	}
	return r.FindByID(ctx, id)
}

func (r *TaskRepository) DeleteByID(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Task{})
	if result.Error != nil {
		return apperr.WrapStoreWriteError("task", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.New(apperr.NotFound, "Task not found", nil)
	}
	return nil
}

// CountByStatus returns per-stage counts for tasks assigned to assigneeID.
// Every stage is present in the result, zero when empty.
func (r *TaskRepository) CountByStatus(ctx context.Context, assigneeID string) (map[models.TaskStatus]int64, error) {
	type row struct {
		Status string
		Count  int64
	}
	var rows []row
	if err := r.db.WithContext(ctx).Model(&models.Task{}).
		Select("status, COUNT(*) as count").
		Where("assignee_id = ?", assigneeID).
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, apperr.WrapStoreReadError("task stats", err)
	}

	counts := make(map[models.TaskStatus]int64, len(models.Stages()))
	for _, s := range models.Stages() {
		counts[s] = 0
	}
	for _, r := range rows {
		counts[models.TaskStatus(r.Status)] = r.Count
	}
	return counts, nil
}
