package service

import (
	"context"
	"log/slog"

	"taskboard-api/internal/apperr"
	"taskboard-api/internal/lifecycle"
	"taskboard-api/internal/models"
	"taskboard-api/internal/policy"
	"taskboard-api/internal/realtime"
	"taskboard-api/internal/store"
)

// Caller is the authenticated identity behind a request.
type Caller struct {
	UserID string
	Role   models.Role
}

// Notifier is told about every accepted task change.
type Notifier interface {
	TaskChanged(eventType realtime.EventType, taskID, actorID string)
}

type nopNotifier struct{}

func (nopNotifier) TaskChanged(realtime.EventType, string, string) {}

// TaskService is the task record-store boundary. Each mutation is checked by
// the permission policy, run through the lifecycle engine, then persisted; the
// canonical record is returned with its assignee resolved.
type TaskService struct {
	tasks    *store.TaskRepository
	users    *store.UserRepository
	dir      *store.Directory
	engine   *lifecycle.Engine
	notifier Notifier
}

func NewTaskService(tasks *store.TaskRepository, users *store.UserRepository, dir *store.Directory, engine *lifecycle.Engine, notifier Notifier) *TaskService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &TaskService{tasks: tasks, users: users, dir: dir, engine: engine, notifier: notifier}
}

func (s *TaskService) List(ctx context.Context, _ Caller, f store.TaskFilter) ([]models.Task, error) {
	tasks, err := s.tasks.FindAll(ctx, f)
	if err != nil {
		return nil, err
	}
	if err := s.dir.Fill(ctx, tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (s *TaskService) Get(ctx context.Context, _ Caller, id string) (models.Task, error) {
	task, err := s.tasks.FindByID(ctx, id)
	if err != nil {
		return models.Task{}, err
	}
	return s.resolve(ctx, task)
}

func (s *TaskService) Create(ctx context.Context, caller Caller, p lifecycle.Patch) (models.Task, error) {
	if err := policy.CanCreate(caller.Role); err != nil {
		return models.Task{}, err
	}
	if _, err := policy.AllowedFields(caller.Role, p.Fields()); err != nil {
		return models.Task{}, err
	}
	if err := p.Err(); err != nil {
		return models.Task{}, err
	}
	task, err := s.engine.Create(p)
	if err != nil {
		return models.Task{}, err
	}
	if err := s.requireAssignee(ctx, task.AssigneeID); err != nil {
		return models.Task{}, err
	}
	if err := s.tasks.Create(ctx, &task); err != nil {
		return models.Task{}, err
	}

	slog.InfoContext(ctx, "task created", "task_id", task.ID, "actor_id", caller.UserID, "status", task.Status)
	s.notifier.TaskChanged(realtime.EventTaskCreated, task.ID, caller.UserID)
	return s.resolve(ctx, task)
}

// Update applies p to task id. A member request naming any field other than
// note fails with Forbidden before its values or the record are looked at, so
// nothing is written.
func (s *TaskService) Update(ctx context.Context, caller Caller, id string, p lifecycle.Patch) (models.Task, error) {
	allowed, err := policy.AllowedFields(caller.Role, p.Fields())
	if err != nil {
		return models.Task{}, err
	}
	if err := p.Err(); err != nil {
		return models.Task{}, err
	}
	p = p.Only(allowed...)
	if p.AssigneeID != nil {
		if err := s.requireAssignee(ctx, *p.AssigneeID); err != nil {
			return models.Task{}, err
		}
	}

	var saved models.Task
	var changed []models.Field
	err = s.tasks.Transaction(ctx, func(tx *store.TaskRepository) error {
		current, err := tx.FindByID(ctx, id)
		if err != nil {
			return err
		}
		next, fields, err := s.engine.Apply(current, p)
		if err != nil {
			return err
		}
		changed = fields
		saved, err = tx.UpdateByID(ctx, id, next, fields)
		return err
	})
	if err != nil {
		return models.Task{}, err
	}

	if len(changed) > 0 {
		slog.InfoContext(ctx, "task updated", "task_id", id, "actor_id", caller.UserID, "fields", changed)
		s.notifier.TaskChanged(realtime.EventTaskUpdated, id, caller.UserID)
	}
	return s.resolve(ctx, saved)
}

func (s *TaskService) Delete(ctx context.Context, caller Caller, id string) error {
	if err := policy.CanDelete(caller.Role); err != nil {
		return err
	}
	if err := s.tasks.DeleteByID(ctx, id); err != nil {
		return err
	}
	slog.InfoContext(ctx, "task deleted", "task_id", id, "actor_id", caller.UserID)
	s.notifier.TaskChanged(realtime.EventTaskDeleted, id, caller.UserID)
	return nil
}

// Stats counts tasks per stage for an assignee.
func (s *TaskService) Stats(ctx context.Context, assigneeID string) (map[models.TaskStatus]int64, error) {
	return s.tasks.CountByStatus(ctx, assigneeID)
}

func (s *TaskService) requireAssignee(ctx context.Context, id string) error {
	if _, err := s.users.FindByID(ctx, id); err != nil {
		if apperr.Is(err, apperr.NotFound) {
			return apperr.New(apperr.InvalidArgument, "assignee does not reference a known user", err)
		}
		return err
	}
	return nil
}

func (s *TaskService) resolve(ctx context.Context, task models.Task) (models.Task, error) {
	one := []models.Task{task}
	if err := s.dir.Fill(ctx, one); err != nil {
		return models.Task{}, err
	}
	return one[0], nil
}
