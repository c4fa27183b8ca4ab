package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"flowtrack/backend/internal/apperrors"
	"flowtrack/backend/internal/events"
	"flowtrack/backend/internal/logging"
	"flowtrack/backend/internal/models"
	"flowtrack/backend/internal/policy"
	"flowtrack/backend/internal/repositories"

	"github.com/gofrs/uuid"
)

type TaskInput struct {
	Title       string              `json:"title" binding:"required,min=1,max=200"`
	Description string              `json:"description" binding:"max=5000"`
	Priority    models.TaskPriority `json:"priority"`
	Status      models.TaskStatus   `json:"status"`
	Deadline    *time.Time          `json:"deadline"`
	ProjectID   uuid.UUID           `json:"project_id" binding:"required"`
	AssignedTo  *uuid.UUID          `json:"assigned_to"`
}

// TaskPatch changes only the fields that are non-nil.
type TaskPatch struct {
	Title       *string              `json:"title" binding:"omitempty,min=1,max=200"`
	Description *string              `json:"description" binding:"omitempty,max=5000"`
	Priority    *models.TaskPriority `json:"priority"`
	Status      *models.TaskStatus   `json:"status"`
	Deadline    *time.Time           `json:"deadline"`
	AssignedTo  *uuid.UUID           `json:"assigned_to"`
}

type TaskFilters struct {
	ProjectID  *uuid.UUID
	Status     *models.TaskStatus
	Priority   *models.TaskPriority
	AssignedTo *uuid.UUID
	Skip       int
	Limit      int
}

type TaskService struct {
	store     repositories.Store
	publisher EventPublisher
	reminders ReminderScheduler
	progress  ProgressCache
}

func NewTaskService(store repositories.Store, publisher EventPublisher, reminders ReminderScheduler, progress ProgressCache) *TaskService {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	if reminders == nil {
		reminders = noopScheduler{}
	}
	if progress == nil {
		progress = noopCache{}
	}
	return &TaskService{store: store, publisher: publisher, reminders: reminders, progress: progress}
}

func (s *TaskService) requireMember(ctx context.Context, store repositories.Store, projectID, userID uuid.UUID) error {
	ok, err := store.Projects().IsMember(ctx, projectID, userID)
	if err != nil {
		return storeError(err, "project not found")
	}
	if !ok {
		return apperrors.Validation("assignee must be a member of the project")
	}
	return nil
}

func (s *TaskService) Create(ctx context.Context, p policy.Principal, in TaskInput) (*models.Task, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperrors.Validation("task title is required")
	}
	if in.Priority == "" {
		in.Priority = models.PriorityMedium
	}
	if !in.Priority.Valid() {
		return nil, apperrors.Validationf("invalid task priority %q", in.Priority)
	}
	if in.Status == "" {
		in.Status = models.TaskTodo
	}
	if !in.Status.Valid() {
		return nil, apperrors.Validationf("invalid task status %q", in.Status)
	}

	task := &models.Task{
		Title:       title,
		Description: in.Description,
		Priority:    in.Priority,
		Status:      in.Status,
		Deadline:    in.Deadline,
		ProjectID:   in.ProjectID,
		AssignedTo:  in.AssignedTo,
		CreatedBy:   p.ID,
	}

	err := s.store.Transaction(ctx, func(tx repositories.Store) error {
		project, err := tx.Projects().FindByID(ctx, in.ProjectID)
		if err != nil {
			return storeError(err, "project not found")
		}
		if !policy.CanCreateTask(p, project) {
			return apperrors.PermissionDenied("not a member of this project")
		}
		if task.AssignedTo != nil {
			if err := s.requireMember(ctx, tx, project.ID, *task.AssignedTo); err != nil {
				return err
			}
		}
		if err := tx.Tasks().Create(ctx, task); err != nil {
			return err
		}
		return tx.Activity().Append(ctx, p.ID, "created task: "+task.Title)
	})
	if err != nil {
		return nil, storeError(err, "project not found")
	}

	s.afterWrite(ctx, task, true)
	s.publisher.Publish(ctx, events.TaskCreated{
		TaskID:     task.ID,
		TaskTitle:  task.Title,
		ProjectID:  task.ProjectID,
		AssignedTo: task.AssignedTo,
		CreatedBy:  p.ID,
	})
	return task, nil
}

// List restricts non-admins to their own assignments. Visibility never
// produces an error, only a smaller result.
func (s *TaskService) List(ctx context.Context, p policy.Principal, f TaskFilters) ([]models.Task, error) {
	scope := policy.CanListTasks(p)
	tasks, err := s.store.Tasks().List(ctx, repositories.TaskFilter{
		AllTasks:   scope.Unrestricted,
		AssigneeID: scope.AssigneeID,
		ProjectID:  f.ProjectID,
		Status:     f.Status,
		Priority:   f.Priority,
		AssignedTo: f.AssignedTo,
		Page:       page(f.Skip, f.Limit),
	})
	if err != nil {
		return nil, storeError(err, "task not found")
	}
	return tasks, nil
}

// Get reports NotFound both for missing tasks and for tasks the principal
// may not read.
func (s *TaskService) Get(ctx context.Context, p policy.Principal, id uuid.UUID) (*models.Task, error) {
	return s.load(ctx, s.store, p, id)
}

func (s *TaskService) load(ctx context.Context, store repositories.Store, p policy.Principal, id uuid.UUID) (*models.Task, error) {
	task, err := store.Tasks().FindByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "task not found")
	}
	if !policy.CanReadTask(p, task) {
		return nil, apperrors.NotFound("task not found")
	}
	return task, nil
}

func (s *TaskService) Update(ctx context.Context, p policy.Principal, id uuid.UUID, patch TaskPatch) (*models.Task, error) {
	var (
		task      *models.Task
		oldStatus models.TaskStatus
	)
	err := s.store.Transaction(ctx, func(tx repositories.Store) error {
		var err error
		task, err = s.load(ctx, tx, p, id)
		if err != nil {
			return err
		}
		if !policy.CanWriteTask(p, task) {
			return apperrors.NotFound("task not found")
		}
		oldStatus = task.Status

		if patch.AssignedTo != nil && !task.IsAssignedTo(*patch.AssignedTo) {
			if !policy.CanReassignTask(p) {
				return apperrors.PermissionDenied("only admins can reassign tasks")
			}
			if err := s.requireMember(ctx, tx, task.ProjectID, *patch.AssignedTo); err != nil {
				return err
			}
			assignee := *patch.AssignedTo
			task.AssignedTo = &assignee
		}
		if err := applyTaskPatch(task, patch); err != nil {
			return err
		}
		task.UpdatedAt = time.Now()

		if err := tx.Tasks().Update(ctx, task); err != nil {
			return err
		}
		return tx.Activity().Append(ctx, p.ID, "updated task: "+task.Title)
	})
	if err != nil {
		return nil, storeError(err, "task not found")
	}

	s.afterWrite(ctx, task, patch.Deadline != nil || patch.AssignedTo != nil)

	evt := events.TaskUpdated{
		TaskID:    task.ID,
		TaskTitle: task.Title,
		ProjectID: task.ProjectID,
		UpdatedBy: p.ID,
	}
	if oldStatus != task.Status {
		evt.StatusChanged = &events.StatusChange{OldStatus: string(oldStatus), NewStatus: string(task.Status)}
	}
	s.publisher.Publish(ctx, evt)
	return task, nil
}

func applyTaskPatch(task *models.Task, patch TaskPatch) error {
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return apperrors.Validation("task title must not be empty")
		}
		task.Title = title
	}
	if patch.Description != nil {
		task.Description = *patch.Description
	}
	if patch.Priority != nil {
		if !patch.Priority.Valid() {
			return apperrors.Validationf("invalid task priority %q", *patch.Priority)
		}
		task.Priority = *patch.Priority
	}
	if patch.Status != nil {
		if !patch.Status.Valid() {
			return apperrors.Validationf("invalid task status %q", *patch.Status)
		}
		task.Status = *patch.Status
	}
	if patch.Deadline != nil {
		task.Deadline = patch.Deadline
	}
	return nil
}

func (s *TaskService) Delete(ctx context.Context, p policy.Principal, id uuid.UUID) error {
	var task *models.Task
	err := s.store.Transaction(ctx, func(tx repositories.Store) error {
		var err error
		task, err = s.load(ctx, tx, p, id)
		if err != nil {
			return err
		}
		if !policy.CanWriteTask(p, task) {
			return apperrors.NotFound("task not found")
		}
		if err := tx.Tasks().Delete(ctx, id); err != nil {
			return err
		}
		return tx.Activity().Append(ctx, p.ID, "deleted task: "+task.Title)
	})
	if err != nil {
		return storeError(err, "task not found")
	}

	s.progress.Invalidate(ctx, task.ProjectID)
	s.publisher.Publish(ctx, events.TaskDeleted{
		TaskID:    task.ID,
		TaskTitle: task.Title,
		ProjectID: task.ProjectID,
		DeletedBy: p.ID,
	})
	return nil
}

// Move changes only the status. Any known status may follow any other.
func (s *TaskService) Move(ctx context.Context, p policy.Principal, id uuid.UUID, status models.TaskStatus) (*models.Task, error) {
	if !status.Valid() {
		return nil, apperrors.Validationf("invalid task status %q", status)
	}

	var (
		task      *models.Task
		oldStatus models.TaskStatus
	)
	err := s.store.Transaction(ctx, func(tx repositories.Store) error {
		var err error
		task, err = s.load(ctx, tx, p, id)
		if err != nil {
			return err
		}
		if !policy.CanWriteTask(p, task) {
			return apperrors.NotFound("task not found")
		}
		oldStatus = task.Status
		task.Status = status
		task.UpdatedAt = time.Now()

		if err := tx.Tasks().Update(ctx, task); err != nil {
			return err
		}
		return tx.Activity().Append(ctx, p.ID, fmt.Sprintf("moved task '%s' from %s to %s", task.Title, oldStatus, status))
	})
	if err != nil {
		return nil, storeError(err, "task not found")
	}

	s.progress.Invalidate(ctx, task.ProjectID)
	s.publisher.Publish(ctx, events.TaskMoved{
		TaskID:    task.ID,
		TaskTitle: task.Title,
		OldStatus: string(oldStatus),
		NewStatus: string(status),
		ProjectID: task.ProjectID,
		MovedBy:   p.ID,
	})
	return task, nil
}

// afterWrite runs the post-commit side effects that must not fail the
// request.
func (s *TaskService) afterWrite(ctx context.Context, task *models.Task, schedule bool) {
	s.progress.Invalidate(ctx, task.ProjectID)
	if !schedule {
		return
	}
	if err := s.reminders.ScheduleDeadlineReminder(ctx, task); err != nil {
		logging.Warn().Err(err).Str("task_id", task.ID.String()).Msg("Failed to schedule deadline reminder")
	}
}
