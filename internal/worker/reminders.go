package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"flowtrack/backend/internal/events"
	"flowtrack/backend/internal/logging"
	"flowtrack/backend/internal/models"
	"flowtrack/backend/internal/repositories"

	"github.com/gofrs/uuid"
)

type EventPublisher interface {
	Publish(ctx context.Context, e events.Event)
}

type TaskFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
}

// ReminderScheduler enqueues a deadline reminder ahead of a task's deadline.
type ReminderScheduler struct {
	queue *JobQueue
	lead  time.Duration
	now   func() time.Time
}

func NewReminderScheduler(queue *JobQueue, lead time.Duration) *ReminderScheduler {
	return &ReminderScheduler{queue: queue, lead: lead, now: time.Now}
}

// ScheduleDeadlineReminder is a no-op for tasks without both a deadline and
// an assignee, and for deadlines already passed.
func (s *ReminderScheduler) ScheduleDeadlineReminder(ctx context.Context, task *models.Task) error {
	if task.Deadline == nil || task.AssignedTo == nil {
		return nil
	}
	now := s.now()
	if !task.Deadline.After(now) {
		return nil
	}

	processAt := task.Deadline.Add(-s.lead)
	if processAt.Before(now) {
		processAt = now
	}

	payload := map[string]interface{}{
		"task_id":     task.ID.String(),
		"task_title":  task.Title,
		"assignee_id": task.AssignedTo.String(),
		"deadline":    task.Deadline.UTC().Format(time.RFC3339),
	}
	return s.queue.EnqueueAt(ctx, QueueReminders, JobTypeDeadlineReminder, payload, processAt)
}

type reminderPayload struct {
	TaskID     uuid.UUID
	TaskTitle  string
	AssigneeID uuid.UUID
	Deadline   time.Time
}

func parseReminder(payload map[string]interface{}) (reminderPayload, error) {
	var p reminderPayload
	str := func(key string) (string, error) {
		v, ok := payload[key].(string)
		if !ok || v == "" {
			return "", fmt.Errorf("reminder payload missing %s", key)
		}
		return v, nil
	}

	raw, err := str("task_id")
	if err != nil {
		return p, err
	}
	if p.TaskID, err = uuid.FromString(raw); err != nil {
		return p, err
	}
	if raw, err = str("assignee_id"); err != nil {
		return p, err
	}
	if p.AssigneeID, err = uuid.FromString(raw); err != nil {
		return p, err
	}
	if raw, err = str("deadline"); err != nil {
		return p, err
	}
	if p.Deadline, err = time.Parse(time.RFC3339, raw); err != nil {
		return p, err
	}
	p.TaskTitle, _ = payload["task_title"].(string)
	return p, nil
}

// NewDeadlineReminderHandler publishes a notification addressed to the
// assignee. Reminders for tasks that were deleted, finished, reassigned or
// rescheduled since enqueueing are dropped.
func NewDeadlineReminderHandler(tasks TaskFinder, publisher EventPublisher) JobHandler {
	return func(ctx context.Context, job *Job) error {
		p, err := parseReminder(job.Payload)
		if err != nil {
			return err
		}

		task, err := tasks.FindByID(ctx, p.TaskID)
		if errors.Is(err, repositories.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if stale(task, p) {
			logging.Debug().Str("task_id", task.ID.String()).Msg("Skipping stale deadline reminder")
			return nil
		}

		taskID := task.ID
		assignee := p.AssigneeID
		publisher.Publish(ctx, events.Notification{
			Title:     "Task deadline approaching",
			Message:   fmt.Sprintf("Task '%s' is due %s", task.Title, task.Deadline.UTC().Format(time.RFC1123)),
			TaskID:    &taskID,
			Recipient: &assignee,
		})
		return nil
	}
}

func stale(task *models.Task, p reminderPayload) bool {
	if task.Status == models.TaskDone {
		return true
	}
	if !task.IsAssignedTo(p.AssigneeID) {
		return true
	}
	return task.Deadline == nil || task.Deadline.Unix() != p.Deadline.Unix()
}
