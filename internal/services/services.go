// Package services applies the access policy, performs mutations against
// the store and publishes one domain event per successful mutation.
package services

import (
	"context"
	"errors"
	"math"

	"flowtrack/backend/internal/apperrors"
	"flowtrack/backend/internal/events"
	"flowtrack/backend/internal/models"
	"flowtrack/backend/internal/repositories"

	"github.com/gofrs/uuid"
)

// EventPublisher is best-effort: it never reports failure to the caller.
type EventPublisher interface {
	Publish(ctx context.Context, e events.Event)
}

type ReminderScheduler interface {
	ScheduleDeadlineReminder(ctx context.Context, task *models.Task) error
}

// ProgressCache hands out a version on a miss; Set drops the write when an
// Invalidate happened after that version was read.
type ProgressCache interface {
	Get(ctx context.Context, projectID uuid.UUID, dest interface{}) (version int64, hit bool)
	Set(ctx context.Context, projectID uuid.UUID, version int64, value interface{})
	Invalidate(ctx context.Context, projectID uuid.UUID)
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, events.Event) {}

type noopScheduler struct{}

func (noopScheduler) ScheduleDeadlineReminder(context.Context, *models.Task) error { return nil }

type noopCache struct{}

func (noopCache) Get(context.Context, uuid.UUID, interface{}) (int64, bool) { return -1, false }
func (noopCache) Set(context.Context, uuid.UUID, int64, interface{})        {}
func (noopCache) Invalidate(context.Context, uuid.UUID)                     {}

// storeError converts a repository error into the application taxonomy.
func storeError(err error, notFound string) error {
	var appErr *apperrors.Error
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repositories.ErrNotFound):
		return apperrors.NotFound(notFound)
	case errors.Is(err, repositories.ErrDuplicate):
		return apperrors.Conflict("resource already exists")
	case errors.As(err, &appErr):
		return err
	default:
		return apperrors.Internal("database operation failed", err)
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func percent(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return round2(float64(part) / float64(total) * 100)
}

func page(skip, limit int) repositories.Page {
	return repositories.Page{Skip: skip, Limit: limit}
}
