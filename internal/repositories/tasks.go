package repositories

import (
	"context"

	"flowtrack/backend/internal/models"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

type gormTaskRepository struct {
	db *gorm.DB
}

func (r *gormTaskRepository) Create(ctx context.Context, task *models.Task) error {
	return translate(r.db.WithContext(ctx).Create(task).Error)
}

func (r *gormTaskRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	var task models.Task
	if err := r.db.WithContext(ctx).First(&task, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &task, nil
}

func (r *gormTaskRepository) scoped(ctx context.Context, filter TaskFilter) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&models.Task{})

	if !filter.AllTasks {
		query = query.Where("tasks.assigned_to = ?", filter.AssigneeID)
	}
	if filter.ProjectID != nil {
		query = query.Where("tasks.project_id = ?", *filter.ProjectID)
	}
	if filter.Status != nil {
		query = query.Where("tasks.status = ?", *filter.Status)
	}
	if filter.Priority != nil {
		query = query.Where("tasks.priority = ?", *filter.Priority)
	}
	if filter.AssignedTo != nil {
		query = query.Where("tasks.assigned_to = ?", *filter.AssignedTo)
	}
	return query
}

func (r *gormTaskRepository) List(ctx context.Context, filter TaskFilter) ([]models.Task, error) {
	page := filter.Page.normalize()
	tasks := []models.Task{}
	err := r.scoped(ctx, filter).
		Order("tasks.created_at DESC").
		Offset(page.Skip).
		Limit(page.Limit).
		Find(&tasks).Error
	return tasks, translate(err)
}

func (r *gormTaskRepository) CountByStatus(ctx context.Context, filter TaskFilter) (StatusCounts, error) {
	var rows []struct {
		Status models.TaskStatus
		N      int64
	}
	err := r.scoped(ctx, filter).
		Select("tasks.status AS status, COUNT(*) AS n").
		Group("tasks.status").
		Scan(&rows).Error
	if err != nil {
		return StatusCounts{}, translate(err)
	}

	var counts StatusCounts
	for _, row := range rows {
		counts.add(row.Status, row.N)
	}
	return counts, nil
}

func (r *gormTaskRepository) Update(ctx context.Context, task *models.Task) error {
	return translate(r.db.WithContext(ctx).Save(task).Error)
}

func (r *gormTaskRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&models.Task{}, "id = ?", id)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormTaskRepository) BreakdownByAssignee(ctx context.Context) ([]AssigneeBreakdown, error) {
	rows := []AssigneeBreakdown{}
	err := r.db.WithContext(ctx).
		Model(&models.Task{}).
		Select("assigned_to AS user_id, status, priority, COUNT(*) AS task_count").
		Where("assigned_to IS NOT NULL").
		Group("assigned_to, status, priority").
		Scan(&rows).Error
	return rows, translate(err)
}
