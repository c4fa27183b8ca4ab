package repositories

import (
	"context"
	"strings"

	"flowtrack/backend/internal/models"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type gormProjectRepository struct {
	db *gorm.DB
}

func (r *gormProjectRepository) Create(ctx context.Context, project *models.Project) error {
	return translate(r.db.WithContext(ctx).Omit(clause.Associations).Create(project).Error)
}

func (r *gormProjectRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	var project models.Project
	if err := r.db.WithContext(ctx).Preload("Members").First(&project, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &project, nil
}

func (r *gormProjectRepository) scoped(ctx context.Context, filter ProjectFilter) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&models.Project{})

	if !filter.AllProjects {
		members := r.db.Table("project_members").Select("project_id").Where("user_id = ?", filter.MemberID)
		query = query.Where("projects.id IN (?)", members)
	}
	if filter.Status != nil {
		query = query.Where("projects.status = ?", *filter.Status)
	}
	if name := strings.TrimSpace(filter.Name); name != "" {
		query = query.Where("LOWER(projects.name) LIKE ?", "%"+strings.ToLower(name)+"%")
	}
	return query
}

func (r *gormProjectRepository) List(ctx context.Context, filter ProjectFilter) ([]models.Project, error) {
	page := filter.Page.normalize()
	projects := []models.Project{}
	err := r.scoped(ctx, filter).
		Preload("Members").
		Order("projects.created_at DESC").
		Offset(page.Skip).
		Limit(page.Limit).
		Find(&projects).Error
	return projects, translate(err)
}

func (r *gormProjectRepository) Count(ctx context.Context, filter ProjectFilter) (int64, error) {
	var n int64
	err := r.scoped(ctx, filter).Count(&n).Error
	return n, translate(err)
}

func (r *gormProjectRepository) Update(ctx context.Context, project *models.Project) error {
	return translate(r.db.WithContext(ctx).Omit(clause.Associations).Save(project).Error)
}

func (r *gormProjectRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return translate(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("project_id = ?", id).Delete(&models.Task{}).Error; err != nil {
			return err
		}
		if err := tx.Where("project_id = ?", id).Delete(&models.ProjectMember{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Project{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	}))
}

// AddMember is a no-op when the membership already exists.
func (r *gormProjectRepository) AddMember(ctx context.Context, projectID, userID uuid.UUID) error {
	member := models.ProjectMember{ProjectID: projectID, UserID: userID}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&member).Error
	return translate(err)
}

// RemoveMember is a no-op when the user is not a member.
func (r *gormProjectRepository) RemoveMember(ctx context.Context, projectID, userID uuid.UUID) error {
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		Delete(&models.ProjectMember{}).Error
	return translate(err)
}

func (r *gormProjectRepository) IsMember(ctx context.Context, projectID, userID uuid.UUID) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.ProjectMember{}).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		Count(&n).Error
	return n > 0, translate(err)
}

func (r *gormProjectRepository) Members(ctx context.Context, projectID uuid.UUID) ([]models.User, error) {
	users := []models.User{}
	err := r.db.WithContext(ctx).
		Joins("JOIN project_members ON project_members.user_id = users.id").
		Where("project_members.project_id = ?", projectID).
		Order("users.name ASC").
		Find(&users).Error
	return users, translate(err)
}
