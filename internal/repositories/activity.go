package repositories

import (
	"context"

	"flowtrack/backend/internal/models"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

type gormActivityRepository struct {
	db *gorm.DB
}

func (r *gormActivityRepository) Append(ctx context.Context, userID uuid.UUID, action string) error {
	entry := models.ActivityLog{UserID: userID, Action: action}
	return translate(r.db.WithContext(ctx).Create(&entry).Error)
}

func (r *gormActivityRepository) ListByUser(ctx context.Context, userID uuid.UUID, page Page) ([]models.ActivityLog, error) {
	page = page.normalize()
	logs := []models.ActivityLog{}
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Offset(page.Skip).
		Limit(page.Limit).
		Find(&logs).Error
	return logs, translate(err)
}

type gormTokenRepository struct {
	db *gorm.DB
}

func (r *gormTokenRepository) Create(ctx context.Context, token *models.Token) error {
	return translate(r.db.WithContext(ctx).Create(token).Error)
}

func (r *gormTokenRepository) FindByRefreshToken(ctx context.Context, refreshToken string) (*models.Token, error) {
	var token models.Token
	if err := r.db.WithContext(ctx).Where("refresh_token = ?", refreshToken).First(&token).Error; err != nil {
		return nil, translate(err)
	}
	return &token, nil
}

func (r *gormTokenRepository) Delete(ctx context.Context, refreshToken string) error {
	return translate(r.db.WithContext(ctx).Where("refresh_token = ?", refreshToken).Delete(&models.Token{}).Error)
}

func (r *gormTokenRepository) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	return translate(r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.Token{}).Error)
}
