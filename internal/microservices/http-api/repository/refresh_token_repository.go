package repository

import (
	"context"
	"time"

	"meetrix/internal/microservices/http-api/models"

	"gorm.io/gorm"
)

// RefreshTokenRepository stores the opaque half of a login session
type RefreshTokenRepository interface {
	Create(refreshToken *models.RefreshToken) error
	FindByToken(tokenString string) (*models.RefreshToken, error)
	Revoke(tokenID string) error
	Delete(tokenID string) error
	// Purge drops tokens that can no longer be exchanged and returns how many went
	Purge(ctx context.Context, now time.Time) (int64, error)
}

type refreshTokenRepository struct {
	db *gorm.DB
}

func NewRefreshTokenRepository(db *gorm.DB) RefreshTokenRepository {
	return &refreshTokenRepository{db: db}
}

func (r *refreshTokenRepository) Create(refreshToken *models.RefreshToken) error {
	return r.db.Create(refreshToken).Error
}

func (r *refreshTokenRepository) FindByToken(tokenString string) (*models.RefreshToken, error) {
	var session models.RefreshToken
	if err := r.db.Take(&session, "token = ?", tokenString).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

// Revoke is a no-op for unknown ids
func (r *refreshTokenRepository) Revoke(tokenID string) error {
	return r.db.Model(&models.RefreshToken{ID: tokenID}).
		Where("revoked = ?", false).
		Update("revoked", true).Error
}

func (r *refreshTokenRepository) Delete(tokenID string) error {
	return r.db.Delete(&models.RefreshToken{ID: tokenID}).Error
}

func (r *refreshTokenRepository) Purge(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("revoked OR expires_at <= ?", now).
		Delete(&models.RefreshToken{})
	return result.RowsAffected, result.Error
}
