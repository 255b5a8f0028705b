package repository

import (
	"context"
	"strings"

	"meetrix/internal/microservices/http-api/models"

	"gorm.io/gorm"
)

// UserRepository loads the principals that own notifications
type UserRepository interface {
	Create(user *models.User) error
	FindByUsername(username string) (*models.User, error)
	FindByID(id string) (*models.User, error)
	FindByEmail(email string) (*models.User, error)
	// FindActiveByID skips deactivated principals
	FindActiveByID(ctx context.Context, id string) (*models.User, error)
}

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// Create stores the email lower-cased so lookups are case-insensitive
func (r *userRepository) Create(user *models.User) error {
	// unique indexes on username and email reject duplicates even if the service check raced
	user.Email = normalizeEmail(user.Email)
	return r.db.Create(user).Error
}

func (r *userRepository) FindByUsername(username string) (*models.User, error) {
	return takeUser(r.db, "username = ?", username)
}

func (r *userRepository) FindByID(id string) (*models.User, error) {
	return takeUser(r.db, "id = ?", id)
}

func (r *userRepository) FindByEmail(email string) (*models.User, error) {
	return takeUser(r.db, "email = ?", normalizeEmail(email))
}

func (r *userRepository) FindActiveByID(ctx context.Context, id string) (*models.User, error) {
	// .WithContext(ctx) so a dropped websocket handshake cancels the query
	// deactivated users still have a row, the deactivated_at check filters them out
	return takeUser(r.db.WithContext(ctx), "id = ? AND deactivated_at IS NULL", id)
}

// takeUser never hands back a zero-value user alongside an error
func takeUser(db *gorm.DB, cond string, arg any) (*models.User, error) {
	var user models.User
	// Take instead of First: no ORDER BY, we only ever match one row
	if err := db.Take(&user, cond, arg).Error; err != nil {
		// return nil with the error (gorm.ErrRecordNotFound when missing)
		// callers check err first, a half-filled user would look like a match
		return nil, err
	}
	return &user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
