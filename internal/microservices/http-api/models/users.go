package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Roles a principal can hold
const (
	RoleUser      = "user"
	RoleOrganizer = "organizer"
	RoleAdmin     = "admin"
)

type User struct {
	ID            string     `gorm:"primaryKey;type:uuid" json:"id"`
	Username      string     `gorm:"uniqueIndex;not null" json:"username"`
	Email         string     `gorm:"uniqueIndex;not null" json:"email"`
	Password      string     `gorm:"column:password_hash;not null" json:"-"` // Not show in JSON
	Role          string     `gorm:"default:'user';not null" json:"role"`
	DeactivatedAt *time.Time `gorm:"index" json:"deactivated_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	LastLogin     *time.Time `json:"last_login,omitempty"`
}

// BeforeCreate hook to set UUID before creating a User
func (user *User) BeforeCreate(tx *gorm.DB) (err error) {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	return
}

// IsActive reports whether the account may still authenticate
func (user *User) IsActive() bool {
	return user.DeactivatedAt == nil
}

func (User) TableName() string {
	return "users"
}
