// velvet/sources/psql/dao/dao.user.go
package dao

import (
	"context"
	"errors"

	"velvet/velvet/sources/psql/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UserDAO struct {
	DB *gorm.DB
}

func NewUserDAO(db *gorm.DB) *UserDAO {
	return &UserDAO{DB: db}
}

func (dao *UserDAO) CreateUser(ctx context.Context, user *models.User) error {
	now := Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	user.IsActive = true
	return dao.DB.WithContext(ctx).Create(user).Error
}

// GetUserByID returns nil, nil when no such user exists.
func (dao *UserDAO) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := dao.DB.WithContext(ctx).First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByEmail expects an already lowercased address.
func (dao *UserDAO) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := dao.DB.WithContext(ctx).First(&user, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (dao *UserDAO) UpdateUser(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	updates["updated_at"] = Now()
	return dao.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(updates).Error
}

// TouchUser records a login.
func (dao *UserDAO) TouchUser(ctx context.Context, id uuid.UUID) error {
	return dao.UpdateUser(ctx, id, map[string]interface{}{})
}
