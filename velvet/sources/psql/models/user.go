// velvet/sources/psql/models/user.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type User struct {
	ID           uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	Email        string         `json:"email" gorm:"type:varchar(255);not null;uniqueIndex"`
	PasswordHash string         `json:"-" gorm:"type:varchar(255);not null"`
	Name         string         `json:"name" gorm:"type:varchar(100);not null"`
	AvatarURL    *string        `json:"avatar_url,omitempty" gorm:"type:varchar(512)"`
	Preferences  datatypes.JSON `json:"preferences" gorm:"type:jsonb"`
	CreatedAt    time.Time      `json:"created_at" gorm:"not null"`
	UpdatedAt    time.Time      `json:"updated_at" gorm:"not null"`
	IsActive     bool           `json:"is_active" gorm:"not null;default:true"`
}

func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
