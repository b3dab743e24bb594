// velvet/sources/psql/models/chat.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Chat timestamps are managed by the DAO: updated_at tracks the last message,
// not the last row write, so gorm's automatic stamping is off.
type Chat struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	Title     string         `json:"title" gorm:"type:varchar(200);not null;default:'New Chat'"`
	UserID    uuid.UUID      `json:"user_id" gorm:"type:uuid;not null;index:idx_chats_user_activity,priority:1"`
	User      User           `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time      `json:"created_at" gorm:"not null;autoCreateTime:false"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"not null;autoUpdateTime:false;index:idx_chats_user_activity,priority:2"`
	IsDeleted bool           `json:"is_deleted" gorm:"not null;default:false"`
	Metadata  datatypes.JSON `json:"metadata" gorm:"type:jsonb"`
	LastSeq   int64          `json:"-" gorm:"not null;default:0"`
}

func (c *Chat) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

type Message struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	ChatID    uuid.UUID      `json:"chat_id" gorm:"type:uuid;not null;index:idx_messages_chat_order,priority:1"`
	Chat      Chat           `json:"-" gorm:"foreignKey:ChatID;references:ID;constraint:OnDelete:CASCADE"`
	Content   string         `json:"content" gorm:"type:text;not null"`
	Role      string         `json:"role" gorm:"type:varchar(20);not null;check:chk_messages_role,role IN ('user','assistant','system')"`
	Timestamp time.Time      `json:"timestamp" gorm:"not null;index:idx_messages_chat_order,priority:2"`
	Seq       int64          `json:"seq" gorm:"not null;index:idx_messages_chat_order,priority:3"`
	Metadata  datatypes.JSON `json:"metadata" gorm:"type:jsonb"`
	IsDeleted bool           `json:"is_deleted" gorm:"not null;default:false"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) (err error) {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
