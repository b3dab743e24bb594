// velvet/sources/psql/models/file.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	FileStatusProcessed = "processed"
	FileStatusFailed    = "failed"
)

type UploadedFile struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	UserID      uuid.UUID `json:"user_id" gorm:"type:uuid;not null;index"`
	User        User      `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE"`
	Filename    string    `json:"filename" gorm:"type:varchar(255);not null"`
	ContentType string    `json:"content_type" gorm:"type:varchar(255);not null"`
	FileType    string    `json:"file_type" gorm:"type:varchar(20);not null"`
	SizeBytes   int64     `json:"size_bytes" gorm:"not null"`
	StorageKey  string    `json:"storage_key" gorm:"type:varchar(512)"`
	Status      string    `json:"status" gorm:"type:varchar(20);not null"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
	IsDeleted   bool      `json:"is_deleted" gorm:"not null;default:false"`
}

func (f *UploadedFile) BeforeCreate(tx *gorm.DB) (err error) {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}

// DocumentChunk is one word window of an uploaded file's extracted text.
type DocumentChunk struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	FileID    uuid.UUID `json:"file_id" gorm:"type:uuid;not null;index:idx_chunks_file_pos,priority:1"`
	UserID    uuid.UUID `json:"user_id" gorm:"type:uuid;not null;index"`
	Position  int       `json:"position" gorm:"not null;index:idx_chunks_file_pos,priority:2"`
	Content   string    `json:"content" gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (c *DocumentChunk) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
