// velvet/sources/psql/dao/dao.file.go
package dao

import (
	"context"
	"errors"

	"velvet/velvet/sources/psql/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type FileDAO struct {
	DB *gorm.DB
}

func NewFileDAO(db *gorm.DB) *FileDAO {
	return &FileDAO{DB: db}
}

func (dao *FileDAO) CreateFile(ctx context.Context, file *models.UploadedFile) error {
	return dao.DB.WithContext(ctx).Omit("User").Create(file).Error
}

// GetFile returns nil, nil when the file is missing, deleted or not owned by userID.
func (dao *FileDAO) GetFile(ctx context.Context, fileID, userID uuid.UUID) (*models.UploadedFile, error) {
	var file models.UploadedFile
	err := dao.DB.WithContext(ctx).
		Scopes(Live("uploaded_files")).
		Where("id = ? AND user_id = ?", fileID, userID).
		First(&file).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &file, nil
}

func (dao *FileDAO) ListFilesByUser(ctx context.Context, userID uuid.UUID) ([]models.UploadedFile, error) {
	var files []models.UploadedFile
	err := dao.DB.WithContext(ctx).
		Scopes(Live("uploaded_files")).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Find(&files).Error
	if err != nil {
		return nil, err
	}
	return files, nil
}

func (dao *FileDAO) UpdateStatus(ctx context.Context, fileID uuid.UUID, status string) error {
	return dao.DB.WithContext(ctx).Model(&models.UploadedFile{}).Where("id = ?", fileID).Update("status", status).Error
}

func (dao *FileDAO) SoftDeleteFile(ctx context.Context, fileID, userID uuid.UUID) (bool, error) {
	res := dao.DB.WithContext(ctx).
		Model(&models.UploadedFile{}).
		Scopes(Live("uploaded_files")).
		Where("id = ? AND user_id = ?", fileID, userID).
		Update("is_deleted", true)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
