// velvet/sources/psql/dao/dao.chunk.go
package dao

import (
	"context"

	"velvet/velvet/sources/psql/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ChunkDAO struct {
	DB *gorm.DB
}

func NewChunkDAO(db *gorm.DB) *ChunkDAO {
	return &ChunkDAO{DB: db}
}

// ReplaceChunks swaps the stored chunks of a file for chunks.
func (dao *ChunkDAO) ReplaceChunks(ctx context.Context, fileID uuid.UUID, chunks []models.DocumentChunk) error {
	return dao.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("file_id = ?", fileID).Delete(&models.DocumentChunk{}).Error; err != nil {
			return err
		}
		if len(chunks) == 0 {
			return nil
		}
		return tx.CreateInBatches(chunks, 100).Error
	})
}

// ChunksForFiles returns the chunks of the given files that belong to userID
// and whose file is still live.
func (dao *ChunkDAO) ChunksForFiles(ctx context.Context, userID uuid.UUID, fileIDs []uuid.UUID) ([]models.DocumentChunk, error) {
	var chunks []models.DocumentChunk
	if len(fileIDs) == 0 {
		return chunks, nil
	}
	err := dao.DB.WithContext(ctx).
		Joins("JOIN uploaded_files ON uploaded_files.id = document_chunks.file_id").
		Scopes(Live("uploaded_files")).
		Where("document_chunks.user_id = ? AND document_chunks.file_id IN ?", userID, fileIDs).
		Order("document_chunks.file_id").
		Order("document_chunks.position").
		Find(&chunks).Error
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

func (dao *ChunkDAO) DeleteChunks(ctx context.Context, fileID uuid.UUID) error {
	return dao.DB.WithContext(ctx).Where("file_id = ?", fileID).Delete(&models.DocumentChunk{}).Error
}

func (dao *ChunkDAO) CountChunks(ctx context.Context) (int64, error) {
	var n int64
	err := dao.DB.WithContext(ctx).Model(&models.DocumentChunk{}).Count(&n).Error
	return n, err
}
