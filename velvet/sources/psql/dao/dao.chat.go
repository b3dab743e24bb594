// velvet/sources/psql/dao/dao.chat.go
package dao

import (
	"context"
	"errors"

	"velvet/velvet/sources/psql/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ChatDAO struct {
	DB *gorm.DB
}

func NewChatDAO(db *gorm.DB) *ChatDAO {
	return &ChatDAO{DB: db}
}

// ChatWithCount is a chat plus the number of its live messages.
type ChatWithCount struct {
	models.Chat
	MessageCount int64
}

type chatCount struct {
	ChatID uuid.UUID
	N      int64
}

// CreateChat stamps created_at and updated_at with the same instant.
func (dao *ChatDAO) CreateChat(ctx context.Context, chat *models.Chat) error {
	now := Now()
	chat.CreatedAt = now
	chat.UpdatedAt = now
	return dao.DB.WithContext(ctx).Create(chat).Error
}

// GetChat returns nil, nil when the chat is missing, soft-deleted or owned by
// someone else.
func (dao *ChatDAO) GetChat(ctx context.Context, chatID, ownerID uuid.UUID) (*models.Chat, error) {
	var chat models.Chat
	err := dao.DB.WithContext(ctx).
		Scopes(Live("chats")).
		Where("id = ? AND user_id = ?", chatID, ownerID).
		First(&chat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

// ListChats returns the owner's live chats, most recently active first.
func (dao *ChatDAO) ListChats(ctx context.Context, ownerID uuid.UUID, limit int) ([]ChatWithCount, error) {
	var chats []models.Chat
	err := dao.DB.WithContext(ctx).
		Scopes(Live("chats")).
		Where("user_id = ?", ownerID).
		Order("updated_at DESC").
		Order("id ASC").
		Limit(limit).
		Find(&chats).Error
	if err != nil {
		return nil, err
	}
	if len(chats) == 0 {
		return []ChatWithCount{}, nil
	}

	ids := make([]uuid.UUID, len(chats))
	for i, c := range chats {
		ids[i] = c.ID
	}
	var counts []chatCount
	err = dao.DB.WithContext(ctx).
		Model(&models.Message{}).
		Select("chat_id, COUNT(*) AS n").
		Scopes(Live("messages")).
		Where("chat_id IN ?", ids).
		Group("chat_id").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	byChat := make(map[uuid.UUID]int64, len(counts))
	for _, c := range counts {
		byChat[c.ChatID] = c.N
	}

	out := make([]ChatWithCount, len(chats))
	for i, c := range chats {
		out[i] = ChatWithCount{Chat: c, MessageCount: byChat[c.ID]}
	}
	return out, nil
}

// RenameChat changes the title without touching updated_at. Returns nil, nil
// when the chat is not visible to ownerID.
func (dao *ChatDAO) RenameChat(ctx context.Context, chatID, ownerID uuid.UUID, title string) (*models.Chat, error) {
	res := dao.DB.WithContext(ctx).
		Model(&models.Chat{}).
		Scopes(Live("chats")).
		Where("id = ? AND user_id = ?", chatID, ownerID).
		Update("title", title)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return dao.GetChat(ctx, chatID, ownerID)
}

// SoftDeleteChat flags the chat deleted. The row and its messages stay.
func (dao *ChatDAO) SoftDeleteChat(ctx context.Context, chatID, ownerID uuid.UUID) (bool, error) {
	res := dao.DB.WithContext(ctx).
		Model(&models.Chat{}).
		Scopes(Live("chats")).
		Where("id = ? AND user_id = ?", chatID, ownerID).
		Update("is_deleted", true)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
