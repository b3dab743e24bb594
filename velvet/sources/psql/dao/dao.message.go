// velvet/sources/psql/dao/dao.message.go
package dao

import (
	"context"
	"errors"

	"velvet/velvet/sources/psql/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var errChatGone = errors.New("chat not found")

type MessageDAO struct {
	DB *gorm.DB
}

func NewMessageDAO(db *gorm.DB) *MessageDAO {
	return &MessageDAO{DB: db}
}

// AppendMessage inserts msg into the owner's live chat and advances the chat's
// activity in one transaction. The chat row is locked so concurrent appends
// get distinct, increasing seq values. The timestamp is clamped to the chat's
// current updated_at so it never goes backwards.
//
// Returns nil, nil when the chat is not visible to ownerID.
func (dao *MessageDAO) AppendMessage(ctx context.Context, chatID, ownerID uuid.UUID, msg *models.Message) (*models.Message, error) {
	err := dao.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var chat models.Chat
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Scopes(Live("chats")).
			Where("id = ? AND user_id = ?", chatID, ownerID).
			First(&chat).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errChatGone
		}
		if err != nil {
			return err
		}

		ts := Now()
		if ts.Before(chat.UpdatedAt) {
			ts = chat.UpdatedAt
		}
		msg.ChatID = chat.ID
		msg.Timestamp = ts
		msg.Seq = chat.LastSeq + 1
		if err := tx.Omit(clause.Associations).Create(msg).Error; err != nil {
			return err
		}
		return tx.Model(&models.Chat{}).
			Where("id = ?", chat.ID).
			Updates(map[string]interface{}{"updated_at": ts, "last_seq": msg.Seq}).Error
	})
	if errors.Is(err, errChatGone) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// ListMessages returns every live message of the chat in display order.
func (dao *MessageDAO) ListMessages(ctx context.Context, chatID uuid.UUID) ([]models.Message, error) {
	var msgs []models.Message
	err := dao.DB.WithContext(ctx).
		Scopes(Live("messages")).
		Where("chat_id = ?", chatID).
		Order("timestamp ASC").
		Order("seq ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

// GetHistory returns the newest limit live messages, oldest first.
func (dao *MessageDAO) GetHistory(ctx context.Context, chatID uuid.UUID, limit int) ([]models.Message, error) {
	var msgs []models.Message
	err := dao.DB.WithContext(ctx).
		Scopes(Live("messages")).
		Where("chat_id = ?", chatID).
		Order("timestamp DESC").
		Order("seq DESC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}
