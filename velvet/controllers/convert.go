package controllers

import (
	"velvet/velvet/sources/psql/dao"
	"velvet/velvet/sources/psql/models"
	"velvet/velvet/utils/jsonutils"
	"velvet/velvet/utils/types"
)

func toMessage(m models.Message) types.Message {
	return types.Message{
		ID:        m.ID,
		ChatID:    m.ChatID,
		Content:   m.Content,
		Role:      types.Role(m.Role),
		Timestamp: m.Timestamp,
		Metadata:  jsonutils.ToMap(m.Metadata),
	}
}

func toMessages(ms []models.Message) []types.Message {
	out := make([]types.Message, len(ms))
	for i, m := range ms {
		out[i] = toMessage(m)
	}
	return out
}

func toChat(c models.Chat, count int64) types.Chat {
	return types.Chat{
		ID:           c.ID,
		Title:        c.Title,
		UserID:       c.UserID,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
		MessageCount: count,
	}
}

func toSummaries(rows []dao.ChatWithCount) []types.ChatSummary {
	out := make([]types.ChatSummary, len(rows))
	for i, r := range rows {
		out[i] = toChat(r.Chat, r.MessageCount)
	}
	return out
}

func toProfile(u models.User) types.UserProfile {
	return types.UserProfile{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		AvatarURL:   u.AvatarURL,
		Preferences: jsonutils.ToMap(u.Preferences),
	}
}
