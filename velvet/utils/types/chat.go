// velvet/utils/types/chat.go
package types

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

type Chat struct {
	ID           uuid.UUID `json:"id"`
	Title        string    `json:"title"`
	UserID       uuid.UUID `json:"user_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int64     `json:"message_count"`
}

// ChatSummary is one row of the chat list panel.
type ChatSummary = Chat

type ChatWithMessages struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	UserID    uuid.UUID `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Messages  []Message `json:"messages"`
}

type Message struct {
	ID        uuid.UUID      `json:"id"`
	ChatID    uuid.UUID      `json:"chat_id"`
	Content   string         `json:"content"`
	Role      Role           `json:"role"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata"`
}

type CreateChatRequest struct {
	Title string `json:"title"`
}

type RenameChatRequest struct {
	Title string `json:"title"`
}

type SendMessageRequest struct {
	Content           string   `json:"content"`
	FileIDs           []string `json:"file_ids,omitempty"`
	IncludeBCRPData   bool     `json:"include_bcrp_data,omitempty"`
	ContextPreference string   `json:"context_preference,omitempty"`
}

type TurnResult struct {
	UserMessage      Message `json:"user_message"`
	AssistantMessage Message `json:"assistant_message"`
	ContextUsed      bool    `json:"context_used"`
	BCRPDataUsed     bool    `json:"bcrp_data_used"`
	ProcessingTime   float64 `json:"processing_time"`
}

// StreamEvent is one frame written to the chat websocket.
type StreamEvent struct {
	Type    string      `json:"type"` // chunk | done | error
	Content string      `json:"content,omitempty"`
	Result  *TurnResult `json:"result,omitempty"`
}

const (
	EventChunk = "chunk"
	EventDone  = "done"
	EventError = "error"
)
