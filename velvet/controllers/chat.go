// velvet/controllers/chat.go
package controllers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"velvet/velvet/services/llm"
	"velvet/velvet/sources/psql/dao"
	"velvet/velvet/sources/psql/models"
	"velvet/velvet/utils/errs"
	"velvet/velvet/utils/jsonutils"
	"velvet/velvet/utils/logging"
	"velvet/velvet/utils/types"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	DefaultChatTitle     = "New Chat"
	maxTitleLength       = 200
	maxContentLength     = 50000
	defaultListLimit     = 50
	maxListLimit         = 200
	defaultHistoryLimit  = 20
	DefaultHistoryWindow = 10
)

// Retriever supplies document context for the files attached to a message.
type Retriever interface {
	ContextForQuery(ctx context.Context, userID uuid.UUID, query string, fileIDs []string) (string, error)
}

// StatsProvider supplies economic series as prompt context.
type StatsProvider interface {
	SeriesContext(ctx context.Context) (string, error)
}

type ChatController struct {
	chatDAO       *dao.ChatDAO
	messageDAO    *dao.MessageDAO
	generator     llm.Generator
	retriever     Retriever
	stats         StatsProvider
	historyWindow int
}

// NewChatController wires the chat service. retriever and stats may be nil.
func NewChatController(db *gorm.DB, generator llm.Generator, retriever Retriever, stats StatsProvider, historyWindow int) *ChatController {
	if historyWindow <= 0 {
		historyWindow = DefaultHistoryWindow
	}
	return &ChatController{
		chatDAO:       dao.NewChatDAO(db),
		messageDAO:    dao.NewMessageDAO(db),
		generator:     generator,
		retriever:     retriever,
		stats:         stats,
		historyWindow: historyWindow,
	}
}

// normalizeTitle trims the title, substitutes the default for a blank one and
// enforces the length limit.
func normalizeTitle(op, title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return DefaultChatTitle, nil
	}
	if err := validation.Validate(title, validation.RuneLength(1, maxTitleLength)); err != nil {
		return "", errs.InvalidArgument(op, fmt.Sprintf("title must be at most %d characters", maxTitleLength))
	}
	return title, nil
}

func (c *ChatController) CreateChat(ctx context.Context, ownerID uuid.UUID, title string) (*types.Chat, error) {
	const op = "chat.create"
	defer logging.LogDuration(ctx, "chat_create")()

	title, err := normalizeTitle(op, title)
	if err != nil {
		return nil, err
	}
	chat := &models.Chat{Title: title, UserID: ownerID, Metadata: jsonutils.FromMap(nil)}
	if err := c.chatDAO.CreateChat(ctx, chat); err != nil {
		logging.ErrorLogger.Error("Create chat failed", zap.String("user_id", ownerID.String()), zap.Error(err))
		return nil, errs.Unavailable(op, err)
	}
	out := toChat(*chat, 0)
	return &out, nil
}

func (c *ChatController) ListChats(ctx context.Context, ownerID uuid.UUID, limit int) ([]types.ChatSummary, error) {
	const op = "chat.list"
	defer logging.LogDuration(ctx, "chat_list")()

	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	rows, err := c.chatDAO.ListChats(ctx, ownerID, limit)
	if err != nil {
		logging.ErrorLogger.Error("List chats failed", zap.String("user_id", ownerID.String()), zap.Error(err))
		return nil, errs.Unavailable(op, err)
	}
	return toSummaries(rows), nil
}

// GetChat returns the chat with its live messages. A missing, deleted or
// foreign chat is reported the same way: NotFound.
func (c *ChatController) GetChat(ctx context.Context, chatID, ownerID uuid.UUID) (*types.ChatWithMessages, error) {
	const op = "chat.get"
	defer logging.LogDuration(ctx, "chat_get")()

	chat, err := c.chatDAO.GetChat(ctx, chatID, ownerID)
	if err != nil {
		return nil, errs.Unavailable(op, err)
	}
	if chat == nil {
		return nil, errs.NotFound(op, "chat not found")
	}
	msgs, err := c.messageDAO.ListMessages(ctx, chatID)
	if err != nil {
		return nil, errs.Unavailable(op, err)
	}
	return &types.ChatWithMessages{
		ID:        chat.ID,
		Title:     chat.Title,
		UserID:    chat.UserID,
		CreatedAt: chat.CreatedAt,
		UpdatedAt: chat.UpdatedAt,
		Messages:  toMessages(msgs),
	}, nil
}

type appendInput struct {
	Content string `json:"content"`
	Role    string `json:"role"`
}

// AppendMessage validates before touching storage, then inserts the message
// and advances the chat's activity atomically.
func (c *ChatController) AppendMessage(ctx context.Context, chatID, ownerID uuid.UUID, content string, role types.Role, metadata map[string]any) (*types.Message, error) {
	const op = "chat.append_message"

	in := appendInput{Content: strings.TrimSpace(content), Role: string(role)}
	err := validation.ValidateStruct(&in,
		validation.Field(&in.Content, validation.Required, validation.RuneLength(1, maxContentLength)),
		validation.Field(&in.Role,
			validation.Required,
			validation.In(string(types.RoleUser), string(types.RoleAssistant), string(types.RoleSystem)),
		),
	)
	if err != nil {
		return nil, errs.InvalidArgument(op, err.Error())
	}

	msg := &models.Message{Content: content, Role: in.Role, Metadata: jsonutils.FromMap(metadata)}
	saved, err := c.messageDAO.AppendMessage(ctx, chatID, ownerID, msg)
	if err != nil {
		logging.ErrorLogger.Error("Append message failed", zap.String("chat_id", chatID.String()), zap.Error(err))
		return nil, errs.Unavailable(op, err)
	}
	if saved == nil {
		return nil, errs.NotFound(op, "chat not found")
	}
	out := toMessage(*saved)
	return &out, nil
}

// GetHistory returns the newest limit messages, oldest first. Callers are
// expected to have checked ownership already.
func (c *ChatController) GetHistory(ctx context.Context, chatID uuid.UUID, limit int) ([]types.Message, error) {
	const op = "chat.history"
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	msgs, err := c.messageDAO.GetHistory(ctx, chatID, limit)
	if err != nil {
		return nil, errs.Unavailable(op, err)
	}
	return toMessages(msgs), nil
}

func (c *ChatController) RenameChat(ctx context.Context, chatID, ownerID uuid.UUID, title string) (*types.Chat, error) {
	const op = "chat.rename"

	title, err := normalizeTitle(op, title)
	if err != nil {
		return nil, err
	}
	chat, err := c.chatDAO.RenameChat(ctx, chatID, ownerID, title)
	if err != nil {
		return nil, errs.Unavailable(op, err)
	}
	if chat == nil {
		return nil, errs.NotFound(op, "chat not found")
	}
	out := toChat(*chat, 0)
	return &out, nil
}

func (c *ChatController) DeleteChat(ctx context.Context, chatID, ownerID uuid.UUID) error {
	const op = "chat.delete"

	ok, err := c.chatDAO.SoftDeleteChat(ctx, chatID, ownerID)
	if err != nil {
		return errs.Unavailable(op, err)
	}
	if !ok {
		return errs.NotFound(op, "chat not found")
	}
	logging.AppLogger.Info("Chat deleted", zap.String("chat_id", chatID.String()))
	return nil
}

// turn carries what the first half of a conversation turn gathered.
type turn struct {
	start    time.Time
	user     *types.Message
	history  []llm.Message
	context  string
	ragUsed  bool
	bcrpUsed bool
}

// beginTurn persists the user message and gathers history and context.
// Retrieval and statistics failures are logged and leave the context empty.
func (c *ChatController) beginTurn(ctx context.Context, chatID, ownerID uuid.UUID, req types.SendMessageRequest) (*turn, error) {
	t := &turn{start: time.Now()}

	fileIDs := req.FileIDs
	if fileIDs == nil {
		fileIDs = []string{}
	}
	userMsg, err := c.AppendMessage(ctx, chatID, ownerID, req.Content, types.RoleUser, map[string]any{
		"file_ids":          fileIDs,
		"include_bcrp_data": req.IncludeBCRPData,
	})
	if err != nil {
		return nil, err
	}
	t.user = userMsg

	history, err := c.GetHistory(ctx, chatID, c.historyWindow)
	if err != nil {
		return nil, err
	}
	for _, h := range history {
		if h.ID == userMsg.ID {
			continue
		}
		t.history = append(t.history, llm.Message{Role: string(h.Role), Content: h.Content})
	}

	var parts []string
	if len(req.FileIDs) > 0 && c.retriever != nil {
		docCtx, err := c.retriever.ContextForQuery(ctx, ownerID, req.Content, req.FileIDs)
		if err != nil {
			logging.ErrorLogger.Error("Retrieval failed, continuing without context",
				zap.String("chat_id", chatID.String()), zap.Error(err))
		} else if docCtx != "" {
			parts = append(parts, docCtx)
			t.ragUsed = true
		}
	}
	if req.IncludeBCRPData && c.stats != nil {
		statsCtx, err := c.stats.SeriesContext(ctx)
		if err != nil {
			logging.ErrorLogger.Error("BCRP data unavailable, continuing without it",
				zap.String("chat_id", chatID.String()), zap.Error(err))
		} else if statsCtx != "" {
			parts = append(parts, statsCtx)
			t.bcrpUsed = true
		}
	}
	t.context = strings.Join(parts, "\n\n")
	return t, nil
}

// finishTurn persists the assistant reply and assembles the result. A
// truncated reply is a stream that broke after producing some text.
func (c *ChatController) finishTurn(ctx context.Context, chatID, ownerID uuid.UUID, t *turn, reply string, fallback, truncated bool) (*types.TurnResult, error) {
	meta := map[string]any{
		"context_used":   t.ragUsed,
		"bcrp_data_used": t.bcrpUsed,
	}
	if fallback {
		meta["fallback"] = true
	}
	if truncated {
		meta["truncated"] = true
	}
	assistant, err := c.AppendMessage(ctx, chatID, ownerID, reply, types.RoleAssistant, meta)
	if err != nil {
		return nil, err
	}
	return &types.TurnResult{
		UserMessage:      *t.user,
		AssistantMessage: *assistant,
		ContextUsed:      t.ragUsed,
		BCRPDataUsed:     t.bcrpUsed,
		ProcessingTime:   time.Since(t.start).Seconds(),
	}, nil
}

// SendMessage runs one conversation turn. A failing or timed-out generator
// does not fail the turn: the fallback notice is stored as the reply.
func (c *ChatController) SendMessage(ctx context.Context, chatID, ownerID uuid.UUID, req types.SendMessageRequest) (*types.TurnResult, error) {
	defer logging.LogDuration(ctx, "chat_send_message")()

	t, err := c.beginTurn(ctx, chatID, ownerID, req)
	if err != nil {
		return nil, err
	}

	fallback := false
	reply, err := c.generator.Generate(ctx, llm.GenerateRequest{
		Message: req.Content,
		History: t.history,
		Context: t.context,
	})
	if err != nil {
		logging.ErrorLogger.Error("Generation failed, storing fallback reply",
			zap.String("chat_id", chatID.String()), zap.Error(err))
		reply, fallback = llm.FallbackNotice, true
	}
	return c.finishTurn(ctx, chatID, ownerID, t, reply, fallback, false)
}

// StreamMessage runs the same turn as SendMessage but pushes reply pieces to
// onChunk as they arrive. If onChunk fails (the client went away) the reply
// is still collected and persisted.
func (c *ChatController) StreamMessage(ctx context.Context, chatID, ownerID uuid.UUID, req types.SendMessageRequest, onChunk func(string) error) (*types.TurnResult, error) {
	defer logging.LogDuration(ctx, "chat_stream_message")()

	t, err := c.beginTurn(ctx, chatID, ownerID, req)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	var sendErr error
	emit := func(piece string) {
		sb.WriteString(piece)
		if sendErr == nil {
			sendErr = onChunk(piece)
		}
	}

	ch, err := c.generator.GenerateStream(ctx, llm.GenerateRequest{
		Message: req.Content,
		History: t.history,
		Context: t.context,
	})
	var streamErr error
	if err != nil {
		logging.ErrorLogger.Error("Generation stream failed to start",
			zap.String("chat_id", chatID.String()), zap.Error(err))
	} else {
		for piece := range ch {
			if piece.Err != nil {
				streamErr = piece.Err
				break
			}
			emit(piece.Text)
		}
		// the client stops sending on cancellation without a final chunk
		if streamErr == nil {
			streamErr = ctx.Err()
		}
	}

	fallback, truncated := false, false
	if strings.TrimSpace(sb.String()) == "" {
		fallback = true
		sb.Reset()
		emit(llm.FallbackNotice)
	} else if streamErr != nil {
		truncated = true
		logging.ErrorLogger.Error("Generation stream cut off, storing partial reply",
			zap.String("chat_id", chatID.String()), zap.Error(streamErr))
	}
	if sendErr != nil {
		logging.AppLogger.Info("Stream client went away, reply still saved",
			zap.String("chat_id", chatID.String()), zap.Error(sendErr))
	}
	return c.finishTurn(ctx, chatID, ownerID, t, sb.String(), fallback, truncated)
}
