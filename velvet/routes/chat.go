package routes

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"velvet/velvet/controllers"
	"velvet/velvet/middlewares"
	"velvet/velvet/utils/errs"
	"velvet/velvet/utils/logging"
	"velvet/velvet/utils/types"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ChatRoutes serves the chat API. The REST routes run under requestTimeout;
// the websocket route does not, since a stream outlives any request deadline.
func ChatRoutes(ctrl *controllers.ChatController, verifier middlewares.TokenVerifier, origins []string, requestTimeout time.Duration) chi.Router {
	r := chi.NewRouter()

	r.Group(func(gr chi.Router) {
		gr.Use(middleware.Timeout(requestTimeout))
		gr.Use(middlewares.AuthMiddleware(verifier))

		gr.Get("/", func(w http.ResponseWriter, r *http.Request) {
			userID, ok := currentUser(w, r)
			if !ok {
				return
			}
			limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
			chats, err := ctrl.ListChats(r.Context(), userID, limit)
			if err != nil {
				writeError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, chats)
		})

		gr.Post("/", func(w http.ResponseWriter, r *http.Request) {
			userID, ok := currentUser(w, r)
			if !ok {
				return
			}
			var req types.CreateChatRequest
			if r.ContentLength != 0 {
				if err := decodeJSON(r, &req); err != nil {
					writeError(w, r, err)
					return
				}
			}
			chat, err := ctrl.CreateChat(r.Context(), userID, req.Title)
			if err != nil {
				writeError(w, r, err)
				return
			}
			writeJSON(w, http.StatusCreated, chat)
		})

		gr.Get("/{chatID}", func(w http.ResponseWriter, r *http.Request) {
			userID, ok := currentUser(w, r)
			if !ok {
				return
			}
			chatID, err := pathUUID(r, "chatID")
			if err != nil {
				writeError(w, r, err)
				return
			}
			chat, err := ctrl.GetChat(r.Context(), chatID, userID)
			if err != nil {
				writeError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, chat)
		})

		gr.Patch("/{chatID}", func(w http.ResponseWriter, r *http.Request) {
			userID, ok := currentUser(w, r)
			if !ok {
				return
			}
			chatID, err := pathUUID(r, "chatID")
			if err != nil {
				writeError(w, r, err)
				return
			}
			var req types.RenameChatRequest
			if err := decodeJSON(r, &req); err != nil {
				writeError(w, r, err)
				return
			}
			chat, err := ctrl.RenameChat(r.Context(), chatID, userID, req.Title)
			if err != nil {
				writeError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, chat)
		})

		gr.Delete("/{chatID}", func(w http.ResponseWriter, r *http.Request) {
			userID, ok := currentUser(w, r)
			if !ok {
				return
			}
			chatID, err := pathUUID(r, "chatID")
			if err != nil {
				writeError(w, r, err)
				return
			}
			if err := ctrl.DeleteChat(r.Context(), chatID, userID); err != nil {
				writeError(w, r, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})

		gr.Post("/{chatID}/messages", func(w http.ResponseWriter, r *http.Request) {
			userID, ok := currentUser(w, r)
			if !ok {
				return
			}
			chatID, err := pathUUID(r, "chatID")
			if err != nil {
				writeError(w, r, err)
				return
			}
			var req types.SendMessageRequest
			if err := decodeJSON(r, &req); err != nil {
				writeError(w, r, err)
				return
			}
			// the turn completes and is stored even if the client hangs up
			res, err := ctrl.SendMessage(context.WithoutCancel(r.Context()), chatID, userID, req)
			if err != nil {
				writeError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, res)
		})
	})

	r.Get("/{chatID}/ws", streamHandler(ctrl, verifier, originPatterns(origins)))
	return r
}

// streamHandler upgrades to a websocket after authenticating (bearer header or
// token query parameter) and checking ownership. Each text frame the client
// sends is one SendMessageRequest; the reply is streamed back as chunk events
// followed by a done event carrying the turn result.
func streamHandler(ctrl *controllers.ChatController, verifier middlewares.TokenVerifier, patterns []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := middlewares.BearerToken(r)
		if !ok {
			token = r.URL.Query().Get("token")
		}
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing token"})
			return
		}
		userID, err := verifier.VerifyToken(r.Context(), token)
		if err != nil {
			writeError(w, r, err)
			return
		}
		chatID, err := pathUUID(r, "chatID")
		if err != nil {
			writeError(w, r, err)
			return
		}
		if _, err := ctrl.GetChat(r.Context(), chatID, userID); err != nil {
			writeError(w, r, err)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: patterns})
		if err != nil {
			logging.ErrorLogger.Error("Websocket accept failed", zap.Error(err))
			return
		}
		defer conn.CloseNow()

		// turns already under way are persisted even if the client leaves
		ctx := context.WithoutCancel(r.Context())
		for {
			var req types.SendMessageRequest
			if err := wsjson.Read(ctx, conn, &req); err != nil {
				if websocket.CloseStatus(err) == -1 {
					logging.AppLogger.Info("Websocket closed", zap.String("chat_id", chatID.String()), zap.Error(err))
				}
				return
			}

			turnCtx := logging.WithTrace(ctx, uuid.NewString())
			res, err := ctrl.StreamMessage(turnCtx, chatID, userID, req, func(piece string) error {
				return wsjson.Write(ctx, conn, types.StreamEvent{Type: types.EventChunk, Content: piece})
			})
			if err != nil {
				if werr := wsjson.Write(ctx, conn, types.StreamEvent{Type: types.EventError, Content: errs.Message(err)}); werr != nil {
					return
				}
				continue
			}
			if err := wsjson.Write(ctx, conn, types.StreamEvent{Type: types.EventDone, Result: res}); err != nil {
				return
			}
		}
	}
}

// originPatterns turns CORS origins into the host patterns the websocket
// origin check expects.
func originPatterns(origins []string) []string {
	var out []string
	for _, o := range origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
		} else {
			out = append(out, o)
		}
	}
	return out
}
