package handler

import (
	"net/http"

	"gptme-server/internal/domain"
	"gptme-server/internal/middleware"
	"gptme-server/internal/service"
	"gptme-server/pkg/response"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type ChatHandler struct {
	chatService *service.ChatService
	validate    *validator.Validate
	logger      *zap.Logger
}

func NewChatHandler(chatService *service.ChatService, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		validate:    validator.New(),
		logger:      logger,
	}
}

func (h *ChatHandler) NewSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.chatService.CreateSession(r.Context(), middleware.GetUserID(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.Success(w, &domain.NewSessionResponse{
		SessionID: session.ID,
		Title:     session.Title,
	})
}

func (h *ChatHandler) GenerateTitle(w http.ResponseWriter, r *http.Request) {
	var req domain.GenerateTitleRequest
	if !decode(w, r, h.validate, &req) {
		return
	}

	title, err := h.chatService.GenerateTitle(r.Context(), middleware.GetUserID(r), &req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.Success(w, map[string]string{"title": title})
}

func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req domain.ChatRequest
	if !decode(w, r, h.validate, &req) {
		return
	}

	reply, err := h.chatService.AppendTurn(r.Context(), middleware.GetUserID(r), &req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.Success(w, &domain.ChatResponse{Response: reply})
}

func (h *ChatHandler) GenerateEssay(w http.ResponseWriter, r *http.Request) {
	var req domain.GenerateEssayRequest
	if !decodeWith(w, r, h.validate, &req, response.Fail) {
		return
	}

	article, err := h.chatService.GenerateEssay(r.Context(), middleware.GetUserID(r), &req)
	if err != nil {
		writeErrorWith(w, h.logger, err, response.Fail)
		return
	}

	response.Success(w, &domain.EssayResponse{
		Success:   true,
		Essay:     article.Content,
		ArticleID: article.ID,
	})
}

func (h *ChatHandler) SessionMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := h.chatService.ListMessages(r.Context(), middleware.GetUserID(r), mux.Vars(r)["session_id"])
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	out := make([]domain.MessageResponse, 0, len(messages))
	for _, m := range messages {
		out = append(out, domain.MessageResponse{
			Role:      m.Role,
			Content:   m.Content,
			IsEssay:   m.IsEssay,
			CreatedAt: m.CreatedAt,
		})
	}

	response.Success(w, map[string]interface{}{"messages": out})
}

func (h *ChatHandler) UserSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.chatService.ListSessions(r.Context(), middleware.GetUserID(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	out := make([]domain.SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, domain.SessionResponse{
			ID:        s.ID,
			Title:     s.Title,
			CreatedAt: s.CreatedAt,
		})
	}

	response.Success(w, map[string]interface{}{"sessions": out})
}

func (h *ChatHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.chatService.DeleteSession(r.Context(), middleware.GetUserID(r), mux.Vars(r)["session_id"]); err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.Success(w, response.Response{Success: true})
}
