package chat

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/fin-advisor/backend/internal/model/chat"
	chatService "github.com/zhouzirui/fin-advisor/backend/internal/service/chat"
	"github.com/zhouzirui/fin-advisor/backend/pkg/utils"
)

// Handler 会话存储的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
	logger  *zap.Logger
}

// New 创建会话处理器
func New(chatSvc *chatService.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{chatSvc: chatSvc, logger: logger.Named("conversations-http")}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/conversations", func(r chi.Router) {
		r.Get("/", h.handleListConversations)
		r.Route("/{conversationID}", func(r chi.Router) {
			r.Delete("/", h.handleDeleteConversation)
			r.Get("/messages", h.handleListMessages)
			r.Post("/messages", h.handleSaveMessage)
		})
	})
}

type saveMessageRequest struct {
	Email   string       `json:"email"`
	Message chat.Message `json:"message"`
}

// handleSaveMessage 保存消息
func (h *Handler) handleSaveMessage(w http.ResponseWriter, r *http.Request) {
	var payload saveMessageRequest
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	saved, err := h.chatSvc.SaveMessage(r.Context(), payload.Email, chi.URLParam(r, "conversationID"), payload.Message)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusAccepted, saved)
}

func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := h.chatSvc.Transcript(r.Context(), r.URL.Query().Get("email"), chi.URLParam(r, "conversationID"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, messages)
}

func (h *Handler) handleListConversations(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.chatSvc.ListConversations(r.Context(), r.URL.Query().Get("email"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, summaries)
}

func (h *Handler) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := h.chatSvc.DeleteConversation(r.Context(), r.URL.Query().Get("email"), chi.URLParam(r, "conversationID")); err != nil {
		h.respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case chatService.IsValidationError(err):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chatService.ErrConversationNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	default:
		h.logger.Error("conversation store failure", zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "conversation store unavailable")
	}
}
