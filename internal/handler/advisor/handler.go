package advisor

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/fin-advisor/backend/internal/model/chat"
	"github.com/zhouzirui/fin-advisor/backend/internal/model/profile"
	advisorservice "github.com/zhouzirui/fin-advisor/backend/internal/service/advisor"
	"github.com/zhouzirui/fin-advisor/backend/pkg/utils"
)

// maxHistory caps the turns a client may send with one request.
const maxHistory = 50

// Replier produces one advisory reply per user turn.
type Replier interface {
	Reply(ctx context.Context, history []chat.Message, text string) advisorservice.Reply
}

// Handler advisor服务的HTTP处理器
type Handler struct {
	replier  Replier
	profiles profile.Store
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// New 创建advisor处理器
func New(replier Replier, profiles profile.Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		replier:  replier,
		profiles: profiles,
		logger:   logger.Named("advisor-http"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册advisor相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/advisor", func(r chi.Router) {
		r.Get("/profiles", h.handleListProfiles)
		r.Post("/reply", h.handleReply)
		r.Get("/ws", h.handleWebSocket)
	})
}

type replyRequest struct {
	Text    string         `json:"text"`
	History []chat.Message `json:"history"`
}

func (h *Handler) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.profiles.List())
}

// handleReply answers one turn. Model failures still return 200 with the
// fallback text so the widget never shows an empty bot turn.
func (h *Handler) handleReply(w http.ResponseWriter, r *http.Request) {
	var payload replyRequest
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if strings.TrimSpace(payload.Text) == "" {
		utils.RespondError(w, http.StatusBadRequest, "text is required")
		return
	}

	utils.RespondJSON(w, http.StatusOK, h.replier.Reply(r.Context(), trimHistory(payload.History), payload.Text))
}

func trimHistory(history []chat.Message) []chat.Message {
	if len(history) > maxHistory {
		return history[len(history)-maxHistory:]
	}
	return history
}
