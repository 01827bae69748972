package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/fin-advisor/backend/internal/handler/advisor"
	"github.com/zhouzirui/fin-advisor/backend/internal/handler/chat"
	"github.com/zhouzirui/fin-advisor/backend/internal/handler/user"
	middlewarePkg "github.com/zhouzirui/fin-advisor/backend/internal/middleware"
	"github.com/zhouzirui/fin-advisor/backend/internal/model/profile"
	chatService "github.com/zhouzirui/fin-advisor/backend/internal/service/chat"
	userService "github.com/zhouzirui/fin-advisor/backend/internal/service/user"
	"github.com/zhouzirui/fin-advisor/backend/pkg/utils"
)

// Services groups what the HTTP layer needs.
type Services struct {
	Profiles profile.Store
	Advisor  advisor.Replier
	Chat     *chatService.Service
	Users    *userService.Service
	// AdvisorEnabled reports whether a real model backs the advisor.
	AdvisorEnabled bool
}

// NewRouter wires HTTP routes to core services.
func NewRouter(svc Services, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.Logger(logger.Named("http")))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	started := time.Now()

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]any{
				"status":  "ok",
				"advisor": svc.AdvisorEnabled,
				"uptime":  time.Since(started).Round(time.Second).String(),
			})
		})

		advisor.New(svc.Advisor, svc.Profiles, logger).RegisterRoutes(api)
		chat.New(svc.Chat, logger).RegisterRoutes(api)
		user.New(svc.Users, logger).RegisterRoutes(api)
	})

	return r
}
