package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/chargate/internal/handler/persona"
	"github.com/zhouzirui/chargate/internal/handler/session"
	"github.com/zhouzirui/chargate/internal/handler/stream"
	middlewarePkg "github.com/zhouzirui/chargate/internal/middleware"
	personaModel "github.com/zhouzirui/chargate/internal/model/persona"
	chatService "github.com/zhouzirui/chargate/internal/service/chat"
	"github.com/zhouzirui/chargate/pkg/utils"
)

// NewRouter wires HTTP routes to the chat service. personas may be nil when
// the backend has no local character list.
func NewRouter(chatSvc *chatService.Service, personas personaModel.Store) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/", handleHealth)

	session.New(chatSvc).RegisterRoutes(r)
	stream.New(chatSvc).RegisterRoutes(r)

	if personas != nil {
		persona.New(personas).RegisterRoutes(r)
	}

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "Character.AI Chat API is running 🚀",
		"docs":    "/docs",
	})
}
