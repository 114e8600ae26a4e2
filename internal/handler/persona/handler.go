package persona

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/chargate/internal/model/persona"
	"github.com/zhouzirui/chargate/pkg/utils"
)

// Handler 提供本地后端可扮演角色的查询接口
type Handler struct {
	personas persona.Store
}

// New 创建角色处理器
func New(personas persona.Store) *Handler {
	return &Handler{personas: personas}
}

// RegisterRoutes 注册角色相关路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/characters", h.handleListCharacters)
	r.Get("/characters/{characterID}", h.handleGetCharacter)
}

func (h *Handler) handleListCharacters(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.personas.List())
}

func (h *Handler) handleGetCharacter(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "characterID")
	p, ok := h.personas.FindByID(id)
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "character not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, p)
}
