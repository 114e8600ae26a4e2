package session

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	chatService "github.com/zhouzirui/chargate/internal/service/chat"
	"github.com/zhouzirui/chargate/pkg/utils"
)

// Handler 处理会话管理与非流式对话相关的 HTTP 请求
type Handler struct {
	chatSvc *chatService.Service
}

// New 创建会话处理器
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// RegisterRoutes 注册会话相关路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions", h.handleListSessions)
	r.Post("/sessions", h.handleCreateSession)
	r.Delete("/sessions/{sessionID}", h.handleCloseSession)
	r.Post("/sessions/{sessionID}/messages", h.handleSendMessage)
}

// MessageRequest 发送消息的请求体
type MessageRequest struct {
	Message string `json:"message"`
}

// DecodeMessage 解析并校验消息请求体，失败时已写回错误响应
func DecodeMessage(w http.ResponseWriter, r *http.Request) (string, bool) {
	var payload MessageRequest
	if err := utils.DecodeJSON(r, &payload); err != nil {
		respondDecodeError(w, err)
		return "", false
	}
	if len(payload.Message) < 1 {
		utils.RespondError(w, http.StatusUnprocessableEntity, "message must be at least 1 character")
		return "", false
	}
	return payload.Message, true
}

// respondDecodeError 语法错误返回 400，字段类型不匹配按校验失败返回 422
func respondDecodeError(w http.ResponseWriter, err error) {
	if field, ok := utils.FieldTypeError(err); ok {
		if field == "" {
			utils.RespondError(w, http.StatusUnprocessableEntity, "request body has the wrong type")
			return
		}
		utils.RespondError(w, http.StatusUnprocessableEntity, fmt.Sprintf("field '%s' has the wrong type", field))
		return
	}
	utils.RespondError(w, http.StatusBadRequest, "invalid request body")
}

// NotFoundMessage 会话不存在时的错误信息
func NotFoundMessage(sessionID string) string {
	return fmt.Sprintf("Session '%s' not found.", sessionID)
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.chatSvc.ListSessions())
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		CharacterID *string `json:"character_id"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		respondDecodeError(w, err)
		return
	}

	characterID := ""
	if payload.CharacterID != nil {
		characterID = *payload.CharacterID
	}

	opened, err := h.chatSvc.OpenSession(r.Context(), characterID)
	if err != nil {
		log.Printf("[session] create failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, capitalize(err.Error()))
		return
	}

	utils.RespondJSON(w, http.StatusCreated, opened)
}

func (h *Handler) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := h.chatSvc.CloseSession(r.Context(), sessionID); err != nil {
		if errors.Is(err, chatService.ErrSessionNotFound) {
			utils.RespondError(w, http.StatusNotFound, NotFoundMessage(sessionID))
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"status":     "closed",
		"session_id": sessionID,
	})
}

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	message, ok := DecodeMessage(w, r)
	if !ok {
		return
	}

	reply, err := h.chatSvc.SendMessage(r.Context(), sessionID, message)
	switch {
	case err == nil:
		utils.RespondJSON(w, http.StatusOK, reply)
	case errors.Is(err, chatService.ErrSessionNotFound):
		utils.RespondError(w, http.StatusNotFound, NotFoundMessage(sessionID))
	case errors.Is(err, chatService.ErrSessionGone):
		utils.RespondError(w, http.StatusGone, "Session has been closed.")
	case errors.Is(err, chatService.ErrNoResponse):
		utils.RespondError(w, http.StatusBadGateway, "No response received from character.")
	default:
		log.Printf("[session] send failed session=%s: %v", sessionID, err)
		utils.RespondError(w, http.StatusInternalServerError, capitalize(err.Error()))
	}
}

func capitalize(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
