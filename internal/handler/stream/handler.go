package stream

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/chargate/internal/handler/session"
	"github.com/zhouzirui/chargate/internal/model/chat"
	chatService "github.com/zhouzirui/chargate/internal/service/chat"
	"github.com/zhouzirui/chargate/pkg/utils"
)

// doneSentinel terminates a successful stream.
var doneSentinel = []byte("[DONE]")

// Handler relays streamed character replies via Server-Sent Events.
type Handler struct {
	chatSvc *chatService.Service
}

// New creates a stream handler.
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// RegisterRoutes mounts the streaming route on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/sessions/{sessionID}/messages/stream", h.handleStream)
}

// ErrorEvent is the payload of the terminal error event.
type ErrorEvent struct {
	Error string `json:"error"`
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	message, ok := session.DecodeMessage(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sink := &sseSink{w: w, flusher: flusher}
	err := h.chatSvc.StreamMessage(r.Context(), sessionID, message, sink)
	switch {
	case err == nil:
		log.Printf("[stream] completed session=%s", sessionID)
	case errors.Is(err, chatService.ErrSessionNotFound) && !sink.started:
		utils.RespondError(w, http.StatusNotFound, session.NotFoundMessage(sessionID))
	case errors.Is(err, context.Canceled):
	default:
		log.Printf("[stream] relay stopped session=%s: %v", sessionID, err)
	}
}

// sseSink writes relay events as SSE. Headers go out with the first event
// so that lookup failures can still become plain HTTP errors.
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func (s *sseSink) begin() {
	if s.started {
		return
	}
	s.started = true
	utils.SetupSSEHeaders(s.w)
	s.w.WriteHeader(http.StatusOK)
}

func (s *sseSink) Send(reply chat.Reply) error {
	s.begin()
	return utils.SendSSEChunk(s.w, s.flusher, reply)
}

func (s *sseSink) Done() error {
	s.begin()
	return utils.WriteSSEData(s.w, s.flusher, doneSentinel)
}

func (s *sseSink) Fail(message string) error {
	s.begin()
	return utils.SendSSEChunk(s.w, s.flusher, ErrorEvent{Error: message})
}
