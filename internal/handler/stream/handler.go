package stream

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/jelajah/backend/internal/handler/httperr"
	"github.com/zhouzirui/jelajah/backend/internal/logging"
	"github.com/zhouzirui/jelajah/backend/internal/middleware"
	"github.com/zhouzirui/jelajah/backend/internal/model/chat"
	chatService "github.com/zhouzirui/jelajah/backend/internal/service/chat"
	"github.com/zhouzirui/jelajah/backend/pkg/utils"
)

// SSE event names.
const (
	EventState   = "state"
	EventMessage = "message"
	EventError   = "error"
)

// Handler streams orchestrator progress via Server-Sent Events
type Handler struct {
	orchestrator *chatService.Orchestrator
	logger       *zap.Logger
}

// New creates a new stream handler
func New(orchestrator *chatService.Orchestrator, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{orchestrator: orchestrator, logger: logger}
}

// RegisterRoutes 注册 SSE 路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream", h.handleStream)
}

// StatePayload 是 state 事件的数据
type StatePayload struct {
	State     chatService.State `json:"state"`
	SessionID string            `json:"sessionId,omitempty"`
	At        time.Time         `json:"at"`
}

// MessagePayload 是最终 message 事件的数据
type MessagePayload struct {
	Response    string    `json:"response"`
	Timestamp   time.Time `json:"timestamp"`
	SessionID   string    `json:"sessionId"`
	Suggestions []string  `json:"suggestions"`
}

// ErrorPayload 是 error 事件的数据
type ErrorPayload struct {
	Error string `json:"error"`
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFrom(r.Context())
	if !ok {
		httperr.Respond(w, r, h.logger, chat.ErrUnauthenticated)
		return
	}

	message := r.URL.Query().Get("message")
	if err := h.orchestrator.Validate(message); err != nil {
		httperr.Respond(w, r, h.logger, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, r, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	logger := logging.FromContext(r.Context(), h.logger)
	connected := true
	send := func(event string, data any) {
		if !connected {
			return
		}
		if err := utils.SendSSEEvent(w, flusher, event, data); err != nil {
			connected = false
			logger.Info("sse client went away", zap.Error(err))
		}
	}

	observer := chatService.ObserverFunc(func(t chatService.Transition) {
		send(EventState, StatePayload{State: t.State, SessionID: t.SessionID, At: t.At})
	})

	resp, err := h.orchestrator.Handle(r.Context(), chatService.Request{
		Message:   message,
		SessionID: r.URL.Query().Get("sessionId"),
		UserID:    userID,
	}, observer)
	if err != nil {
		_, clientMessage := httperr.Classify(err)
		logger.Error("stream chat failed", zap.Error(err))
		send(EventError, ErrorPayload{Error: clientMessage})
		return
	}

	send(EventMessage, MessagePayload{
		Response:    resp.Reply,
		Timestamp:   resp.Timestamp,
		SessionID:   resp.SessionID,
		Suggestions: resp.Suggestions,
	})
}
