package chat

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/jelajah/backend/internal/config"
	"github.com/zhouzirui/jelajah/backend/internal/handler/httperr"
	"github.com/zhouzirui/jelajah/backend/internal/middleware"
	"github.com/zhouzirui/jelajah/backend/internal/model/chat"
	chatService "github.com/zhouzirui/jelajah/backend/internal/service/chat"
	"github.com/zhouzirui/jelajah/backend/pkg/utils"
)

// Handler 聊天服务的HTTP处理器
type Handler struct {
	orchestrator *chatService.Orchestrator
	lifecycle    *chatService.Lifecycle
	cfg          config.ChatConfig
	logger       *zap.Logger
}

// New 创建聊天处理器
func New(orchestrator *chatService.Orchestrator, lifecycle *chatService.Lifecycle, cfg config.ChatConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultPageSize < 1 {
		cfg.DefaultPageSize = 20
	}
	if cfg.MaxPageSize < cfg.DefaultPageSize {
		cfg.MaxPageSize = cfg.DefaultPageSize
	}
	return &Handler{
		orchestrator: orchestrator,
		lifecycle:    lifecycle,
		cfg:          cfg,
		logger:       logger,
	}
}

// RegisterPublicRoutes 注册无需鉴权的路由（存活探针）
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/health", h.handleHealth)
}

// RegisterRoutes 注册需要鉴权的聊天路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.handleChat)
	r.Get("/history", h.handleHistory)
	r.Get("/suggestions", h.handleSuggestions)
	r.Delete("/clear", h.handleClear)
	r.Get("/stats", h.handleStats)
}

type historyPart struct {
	Text string `json:"text"`
}

type historyEntry struct {
	Role  string        `json:"role"`
	Parts []historyPart `json:"parts"`
}

type chatRequest struct {
	Message   string         `json:"message"`
	SessionID string         `json:"sessionId,omitempty"`
	History   []historyEntry `json:"history,omitempty"`
}

type chatResponse struct {
	Response    string    `json:"response"`
	Timestamp   time.Time `json:"timestamp"`
	SessionID   string    `json:"sessionId"`
	Suggestions []string  `json:"suggestions"`
}

// handleChat 处理一条用户消息并返回模型回复
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFrom(r.Context())
	if !ok {
		httperr.Respond(w, r, h.logger, chat.ErrUnauthenticated)
		return
	}

	var payload chatRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.orchestrator.Handle(r.Context(), chatService.Request{
		Message:   payload.Message,
		SessionID: payload.SessionID,
		UserID:    userID,
		History:   toContext(payload.History),
	})
	if err != nil {
		httperr.Respond(w, r, h.logger, err)
		return
	}

	utils.RespondSuccess(w, http.StatusOK, chatResponse{
		Response:    resp.Reply,
		Timestamp:   resp.Timestamp,
		SessionID:   resp.SessionID,
		Suggestions: resp.Suggestions,
	})
}

// toContext 把请求中的 {role, parts:[{text}]} 历史转换为上下文消息
func toContext(entries []historyEntry) []chat.ContextMessage {
	if len(entries) == 0 {
		return nil
	}
	messages := make([]chat.ContextMessage, 0, len(entries))
	for _, entry := range entries {
		texts := make([]string, 0, len(entry.Parts))
		for _, part := range entry.Parts {
			if part.Text != "" {
				texts = append(texts, part.Text)
			}
		}
		messages = append(messages, chat.ContextMessage{Role: entry.Role, Text: strings.Join(texts, "\n")})
	}
	return messages
}

type historyItem struct {
	ID        string    `json:"id"`
	Role      chat.Role `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"sessionId"`
}

type pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
	HasNext    bool  `json:"hasNext"`
	HasPrev    bool  `json:"hasPrev"`
}

type historyResponse struct {
	History    []historyItem `json:"history"`
	Pagination pagination    `json:"pagination"`
}

// handleHistory 分页返回会话历史；未指定 sessionId 时返回当前用户的全部记录
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFrom(r.Context())
	if !ok {
		httperr.Respond(w, r, h.logger, chat.ErrUnauthenticated)
		return
	}

	page, err := positiveInt(r, "page", 1)
	if err != nil {
		httperr.Respond(w, r, h.logger, err)
		return
	}
	limit, err := positiveInt(r, "limit", h.cfg.DefaultPageSize)
	if err != nil {
		httperr.Respond(w, r, h.logger, err)
		return
	}
	if limit > h.cfg.MaxPageSize {
		limit = h.cfg.MaxPageSize
	}

	result, err := h.lifecycle.History(r.Context(), chatService.HistoryQuery{
		SessionID: r.URL.Query().Get("sessionId"),
		UserID:    userID,
		Page:      page,
		Limit:     limit,
	})
	if err != nil {
		httperr.Respond(w, r, h.logger, err)
		return
	}

	items := make([]historyItem, 0, len(result.Turns))
	for _, turn := range result.Turns {
		items = append(items, historyItem{
			ID:        turn.ID,
			Role:      turn.Role,
			Content:   turn.Text,
			Timestamp: turn.Timestamp,
			SessionID: turn.SessionID,
		})
	}

	totalPages := result.TotalPages()
	utils.RespondSuccess(w, http.StatusOK, historyResponse{
		History: items,
		Pagination: pagination{
			Page:       result.Page,
			Limit:      result.Limit,
			Total:      result.Total,
			TotalPages: totalPages,
			HasNext:    result.Page < totalPages,
			HasPrev:    result.Page > 1,
		},
	})
}

// handleSuggestions 返回基于最近一条消息的建议问题
func (h *Handler) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	utils.RespondSuccess(w, http.StatusOK, map[string]any{
		"suggestions": h.lifecycle.Suggestions(r.Context(), sessionID),
		"sessionId":   sessionID,
	})
}

// handleClear 清空会话
func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	deleted, err := h.lifecycle.Clear(r.Context(), sessionID)
	if err != nil {
		httperr.Respond(w, r, h.logger, err)
		return
	}

	utils.RespondSuccess(w, http.StatusOK, map[string]any{
		"deletedCount": deleted,
		"sessionId":    sessionID,
	})
}

// handleHealth 探测生成服务，不访问存储
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	utils.RespondSuccess(w, http.StatusOK, h.lifecycle.Health(r.Context()))
}

// handleStats 返回当前用户的统计数据；uptime 单位为秒，averageResponseTime 单位为毫秒
func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFrom(r.Context())
	if !ok {
		httperr.Respond(w, r, h.logger, chat.ErrUnauthenticated)
		return
	}

	stats, err := h.lifecycle.Stats(r.Context(), userID)
	if err != nil {
		httperr.Respond(w, r, h.logger, err)
		return
	}

	utils.RespondSuccess(w, http.StatusOK, map[string]any{
		"totalChats":          stats.TotalChats,
		"totalSessions":       stats.TotalSessions,
		"averageResponseTime": stats.AverageResponseTime,
		"uptime":              int64(stats.Uptime.Seconds()),
	})
}

func positiveInt(r *http.Request, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, chat.NewValidationError(name, name+" must be a positive integer")
	}
	return n, nil
}
