package ws

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/jelajah/backend/internal/handler/httperr"
	"github.com/zhouzirui/jelajah/backend/internal/logging"
	"github.com/zhouzirui/jelajah/backend/internal/middleware"
	"github.com/zhouzirui/jelajah/backend/internal/model/chat"
	chatService "github.com/zhouzirui/jelajah/backend/internal/service/chat"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second
)

// Outbound frame types.
const (
	TypeConnected = "connected"
	TypeResponse  = "response"
	TypeError     = "error"
)

// Handler WebSocket 聊天处理器
type Handler struct {
	orchestrator *chatService.Orchestrator
	logger       *zap.Logger
	upgrader     websocket.Upgrader
}

// New 创建WebSocket处理器；allowedOrigins 为空或包含 "*" 时不校验来源
func New(orchestrator *chatService.Orchestrator, logger *zap.Logger, allowedOrigins []string) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		orchestrator: orchestrator,
		logger:       logger,
		upgrader: websocket.Upgrader{
			CheckOrigin:     originChecker(allowedOrigins),
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
}

// InboundMessage 客户端发送的消息
type InboundMessage struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId,omitempty"`
}

// OutboundMessage 服务端推送的消息
type OutboundMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// ResponseData 是 response 帧的数据
type ResponseData struct {
	Response    string    `json:"response"`
	Timestamp   time.Time `json:"timestamp"`
	Suggestions []string  `json:"suggestions"`
}

// connection 串行化写操作；gorilla 的连接不支持并发写
type connection struct {
	conn      *websocket.Conn
	mu        sync.Mutex
	userID    string
	sessionID string
}

func (c *connection) send(msg OutboundMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg.Timestamp = time.Now().Unix()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(msg)
}

// handleWebSocket 处理WebSocket连接
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFrom(r.Context())
	if !ok {
		httperr.Respond(w, r, h.logger, chat.ErrUnauthenticated)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	logger := logging.FromContext(ctx, h.logger).With(zap.String("user_id", userID))

	c := &connection{
		conn:      conn,
		userID:    userID,
		sessionID: r.URL.Query().Get("sessionId"),
	}

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	go pingLoop(ctx, conn)

	if err := c.send(OutboundMessage{Type: TypeConnected, SessionID: c.sessionID}); err != nil {
		return
	}
	logger.Info("websocket connected")

	for {
		var msg InboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		if err := h.handleMessage(ctx, logger, c, msg); err != nil {
			logger.Info("websocket write failed", zap.Error(err))
			return
		}
	}
}

// handleMessage 处理一条聊天消息；连接会记住上一次使用的 sessionId
func (h *Handler) handleMessage(ctx context.Context, logger *zap.Logger, c *connection, msg InboundMessage) error {
	if strings.TrimSpace(msg.SessionID) != "" {
		c.sessionID = msg.SessionID
	}

	resp, err := h.orchestrator.Handle(ctx, chatService.Request{
		Message:   msg.Message,
		SessionID: c.sessionID,
		UserID:    c.userID,
	})
	if err != nil {
		_, clientMessage := httperr.Classify(err)
		if !chat.IsValidation(err) {
			logger.Error("websocket chat failed", zap.Error(err))
		}
		return c.send(OutboundMessage{
			Type:      TypeError,
			SessionID: c.sessionID,
			Data:      map[string]string{"error": clientMessage},
		})
	}

	c.sessionID = resp.SessionID
	return c.send(OutboundMessage{
		Type:      TypeResponse,
		SessionID: resp.SessionID,
		Data: ResponseData{
			Response:    resp.Reply,
			Timestamp:   resp.Timestamp,
			Suggestions: resp.Suggestions,
		},
	})
}

// pingLoop 定期发送ping消息；WriteControl 可与其他写操作并发调用
func pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
	}
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}

	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[strings.TrimRight(origin, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[strings.TrimRight(origin, "/")]
		return ok
	}
}
