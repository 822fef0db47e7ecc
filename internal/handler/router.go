package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/zhouzirui/jelajah/backend/internal/config"
	"github.com/zhouzirui/jelajah/backend/internal/handler/chat"
	"github.com/zhouzirui/jelajah/backend/internal/handler/stream"
	"github.com/zhouzirui/jelajah/backend/internal/handler/ws"
	"github.com/zhouzirui/jelajah/backend/internal/logging"
	"github.com/zhouzirui/jelajah/backend/internal/metrics"
	middlewarePkg "github.com/zhouzirui/jelajah/backend/internal/middleware"
	chatService "github.com/zhouzirui/jelajah/backend/internal/service/chat"
	"github.com/zhouzirui/jelajah/backend/pkg/utils"
)

// Dependencies 汇总路由需要的服务。
type Dependencies struct {
	Config       *config.Config
	Orchestrator *chatService.Orchestrator
	Lifecycle    *chatService.Lifecycle
	Logger       *zap.Logger
	Metrics      *metrics.Metrics
	Gatherer     prometheus.Gatherer
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := deps.Config

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(logger, deps.Metrics))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	chatHandler := chat.New(deps.Orchestrator, deps.Lifecycle, cfg.Chat, logger)
	streamHandler := stream.New(deps.Orchestrator, logger)
	wsHandler := ws.New(deps.Orchestrator, logger, cfg.Server.CORSOrigins)

	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Lifecycle.Ready(r.Context()); err != nil {
			logging.FromContext(r.Context(), logger).Warn("readiness check failed", zap.Error(err))
			utils.RespondError(w, r, http.StatusServiceUnavailable, "storage unavailable")
			return
		}
		utils.RespondSuccess(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	r.Route("/chat", func(cr chi.Router) {
		// 存活探针无需鉴权
		chatHandler.RegisterPublicRoutes(cr)

		cr.Group(func(authed chi.Router) {
			authed.Use(middlewarePkg.Auth(cfg.Auth))

			authed.Group(func(rest chi.Router) {
				rest.Use(middleware.Timeout(cfg.Server.RequestTimeout))
				chatHandler.RegisterRoutes(rest)
			})

			// 长连接不套用请求超时
			streamHandler.RegisterRoutes(authed)
			wsHandler.RegisterRoutes(authed)
		})
	})

	return r
}
