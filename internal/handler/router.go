package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/taskboard/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	SessionVerifier   middleware.SessionVerifier
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	GeneralLimiter    middleware.Limiter // セッションユーザー単位
	AuthLimiter       middleware.Limiter // クライアントIP単位
	Metrics           RouterMetrics

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// ボード・タスク
	BoardService BoardServiceInterface

	// ヘルスチェック・メトリクス
	Store          Pinger
	MetricsHandler http.Handler
}

// RouterMetrics はルーターが記録するメトリクス。
type RouterMetrics interface {
	middleware.HTTPRecorder
	middleware.RateLimitRecorder
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Logging → Recovery → SecurityHeaders → CORS → Metrics
//	  認証ルート: RateLimit(Auth, IP単位)
//	  保護ルート: Session → CSRF → RateLimit(General, ユーザー単位)
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	if deps.Metrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	boardHandler := NewBoardHandler(deps.BoardService)

	// --- 認証不要のルート ---

	r.Get("/health", NewHealthHandler(deps.Store))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	r.Route("/api/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewRateLimitMiddleware(deps.AuthLimiter, middleware.LimitTypeAuth, middleware.ClientIPKey, deps.Metrics))
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
		})
		r.Post("/logout", authHandler.Logout)

		r.With(middleware.NewSessionMiddleware(deps.SessionVerifier)).Get("/me", authHandler.Me())
	})

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionVerifier))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(middleware.NewRateLimitMiddleware(deps.GeneralLimiter, middleware.LimitTypeGeneral, middleware.UserKey, deps.Metrics))

		r.Route("/api/boards", func(r chi.Router) {
			r.Get("/", boardHandler.ListBoards())
			r.Post("/", boardHandler.CreateBoard())

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", boardHandler.GetBoard())
				r.Delete("/", boardHandler.DeleteBoard())

				r.Get("/tasks", boardHandler.ListTasks())
				r.Post("/tasks", boardHandler.CreateTask())
				r.Put("/tasks/{taskId}", boardHandler.UpdateTask())
				r.Patch("/tasks/{taskId}", boardHandler.ToggleTask())
				r.Delete("/tasks/{taskId}", boardHandler.DeleteTask())
			})
		})
	})

	return r
}
