package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/shipman/internal/metrics"
	"github.com/hitoshi/shipman/internal/middleware"
)

// DBPinger はヘルスチェックが必要とするDB疎通確認のインターフェース。
type DBPinger interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig
	Logger            *slog.Logger
	Collector         metrics.MetricsCollector
	MetricsHandler    http.Handler

	// 連携
	LinkService LinkServiceInterface
	LinkConfig  LinkHandlerConfig

	// ユーザー参照
	UserFinder UserFinder

	// ヘルスチェック
	DB DBPinger
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Logging → CORS → [Session → CSRF → RateLimit(General)]
//
// リダイレクトコールバック（/auth/mercado/callback）とヘルスチェックは
// 認証ミドルウェアチェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.Collector))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	linkHandler := NewLinkHandler(deps.LinkService, deps.SessionFinder, deps.LinkConfig)
	meHandler := NewMeHandler(deps.UserFinder)

	// --- 認証不要のルート ---

	// ヘルスチェック
	r.Get("/health", NewHealthHandler(deps.DB))

	// Mercado Livreからのブラウザリダイレクトコールバック。
	// 401をJSONで返すセッションミドルウェアの外に置き、セッションの
	// 解決と失敗時のリダイレクト応答はハンドラー内で行う。
	r.Get("/auth/mercado/callback", linkHandler.RedirectCallback)

	// CSRFトークン取得
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	// Prometheusスクレイプ
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → CSRF → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// GET /api/me - 現在のログインユーザー情報
		r.Get("/api/me", meHandler.Me)

		r.Route("/api/marketplace", func(r chi.Router) {
			// POST /api/marketplace/link - 連携開始（開始専用レート制限を追加）
			r.With(deps.RateLimiter.LinkStartMiddleware()).Post("/link", linkHandler.BeginLink)

			// POST /api/marketplace/exchange - SPA主導の交換型コールバック
			r.Post("/exchange", linkHandler.Exchange)

			// GET /api/marketplace/accounts - 連携アカウント一覧
			r.Get("/accounts", linkHandler.ListAccounts)
		})
	})

	return r
}

// NewHealthHandler はDB疎通を確認するヘルスチェックハンドラーを返す。
// GET /health
func NewHealthHandler(db DBPinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			slog.Error("health check failed", slog.String("error", err.Error()))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "unhealthy",
			})
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"status": "ok",
		})
	}
}
