// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/hitoshi/shipman/internal/middleware"
	"github.com/hitoshi/shipman/internal/model"
)

// sessionCookieName はマネージド認証基盤が発行するセッションCookie名。
const sessionCookieName = "session_id"

// LinkServiceInterface は連携ハンドラーが必要とするサービスインターフェース。
type LinkServiceInterface interface {
	// BeginLink は連携フローを開始し、認可画面URLを返す。
	BeginLink(ctx context.Context, ownerUserID string) (string, error)
	// CompleteExchange はSPA主導の交換フローを完了する。
	CompleteExchange(ctx context.Context, ownerUserID, code, state string) (*model.LinkedAccount, error)
	// CompleteRedirect はブラウザリダイレクト型のコールバックを完了する。
	CompleteRedirect(ctx context.Context, ownerUserID, code, state string) (*model.LinkedAccount, error)
	// ListAccounts はユーザーの連携アカウント一覧を返す。
	ListAccounts(ctx context.Context, ownerUserID string) ([]*model.LinkedAccount, error)
}

// LinkHandlerConfig は連携ハンドラーの設定。
type LinkHandlerConfig struct {
	// BaseURL はリダイレクトコールバック完了後の戻り先フロントエンドURL。
	BaseURL string
}

// LinkHandler はMercado Livreアカウント連携のHTTPハンドラー。
type LinkHandler struct {
	service  LinkServiceInterface
	sessions middleware.SessionFinder
	config   LinkHandlerConfig
}

// NewLinkHandler はLinkHandlerを生成する。
// sessionsはリダイレクトコールバックでの所有者解決に使用する
// （この経路はセッションミドルウェアの外に配置されるため）。
func NewLinkHandler(service LinkServiceInterface, sessions middleware.SessionFinder, config LinkHandlerConfig) *LinkHandler {
	return &LinkHandler{
		service:  service,
		sessions: sessions,
		config:   config,
	}
}

// exchangeRequest は交換型コールバックのリクエストボディ。
type exchangeRequest struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

// beginLinkResponse は連携開始のAPIレスポンス。
type beginLinkResponse struct {
	AuthorizationURL string `json:"authorization_url"`
}

// linkedAccountResponse は連携アカウント情報のAPIレスポンス。
// アクセストークン・リフレッシュトークンは決して含めない。
type linkedAccountResponse struct {
	ID        string `json:"id"`
	MLUserID  string `json:"ml_user_id"`
	SiteID    string `json:"site_id"`
	Nickname  string `json:"nickname"`
	ExpiresAt string `json:"expires_at"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// BeginLink は連携フローを開始し、Mercado Livre認可画面のURLを返す。
// POST /api/marketplace/link
func (h *LinkHandler) BeginLink(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewAuthenticationError())
		return
	}

	authURL, err := h.service.BeginLink(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(beginLinkResponse{
		AuthorizationURL: authURL,
	})
}

// Exchange はSPA主導の交換型コールバックを処理する。
// POST /api/marketplace/exchange
// stateは認証済み呼び出し元の身元に対して検証される。
func (h *LinkHandler) Exchange(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewAuthenticationError())
		return
	}

	var req exchangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	account, err := h.service.CompleteExchange(r.Context(), userID, req.Code, req.State)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	// 成功応答にはトークンを含めず、非機微なプロフィール情報のみ返す
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"nickname": account.Nickname,
		"site_id":  account.SiteID,
	})
}

// RedirectCallback はブラウザリダイレクト型のコールバックを処理する。
// GET /auth/mercado/callback?code=xxx&state=yyy
// リダイレクトは連携を開始したユーザーのブラウザに着地するため、
// 同伴するセッションCookieから所有者（ダッシュボードユーザー）を解決する。
// 失敗の種別によらず、結果は常にフロントエンドへの302リダイレクトに畳み込む。
// クエリ文字列のcodeをログに残さないため、エラー時もログは種別のみを記録する。
func (h *LinkHandler) RedirectCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")

	ownerUserID := h.resolveSessionUser(r)

	_, err := h.service.CompleteRedirect(r.Context(), ownerUserID, code, state)
	if err != nil {
		apiErr := toAPIError(err)
		slog.Warn("redirect callback failed",
			slog.String("code", apiErr.Code),
		)
		h.redirectWithError(w, r, apiErr.Message)
		return
	}

	http.Redirect(w, r, h.config.BaseURL+"/dashboard?ml_connected=true", http.StatusFound)
}

// ListAccounts は認証済みユーザーの連携アカウント一覧を返す。
// GET /api/marketplace/accounts
func (h *LinkHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewAuthenticationError())
		return
	}

	accounts, err := h.service.ListAccounts(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	responses := make([]linkedAccountResponse, 0, len(accounts))
	for _, a := range accounts {
		responses = append(responses, toLinkedAccountResponse(a))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"accounts": responses,
	})
}

// resolveSessionUser はセッションCookieから認証済みユーザーIDを解決する。
// セッションが無い・無効な場合は空文字を返す（エラー応答はサービス層に委ねる）。
func (h *LinkHandler) resolveSessionUser(r *http.Request) string {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return ""
	}

	session, err := h.sessions.FindByID(r.Context(), cookie.Value)
	if err != nil {
		slog.Error("failed to find session for redirect callback",
			slog.String("error", err.Error()),
		)
		return ""
	}
	if session == nil {
		return ""
	}
	return session.UserID
}

// redirectWithError はエラーメッセージ付きでフロントエンドへリダイレクトする。
func (h *LinkHandler) redirectWithError(w http.ResponseWriter, r *http.Request, message string) {
	target := h.config.BaseURL + "/dashboard?ml_error=" + url.QueryEscape(message)
	http.Redirect(w, r, target, http.StatusFound)
}

// toLinkedAccountResponse はモデルをAPIレスポンスに変換する。
// トークン類は意図的に落とす。
func toLinkedAccountResponse(a *model.LinkedAccount) linkedAccountResponse {
	return linkedAccountResponse{
		ID:        a.ID,
		MLUserID:  a.MLUserID,
		SiteID:    a.SiteID,
		Nickname:  a.Nickname,
		ExpiresAt: a.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		CreatedAt: a.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt: a.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

// handleServiceError はサービス層のエラーをHTTPレスポンスに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	apiErr := toAPIError(err)
	middleware.WriteErrorResponse(w, middleware.StatusForError(apiErr), apiErr)
}

// toAPIError はエラーを*model.APIErrorに変換する。
// 型が一致しない場合は内部エラー扱いとなる。
func toAPIError(err error) *model.APIError {
	if apiErr, ok := err.(*model.APIError); ok {
		return apiErr
	}
	slog.Error("unexpected non-API error from service", slog.String("error", err.Error()))
	return model.NewInternalError()
}
