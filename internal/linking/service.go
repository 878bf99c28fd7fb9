package linking

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hitoshi/shipman/internal/mercado"
	"github.com/hitoshi/shipman/internal/metrics"
	"github.com/hitoshi/shipman/internal/model"
	"github.com/hitoshi/shipman/internal/repository"
	"github.com/hitoshi/shipman/internal/security"
)

// MarketplaceClient はMercado Livre OAuth APIのインターフェース。
// テストでのスタブ差し替えと、将来的な他マーケットプレイス対応のための抽象化。
type MarketplaceClient interface {
	// AuthorizationURL は認可画面URLを生成する。ネットワーク呼び出しは行わない。
	AuthorizationURL(state string) string
	// ExchangeCode は認可コードをトークンに交換する。リトライしない。
	ExchangeCode(ctx context.Context, code string) (*mercado.Credential, error)
	// FetchProfile はセラープロフィールを取得する。
	FetchProfile(ctx context.Context, accessToken, mlUserID string) (*mercado.Profile, error)
}

// ServiceConfig は連携サービスの設定。
type ServiceConfig struct {
	// ClientID / RedirectURL は連携開始時のプロビジョニング検証に使用する。
	// 欠落は起動エラーではなく、呼び出し時のCONFIGURATION_ERRORとなる。
	ClientID    string
	RedirectURL string

	// StateTTL はstateトークンの有効期間。ゼロ値の場合は10分。
	StateTTL time.Duration
}

// Service はセラーアカウント連携のビジネスロジックを提供する。
// 各操作はリクエストスコープで完結し、プロセス内に共有可変状態を持たない。
type Service struct {
	ml        MarketplaceClient
	accounts  repository.LinkedAccountRepository
	sanitizer security.ProfileSanitizerService
	collector metrics.MetricsCollector
	config    ServiceConfig
}

// NewService はServiceを生成する。collectorはnil可（計測なしで動作する）。
func NewService(
	ml MarketplaceClient,
	accounts repository.LinkedAccountRepository,
	sanitizer security.ProfileSanitizerService,
	collector metrics.MetricsCollector,
	config ServiceConfig,
) *Service {
	if config.StateTTL <= 0 {
		config.StateTTL = 10 * time.Minute
	}
	return &Service{
		ml:        ml,
		accounts:  accounts,
		sanitizer: sanitizer,
		collector: collector,
		config:    config,
	}
}

// BeginLink は認証済みユーザーの連携フローを開始し、認可画面URLを返す。
// stateトークン（owner|nonce|expiry）を生成して埋め込む。サーバー側への
// 永続化は行わない（stateは自己完結）。
// Mercado Livreのclient_id/redirect_uriが未設定の場合はCONFIGURATION_ERRORを返す。
func (s *Service) BeginLink(ctx context.Context, ownerUserID string) (string, error) {
	if ownerUserID == "" {
		return "", model.NewAuthenticationError()
	}
	if s.config.ClientID == "" {
		return "", model.NewConfigurationError("ML_CLIENT_ID")
	}
	if s.config.RedirectURL == "" {
		return "", model.NewConfigurationError("ML_REDIRECT_URL")
	}

	// nonce生成・state構築の失敗はいずれもサーバー内部の異常であり、
	// 呼び出し元の入力では起こせないため内部エラーとして扱う。
	nonce, err := generateNonce()
	if err != nil {
		slog.Error("failed to generate state nonce", slog.String("error", err.Error()))
		return "", model.NewInternalError()
	}

	expiresAtMs := time.Now().Add(s.config.StateTTL).UnixMilli()
	state, err := EncodeState(ownerUserID, nonce, expiresAtMs)
	if err != nil {
		slog.Error("failed to encode state token", slog.String("error", err.Error()))
		return "", model.NewInternalError()
	}

	slog.Info("link flow started",
		slog.String("user_id", ownerUserID),
	)

	return s.ml.AuthorizationURL(state), nil
}

// CompleteExchange はSPA主導の交換フローを完了する。
// stateを認証済み呼び出し元の身元に対して検証し、連携アカウントの
// 所有者には（マーケットプレイス応答由来ではなく）認証済み呼び出し元の
// 身元を使用する。この束縛が無署名stateでもCSRF耐性を成立させる。
func (s *Service) CompleteExchange(ctx context.Context, ownerUserID, code, state string) (*model.LinkedAccount, error) {
	if ownerUserID == "" {
		s.recordFailure("auth")
		return nil, model.NewAuthenticationError()
	}
	if code == "" {
		s.recordFailure("input")
		return nil, model.NewMissingInputError("code")
	}
	if state == "" {
		s.recordFailure("input")
		return nil, model.NewMissingInputError("state")
	}
	if _, ok := DecodeState(state, ownerUserID); !ok {
		s.recordFailure("state")
		return nil, model.NewInvalidStateError()
	}

	return s.completeLink(ctx, ownerUserID, code)
}

// CompleteRedirect はブラウザリダイレクト型のコールバックフローを完了する。
// リダイレクトは連携を開始したユーザー自身のブラウザに着地するため、
// 同伴するセッションCookieから所有者を解決する（ハンドラー側で実施）。
// 所有者はダッシュボードのユーザーIDであり、連携レコードの外部キー
// （users.idへの参照）を常に満たす。セッションが無い場合は認証エラー。
// stateはパラメータが存在する場合、所有者への束縛まで含めて検証する。
func (s *Service) CompleteRedirect(ctx context.Context, ownerUserID, code, state string) (*model.LinkedAccount, error) {
	if ownerUserID == "" {
		s.recordFailure("auth")
		return nil, model.NewAuthenticationError()
	}
	if code == "" {
		s.recordFailure("input")
		return nil, model.NewMissingCodeError()
	}
	if state != "" {
		if _, ok := DecodeState(state, ownerUserID); !ok {
			s.recordFailure("state")
			return nil, model.NewInvalidStateError()
		}
	}

	return s.completeLink(ctx, ownerUserID, code)
}

// completeLink はトークン交換→プロフィール取得→UPSERTの共有フローを実行する。
// 2つのコールバック経路の挙動が乖離しないよう、単一の実装に集約する。
// ownerUserIDは呼び出し元で認証済みのダッシュボードユーザーIDであること。
// 各段階は順次実行され、途中で失敗した場合は永続化を行わずに打ち切る。
// 認可コードは使い捨てのため、いかなる失敗でも自動リトライしない。
func (s *Service) completeLink(ctx context.Context, ownerUserID, code string) (*model.LinkedAccount, error) {
	// 1. 認可コードをトークンに交換
	start := time.Now()
	cred, err := s.ml.ExchangeCode(ctx, code)
	s.recordLatency(time.Since(start))
	if err != nil {
		s.recordFailure("token_exchange")
		slog.Error("token exchange failed", slog.String("error", err.Error()))
		return nil, asAPIError(err, model.NewTokenExchangeError(0, err.Error()))
	}

	// 2. セラープロフィールを取得
	profile, err := s.ml.FetchProfile(ctx, cred.AccessToken, cred.MLUserID)
	if err != nil {
		s.recordFailure("profile_fetch")
		slog.Error("profile fetch failed",
			slog.String("ml_user_id", cred.MLUserID),
			slog.String("error", err.Error()),
		)
		return nil, asAPIError(err, model.NewProfileFetchError(0, err.Error()))
	}

	// 3. 連携アカウントをUPSERT
	// 外部由来のプロフィール文字列はサニタイズしてから保存する。
	account := &model.LinkedAccount{
		UserID:       ownerUserID,
		MLUserID:     cred.MLUserID,
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(cred.ExpiresIn) * time.Second),
		SiteID:       s.sanitizer.Sanitize(profile.SiteID),
		Nickname:     s.sanitizer.Sanitize(profile.Nickname),
	}

	stored, err := s.accounts.Upsert(ctx, account)
	if err != nil {
		s.recordFailure("persistence")
		slog.Error("failed to persist marketplace account",
			slog.String("user_id", ownerUserID),
			slog.String("ml_user_id", cred.MLUserID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewPersistenceError()
	}

	s.recordSuccess()
	slog.Info("marketplace account linked",
		slog.String("user_id", stored.UserID),
		slog.String("ml_user_id", stored.MLUserID),
		slog.String("site_id", stored.SiteID),
	)

	return stored, nil
}

// ListAccounts はユーザーの連携アカウント一覧を返す。
// トークンを応答へ含めるかどうかはハンドラー層の責務（含めないこと）。
func (s *Service) ListAccounts(ctx context.Context, ownerUserID string) ([]*model.LinkedAccount, error) {
	if ownerUserID == "" {
		return nil, model.NewAuthenticationError()
	}
	accounts, err := s.accounts.ListByUserID(ctx, ownerUserID)
	if err != nil {
		slog.Error("failed to list marketplace accounts",
			slog.String("user_id", ownerUserID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewPersistenceError()
	}
	return accounts, nil
}

// asAPIError はerrが既に*model.APIErrorであればそれを返し、
// そうでなければfallbackを返す。アップストリームの診断情報を保持するため。
func asAPIError(err error, fallback *model.APIError) *model.APIError {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return fallback
}

func (s *Service) recordSuccess() {
	if s.collector != nil {
		s.collector.RecordLinkSuccess()
	}
}

func (s *Service) recordFailure(stage string) {
	if s.collector != nil {
		s.collector.RecordLinkFailure(stage)
	}
}

func (s *Service) recordLatency(d time.Duration) {
	if s.collector != nil {
		s.collector.RecordExchangeLatency(d)
	}
}

// compile-time interface check
var _ MarketplaceClient = (*mercado.Client)(nil)
