// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, config, upstream, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeAuthentication    = "AUTHENTICATION_ERROR"
	ErrCodeConfiguration     = "CONFIGURATION_ERROR"
	ErrCodeMissingInput      = "MISSING_INPUT"
	ErrCodeMissingCode       = "MISSING_CODE"
	ErrCodeInvalidState      = "INVALID_STATE"
	ErrCodeTokenExchange     = "UPSTREAM_TOKEN_EXCHANGE"
	ErrCodeProfileFetch      = "UPSTREAM_PROFILE_FETCH"
	ErrCodeMalformedUpstream = "MALFORMED_UPSTREAM_RESPONSE"
	ErrCodePersistence       = "PERSISTENCE_ERROR"
	ErrCodeInternal          = "INTERNAL_ERROR"
)

// NewAuthenticationError は未認証または無効な認証情報のエラーを生成する。
func NewAuthenticationError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthentication,
		Message:  "認証されていません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewConfigurationError はMercado Livre連携設定の欠落エラーを生成する。
// missingには未設定の設定項目名を指定する。
func NewConfigurationError(missing string) *APIError {
	return &APIError{
		Code:     ErrCodeConfiguration,
		Message:  fmt.Sprintf("Mercado Livre連携の設定が不足しています: %s", missing),
		Category: "config",
		Action:   "サーバーの環境変数設定を確認してください。",
	}
}

// NewMissingInputError はリクエスト入力の欠落エラーを生成する。
func NewMissingInputError(field string) *APIError {
	return &APIError{
		Code:     ErrCodeMissingInput,
		Message:  fmt.Sprintf("必須パラメータがありません: %s", field),
		Category: "validation",
		Action:   "リクエスト内容を確認してください。",
	}
}

// NewMissingCodeError は認可コード欠落エラーを生成する。
func NewMissingCodeError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingCode,
		Message:  "認可コードがありません。",
		Category: "validation",
		Action:   "Mercado Livreの認可画面からやり直してください。",
	}
}

// NewInvalidStateError はstateの不一致または期限切れエラーを生成する。
func NewInvalidStateError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidState,
		Message:  "stateパラメータが無効か、有効期限が切れています。",
		Category: "validation",
		Action:   "連携フローを最初からやり直してください。",
	}
}

// NewTokenExchangeError はトークン交換失敗エラーを生成する。
// upstreamBodyには診断用にMercado Livreのレスポンスボディをそのまま含める。
// 認可コードは使い捨てのため、このエラーに対するリトライは行わないこと。
func NewTokenExchangeError(statusCode int, upstreamBody string) *APIError {
	return &APIError{
		Code:     ErrCodeTokenExchange,
		Message:  fmt.Sprintf("トークン交換がステータス %d で失敗しました: %s", statusCode, upstreamBody),
		Category: "upstream",
		Action:   "連携フローを最初からやり直してください。",
	}
}

// NewProfileFetchError はセラープロフィール取得失敗エラーを生成する。
func NewProfileFetchError(statusCode int, upstreamBody string) *APIError {
	return &APIError{
		Code:     ErrCodeProfileFetch,
		Message:  fmt.Sprintf("セラー情報の取得がステータス %d で失敗しました: %s", statusCode, upstreamBody),
		Category: "upstream",
		Action:   "連携フローを最初からやり直してください。",
	}
}

// NewMalformedUpstreamError はMercado Livreレスポンスの必須フィールド欠落エラーを生成する。
func NewMalformedUpstreamError(detail string) *APIError {
	return &APIError{
		Code:     ErrCodeMalformedUpstream,
		Message:  fmt.Sprintf("Mercado Livreのレスポンスが不正です: %s", detail),
		Category: "upstream",
		Action:   "しばらく待ってから連携フローをやり直してください。",
	}
}

// NewInternalError は呼び出し元に起因しないサーバー内部エラーを生成する。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewPersistenceError は連携アカウントの保存失敗エラーを生成する。
func NewPersistenceError() *APIError {
	return &APIError{
		Code:     ErrCodePersistence,
		Message:  "アカウント連携情報の保存に失敗しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
