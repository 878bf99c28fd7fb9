package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/shipman/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。トークン等の機微情報は含めない。
type ErrorResponseBody struct {
	Error    string `json:"error"`
	Code     string `json:"code"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// すべてのAPIエンドポイントで一貫したエラーレスポンスを提供する。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Error:    apiErr.Message,
		Code:     apiErr.Code,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}

// StatusForError はエラーコードに対応するHTTPステータスコードを返す。
// 交換型ハンドラーはエラー種別をステータスとして保存する（リダイレクト型は
// 全失敗を単一のリダイレクトに折り畳むためこの対応を使用しない）。
func StatusForError(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeAuthentication:
		return http.StatusUnauthorized
	case model.ErrCodeMissingInput, model.ErrCodeMissingCode, model.ErrCodeInvalidState:
		return http.StatusBadRequest
	case model.ErrCodeTokenExchange, model.ErrCodeProfileFetch, model.ErrCodeMalformedUpstream:
		return http.StatusBadGateway
	case model.ErrCodeConfiguration, model.ErrCodePersistence, model.ErrCodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
