package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/shipman/internal/middleware"
	"github.com/hitoshi/shipman/internal/model"
)

// UserFinder は現在ユーザー取得に必要なユーザー参照のインターフェース。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// MeHandler は現在のログインユーザー情報を提供するハンドラー。
type MeHandler struct {
	users UserFinder
}

// NewMeHandler はMeHandlerを生成する。
func NewMeHandler(users UserFinder) *MeHandler {
	return &MeHandler{users: users}
}

// Me は現在のログインユーザー情報を返す。
// GET /api/me
func (h *MeHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewAuthenticationError())
		return
	}

	user, err := h.users.FindByID(r.Context(), userID)
	if err != nil {
		slog.Error("failed to find current user",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}
	if user == nil {
		// セッションは有効だがユーザーレコードが消えている場合
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewAuthenticationError())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"id":    user.ID,
		"email": user.Email,
		"name":  user.Name,
	})
}
