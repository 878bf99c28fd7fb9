// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/shipman/internal/model"
)

// UserRepository はユーザーデータの参照インターフェース。
// ユーザーの作成・削除はマネージド認証基盤側の責務のため、本サービスは参照のみ行う。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// SessionRepository はセッションデータの参照インターフェース。
// セッションの発行・破棄は認証基盤側の責務のため、本サービスは有効性検証のみ行う。
type SessionRepository interface {
	// FindByID は指定IDのセッションを取得する。期限切れまたは不存在の場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// LinkedAccountRepository はMercado Livreセラーアカウント連携の永続化インターフェース。
type LinkedAccountRepository interface {
	// Upsert は(user_id, ml_user_id)をキーに連携レコードを原子的にUPSERTする。
	// 既存レコードがある場合はトークンとメタデータを全フィールド上書きする。
	// 同一キーへの並行呼び出しはDBの衝突解決により後勝ちとなり、重複行は生じない。
	Upsert(ctx context.Context, account *model.LinkedAccount) (*model.LinkedAccount, error)

	// FindByUserAndMLUser はユーザーIDとMercado LivreユーザーIDで連携を検索する。
	// 見つからない場合はnilを返す。
	FindByUserAndMLUser(ctx context.Context, userID, mlUserID string) (*model.LinkedAccount, error)

	// ListByUserID はユーザーの連携アカウント一覧をupdated_at降順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.LinkedAccount, error)
}
