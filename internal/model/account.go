// Package model はドメインモデルを定義する。
package model

import "time"

// LinkedAccount はユーザーに紐付けられたMercado Livreセラーアカウントを表す。
// (UserID, MLUserID)の複合キーで一意であり、同一キーへの再連携は
// トークンとメタデータを上書きする（UPSERT）。
type LinkedAccount struct {
	ID           string
	UserID       string // ダッシュボード側ユーザーID
	MLUserID     string // Mercado Livre側セラーID
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time // アクセストークンの絶対有効期限
	SiteID       string    // 例: MLB（ブラジル）
	Nickname     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
