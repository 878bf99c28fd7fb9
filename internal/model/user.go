// Package model はドメインモデルを定義する。
package model

import "time"

// User はダッシュボードの利用ユーザーを表す。
// レコードの作成・削除はマネージド認証基盤側が行い、本サービスは参照のみ行う。
type User struct {
	ID        string
	Email     string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Session はユーザーのログインセッションを表す。
// 本サービスはセッションの発行を行わず、Cookieで提示された
// セッションIDの有効性検証にのみ使用する。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
