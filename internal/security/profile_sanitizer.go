// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ProfileSanitizerService はMercado Livreから取得したプロフィール文字列
// （nickname等）をサニタイズし、保存・表示時のXSSリスクからユーザーを保護する。
// 外部マーケットプレイス由来の文字列はこのサービスを通してから永続化すること。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ProfileSanitizerService はプロフィール文字列のサニタイズ機能のインターフェースを定義する。
// 連携アカウントの保存前およびAPI応答時に使用される。
type ProfileSanitizerService interface {
	// Sanitize は文字列からHTMLタグ・スクリプトを全て除去したプレーンテキストを返す。
	// 前後の空白も除去する。空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// profileSanitizer はProfileSanitizerServiceの実装。
// bluemondayのStrictPolicyを保持し、スレッドセーフにサニタイズ処理を行う。
type profileSanitizer struct {
	policy *bluemonday.Policy
}

// NewProfileSanitizer はProfileSanitizerServiceの新しいインスタンスを生成する。
// プロフィール文字列は表示名でありマークアップを含む正当な理由がないため、
// 一切のタグを許可しないStrictPolicyを使用する。
func NewProfileSanitizer() *profileSanitizer {
	return &profileSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は文字列からHTMLタグ・スクリプトを全て除去したプレーンテキストを返す。
func (s *profileSanitizer) Sanitize(raw string) string {
	return strings.TrimSpace(s.policy.Sanitize(raw))
}
