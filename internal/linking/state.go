// Package linking はMercado Livreセラーアカウント連携フローを提供する。
// CSRF対策のstateトークン、連携開始（認可URL発行）、コールバック処理を含む。
package linking

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// stateDelimiter はstateトークンの各フィールドを結合する区切り文字。
const stateDelimiter = "|"

// EncodeState は連携開始時のstateトークンを生成する。
// 形式は「ownerUserID|nonce|expiresAtMs」の固定順で、サーバー側に
// セッションストアを持たない自己完結型のトークンとなる。
// 署名は付与しない（偽造しても自分自身のアカウントに連携できるだけであり、
// 交換エンドポイント側で呼び出し元を独立に認証することで安全性を担保する）。
// ownerUserIDまたはnonceに区切り文字が含まれる場合はエラーを返す。
func EncodeState(ownerUserID, nonce string, expiresAtMs int64) (string, error) {
	if strings.Contains(ownerUserID, stateDelimiter) {
		return "", fmt.Errorf("owner user ID must not contain %q", stateDelimiter)
	}
	if strings.Contains(nonce, stateDelimiter) {
		return "", fmt.Errorf("nonce must not contain %q", stateDelimiter)
	}
	return ownerUserID + stateDelimiter + nonce + stateDelimiter + strconv.FormatInt(expiresAtMs, 10), nil
}

// DecodeState はstateトークンを検証してnonceを取り出す。
// 次のいずれかに該当する場合はok=falseを返す:
//   - 区切り文字で3分割できない、または有効期限が数値でない
//   - 埋め込まれた所有者IDがexpectedUserIDと一致しない
//   - 現在時刻が有効期限を過ぎている
func DecodeState(raw, expectedUserID string) (nonce string, ok bool) {
	owner, nonce, expiresAtMs, ok := parseState(raw)
	if !ok {
		return "", false
	}
	if owner != expectedUserID {
		return "", false
	}
	if time.Now().UnixMilli() > expiresAtMs {
		return "", false
	}
	return nonce, true
}

// parseState はstateトークンを形式検証のみで分解する。
// 所有者IDの照合は行わないため、呼び出し元で必ず照合すること。
func parseState(raw string) (owner, nonce string, expiresAtMs int64, ok bool) {
	parts := strings.Split(raw, stateDelimiter)
	if len(parts) != 3 {
		return "", "", 0, false
	}
	ms, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return "", "", 0, false
	}
	return parts[0], parts[1], ms, true
}

// generateNonce はCSRF対策用の推測不能なnonceを生成する。
func generateNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
