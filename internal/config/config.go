// Package config は環境変数からのアプリケーション設定読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
//
// Mercado Livre連携の認証情報（MLClientID等）は起動時必須としない。
// 仕様上、欠落は連携フローの呼び出し時にCONFIGURATION_ERRORとして
// 報告する（プロセス起動は妨げない）。
type Config struct {
	// Database
	DatabaseURL string

	// Mercado Livre OAuth
	MLClientID     string
	MLClientSecret string
	MLRedirectURL  string
	MLAuthURL      string // テスト・サイト切替用にオーバーライド可能
	MLAPIBaseURL   string // 同上
	MLTimeout      time.Duration

	// Link flow
	StateTTL time.Duration // 認可stateの有効期間

	// Rate Limit（req/min/user）
	RateLimitGeneral   int
	RateLimitLinkStart int

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Mercado Livre credentials（呼び出し時検証のためここでは必須としない）
	cfg.MLClientID = os.Getenv("ML_CLIENT_ID")
	cfg.MLClientSecret = os.Getenv("ML_CLIENT_SECRET")
	cfg.MLRedirectURL = os.Getenv("ML_REDIRECT_URL")

	// Optional fields with defaults
	cfg.MLAuthURL = getEnvString("ML_AUTH_URL", "")
	cfg.MLAPIBaseURL = getEnvString("ML_API_BASE_URL", "")
	// MLTimeoutは10〜30秒の範囲に収める（範囲外の値は端にクランプ）
	cfg.MLTimeout = getEnvDuration("ML_TIMEOUT", 15*time.Second)
	if cfg.MLTimeout < 10*time.Second {
		cfg.MLTimeout = 10 * time.Second
	}
	if cfg.MLTimeout > 30*time.Second {
		cfg.MLTimeout = 30 * time.Second
	}
	cfg.StateTTL = getEnvDuration("LINK_STATE_TTL", 10*time.Minute)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitLinkStart = getEnvInt("RATE_LIMIT_LINK_START", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
