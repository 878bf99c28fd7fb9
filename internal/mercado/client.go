// Package mercado はMercado Livre APIとのOAuth連携機能を提供する。
// 認可URL構築、認可コードのトークン交換、セラープロフィール取得を含む。
package mercado

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/shipman/internal/model"
)

const (
	// defaultAuthURL はMercado Livre（ブラジル）の認可画面エンドポイント。
	defaultAuthURL = "https://auth.mercadolivre.com.br/authorization"
	// defaultAPIBaseURL はMercado Livre APIのベースURL。
	// トークン交換（/oauth/token）とユーザー情報取得（/users/{id}）で使用する。
	defaultAPIBaseURL = "https://api.mercadolibre.com"
)

// ClientConfig はMercado Livre OAuthクライアントの設定。
type ClientConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// テスト・サイト切替用にオーバーライド可能なURL
	AuthURL    string
	APIBaseURL string
}

// Client はMercado Livre OAuth APIのクライアント。
type Client struct {
	config     ClientConfig
	httpClient *http.Client
}

// NewClient はClientを生成する。
// httpClientにはタイムアウトを設定したクライアントを渡すこと
// （トークン交換・プロフィール取得の呼び出し上限として機能する）。
func NewClient(config ClientConfig, httpClient *http.Client) *Client {
	if config.AuthURL == "" {
		config.AuthURL = defaultAuthURL
	}
	if config.APIBaseURL == "" {
		config.APIBaseURL = defaultAPIBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{config: config, httpClient: httpClient}
}

// Credential はトークン交換で得られた一時的な認証情報を表す。
// LinkedAccountへ変換された後は保持しない。
type Credential struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int    // access_tokenの相対有効期間（秒）
	MLUserID     string // Mercado Livre側セラーID
}

// Profile はセラーのプロフィール情報を表す。
type Profile struct {
	SiteID   string
	Nickname string
}

// AuthorizationURL はMercado Livreの認可画面URLを生成する。
// ネットワーク呼び出しは行わない純粋なURL構築。
func (c *Client) AuthorizationURL(state string) string {
	params := url.Values{
		"response_type": {"code"},
		"client_id":     {c.config.ClientID},
		"redirect_uri":  {c.config.RedirectURL},
		"state":         {state},
	}
	return c.config.AuthURL + "?" + params.Encode()
}

// tokenResponse はMercado Livreトークンエンドポイントのレスポンス。
// user_idは数値で返るためjson.Numberで受ける。規定外のフィールドは無視する。
type tokenResponse struct {
	AccessToken  string      `json:"access_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    int         `json:"expires_in"`
	RefreshToken string      `json:"refresh_token"`
	UserID       json.Number `json:"user_id"`
}

// profileResponse はMercado Livreユーザー情報エンドポイントのレスポンス。
type profileResponse struct {
	ID       json.Number `json:"id"`
	Nickname string      `json:"nickname"`
	SiteID   string      `json:"site_id"`
}

// ExchangeCode は認可コードをアクセストークンに交換する。
// 認可コードはMercado Livre側で使い捨てのため、失敗してもリトライしない。
// 非2xxレスポンスは診断用にボディをそのまま含むエラーとして返す。
func (c *Client) ExchangeCode(ctx context.Context, code string) (*Credential, error) {
	data := url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {c.config.ClientID},
		"client_secret": {c.config.ClientSecret},
		"code":          {code},
		"redirect_uri":  {c.config.RedirectURL},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.APIBaseURL+"/oauth/token", strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, model.NewTokenExchangeError(0, err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, model.NewTokenExchangeError(resp.StatusCode, string(body))
	}

	var tokenResp tokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, model.NewMalformedUpstreamError("トークンレスポンスのJSONを解析できません")
	}

	// 必須フィールドの検証
	if tokenResp.AccessToken == "" {
		return nil, model.NewMalformedUpstreamError("access_tokenがありません")
	}
	if tokenResp.RefreshToken == "" {
		return nil, model.NewMalformedUpstreamError("refresh_tokenがありません")
	}
	if tokenResp.UserID.String() == "" {
		return nil, model.NewMalformedUpstreamError("user_idがありません")
	}

	return &Credential{
		AccessToken:  tokenResp.AccessToken,
		RefreshToken: tokenResp.RefreshToken,
		ExpiresIn:    tokenResp.ExpiresIn,
		MLUserID:     tokenResp.UserID.String(),
	}, nil
}

// FetchProfile は交換直後のアクセストークンでセラープロフィールを取得する。
// 非2xxレスポンスは診断用にボディをそのまま含むエラーとして返す。
func (c *Client) FetchProfile(ctx context.Context, accessToken, mlUserID string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.APIBaseURL+"/users/"+url.PathEscape(mlUserID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, model.NewProfileFetchError(0, err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, model.NewProfileFetchError(resp.StatusCode, string(body))
	}

	var profResp profileResponse
	if err := json.Unmarshal(body, &profResp); err != nil {
		return nil, model.NewMalformedUpstreamError("プロフィールレスポンスのJSONを解析できません")
	}

	return &Profile{
		SiteID:   profResp.SiteID,
		Nickname: profResp.Nickname,
	}, nil
}
