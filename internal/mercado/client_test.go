package mercado

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/hitoshi/shipman/internal/model"
)

func newTestClient(serverURL string) *Client {
	return NewClient(ClientConfig{
		ClientID:     "test-client-id",
		ClientSecret: "test-client-secret",
		RedirectURL:  "https://app.example.com/auth/mercado/callback",
		AuthURL:      "https://auth.mercadolivre.com.br/authorization",
		APIBaseURL:   serverURL,
	}, &http.Client{})
}

// --- AuthorizationURL ---

func TestAuthorizationURL_ContainsRequiredParams(t *testing.T) {
	c := newTestClient("http://unused")

	raw := c.AuthorizationURL("user-1|nonce|123")

	parsed, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse authorization URL: %v", err)
	}
	if !strings.HasPrefix(raw, "https://auth.mercadolivre.com.br/authorization?") {
		t.Errorf("URL = %q, should start with the auth endpoint", raw)
	}

	q := parsed.Query()
	if q.Get("response_type") != "code" {
		t.Errorf("response_type = %q, want %q", q.Get("response_type"), "code")
	}
	if q.Get("client_id") != "test-client-id" {
		t.Errorf("client_id = %q, want %q", q.Get("client_id"), "test-client-id")
	}
	if q.Get("redirect_uri") != "https://app.example.com/auth/mercado/callback" {
		t.Errorf("redirect_uri = %q", q.Get("redirect_uri"))
	}
	// stateの区切り文字がURLエンコードされて往復すること
	if q.Get("state") != "user-1|nonce|123" {
		t.Errorf("state = %q, want %q", q.Get("state"), "user-1|nonce|123")
	}
}

// --- ExchangeCode ---

func TestExchangeCode_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/oauth/token" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("Content-Type = %q", ct)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("failed to parse form: %v", err)
		}
		if r.PostForm.Get("grant_type") != "authorization_code" {
			t.Errorf("grant_type = %q", r.PostForm.Get("grant_type"))
		}
		if r.PostForm.Get("code") != "auth-code" {
			t.Errorf("code = %q", r.PostForm.Get("code"))
		}

		w.Header().Set("Content-Type", "application/json")
		// user_idは数値で返る
		w.Write([]byte(`{"access_token":"APP_USR-token","token_type":"bearer","expires_in":21600,"refresh_token":"TG-refresh","user_id":987654}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL)

	cred, err := c.ExchangeCode(context.Background(), "auth-code")
	if err != nil {
		t.Fatalf("ExchangeCode returned error: %v", err)
	}

	if cred.AccessToken != "APP_USR-token" {
		t.Errorf("AccessToken = %q", cred.AccessToken)
	}
	if cred.RefreshToken != "TG-refresh" {
		t.Errorf("RefreshToken = %q", cred.RefreshToken)
	}
	if cred.ExpiresIn != 21600 {
		t.Errorf("ExpiresIn = %d, want 21600", cred.ExpiresIn)
	}
	if cred.MLUserID != "987654" {
		t.Errorf("MLUserID = %q, want %q", cred.MLUserID, "987654")
	}
}

func TestExchangeCode_Non2xx_ReturnsTokenExchangeErrorWithBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant","message":"code already used"}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL)

	_, err := c.ExchangeCode(context.Background(), "used-code")
	apiErr := requireAPIError(t, err)
	if apiErr.Code != model.ErrCodeTokenExchange {
		t.Errorf("code = %q, want %q", apiErr.Code, model.ErrCodeTokenExchange)
	}
	// 診断用にアップストリームのボディがそのまま含まれること
	if !strings.Contains(apiErr.Message, "invalid_grant") {
		t.Errorf("message %q should contain the upstream body", apiErr.Message)
	}
	if !strings.Contains(apiErr.Message, "400") {
		t.Errorf("message %q should contain the upstream status", apiErr.Message)
	}
}

func TestExchangeCode_MissingRequiredFields_ReturnsMalformedUpstream(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing access_token", `{"refresh_token":"r","user_id":1,"expires_in":21600}`},
		{"missing refresh_token", `{"access_token":"a","user_id":1,"expires_in":21600}`},
		{"missing user_id", `{"access_token":"a","refresh_token":"r","expires_in":21600}`},
		{"not JSON", `<html>gateway error</html>`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(tc.body))
			}))
			defer server.Close()

			c := newTestClient(server.URL)

			_, err := c.ExchangeCode(context.Background(), "auth-code")
			apiErr := requireAPIError(t, err)
			if apiErr.Code != model.ErrCodeMalformedUpstream {
				t.Errorf("code = %q, want %q", apiErr.Code, model.ErrCodeMalformedUpstream)
			}
		})
	}
}

func TestExchangeCode_NetworkError_ReturnsTokenExchangeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // 接続拒否させる

	c := newTestClient(server.URL)

	_, err := c.ExchangeCode(context.Background(), "auth-code")
	apiErr := requireAPIError(t, err)
	if apiErr.Code != model.ErrCodeTokenExchange {
		t.Errorf("code = %q, want %q", apiErr.Code, model.ErrCodeTokenExchange)
	}
}

// --- FetchProfile ---

func TestFetchProfile_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/987654" {
			t.Errorf("path = %q, want %q", r.URL.Path, "/users/987654")
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer APP_USR-token" {
			t.Errorf("Authorization = %q", auth)
		}

		w.Header().Set("Content-Type", "application/json")
		// 規定外のフィールドは無視されること
		w.Write([]byte(`{"id":987654,"nickname":"SELLERNICK","site_id":"MLB","country_id":"BR","points":42}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL)

	profile, err := c.FetchProfile(context.Background(), "APP_USR-token", "987654")
	if err != nil {
		t.Fatalf("FetchProfile returned error: %v", err)
	}

	if profile.SiteID != "MLB" {
		t.Errorf("SiteID = %q, want %q", profile.SiteID, "MLB")
	}
	if profile.Nickname != "SELLERNICK" {
		t.Errorf("Nickname = %q, want %q", profile.Nickname, "SELLERNICK")
	}
}

func TestFetchProfile_Non2xx_ReturnsProfileFetchError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"invalid token"}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL)

	_, err := c.FetchProfile(context.Background(), "bad-token", "987654")
	apiErr := requireAPIError(t, err)
	if apiErr.Code != model.ErrCodeProfileFetch {
		t.Errorf("code = %q, want %q", apiErr.Code, model.ErrCodeProfileFetch)
	}
	if !strings.Contains(apiErr.Message, "invalid token") {
		t.Errorf("message %q should contain the upstream body", apiErr.Message)
	}
}

func TestNewClient_AppliesDefaultEndpoints(t *testing.T) {
	c := NewClient(ClientConfig{ClientID: "id"}, nil)

	raw := c.AuthorizationURL("s")
	if !strings.HasPrefix(raw, "https://auth.mercadolivre.com.br/authorization?") {
		t.Errorf("URL = %q, should use the default Brazilian auth endpoint", raw)
	}
}

// requireAPIError はerrが*model.APIErrorであることを確認して返すヘルパー。
func requireAPIError(t *testing.T, err error) *model.APIError {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	apiErr, ok := err.(*model.APIError)
	if !ok {
		t.Fatalf("error type = %T, want *model.APIError", err)
	}
	return apiErr
}
