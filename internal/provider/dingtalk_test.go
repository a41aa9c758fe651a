package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/oauth-bridge-go/internal/model"
)

func TestDingTalk_BuildAuthorizationURL(t *testing.T) {
	p := NewDingTalk(testClient())
	cfg := Config{ClientID: "ding-app", RedirectURI: "https://app.example.com/cb"}

	u, err := url.Parse(p.BuildAuthorizationURL(cfg, "s1", nil))
	require.NoError(t, err)
	assert.Equal(t, "login.dingtalk.com", u.Host)
	assert.Equal(t, "openid", u.Query().Get("scope"))
	assert.Equal(t, "consent", u.Query().Get("prompt"))
	assert.Equal(t, "ding-app", u.Query().Get("client_id"))
}

func TestDingTalk_ExchangeAndRefresh(t *testing.T) {
	var grants []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var req dingtalkTokenRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ding-app", req.ClientID)
		assert.Equal(t, "ding-secret", req.ClientSecret)
		grants = append(grants, req.GrantType)
		writeTestJSON(w, http.StatusOK, map[string]any{
			"accessToken":  "ding-access",
			"refreshToken": "ding-refresh",
			"expireIn":     7200,
		})
	}))
	defer srv.Close()

	p := NewDingTalk(testClient())
	cfg := Config{ClientID: "ding-app", ClientSecret: "ding-secret", Extra: map[string]string{ExtraTokenURL: srv.URL}}

	tokens, err := p.ExchangeCode(context.Background(), cfg, "code", "")
	require.NoError(t, err)
	assert.Equal(t, "ding-access", tokens.AccessToken)
	assert.Equal(t, int64(7200), tokens.ExpiresIn)

	_, err = p.RefreshToken(context.Background(), cfg, "ding-refresh")
	require.NoError(t, err)
	assert.Equal(t, []string{"authorization_code", "refresh_token"}, grants)
}

func TestDingTalk_ExchangeFailsOnStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(w, http.StatusBadRequest, map[string]any{"code": "invalidCode", "message": "bad"})
	}))
	defer srv.Close()

	p := NewDingTalk(testClient())
	cfg := Config{Extra: map[string]string{ExtraTokenURL: srv.URL}}

	_, err := p.ExchangeCode(context.Background(), cfg, "code", "")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
}

func TestDingTalk_FetchProfile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ding-access", r.Header.Get("x-acs-dingtalk-access-token"))
		writeTestJSON(w, http.StatusOK, map[string]any{
			"nick":      "ding-user",
			"avatarUrl": "https://ding.example.com/a.png",
			"openId":    "open-1",
			"unionId":   "union-1",
		})
	}))
	defer srv.Close()

	p := NewDingTalk(testClient())
	cfg := Config{Extra: map[string]string{ExtraUserInfoURL: srv.URL}}

	profile, err := p.FetchProfile(context.Background(), cfg, &model.TokenSet{AccessToken: "ding-access"})
	require.NoError(t, err)
	assert.Equal(t, "union-1", profile.ExternalID)
	assert.Equal(t, "ding-user", profile.Username)
}
