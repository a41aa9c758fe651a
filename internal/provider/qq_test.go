package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/oauth-bridge-go/internal/model"
)

func TestQQ_BuildAuthorizationURLJoinsScopesWithComma(t *testing.T) {
	p := NewQQ(testClient())
	cfg := Config{ClientID: "101", RedirectURI: "https://app.example.com/cb"}

	u, err := url.Parse(p.BuildAuthorizationURL(cfg, "s1", []string{"get_user_info", "list_album"}))
	require.NoError(t, err)
	assert.Equal(t, "graph.qq.com", u.Host)
	assert.Equal(t, "get_user_info,list_album", u.Query().Get("scope"))
	assert.Equal(t, "code", u.Query().Get("response_type"))
}

func TestQQ_DefaultTokenURLCarriesNoQuery(t *testing.T) {
	u, err := url.Parse(NewQQ(testClient()).oauth2Config(Config{}, "").Endpoint.TokenURL)
	require.NoError(t, err)
	assert.Equal(t, "/oauth2.0/token", u.Path)
	assert.Empty(t, u.RawQuery)
}

func TestQQ_ExchangeCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, []string{"json"}, r.Form["fmt"])
		assert.Equal(t, "qq-code", r.Form.Get("code"))
		writeTestJSON(w, http.StatusOK, map[string]any{
			"access_token":  "qq-access",
			"expires_in":    7776000,
			"refresh_token": "qq-refresh",
		})
	}))
	defer srv.Close()

	p := NewQQ(testClient())
	cfg := Config{ClientID: "101", ClientSecret: "key", Extra: map[string]string{ExtraTokenURL: srv.URL}}

	tokens, err := p.ExchangeCode(context.Background(), cfg, "qq-code", "https://app.example.com/cb")
	require.NoError(t, err)
	assert.Equal(t, "qq-access", tokens.AccessToken)
	assert.Equal(t, "qq-refresh", tokens.RefreshToken)
}

func newQQProfileServer(t *testing.T, ret int) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "qq-access", r.URL.Query().Get("access_token"))
		writeTestJSON(w, http.StatusOK, map[string]any{
			"client_id": "101",
			"openid":    "OPENID-1",
			"unionid":   "UNION-1",
		})
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "OPENID-1", r.URL.Query().Get("openid"))
		assert.Equal(t, "101", r.URL.Query().Get("oauth_consumer_key"))
		writeTestJSON(w, http.StatusOK, map[string]any{
			"ret":            ret,
			"msg":            "",
			"nickname":       "qq-user",
			"figureurl_qq_2": "https://qq.example.com/100.png",
		})
	})
	return httptest.NewServer(mux)
}

func TestQQ_FetchProfile(t *testing.T) {
	srv := newQQProfileServer(t, 0)
	defer srv.Close()

	p := NewQQ(testClient())
	extra := map[string]string{qqExtraMeURL: srv.URL + "/me", ExtraUserInfoURL: srv.URL + "/user"}

	t.Run("uses openid", func(t *testing.T) {
		cfg := Config{ClientID: "101", Extra: extra}
		profile, err := p.FetchProfile(context.Background(), cfg, &model.TokenSet{AccessToken: "qq-access"})
		require.NoError(t, err)
		assert.Equal(t, "OPENID-1", profile.ExternalID)
		assert.Equal(t, "qq-user", profile.Username)
		assert.Equal(t, "https://qq.example.com/100.png", profile.Avatar)
	})

	t.Run("uses unionid when configured", func(t *testing.T) {
		withUnion := map[string]string{ExtraUseUnionID: "true"}
		for k, v := range extra {
			withUnion[k] = v
		}
		cfg := Config{ClientID: "101", Extra: withUnion}
		profile, err := p.FetchProfile(context.Background(), cfg, &model.TokenSet{AccessToken: "qq-access"})
		require.NoError(t, err)
		assert.Equal(t, "UNION-1", profile.ExternalID)
	})
}

func TestQQ_FetchProfileAPIError(t *testing.T) {
	srv := newQQProfileServer(t, 100030)
	defer srv.Close()

	p := NewQQ(testClient())
	cfg := Config{ClientID: "101", Extra: map[string]string{qqExtraMeURL: srv.URL + "/me", ExtraUserInfoURL: srv.URL + "/user"}}

	_, err := p.FetchProfile(context.Background(), cfg, &model.TokenSet{AccessToken: "qq-access"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "100030", apiErr.Code)
}
