package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/openclaw/oauth-bridge-go/internal/model"
)

const (
	dingtalkAuthURL  = "https://login.dingtalk.com/oauth2/auth"
	dingtalkTokenURL = "https://api.dingtalk.com/v1.0/oauth2/userAccessToken"
	dingtalkUserURL  = "https://api.dingtalk.com/v1.0/contact/users/me"
)

type DingTalk struct {
	client *http.Client
}

func NewDingTalk(client *http.Client) *DingTalk {
	return &DingTalk{client: client}
}

func (p *DingTalk) Name() string { return model.ProviderDingTalk }

func (p *DingTalk) BuildAuthorizationURL(cfg Config, state string, scopes []string) string {
	query := url.Values{
		"redirect_uri":  {cfg.RedirectURI},
		"response_type": {"code"},
		"client_id":     {cfg.ClientID},
		"scope":         {strings.Join(scopesOrDefault(scopes, "openid"), " ")},
		"state":         {state},
		"prompt":        {"consent"},
	}
	return cfg.extra(ExtraAuthURL, dingtalkAuthURL) + "?" + query.Encode()
}

type dingtalkTokenRequest struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
	Code         string `json:"code,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
	GrantType    string `json:"grantType"`
}

type dingtalkToken struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpireIn     int64  `json:"expireIn"`
	CorpID       string `json:"corpId"`
}

func (p *DingTalk) token(ctx context.Context, cfg Config, req dingtalkTokenRequest) (*model.TokenSet, error) {
	req.ClientID = cfg.ClientID
	req.ClientSecret = cfg.ClientSecret

	var tok dingtalkToken
	if err := postJSON(ctx, p.client, cfg.extra(ExtraTokenURL, dingtalkTokenURL), req, nil, &tok); err != nil {
		return nil, err
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("token response missing accessToken")
	}
	ts := &model.TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    tok.ExpireIn,
	}
	if tok.CorpID != "" {
		ts.Extra = map[string]string{"corp_id": tok.CorpID}
	}
	return ts, nil
}

func (p *DingTalk) ExchangeCode(ctx context.Context, cfg Config, code, redirectURI string) (*model.TokenSet, error) {
	return p.token(ctx, cfg, dingtalkTokenRequest{Code: code, GrantType: "authorization_code"})
}

type dingtalkUser struct {
	Nick      string `json:"nick"`
	AvatarURL string `json:"avatarUrl"`
	Mobile    string `json:"mobile"`
	OpenID    string `json:"openId"`
	UnionID   string `json:"unionId"`
	Email     string `json:"email"`
}

// FetchProfile keys users by unionId, which is stable across a developer's apps.
func (p *DingTalk) FetchProfile(ctx context.Context, cfg Config, tokens *model.TokenSet) (*model.OAuthProfile, error) {
	headers := map[string]string{"x-acs-dingtalk-access-token": tokens.AccessToken}

	var u dingtalkUser
	if err := getJSON(ctx, p.client, cfg.extra(ExtraUserInfoURL, dingtalkUserURL), headers, &u); err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if err := requireExternalID(u.UnionID); err != nil {
		return nil, err
	}

	return &model.OAuthProfile{
		ExternalID: u.UnionID,
		Username:   u.Nick,
		Email:      u.Email,
		Avatar:     u.AvatarURL,
		Raw: rawJSON(map[string]any{
			"openId":    u.OpenID,
			"unionId":   u.UnionID,
			"nick":      u.Nick,
			"avatarUrl": u.AvatarURL,
		}),
	}, nil
}

func (p *DingTalk) RefreshToken(ctx context.Context, cfg Config, refreshToken string) (*model.TokenSet, error) {
	return p.token(ctx, cfg, dingtalkTokenRequest{RefreshToken: refreshToken, GrantType: "refresh_token"})
}
