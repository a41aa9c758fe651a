package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/openclaw/oauth-bridge-go/internal/model"
)

const (
	feishuAuthURL  = "https://accounts.feishu.cn/open-apis/authen/v1/authorize"
	feishuTokenURL = "https://open.feishu.cn/open-apis/authen/v2/oauth/token"
	feishuUserURL  = "https://open.feishu.cn/open-apis/authen/v1/user_info"
)

type Feishu struct {
	client *http.Client
}

func NewFeishu(client *http.Client) *Feishu {
	return &Feishu{client: client}
}

func (p *Feishu) Name() string { return model.ProviderFeishu }

func (p *Feishu) BuildAuthorizationURL(cfg Config, state string, scopes []string) string {
	query := url.Values{
		"client_id":     {cfg.ClientID},
		"redirect_uri":  {cfg.RedirectURI},
		"response_type": {"code"},
		"state":         {state},
	}
	if len(scopes) > 0 {
		query.Set("scope", strings.Join(scopes, " "))
	}
	return cfg.extra(ExtraAuthURL, feishuAuthURL) + "?" + query.Encode()
}

type feishuTokenRequest struct {
	GrantType    string `json:"grant_type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Code         string `json:"code,omitempty"`
	RedirectURI  string `json:"redirect_uri,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

type feishuToken struct {
	Code             int    `json:"code"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	AccessToken      string `json:"access_token"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshToken     string `json:"refresh_token"`
}

func (p *Feishu) token(ctx context.Context, cfg Config, req feishuTokenRequest) (*model.TokenSet, error) {
	req.ClientID = cfg.ClientID
	req.ClientSecret = cfg.ClientSecret

	var tok feishuToken
	if err := postJSON(ctx, p.client, cfg.extra(ExtraTokenURL, feishuTokenURL), req, nil, &tok); err != nil {
		return nil, err
	}
	if tok.Code != 0 {
		return nil, &APIError{Code: strconv.Itoa(tok.Code), Message: tok.Error + ": " + tok.ErrorDescription}
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}
	return &model.TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    tok.ExpiresIn,
	}, nil
}

func (p *Feishu) ExchangeCode(ctx context.Context, cfg Config, code, redirectURI string) (*model.TokenSet, error) {
	return p.token(ctx, cfg, feishuTokenRequest{
		GrantType:   "authorization_code",
		Code:        code,
		RedirectURI: redirectURI,
	})
}

type feishuUserResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		Name      string `json:"name"`
		EnName    string `json:"en_name"`
		AvatarURL string `json:"avatar_url"`
		OpenID    string `json:"open_id"`
		UnionID   string `json:"union_id"`
		Email     string `json:"email"`
	} `json:"data"`
}

func (p *Feishu) FetchProfile(ctx context.Context, cfg Config, tokens *model.TokenSet) (*model.OAuthProfile, error) {
	headers := map[string]string{"Authorization": "Bearer " + tokens.AccessToken}

	var resp feishuUserResponse
	if err := getJSON(ctx, p.client, cfg.extra(ExtraUserInfoURL, feishuUserURL), headers, &resp); err != nil {
		return nil, fmt.Errorf("get user info: %w", err)
	}
	if resp.Code != 0 {
		return nil, &APIError{Code: strconv.Itoa(resp.Code), Message: resp.Msg}
	}

	u := resp.Data
	externalID := u.OpenID
	if cfg.flag(ExtraUseUnionID) {
		externalID = u.UnionID
	}
	if err := requireExternalID(externalID); err != nil {
		return nil, err
	}

	username := u.Name
	if username == "" {
		username = u.EnName
	}
	return &model.OAuthProfile{
		ExternalID: externalID,
		Username:   username,
		Email:      u.Email,
		Avatar:     u.AvatarURL,
		Raw:        rawJSON(u),
	}, nil
}

func (p *Feishu) RefreshToken(ctx context.Context, cfg Config, refreshToken string) (*model.TokenSet, error) {
	return p.token(ctx, cfg, feishuTokenRequest{
		GrantType:    "refresh_token",
		RefreshToken: refreshToken,
	})
}
