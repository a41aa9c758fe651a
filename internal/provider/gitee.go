package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"golang.org/x/oauth2"

	"github.com/openclaw/oauth-bridge-go/internal/model"
)

const (
	giteeAuthURL  = "https://gitee.com/oauth/authorize"
	giteeTokenURL = "https://gitee.com/oauth/token"
	giteeUserURL  = "https://gitee.com/api/v5/user"
)

type Gitee struct {
	client *http.Client
}

func NewGitee(client *http.Client) *Gitee {
	return &Gitee{client: client}
}

func (p *Gitee) Name() string { return model.ProviderGitee }

func (p *Gitee) oauth2Config(cfg Config, redirectURI string, scopes []string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   cfg.extra(ExtraAuthURL, giteeAuthURL),
			TokenURL:  cfg.extra(ExtraTokenURL, giteeTokenURL),
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func (p *Gitee) BuildAuthorizationURL(cfg Config, state string, scopes []string) string {
	return p.oauth2Config(cfg, cfg.RedirectURI, scopesOrDefault(scopes, "user_info")).AuthCodeURL(state)
}

func (p *Gitee) ExchangeCode(ctx context.Context, cfg Config, code, redirectURI string) (*model.TokenSet, error) {
	tok, err := p.oauth2Config(cfg, redirectURI, nil).Exchange(withClient(ctx, p.client), code)
	if err != nil {
		return nil, err
	}
	return tokenSetFromOAuth2(tok), nil
}

type giteeUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

func (p *Gitee) FetchProfile(ctx context.Context, cfg Config, tokens *model.TokenSet) (*model.OAuthProfile, error) {
	endpoint := cfg.extra(ExtraUserInfoURL, giteeUserURL) + "?access_token=" + url.QueryEscape(tokens.AccessToken)

	var u giteeUser
	if err := getJSON(ctx, p.client, endpoint, nil, &u); err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if u.ID == 0 {
		return nil, requireExternalID("")
	}

	username := u.Login
	if username == "" {
		username = u.Name
	}
	return &model.OAuthProfile{
		ExternalID: strconv.FormatInt(u.ID, 10),
		Username:   username,
		Email:      u.Email,
		Avatar:     u.AvatarURL,
		Raw:        rawJSON(u),
	}, nil
}

func (p *Gitee) RefreshToken(ctx context.Context, cfg Config, refreshToken string) (*model.TokenSet, error) {
	ts := p.oauth2Config(cfg, cfg.RedirectURI, nil).TokenSource(withClient(ctx, p.client), &oauth2.Token{
		RefreshToken: refreshToken,
	})
	tok, err := ts.Token()
	if err != nil {
		return nil, err
	}
	return tokenSetFromOAuth2(tok), nil
}
