package provider

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/openclaw/oauth-bridge-go/internal/model"
)

const githubUserURL = "https://api.github.com/user"

type GitHub struct {
	client *http.Client
}

func NewGitHub(client *http.Client) *GitHub {
	return &GitHub{client: client}
}

func (p *GitHub) Name() string { return model.ProviderGitHub }

func (p *GitHub) oauth2Config(cfg Config, redirectURI string, scopes []string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   cfg.extra(ExtraAuthURL, github.Endpoint.AuthURL),
			TokenURL:  cfg.extra(ExtraTokenURL, github.Endpoint.TokenURL),
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func (p *GitHub) BuildAuthorizationURL(cfg Config, state string, scopes []string) string {
	return p.oauth2Config(cfg, cfg.RedirectURI, scopesOrDefault(scopes, "read:user", "user:email")).AuthCodeURL(state)
}

func (p *GitHub) ExchangeCode(ctx context.Context, cfg Config, code, redirectURI string) (*model.TokenSet, error) {
	tok, err := p.oauth2Config(cfg, redirectURI, nil).Exchange(withClient(ctx, p.client), code)
	if err != nil {
		return nil, err
	}
	return tokenSetFromOAuth2(tok), nil
}

type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func (p *GitHub) FetchProfile(ctx context.Context, cfg Config, tokens *model.TokenSet) (*model.OAuthProfile, error) {
	userURL := cfg.extra(ExtraUserInfoURL, githubUserURL)
	headers := map[string]string{
		"Authorization": "Bearer " + tokens.AccessToken,
		"Accept":        "application/vnd.github+json",
	}

	var u githubUser
	if err := getJSON(ctx, p.client, userURL, headers, &u); err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if u.ID == 0 {
		return nil, requireExternalID("")
	}

	email := u.Email
	if email == "" {
		// Private emails only show up on the emails endpoint.
		var emails []githubEmail
		if err := getJSON(ctx, p.client, userURL+"/emails", headers, &emails); err == nil {
			email = primaryGitHubEmail(emails)
		}
	}

	username := u.Login
	if username == "" {
		username = u.Name
	}

	return &model.OAuthProfile{
		ExternalID: strconv.FormatInt(u.ID, 10),
		Username:   username,
		Email:      email,
		Avatar:     u.AvatarURL,
		Raw:        rawJSON(u),
	}, nil
}

func primaryGitHubEmail(emails []githubEmail) string {
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email
		}
	}
	for _, e := range emails {
		if e.Verified {
			return e.Email
		}
	}
	return ""
}

// RefreshToken is unsupported: classic OAuth app tokens do not expire.
func (p *GitHub) RefreshToken(ctx context.Context, cfg Config, refreshToken string) (*model.TokenSet, error) {
	return nil, ErrRefreshUnsupported
}
