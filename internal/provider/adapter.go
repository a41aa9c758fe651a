// Package provider turns each identity provider's authorize, token and
// profile endpoints into one Adapter contract.
package provider

import (
	"context"
	"errors"
	"strings"

	"github.com/openclaw/oauth-bridge-go/internal/model"
)

// ErrRefreshUnsupported is returned by adapters whose provider cannot refresh tokens.
var ErrRefreshUnsupported = errors.New("provider does not support token refresh")

// Extra config keys understood by every adapter.
const (
	ExtraAuthURL     = "auth_url"
	ExtraTokenURL    = "token_url"
	ExtraUserInfoURL = "userinfo_url"
	ExtraUseUnionID  = "use_unionid"
)

// Config is a provider configuration with its client secret already decrypted.
// It only exists in memory for the duration of a call.
type Config struct {
	Name         string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
	Extra        map[string]string
}

func (c Config) extra(key, fallback string) string {
	if v := strings.TrimSpace(c.Extra[key]); v != "" {
		return v
	}
	return fallback
}

func (c Config) flag(key string) bool {
	switch strings.ToLower(c.Extra[key]) {
	case "1", "true", "yes":
		return true
	}
	return false
}

type Adapter interface {
	Name() string
	// BuildAuthorizationURL falls back to the provider's default scopes when scopes is empty.
	BuildAuthorizationURL(cfg Config, state string, scopes []string) string
	ExchangeCode(ctx context.Context, cfg Config, code, redirectURI string) (*model.TokenSet, error)
	// FetchProfile takes the whole token set because some providers return the
	// user's openid alongside the access token rather than from a profile call.
	FetchProfile(ctx context.Context, cfg Config, tokens *model.TokenSet) (*model.OAuthProfile, error)
	RefreshToken(ctx context.Context, cfg Config, refreshToken string) (*model.TokenSet, error)
}

func scopesOrDefault(scopes []string, defaults ...string) []string {
	if len(scopes) == 0 {
		return defaults
	}
	return scopes
}

func requireExternalID(id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("profile has no stable user id")
	}
	return nil
}
