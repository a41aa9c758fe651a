package model

import (
	"encoding/json"
	"time"
)

// OAuthState is a one-time CSRF nonce tying an authorization request to its callback.
type OAuthState struct {
	ID         string          `db:"id" json:"id"`
	State      string          `db:"state" json:"-"`
	Provider   string          `db:"provider" json:"provider"`
	UserID     *string         `db:"user_id" json:"userId,omitempty"`
	Payload    json.RawMessage `db:"payload" json:"-"`
	ClientIP   string          `db:"client_ip" json:"clientIp"`
	UserAgent  string          `db:"user_agent" json:"userAgent"`
	Status     StateStatus     `db:"status" json:"status"`
	ExpiresAt  time.Time       `db:"expires_at" json:"expiresAt"`
	ConsumedAt *time.Time      `db:"consumed_at" json:"consumedAt,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"createdAt"`
}

type CreateOAuthStateParams struct {
	ID        string
	State     string
	Provider  string
	UserID    *string
	Payload   json.RawMessage
	ClientIP  string
	UserAgent string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// StatePayload travels inside the state record from BeginAuth to HandleCallback.
type StatePayload struct {
	Intent      Intent `json:"intent"`
	UserID      string `json:"userId,omitempty"`
	RedirectURI string `json:"redirectUri,omitempty"`
}

// OAuthAccount binds one local user to one external provider account.
// AccessToken and RefreshToken hold ciphertext.
type OAuthAccount struct {
	ID               string          `db:"id" json:"id"`
	UserID           string          `db:"user_id" json:"userId"`
	Provider         string          `db:"provider" json:"provider"`
	ProviderUserID   string          `db:"provider_user_id" json:"providerUserId"`
	ProviderUsername string          `db:"provider_username" json:"providerUsername"`
	ProviderEmail    *string         `db:"provider_email" json:"providerEmail,omitempty"`
	ProviderAvatar   *string         `db:"provider_avatar" json:"providerAvatar,omitempty"`
	ProviderData     json.RawMessage `db:"provider_data" json:"-"`
	AccessToken      string          `db:"access_token" json:"-"`
	RefreshToken     *string         `db:"refresh_token" json:"-"`
	TokenExpiresAt   *time.Time      `db:"token_expires_at" json:"tokenExpiresAt,omitempty"`
	Status           BindingStatus   `db:"status" json:"status"`
	LastLoginAt      *time.Time      `db:"last_login_at" json:"lastLoginAt,omitempty"`
	LastLoginIP      *string         `db:"last_login_ip" json:"lastLoginIp,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updatedAt"`
}

// UpsertOAuthAccountParams carries already-encrypted token material.
type UpsertOAuthAccountParams struct {
	ID               string
	UserID           string
	Provider         string
	ProviderUserID   string
	ProviderUsername string
	ProviderEmail    *string
	ProviderAvatar   *string
	ProviderData     json.RawMessage
	AccessToken      string
	RefreshToken     *string
	TokenExpiresAt   *time.Time
	LastLoginAt      *time.Time
	LastLoginIP      *string
}

// TokenSet is what a provider hands back from a code exchange or a refresh.
// ExpiresIn is in seconds; zero means the provider did not say.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
	Extra        map[string]string
}

// OAuthProfile is a provider's user info reduced to the fields every provider can fill.
type OAuthProfile struct {
	ExternalID string
	Username   string
	Email      string
	Avatar     string
	Raw        json.RawMessage
}
