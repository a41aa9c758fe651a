package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/oauth-bridge-go/internal/errors"
	"github.com/openclaw/oauth-bridge-go/internal/model"
	"github.com/openclaw/oauth-bridge-go/internal/provider"
	"github.com/openclaw/oauth-bridge-go/internal/repository"
	"github.com/openclaw/oauth-bridge-go/internal/secrets"
)

// TokenVault persists bindings with their token material encrypted.
type TokenVault struct {
	repo   repository.OAuthAccountRepository
	codec  secrets.Codec
	margin time.Duration
	now    func() time.Time
}

func NewTokenVault(repo repository.OAuthAccountRepository, codec secrets.Codec, margin time.Duration, now func() time.Time) *TokenVault {
	if now == nil {
		now = time.Now
	}
	return &TokenVault{repo: repo, codec: codec, margin: margin, now: now}
}

func (v *TokenVault) WithTx(tx *sqlx.Tx) *TokenVault {
	return &TokenVault{repo: v.repo.WithTx(tx), codec: v.codec, margin: v.margin, now: v.now}
}

type StoreTokensParams struct {
	UserID   string
	Provider string
	Tokens   *model.TokenSet
	Profile  *model.OAuthProfile
	// Login stamps last_login_at. LoginIP is recorded when known.
	Login   bool
	LoginIP *string
}

// Store upserts the user's binding for the provider. Repository errors are
// returned unwrapped so callers can match repository.ErrExternalIdentityTaken.
func (v *TokenVault) Store(ctx context.Context, params StoreTokensParams) (*model.OAuthAccount, error) {
	access, err := v.codec.Encrypt(params.Tokens.AccessToken)
	if err != nil {
		return nil, apperrors.Internal("Failed to protect tokens").WithCause(err)
	}
	refresh, err := secrets.EncryptOptional(v.codec, params.Tokens.RefreshToken)
	if err != nil {
		return nil, apperrors.Internal("Failed to protect tokens").WithCause(err)
	}

	now := v.now()
	var lastLoginAt *time.Time
	var loginIP *string
	if params.Login {
		lastLoginAt = &now
		loginIP = params.LoginIP
	}

	return v.repo.Upsert(ctx, model.UpsertOAuthAccountParams{
		ID:               uuid.NewString(),
		UserID:           params.UserID,
		Provider:         params.Provider,
		ProviderUserID:   params.Profile.ExternalID,
		ProviderUsername: params.Profile.Username,
		ProviderEmail:    optionalString(params.Profile.Email),
		ProviderAvatar:   optionalString(params.Profile.Avatar),
		ProviderData:     params.Profile.Raw,
		AccessToken:      access,
		RefreshToken:     refresh,
		TokenExpiresAt:   v.expiresAt(now, params.Tokens.ExpiresIn),
		LastLoginAt:      lastLoginAt,
		LastLoginIP:      loginIP,
	})
}

// expiresAt returns nil, the never-expires sentinel, when the provider gave no TTL.
func (v *TokenVault) expiresAt(now time.Time, expiresIn int64) *time.Time {
	if expiresIn <= 0 {
		return nil
	}
	t := now.Add(time.Duration(expiresIn) * time.Second)
	return &t
}

// NeedsRefresh reports whether the access token expires within the refresh margin.
func (v *TokenVault) NeedsRefresh(binding *model.OAuthAccount) bool {
	if binding.TokenExpiresAt == nil {
		return false
	}
	return !v.now().Add(v.margin).Before(*binding.TokenExpiresAt)
}

// EnsureFresh refreshes the binding's tokens only when they are about to expire.
func (v *TokenVault) EnsureFresh(ctx context.Context, binding *model.OAuthAccount, adapter provider.Adapter, cfg provider.Config) (*model.OAuthAccount, bool, error) {
	if !v.NeedsRefresh(binding) {
		return binding, false, nil
	}
	refreshed, err := v.Refresh(ctx, binding, adapter, cfg)
	if err != nil {
		return nil, false, err
	}
	return refreshed, true, nil
}

// Refresh exchanges the stored refresh token for new tokens. On any failure the
// stored tokens are left untouched.
func (v *TokenVault) Refresh(ctx context.Context, binding *model.OAuthAccount, adapter provider.Adapter, cfg provider.Config) (*model.OAuthAccount, error) {
	if binding.RefreshToken == nil {
		return nil, apperrors.TokenRefreshUnavailable(binding.Provider)
	}
	refreshToken, err := v.codec.Decrypt(*binding.RefreshToken)
	if err != nil {
		return nil, apperrors.Internal("Stored tokens are unreadable").WithCause(err)
	}

	tokens, err := adapter.RefreshToken(ctx, cfg, refreshToken)
	if err != nil {
		if errors.Is(err, provider.ErrRefreshUnsupported) {
			return nil, apperrors.TokenRefreshUnavailable(binding.Provider)
		}
		log.Warn().Err(err).Str("provider", binding.Provider).Str("binding_id", binding.ID).Msg("token refresh failed")
		return nil, apperrors.TokenRefresh(binding.Provider, err)
	}

	access, err := v.codec.Encrypt(tokens.AccessToken)
	if err != nil {
		return nil, apperrors.Internal("Failed to protect tokens").WithCause(err)
	}
	refresh, err := secrets.EncryptOptional(v.codec, tokens.RefreshToken)
	if err != nil {
		return nil, apperrors.Internal("Failed to protect tokens").WithCause(err)
	}

	updated, err := v.repo.UpdateTokens(ctx, binding.ID, access, refresh, v.expiresAt(v.now(), tokens.ExpiresIn))
	if err != nil {
		return nil, apperrors.Persistence(err)
	}
	if updated == nil {
		return nil, apperrors.BindingNotFound(binding.Provider)
	}
	return updated, nil
}

// DecryptedTokens is plaintext token material for a binding.
type DecryptedTokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
}

func (v *TokenVault) Tokens(binding *model.OAuthAccount) (*DecryptedTokens, error) {
	access, err := v.codec.Decrypt(binding.AccessToken)
	if err != nil {
		return nil, apperrors.Internal("Stored tokens are unreadable").WithCause(err)
	}
	refresh, err := secrets.DecryptOptional(v.codec, binding.RefreshToken)
	if err != nil {
		return nil, apperrors.Internal("Stored tokens are unreadable").WithCause(err)
	}
	return &DecryptedTokens{AccessToken: access, RefreshToken: refresh, ExpiresAt: binding.TokenExpiresAt}, nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
