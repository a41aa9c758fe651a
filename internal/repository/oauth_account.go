package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/openclaw/oauth-bridge-go/internal/model"
)

type OAuthAccountRepository interface {
	FindByProviderAndExternalID(ctx context.Context, provider, externalID string) (*model.OAuthAccount, error)
	FindByUserAndProvider(ctx context.Context, userID, provider string) (*model.OAuthAccount, error)
	FindByUserID(ctx context.Context, userID string) ([]*model.OAuthAccount, error)
	CountByUserID(ctx context.Context, userID string) (int, error)
	// Upsert inserts a binding or replaces the user's existing binding for the
	// provider. It returns ErrExternalIdentityTaken when the external identity
	// is already bound to a different user.
	Upsert(ctx context.Context, params model.UpsertOAuthAccountParams) (*model.OAuthAccount, error)
	UpdateTokens(ctx context.Context, id, accessToken string, refreshToken *string, expiresAt *time.Time) (*model.OAuthAccount, error)
	Delete(ctx context.Context, id string) error
	WithTx(tx *sqlx.Tx) OAuthAccountRepository
}

type oauthAccountRepo struct {
	db sqlxDB
}

func NewOAuthAccountRepository(db *sqlx.DB) OAuthAccountRepository {
	return &oauthAccountRepo{db: db}
}

func (r *oauthAccountRepo) WithTx(tx *sqlx.Tx) OAuthAccountRepository {
	return &oauthAccountRepo{db: tx}
}

func (r *oauthAccountRepo) FindByProviderAndExternalID(ctx context.Context, provider, externalID string) (*model.OAuthAccount, error) {
	var a model.OAuthAccount
	err := r.db.GetContext(ctx, &a, `
		SELECT * FROM user_oauth_accounts
		WHERE provider = $1 AND provider_user_id = $2
	`, provider, externalID)
	return HandleNotFound(&a, err)
}

func (r *oauthAccountRepo) FindByUserAndProvider(ctx context.Context, userID, provider string) (*model.OAuthAccount, error) {
	var a model.OAuthAccount
	err := r.db.GetContext(ctx, &a, `
		SELECT * FROM user_oauth_accounts
		WHERE user_id = $1 AND provider = $2
	`, userID, provider)
	return HandleNotFound(&a, err)
}

func (r *oauthAccountRepo) FindByUserID(ctx context.Context, userID string) ([]*model.OAuthAccount, error) {
	var accounts []*model.OAuthAccount
	err := r.db.SelectContext(ctx, &accounts, `
		SELECT * FROM user_oauth_accounts
		WHERE user_id = $1
		ORDER BY created_at ASC
	`, userID)
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *oauthAccountRepo) CountByUserID(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM user_oauth_accounts WHERE user_id = $1
	`, userID)
	return count, err
}

func (r *oauthAccountRepo) Upsert(ctx context.Context, params model.UpsertOAuthAccountParams) (*model.OAuthAccount, error) {
	var a model.OAuthAccount
	err := r.db.GetContext(ctx, &a, `
		INSERT INTO user_oauth_accounts (
			id, user_id, provider, provider_user_id, provider_username, provider_email,
			provider_avatar, provider_data, access_token, refresh_token, token_expires_at,
			last_login_at, last_login_ip
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, '{}'::jsonb), $9, $10, $11, $12, $13)
		ON CONFLICT (user_id, provider) DO UPDATE SET
			provider_user_id = EXCLUDED.provider_user_id,
			provider_username = EXCLUDED.provider_username,
			provider_email = EXCLUDED.provider_email,
			provider_avatar = EXCLUDED.provider_avatar,
			provider_data = EXCLUDED.provider_data,
			access_token = EXCLUDED.access_token,
			refresh_token = CASE
				WHEN user_oauth_accounts.provider_user_id = EXCLUDED.provider_user_id
				THEN COALESCE(EXCLUDED.refresh_token, user_oauth_accounts.refresh_token)
				ELSE EXCLUDED.refresh_token
			END,
			token_expires_at = EXCLUDED.token_expires_at,
			last_login_at = COALESCE(EXCLUDED.last_login_at, user_oauth_accounts.last_login_at),
			last_login_ip = COALESCE(EXCLUDED.last_login_ip, user_oauth_accounts.last_login_ip),
			updated_at = NOW()
		RETURNING *
	`, params.ID, params.UserID, params.Provider, params.ProviderUserID, params.ProviderUsername,
		params.ProviderEmail, params.ProviderAvatar, nullableJSON(params.ProviderData), params.AccessToken,
		params.RefreshToken, params.TokenExpiresAt, params.LastLoginAt, params.LastLoginIP)
	if err != nil {
		if isUniqueViolation(err, externalIdentityConstraint) {
			return nil, ErrExternalIdentityTaken
		}
		return nil, err
	}
	return &a, nil
}

// UpdateTokens replaces token material. A nil refreshToken keeps the stored one.
func (r *oauthAccountRepo) UpdateTokens(ctx context.Context, id, accessToken string, refreshToken *string, expiresAt *time.Time) (*model.OAuthAccount, error) {
	var a model.OAuthAccount
	err := r.db.GetContext(ctx, &a, `
		UPDATE user_oauth_accounts
		SET access_token = $2,
			refresh_token = COALESCE($3, refresh_token),
			token_expires_at = $4,
			updated_at = NOW()
		WHERE id = $1
		RETURNING *
	`, id, accessToken, refreshToken, expiresAt)
	return HandleNotFound(&a, err)
}

func (r *oauthAccountRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM user_oauth_accounts WHERE id = $1`, id)
	return err
}
