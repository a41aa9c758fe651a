package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/openclaw/oauth-bridge-go/internal/model"
)

type ProviderConfigRepository interface {
	// FindByName returns the provider unless it has been soft-deleted.
	FindByName(ctx context.Context, name string) (*model.ProviderConfig, error)
	ListEnabled(ctx context.Context) ([]*model.ProviderConfig, error)
	Upsert(ctx context.Context, params model.UpsertProviderConfigParams) (*model.ProviderConfig, error)
	SoftDelete(ctx context.Context, name string) error
}

type providerConfigRepo struct {
	db sqlxDB
}

func NewProviderConfigRepository(db *sqlx.DB) ProviderConfigRepository {
	return &providerConfigRepo{db: db}
}

func (r *providerConfigRepo) FindByName(ctx context.Context, name string) (*model.ProviderConfig, error) {
	var p model.ProviderConfig
	err := r.db.GetContext(ctx, &p, `
		SELECT * FROM oauth_providers
		WHERE name = $1 AND deleted_at IS NULL
	`, name)
	return HandleNotFound(&p, err)
}

func (r *providerConfigRepo) ListEnabled(ctx context.Context) ([]*model.ProviderConfig, error) {
	var providers []*model.ProviderConfig
	err := r.db.SelectContext(ctx, &providers, `
		SELECT * FROM oauth_providers
		WHERE enabled AND status = 'active' AND deleted_at IS NULL
		ORDER BY sort ASC, name ASC
	`)
	if err != nil {
		return nil, err
	}
	return providers, nil
}

func (r *providerConfigRepo) Upsert(ctx context.Context, params model.UpsertProviderConfigParams) (*model.ProviderConfig, error) {
	status := params.Status
	if status == "" {
		status = model.ProviderStatusActive
	}

	var p model.ProviderConfig
	err := r.db.GetContext(ctx, &p, `
		INSERT INTO oauth_providers (name, display_name, client_id, client_secret, redirect_uri, scopes, extra_config, enabled, status, sort)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (name) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			client_id = EXCLUDED.client_id,
			client_secret = EXCLUDED.client_secret,
			redirect_uri = EXCLUDED.redirect_uri,
			scopes = EXCLUDED.scopes,
			extra_config = EXCLUDED.extra_config,
			enabled = EXCLUDED.enabled,
			status = EXCLUDED.status,
			sort = EXCLUDED.sort,
			deleted_at = NULL,
			updated_at = NOW()
		RETURNING *
	`, params.Name, params.DisplayName, params.ClientID, params.ClientSecret, params.RedirectURI,
		pq.StringArray(params.Scopes), model.StringMap(params.ExtraConfig), params.Enabled, status, params.Sort)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *providerConfigRepo) SoftDelete(ctx context.Context, name string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE oauth_providers
		SET deleted_at = NOW(), enabled = FALSE, updated_at = NOW()
		WHERE name = $1 AND deleted_at IS NULL
	`, name)
	return err
}
