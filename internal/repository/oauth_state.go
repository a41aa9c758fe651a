package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/openclaw/oauth-bridge-go/internal/model"
)

type OAuthStateRepository interface {
	Create(ctx context.Context, params model.CreateOAuthStateParams) (*model.OAuthState, error)
	// Consume flips a valid, unexpired state issued for provider to consumed and
	// returns it. Exactly one concurrent caller can succeed for a given state.
	// Failures are ErrStateNotFound, ErrStateProviderMismatch, ErrStateConsumed
	// or ErrStateExpired.
	Consume(ctx context.Context, state, provider string, now time.Time) (*model.OAuthState, error)
	FindByState(ctx context.Context, state string) (*model.OAuthState, error)
	MarkExpired(ctx context.Context, now time.Time) (int64, error)
	DeleteStale(ctx context.Context, before time.Time) (int64, error)
}

type oauthStateRepo struct {
	db sqlxDB
}

func NewOAuthStateRepository(db *sqlx.DB) OAuthStateRepository {
	return &oauthStateRepo{db: db}
}

func (r *oauthStateRepo) Create(ctx context.Context, params model.CreateOAuthStateParams) (*model.OAuthState, error) {
	var s model.OAuthState
	err := r.db.GetContext(ctx, &s, `
		INSERT INTO oauth_states (id, state, provider, user_id, payload, client_ip, user_agent, status, expires_at, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, '{}'::jsonb), $6, $7, 'valid', $8, $9)
		RETURNING *
	`, params.ID, params.State, params.Provider, params.UserID, nullableJSON(params.Payload),
		params.ClientIP, params.UserAgent, params.ExpiresAt, params.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *oauthStateRepo) Consume(ctx context.Context, state, provider string, now time.Time) (*model.OAuthState, error) {
	var s model.OAuthState
	err := r.db.GetContext(ctx, &s, `
		UPDATE oauth_states
		SET status = 'consumed', consumed_at = $3
		WHERE state = $1 AND provider = $2 AND status = 'valid' AND expires_at >= $3
		RETURNING *
	`, state, provider, now)
	if err == nil {
		return &s, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return nil, r.diagnose(ctx, state, provider, now)
}

// diagnose explains why a consume matched no row.
func (r *oauthStateRepo) diagnose(ctx context.Context, state, provider string, now time.Time) error {
	existing, err := r.FindByState(ctx, state)
	if err != nil {
		return err
	}
	switch {
	case existing == nil:
		return ErrStateNotFound
	case existing.Provider != provider:
		return ErrStateProviderMismatch
	case existing.Status == model.StateStatusConsumed:
		return ErrStateConsumed
	case existing.Status == model.StateStatusExpired || now.After(existing.ExpiresAt):
		if existing.Status == model.StateStatusValid {
			if _, err := r.db.ExecContext(ctx, `
				UPDATE oauth_states SET status = 'expired'
				WHERE id = $1 AND status = 'valid'
			`, existing.ID); err != nil {
				return err
			}
		}
		return ErrStateExpired
	default:
		// Lost a race with a concurrent consume.
		return ErrStateConsumed
	}
}

func (r *oauthStateRepo) FindByState(ctx context.Context, state string) (*model.OAuthState, error) {
	var s model.OAuthState
	err := r.db.GetContext(ctx, &s, `SELECT * FROM oauth_states WHERE state = $1`, state)
	return HandleNotFound(&s, err)
}

func (r *oauthStateRepo) MarkExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE oauth_states SET status = 'expired'
		WHERE status = 'valid' AND expires_at < $1
	`, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// DeleteStale removes non-valid states created before the retention cutoff.
func (r *oauthStateRepo) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM oauth_states
		WHERE status <> 'valid' AND created_at < $1
	`, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
