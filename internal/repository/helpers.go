package repository

import (
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/lib/pq"

	"github.com/openclaw/oauth-bridge-go/internal/database"
)

var (
	ErrStateNotFound         = errors.New("oauth state not found")
	ErrStateExpired          = errors.New("oauth state expired")
	ErrStateConsumed         = errors.New("oauth state already consumed")
	ErrStateProviderMismatch = errors.New("oauth state issued for another provider")

	// ErrExternalIdentityTaken is returned when (provider, provider_user_id) already
	// belongs to a binding of another user.
	ErrExternalIdentityTaken = errors.New("external identity already bound")
)

const (
	uniqueViolation            = "23505"
	externalIdentityConstraint = "user_oauth_accounts_external_identity_key"
)

// sqlxDB is satisfied by both *sqlx.DB and *sqlx.Tx.
type sqlxDB = database.DBTX

// HandleNotFound processes a database query result, converting sql.ErrNoRows
// to a nil result without error. This is a common pattern for Find* operations
// where a missing row is not an error condition.
//
// Usage:
//
//	var item model.Item
//	err := r.db.GetContext(ctx, &item, query, args...)
//	return HandleNotFound(&item, err)
func HandleNotFound[T any](result *T, err error) (*T, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return string(pqErr.Code) == uniqueViolation && pqErr.Constraint == constraint
}

// nullableJSON sends an empty document as SQL NULL so COALESCE can default it.
func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
