package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/openclaw/oauth-bridge-go/internal/model"
	"github.com/openclaw/oauth-bridge-go/internal/repository"
)

// UserProvisioner creates local users for first-time logins.
type UserProvisioner interface {
	CreateUserFromProfile(ctx context.Context, provider string, profile *model.OAuthProfile) (*model.User, error)
	WithTx(tx *sqlx.Tx) UserProvisioner
}

type repoUserProvisioner struct {
	users repository.UserRepository
}

func NewUserProvisioner(users repository.UserRepository) UserProvisioner {
	return &repoUserProvisioner{users: users}
}

func (p *repoUserProvisioner) WithTx(tx *sqlx.Tx) UserProvisioner {
	return &repoUserProvisioner{users: p.users.WithTx(tx)}
}

func (p *repoUserProvisioner) CreateUserFromProfile(ctx context.Context, provider string, profile *model.OAuthProfile) (*model.User, error) {
	username := profile.Username
	if username == "" {
		username = fmt.Sprintf("%s_%s", provider, profile.ExternalID)
	}
	return p.users.Create(ctx, model.CreateUserParams{
		ID:       uuid.NewString(),
		Username: username,
		Email:    optionalString(profile.Email),
		Avatar:   optionalString(profile.Avatar),
	})
}

// AuthMethodPolicy decides whether a user may lose a binding.
type AuthMethodPolicy interface {
	// AllowUnbind is called with the user row locked. user is nil when the
	// user lives outside this database. remaining excludes the binding being removed.
	AllowUnbind(ctx context.Context, user *model.User, remaining int) (bool, error)
}

// KeepOneMethodPolicy requires a password or at least one other binding.
type KeepOneMethodPolicy struct{}

func (KeepOneMethodPolicy) AllowUnbind(ctx context.Context, user *model.User, remaining int) (bool, error) {
	if remaining > 0 {
		return true, nil
	}
	return user != nil && user.HasPassword, nil
}
