package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/openclaw/oauth-bridge-go/internal/errors"
	"github.com/openclaw/oauth-bridge-go/internal/model"
)

// failingStateRepo fails every write.
type failingStateRepo struct {
	*memStateRepo
}

func (failingStateRepo) Create(ctx context.Context, p model.CreateOAuthStateParams) (*model.OAuthState, error) {
	return nil, errors.New("connection refused")
}

func (failingStateRepo) Consume(ctx context.Context, state, provider string, now time.Time) (*model.OAuthState, error) {
	return nil, errors.New("connection refused")
}

func TestStateStore(t *testing.T) {
	ctx := context.Background()

	newStore := func() (*StateStore, *memStateRepo, *testClock) {
		repo := newMemStateRepo()
		clock := newTestClock()
		return NewStateStore(repo, 15*time.Minute, clock.Now), repo, clock
	}

	t.Run("issued tokens are unique and url safe", func(t *testing.T) {
		store, _, _ := newStore()
		seen := map[string]bool{}
		for i := 0; i < 50; i++ {
			token, err := store.Issue(ctx, IssueStateParams{Provider: model.ProviderGitHub})
			require.NoError(t, err)
			assert.Len(t, token, 43)
			assert.NotContains(t, token, "+")
			assert.NotContains(t, token, "/")
			assert.False(t, seen[token])
			seen[token] = true
		}
	})

	t.Run("consume returns the payload once", func(t *testing.T) {
		store, _, _ := newStore()
		token, err := store.Issue(ctx, IssueStateParams{
			Provider: model.ProviderQQ,
			UserID:   strPtr("7"),
			Payload:  model.StatePayload{Intent: model.IntentBind, UserID: "7", RedirectURI: "/me"},
		})
		require.NoError(t, err)

		payload, err := store.Consume(ctx, token, model.ProviderQQ)
		require.NoError(t, err)
		assert.Equal(t, model.IntentBind, payload.Intent)
		assert.Equal(t, "7", payload.UserID)
		assert.Equal(t, "/me", payload.RedirectURI)

		_, err = store.Consume(ctx, token, model.ProviderQQ)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeStateAlreadyUsed))
	})

	t.Run("user id on the record fills an empty payload user", func(t *testing.T) {
		store, _, _ := newStore()
		token, err := store.Issue(ctx, IssueStateParams{
			Provider: model.ProviderQQ,
			UserID:   strPtr("7"),
			Payload:  model.StatePayload{Intent: model.IntentBind},
		})
		require.NoError(t, err)

		payload, err := store.Consume(ctx, token, model.ProviderQQ)
		require.NoError(t, err)
		assert.Equal(t, "7", payload.UserID)
	})

	t.Run("exactly at expiry is still valid", func(t *testing.T) {
		store, _, clock := newStore()
		token, err := store.Issue(ctx, IssueStateParams{Provider: model.ProviderGitHub})
		require.NoError(t, err)

		clock.Advance(15 * time.Minute)
		_, err = store.Consume(ctx, token, model.ProviderGitHub)
		assert.NoError(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		store, repo, clock := newStore()
		token, err := store.Issue(ctx, IssueStateParams{Provider: model.ProviderGitHub})
		require.NoError(t, err)

		clock.Advance(15*time.Minute + time.Second)
		_, err = store.Consume(ctx, token, model.ProviderGitHub)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeStateExpired))

		stored, _ := repo.FindByState(ctx, token)
		assert.Equal(t, model.StateStatusExpired, stored.Status)
	})

	t.Run("provider mismatch leaves the state valid", func(t *testing.T) {
		store, _, _ := newStore()
		token, err := store.Issue(ctx, IssueStateParams{Provider: model.ProviderGitHub})
		require.NoError(t, err)

		_, err = store.Consume(ctx, token, model.ProviderFeishu)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeStateProviderMismatch))

		_, err = store.Consume(ctx, token, model.ProviderGitHub)
		assert.NoError(t, err)
	})

	t.Run("empty token", func(t *testing.T) {
		store, _, _ := newStore()
		_, err := store.Consume(ctx, "", model.ProviderGitHub)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeStateNotFound))
	})

	t.Run("storage failures are persistence errors", func(t *testing.T) {
		store := NewStateStore(failingStateRepo{newMemStateRepo()}, time.Minute, nil)

		_, err := store.Issue(ctx, IssueStateParams{Provider: model.ProviderGitHub})
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInternalPersistence))

		_, err = store.Consume(ctx, "abc", model.ProviderGitHub)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInternalPersistence))
	})
}
