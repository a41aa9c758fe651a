package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/openclaw/oauth-bridge-go/internal/errors"
	"github.com/openclaw/oauth-bridge-go/internal/model"
	"github.com/openclaw/oauth-bridge-go/internal/repository"
	"github.com/openclaw/oauth-bridge-go/internal/util"
)

// StateStore issues and consumes one-time OAuth state tokens.
type StateStore struct {
	repo repository.OAuthStateRepository
	ttl  time.Duration
	now  func() time.Time
}

func NewStateStore(repo repository.OAuthStateRepository, ttl time.Duration, now func() time.Time) *StateStore {
	if now == nil {
		now = time.Now
	}
	return &StateStore{repo: repo, ttl: ttl, now: now}
}

type IssueStateParams struct {
	Provider  string
	UserID    *string
	Payload   model.StatePayload
	ClientIP  string
	UserAgent string
}

// Issue persists a valid state and returns only its token.
func (s *StateStore) Issue(ctx context.Context, params IssueStateParams) (string, error) {
	token, err := util.GenerateToken()
	if err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}

	payload, err := json.Marshal(params.Payload)
	if err != nil {
		return "", fmt.Errorf("encode state payload: %w", err)
	}

	now := s.now()
	_, err = s.repo.Create(ctx, model.CreateOAuthStateParams{
		ID:        uuid.NewString(),
		State:     token,
		Provider:  params.Provider,
		UserID:    params.UserID,
		Payload:   payload,
		ClientIP:  params.ClientIP,
		UserAgent: params.UserAgent,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	})
	if err != nil {
		return "", apperrors.Persistence(err)
	}
	return token, nil
}

// Consume spends a state token for provider and returns its payload.
func (s *StateStore) Consume(ctx context.Context, token, provider string) (*model.StatePayload, error) {
	if token == "" {
		return nil, apperrors.StateNotFound()
	}

	state, err := s.repo.Consume(ctx, token, provider, s.now())
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrStateNotFound):
			return nil, apperrors.StateNotFound()
		case errors.Is(err, repository.ErrStateExpired):
			return nil, apperrors.StateExpired()
		case errors.Is(err, repository.ErrStateConsumed):
			return nil, apperrors.StateAlreadyUsed()
		case errors.Is(err, repository.ErrStateProviderMismatch):
			return nil, apperrors.StateProviderMismatch()
		default:
			return nil, apperrors.Persistence(err)
		}
	}

	var payload model.StatePayload
	if len(state.Payload) > 0 {
		if err := json.Unmarshal(state.Payload, &payload); err != nil {
			return nil, apperrors.InvalidFlowState("unreadable state payload").WithCause(err)
		}
	}
	if state.UserID != nil && payload.UserID == "" {
		payload.UserID = *state.UserID
	}
	return &payload, nil
}
