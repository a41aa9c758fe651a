package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/oauth-bridge-go/internal/database"
	apperrors "github.com/openclaw/oauth-bridge-go/internal/errors"
	"github.com/openclaw/oauth-bridge-go/internal/model"
	"github.com/openclaw/oauth-bridge-go/internal/provider"
	"github.com/openclaw/oauth-bridge-go/internal/repository"
	"github.com/openclaw/oauth-bridge-go/internal/secrets"
)

// memStateRepo mirrors the consume rules of the SQL and Redis stores.
type memStateRepo struct {
	mu      sync.Mutex
	records map[string]*model.OAuthState
}

func newMemStateRepo() *memStateRepo {
	return &memStateRepo{records: map[string]*model.OAuthState{}}
}

func (r *memStateRepo) Create(ctx context.Context, p model.CreateOAuthStateParams) (*model.OAuthState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := &model.OAuthState{
		ID:        p.ID,
		State:     p.State,
		Provider:  p.Provider,
		UserID:    p.UserID,
		Payload:   p.Payload,
		ClientIP:  p.ClientIP,
		UserAgent: p.UserAgent,
		Status:    model.StateStatusValid,
		ExpiresAt: p.ExpiresAt,
		CreatedAt: p.CreatedAt,
	}
	r.records[p.State] = s
	out := *s
	return &out, nil
}

func (r *memStateRepo) Consume(ctx context.Context, state, provider string, now time.Time) (*model.OAuthState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.records[state]
	switch {
	case !ok:
		return nil, repository.ErrStateNotFound
	case s.Provider != provider:
		return nil, repository.ErrStateProviderMismatch
	case s.Status == model.StateStatusConsumed:
		return nil, repository.ErrStateConsumed
	case s.Status == model.StateStatusExpired || now.After(s.ExpiresAt):
		s.Status = model.StateStatusExpired
		return nil, repository.ErrStateExpired
	}
	s.Status = model.StateStatusConsumed
	s.ConsumedAt = &now
	out := *s
	return &out, nil
}

func (r *memStateRepo) FindByState(ctx context.Context, state string) (*model.OAuthState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.records[state]
	if !ok {
		return nil, nil
	}
	out := *s
	return &out, nil
}

func (r *memStateRepo) MarkExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

func (r *memStateRepo) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

type mockAccountRepo struct {
	mock.Mock
}

func (m *mockAccountRepo) FindByProviderAndExternalID(ctx context.Context, provider, externalID string) (*model.OAuthAccount, error) {
	args := m.Called(ctx, provider, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.OAuthAccount), args.Error(1)
}

func (m *mockAccountRepo) FindByUserAndProvider(ctx context.Context, userID, provider string) (*model.OAuthAccount, error) {
	args := m.Called(ctx, userID, provider)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.OAuthAccount), args.Error(1)
}

func (m *mockAccountRepo) FindByUserID(ctx context.Context, userID string) ([]*model.OAuthAccount, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.OAuthAccount), args.Error(1)
}

func (m *mockAccountRepo) CountByUserID(ctx context.Context, userID string) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func (m *mockAccountRepo) Upsert(ctx context.Context, params model.UpsertOAuthAccountParams) (*model.OAuthAccount, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.OAuthAccount), args.Error(1)
}

func (m *mockAccountRepo) UpdateTokens(ctx context.Context, id, accessToken string, refreshToken *string, expiresAt *time.Time) (*model.OAuthAccount, error) {
	args := m.Called(ctx, id, accessToken, refreshToken, expiresAt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	if fn, ok := args.Get(0).(func(string, string, *string, *time.Time) *model.OAuthAccount); ok {
		return fn(id, accessToken, refreshToken, expiresAt), args.Error(1)
	}
	return args.Get(0).(*model.OAuthAccount), args.Error(1)
}

// echoUpdatedTokens returns the row UpdateTokens would write.
func echoUpdatedTokens(id, accessToken string, refreshToken *string, expiresAt *time.Time) *model.OAuthAccount {
	return &model.OAuthAccount{ID: id, AccessToken: accessToken, RefreshToken: refreshToken, TokenExpiresAt: expiresAt}
}

func (m *mockAccountRepo) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockAccountRepo) WithTx(tx *sqlx.Tx) repository.OAuthAccountRepository {
	return m
}

type mockUserRepo struct {
	mock.Mock
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *mockUserRepo) LockByID(ctx context.Context, id string) (*model.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *mockUserRepo) Create(ctx context.Context, params model.CreateUserParams) (*model.User, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *mockUserRepo) WithTx(tx *sqlx.Tx) repository.UserRepository {
	return m
}

type mockProviderRepo struct {
	mock.Mock
}

func (m *mockProviderRepo) FindByName(ctx context.Context, name string) (*model.ProviderConfig, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ProviderConfig), args.Error(1)
}

func (m *mockProviderRepo) ListEnabled(ctx context.Context) ([]*model.ProviderConfig, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.ProviderConfig), args.Error(1)
}

func (m *mockProviderRepo) Upsert(ctx context.Context, params model.UpsertProviderConfigParams) (*model.ProviderConfig, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ProviderConfig), args.Error(1)
}

func (m *mockProviderRepo) SoftDelete(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

type mockAdapter struct {
	mock.Mock
	name string
}

func (m *mockAdapter) Name() string { return m.name }

func (m *mockAdapter) BuildAuthorizationURL(cfg provider.Config, state string, scopes []string) string {
	return "https://idp.example.com/" + m.name + "/authorize?state=" + state
}

func (m *mockAdapter) ExchangeCode(ctx context.Context, cfg provider.Config, code, redirectURI string) (*model.TokenSet, error) {
	args := m.Called(ctx, cfg, code, redirectURI)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TokenSet), args.Error(1)
}

func (m *mockAdapter) FetchProfile(ctx context.Context, cfg provider.Config, tokens *model.TokenSet) (*model.OAuthProfile, error) {
	args := m.Called(ctx, cfg, tokens)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.OAuthProfile), args.Error(1)
}

func (m *mockAdapter) RefreshToken(ctx context.Context, cfg provider.Config, refreshToken string) (*model.TokenSet, error) {
	args := m.Called(ctx, cfg, refreshToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TokenSet), args.Error(1)
}

// fakeTransactor runs fn without a real transaction; mocks ignore the nil tx.
type fakeTransactor struct{}

func (fakeTransactor) WithTx(ctx context.Context, fn database.TxFunc) error {
	return fn(nil)
}

type staticProviderSource struct {
	configs  map[string]*provider.Config
	disabled map[string]bool
}

func (s *staticProviderSource) GetEnabledProvider(ctx context.Context, name string) (*provider.Config, error) {
	if s.disabled[name] {
		return nil, apperrors.ProviderDisabled(name)
	}
	cfg, ok := s.configs[name]
	if !ok {
		return nil, apperrors.ProviderNotFound(name)
	}
	return cfg, nil
}

func (s *staticProviderSource) ListProviders(ctx context.Context) ([]ProviderInfo, error) {
	var infos []ProviderInfo
	for name := range s.configs {
		infos = append(infos, ProviderInfo{Name: name, DisplayName: name})
	}
	return infos, nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCodec(t *testing.T) secrets.Codec {
	t.Helper()
	key := make([]byte, secrets.KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	codec, err := secrets.NewAESCodec(key, "test")
	require.NoError(t, err)
	return codec
}

func strPtr(s string) *string { return &s }
