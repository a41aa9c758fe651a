package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/oauth-bridge-go/internal/audit"
	"github.com/openclaw/oauth-bridge-go/internal/database"
	apperrors "github.com/openclaw/oauth-bridge-go/internal/errors"
	"github.com/openclaw/oauth-bridge-go/internal/model"
	"github.com/openclaw/oauth-bridge-go/internal/provider"
	"github.com/openclaw/oauth-bridge-go/internal/repository"
	"github.com/openclaw/oauth-bridge-go/internal/util"
)

// Transactor runs fn in a database transaction. *database.DB satisfies it.
type Transactor interface {
	WithTx(ctx context.Context, fn database.TxFunc) error
}

// ProviderConfigSource yields decrypted provider configs.
type ProviderConfigSource interface {
	GetEnabledProvider(ctx context.Context, name string) (*provider.Config, error)
	ListProviders(ctx context.Context) ([]ProviderInfo, error)
}

type Action string

const (
	ActionLogin Action = "login"
	ActionBind  Action = "bind"
)

// Outcome is the result of a successful callback.
type Outcome struct {
	Action  Action              `json:"action"`
	UserID  string              `json:"userId"`
	User    *model.User         `json:"user,omitempty"`
	Binding *model.OAuthAccount `json:"binding"`
	Created bool                `json:"created"`
	// RedirectURI is where the client asked to land after the flow.
	RedirectURI string `json:"redirectUri,omitempty"`
}

type BeginAuthParams struct {
	Provider    string
	UserID      *string
	RedirectURI string
	ClientIP    string
	UserAgent   string
}

type BeginAuthResult struct {
	AuthURL string `json:"authUrl"`
	State   string `json:"state"`
}

type CallbackParams struct {
	Provider string
	Code     string
	State    string
	// Error is the provider's error parameter when the user declined.
	Error     string
	ClientIP  string
	UserAgent string
}

type TokenResult struct {
	AccessToken  string     `json:"-"`
	RefreshToken string     `json:"-"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
	Refreshed    bool       `json:"refreshed"`
}

type UnbindResult struct {
	UserID    string    `json:"userId"`
	Provider  string    `json:"provider"`
	UnboundAt time.Time `json:"unboundAt"`
}

// OAuthService drives the authorization code flow. It holds no per-flow state;
// everything a callback needs comes back out of the state token.
type OAuthService struct {
	tx          Transactor
	registry    *provider.Registry
	providers   ProviderConfigSource
	states      *StateStore
	vault       *TokenVault
	accountRepo repository.OAuthAccountRepository
	userRepo    repository.UserRepository
	provisioner UserProvisioner
	policy      AuthMethodPolicy
	now         func() time.Time
}

func NewOAuthService(
	tx Transactor,
	registry *provider.Registry,
	providers ProviderConfigSource,
	states *StateStore,
	vault *TokenVault,
	accountRepo repository.OAuthAccountRepository,
	userRepo repository.UserRepository,
	provisioner UserProvisioner,
	policy AuthMethodPolicy,
) *OAuthService {
	if policy == nil {
		policy = KeepOneMethodPolicy{}
	}
	return &OAuthService{
		tx:          tx,
		registry:    registry,
		providers:   providers,
		states:      states,
		vault:       vault,
		accountRepo: accountRepo,
		userRepo:    userRepo,
		provisioner: provisioner,
		policy:      policy,
		now:         time.Now,
	}
}

func (s *OAuthService) resolveProvider(ctx context.Context, name string) (provider.Adapter, *provider.Config, error) {
	adapter, ok := s.registry.Get(name)
	if !ok {
		return nil, nil, apperrors.ProviderNotFound(name)
	}
	cfg, err := s.providers.GetEnabledProvider(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	return adapter, cfg, nil
}

// ListProviders returns enabled providers that have an adapter.
func (s *OAuthService) ListProviders(ctx context.Context) ([]ProviderInfo, error) {
	infos, err := s.providers.ListProviders(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ProviderInfo, 0, len(infos))
	for _, info := range infos {
		if _, ok := s.registry.Get(info.Name); ok {
			out = append(out, info)
		}
	}
	return out, nil
}

func (s *OAuthService) BeginAuth(ctx context.Context, params BeginAuthParams) (*BeginAuthResult, error) {
	if params.RedirectURI != "" && !isLocalRedirect(params.RedirectURI) {
		return nil, apperrors.InvalidInput("redirect_uri", "must be a path on this site")
	}

	adapter, cfg, err := s.resolveProvider(ctx, params.Provider)
	if err != nil {
		return nil, err
	}

	payload := model.StatePayload{Intent: model.IntentLogin, RedirectURI: params.RedirectURI}
	if params.UserID != nil && *params.UserID != "" {
		user, err := s.userRepo.FindByID(ctx, *params.UserID)
		if err != nil {
			return nil, apperrors.Persistence(err)
		}
		if user == nil {
			return nil, apperrors.NotFound("User")
		}
		payload.Intent = model.IntentBind
		payload.UserID = *params.UserID
	} else {
		params.UserID = nil
	}

	state, err := s.states.Issue(ctx, IssueStateParams{
		Provider:  params.Provider,
		UserID:    params.UserID,
		Payload:   payload,
		ClientIP:  params.ClientIP,
		UserAgent: params.UserAgent,
	})
	if err != nil {
		return nil, err
	}

	audit.Log(ctx, audit.Event{
		Type:      audit.EventOAuthBegin,
		UserID:    payload.UserID,
		Provider:  params.Provider,
		IP:        params.ClientIP,
		UserAgent: params.UserAgent,
		Details:   map[string]interface{}{"intent": string(payload.Intent)},
	})

	return &BeginAuthResult{
		AuthURL: adapter.BuildAuthorizationURL(*cfg, state, cfg.Scopes),
		State:   state,
	}, nil
}

// HandleCallback validates the callback, talks to the provider and resolves
// the external identity to a login or a bind. The state is consumed before
// anything else, including a provider error, so a callback can never be replayed.
func (s *OAuthService) HandleCallback(ctx context.Context, params CallbackParams) (*Outcome, error) {
	adapter, cfg, err := s.resolveProvider(ctx, params.Provider)
	if err != nil {
		return nil, err
	}

	payload, err := s.states.Consume(ctx, params.State, params.Provider)
	if err != nil {
		s.auditFailure(ctx, audit.EventOAuthStateRejected, params, "", err)
		return nil, err
	}

	if params.Error != "" {
		s.auditFailure(ctx, audit.EventOAuthDenied, params, payload.UserID, nil)
		return nil, apperrors.ProviderDenied(params.Provider)
	}
	if params.Code == "" {
		return nil, apperrors.MissingRequired("code")
	}
	if payload.Intent == model.IntentBind && payload.UserID == "" {
		return nil, apperrors.InvalidFlowState("bind request without a user")
	}

	tokens, err := adapter.ExchangeCode(ctx, *cfg, params.Code, cfg.RedirectURI)
	if err != nil {
		log.Warn().Err(err).Str("provider", params.Provider).Msg("code exchange failed")
		appErr := apperrors.TokenExchange(params.Provider, err)
		s.auditFailure(ctx, audit.EventOAuthFailure, params, payload.UserID, appErr)
		return nil, appErr
	}

	profile, err := adapter.FetchProfile(ctx, *cfg, tokens)
	if err == nil && strings.TrimSpace(profile.ExternalID) == "" {
		err = errors.New("empty external id")
	}
	if err != nil {
		log.Warn().Err(err).Str("provider", params.Provider).Msg("profile fetch failed")
		appErr := apperrors.ProfileFetch(params.Provider, err)
		s.auditFailure(ctx, audit.EventOAuthFailure, params, payload.UserID, appErr)
		return nil, appErr
	}

	var outcome *Outcome
	if payload.Intent == model.IntentBind {
		outcome, err = s.bind(ctx, params, payload.UserID, tokens, profile)
	} else {
		outcome, err = s.login(ctx, params, tokens, profile)
		if errors.Is(err, repository.ErrExternalIdentityTaken) {
			// A concurrent first login created the binding; log in through it.
			outcome, err = s.login(ctx, params, tokens, profile)
		}
	}
	if err != nil {
		if errors.Is(err, repository.ErrExternalIdentityTaken) {
			err = apperrors.AccountAlreadyBound(params.Provider)
		}
		if !apperrors.IsAppError(err) {
			log.Error().Err(err).Str("provider", params.Provider).Msg("failed to resolve oauth identity")
			err = apperrors.Persistence(err)
		}
		s.auditFailure(ctx, audit.EventOAuthFailure, params, payload.UserID, err)
		return nil, err
	}

	outcome.RedirectURI = payload.RedirectURI
	s.auditOutcome(ctx, params, outcome)
	return outcome, nil
}

func (s *OAuthService) bind(ctx context.Context, params CallbackParams, userID string, tokens *model.TokenSet, profile *model.OAuthProfile) (*Outcome, error) {
	var binding *model.OAuthAccount
	err := s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		existing, err := s.accountRepo.WithTx(tx).FindByProviderAndExternalID(ctx, params.Provider, profile.ExternalID)
		if err != nil {
			return err
		}
		if existing != nil && existing.UserID != userID {
			return apperrors.AccountAlreadyBound(params.Provider)
		}

		binding, err = s.vault.WithTx(tx).Store(ctx, StoreTokensParams{
			UserID:   userID,
			Provider: params.Provider,
			Tokens:   tokens,
			Profile:  profile,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return &Outcome{Action: ActionBind, UserID: userID, Binding: binding}, nil
}

func (s *OAuthService) login(ctx context.Context, params CallbackParams, tokens *model.TokenSet, profile *model.OAuthProfile) (*Outcome, error) {
	outcome := &Outcome{Action: ActionLogin}
	loginIP := optionalString(params.ClientIP)

	err := s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		existing, err := s.accountRepo.WithTx(tx).FindByProviderAndExternalID(ctx, params.Provider, profile.ExternalID)
		if err != nil {
			return err
		}

		if existing != nil {
			if existing.Status == model.BindingStatusDisabled {
				return apperrors.Forbidden("This linked account is disabled")
			}
			outcome.UserID = existing.UserID
			if outcome.User, err = s.userRepo.WithTx(tx).FindByID(ctx, existing.UserID); err != nil {
				return err
			}
		} else {
			user, err := s.provisioner.WithTx(tx).CreateUserFromProfile(ctx, params.Provider, profile)
			if err != nil {
				return err
			}
			outcome.User = user
			outcome.UserID = user.ID
			outcome.Created = true
		}

		outcome.Binding, err = s.vault.WithTx(tx).Store(ctx, StoreTokensParams{
			UserID:   outcome.UserID,
			Provider: params.Provider,
			Tokens:   tokens,
			Profile:  profile,
			Login:    true,
			LoginIP:  loginIP,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// RefreshTokens returns the user's tokens for a provider. Without force the
// provider is only called when the access token is inside the refresh margin.
func (s *OAuthService) RefreshTokens(ctx context.Context, userID, providerName string, force bool) (*TokenResult, error) {
	binding, err := s.accountRepo.FindByUserAndProvider(ctx, userID, providerName)
	if err != nil {
		return nil, apperrors.Persistence(err)
	}
	if binding == nil {
		return nil, apperrors.BindingNotFound(providerName)
	}

	adapter, cfg, err := s.resolveProvider(ctx, providerName)
	if err != nil {
		return nil, err
	}

	refreshed := false
	if force {
		binding, err = s.vault.Refresh(ctx, binding, adapter, *cfg)
		refreshed = err == nil
	} else {
		binding, refreshed, err = s.vault.EnsureFresh(ctx, binding, adapter, *cfg)
	}
	if err != nil {
		return nil, err
	}

	if refreshed {
		audit.Log(ctx, audit.Event{Type: audit.EventTokenRefresh, UserID: userID, Provider: providerName})
	}

	tokens, err := s.vault.Tokens(binding)
	if err != nil {
		return nil, err
	}
	return &TokenResult{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    tokens.ExpiresAt,
		Refreshed:    refreshed,
	}, nil
}

// Unbind removes the user's binding for a provider when the policy allows it.
func (s *OAuthService) Unbind(ctx context.Context, userID, providerName string, confirm bool) (*UnbindResult, error) {
	if !confirm {
		return nil, apperrors.ConfirmationRequired()
	}

	err := s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		user, err := s.userRepo.WithTx(tx).LockByID(ctx, userID)
		if err != nil {
			return err
		}

		accounts := s.accountRepo.WithTx(tx)
		binding, err := accounts.FindByUserAndProvider(ctx, userID, providerName)
		if err != nil {
			return err
		}
		if binding == nil {
			return apperrors.BindingNotFound(providerName)
		}

		count, err := accounts.CountByUserID(ctx, userID)
		if err != nil {
			return err
		}
		allowed, err := s.policy.AllowUnbind(ctx, user, count-1)
		if err != nil {
			return err
		}
		if !allowed {
			return apperrors.LastAuthMethod()
		}

		return accounts.Delete(ctx, binding.ID)
	})
	if err != nil {
		if !apperrors.IsAppError(err) {
			log.Error().Err(err).Str("provider", providerName).Msg("failed to unbind")
			return nil, apperrors.Persistence(err)
		}
		return nil, err
	}

	result := &UnbindResult{UserID: userID, Provider: providerName, UnboundAt: s.now()}
	audit.Log(ctx, audit.Event{Type: audit.EventOAuthUnbind, UserID: userID, Provider: providerName})
	return result, nil
}

// ListBindings returns the user's bindings. Token fields never serialize.
func (s *OAuthService) ListBindings(ctx context.Context, userID string) ([]*model.OAuthAccount, error) {
	bindings, err := s.accountRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, apperrors.Persistence(err)
	}
	if bindings == nil {
		bindings = []*model.OAuthAccount{}
	}
	return bindings, nil
}

func (s *OAuthService) auditOutcome(ctx context.Context, params CallbackParams, outcome *Outcome) {
	event := audit.Event{
		Type:      audit.EventOAuthLogin,
		UserID:    outcome.UserID,
		Provider:  params.Provider,
		IP:        params.ClientIP,
		UserAgent: params.UserAgent,
	}
	if outcome.Action == ActionBind {
		event.Type = audit.EventOAuthBind
	}
	if outcome.Created {
		audit.Log(ctx, audit.Event{
			Type:     audit.EventOAuthUserCreate,
			UserID:   outcome.UserID,
			Provider: params.Provider,
			IP:       params.ClientIP,
		})
	}
	audit.Log(ctx, event)
}

func (s *OAuthService) auditFailure(ctx context.Context, eventType audit.EventType, params CallbackParams, userID string, err error) {
	details := map[string]interface{}{}
	if err != nil {
		details["code"] = string(apperrors.GetCode(err))
	}
	if params.Error != "" {
		details["provider_error"] = params.Error
	}
	if params.State != "" {
		details["state"] = util.MaskToken(params.State)
	}
	audit.Log(ctx, audit.Event{
		Type:      eventType,
		UserID:    userID,
		Provider:  params.Provider,
		IP:        params.ClientIP,
		UserAgent: params.UserAgent,
		Details:   details,
	})
}

// isLocalRedirect accepts absolute paths on this site only.
func isLocalRedirect(uri string) bool {
	return strings.HasPrefix(uri, "/") && !strings.HasPrefix(uri, "//") && !strings.Contains(uri, `\`)
}
