package handler

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/oauth-bridge-go/internal/errors"
	"github.com/openclaw/oauth-bridge-go/internal/middleware"
	"github.com/openclaw/oauth-bridge-go/internal/model"
	"github.com/openclaw/oauth-bridge-go/internal/service"
	"github.com/openclaw/oauth-bridge-go/internal/util"
)

// OAuthFlow is the part of *service.OAuthService the HTTP layer drives.
type OAuthFlow interface {
	ListProviders(ctx context.Context) ([]service.ProviderInfo, error)
	BeginAuth(ctx context.Context, params service.BeginAuthParams) (*service.BeginAuthResult, error)
	HandleCallback(ctx context.Context, params service.CallbackParams) (*service.Outcome, error)
	RefreshTokens(ctx context.Context, userID, provider string, force bool) (*service.TokenResult, error)
	Unbind(ctx context.Context, userID, provider string, confirm bool) (*service.UnbindResult, error)
	ListBindings(ctx context.Context, userID string) ([]*model.OAuthAccount, error)
}

type OAuthHandler struct {
	flow     OAuthFlow
	identity *middleware.IdentityMiddleware
}

func NewOAuthHandler(flow OAuthFlow, identity *middleware.IdentityMiddleware) *OAuthHandler {
	return &OAuthHandler{
		flow:     flow,
		identity: identity,
	}
}

func (h *OAuthHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/providers", h.ListProviders)
	r.With(h.identity.Required).Get("/bindings", h.ListBindings)

	r.Route("/{provider}", func(r chi.Router) {
		r.Use(validProvider)

		r.With(h.identity.Optional).Get("/authorize", h.Authorize)
		r.With(h.identity.Optional).Get("/authorize-url", h.AuthorizeURL)
		r.Get("/callback", h.Callback)

		r.Group(func(r chi.Router) {
			r.Use(h.identity.Required)
			r.Post("/refresh", h.Refresh)
			r.Delete("/binding", h.Unbind)
		})
	})

	return r
}

func validProvider(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "provider")
		if !util.IsValidProviderName(name) {
			writeError(w, apperrors.ProviderNotFound(name))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *OAuthHandler) ListProviders(w http.ResponseWriter, r *http.Request) {
	providers, err := h.flow.ListProviders(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"providers": providers})
}

func (h *OAuthHandler) begin(r *http.Request) (*service.BeginAuthResult, error) {
	params := service.BeginAuthParams{
		Provider:    chi.URLParam(r, "provider"),
		RedirectURI: r.URL.Query().Get("redirect_uri"),
		ClientIP:    middleware.ClientIP(r),
		UserAgent:   r.UserAgent(),
	}
	if userID := middleware.GetUserID(r.Context()); userID != "" {
		params.UserID = &userID
	}
	return h.flow.BeginAuth(r.Context(), params)
}

// Authorize redirects the browser to the provider's consent page.
func (h *OAuthHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	result, err := h.begin(r)
	if err != nil {
		writeError(w, err)
		return
	}
	http.Redirect(w, r, result.AuthURL, http.StatusFound)
}

// AuthorizeURL is Authorize for clients that navigate themselves.
func (h *OAuthHandler) AuthorizeURL(w http.ResponseWriter, r *http.Request) {
	result, err := h.begin(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	provider := chi.URLParam(r, "provider")

	outcome, err := h.flow.HandleCallback(r.Context(), service.CallbackParams{
		Provider:  provider,
		Code:      q.Get("code"),
		State:     q.Get("state"),
		Error:     q.Get("error"),
		ClientIP:  middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	log.Info().
		Str("provider", provider).
		Str("action", string(outcome.Action)).
		Str("userId", outcome.UserID).
		Bool("created", outcome.Created).
		Msg("oauth callback completed")

	if outcome.RedirectURI != "" {
		http.Redirect(w, r, outcomeRedirect(outcome.RedirectURI, provider, outcome), http.StatusFound)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// outcomeRedirect appends the callback result to a site-local redirect target.
// Existing query parameters are kept and result keys overwrite them.
func outcomeRedirect(target, provider string, outcome *service.Outcome) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	q := u.Query()
	q.Set("provider", provider)
	q.Set("action", string(outcome.Action))
	q.Set("user_id", outcome.UserID)
	q.Set("created", strconv.FormatBool(outcome.Created))
	u.RawQuery = q.Encode()
	return u.String()
}

func (h *OAuthHandler) ListBindings(w http.ResponseWriter, r *http.Request) {
	bindings, err := h.flow.ListBindings(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bindings": bindings})
}

func (h *OAuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	force, err := parseBoolParam(r, "force")
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.flow.RefreshTokens(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "provider"), force)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *OAuthHandler) Unbind(w http.ResponseWriter, r *http.Request) {
	confirm, err := parseBoolParam(r, "confirm")
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.flow.Unbind(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "provider"), confirm)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func parseBoolParam(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, apperrors.InvalidInput(name, "must be true or false")
	}
	return v, nil
}
