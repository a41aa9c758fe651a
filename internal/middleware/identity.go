package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/openclaw/oauth-bridge-go/internal/audit"
	apperrors "github.com/openclaw/oauth-bridge-go/internal/errors"
)

type contextKey string

const UserIDContextKey contextKey = "user_id"

const maxUserIDLength = 128

// GetUserID returns the authenticated user id, or "" for anonymous requests.
func GetUserID(ctx context.Context) string {
	if id, ok := ctx.Value(UserIDContextKey).(string); ok {
		return id
	}
	return ""
}

// IdentityMiddleware trusts a user id header set by the upstream session layer.
type IdentityMiddleware struct {
	header string
}

func NewIdentityMiddleware(header string) *IdentityMiddleware {
	return &IdentityMiddleware{header: header}
}

// Optional attaches the user id when the header is present.
func (m *IdentityMiddleware) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := m.extract(r)
		if !ok {
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventAuthFailure,
				Details: map[string]interface{}{"reason": "malformed user header"},
			})
			writeError(w, apperrors.InvalidInput(m.header, "malformed user id"))
			return
		}
		if id != "" {
			r = r.WithContext(context.WithValue(r.Context(), UserIDContextKey, id))
		}
		next.ServeHTTP(w, r)
	})
}

// Required rejects requests without a user id.
func (m *IdentityMiddleware) Required(next http.Handler) http.Handler {
	return m.Optional(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetUserID(r.Context()) == "" {
			writeError(w, apperrors.Unauthorized("Authentication required"))
			return
		}
		next.ServeHTTP(w, r)
	}))
}

func (m *IdentityMiddleware) extract(r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.Header.Get(m.header))
	if len(id) > maxUserIDLength {
		return "", false
	}
	for _, c := range id {
		if c < 0x21 || c == 0x7f {
			return "", false
		}
	}
	return id, true
}

// ClientIP returns the caller address without a port. It expects chi's RealIP
// to have run when the service sits behind a proxy.
func ClientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
