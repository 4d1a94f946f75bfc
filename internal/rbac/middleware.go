package rbac

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/habana-express/market-engine/internal/platform/httpx"
	"github.com/habana-express/market-engine/internal/shared"
)

// Header names set by the upstream identity gateway.
const (
	HeaderCallerID   = "X-Caller-ID"
	HeaderCallerRole = "X-Caller-Role"
)

// Middleware lifts the caller identity from request headers into the context.
// Requests without a usable identity continue with a zero identity and are
// rejected by the policy table of the operation they reach.
type Middleware struct {
	Logger *slog.Logger
}

// Identity is the chi middleware.
func (m Middleware) Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := m.parse(r)
		if ok {
			r = r.WithContext(shared.ContextWithIdentity(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// Require rejects callers that may not perform op before the handler reads
// the request body.
func (m Middleware) Require(op Operation) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := Authorize(shared.IdentityFromContext(r.Context()), op); err != nil {
				if m.Logger != nil {
					m.Logger.Debug("rbac denied", slog.String("op", string(op)), slog.String("path", r.URL.Path))
				}
				httpx.RespondError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) parse(r *http.Request) (shared.Identity, bool) {
	rawID := strings.TrimSpace(r.Header.Get(HeaderCallerID))
	rawRole := strings.TrimSpace(strings.ToLower(r.Header.Get(HeaderCallerRole)))
	if rawID == "" || rawRole == "" {
		return shared.Identity{}, false
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		if m.Logger != nil {
			m.Logger.Warn("rbac parse caller id", slog.String("value", rawID))
		}
		return shared.Identity{}, false
	}
	role := shared.Role(rawRole)
	if !role.Valid() {
		if m.Logger != nil {
			m.Logger.Warn("rbac unknown role", slog.String("value", rawRole))
		}
		return shared.Identity{}, false
	}
	return shared.Identity{ID: id, Role: role}, true
}
