package rbac

import (
	"log/slog"
	"net/http"

	"github.com/vaultview/vaultview/internal/shared"
)

// Middleware wires authorization checks for HTTP handlers. It pulls
// the session context snapshot out of the request session and asks the
// resolver whether the required level is held before the handler runs.
type Middleware struct {
	Resolver *Resolver
	Logger   *slog.Logger
}

// RequireScope ensures the session holds at least the required level
// for the scope. Unauthenticated requests get 401; insufficient or
// undetermined grants get 403.
func (m Middleware) RequireScope(scope Scope, required AccessLevel) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sc, ok := m.sessionContext(r)
			if !ok {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			if !m.Resolver.HasAtLeast(r.Context(), sc, scope, required) {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithSessionContext(r.Context(), sc)))
		})
	}
}

// RequireField ensures the session holds at least the required level
// for one field within the scope.
func (m Middleware) RequireField(scope Scope, fieldName string, required AccessLevel) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sc, ok := m.sessionContext(r)
			if !ok {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			if !m.Resolver.HasFieldAtLeast(r.Context(), sc, scope, fieldName, required) {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithSessionContext(r.Context(), sc)))
		})
	}
}

func (m Middleware) sessionContext(r *http.Request) (SessionContext, bool) {
	if sc, ok := SessionContextFromContext(r.Context()); ok {
		return sc, true
	}
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return SessionContext{}, false
	}
	sc, ok := SessionContextFrom(sess)
	if !ok && m.Logger != nil && sess.User() != "" {
		m.Logger.Warn("session missing context snapshot", slog.String("user", sess.User()))
	}
	return sc, ok
}
