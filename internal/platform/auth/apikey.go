package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/flss-ops/api/internal/platform/httpx"
	"github.com/flss-ops/api/internal/platform/textutil"
)

// APIKeyHeader carries the shared key on staff and automation requests.
const APIKeyHeader = "X-API-Key"

type contextKey string

const principalContextKey contextKey = "github.com/flss-ops/api/internal/platform/auth/principal"

// Principal identifies the authenticated caller of a protected route.
type Principal struct {
	Name string
}

// WithPrincipal stores the caller identity on the context.
func WithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, principal)
}

// PrincipalFromContext retrieves the caller identity, if authenticated.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	principal, ok := ctx.Value(principalContextKey).(Principal)
	return principal, ok
}

// APIKeyMiddleware guards a route subtree with a set of named shared keys.
// An empty key set fails closed: every request is rejected until keys are
// configured.
func APIKeyMiddleware(keys map[string]string) func(http.Handler) http.Handler {
	byKey := make(map[string]string, len(keys))
	for name, key := range textutil.NormalizeStringMap(keys) {
		if key != "" {
			byKey[key] = name
		}
	}
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := strings.TrimSpace(r.Header.Get(APIKeyHeader))
			if presented == "" {
				httpx.WriteError(r.Context(), w, httpx.NewError("unauthorized", "missing api key", http.StatusUnauthorized))
				return
			}
			name, ok := matchKey(byKey, presented)
			if !ok {
				httpx.WriteError(r.Context(), w, httpx.NewError("unauthorized", "invalid api key", http.StatusUnauthorized))
				return
			}
			ctx := WithPrincipal(r.Context(), Principal{Name: name})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func matchKey(byKey map[string]string, presented string) (string, bool) {
	for key, name := range byKey {
		if subtle.ConstantTimeCompare([]byte(key), []byte(presented)) == 1 {
			return name, true
		}
	}
	return "", false
}
