package server

import (
	"context"
	"net/http"
	"path"
	"strings"

	"projectmarket/internal/domain"
	"projectmarket/internal/engine"
	"projectmarket/internal/storage"
)

type userKey struct{}

func withUser(ctx context.Context, u domain.User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

func userFromContext(ctx context.Context) (domain.User, bool) {
	u, ok := ctx.Value(userKey{}).(domain.User)
	return u, ok && u.ID != ""
}

// currentUser returns the authenticated caller or a 401 envelope.
func currentUser(ctx context.Context) (domain.User, error) {
	if u, ok := userFromContext(ctx); ok {
		return u, nil
	}
	return domain.User{}, newAPIError(http.StatusUnauthorized, "unauthenticated", "authentication required", nil)
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

func publicPaths(basePath string) map[string]bool {
	out := map[string]bool{}
	for _, p := range []string{"health", "auth/user-count", "auth/register", "auth/login", "openapi.json"} {
		out[path.Join(basePath, p)] = true
	}
	return out
}

// newAuthMiddleware resolves the bearer token on every API and upload
// request to a live user. Public routes pass through untouched.
func newAuthMiddleware(basePath string, e engine.Engine) func(http.Handler) http.Handler {
	public := publicPaths(basePath)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			p := req.URL.Path
			guarded := strings.HasPrefix(p, basePath+"/") || strings.HasPrefix(p, storage.PathPrefix)
			if !guarded || public[p] || req.Method == http.MethodOptions {
				next.ServeHTTP(w, req)
				return
			}
			token, ok := bearerToken(strings.TrimSpace(req.Header.Get("Authorization")))
			if !ok {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthenticated", "authentication required", nil))
				return
			}
			u, err := e.Authenticate(req.Context(), token)
			if err != nil {
				respondStatusError(w, handleError(err))
				return
			}
			if info := infoFromContext(req.Context()); info != nil {
				info.userID = u.ID
			}
			next.ServeHTTP(w, req.WithContext(withUser(req.Context(), u)))
		})
	}
}
