package httpapi

import (
	"net/http"
	"strings"

	"gitlab.com/proxygrid.net/internal/core/ports/primary"
)

// MiddlewareProvider guards mutating API routes with bearer tokens.
type MiddlewareProvider struct {
	tokens primary.TokenService
}

func NewMiddlewareProvider(tokens primary.TokenService) *MiddlewareProvider {
	return &MiddlewareProvider{tokens: tokens}
}

func (m *MiddlewareProvider) JWTMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header missing", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		valid, err := m.tokens.VerifyToken(tokenString)
		if err != nil || !valid {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}
