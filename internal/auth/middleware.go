package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

type contextKey struct{}

// Authenticator accepts either an x-api-key matching a bcrypt hash or a
// Bearer JWT. With neither configured every request passes.
type Authenticator struct {
	jwtSecret  []byte
	apiKeyHash string
	open       map[string]bool
}

// NewAuthenticator builds an authenticator; openPaths skip authentication.
func NewAuthenticator(jwtSecret, apiKeyHash string, openPaths ...string) *Authenticator {
	a := &Authenticator{
		jwtSecret:  []byte(jwtSecret),
		apiKeyHash: apiKeyHash,
		open:       map[string]bool{"/health": true},
	}
	for _, p := range openPaths {
		a.open[p] = true
	}
	return a
}

// Enabled reports whether any credential is configured.
func (a *Authenticator) Enabled() bool {
	return len(a.jwtSecret) > 0 || a.apiKeyHash != ""
}

// Authenticate checks the credentials on r. The returned claims are nil for
// API-key authentication.
func (a *Authenticator) Authenticate(r *http.Request) (*Claims, error) {
	if key := r.Header.Get("x-api-key"); key != "" && a.apiKeyHash != "" {
		if CompareAPIKey(a.apiKeyHash, key) {
			return nil, nil
		}
		return nil, ErrInvalidAPIKey
	}
	header := r.Header.Get("Authorization")
	if header != "" && len(a.jwtSecret) > 0 {
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			return nil, ErrInvalidToken
		}
		return ParseToken(a.jwtSecret, strings.TrimSpace(tokenString))
	}
	return nil, ErrMissingCredentials
}

// Middleware rejects unauthenticated requests with 401.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() || a.open[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}
		claims, err := a.Authenticate(r)
		if err != nil {
			msg := err.Error()
			if errors.Is(err, ErrInvalidToken) {
				msg = ErrInvalidToken.Error()
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "error": msg})
			return
		}
		ctx := context.WithValue(r.Context(), apiKeyKey{}, claims == nil)
		if claims != nil {
			ctx = context.WithValue(ctx, contextKey{}, claims)
		}
		r = r.WithContext(ctx)
		next.ServeHTTP(w, r)
	})
}

// GetClaimsFromContext returns the JWT claims stored by Middleware.
func GetClaimsFromContext(ctx context.Context) (*Claims, error) {
	claims, ok := ctx.Value(contextKey{}).(*Claims)
	if !ok || claims == nil {
		return nil, errors.New("no claims in context")
	}
	return claims, nil
}

// Subject returns the caller identity for logs: the token subject, "api-key", or "".
func Subject(ctx context.Context) string {
	if c, err := GetClaimsFromContext(ctx); err == nil {
		return c.Subject
	}
	if v, ok := ctx.Value(apiKeyKey{}).(bool); ok && v {
		return "api-key"
	}
	return ""
}

type apiKeyKey struct{}
