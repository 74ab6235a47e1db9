package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

type ctxKey struct{}

// Verifier checks bearer tokens. When JWKS is set RS256 tokens are
// accepted, otherwise HS256 with Secret.
type Verifier struct {
	Secret string
	JWKS   KeySource
}

func (v Verifier) Verify(token string) (*Claims, error) {
	if v.JWKS != nil {
		return VerifyRS256(token, v.JWKS)
	}
	if v.Secret == "" {
		return nil, errors.New("no token verifier configured")
	}
	return ParseAndVerifyHS256(token, v.Secret)
}

// Require rejects requests without a valid bearer token and stores the
// verified claims on the request context.
func (v Verifier) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		claims, err := v.Verify(strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")))
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(ctxKey{}).(*Claims)
	return c, ok && c != nil
}
