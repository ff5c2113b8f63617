package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"carelane/internal/domain"
	"carelane/internal/httputil"
)

// JWTVerifier validates bearer tokens against a JWKS endpoint.
type JWTVerifier struct {
	jwks   keyfunc.Keyfunc
	logger *slog.Logger
}

// NewJWTVerifier creates a verifier that fetches public keys from the
// identity provider's JWKS endpoint. Keys are cached and refreshed by
// keyfunc based on HTTP cache headers.
func NewJWTVerifier(jwksURL string, logger *slog.Logger) (*JWTVerifier, error) {
	if jwksURL == "" {
		return nil, errors.New("JWKS URL cannot be empty")
	}

	jwks, err := keyfunc.NewDefaultCtx(context.Background(), []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS client: %w", err)
	}

	logger.Info("JWT verifier initialized", "jwks_url", jwksURL)
	return &JWTVerifier{jwks: jwks, logger: logger}, nil
}

// VerifyToken validates a JWT and returns its subject.
func (v *JWTVerifier) VerifyToken(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, v.jwks.Keyfunc)
	if err != nil || !token.Valid {
		return "", domain.ErrUnauthorized
	}

	// Prevent algorithm confusion attacks - allow only RS256 or ES256
	switch token.Method.Alg() {
	case "RS256", "ES256":
	default:
		v.logger.Warn("token uses unexpected algorithm", "algorithm", token.Method.Alg())
		return "", domain.ErrUnauthorized
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", domain.ErrUnauthorized
	}
	return claims.Subject, nil
}

// Auth guards the administrative API with bearer tokens. Paths in skip
// bypass it: the health check, and the webhook ingress which carries
// its own HMAC verification.
func Auth(verifier *JWTVerifier, skip ...string) func(http.Handler) http.Handler {
	skipped := make(map[string]bool, len(skip))
	for _, p := range skip {
		skipped[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifier == nil || skipped[r.URL.Path] || strings.HasPrefix(r.URL.Path, "/webhooks/") {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				httputil.RespondError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			subject, err := verifier.VerifyToken(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				httputil.RespondError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(withSubject(r.Context(), subject)))
		})
	}
}

type subjectKey struct{}

func withSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey{}, subject)
}

// Subject returns the authenticated caller id, if any.
func Subject(ctx context.Context) string {
	s, _ := ctx.Value(subjectKey{}).(string)
	return s
}
