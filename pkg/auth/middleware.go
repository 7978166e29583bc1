package auth

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/getmockd/apilab/pkg/httputil"
)

// CookieName is the cookie consulted when no Authorization header is sent.
const CookieName = "apilab_token"

type claimsKey struct{}

// WithClaims returns a context carrying the claims.
func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// ClaimsFrom returns the claims stored by Middleware, if any.
func ClaimsFrom(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*Claims)
	return c, ok && c != nil
}

// bearerToken extracts the token from the Authorization header or cookie.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return c.Value
	}
	return ""
}

// Middleware rejects requests without a valid token and stores the claims in
// the request context. It trusts the token alone; Service.Middleware also
// checks the user still exists.
func Middleware(issuer *TokenIssuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := verifyRequest(w, r, issuer)
			if !ok {
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// Middleware is like the package-level Middleware but loads the token's user
// on every request. Tokens of deleted users are rejected, and the claims
// carry the user's current email and role, so a demotion applies at once.
func (s *Service) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := verifyRequest(w, r, s.tokens)
			if !ok {
				return
			}
			u, err := s.users.Get(r.Context(), claims.UserID())
			if err != nil || u == nil {
				s.log.Debug("token user not found", "user", claims.UserID(), "error", err)
				httputil.WriteUnauthorized(w, "invalid or expired token")
				return
			}
			current := *claims
			current.Email = u.Email
			current.Role = u.Role
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), &current)))
		})
	}
}

// verifyRequest writes a 401 and returns false when r carries no valid token.
func verifyRequest(w http.ResponseWriter, r *http.Request, issuer *TokenIssuer) (*Claims, bool) {
	token := bearerToken(r)
	if token == "" {
		httputil.WriteUnauthorized(w, "authentication required")
		return nil, false
	}
	claims, err := issuer.Verify(token)
	if err != nil {
		httputil.WriteUnauthorized(w, "invalid or expired token")
		return nil, false
	}
	return claims, true
}

// RequireRole allows only requests whose claims carry one of roles. It must
// run after Middleware.
func RequireRole(roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFrom(r.Context())
			if !ok {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}
			if !slices.Contains(roles, claims.Role) {
				httputil.WriteForbidden(w, "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
