package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// UserIDHeader carries the caller's id when no JWT secret is configured and
// an upstream gateway has already authenticated the request.
const UserIDHeader = "X-User-ID"

type ctxKey struct{}

// WithUserID returns a context carrying the authenticated user id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserID returns the authenticated user id, or "" outside the middleware.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// Identity resolves the caller of every /api/v1 request.
type Identity struct {
	secret []byte
}

// NewIdentity verifies HS256 bearer tokens signed with secret. An empty
// secret trusts the X-User-ID header instead.
func NewIdentity(secret string) *Identity {
	return &Identity{secret: []byte(secret)}
}

var errUnauthenticated = errors.New("missing or invalid credentials")

// Middleware rejects unauthenticated requests with 401.
func (id *Identity) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := id.resolve(r)
		if err != nil {
			writeError(w, "Unauthorized", "UNAUTHORIZED", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

func (id *Identity) resolve(r *http.Request) (string, error) {
	if len(id.secret) == 0 {
		userID := strings.TrimSpace(r.Header.Get(UserIDHeader))
		if userID == "" {
			return "", errUnauthenticated
		}
		return userID, nil
	}

	token := bearerToken(r)
	if token == "" {
		// Browsers cannot set headers on a websocket handshake.
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return "", errUnauthenticated
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return id.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errUnauthenticated
	}
	return claims.Subject, nil
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
}
