package middleware

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"

	"example.com/socialfeed/internal/store"
	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const (
	AccountCtxKey = contextKey("account_id")
	SessionCtxKey = contextKey("session_id")
)

// Auth validates the Bearer token and checks that the session it names is
// still live, so logout actually revokes access before the token expires.
func Auth(st store.StoreInterface) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			jwtSecret := []byte(os.Getenv("JWT_SECRET"))
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "missing Authorization header", http.StatusUnauthorized)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "invalid Authorization header", http.StatusUnauthorized)
				return
			}

			token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, errors.New("unexpected signing method")
				}
				return jwtSecret, nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				http.Error(w, "invalid token claims", http.StatusUnauthorized)
				return
			}

			accountID, ok := claims["account_id"].(string)
			if !ok {
				http.Error(w, "invalid account_id in token", http.StatusUnauthorized)
				return
			}

			sessionID, ok := claims["jti"].(string)
			if !ok {
				http.Error(w, "invalid session id in token", http.StatusUnauthorized)
				return
			}

			live, err := st.SessionExists(sessionID)
			if err != nil {
				http.Error(w, "session lookup failed", http.StatusInternalServerError)
				return
			}
			if !live {
				http.Error(w, "session expired", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), AccountCtxKey, accountID)
			ctx = context.WithValue(ctx, SessionCtxKey, sessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccountIDFromContext extracts the authenticated account id in handlers.
func AccountIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(AccountCtxKey).(string)
	return id, ok
}

// SessionIDFromContext extracts the session id used by logout.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(SessionCtxKey).(string)
	return id, ok
}
