// Package middleware provides various middleware functionality.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/danilovkiri/dk-go-fastcore/internal/models/modeldto"
	"github.com/danilovkiri/dk-go-fastcore/internal/service/secretary/v1"
)

type contextKey string

const userKey contextKey = "user"

// TokenHandler sets object structure.
type TokenHandler struct {
	sec secretary.Secretary
}

// NewTokenHandler initializes a new token handler.
func NewTokenHandler(sec secretary.Secretary) (*TokenHandler, error) {
	if sec == nil {
		return nil, errors.New("nil secretary object was found")
	}
	return &TokenHandler{
		sec: sec,
	}, nil
}

// TokenHandle validates the bearer token and stores the caller in the request context.
func (c *TokenHandler) TokenHandle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.Header.Get("Authorization")
		if len(tokenString) == 0 {
			http.Error(w, "Token authorization required", http.StatusUnauthorized)
			return
		}
		tokenString = strings.TrimPrefix(tokenString, "Bearer ")
		claims, err := c.sec.ValidateToken(tokenString)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		user := modeldto.User{ID: claims.UserID, Login: claims.Login}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// WithUser returns a copy of ctx carrying the authenticated user.
func WithUser(ctx context.Context, user modeldto.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext retrieves the user stored by TokenHandle.
func UserFromContext(ctx context.Context) (modeldto.User, bool) {
	user, ok := ctx.Value(userKey).(modeldto.User)
	return user, ok
}
