// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package api

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/lifedeck/aigw"
)

type contextKey string

const userContextKey contextKey = "aigw.user"

// Authenticator resolves a bearer token to a user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*aigw.User, error)
}

// StaticTokenAuthenticator maps pre-shared tokens to users. Comparison is
// over SHA-256 digests in constant time.
type StaticTokenAuthenticator struct {
	users map[[32]byte]*aigw.User
}

func NewStaticTokenAuthenticator() *StaticTokenAuthenticator {
	return &StaticTokenAuthenticator{users: make(map[[32]byte]*aigw.User)}
}

// AddToken registers a token for a user. Later registrations of the same
// token win.
func (a *StaticTokenAuthenticator) AddToken(token string, user *aigw.User) {
	a.users[sha256.Sum256([]byte(token))] = user
}

func (a *StaticTokenAuthenticator) Authenticate(_ context.Context, token string) (*aigw.User, error) {
	digest := sha256.Sum256([]byte(token))
	for stored, user := range a.users {
		if subtle.ConstantTimeCompare(stored[:], digest[:]) == 1 {
			return user, nil
		}
	}
	return nil, errors.New("invalid token")
}

func userFromContext(ctx context.Context) *aigw.User {
	user, _ := ctx.Value(userContextKey).(*aigw.User)
	return user
}

func withUser(ctx context.Context, user *aigw.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return token
	}
	return ""
}

func (s *Server) requireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		user, err := s.options.Authenticator.Authenticate(r.Context(), token)
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r.WithContext(withUser(r.Context(), user)))
	}
}

func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return s.requireUser(func(w http.ResponseWriter, r *http.Request) {
		if !userFromContext(r.Context()).IsAdmin() {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next(w, r)
	})
}
