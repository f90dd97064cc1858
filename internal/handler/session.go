package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"hawx.me/code/countdown-auth/internal/data"
	"hawx.me/code/countdown-auth/internal/logger"
	"hawx.me/code/countdown-auth/internal/token"
)

type sessionAccounts interface {
	Account(ctx context.Context, id string) (data.Account, error)
	Identities(ctx context.Context, accountID string) ([]data.Identity, error)
}

type tokenVerifier interface {
	Verify(raw string) (token.Claims, error)
}

type sessionResponse struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Email      string            `json:"email,omitempty"`
	Avatar     string            `json:"avatar,omitempty"`
	Identities []sessionIdentity `json:"identities"`
}

type sessionIdentity struct {
	Provider    string    `json:"provider"`
	Subject     string    `json:"subject"`
	Handle      string    `json:"handle,omitempty"`
	LastLoginAt time.Time `json:"lastLoginAt"`
}

// Session describes the account a session token belongs to. The token must be
// given as "Authorization: Bearer <token>".
func Session(tokens tokenVerifier, accounts sessionAccounts) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if raw == "" || raw == r.Header.Get("Authorization") {
			w.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		claims, err := tokens.Verify(raw)
		if err != nil {
			logger.Debug("handler/session invalid token", zap.Error(err))
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		account, err := accounts.Account(r.Context(), claims.Subject)
		if errors.Is(err, sql.ErrNoRows) {
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		if err != nil {
			logger.Error("handler/session could not get account", zap.String("account", claims.Subject), zap.Error(err))
			http.Error(w, "something went wrong", http.StatusInternalServerError)
			return
		}

		identities, err := accounts.Identities(r.Context(), account.ID)
		if err != nil {
			logger.Error("handler/session could not get identities", zap.String("account", account.ID), zap.Error(err))
			http.Error(w, "something went wrong", http.StatusInternalServerError)
			return
		}

		resp := sessionResponse{
			ID:         account.ID,
			Name:       account.DisplayName,
			Email:      account.Email,
			Avatar:     account.AvatarURL,
			Identities: []sessionIdentity{},
		}
		for _, identity := range identities {
			resp.Identities = append(resp.Identities, sessionIdentity{
				Provider:    identity.Provider,
				Subject:     identity.Subject,
				Handle:      identity.Handle,
				LastLoginAt: identity.LastLoginAt,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logger.Warn("handler/session could not write response", zap.Error(err))
		}
	})
}
