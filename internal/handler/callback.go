package handler

import (
	"context"
	"net/http"

	"github.com/gorilla/sessions"
	"go.uber.org/zap"
	"hawx.me/code/countdown-auth/internal/data"
	"hawx.me/code/countdown-auth/internal/logger"
	"hawx.me/code/countdown-auth/internal/strategy"
)

type callbackAccounts interface {
	Provision(ctx context.Context, identity data.Identity) (data.Account, error)
}

type tokenIssuer interface {
	Issue(account data.Account) (string, error)
}

// Callback handles the return from the provider by delegating to strat. If the
// login succeeded the account for the identity is found, or created, and the
// user is redirected to frontendURL with a "token" parameter containing a
// session token. Otherwise they are redirected to frontendURL with an "error"
// parameter.
//
// The pending login is always found using the key saved in the cookie by Start,
// so a login can only be finished by the browser that began it. When the
// provider passes back a "state" parameter it must match that key.
func Callback(strat strategy.Strategy, accounts callbackAccounts, tokens tokenIssuer, cookies sessions.Store, frontendURL string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			logger.Warn("handler/callback failed to parse form", zap.Error(err))
			http.Error(w, "the request was bad", http.StatusBadRequest)
			return
		}

		session, _ := cookies.Get(r, CookieName)

		key, _ := session.Values[strat.Name()].(string)

		if _, ok := session.Values[strat.Name()]; ok {
			delete(session.Values, strat.Name())
			if err := session.Save(r, w); err != nil {
				logger.Warn("handler/callback could not save session", zap.Error(err))
			}
		}

		fail := func(msg, code string, err error) {
			log := logger.Warn
			if code == CodeAccessDenied {
				log = logger.Info
			}
			log("handler/callback "+msg,
				zap.String("provider", strat.Name()),
				zap.String("code", code),
				zap.Error(err))
			redirectWith(w, r, frontendURL, "error", code)
		}

		if key == "" {
			fail("no login in progress", CodeLoginExpired, data.ErrTokenNotFound)
			return
		}
		if state := r.Form.Get("state"); state != "" && state != key {
			fail("state does not match login in progress", CodeLoginExpired, data.ErrTokenNotFound)
			return
		}

		identity, err := strat.Callback(r.Context(), key, r.Form)
		if err != nil {
			fail("login failed", errorCode(err), err)
			return
		}

		account, err := accounts.Provision(r.Context(), identity)
		if err != nil {
			fail("could not provision account", CodeServerError, err)
			return
		}

		signed, err := tokens.Issue(account)
		if err != nil {
			fail("could not issue token", CodeServerError, err)
			return
		}

		logger.Info("handler/callback signed in",
			zap.String("provider", strat.Name()),
			zap.String("account", account.ID))
		redirectWith(w, r, frontendURL, "token", signed)
	})
}
