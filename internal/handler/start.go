package handler

import (
	"net/http"

	"github.com/gorilla/sessions"
	"go.uber.org/zap"
	"hawx.me/code/countdown-auth/internal/logger"
	"hawx.me/code/countdown-auth/internal/strategy"
)

// Start begins signing in with strat. The key of the pending login is kept in a
// signed cookie so that the callback can find it again, then the user is
// redirected to the provider. If the provider could not be reached the user is
// sent back to frontendURL with an "error" parameter.
func Start(strat strategy.Strategy, cookies sessions.Store, frontendURL string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		redirectURL, key, err := strat.Redirect(r.Context())
		if err != nil {
			logger.Error("handler/start could not begin login",
				zap.String("provider", strat.Name()),
				zap.Error(err))
			redirectWith(w, r, frontendURL, "error", errorCode(err))
			return
		}

		session, _ := cookies.Get(r, CookieName)
		session.Values[strat.Name()] = key
		if err := session.Save(r, w); err != nil {
			logger.Error("handler/start could not save session",
				zap.String("provider", strat.Name()),
				zap.Error(err))
			redirectWith(w, r, frontendURL, "error", CodeServerError)
			return
		}

		logger.Debug("handler/start redirecting to provider", zap.String("provider", strat.Name()))
		http.Redirect(w, r, redirectURL, http.StatusFound)
	})
}
