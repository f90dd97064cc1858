package server

import (
	"context"
	"net/http"

	"github.com/gorilla/sessions"
	"hawx.me/code/countdown-auth/internal/config"
	"hawx.me/code/countdown-auth/internal/data"
	"hawx.me/code/countdown-auth/internal/handler"
	"hawx.me/code/countdown-auth/internal/strategy"
	"hawx.me/code/countdown-auth/internal/token"
	"hawx.me/code/countdown-auth/internal/twitter"
	"hawx.me/code/mux"
	"hawx.me/code/route"
)

type DB interface {
	Provision(ctx context.Context, identity data.Identity) (data.Account, error)
	Account(ctx context.Context, id string) (data.Account, error)
	Identities(ctx context.Context, accountID string) ([]data.Identity, error)
}

type PendingStore interface {
	Store(ctx context.Context, token, secret string) (string, error)
	Take(ctx context.Context, key string) (data.Pending, error)
}

// New registers the routes for signing in. A provider without credentials has
// its routes answer 503 rather than being left out, so a misconfiguration is
// obvious.
func New(
	conf config.Config,
	database DB,
	pending PendingStore,
	tokens *token.Issuer,
	cookies sessions.Store,
	httpClient *http.Client,
) http.Handler {
	if conf.Twitter.Enabled() {
		client := twitter.New(twitter.Config{
			ConsumerKey:    conf.Twitter.ConsumerKey,
			ConsumerSecret: conf.Twitter.ConsumerSecret,
			CallbackURL:    conf.Twitter.CallbackURL,
			Timeout:        conf.Twitter.Timeout.Duration,
		}, httpClient)

		handleProvider(strategy.Twitter(client, pending), conf, database, tokens, cookies)
	} else {
		handleNotConfigured("twitter")
	}

	if conf.Google.Enabled() {
		googleStrategy := strategy.Google(conf.Google.ClientID, conf.Google.ClientSecret, conf.Google.RedirectURL, pending, httpClient)

		handleProvider(googleStrategy, conf, database, tokens, cookies)
	} else {
		handleNotConfigured("google")
	}

	route.Handle("/auth/session", mux.Method{
		"GET": handler.Session(tokens, database),
	})

	return route.Default
}

func handleProvider(strat strategy.Strategy, conf config.Config, database DB, tokens *token.Issuer, cookies sessions.Store) {
	route.Handle("/auth/"+strat.Name(), mux.Method{
		"GET": handler.Start(strat, cookies, conf.FrontendURL),
	})
	route.Handle("/auth/"+strat.Name()+"/callback", mux.Method{
		"GET": handler.Callback(strat, database, tokens, cookies, conf.FrontendURL),
	})
}

func handleNotConfigured(provider string) {
	route.Handle("/auth/"+provider, handler.NotConfigured(provider))
	route.Handle("/auth/"+provider+"/callback", handler.NotConfigured(provider))
}
