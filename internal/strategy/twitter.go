package strategy

import (
	"context"
	"net/url"

	"hawx.me/code/countdown-auth/internal/data"
	"hawx.me/code/countdown-auth/internal/twitter"
)

type twitterClient interface {
	BeginHandshake(ctx context.Context) (twitter.TemporaryCredentials, error)
	AuthorizationURL(token string) string
	CompleteHandshake(ctx context.Context, token, secret, verifier string) (twitter.AccessCredentials, error)
	FetchIdentity(ctx context.Context, token, secret string) (twitter.Identity, error)
}

type authTwitter struct {
	client twitterClient
	store  pendingStore
}

// Twitter provides a strategy for signing in with https://twitter.com.
func Twitter(client twitterClient, store pendingStore) Strategy {
	return &authTwitter{
		client: client,
		store:  store,
	}
}

func (authTwitter) Name() string {
	return "twitter"
}

func (strategy *authTwitter) Redirect(ctx context.Context) (redirectURL, key string, err error) {
	tempCred, err := strategy.client.BeginHandshake(ctx)
	if err != nil {
		return "", "", err
	}

	key, err = strategy.store.Store(ctx, tempCred.Token, tempCred.Secret)
	if err != nil {
		return "", "", err
	}

	return strategy.client.AuthorizationURL(tempCred.Token), key, nil
}

func (strategy *authTwitter) Callback(ctx context.Context, key string, form url.Values) (data.Identity, error) {
	pending, err := strategy.store.Take(ctx, key)

	// Twitter sends "denied" instead of a verifier when the user cancels.
	if form.Get("denied") != "" {
		return data.Identity{}, ErrDenied
	}
	if err != nil {
		return data.Identity{}, err
	}

	// The key came from our cookie, the token from Twitter. If they disagree the
	// user has crossed two logins, so neither can be trusted.
	if form.Get("oauth_token") != pending.Token {
		return data.Identity{}, data.ErrTokenNotFound
	}

	access, err := strategy.client.CompleteHandshake(ctx, pending.Token, pending.Secret, form.Get("oauth_verifier"))
	if err != nil {
		return data.Identity{}, err
	}

	user, err := strategy.client.FetchIdentity(ctx, access.Token, access.Secret)
	if err != nil {
		return data.Identity{}, err
	}

	return data.Identity{
		Provider:  "twitter",
		Subject:   user.ID,
		Name:      user.Name,
		Handle:    user.ScreenName,
		AvatarURL: user.AvatarURL,
		Email:     user.Email,
	}, nil
}
