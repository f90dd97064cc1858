package strategy

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"hawx.me/code/assert"
	"hawx.me/code/countdown-auth/internal/data"
	"hawx.me/code/countdown-auth/internal/twitter"
)

func TestTwitterAuthFlow(t *testing.T) {
	ctx := context.Background()
	client := &fakeTwitterClient{}
	store := data.NewPendingStore(0)
	strategy := Twitter(client, store)

	assert.Equal(t, "twitter", strategy.Name())

	redirectURL, key, err := strategy.Redirect(ctx)
	assert.Nil(t, err)
	assert.Equal(t, "https://twitter.example.com/oauth/authenticate?oauth_token=request-token", redirectURL)
	assert.NotEqual(t, "", key)
	assert.NotEqual(t, "request-token", key)

	pending, err := store.Retrieve(ctx, key)
	assert.Nil(t, err)
	assert.Equal(t, "request-token", pending.Token)
	assert.Equal(t, "request-secret", pending.Secret)

	identity, err := strategy.Callback(ctx, key, url.Values{
		"oauth_token":    {"request-token"},
		"oauth_verifier": {"the-verifier"},
	})
	assert.Nil(t, err)
	assert.Equal(t, []string{"request-token", "request-secret", "the-verifier"}, client.completedWith)
	assert.Equal(t, data.Identity{
		Provider:  "twitter",
		Subject:   "12345",
		Name:      "John Doe",
		Handle:    "john",
		AvatarURL: "https://pbs.example.com/john.jpg",
		Email:     "john@example.com",
	}, identity)

	assert.Equal(t, 0, store.Len())
}

func TestTwitterRedirectUpstreamError(t *testing.T) {
	upstreamErr := &twitter.UpstreamAuthError{Op: "request_token", StatusCode: 401}
	store := data.NewPendingStore(0)
	strategy := Twitter(&fakeTwitterClient{beginErr: upstreamErr}, store)

	_, _, err := strategy.Redirect(context.Background())
	assert.Equal(t, upstreamErr, err)
	assert.Equal(t, 0, store.Len())
}

func TestTwitterCallbackUsedTwice(t *testing.T) {
	ctx := context.Background()
	strategy := Twitter(&fakeTwitterClient{}, data.NewPendingStore(0))

	_, key, err := strategy.Redirect(ctx)
	assert.Nil(t, err)

	form := url.Values{
		"oauth_token":    {"request-token"},
		"oauth_verifier": {"the-verifier"},
	}

	_, err = strategy.Callback(ctx, key, form)
	assert.Nil(t, err)

	_, err = strategy.Callback(ctx, key, form)
	assert.True(t, errors.Is(err, data.ErrTokenNotFound))
}

func TestTwitterCallbackUnknownKey(t *testing.T) {
	strategy := Twitter(&fakeTwitterClient{}, data.NewPendingStore(0))

	_, err := strategy.Callback(context.Background(), "what", url.Values{
		"oauth_token":    {"request-token"},
		"oauth_verifier": {"the-verifier"},
	})
	assert.True(t, errors.Is(err, data.ErrTokenNotFound))
}

func TestTwitterCallbackDenied(t *testing.T) {
	ctx := context.Background()
	client := &fakeTwitterClient{}
	store := data.NewPendingStore(0)
	strategy := Twitter(client, store)

	_, key, err := strategy.Redirect(ctx)
	assert.Nil(t, err)

	_, err = strategy.Callback(ctx, key, url.Values{"denied": {"request-token"}})
	assert.Equal(t, ErrDenied, err)
	assert.Equal(t, 0, len(client.completedWith))

	_, err = store.Retrieve(ctx, key)
	assert.Equal(t, data.ErrTokenNotFound, err)
}

func TestTwitterCallbackMismatchedToken(t *testing.T) {
	ctx := context.Background()
	client := &fakeTwitterClient{}
	store := data.NewPendingStore(0)
	strategy := Twitter(client, store)

	_, key, err := strategy.Redirect(ctx)
	assert.Nil(t, err)

	_, err = strategy.Callback(ctx, key, url.Values{
		"oauth_token":    {"some-other-token"},
		"oauth_verifier": {"the-verifier"},
	})
	assert.Equal(t, data.ErrTokenNotFound, err)
	assert.Equal(t, 0, len(client.completedWith))

	// the entry is consumed anyway
	_, err = store.Retrieve(ctx, key)
	assert.Equal(t, data.ErrTokenNotFound, err)
}

func TestTwitterCallbackBadVerifier(t *testing.T) {
	ctx := context.Background()
	strategy := Twitter(&fakeTwitterClient{}, data.NewPendingStore(0))

	_, key, err := strategy.Redirect(ctx)
	assert.Nil(t, err)

	_, err = strategy.Callback(ctx, key, url.Values{
		"oauth_token":    {"request-token"},
		"oauth_verifier": {"wrong"},
	})

	var upstreamErr *twitter.UpstreamAuthError
	assert.True(t, errors.As(err, &upstreamErr))
}

func TestTwitterCallbackMalformedIdentity(t *testing.T) {
	ctx := context.Background()
	malformedErr := &twitter.MalformedResponseError{Op: "verify_credentials", Err: errors.New("missing id_str")}
	strategy := Twitter(&fakeTwitterClient{identityErr: malformedErr}, data.NewPendingStore(0))

	_, key, err := strategy.Redirect(ctx)
	assert.Nil(t, err)

	_, err = strategy.Callback(ctx, key, url.Values{
		"oauth_token":    {"request-token"},
		"oauth_verifier": {"the-verifier"},
	})
	assert.Equal(t, malformedErr, err)
}
