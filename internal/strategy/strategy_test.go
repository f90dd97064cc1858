package strategy

import (
	"context"
	"errors"

	"hawx.me/code/countdown-auth/internal/twitter"
)

const (
	id     = "my-client-id"
	secret = "my-client-secret"
)

type fakeTwitterClient struct {
	beginErr    error
	completeErr error
	identityErr error

	completedWith []string
}

func (c *fakeTwitterClient) BeginHandshake(ctx context.Context) (twitter.TemporaryCredentials, error) {
	if c.beginErr != nil {
		return twitter.TemporaryCredentials{}, c.beginErr
	}

	return twitter.TemporaryCredentials{
		Token:             "request-token",
		Secret:            "request-secret",
		CallbackConfirmed: true,
	}, nil
}

func (c *fakeTwitterClient) AuthorizationURL(token string) string {
	return "https://twitter.example.com/oauth/authenticate?oauth_token=" + token
}

func (c *fakeTwitterClient) CompleteHandshake(ctx context.Context, token, secret, verifier string) (twitter.AccessCredentials, error) {
	c.completedWith = []string{token, secret, verifier}

	if c.completeErr != nil {
		return twitter.AccessCredentials{}, c.completeErr
	}
	if verifier != "the-verifier" {
		return twitter.AccessCredentials{}, &twitter.UpstreamAuthError{Op: "access_token", StatusCode: 401}
	}

	return twitter.AccessCredentials{
		Token:  "access-token",
		Secret: "access-secret",
	}, nil
}

func (c *fakeTwitterClient) FetchIdentity(ctx context.Context, token, secret string) (twitter.Identity, error) {
	if c.identityErr != nil {
		return twitter.Identity{}, c.identityErr
	}
	if token != "access-token" || secret != "access-secret" {
		return twitter.Identity{}, errors.New("wrong access credentials")
	}

	return twitter.Identity{
		ID:         "12345",
		ScreenName: "john",
		Name:       "John Doe",
		AvatarURL:  "https://pbs.example.com/john.jpg",
		Email:      "john@example.com",
	}, nil
}
