// Package strategy implements signing in with each supported provider. A
// Strategy starts a login by sending the user away to the provider, then turns
// what the provider sends back into a data.Identity.
package strategy

import (
	"context"
	"errors"
	"net/url"

	"hawx.me/code/countdown-auth/internal/data"
)

var (
	// ErrDenied is returned by Callback when the user refused to sign in at the
	// provider.
	ErrDenied = errors.New("login was denied at the provider")

	// ErrUpstream is wrapped when a provider rejects a request, or cannot be
	// reached.
	ErrUpstream = errors.New("provider request failed")

	// ErrMalformedProfile is wrapped when a provider's description of the user
	// could not be understood.
	ErrMalformedProfile = errors.New("provider returned a malformed profile")
)

type Strategy interface {
	// Name returns a unique lowercase alpha string naming the Strategy.
	Name() string

	// Redirect begins a login. It returns the URL to send the user to, and the
	// key the in-progress login has been stored under, which must be passed back
	// to Callback.
	Redirect(ctx context.Context) (redirectURL, key string, err error)

	// Callback handles the user's return from the provider. The pending login for
	// key is consumed whether or not it succeeds, so a failed login must be
	// started again from Redirect.
	Callback(ctx context.Context, key string, form url.Values) (data.Identity, error)
}

type pendingStore interface {
	Store(ctx context.Context, token, secret string) (string, error)
	Take(ctx context.Context, key string) (data.Pending, error)
}
