package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"hawx.me/code/countdown-auth/internal/data"
)

// googlePendingToken marks entries in the pending store that belong to a
// Google login. The entry's secret is the PKCE verifier.
const googlePendingToken = "google"

const googleTimeout = 10 * time.Second

type authGoogle struct {
	conf        *oauth2.Config
	store       pendingStore
	userinfoURI string
	httpClient  *http.Client
	timeout     time.Duration
}

// Google provides a strategy for signing in with a Google account, using the
// authorization code flow with PKCE.
func Google(id, secret, redirectURL string, store pendingStore, httpClient *http.Client) Strategy {
	conf := &oauth2.Config{
		ClientID:     id,
		ClientSecret: secret,
		RedirectURL:  redirectURL,
		Scopes:       []string{"openid", "email", "profile"},
		Endpoint:     google.Endpoint,
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &authGoogle{
		conf:        conf,
		store:       store,
		userinfoURI: "https://openidconnect.googleapis.com/v1/userinfo",
		httpClient:  httpClient,
		timeout:     googleTimeout,
	}
}

func (authGoogle) Name() string {
	return "google"
}

func (strategy *authGoogle) Redirect(ctx context.Context) (redirectURL, key string, err error) {
	verifier := oauth2.GenerateVerifier()

	key, err = strategy.store.Store(ctx, googlePendingToken, verifier)
	if err != nil {
		return "", "", err
	}

	return strategy.conf.AuthCodeURL(key, oauth2.S256ChallengeOption(verifier)), key, nil
}

func (strategy *authGoogle) Callback(ctx context.Context, key string, form url.Values) (data.Identity, error) {
	pending, err := strategy.store.Take(ctx, key)

	if form.Get("error") != "" {
		return data.Identity{}, ErrDenied
	}
	if err != nil {
		return data.Identity{}, err
	}
	if pending.Token != googlePendingToken || form.Get("state") != key {
		return data.Identity{}, data.ErrTokenNotFound
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, strategy.httpClient)

	tok, err := strategy.exchange(ctx, form.Get("code"), pending.Secret)
	if err != nil {
		return data.Identity{}, fmt.Errorf("%w: google exchange: %w", ErrUpstream, err)
	}

	return strategy.userinfo(ctx, tok)
}

func (strategy *authGoogle) exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, strategy.timeout)
	defer cancel()

	return strategy.conf.Exchange(ctx, code, oauth2.VerifierOption(verifier))
}

func (strategy *authGoogle) userinfo(ctx context.Context, tok *oauth2.Token) (data.Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, strategy.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strategy.userinfoURI, nil)
	if err != nil {
		return data.Identity{}, err
	}

	resp, err := strategy.conf.Client(ctx, tok).Do(req)
	if err != nil {
		return data.Identity{}, fmt.Errorf("%w: google userinfo: %w", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return data.Identity{}, fmt.Errorf("%w: google userinfo: status %d", ErrUpstream, resp.StatusCode)
	}

	var v googleUserinfo
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&v); err != nil {
		return data.Identity{}, fmt.Errorf("%w: google userinfo: %w", ErrMalformedProfile, err)
	}
	if v.Sub == "" {
		return data.Identity{}, fmt.Errorf("%w: google userinfo: missing sub", ErrMalformedProfile)
	}

	identity := data.Identity{
		Provider:  "google",
		Subject:   v.Sub,
		Name:      v.Name,
		AvatarURL: v.Picture,
	}
	// An unverified address could belong to anyone, so must not be used to link
	// accounts.
	if v.EmailVerified {
		identity.Email = v.Email
	}
	if identity.Name == "" {
		identity.Name = identity.Email
	}

	return identity, nil
}

// Only the fields we need from
// https://developers.google.com/identity/openid-connect/openid-connect#obtainuserinfo
type googleUserinfo struct {
	Sub           string `json:"sub"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}
