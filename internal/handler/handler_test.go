package handler

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"testing"

	"github.com/gorilla/sessions"
	"hawx.me/code/countdown-auth/internal/data"
	"hawx.me/code/countdown-auth/internal/token"
	"hawx.me/code/countdown-auth/internal/twitter"
)

const frontendURL = "http://countdown.example.com/signed-in?from=auth"

type fakeStrategy struct {
	redirectErr error
	callbackErr error

	key        string
	calledKey  string
	calledWith url.Values
}

func (fakeStrategy) Name() string {
	return "fake"
}

func (s *fakeStrategy) Redirect(ctx context.Context) (string, string, error) {
	if s.redirectErr != nil {
		return "", "", s.redirectErr
	}

	return "http://provider.example.com/authorize?token=the-token", s.key, nil
}

func (s *fakeStrategy) Callback(ctx context.Context, key string, form url.Values) (data.Identity, error) {
	s.calledKey = key
	s.calledWith = form

	if s.callbackErr != nil {
		return data.Identity{}, s.callbackErr
	}
	if key != s.key {
		return data.Identity{}, data.ErrTokenNotFound
	}

	return data.Identity{
		Provider: "fake",
		Subject:  "123",
		Name:     "John Doe",
	}, nil
}

type fakeAccounts struct {
	err         error
	provisioned []data.Identity

	accounts   map[string]data.Account
	identities map[string][]data.Identity
}

func (a *fakeAccounts) Provision(ctx context.Context, identity data.Identity) (data.Account, error) {
	if a.err != nil {
		return data.Account{}, a.err
	}

	a.provisioned = append(a.provisioned, identity)
	return data.Account{ID: "account-1", DisplayName: identity.Name}, nil
}

func (a *fakeAccounts) Account(ctx context.Context, id string) (data.Account, error) {
	if a.err != nil {
		return data.Account{}, a.err
	}

	account, ok := a.accounts[id]
	if !ok {
		return data.Account{}, sql.ErrNoRows
	}
	return account, nil
}

func (a *fakeAccounts) Identities(ctx context.Context, accountID string) ([]data.Identity, error) {
	return a.identities[accountID], nil
}

type fakeTokens struct {
	err error
}

func (t fakeTokens) Issue(account data.Account) (string, error) {
	if t.err != nil {
		return "", t.err
	}

	return "token-for-" + account.ID, nil
}

func (t fakeTokens) Verify(raw string) (token.Claims, error) {
	if raw != "token-for-account-1" {
		return token.Claims{}, errors.New("bad token")
	}

	var claims token.Claims
	claims.Subject = "account-1"
	return claims, nil
}

func newCookies() sessions.Store {
	return sessions.NewCookieStore([]byte("something-very-secret"))
}

// newClient returns a client that keeps cookies but does not follow redirects.
func newClient(t *testing.T) *http.Client {
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}

	return &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// recordingStore remembers the keys it hands out.
type recordingStore struct {
	*data.PendingStore
	keys []string
}

func (s *recordingStore) Store(ctx context.Context, token, secret string) (string, error) {
	key, err := s.PendingStore.Store(ctx, token, secret)
	if err == nil {
		s.keys = append(s.keys, key)
	}
	return key, err
}

type fakeTwitterClient struct{}

func (fakeTwitterClient) BeginHandshake(ctx context.Context) (twitter.TemporaryCredentials, error) {
	return twitter.TemporaryCredentials{Token: "request-token", Secret: "request-secret", CallbackConfirmed: true}, nil
}

func (fakeTwitterClient) AuthorizationURL(token string) string {
	return "https://twitter.example.com/oauth/authenticate?oauth_token=" + token
}

func (fakeTwitterClient) CompleteHandshake(ctx context.Context, token, secret, verifier string) (twitter.AccessCredentials, error) {
	return twitter.AccessCredentials{Token: "access-token", Secret: "access-secret"}, nil
}

func (fakeTwitterClient) FetchIdentity(ctx context.Context, token, secret string) (twitter.Identity, error) {
	return twitter.Identity{ID: "attacker", ScreenName: "attacker", Name: "Attacker"}, nil
}
