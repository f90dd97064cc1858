// Package twitter performs the OAuth 1.0a three-legged handshake with Twitter,
// then looks up who signed in.
//
// The three legs are each signed with a different secret: the request token leg
// with only the consumer secret, the access token leg with the request token
// secret, and API calls with the access token secret.
package twitter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/garyburd/go-oauth/oauth"
)

const (
	opRequestToken      = "request_token"
	opAccessToken       = "access_token"
	opVerifyCredentials = "verify_credentials"

	defaultTimeout  = 10 * time.Second
	maxResponseSize = 1 << 20
	maxErrorBody    = 200
)

// Endpoints are the URLs used for each step.
type Endpoints struct {
	RequestToken string
	Authorize    string
	AccessToken  string
	API          string
}

var DefaultEndpoints = Endpoints{
	RequestToken: "https://api.twitter.com/oauth/request_token",
	Authorize:    "https://api.twitter.com/oauth/authenticate",
	AccessToken:  "https://api.twitter.com/oauth/access_token",
	API:          "https://api.twitter.com/1.1",
}

type Config struct {
	ConsumerKey    string
	ConsumerSecret string
	CallbackURL    string

	// Timeout bounds each request made to Twitter, defaults to 10 seconds.
	Timeout time.Duration

	// Endpoints defaults to DefaultEndpoints.
	Endpoints Endpoints
}

// Client talks to Twitter on behalf of the application. It holds no state
// between calls so can be shared freely.
type Client struct {
	oauth       oauth.Client
	endpoints   Endpoints
	callbackURL string
	timeout     time.Duration
	httpClient  *http.Client
}

// TemporaryCredentials is the request token issued at the start of a handshake.
type TemporaryCredentials struct {
	Token             string
	Secret            string
	CallbackConfirmed bool
}

// AccessCredentials is the access token issued once the user has approved the
// application.
type AccessCredentials struct {
	Token      string
	Secret     string
	UserID     string
	ScreenName string
}

// Identity is the signed in Twitter user. Email is only set if the application
// has been granted access to it, and the user has a confirmed address.
type Identity struct {
	ID         string
	ScreenName string
	Name       string
	AvatarURL  string
	Email      string
}

func New(conf Config, httpClient *http.Client) *Client {
	endpoints := conf.Endpoints
	if endpoints == (Endpoints{}) {
		endpoints = DefaultEndpoints
	}

	timeout := conf.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		oauth: oauth.Client{
			TemporaryCredentialRequestURI: endpoints.RequestToken,
			ResourceOwnerAuthorizationURI: endpoints.Authorize,
			TokenRequestURI:               endpoints.AccessToken,
			Credentials: oauth.Credentials{
				Token:  conf.ConsumerKey,
				Secret: conf.ConsumerSecret,
			},
		},
		endpoints:   endpoints,
		callbackURL: conf.CallbackURL,
		timeout:     timeout,
		httpClient:  httpClient,
	}
}

// BeginHandshake asks Twitter for a request token bound to the callback URL.
// Twitter must confirm the callback, otherwise the token is not trusted even
// though the request succeeded.
func (c *Client) BeginHandshake(ctx context.Context) (TemporaryCredentials, error) {
	vals, err := c.postForm(ctx, opRequestToken, nil, c.endpoints.RequestToken, url.Values{
		"oauth_callback": {c.callbackURL},
	})
	if err != nil {
		return TemporaryCredentials{}, err
	}

	if vals.Get("oauth_callback_confirmed") != "true" {
		return TemporaryCredentials{}, &UpstreamAuthError{
			Op:         opRequestToken,
			StatusCode: http.StatusOK,
			Err:        ErrCallbackNotConfirmed,
		}
	}

	creds := TemporaryCredentials{
		Token:             vals.Get("oauth_token"),
		Secret:            vals.Get("oauth_token_secret"),
		CallbackConfirmed: true,
	}
	if creds.Token == "" || creds.Secret == "" {
		return TemporaryCredentials{}, &UpstreamAuthError{
			Op:         opRequestToken,
			StatusCode: http.StatusOK,
			Err:        errors.New("missing oauth_token or oauth_token_secret"),
		}
	}

	return creds, nil
}

// AuthorizationURL is where to send the user to approve the request token.
func (c *Client) AuthorizationURL(token string) string {
	return c.oauth.AuthorizationURL(&oauth.Credentials{Token: token}, nil)
}

// CompleteHandshake exchanges the request token and the verifier Twitter handed
// back to the callback for an access token.
func (c *Client) CompleteHandshake(ctx context.Context, token, secret, verifier string) (AccessCredentials, error) {
	vals, err := c.postForm(ctx, opAccessToken, &oauth.Credentials{Token: token, Secret: secret}, c.endpoints.AccessToken, url.Values{
		"oauth_verifier": {verifier},
	})
	if err != nil {
		return AccessCredentials{}, err
	}

	creds := AccessCredentials{
		Token:      vals.Get("oauth_token"),
		Secret:     vals.Get("oauth_token_secret"),
		UserID:     vals.Get("user_id"),
		ScreenName: vals.Get("screen_name"),
	}
	if creds.Token == "" || creds.Secret == "" {
		return AccessCredentials{}, &UpstreamAuthError{
			Op:         opAccessToken,
			StatusCode: http.StatusOK,
			Err:        errors.New("missing oauth_token or oauth_token_secret"),
		}
	}

	return creds, nil
}

// FetchIdentity looks up the user the access token belongs to, asking for their
// e-mail address too.
func (c *Client) FetchIdentity(ctx context.Context, token, secret string) (Identity, error) {
	body, err := c.do(ctx, opVerifyCredentials, http.MethodGet, &oauth.Credentials{Token: token, Secret: secret}, c.endpoints.API+"/account/verify_credentials.json", url.Values{
		"include_email":    {"true"},
		"include_entities": {"false"},
		"skip_status":      {"true"},
	})
	if err != nil {
		return Identity{}, err
	}

	var v verifyCredentialsResponse
	if err := json.Unmarshal(body, &v); err != nil {
		return Identity{}, &MalformedResponseError{Op: opVerifyCredentials, Err: err}
	}

	return v.identity()
}

func (c *Client) postForm(ctx context.Context, op string, creds *oauth.Credentials, uri string, form url.Values) (url.Values, error) {
	body, err := c.do(ctx, op, http.MethodPost, creds, uri, form)
	if err != nil {
		return nil, err
	}

	vals, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, &UpstreamAuthError{Op: op, StatusCode: http.StatusOK, Err: err}
	}

	return vals, nil
}

// do makes a signed request. For GET the form is sent as the query string,
// otherwise as the body; either way it is included in the signature.
func (c *Client) do(ctx context.Context, op, method string, creds *oauth.Credentials, uri string, form url.Values) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u, err := url.Parse(uri)
	if err != nil {
		return nil, &UpstreamAuthError{Op: op, Err: err}
	}
	signedURL := *u
	signedURL.RawQuery = ""

	var body io.Reader
	if method == http.MethodGet {
		u.RawQuery = form.Encode()
	} else {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, &UpstreamAuthError{Op: op, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	if err := c.oauth.SetAuthorizationHeader(req.Header, creds, method, &signedURL, form); err != nil {
		return nil, &UpstreamAuthError{Op: op, Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UpstreamAuthError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &UpstreamAuthError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		if len(data) > maxErrorBody {
			data = data[:maxErrorBody]
		}
		return nil, &UpstreamAuthError{Op: op, StatusCode: resp.StatusCode, Body: string(data)}
	}

	return data, nil
}

// Only the fields we need from
// https://developer.twitter.com/en/docs/twitter-api/v1/accounts-and-users/manage-account-settings/api-reference/get-account-verify_credentials
type verifyCredentialsResponse struct {
	IDStr           string `json:"id_str"`
	ScreenName      string `json:"screen_name"`
	Name            string `json:"name"`
	ProfileImageURL string `json:"profile_image_url_https"`
	Email           string `json:"email"`
}

func (v verifyCredentialsResponse) identity() (Identity, error) {
	if v.IDStr == "" {
		return Identity{}, &MalformedResponseError{Op: opVerifyCredentials, Err: errors.New("missing id_str")}
	}
	if v.ScreenName == "" {
		return Identity{}, &MalformedResponseError{Op: opVerifyCredentials, Err: errors.New("missing screen_name")}
	}

	name := v.Name
	if name == "" {
		name = v.ScreenName
	}

	return Identity{
		ID:         v.IDStr,
		ScreenName: v.ScreenName,
		Name:       name,
		AvatarURL:  v.ProfileImageURL,
		Email:      v.Email,
	}, nil
}
