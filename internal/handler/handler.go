// Package handler contains the HTTP handlers for signing in.
package handler

import (
	"errors"
	"net/http"
	"net/url"

	"hawx.me/code/countdown-auth/internal/data"
	"hawx.me/code/countdown-auth/internal/strategy"
	"hawx.me/code/countdown-auth/internal/twitter"
)

// CookieName is the name of the cookie holding the keys of logins in progress,
// one per provider.
const CookieName = "countdown-login"

// Error codes passed to the front-end in the "error" query parameter.
const (
	CodeAccessDenied     = "access_denied"
	CodeLoginExpired     = "login_expired"
	CodeUpstreamError    = "upstream_error"
	CodeMalformedProfile = "malformed_profile"
	CodeServerError      = "server_error"
)

// errorCode picks what to tell the front-end went wrong. Nothing more than the
// code is ever passed on.
func errorCode(err error) string {
	var (
		upstreamErr  *twitter.UpstreamAuthError
		malformedErr *twitter.MalformedResponseError
	)

	switch {
	case errors.Is(err, strategy.ErrDenied):
		return CodeAccessDenied
	case errors.Is(err, data.ErrTokenNotFound):
		return CodeLoginExpired
	case errors.As(err, &malformedErr), errors.Is(err, strategy.ErrMalformedProfile):
		return CodeMalformedProfile
	case errors.As(err, &upstreamErr), errors.Is(err, strategy.ErrUpstream):
		return CodeUpstreamError
	default:
		return CodeServerError
	}
}

// redirectWith sends the user to target with key=value added to its query.
func redirectWith(w http.ResponseWriter, r *http.Request, target, key, value string) {
	u, err := url.Parse(target)
	if err != nil {
		http.Error(w, "something went wrong", http.StatusInternalServerError)
		return
	}

	query := u.Query()
	query.Set(key, value)
	u.RawQuery = query.Encode()

	http.Redirect(w, r, u.String(), http.StatusFound)
}
