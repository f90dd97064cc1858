package twitter

import (
	"errors"
	"fmt"
)

// ErrCallbackNotConfirmed is wrapped by an UpstreamAuthError when Twitter issued
// a request token without confirming it will honour our callback URL.
var ErrCallbackNotConfirmed = errors.New("oauth_callback_confirmed was not true")

// UpstreamAuthError is returned when Twitter rejects, or never answers, one of
// the signed requests.
type UpstreamAuthError struct {
	// Op names the leg that failed: "request_token", "access_token" or
	// "verify_credentials".
	Op string

	// StatusCode is the HTTP status Twitter replied with, or zero if no reply was
	// received.
	StatusCode int

	// Body is the start of the reply, for logging.
	Body string

	// Err is the underlying cause when there is one other than the status code,
	// such as a network failure or ErrCallbackNotConfirmed.
	Err error
}

func (e *UpstreamAuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("twitter %s: %v", e.Op, e.Err)
	}

	return fmt.Sprintf("twitter %s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *UpstreamAuthError) Unwrap() error {
	return e.Err
}

// MalformedResponseError is returned when a reply from Twitter could not be
// understood, or is missing fields we require.
type MalformedResponseError struct {
	Op  string
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("twitter %s: malformed response: %v", e.Op, e.Err)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}
