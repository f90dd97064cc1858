package handler

import "net/http"

// NotConfigured responds to every request for provider with 503, used in place
// of Start and Callback when the provider has no credentials.
func NotConfigured(provider string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "signing in with "+provider+" is not configured", http.StatusServiceUnavailable)
	})
}
