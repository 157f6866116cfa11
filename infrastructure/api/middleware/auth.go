package middleware

import (
	"net/http"
)

// AuthConfig holds the accepted API keys.
type AuthConfig struct {
	apiKeys map[string]struct{}
	enabled bool
}

// NewAuthConfigWithKeys creates an AuthConfig. Empty keys are ignored and
// authentication is disabled when none remain.
func NewAuthConfigWithKeys(apiKeys []string) AuthConfig {
	keys := make(map[string]struct{}, len(apiKeys))
	for _, k := range apiKeys {
		if k != "" {
			keys[k] = struct{}{}
		}
	}
	if len(keys) == 0 {
		return AuthConfig{enabled: false}
	}
	return AuthConfig{
		apiKeys: keys,
		enabled: true,
	}
}

// Enabled returns true if authentication is enabled.
func (c AuthConfig) Enabled() bool { return c.enabled }

func (c AuthConfig) valid(key string) bool {
	_, ok := c.apiKeys[key]
	return ok
}

// APIKey returns a middleware that requires a valid X-API-KEY header on
// every request. It passes everything through when auth is disabled.
func APIKey(config AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !config.enabled || checkKey(w, r, config) {
				next.ServeHTTP(w, r)
			}
		})
	}
}

// WriteProtect returns a middleware that only authenticates mutating
// requests. GET, HEAD and OPTIONS are always allowed.
func WriteProtect(config AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}
			if !config.enabled || checkKey(w, r, config) {
				next.ServeHTTP(w, r)
			}
		})
	}
}

// WriteProtectAuth is WriteProtect built from a slice of API keys.
func WriteProtectAuth(apiKeys []string) func(http.Handler) http.Handler {
	return WriteProtect(NewAuthConfigWithKeys(apiKeys))
}

// checkKey writes a 401 and returns false when the request lacks a valid key.
func checkKey(w http.ResponseWriter, r *http.Request, config AuthConfig) bool {
	apiKey := r.Header.Get("X-API-KEY")
	if apiKey == "" {
		WriteError(w, r, NewAuthenticationError("X-API-KEY header is required"), nil)
		return false
	}
	if !config.valid(apiKey) {
		WriteError(w, r, NewAuthenticationError("invalid API key"), nil)
		return false
	}
	return true
}
