package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS allows browser clients from any origin to call the API. Credentials
// are never allowed; the API key travels in a header.
func CORS() func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-API-KEY", CorrelationHeader},
		ExposedHeaders:   []string{CorrelationHeader},
		AllowCredentials: false,
		MaxAge:           300,
	})
}
