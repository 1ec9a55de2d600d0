package middleware

import (
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// CORS lets browser clients served from allowedOrigins call the REST routes.
// Preflight decisions are logged when the global level is debug.
func CORS(allowedOrigins []string, logger zerolog.Logger) func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders: []string{"Accept", "Content-Type", chimw.RequestIDHeader},
		ExposedHeaders: []string{chimw.RequestIDHeader},
		MaxAge:         300,
	}
	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		l := logger.With().Str("component", "cors").Logger()
		opts.Debug = true
		opts.Logger = &l
	}

	return cors.New(opts).Handler
}
