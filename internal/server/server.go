// Package server wires the REST surface and the WebSocket endpoint into
// one HTTP handler.
package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hearthbeat/hearthbeat/internal/auth"
	"github.com/hearthbeat/hearthbeat/internal/household"
	"github.com/hearthbeat/hearthbeat/internal/location"
	"github.com/hearthbeat/hearthbeat/internal/ws"
)

// Server holds the collaborators behind the HTTP handlers.
type Server struct {
	hub        *ws.Hub
	router     *location.Router
	store      household.Store
	membership household.Membership
	logger     *zap.Logger
}

func NewServer(hub *ws.Hub, router *location.Router, store household.Store, logger *zap.Logger) *Server {
	return &Server{
		hub:        hub,
		router:     router,
		store:      store,
		membership: store,
		logger:     logger,
	}
}

// NewRouter assembles the chi router with the gateway routes.
func NewRouter(srv *Server, resolver *auth.Resolver, gatherer prometheus.Gatherer, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)
	r.Use(zapLoggerMiddleware(logger))

	r.Get("/healthz", srv.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// Realtime connect: a missing or invalid token is not a refusal, so
	// this route sits outside the auth middleware.
	r.Get("/ws/location", srv.hub.HandleWS)

	r.Group(func(api chi.Router) {
		api.Use(auth.RequireAuth(resolver, logger))
		api.Put("/api/users/me/position", srv.handleUpdatePosition)
		api.Put("/api/households/{householdID}/sharing", srv.handleSetSharing)
	})

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func zapLoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("query", maskQueryToken(r.URL.RawQuery)),
			)
			next.ServeHTTP(w, r)
		})
	}
}

// maskQueryToken masks the "token" parameter in a query string.
func maskQueryToken(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return rawQuery
	}
	if token := values.Get("token"); token != "" {
		if len(token) > 4 {
			values.Set("token", token[:4]+"****")
		}
	}
	var parts []string
	for k, vs := range values {
		for _, v := range vs {
			parts = append(parts, k+"="+v)
		}
	}
	return strings.Join(parts, "&")
}
