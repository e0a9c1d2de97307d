package httpapi

import (
	"net/http"

	"github.com/DoyleJ11/tap-race-backend/internal/lobby"
	"github.com/DoyleJ11/tap-race-backend/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

type Options struct {
	AllowedOrigins []string
}

func SetupRoutes(lb *lobby.Lobby, log *zap.Logger, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead},
	}).Handler)

	// Public routes
	r.Get("/healthz", Healthz)
	r.Get("/api/state", State(lb, log))
	r.Get("/ws", ws.Handler(lb, log, ws.Options{OriginPatterns: opts.AllowedOrigins}))
	return r
}
