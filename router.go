package main

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	pagePath   = "/"
	scriptPath = "/install.sh"
)

// newRouter wires the two routes behind the shared middleware chain. Paths
// other than the two routes get chi's default 404.
func newRouter(config Config, holder *wafHolder, logger *slog.Logger) http.Handler {
	limiters := newRouteLimiters(config, pagePath, scriptPath)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return withRequestLogging(logger, next)
	})
	r.Use(middleware.GetHead)
	r.Use(func(next http.Handler) http.Handler {
		return filtered(holder, next)
	})

	r.Method(http.MethodGet, pagePath, rateLimited(limiters[pagePath], http.HandlerFunc(servePage)))
	r.Method(http.MethodGet, scriptPath, rateLimited(limiters[scriptPath], scriptHandler(config.Script.Path)))

	return r
}
