package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"wordbento/internal/http/handlers"
	"wordbento/internal/infra/geoip"
	"wordbento/internal/middleware"
)

type RouterOptions struct {
	JWTSecret      string
	AllowedOrigins []string
	Proxies        middleware.ProxyTrust
	Countries      geoip.CountryResolver
	Logger         zerolog.Logger
}

func NewRouter(app *handlers.App, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		middleware.ClientIP(opts.Proxies),
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.AllowedOrigins),
		middleware.Country(opts.Countries),
		middleware.OptionalAuth(opts.JWTSecret),
	)

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/tasks", func(r chi.Router) {
		r.Post("/", app.SubmitTask)
		r.Get("/{id}", app.GetTask)
		r.Get("/{id}/ws", app.TaskStatusSocket)
	})
	r.Get("/v1/history", app.History)

	r.Route("/v1/credentials", func(r chi.Router) {
		r.Get("/", app.ListCredentials)
		r.Put("/{platform}", app.SaveCredential)
	})

	r.Get("/v1/images/{key}", app.Image)

	return r
}
