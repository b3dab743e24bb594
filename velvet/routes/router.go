package routes

import (
	"net/http"
	"time"

	"velvet/velvet/controllers"
	"velvet/velvet/services/bcrp"
	"velvet/velvet/services/files"
	"velvet/velvet/utils/logging"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
)

type Deps struct {
	Auth           *controllers.AuthController
	Chat           *controllers.ChatController
	Health         *controllers.HealthController
	Files          *files.Processor
	BCRP           *bcrp.Client
	Origins        []string
	RequestTimeout time.Duration
	Version        string
}

// NewRouter assembles the API behind the shared middleware stack and CORS.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/", banner(d.Version))
	r.Mount("/health", HealthRoutes(d.Health))
	r.Mount("/chats", ChatRoutes(d.Chat, d.Auth, d.Origins, d.RequestTimeout))

	r.Group(func(api chi.Router) {
		api.Use(middleware.Timeout(d.RequestTimeout))
		api.Mount("/auth", AuthRoutes(d.Auth))
		api.Mount("/files", FileRoutes(d.Files, d.Auth))
		api.Mount("/bcrp", BCRPRoutes(d.BCRP, d.Auth))
	})

	c := cors.New(cors.Options{
		AllowedOrigins:   d.Origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})
	return c.Handler(r)
}
