package handlers

// router.go constructs the chi router, registers all middleware, and wires all
// routes to their respective handlers. it is the single source of truth for
// the HTTP surface area of spoon-trigger.

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sasta-kro/spoon-trigger/webhook"
)

// WebhookPath is where push events are delivered. the hook URL configured on the
// repository host must end with it.
const WebhookPath = "/spoon-webhook"

// Store is every persistence method the handlers use. *db.Database satisfies it.
type Store interface {
	Pinger
	ProjectStore
	BuildReader
}

// RouterDependencies groups all external dependencies that the router and
// its handlers need. passing a single struct instead of N arguments keeps
// CreateAndSetupRouter's signature stable as more handlers are added.
type RouterDependencies struct {
	Logger         *slog.Logger
	Database       Store
	WebhookRouter  *webhook.Router
	BuildNotifier  BuildNotifier
	HookURLChecker HookURLChecker

	// LogPath maps a build ID to its log file
	LogPath func(buildID string) string

	// CORSAllowedOrigin enables the CORS middleware on /api when non-empty
	CORSAllowedOrigin string
}

// CreateAndSetupRouter constructs the chi multiplexer, attaches middleware, constructs
// all handlers with their dependencies, and registers all routes.
// it returns a plain http.Handler so main.go has no chi import or awareness.
func CreateAndSetupRouter(dependencies RouterDependencies) http.Handler {
	router := chi.NewRouter()

	// middleware runs on every request before the handler, top to bottom.
	// RequestID must come before RequestLogger so the log line carries the ID.
	router.Use(middleware.RequestID)
	router.Use(RequestLogger(dependencies.Logger))
	// Recoverer turns a panicking handler into a 500 instead of crashing the process
	router.Use(middleware.Recoverer)

	// --- handler construction ---
	// each handler receives only the dependencies it actually needs.
	healthHandler := NewHealthHandler(dependencies.Database, dependencies.Logger)
	webhookHandler := NewWebhookHandler(dependencies.WebhookRouter, dependencies.Logger)
	projectHandler := NewProjectHandler(dependencies.Database, dependencies.BuildNotifier, dependencies.LogPath, dependencies.Logger)
	buildHandler := NewBuildHandler(dependencies.Database, dependencies.LogPath, dependencies.Logger)
	validationHandler := NewValidationHandler(dependencies.HookURLChecker, dependencies.Logger)

	// --- route registration ---

	// /health stays at the root, where load balancers and uptime monitors look for it
	router.Get("/health", healthHandler.Health)

	// the repository host posts here. any method other than POST is a 405 from chi
	router.Post(WebhookPath, webhookHandler.Receive)

	router.Route("/api", func(apiRouter chi.Router) {
		if dependencies.CORSAllowedOrigin != "" {
			apiRouter.Use(CORSMiddleware(dependencies.CORSAllowedOrigin))
		}

		apiRouter.Get("/projects", projectHandler.ListProjects)
		apiRouter.Post("/projects", projectHandler.CreateProject)
		apiRouter.Get("/projects/{id}", projectHandler.GetProject)
		apiRouter.Put("/projects/{id}", projectHandler.UpdateProject)
		apiRouter.Delete("/projects/{id}", projectHandler.DeleteProject)
		apiRouter.Post("/projects/{id}/builds", projectHandler.TriggerBuild)

		apiRouter.Get("/builds", buildHandler.ListBuilds)
		apiRouter.Get("/builds/{id}", buildHandler.GetBuild)
		apiRouter.Get("/builds/{id}/log", buildHandler.GetBuildLog)

		apiRouter.Post("/validate/project", validationHandler.ValidateProject)
		apiRouter.Post("/validate/hook-url", validationHandler.ValidateHookURL)
	})

	return router
}
