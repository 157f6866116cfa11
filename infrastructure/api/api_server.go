package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/mark3labs/mcp-go/server"

	"github.com/helixml/vectorizer"
	apimiddleware "github.com/helixml/vectorizer/infrastructure/api/middleware"
	v1 "github.com/helixml/vectorizer/infrastructure/api/v1"
	mcpinternal "github.com/helixml/vectorizer/internal/mcp"
)

// APIServer provides an HTTP API backed by a vectorizer Client.
type APIServer struct {
	client       *vectorizer.Client
	apiKeys      []string
	version      string
	server       *Server
	router       chi.Router
	routerCalled bool
	logger       *slog.Logger
}

// NewAPIServer creates a new APIServer wired to the given Client. Mutating
// endpoints under /api/v1/vectorizers and every /mcp request require one of
// apiKeys when any are configured. Reads, /health and /docs stay open.
func NewAPIServer(client *vectorizer.Client, apiKeys []string, version string) *APIServer {
	return &APIServer{
		client:  client,
		apiKeys: apiKeys,
		version: version,
		logger:  client.Logger(),
	}
}

// Router returns the chi router for customization before starting.
// Call this first, add custom middleware with router.Use(), then call MountRoutes().
func (a *APIServer) Router() chi.Router {
	if a.router != nil {
		return a.router
	}

	a.router = chi.NewRouter()
	a.routerCalled = true
	return a.router
}

// MountRoutes wires up all routes on the router.
func (a *APIServer) MountRoutes() {
	if a.router == nil {
		a.Router()
	}
	a.mountRoutes(a.router)
}

func (a *APIServer) mountRoutes(router chi.Router) {
	router.Use(apimiddleware.CorrelationID)
	router.Use(apimiddleware.Logging(a.logger))
	router.Use(apimiddleware.CORS())

	router.Get("/health", a.health)

	vectorizers := v1.NewVectorizersRouter(a.client)
	router.Route("/api/v1", func(r chi.Router) {
		// Run fans out embedding calls and can take a while.
		r.Use(chimiddleware.Timeout(5 * time.Minute))
		r.Group(func(r chi.Router) {
			r.Use(apimiddleware.WriteProtectAuth(a.apiKeys))
			r.Mount("/vectorizers", vectorizers.Routes())
		})
	})

	// No timeout middleware: streamable HTTP holds the response open.
	mcpSrv := mcpinternal.NewServer(a.client.Vectorizers, a.client.Status, a.version, a.logger)
	router.Group(func(r chi.Router) {
		r.Use(apimiddleware.APIKey(apimiddleware.NewAuthConfigWithKeys(a.apiKeys)))
		r.Mount("/mcp", server.NewStreamableHTTPServer(mcpSrv.MCPServer()))
	})

	router.Mount("/docs", a.DocsRouter("/docs/openapi.json").Routes())
}

func (a *APIServer) health(w http.ResponseWriter, r *http.Request) {
	if _, err := a.client.Vectorizers.List(r.Context()); err != nil {
		apimiddleware.WriteError(w, r, apimiddleware.NewServerError(http.StatusServiceUnavailable, err.Error()), a.logger)
		return
	}
	apimiddleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy", "version": a.version})
}

// DocsRouter returns a router for Swagger UI and OpenAPI spec.
func (a *APIServer) DocsRouter(specURL string) *DocsRouter {
	return NewDocsRouter(specURL)
}

// ListenAndServe starts the HTTP server on the given address.
func (a *APIServer) ListenAndServe(addr string) error {
	server := NewServer(addr, a.logger)
	a.server = &server

	if a.routerCalled && a.router != nil {
		server.Router().Mount("/", a.router)
	} else {
		a.mountRoutes(server.Router())
	}

	return server.Start()
}

// Shutdown gracefully shuts down the server.
func (a *APIServer) Shutdown(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}

// Handler returns the router as an http.Handler for use with custom servers.
func (a *APIServer) Handler() http.Handler {
	if a.router == nil {
		a.Router()
		a.MountRoutes()
	}
	return a.router
}
