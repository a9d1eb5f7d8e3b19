package handler

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"canvas-notes-backend/pkg/config"
	"canvas-notes-backend/pkg/database"
	"canvas-notes-backend/pkg/gql"
	customMiddleware "canvas-notes-backend/pkg/middleware"
	"canvas-notes-backend/pkg/service"
	"canvas-notes-backend/pkg/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const maxGraphQLBodyBytes = 1 << 20 // 1 MiB

// Handler is the serverless entry point. It follows the monolithic
// router pattern: one chi router owns every endpoint, so the platform
// only needs a single function.
func Handler(w http.ResponseWriter, r *http.Request) {
	cfg := config.GetCached()

	if err := cfg.Validate(); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Configuration error: "+err.Error())
		return
	}

	router, err := buildRouter(cfg)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Startup error: "+err.Error())
		return
	}

	router.ServeHTTP(w, r)
}

var (
	cachedRouter *chi.Mux
	cachedErr    error
	routerOnce   sync.Once
)

// buildRouter assembles the router once per cold start. Database
// connections and the compiled schema are reused across warm
// invocations.
func buildRouter(cfg *config.Config) (*chi.Mux, error) {
	routerOnce.Do(func() {
		cachedRouter, cachedErr = newRouter(cfg)
	})
	return cachedRouter, cachedErr
}

func newRouter(cfg *config.Config) (*chi.Mux, error) {
	db, err := database.NewDatabase(database.DatabaseConfig{
		PostgresDSN: cfg.PostgresDSN,
		SupabaseURL: cfg.SupabaseURL,
		SupabaseKey: cfg.SupabaseKey,
		SQLitePath:  cfg.SQLitePath,
		UseLocalDB:  cfg.UseLocalDB,
		Debug:       cfg.Debug,
	})
	if err != nil {
		return nil, err
	}

	svc := service.NewGraphService(db)
	schema, err := gql.NewSchema(svc)
	if err != nil {
		return nil, err
	}

	router := chi.NewRouter()
	setupMiddleware(router, cfg)
	setupRoutes(router, cfg, db, gql.NewHandler(schema))

	return router, nil
}

// setupMiddleware installs the global middleware chain.
func setupMiddleware(router *chi.Mux, cfg *config.Config) {
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	// Normalize path and restore scheme/host before logging and routing
	router.Use(customMiddleware.Normalize())
	router.Use(customMiddleware.Logger(cfg))
	router.Use(middleware.Recoverer)

	router.Use(customMiddleware.CORS(cfg))

	// Serverless functions are time-limited; leave a few seconds of
	// buffer below the platform cutoff.
	router.Use(middleware.Timeout(25 * time.Second))

	router.Use(middleware.Compress(5))

	if cfg.IsDevelopment() {
		router.Use(middleware.Heartbeat("/ping"))
	}
}

// setupRoutes wires up every endpoint.
func setupRoutes(router *chi.Mux, cfg *config.Config, db database.DatabaseInterface, graphqlHandler *gql.Handler) {
	// Health check
	router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		if err := db.HealthCheck(); err != nil {
			status = "degraded"
		}
		utils.WriteSuccessResponse(w, map[string]interface{}{
			"service":  "canvas-notes-backend",
			"status":   status,
			"database": status,
		})
	})

	router.Route("/api", func(r chi.Router) {
		// GraphQL carries auth as a bearer token but never fails at
		// the transport level for a missing one; unauthenticated
		// operations surface UNAUTHENTICATED in the errors array.
		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.OptionalAuthMiddleware(cfg))
			r.Use(customMiddleware.ContentTypeJSON)
			r.Use(customMiddleware.MaxBodySize(maxGraphQLBodyBytes))
			r.Post("/graphql", graphqlHandler.ServeHTTP)
		})

		// Plain REST reads outside GraphQL require the token up front;
		// a missing or invalid one is a hard 401 here.
		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.AuthMiddleware(cfg))
			r.Get("/me", func(w http.ResponseWriter, req *http.Request) {
				user, err := customMiddleware.RequireUser(req.Context())
				if err != nil {
					utils.WriteUnauthorizedResponse(w, err.Error())
					return
				}
				utils.WriteSuccessResponse(w, user)
			})
		})
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteNotFoundResponse(w, fmt.Sprintf("Route not found: %s %s", r.Method, r.URL.Path))
	})

	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteErrorResponseWithCode(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			fmt.Sprintf("Method %s not allowed for %s", r.Method, r.URL.Path), "")
	})
}
