package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/homebase-app/homebase/internal/app"
	"github.com/homebase-app/homebase/internal/handler"
	"github.com/homebase-app/homebase/internal/middleware"
)

// SetupRoutes builds the JSON API. Background work (rate limiter cleanup)
// stops when ctx is cancelled.
func SetupRoutes(ctx context.Context, app *app.App) http.Handler {
	// Handlers
	health := handler.NewHealthHandler(app.DB)
	entities := handler.NewEntityHandler(app.Entities)
	relations := handler.NewRelationHandler(app.Relations)

	mux := http.NewServeMux()

	// ============================================================================
	// PROBES
	// ============================================================================

	mux.HandleFunc("GET /healthz", health.Healthz)

	// ============================================================================
	// ENTITIES
	// ============================================================================

	mux.HandleFunc("POST /api/entities", entities.Create)
	mux.HandleFunc("GET /api/entities/{id}", entities.Get)
	mux.HandleFunc("PATCH /api/entities/{id}", entities.Update)
	mux.HandleFunc("DELETE /api/entities/{id}", entities.Delete)
	mux.HandleFunc("POST /api/entities/{id}/restore", entities.Restore)
	mux.HandleFunc("GET /api/types/{type}/entities", entities.Query)
	mux.HandleFunc("GET /api/types/{type}/search", entities.Search)
	mux.HandleFunc("GET /api/stats/types", entities.CountByType)

	// ============================================================================
	// RELATIONS
	// ============================================================================

	mux.HandleFunc("PUT /api/relations", relations.Put)
	mux.HandleFunc("DELETE /api/relations", relations.Delete)
	mux.HandleFunc("GET /api/relations/exists", relations.Exists)
	mux.HandleFunc("GET /api/entities/{id}/outgoing/{relationType}", relations.Outgoing)
	mux.HandleFunc("GET /api/entities/{id}/incoming/{relationType}", relations.Incoming)

	// ============================================================================
	// FILES (only with object storage)
	// ============================================================================

	if app.FileService != nil {
		files := handler.NewFileHandler(app.FileService, app.Cfg.MaxUploadSize)

		// Uploads: 10 burst, then one every 6 seconds per IP
		uploadLimiter := middleware.NewRateLimiter(1.0/6, 10, 15*time.Minute)
		go uploadLimiter.Run(ctx)

		mux.HandleFunc("POST /api/files", uploadLimiter.Limit(files.Upload))
		mux.HandleFunc("GET /api/files/favorites", middleware.RequirePrincipal(files.Favorites))
		mux.HandleFunc("GET /api/files/{id}/url", files.URL)
		mux.HandleFunc("DELETE /api/files/{id}", files.Delete)
		mux.HandleFunc("GET /api/files/{id}/favorites/count", files.FavoriteCount)
		mux.HandleFunc("PUT /api/files/{id}/favorite", middleware.RequirePrincipal(files.Favorite))
		mux.HandleFunc("DELETE /api/files/{id}/favorite", middleware.RequirePrincipal(files.Unfavorite))
	}

	// ============================================================================
	// FALLBACK
	// ============================================================================

	mux.HandleFunc("/{path...}", func(w http.ResponseWriter, r *http.Request) {
		_ = handler.ErrorResponse(w, http.StatusNotFound, "not_found", "no route for "+r.Method+" "+r.URL.Path)
	})

	// Global middleware - executed in order (top to bottom)
	chain := []func(http.Handler) http.Handler{
		middleware.Recover, // Outermost so panics from any layer become JSON 500s
	}
	if app.Cfg.SentryDSN != "" {
		chain = append(chain, middleware.Sentry)
	}
	chain = append(chain,
		middleware.RequestID,
		middleware.Principal,
		middleware.RequestLogging,
	)

	return middleware.Chain(mux, chain...)
}
