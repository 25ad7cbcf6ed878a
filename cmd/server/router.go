package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/pagescan/internal/api"
	apiMiddleware "github.com/phrazzld/pagescan/internal/api/middleware"
	"github.com/phrazzld/pagescan/internal/api/shared"
	"github.com/phrazzld/pagescan/internal/service/auth"
)

// pinger reports whether the database is reachable.
type pinger interface {
	PingContext(ctx context.Context) error
}

// routes collects everything the HTTP layer is built from.
type routes struct {
	logger       *slog.Logger
	jwtService   auth.JWTService
	workerSecret string

	scans     *api.ScanHandler
	notebooks *api.NotebookHandler
	worker    *api.WorkerHandler

	metrics http.Handler
	db      pinger

	// files serves locally stored images under filesPath; nil for remote stores.
	files     http.Handler
	filesPath string
}

// setupRouter builds the handlers from the application's services.
func (app *application) setupRouter() http.Handler {
	r := routes{
		logger:       app.logger,
		jwtService:   app.jwtService,
		workerSecret: app.config.Worker.Secret,
		scans: api.NewScanHandler(
			app.pageService,
			app.scanService,
			app.images,
			api.UploadLimits{
				MaxImages: app.config.Scan.MaxImages,
				MaxBytes:  app.config.Scan.MaxUploadBytes,
			},
			app.metrics,
			app.logger,
		),
		notebooks: api.NewNotebookHandler(
			app.notebookService,
			app.pageService,
			app.scanService,
			app.contentRouter,
			app.logger,
		),
		worker:  api.NewWorkerHandler(app.scanService, app.logger),
		metrics: app.metrics.Handler(),
		db:      app.db,
	}
	if app.files != nil {
		r.files = app.files
		r.filesPath = filesMountPath(app.config.Storage.PublicBaseURL)
	}
	return newRouter(r)
}

// newRouter wires middleware and routes onto a chi router.
func newRouter(rt routes) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.Trace(rt.logger))

	r.Get("/health", healthHandler(rt.db))
	if rt.metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.metrics)
	}
	if rt.files != nil {
		r.Mount(rt.filesPath, http.StripPrefix(rt.filesPath, rt.files))
	}

	authMiddleware := apiMiddleware.NewAuthMiddleware(rt.jwtService)

	r.Route("/api", func(r chi.Router) {
		// Scanner endpoints are addressed by page token and need no login.
		r.Route("/scan/{token}", func(r chi.Router) {
			r.Get("/", rt.scans.Resolve)
			r.Post("/images", rt.scans.UploadImages)
			r.Get("/status", rt.scans.Status)
		})

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			r.Post("/notebooks", rt.notebooks.CreateNotebook)
			r.Get("/notebooks/{id}/pages", rt.notebooks.ListPages)
			r.Get("/pages/{id}/scan", rt.notebooks.PageScan)
			r.Get("/pages/{id}/content", rt.notebooks.PageContent)
			r.Post("/pages/{id}/token/rotate", rt.notebooks.RotateToken)
			r.Post("/pages/{id}/token/revoke", rt.notebooks.RevokeToken)
		})

		r.Route("/worker/jobs/{id}", func(r chi.Router) {
			r.Use(apiMiddleware.WorkerSecret(rt.workerSecret))
			r.Post("/ack", rt.worker.Ack)
			r.Post("/result", rt.worker.Result)
		})
	})

	return r
}

// healthHandler reports ok, or 503 when the database cannot be reached.
func healthHandler(db pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				shared.RespondWithErrorAndLog(w, r, http.StatusServiceUnavailable, "Database unavailable", err)
				return
			}
		}
		shared.RespondWithJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// filesMountPath returns the path portion of the public base URL that local
// image URLs are served under, defaulting to /files.
func filesMountPath(publicBaseURL string) string {
	u, err := url.Parse(publicBaseURL)
	if err != nil || strings.Trim(u.Path, "/") == "" {
		return "/files"
	}
	return "/" + strings.Trim(u.Path, "/")
}
