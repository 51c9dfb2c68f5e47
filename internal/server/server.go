// Package server assembles all HTTP handlers and starts the server.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matthewbaird/advisorlens/internal/activity"
	"github.com/matthewbaird/advisorlens/internal/apiclient"
	"github.com/matthewbaird/advisorlens/internal/catalog"
	"github.com/matthewbaird/advisorlens/internal/daterange"
	"github.com/matthewbaird/advisorlens/internal/handler"
	"github.com/matthewbaird/advisorlens/internal/stream"
)

// Config holds server configuration.
type Config struct {
	Port int
	// Store, when set, is served as the upstream feed API under /v1/feeds.
	Store activity.Store
	// Source is what the explorer paginates over: a LocalSource over Store
	// or a remote API client.
	Source   apiclient.Source
	Catalog  *catalog.Catalog
	Resolver daterange.Resolver
}

// NewRouter registers every route on a chi router.
func NewRouter(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(handler.Recovery)
	r.Use(handler.Logging)

	sessions := stream.NewManager()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","stream_sessions":%d}`, sessions.Len())
	})

	// --- Feed API ---
	if cfg.Store != nil {
		fh := handler.NewFeedHandler(cfg.Store)
		r.Route("/v1/feeds/{feed_id}", func(r chi.Router) {
			r.Get("/entries", fh.HandleListEntries)
			r.Get("/availability", fh.HandleGetAvailability)
		})
	}

	// --- Explorer ---
	eh := handler.NewExplorerHandler(cfg.Source, cfg.Catalog, cfg.Resolver)
	sh := stream.NewHandler(sessions, cfg.Catalog, cfg.Source, cfg.Resolver)
	r.Get("/v1/views", eh.HandleListViews)
	r.Route("/v1/businesses/{business_id}/views/{view}", func(r chi.Router) {
		r.Get("/range", eh.HandleGetRange)
		r.Get("/entries", eh.HandleListEntries)
		r.Get("/entries/{entry_id}/locate", eh.HandleLocateEntry)
		r.Get("/stream", sh.ServeHTTP)
	})

	return r
}

// Run starts the HTTP server and shuts it down when ctx is done.
func Run(ctx context.Context, cfg Config) error {
	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Printf("starting server on %s (%d views)", addr, len(cfg.Catalog.Names()))

	server := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
