package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dvloznov/finance-sankey/internal/api/handlers"
	"github.com/dvloznov/finance-sankey/internal/api/middleware"
	"github.com/dvloznov/finance-sankey/internal/config"
	"github.com/dvloznov/finance-sankey/internal/jobs/inmemory"
	"github.com/dvloznov/finance-sankey/internal/logger"
	"github.com/dvloznov/finance-sankey/internal/pipeline"
	"github.com/dvloznov/finance-sankey/internal/records"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		l := logger.New()
		l.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Parse command-line flags
	var (
		port    = flag.String("port", cfg.Port, "HTTP server port (or set PORT env)")
		source  = flag.String("source", cfg.Source, "Default record source URI (or set SANKEY_SOURCE env)")
		hub     = flag.String("hub", cfg.Hub, "Default hub node label (or set SANKEY_HUB env)")
		workers = flag.Int("workers", inmemory.DefaultWorkerCount, "Number of graph build workers")
	)
	flag.Parse()

	// Initialize logger
	log := logger.NewWithLevel(logger.ParseLevel(cfg.LogLevel))

	if *source == "" && cfg.DatabaseURL != "" {
		*source = cfg.DatabaseURL
	}
	if *source == "" {
		log.Warn().Msg("No default record source configured - requests must name a source from SANKEY_ALLOWED_SOURCES")
	}

	resolver := &records.URIResolver{BQProject: cfg.BQProject, BQDataset: cfg.BQDataset}

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, *workers, jobStore)

	// Start worker in background to process jobs
	workerCtx, cancelWorker := context.WithCancel(logger.WithContext(context.Background(), log))
	defer cancelWorker()

	log.Info().Int("workers", *workers).Msg("Starting job workers")
	if err := jobQueue.Start(workerCtx, pipeline.NewJobHandler(resolver)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job workers")
	}

	// Initialize handlers
	sources := handlers.NewSourcePolicy(*source, cfg.AllowedSources)
	sankeyHandler := handlers.NewSankeyHandler(resolver, sources, *hub, cfg.Diagram, log)
	graphsHandler := handlers.NewGraphsHandler(jobQueue, jobStore, sources, *hub, log)

	// Create router
	mux := http.NewServeMux()

	mux.HandleFunc("/api/sankey", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			sankeyHandler.GetSankey(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Graph build jobs
	mux.HandleFunc("/api/graphs", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			graphsHandler.ListGraphs(w, r)
		case http.MethodPost:
			graphsHandler.EnqueueBuild(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/graphs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			// Extract job ID from path
			jobID := strings.TrimPrefix(r.URL.Path, "/api/graphs/")
			if jobID == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
				return
			}
			graphsHandler.GetGraph(w, r, jobID)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// Apply middleware
	handler := middleware.Recovery(log)(
		middleware.RequestID(
			middleware.Logger(log)(
				middleware.CORS(mux),
			),
		),
	)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", *port).Str("source", *source).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	log.Info().Msg("Server exited")
}
