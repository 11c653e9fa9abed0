package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/dvloznov/finance-sankey/internal/config"
	"github.com/dvloznov/finance-sankey/internal/jobs"
	"github.com/dvloznov/finance-sankey/internal/jobs/inmemory"
	"github.com/dvloznov/finance-sankey/internal/logger"
	"github.com/dvloznov/finance-sankey/internal/pipeline"
	"github.com/dvloznov/finance-sankey/internal/records"
)

var unsafeObjectChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// The worker builds the graphs of several sources concurrently and publishes
// each one as <prefix>/<source>.json in Cloud Storage.
func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		l := logger.New()
		l.Fatal().Err(err).Msg("Failed to load configuration")
	}

	var (
		sources = flag.String("sources", cfg.Source, "Comma-separated record source URIs")
		hub     = flag.String("hub", cfg.Hub, "Hub node label")
		prefix  = flag.String("out-prefix", "", "gs:// prefix for graph objects (default gs://$GCS_BUCKET/graphs)")
		workers = flag.Int("workers", inmemory.DefaultWorkerCount, "Number of concurrent builds")
	)
	flag.Parse()

	// Initialize logger
	log := logger.NewWithLevel(logger.ParseLevel(cfg.LogLevel))

	if *prefix == "" {
		if cfg.GCSBucket == "" {
			log.Fatal().Msg("Error: -out-prefix or GCS_BUCKET is required")
		}
		*prefix = fmt.Sprintf("gs://%s/graphs", cfg.GCSBucket)
	}

	var uris []string
	for _, s := range strings.Split(*sources, ",") {
		if s = strings.TrimSpace(s); s != "" {
			uris = append(uris, s)
		}
	}
	if len(uris) == 0 {
		log.Fatal().Msg("Error: -sources is required")
	}

	// Initialize job store and queue
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(len(uris), *workers, jobStore)

	// Create context that cancels on interrupt
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	build := pipeline.NewJobHandler(&records.URIResolver{BQProject: cfg.BQProject, BQDataset: cfg.BQDataset})
	handler := func(ctx context.Context, job jobs.Job) error {
		if err := build(ctx, job); err != nil {
			return err
		}

		buildJob := job.(*jobs.BuildGraphJob)
		data, err := json.Marshal(buildJob.Graph)
		if err != nil {
			return jobs.Permanent(fmt.Errorf("encode graph: %w", err))
		}

		gcsURI := objectURI(*prefix, buildJob.Source)
		if err := records.UploadToGCS(ctx, gcsURI, data, "application/json"); err != nil {
			return err
		}

		log.Info().
			Str("job_id", buildJob.JobID).
			Str("gcs_uri", gcsURI).
			Msg("Graph published")
		return nil
	}

	if err := jobQueue.Start(ctx, handler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	ids := make([]string, 0, len(uris))
	for _, uri := range uris {
		job := &jobs.BuildGraphJob{Source: uri, Hub: *hub}
		if err := jobQueue.PublishBuildGraph(ctx, job); err != nil {
			log.Fatal().Err(err).Str("source", uri).Msg("Failed to enqueue job")
		}
		ids = append(ids, job.JobID)
	}

	log.Info().Int("jobs", len(ids)).Msg("Worker started, waiting for jobs...")

	failed := waitForJobs(ctx, jobStore, ids)

	log.Info().Msg("Shutting down worker...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop the queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	if failed > 0 {
		log.Error().Int("failed", failed).Int("total", len(ids)).Msg("Worker finished with failures")
		os.Exit(1)
	}
	log.Info().Int("total", len(ids)).Msg("Worker finished")
}

// waitForJobs polls the store until every job has finished or ctx is done,
// and returns how many did not complete.
func waitForJobs(ctx context.Context, store jobs.JobStore, ids []string) int {
	log := logger.FromContext(ctx)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		pending, failed := 0, 0
		for _, id := range ids {
			job, err := store.GetJob(ctx, id)
			if err != nil {
				failed++
				continue
			}
			switch job.Status {
			case jobs.JobStatusCompleted:
			case jobs.JobStatusFailed:
				failed++
			default:
				pending++
			}
		}
		if pending == 0 {
			return failed
		}

		select {
		case <-ctx.Done():
			log.Warn().Int("pending", pending).Msg("Interrupted before all jobs finished")
			return failed + pending
		case <-ticker.C:
		}
	}
}

// objectURI names the graph object for a source, e.g.
// gs://b/graphs + gs://budgets/fy23.json -> gs://b/graphs/budgets_fy23.json
func objectURI(prefix, source string) string {
	name := source
	if i := strings.Index(name, "://"); i >= 0 {
		name = name[i+3:]
	}
	if i := strings.Index(name, "?"); i >= 0 {
		name = name[:i]
	}
	if i := strings.LastIndex(name, "@"); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimSuffix(name, ".json")
	name = strings.Trim(unsafeObjectChars.ReplaceAllString(name, "_"), "_.")
	if name == "" {
		name = "graph"
	}
	return strings.TrimSuffix(prefix, "/") + "/" + name + ".json"
}
