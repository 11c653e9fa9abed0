package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/dvloznov/finance-sankey/internal/api/middleware"
	"github.com/dvloznov/finance-sankey/internal/jobs"
	"github.com/dvloznov/finance-sankey/internal/logger"
	"github.com/dvloznov/finance-sankey/internal/pipeline"
	"github.com/dvloznov/finance-sankey/internal/records"
	"github.com/dvloznov/finance-sankey/internal/sankey"
	"github.com/rs/zerolog"
)

// SankeyHandler builds diagrams synchronously.
type SankeyHandler struct {
	resolver records.Resolver
	sources  *SourcePolicy
	hub      string
	options  sankey.DiagramOptions
	log      zerolog.Logger
}

// NewSankeyHandler creates a new sankey handler. hub is used when a request
// does not name one.
func NewSankeyHandler(resolver records.Resolver, sources *SourcePolicy, hub string, options sankey.DiagramOptions, log zerolog.Logger) *SankeyHandler {
	return &SankeyHandler{
		resolver: resolver,
		sources:  sources,
		hub:      hub,
		options:  options,
		log:      log,
	}
}

// GetSankey handles GET /api/sankey
func (h *SankeyHandler) GetSankey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query()
	source, ok := pickSource(w, r, h.sources, query.Get("source"))
	if !ok {
		return
	}
	hub := valueOr(query.Get("hub"), h.hub)

	g, err := pipeline.BuildGraph(ctx, h.resolver, source, hub)
	if err != nil {
		writeBuildError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, sankey.Diagram{Options: h.options, Graph: g})
}

// GraphsHandler handles asynchronous graph build jobs.
type GraphsHandler struct {
	publisher jobs.Publisher
	store     jobs.JobStore
	sources   *SourcePolicy
	hub       string
	log       zerolog.Logger
}

// NewGraphsHandler creates a new graphs handler.
func NewGraphsHandler(publisher jobs.Publisher, store jobs.JobStore, sources *SourcePolicy, hub string, log zerolog.Logger) *GraphsHandler {
	return &GraphsHandler{
		publisher: publisher,
		store:     store,
		sources:   sources,
		hub:       hub,
		log:       log,
	}
}

// EnqueueBuild handles POST /api/graphs
func (h *GraphsHandler) EnqueueBuild(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Source string `json:"source"`
		Hub    string `json:"hub"`
	}

	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	source, ok := pickSource(w, r, h.sources, req.Source)
	if !ok {
		return
	}

	ctx := r.Context()
	log := logger.FromContext(ctx)

	job := &jobs.BuildGraphJob{
		Source: source,
		Hub:    valueOr(req.Hub, h.hub),
	}

	if err := h.publisher.PublishBuildGraph(ctx, job); err != nil {
		log.Error().Err(err).Msg("Failed to enqueue graph build job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue graph build job")
		return
	}
	jobID, status := job.JobID, job.Status

	log.Info().Str("job_id", jobID).Str("source", source).Msg("Graph build job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": jobID,
		"source": source,
		"status": string(status),
	})
}

// GetGraph handles GET /api/graphs/{id}
func (h *GraphsHandler) GetGraph(w http.ResponseWriter, r *http.Request, jobID string) {
	ctx := r.Context()

	job, err := h.store.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Job not found")
			return
		}
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	if job.Graph != nil {
		job.Graph = job.Graph.Clone()
	}
	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListGraphs handles GET /api/graphs
// Graphs are left out of the listing; fetch a job to get its graph.
func (h *GraphsHandler) ListGraphs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query()
	filter := jobs.JobFilter{
		Source: query.Get("source"),
		Status: jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	for _, job := range jobsList {
		job.Graph = nil
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}

// pickSource applies the source policy, writing the error response when
// the request may not build from the source it names.
func pickSource(w http.ResponseWriter, r *http.Request, sources *SourcePolicy, requested string) (string, bool) {
	source, err := sources.Pick(requested)
	switch {
	case err == nil:
		return source, true
	case errors.Is(err, errSourceNotAllowed):
		log := logger.FromContext(r.Context())
		log.Warn().Str("source", requested).Msg("Rejected record source")
		middleware.WriteError(w, http.StatusForbidden, "Source not allowed")
	default:
		middleware.WriteError(w, http.StatusBadRequest, "Source is required")
	}
	return "", false
}

// writeBuildError maps a pipeline error to a status code.
// Bad URIs are the caller's fault, bad data is unprocessable, and anything
// else is a failure of the backing store. The detail stays in the log
// written by pipeline.BuildGraph.
func writeBuildError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pipeline.ErrInvalidSource):
		middleware.WriteError(w, http.StatusBadRequest, "Invalid record source")
	case pipeline.IsDataError(err):
		middleware.WriteError(w, http.StatusUnprocessableEntity, "Record data is invalid")
	default:
		middleware.WriteError(w, http.StatusBadGateway, "Failed to load records")
	}
}

func valueOr(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}
