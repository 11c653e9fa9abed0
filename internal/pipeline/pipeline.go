// Package pipeline loads records from a source URI and builds their graph.
// It is shared by the HTTP handlers, the job worker and the CLI.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/dvloznov/finance-sankey/internal/logger"
	"github.com/dvloznov/finance-sankey/internal/records"
	"github.com/dvloznov/finance-sankey/internal/sankey"
)

// ErrInvalidSource wraps errors from resolving a source URI.
var ErrInvalidSource = errors.New("invalid record source")

// BuildGraph resolves sourceURI, loads its records and builds the graph
// around hub. An empty hub means sankey.DefaultHub.
func BuildGraph(ctx context.Context, resolver records.Resolver, sourceURI, hub string) (*sankey.Graph, error) {
	log := logger.FromContext(ctx)
	start := time.Now()

	state := &PipelineState{SourceURI: sourceURI, Hub: hub}
	if err := NewGraphBuildPipeline(resolver).Execute(ctx, state); err != nil {
		log.Error().
			Err(err).
			Str("source", sourceURI).
			Msg("Graph build failed")
		return nil, err
	}

	log.Info().
		Str("source", state.Source.String()).
		Int("records", len(state.Records)).
		Int("nodes", len(state.Graph.Nodes)).
		Int("links", len(state.Graph.Links)).
		Dur("duration", time.Since(start)).
		Msg("Graph built")

	return state.Graph, nil
}

// IsInvalidInput reports whether err comes from the request or its data
// rather than from infrastructure. Such errors do not go away on retry.
func IsInvalidInput(err error) bool {
	if errors.Is(err, ErrInvalidSource) {
		return true
	}
	return IsDataError(err)
}

// IsDataError reports whether err is malformed input or a record or graph
// validation failure.
func IsDataError(err error) bool {
	if errors.Is(err, records.ErrMalformed) {
		return true
	}
	var (
		verr *sankey.ValidationError
		derr *sankey.DanglingReferenceError
		nerr *sankey.DuplicateNodeError
	)
	return errors.As(err, &verr) || errors.As(err, &derr) || errors.As(err, &nerr)
}
