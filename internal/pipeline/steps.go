package pipeline

import (
	"context"
	"fmt"

	"github.com/dvloznov/finance-sankey/internal/domain"
	"github.com/dvloznov/finance-sankey/internal/logger"
	"github.com/dvloznov/finance-sankey/internal/records"
	"github.com/dvloznov/finance-sankey/internal/sankey"
)

// PipelineStep represents a single step in the graph build pipeline.
type PipelineStep interface {
	Name() string
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	SourceURI string
	Hub       string

	Source  records.Source
	Records []domain.Record
	Graph   *sankey.Graph
}

// ResolveSourceStep turns the source URI into a records.Source.
type ResolveSourceStep struct {
	Resolver records.Resolver
}

func (s *ResolveSourceStep) Name() string { return "resolve" }

func (s *ResolveSourceStep) Execute(ctx context.Context, state *PipelineState) error {
	src, err := s.Resolver.Resolve(state.SourceURI)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}
	state.Source = src
	return nil
}

// LoadRecordsStep fetches the records from the resolved source.
type LoadRecordsStep struct{}

func (s *LoadRecordsStep) Name() string { return "load" }

func (s *LoadRecordsStep) Execute(ctx context.Context, state *PipelineState) error {
	recs, err := state.Source.Load(ctx)
	if err != nil {
		return err
	}
	state.Records = recs

	log := logger.FromContext(ctx)
	log.Debug().
		Str("source", state.Source.String()).
		Int("records", len(recs)).
		Msg("Records loaded")
	return nil
}

// BuildGraphStep runs the graph builder over the loaded records.
type BuildGraphStep struct{}

func (s *BuildGraphStep) Name() string { return "build" }

func (s *BuildGraphStep) Execute(ctx context.Context, state *PipelineState) error {
	g, err := sankey.NewBuilder(state.Hub).Build(state.Records)
	if err != nil {
		return err
	}
	state.Graph = g
	return nil
}

// ValidateGraphStep checks the built graph for duplicate names and
// dangling link endpoints.
type ValidateGraphStep struct{}

func (s *ValidateGraphStep) Name() string { return "validate" }

func (s *ValidateGraphStep) Execute(ctx context.Context, state *PipelineState) error {
	return state.Graph.Validate()
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d (%s) failed: %w", i+1, step.Name(), err)
		}
	}
	return nil
}

// NewGraphBuildPipeline creates the standard resolve, load, build and
// validate pipeline.
func NewGraphBuildPipeline(resolver records.Resolver) *Pipeline {
	return NewPipeline(
		&ResolveSourceStep{Resolver: resolver},
		&LoadRecordsStep{},
		&BuildGraphStep{},
		&ValidateGraphStep{},
	)
}
