package pipeline

import (
	"context"
	"fmt"

	"github.com/dvloznov/finance-sankey/internal/jobs"
	"github.com/dvloznov/finance-sankey/internal/logger"
	"github.com/dvloznov/finance-sankey/internal/records"
)

// NewJobHandler returns a jobs.JobHandler that builds the graph of a
// BuildGraphJob and stores it on the job. Invalid sources and invalid data
// are marked permanent so the queue does not retry them.
func NewJobHandler(resolver records.Resolver) jobs.JobHandler {
	return func(ctx context.Context, job jobs.Job) error {
		buildJob, ok := job.(*jobs.BuildGraphJob)
		if !ok {
			return jobs.Permanent(fmt.Errorf("unexpected job type: %T", job))
		}

		log := logger.WithFields(logger.FromContext(ctx), map[string]interface{}{
			"job_id":  buildJob.JobID,
			"source":  buildJob.Source,
			"attempt": buildJob.RetryCount + 1,
		})
		ctx = logger.WithContext(ctx, log)

		log.Info().Msg("Processing graph build job")

		g, err := BuildGraph(ctx, resolver, buildJob.Source, buildJob.Hub)
		if err != nil {
			if IsInvalidInput(err) {
				return jobs.Permanent(err)
			}
			return err
		}

		buildJob.Graph = g
		return nil
	}
}
