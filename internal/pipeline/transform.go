package pipeline

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/atei-etl/internal/domain"
)

// JobProcessor implements Processor by scoring every zone of a job with an Engine.
type JobProcessor struct {
	engine   *Engine
	defaults domain.JobDefaults
	logger   *slog.Logger
}

// NewJobProcessor creates a JobProcessor. defaults apply to jobs that do not
// name a statistic or containment mode.
func NewJobProcessor(engine *Engine, defaults domain.JobDefaults, logger *slog.Logger) *JobProcessor {
	return &JobProcessor{
		engine:   engine,
		defaults: defaults,
		logger:   logger,
	}
}

// Process scores a job and serializes the result for the sink topic.
func (p *JobProcessor) Process(ctx context.Context, raw domain.RawJob) (domain.OutputEvent, error) {
	result, err := p.Score(ctx, raw)
	if err != nil {
		return domain.OutputEvent{}, err
	}
	return domain.SerializeJobResult(result)
}

// Score parses a job and scores its zones. Only an unparseable job is an
// error; zone failures are reported inside the result.
func (p *JobProcessor) Score(ctx context.Context, raw domain.RawJob) (domain.JobResult, error) {
	job, err := domain.ParseRawJob(raw, p.defaults)
	if err != nil {
		return domain.JobResult{}, err
	}

	logger := p.logger.With("job_id", job.ID)
	logger.Info("processing job",
		"zones", len(job.Zones),
		"statistic", job.Statistic,
		"grid", []int{job.DEM.NX, job.DEM.NY},
	)

	result := domain.JobResult{
		JobID:       job.ID,
		Statistic:   job.Statistic,
		Zones:       p.engine.scoreZones(ctx, logger, job.DEM, job.LandCover, job.Zones, job.Statistic),
		ProcessedAt: domain.Now(),
	}
	for _, z := range job.Zones {
		result.Features = append(result.Features, z.Feature)
	}

	if n := result.FailedZones(); n > 0 {
		logger.Warn("job finished with failed zones", "failed", n, "zones", len(result.Zones))
	} else {
		logger.Info("job finished", "zones", len(result.Zones))
	}
	return result, nil
}
