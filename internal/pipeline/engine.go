package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/atei-etl/internal/domain"
	"github.com/couchcryptid/atei-etl/internal/observability"
)

// TerrainProvider derives a terrain layer from a DEM window. The result must
// be co-registered with dem.
type TerrainProvider interface {
	Derive(ctx context.Context, kind domain.Derivative, dem *domain.Grid) (*domain.Grid, error)
}

// EngineConfig carries the model parameters of an Engine.
type EngineConfig struct {
	Tables  domain.ReclassTables
	Weights domain.OverlayWeights
	// Workers bounds the concurrent derivative and reclass tasks per zone.
	// Zero or less runs all of them at once.
	Workers int
}

// Engine runs the crop, derive, reclassify, overlay and aggregate stages for
// one zone at a time.
type Engine struct {
	terrain TerrainProvider
	tables  domain.ReclassTables
	weights domain.OverlayWeights
	workers int
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewEngine validates cfg and returns an Engine backed by terrain.
func NewEngine(terrain TerrainProvider, cfg EngineConfig, logger *slog.Logger, metrics *observability.Metrics) (*Engine, error) {
	if err := cfg.Tables.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Weights.Validate(); err != nil {
		return nil, err
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = len(domain.Derivatives) + 1
	}
	return &Engine{
		terrain: terrain,
		tables:  cfg.Tables,
		weights: cfg.Weights,
		workers: workers,
		logger:  logger,
		metrics: metrics,
	}, nil
}

// Tables returns the active reclass tables.
func (e *Engine) Tables() domain.ReclassTables { return e.tables }

// Weights returns the active overlay weights.
func (e *Engine) Weights() domain.OverlayWeights { return e.weights }

// Compute returns the ATEI grid for the window of dem and landCover covering
// zone, or for the whole grids when zone is nil. Failures are *domain.StageError.
func (e *Engine) Compute(ctx context.Context, dem, landCover *domain.Grid, zone *domain.Zone) (*domain.Grid, error) {
	g, _, err := e.compute(ctx, dem, landCover, zone)
	return g, err
}

// Score computes the ATEI grid for zone and reduces it with s.
func (e *Engine) Score(ctx context.Context, dem, landCover *domain.Grid, zone *domain.Zone, s domain.Statistic) (domain.AggregationResult, error) {
	res, _, err := e.score(ctx, dem, landCover, zone, s)
	return res, err
}

// ScoreZones scores every zone independently. A zone that fails is reported
// with the stage it reached and the error text; the others are unaffected.
func (e *Engine) ScoreZones(ctx context.Context, dem, landCover *domain.Grid, zones []domain.ZoneRequest, s domain.Statistic) []domain.ZoneScore {
	return e.scoreZones(ctx, e.logger, dem, landCover, zones, s)
}

func (e *Engine) scoreZones(ctx context.Context, logger *slog.Logger, dem, landCover *domain.Grid, zones []domain.ZoneRequest, s domain.Statistic) []domain.ZoneScore {
	scores := make([]domain.ZoneScore, 0, len(zones))
	for _, req := range zones {
		start := time.Now()
		score := domain.ZoneScore{ZoneID: req.ID}

		var (
			res   domain.AggregationResult
			stage = domain.StagePending
			err   = req.Err
		)
		if err == nil {
			res, stage, err = e.score(ctx, dem, landCover, req.Zone, s)
		}

		if err != nil {
			score.Status = domain.ZoneFailed
			score.Stage = stage
			score.Error = errorText(err)
			logger.Warn("zone scoring failed",
				"zone_id", req.ID,
				"stage", stage,
				"error", err,
			)
		} else {
			v := res.Value
			score.Status = domain.ZoneDone
			score.Stage = domain.StageDone
			score.Value = &v
			score.Count = res.Count
			logger.Debug("zone scored",
				"zone_id", req.ID,
				"statistic", s,
				"value", v,
				"cells", res.Count,
			)
		}

		e.metrics.ZoneOutcomes.WithLabelValues(string(score.Status), string(score.Stage)).Inc()
		e.metrics.ZoneComputeDuration.Observe(time.Since(start).Seconds())
		scores = append(scores, score)
	}
	return scores
}

func (e *Engine) score(ctx context.Context, dem, landCover *domain.Grid, zone *domain.Zone, s domain.Statistic) (domain.AggregationResult, domain.Stage, error) {
	atei, stage, err := e.compute(ctx, dem, landCover, zone)
	if err != nil {
		return domain.AggregationResult{}, stage, err
	}
	res, err := domain.Aggregate(atei, zone, s)
	if err != nil {
		return domain.AggregationResult{}, stage, &domain.StageError{Stage: stage, Err: err}
	}
	return res, domain.StageAggregated, nil
}

// compute returns the overlay grid and the last stage it completed.
func (e *Engine) compute(ctx context.Context, dem, landCover *domain.Grid, zone *domain.Zone) (*domain.Grid, domain.Stage, error) {
	stage := domain.StagePending
	fail := func(err error) (*domain.Grid, domain.Stage, error) {
		return nil, stage, &domain.StageError{Stage: stage, Err: err}
	}

	if !dem.SameShape(landCover) {
		return fail(fmt.Errorf("%w: land cover is not co-registered with the DEM", domain.ErrShapeMismatch))
	}

	if zone != nil {
		if err := zone.CheckCRS(dem); err != nil {
			return fail(err)
		}
		var err error
		if dem, err = dem.Crop(zone.Bound()); err != nil {
			return fail(cropError("dem", zone, err))
		}
		if landCover, err = landCover.Crop(zone.Bound()); err != nil {
			return fail(cropError("land cover", zone, err))
		}
	}
	stage = domain.StageCropped

	l, err := e.derive(ctx, dem, landCover)
	if err != nil {
		return fail(err)
	}
	stage = domain.StageDerived

	if l.landClassErr != nil {
		return fail(l.landClassErr)
	}
	slope, err := domain.Reclassify(l.slope, e.tables.Slope)
	if err != nil {
		return fail(err)
	}
	aspect, err := domain.Reclassify(l.aspect, e.tables.Aspect)
	if err != nil {
		return fail(err)
	}
	curvature, err := domain.Reclassify(l.curvature, e.tables.Curvature)
	if err != nil {
		return fail(err)
	}
	stage = domain.StageReclassified

	atei, err := domain.Overlay(slope, aspect, curvature, l.landClass, e.weights)
	if err != nil {
		return fail(err)
	}
	return atei, domain.StageOverlaid, nil
}

// layers are the raw derivatives of a DEM window and its reclassified land cover.
type layers struct {
	slope, aspect, curvature *domain.Grid
	landClass                *domain.Grid
	landClassErr             error
}

// derive fetches the terrain layers concurrently and reclassifies the land
// cover alongside them. The first derivative failure cancels the others. A
// land-class failure cancels nothing and is kept in landClassErr so it is
// reported against the reclassification stage.
func (e *Engine) derive(ctx context.Context, dem, landCover *domain.Grid) (layers, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	derived := make([]*domain.Grid, len(domain.Derivatives))
	for i, kind := range domain.Derivatives {
		g.Go(func() error {
			out, err := e.terrain.Derive(gctx, kind, dem)
			if err != nil {
				return fmt.Errorf("%w: %s: %w", domain.ErrDerivativeFailure, kind, err)
			}
			if out == nil {
				return fmt.Errorf("%w: %s: provider returned no grid", domain.ErrDerivativeFailure, kind)
			}
			if !out.SameShape(dem) {
				return fmt.Errorf("%w: %w: %s is %dx%d, dem window is %dx%d", domain.ErrDerivativeFailure,
					domain.ErrShapeMismatch, kind, out.NX, out.NY, dem.NX, dem.NY)
			}
			if !out.SameNoData(dem) {
				return fmt.Errorf("%w: %w: %s nodata is %g, dem nodata is %g", domain.ErrDerivativeFailure,
					domain.ErrNoDataMismatch, kind, out.NoData, dem.NoData)
			}
			derived[i] = out
			return nil
		})
	}

	var l layers
	g.Go(func() error {
		l.landClass, l.landClassErr = domain.Reclassify(landCover, e.tables.LandClass)
		return nil
	})

	if err := g.Wait(); err != nil {
		return layers{}, err
	}

	for i, kind := range domain.Derivatives {
		switch kind {
		case domain.DerivSlope:
			l.slope = derived[i]
		case domain.DerivAspect:
			l.aspect = derived[i]
		case domain.DerivCurvature:
			l.curvature = derived[i]
		}
	}
	return l, nil
}

// cropError reports a zone whose envelope misses the grid as an empty sample:
// no cell can be aggregated for it.
func cropError(layer string, zone *domain.Zone, err error) error {
	if errors.Is(err, domain.ErrEmptyWindow) {
		return fmt.Errorf("%w: zone %s lies outside the %s: %w", domain.ErrEmptySample, zone.ID, layer, err)
	}
	return fmt.Errorf("crop %s: %w", layer, err)
}

// errorText strips the stage prefix; the stage is reported separately.
func errorText(err error) string {
	var se *domain.StageError
	if errors.As(err, &se) {
		return se.Err.Error()
	}
	return err.Error()
}
