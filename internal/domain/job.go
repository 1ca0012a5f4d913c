package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb/geojson"
)

// RawJob is an unprocessed job message from the source topic.
type RawJob struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// Derivative names a terrain layer derived from a DEM window.
type Derivative string

const (
	// DerivSlope is the slope gradient in degrees.
	DerivSlope Derivative = "slope"
	// DerivAspect is the downslope direction in degrees clockwise from north,
	// -1 on flat cells.
	DerivAspect Derivative = "aspect"
	// DerivCurvature is the surface curvature class value.
	DerivCurvature Derivative = "curvature"
)

// Derivatives lists the layers computed for every zone.
var Derivatives = []Derivative{DerivSlope, DerivAspect, DerivCurvature}

// Stage is the last state a zone reached while being scored.
type Stage string

const (
	// StagePending is the initial stage; nothing has run yet.
	StagePending Stage = "pending"
	// StageCropped means the DEM and land cover were cut to the zone window.
	StageCropped Stage = "cropped"
	// StageDerived means slope, aspect and curvature were fetched and the land
	// cover was reclassified.
	StageDerived Stage = "derived"
	// StageReclassified means all four layers hold risk class codes.
	StageReclassified Stage = "reclassified"
	// StageOverlaid means the weighted ATEI grid was computed.
	StageOverlaid Stage = "overlaid"
	// StageAggregated means the zonal statistic was computed.
	StageAggregated Stage = "aggregated"
	// StageDone is reported on every successfully scored zone.
	StageDone Stage = "done"
)

// StageError records where a zone's processing stopped.
type StageError struct {
	Stage Stage // last stage completed before the failure
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("after %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// ZoneRequest is one feature of a job. Zone is nil when the feature cannot be
// used as a zone, in which case Err says why.
type ZoneRequest struct {
	ID      string
	Feature *geojson.Feature
	Zone    *Zone
	Err     error
}

// Job is a parsed ATEI request: a DEM and land-cover window plus the zones to
// score against them.
type Job struct {
	ID        string
	DEM       *Grid
	LandCover *Grid
	Statistic Statistic
	Zones     []ZoneRequest
}

type jobPayload struct {
	ID          string          `json:"id"`
	DEM         *Grid           `json:"dem"`
	LandCover   *Grid           `json:"land_cover"`
	Zones       json.RawMessage `json:"zones"`
	Statistic   string          `json:"statistic"`
	Containment string          `json:"containment"`
	CRS         string          `json:"crs"`
}

// JobDefaults fill in the fields a job message leaves empty.
type JobDefaults struct {
	Statistic   Statistic
	Containment Containment
}

// ParseRawJob decodes a job message. Malformed grids or envelopes fail the
// whole job; individual unusable features are kept with an error so they can
// be reported per zone.
func ParseRawJob(raw RawJob, defaults JobDefaults) (Job, error) {
	var p jobPayload
	if err := json.Unmarshal(raw.Value, &p); err != nil {
		return Job{}, fmt.Errorf("parse job: %w", err)
	}
	if p.DEM == nil || p.LandCover == nil {
		return Job{}, fmt.Errorf("parse job: dem and land_cover are required")
	}
	if err := p.DEM.Validate(); err != nil {
		return Job{}, fmt.Errorf("parse job: dem: %w", err)
	}
	if err := p.LandCover.Validate(); err != nil {
		return Job{}, fmt.Errorf("parse job: land_cover: %w", err)
	}
	stat, containment := defaults.Statistic, defaults.Containment
	var err error
	if p.Statistic != "" {
		if stat, err = ParseStatistic(p.Statistic); err != nil {
			return Job{}, fmt.Errorf("parse job: %w", err)
		}
	}
	if p.Containment != "" {
		if containment, err = ParseContainment(p.Containment); err != nil {
			return Job{}, fmt.Errorf("parse job: %w", err)
		}
	}

	id := p.ID
	if id == "" {
		id = string(raw.Key)
	}
	if id == "" {
		id = uuid.NewString()
	}

	crs := p.CRS
	if crs == "" {
		crs = p.DEM.Extent.CRS
	}

	job := Job{ID: id, DEM: p.DEM, LandCover: p.LandCover, Statistic: stat}
	if len(p.Zones) == 0 {
		return job, nil
	}
	fc, err := geojson.UnmarshalFeatureCollection(p.Zones)
	if err != nil {
		return Job{}, fmt.Errorf("parse job zones: %w", err)
	}
	for i, f := range fc.Features {
		req := ZoneRequest{ID: featureID(f, i), Feature: f}
		zone, err := NewZone(req.ID, f.Geometry, crs)
		if err != nil {
			req.Err = err
		} else {
			zone.Containment = containment
			zone.Properties = f.Properties
			req.Zone = zone
		}
		job.Zones = append(job.Zones, req)
	}
	return job, nil
}

// featureID prefers the GeoJSON id member, then an "id" property, then the
// feature's position in the collection.
func featureID(f *geojson.Feature, i int) string {
	switch id := f.ID.(type) {
	case string:
		if id != "" {
			return id
		}
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	}
	if v, ok := f.Properties["id"]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return "zone-" + strconv.Itoa(i)
}

// ZoneStatus is the outcome of scoring one zone.
type ZoneStatus string

const (
	// ZoneDone carries a value and a cell count.
	ZoneDone ZoneStatus = "done"
	// ZoneFailed carries the error text instead of a value.
	ZoneFailed ZoneStatus = "failed"
)

// ZoneScore is the per-zone output of a batch. Failed zones carry the error
// text instead of a value.
type ZoneScore struct {
	ZoneID string     `json:"zone_id"`
	Status ZoneStatus `json:"status"`
	Stage  Stage      `json:"stage"`
	Value  *float64   `json:"value,omitempty"`
	Count  int        `json:"count,omitempty"`
	Error  string     `json:"error,omitempty"`
}

// Failed reports whether the zone could not be scored.
func (s ZoneScore) Failed() bool { return s.Status == ZoneFailed }

// JobResult is the outcome of a job, one score per requested zone.
type JobResult struct {
	JobID       string
	Statistic   Statistic
	Zones       []ZoneScore
	Features    []*geojson.Feature
	ProcessedAt time.Time
}

// FailedZones counts zones that could not be scored.
func (r JobResult) FailedZones() int {
	n := 0
	for _, z := range r.Zones {
		if z.Failed() {
			n++
		}
	}
	return n
}

// FeatureCollection returns the job's features with the score attached as
// the "atei" property. Failed zones get "error: <reason>" in its place.
func (r JobResult) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i, f := range r.Features {
		if f == nil || i >= len(r.Zones) {
			continue
		}
		score := r.Zones[i]
		out := geojson.NewFeature(f.Geometry)
		out.ID = f.ID
		out.Properties = f.Properties.Clone()
		if out.Properties == nil {
			out.Properties = geojson.Properties{}
		}
		if score.Failed() {
			out.Properties["atei"] = "error: " + score.Error
		} else if score.Value != nil {
			out.Properties["atei"] = *score.Value
		}
		out.Properties["atei_stage"] = string(score.Stage)
		out.Properties["atei_cells"] = score.Count
		fc.Append(out)
	}
	return fc
}

// OutputEvent is the serialized form destined for the sink topic.
type OutputEvent struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}

type jobResultPayload struct {
	JobID       string                     `json:"job_id"`
	Statistic   Statistic                  `json:"statistic"`
	ProcessedAt time.Time                  `json:"processed_at"`
	Zones       []ZoneScore                `json:"zones"`
	Features    *geojson.FeatureCollection `json:"features"`
}

// SerializeJobResult encodes a result as JSON keyed by job ID.
func SerializeJobResult(r JobResult) (OutputEvent, error) {
	data, err := json.Marshal(jobResultPayload{
		JobID:       r.JobID,
		Statistic:   r.Statistic,
		ProcessedAt: r.ProcessedAt,
		Zones:       r.Zones,
		Features:    r.FeatureCollection(),
	})
	if err != nil {
		return OutputEvent{}, fmt.Errorf("serialize job result: %w", err)
	}
	return OutputEvent{
		Key:   []byte(r.JobID),
		Value: data,
		Headers: map[string]string{
			"job_id":       r.JobID,
			"statistic":    r.Statistic.String(),
			"zones_failed": strconv.Itoa(r.FailedZones()),
			"processed_at": r.ProcessedAt.Format(time.RFC3339),
		},
	}, nil
}
