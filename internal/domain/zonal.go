package domain

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Statistic selects the zonal reduction.
type Statistic int

const (
	// StatMajority is the most frequent sampled value, lowest value on ties.
	StatMajority Statistic = iota
	// StatMean is the arithmetic mean of sampled values.
	StatMean
)

// ParseStatistic maps "majority" (or empty) and "mean" to a Statistic.
func ParseStatistic(s string) (Statistic, error) {
	switch s {
	case "", "majority":
		return StatMajority, nil
	case "mean":
		return StatMean, nil
	default:
		return 0, fmt.Errorf("unknown statistic %q", s)
	}
}

func (s Statistic) String() string {
	if s == StatMean {
		return "mean"
	}
	return "majority"
}

// MarshalText implements encoding.TextMarshaler.
func (s Statistic) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Statistic) UnmarshalText(b []byte) error {
	v, err := ParseStatistic(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// AggregationResult is a zonal statistic and the number of cells behind it.
type AggregationResult struct {
	Statistic Statistic `json:"statistic"`
	Value     float64   `json:"value"`
	Count     int       `json:"count"`
}

// Aggregate reduces g to one value. With a nil zone every non-nodata cell is
// sampled; otherwise only cells whose center lies inside the zone. Nodata
// cells are never sampled.
func Aggregate(g *Grid, zone *Zone, s Statistic) (AggregationResult, error) {
	samples, err := Sample(g, zone)
	if err != nil {
		return AggregationResult{}, err
	}
	if len(samples) == 0 {
		id := "<grid>"
		if zone != nil {
			id = zone.ID
		}
		return AggregationResult{}, fmt.Errorf("%w: zone %s", ErrEmptySample, id)
	}

	res := AggregationResult{Statistic: s, Count: len(samples)}
	switch s {
	case StatMean:
		res.Value = stat.Mean(samples, nil)
	case StatMajority:
		res.Value = majority(samples)
	default:
		return AggregationResult{}, fmt.Errorf("unknown statistic %d", int(s))
	}
	return res, nil
}

// Sample returns the non-nodata values of g inside zone, in row-major order.
// NaN cells are never sampled, whatever the grid's sentinel.
func Sample(g *Grid, zone *Zone) ([]float64, error) {
	if zone == nil {
		out := make([]float64, 0, len(g.Values))
		for _, v := range g.Values {
			if !g.IsNoData(v) && !math.IsNaN(v) {
				out = append(out, v)
			}
		}
		return out, nil
	}

	if err := zone.CheckCRS(g); err != nil {
		return nil, err
	}
	var out []float64
	for y := 0; y < g.NY; y++ {
		for x := 0; x < g.NX; x++ {
			v := g.Values[y*g.NX+x]
			if g.IsNoData(v) || math.IsNaN(v) || !zone.Contains(g.CellCenter(x, y)) {
				continue
			}
			out = append(out, v)
		}
	}
	return out, nil
}

// majority returns the most frequent value; ties go to the smallest value.
func majority(samples []float64) float64 {
	counts := make(map[float64]int)
	for _, v := range samples {
		counts[v]++
	}
	values := make([]float64, 0, len(counts))
	for v := range counts {
		values = append(values, v)
	}
	sort.Float64s(values)

	best, bestN := values[0], counts[values[0]]
	for _, v := range values[1:] {
		if counts[v] > bestN {
			best, bestN = v, counts[v]
		}
	}
	return best
}
