package domain

import "fmt"

// OverlayWeights are the coefficients of the ATEI linear combination. They
// are not required to sum to one.
type OverlayWeights struct {
	Slope     float64 `json:"slope" yaml:"slope"`
	Aspect    float64 `json:"aspect" yaml:"aspect"`
	Curvature float64 `json:"curvature" yaml:"curvature"`
	LandClass float64 `json:"land_class" yaml:"land_class"`
}

// Validate rejects negative coefficients.
func (w OverlayWeights) Validate() error {
	for _, c := range []struct {
		name string
		v    float64
	}{{"slope", w.Slope}, {"aspect", w.Aspect}, {"curvature", w.Curvature}, {"land_class", w.LandClass}} {
		if c.v < 0 {
			return fmt.Errorf("overlay weight %s is negative: %g", c.name, c.v)
		}
	}
	return nil
}

// Overlay combines four reclassified, co-registered grids into the ATEI grid:
//
//	atei = slope*w.Slope + aspect*w.Aspect + curvature*w.Curvature + landClass*w.LandClass
//
// A cell that is nodata in any input (by that input's own sentinel) is nodata
// in the output. The output uses the slope grid's nodata sentinel and is
// freshly allocated; inputs are not modified.
func Overlay(slope, aspect, curvature, landClass *Grid, w OverlayWeights) (*Grid, error) {
	for _, in := range []struct {
		name string
		g    *Grid
	}{{"aspect", aspect}, {"curvature", curvature}, {"land_class", landClass}} {
		if !slope.SameShape(in.g) {
			return nil, fmt.Errorf("%w: %s is %dx%d@%g %+v, slope is %dx%d@%g %+v", ErrShapeMismatch,
				in.name, in.g.NX, in.g.NY, in.g.CellSize, in.g.Extent,
				slope.NX, slope.NY, slope.CellSize, slope.Extent)
		}
	}

	out := slope.emptyLike()
	for i := range out.Values {
		s, a, c, l := slope.Values[i], aspect.Values[i], curvature.Values[i], landClass.Values[i]
		if slope.IsNoData(s) || aspect.IsNoData(a) || curvature.IsNoData(c) || landClass.IsNoData(l) {
			out.Values[i] = out.NoData
			continue
		}
		out.Values[i] = s*w.Slope + a*w.Aspect + c*w.Curvature + l*w.LandClass
	}
	return out, nil
}
