package domain

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Containment selects which parts of a multi-polygon zone restrict sampling.
type Containment int

const (
	// ContainFirstPart tests cell centers against the first polygon of a
	// multi-polygon only. Single polygons are unaffected.
	ContainFirstPart Containment = iota
	// ContainAllParts tests cell centers against the union of all parts.
	ContainAllParts
)

// ParseContainment maps "first" (or empty) and "all" to a Containment.
func ParseContainment(s string) (Containment, error) {
	switch s {
	case "", "first":
		return ContainFirstPart, nil
	case "all":
		return ContainAllParts, nil
	default:
		return 0, fmt.Errorf("unknown containment %q", s)
	}
}

func (c Containment) String() string {
	if c == ContainAllParts {
		return "all"
	}
	return "first"
}

// Zone is a polygonal region of interest.
type Zone struct {
	ID          string
	Geometry    orb.Geometry // orb.Polygon or orb.MultiPolygon
	CRS         string
	Containment Containment
	Properties  map[string]any
}

// NewZone checks that g is polygonal and non-empty.
func NewZone(id string, g orb.Geometry, crs string) (*Zone, error) {
	switch geom := g.(type) {
	case orb.Polygon:
		if len(geom) == 0 || len(geom[0]) == 0 {
			return nil, fmt.Errorf("%w: zone %q has an empty polygon", ErrInvalidZone, id)
		}
	case orb.MultiPolygon:
		if len(geom) == 0 || len(geom[0]) == 0 || len(geom[0][0]) == 0 {
			return nil, fmt.Errorf("%w: zone %q has an empty multipolygon", ErrInvalidZone, id)
		}
	case nil:
		return nil, fmt.Errorf("%w: zone %q has no geometry", ErrInvalidZone, id)
	default:
		return nil, fmt.Errorf("%w: zone %q has %s geometry", ErrInvalidZone, id, g.GeoJSONType())
	}
	return &Zone{ID: id, Geometry: g, CRS: crs}, nil
}

// Bound returns the zone's envelope.
func (z *Zone) Bound() orb.Bound {
	return z.Geometry.Bound()
}

// Contains reports whether p lies inside the zone's containment surface.
// Interior rings are holes.
func (z *Zone) Contains(p orb.Point) bool {
	switch g := z.Geometry.(type) {
	case orb.Polygon:
		return planar.PolygonContains(g, p)
	case orb.MultiPolygon:
		if z.Containment == ContainAllParts {
			return planar.MultiPolygonContains(g, p)
		}
		return len(g) > 0 && planar.PolygonContains(g[0], p)
	}
	return false
}

// CheckCRS fails when both the zone and the grid name a CRS and they differ.
func (z *Zone) CheckCRS(g *Grid) error {
	if z.CRS != "" && g.Extent.CRS != "" && z.CRS != g.Extent.CRS {
		return fmt.Errorf("%w: zone %q is %s, grid is %s", ErrCRSMismatch, z.ID, z.CRS, g.Extent.CRS)
	}
	return nil
}
