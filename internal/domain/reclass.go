package domain

import (
	"fmt"
	"math"
)

// Method selects how a RangeRule's bounds are compared.
type Method int

const (
	// MethodInclusive matches min <= v <= max ("lower than or equal").
	MethodInclusive Method = iota
	// MethodUpperExclusive matches min <= v < max ("lower than").
	MethodUpperExclusive
)

func (m Method) String() string {
	switch m {
	case MethodInclusive:
		return "inclusive"
	case MethodUpperExclusive:
		return "upper_exclusive"
	default:
		return fmt.Sprintf("method(%d)", int(m))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Method) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. An empty value selects
// MethodInclusive.
func (m *Method) UnmarshalText(b []byte) error {
	switch string(b) {
	case "", "inclusive", "lower_than_or_equal":
		*m = MethodInclusive
	case "upper_exclusive", "lower_than":
		*m = MethodUpperExclusive
	default:
		return fmt.Errorf("%w: unknown method %q", ErrInvalidTable, b)
	}
	return nil
}

// RangeRule maps raw values in [Min, Max] to Value.
type RangeRule struct {
	Min   float64 `json:"min" yaml:"min"`
	Max   float64 `json:"max" yaml:"max"`
	Value float64 `json:"value" yaml:"value"`
}

func (r RangeRule) matches(v float64, m Method) bool {
	if m == MethodUpperExclusive {
		return v >= r.Min && v < r.Max
	}
	return v >= r.Min && v <= r.Max
}

// ReclassTable is an ordered rule list. Order is significant: the first rule
// that matches a value wins, so shared boundaries resolve to the earlier rule.
type ReclassTable struct {
	Name   string      `json:"name" yaml:"name"`
	Method Method      `json:"method" yaml:"method"`
	Rules  []RangeRule `json:"rules" yaml:"rules"`
}

// Validate checks that the table has rules and that every rule is ordered.
// Coverage of the value domain is not checked.
func (t ReclassTable) Validate() error {
	if len(t.Rules) == 0 {
		return fmt.Errorf("%w: table %q has no rules", ErrInvalidTable, t.Name)
	}
	for i, r := range t.Rules {
		if r.Min > r.Max {
			return fmt.Errorf("%w: table %q rule %d has min %g > max %g", ErrInvalidTable, t.Name, i, r.Min, r.Max)
		}
	}
	return nil
}

// produces reports whether any rule outputs v.
func (t ReclassTable) produces(v float64) bool {
	for _, r := range t.Rules {
		if r.Value == v {
			return true
		}
	}
	return false
}

// Classify returns the output value of the first rule matching v.
func (t ReclassTable) Classify(v float64) (float64, bool) {
	for _, r := range t.Rules {
		if r.matches(v, t.Method) {
			return r.Value, true
		}
	}
	return 0, false
}

// Reclassify maps every cell of g through t into a new grid with the same
// shape. Nodata cells stay nodata. The output keeps g's sentinel unless some
// rule produces that value, in which case the output sentinel is NaN so a
// class code is never read back as nodata.
func Reclassify(g *Grid, t ReclassTable) (*Grid, error) {
	out := g.emptyLike()
	if t.produces(g.NoData) {
		out.NoData = math.NaN()
	}
	for i, v := range g.Values {
		if g.IsNoData(v) {
			out.Values[i] = out.NoData
			continue
		}
		c, ok := t.Classify(v)
		if !ok {
			return nil, fmt.Errorf("%w: table %q, cell (%d,%d) value %g",
				ErrUnclassifiedValue, t.Name, i%g.NX, i/g.NX, v)
		}
		out.Values[i] = c
	}
	return out, nil
}

// ReclassTables holds one table per overlay role.
type ReclassTables struct {
	Slope     ReclassTable `json:"slope" yaml:"slope"`
	Aspect    ReclassTable `json:"aspect" yaml:"aspect"`
	Curvature ReclassTable `json:"curvature" yaml:"curvature"`
	LandClass ReclassTable `json:"land_class" yaml:"land_class"`
}

// Validate checks all four tables.
func (ts ReclassTables) Validate() error {
	for _, t := range []ReclassTable{ts.Slope, ts.Aspect, ts.Curvature, ts.LandClass} {
		if err := t.Validate(); err != nil {
			return err
		}
	}
	return nil
}
