package domain

// Risk class codes produced by the default tables.
const (
	RiskNone     = 0
	RiskLow      = 1
	RiskModerate = 2
	RiskHigh     = 3
)

// DefaultWeights returns the standard ATEI overlay coefficients.
func DefaultWeights() OverlayWeights {
	return OverlayWeights{Slope: 0.40, Aspect: 0.15, Curvature: 0.20, LandClass: 0.25}
}

// DefaultTables returns the standard breakpoint tables. Slope and aspect are
// in degrees, curvature is the Zevenbergen & Thorne class value and land class
// is the CORINE Land Cover raster code, where code k falls in the rule
// (k-1, k]. Every table carries explicit rows for the -9999/9999 sentinels on
// either side of its domain.
func DefaultTables() ReclassTables {
	return ReclassTables{
		Slope: ReclassTable{
			Name: "slope",
			Rules: []RangeRule{
				{Min: 0, Max: 25, Value: RiskLow},
				{Min: 25, Max: 45, Value: RiskHigh},
				{Min: 45, Max: 60, Value: RiskLow},
				{Min: 60, Max: 90, Value: RiskNone},
				{Min: -9999, Max: 0, Value: RiskNone},
				{Min: 90, Max: 9999, Value: RiskNone},
			},
		},
		Aspect: ReclassTable{
			Name: "aspect",
			Rules: []RangeRule{
				{Min: 0, Max: 45, Value: RiskHigh},       // north
				{Min: 45, Max: 135, Value: RiskModerate}, // east
				{Min: 135, Max: 315, Value: RiskLow},     // south, west
				{Min: 315, Max: 360, Value: RiskHigh},    // north
				{Min: -9999, Max: 0, Value: RiskNone},
				{Min: 360, Max: 9999, Value: RiskNone},
			},
		},
		Curvature: ReclassTable{
			Name: "curvature",
			Rules: []RangeRule{
				{Min: 0, Max: 1, Value: RiskHigh}, // concave
				{Min: -1, Max: 0, Value: RiskLow}, // convex
				{Min: -9999, Max: -1, Value: RiskNone},
				{Min: 1, Max: 9999, Value: RiskNone},
			},
		},
		LandClass: ReclassTable{
			Name: "land_class",
			Rules: []RangeRule{
				{Min: 0, Max: 3, Value: RiskNone},       // urban fabric, industrial units
				{Min: 3, Max: 4, Value: RiskLow},        // road and rail networks
				{Min: 4, Max: 17, Value: RiskNone},      // ports .. olive groves
				{Min: 17, Max: 18, Value: RiskModerate}, // pastures
				{Min: 18, Max: 20, Value: RiskNone},     // annual/complex cultivation
				{Min: 20, Max: 25, Value: RiskLow},      // agro-forestry, forests
				{Min: 25, Max: 26, Value: RiskHigh},     // natural grasslands
				{Min: 26, Max: 27, Value: RiskModerate}, // moors and heathland
				{Min: 27, Max: 28, Value: RiskHigh},     // sclerophyllous vegetation
				{Min: 28, Max: 29, Value: RiskModerate}, // transitional woodland-shrub
				{Min: 29, Max: 30, Value: RiskNone},     // beaches, dunes, sands
				{Min: 30, Max: 31, Value: RiskModerate}, // bare rocks
				{Min: 31, Max: 32, Value: RiskHigh},     // sparsely vegetated areas
				{Min: 32, Max: 33, Value: RiskNone},     // burnt areas
				{Min: 33, Max: 34, Value: RiskHigh},     // glaciers and perpetual snow
				{Min: 34, Max: 36, Value: RiskLow},      // inland marshes, peat bogs
				{Min: 36, Max: 255, Value: RiskNone},    // water, unclassified
				{Min: -9999, Max: 0, Value: RiskNone},
				{Min: 255, Max: 9999, Value: RiskNone},
			},
		},
	}
}
