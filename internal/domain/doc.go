// Package domain implements the Avalanche Terrain Exposure Index (ATEI)
// raster engine: grids, range-table reclassification, weighted overlay and
// zonal statistics, plus the job and result types exchanged with Kafka.
//
// # Grids
//
// A [Grid] is a dense row-major raster of float64 values. Cell (x, y) is
// column x counted from the western edge and row y counted from the northern
// edge, so its center is
//
//	(MinX + (x+0.5)*CellSize, MaxY - (y+0.5)*CellSize)
//
// Grids combined cell by cell must be co-registered: identical dimensions,
// cell size and extent (CRS included). Nothing here resamples or reprojects;
// [Grid.Crop] only cuts pixel-aligned windows.
//
// # Reclassification
//
// A [ReclassTable] is an ordered list of (min, max, value) rules. The first
// matching rule wins, so with rules [0,25]→1 and [25,45]→3 the value 25
// classifies to 1. Values matched by no rule fail with [ErrUnclassifiedValue]
// rather than passing through unchanged. The default tables
// ([DefaultTables]) follow the GeoAvalanche breakpoints:
//
//	Slope (deg):  [0,25]→1  [25,45]→3  [45,60]→1  [60,90]→0
//	Aspect (deg): [0,45]→3  [45,135]→2  [135,315]→1  [315,360]→3
//	Curvature:    [0,1]→3 (concave)  [-1,0]→1 (convex)
//	Land class:   CORINE Land Cover codes grouped into risk classes 0..3
//
// # Overlay
//
//	ATEI = slope*0.40 + aspect*0.15 + curvature*0.20 + land_class*0.25
//
// with the weights supplied as [OverlayWeights]. A cell that is nodata in any
// input is nodata in the result.
//
// # Zonal statistics
//
// [Aggregate] reduces a grid to a mean or a majority over the cells whose
// center is inside a [Zone]. Majority ties resolve to the smallest value. A
// multi-polygon zone is tested against its first polygon unless its
// [Containment] is [ContainAllParts].
package domain
