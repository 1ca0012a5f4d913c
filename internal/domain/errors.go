package domain

import "errors"

var (
	// ErrIndexOutOfRange is returned when a grid is addressed outside its bounds.
	// It always indicates a caller bug.
	ErrIndexOutOfRange = errors.New("grid index out of range")

	// ErrShapeMismatch is returned when grids that must be co-registered differ
	// in dimensions, cell size or extent.
	ErrShapeMismatch = errors.New("grid shape mismatch")

	// ErrUnclassifiedValue is returned when a cell value matches no rule of a
	// reclass table, which points at a table that does not cover its domain.
	ErrUnclassifiedValue = errors.New("value matches no reclass rule")

	// ErrEmptySample is returned when zonal aggregation finds no eligible cell.
	ErrEmptySample = errors.New("no cells sampled")

	// ErrDerivativeFailure wraps failures of the external terrain-derivative provider.
	ErrDerivativeFailure = errors.New("terrain derivative failed")

	// ErrNoDataMismatch is returned when a derived layer uses a different
	// nodata sentinel than the DEM it was derived from.
	ErrNoDataMismatch = errors.New("nodata sentinel mismatch")

	// ErrEmptyWindow is returned when a crop bound does not intersect the grid.
	ErrEmptyWindow = errors.New("crop window is empty")

	// ErrCRSMismatch is returned when a zone and a grid declare different
	// coordinate reference systems. Reprojection is not supported.
	ErrCRSMismatch = errors.New("coordinate reference system mismatch")

	// ErrInvalidGrid is returned for grids with inconsistent dimensions.
	ErrInvalidGrid = errors.New("invalid grid")

	// ErrInvalidTable is returned for malformed reclass tables.
	ErrInvalidTable = errors.New("invalid reclass table")

	// ErrInvalidZone is returned for zones without polygonal geometry.
	ErrInvalidZone = errors.New("invalid zone")
)
