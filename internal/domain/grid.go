package domain

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// Extent is the spatial envelope of a grid in its coordinate reference system.
type Extent struct {
	MinX float64 `json:"min_x" yaml:"min_x"`
	MinY float64 `json:"min_y" yaml:"min_y"`
	MaxX float64 `json:"max_x" yaml:"max_x"`
	MaxY float64 `json:"max_y" yaml:"max_y"`
	CRS  string  `json:"crs,omitempty" yaml:"crs,omitempty"`
}

// Bound returns the extent as an orb bound (CRS dropped).
func (e Extent) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{e.MinX, e.MinY}, Max: orb.Point{e.MaxX, e.MaxY}}
}

// Grid is a dense row-major raster. Row 0 is the northern (MaxY) row and
// column 0 is the western (MinX) column.
type Grid struct {
	NX       int       `json:"nx"`
	NY       int       `json:"ny"`
	CellSize float64   `json:"cell_size"`
	Extent   Extent    `json:"extent"`
	NoData   float64   `json:"nodata"`
	Values   []float64 `json:"values"`
}

// NewGrid validates the dimensions and copies values into a new Grid.
func NewGrid(nx, ny int, cellSize float64, extent Extent, nodata float64, values []float64) (*Grid, error) {
	g := &Grid{
		NX:       nx,
		NY:       ny,
		CellSize: cellSize,
		Extent:   extent,
		NoData:   nodata,
		Values:   append([]float64(nil), values...),
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// NewFilledGrid returns an nx*ny grid with every cell set to v.
func NewFilledGrid(nx, ny int, cellSize float64, extent Extent, nodata, v float64) (*Grid, error) {
	if nx <= 0 || ny <= 0 {
		return nil, fmt.Errorf("%w: dimensions %dx%d", ErrInvalidGrid, nx, ny)
	}
	values := make([]float64, nx*ny)
	for i := range values {
		values[i] = v
	}
	return NewGrid(nx, ny, cellSize, extent, nodata, values)
}

// Validate checks the invariants of a grid decoded from the wire.
func (g *Grid) Validate() error {
	switch {
	case g == nil:
		return fmt.Errorf("%w: nil grid", ErrInvalidGrid)
	case g.NX <= 0 || g.NY <= 0:
		return fmt.Errorf("%w: dimensions %dx%d", ErrInvalidGrid, g.NX, g.NY)
	case !(g.CellSize > 0):
		return fmt.Errorf("%w: cell size %g", ErrInvalidGrid, g.CellSize)
	case len(g.Values) != g.NX*g.NY:
		return fmt.Errorf("%w: %d values for %dx%d cells", ErrInvalidGrid, len(g.Values), g.NX, g.NY)
	}
	return nil
}

// At returns the value at column x, row y.
func (g *Grid) At(x, y int) (float64, error) {
	if !g.inBounds(x, y) {
		return 0, fmt.Errorf("%w: (%d,%d) outside %dx%d", ErrIndexOutOfRange, x, y, g.NX, g.NY)
	}
	return g.Values[y*g.NX+x], nil
}

// Set writes v at column x, row y.
func (g *Grid) Set(x, y int, v float64) error {
	if !g.inBounds(x, y) {
		return fmt.Errorf("%w: (%d,%d) outside %dx%d", ErrIndexOutOfRange, x, y, g.NX, g.NY)
	}
	g.Values[y*g.NX+x] = v
	return nil
}

// SetNoData marks the cell at column x, row y as nodata.
func (g *Grid) SetNoData(x, y int) error {
	return g.Set(x, y, g.NoData)
}

// IsNoData reports whether v is the grid's nodata sentinel. A NaN sentinel
// matches any NaN value.
func (g *Grid) IsNoData(v float64) bool {
	if math.IsNaN(g.NoData) {
		return math.IsNaN(v)
	}
	return v == g.NoData
}

// SameShape reports whether two grids can be combined cell by cell.
func (g *Grid) SameShape(o *Grid) bool {
	return g.NX == o.NX && g.NY == o.NY && g.CellSize == o.CellSize && g.Extent == o.Extent
}

// CellCenter returns the map coordinate of the center of cell (x, y).
func (g *Grid) CellCenter(x, y int) orb.Point {
	return orb.Point{
		g.Extent.MinX + (float64(x)+0.5)*g.CellSize,
		g.Extent.MaxY - (float64(y)+0.5)*g.CellSize,
	}
}

// Digest is a stable content hash over shape, extent, nodata and values.
func (g *Grid) Digest() string {
	h := sha256.New()
	var buf [8]byte
	putFloat := func(f float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(f))
		h.Write(buf[:])
	}
	binary.LittleEndian.PutUint64(buf[:], uint64(g.NX))
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], uint64(g.NY))
	h.Write(buf[:])
	putFloat(g.CellSize)
	putFloat(g.Extent.MinX)
	putFloat(g.Extent.MinY)
	putFloat(g.Extent.MaxX)
	putFloat(g.Extent.MaxY)
	h.Write([]byte(g.Extent.CRS))
	putFloat(g.NoData)
	for _, v := range g.Values {
		putFloat(v)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Crop returns the pixel-aligned window of g that covers bound. The window is
// snapped outward to whole cells and clamped to the grid; no resampling is
// done, so crops of co-registered grids stay co-registered.
func (g *Grid) Crop(bound orb.Bound) (*Grid, error) {
	cs := g.CellSize
	col0 := snapFloor((bound.Min[0] - g.Extent.MinX) / cs)
	col1 := snapCeil((bound.Max[0] - g.Extent.MinX) / cs)
	row0 := snapFloor((g.Extent.MaxY - bound.Max[1]) / cs)
	row1 := snapCeil((g.Extent.MaxY - bound.Min[1]) / cs)

	// A degenerate (point or line) bound still selects the cell it touches.
	if col1 == col0 {
		col1++
	}
	if row1 == row0 {
		row1++
	}

	col0, col1 = max(col0, 0), min(col1, g.NX)
	row0, row1 = max(row0, 0), min(row1, g.NY)
	if col0 >= col1 || row0 >= row1 {
		return nil, fmt.Errorf("%w: bound %v outside grid extent", ErrEmptyWindow, bound)
	}

	nx, ny := col1-col0, row1-row0
	values := make([]float64, 0, nx*ny)
	for y := row0; y < row1; y++ {
		values = append(values, g.Values[y*g.NX+col0:y*g.NX+col1]...)
	}
	ext := Extent{
		MinX: g.Extent.MinX + float64(col0)*cs,
		MaxX: g.Extent.MinX + float64(col1)*cs,
		MaxY: g.Extent.MaxY - float64(row0)*cs,
		MinY: g.Extent.MaxY - float64(row1)*cs,
		CRS:  g.Extent.CRS,
	}
	return &Grid{NX: nx, NY: ny, CellSize: cs, Extent: ext, NoData: g.NoData, Values: values}, nil
}

// SameNoData reports whether g and o use the same nodata sentinel. Two NaN
// sentinels are the same.
func (g *Grid) SameNoData(o *Grid) bool {
	if math.IsNaN(g.NoData) {
		return math.IsNaN(o.NoData)
	}
	return g.NoData == o.NoData
}

// emptyLike allocates a grid with g's shape and nodata sentinel.
func (g *Grid) emptyLike() *Grid {
	return &Grid{
		NX:       g.NX,
		NY:       g.NY,
		CellSize: g.CellSize,
		Extent:   g.Extent,
		NoData:   g.NoData,
		Values:   make([]float64, len(g.Values)),
	}
}

// snapEpsilon absorbs float noise when a bound lies on a cell edge.
const snapEpsilon = 1e-9

func snapFloor(v float64) int { return int(math.Floor(v + snapEpsilon)) }

func snapCeil(v float64) int { return int(math.Ceil(v - snapEpsilon)) }

func (g *Grid) inBounds(x, y int) bool {
	return x >= 0 && x < g.NX && y >= 0 && y < g.NY
}
