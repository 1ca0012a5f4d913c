// Command genjob writes a synthetic ATEI job fixture: an inclined DEM, a
// banded CORINE land-cover window and a handful of zones, one of which is
// deliberately non-polygonal. The job is parsed with the domain package before
// it is written so the fixture always matches what the pipeline accepts.
//
// Usage:
//
//	go run ./cmd/genjob -out data/mock/atei_job_sample.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/atei-etl/internal/domain"
)

const (
	nodata   = -9999.0
	crs      = "EPSG:32632"
	cellSize = 25.0
	originX  = 650000.0
	originY  = 5100000.0
	size     = 8
)

// CORINE codes used for the land-cover bands, north to south.
const (
	clcGlacier   = 34
	clcGrassland = 26
	clcForest    = 23
)

type job struct {
	ID          string                     `json:"id"`
	Statistic   string                     `json:"statistic"`
	Containment string                     `json:"containment"`
	DEM         *domain.Grid               `json:"dem"`
	LandCover   *domain.Grid               `json:"land_cover"`
	Zones       *geojson.FeatureCollection `json:"zones"`
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output path for the job fixture")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}

	extent := domain.Extent{
		MinX: originX,
		MinY: originY,
		MaxX: originX + size*cellSize,
		MaxY: originY + size*cellSize,
		CRS:  crs,
	}

	dem, err := domain.NewFilledGrid(size, size, cellSize, extent, nodata, 0)
	if err != nil {
		return err
	}
	landCover, err := domain.NewFilledGrid(size, size, cellSize, extent, nodata, 0)
	if err != nil {
		return err
	}
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			// Rises 20m per row toward the north and 5m per column toward the east.
			if err := dem.Set(x, y, 1800+20*float64(size-1-y)+5*float64(x)); err != nil {
				return err
			}
			if err := landCover.Set(x, y, bandFor(y)); err != nil {
				return err
			}
		}
	}
	// One unmapped cell in the south-east corner.
	if err := landCover.SetNoData(size-1, size-1); err != nil {
		return err
	}

	j := job{
		ID:          "sample-ridge",
		Statistic:   "mean",
		Containment: "first",
		DEM:         dem,
		LandCover:   landCover,
		Zones:       zones(),
	}

	data, err := json.MarshalIndent(j, "", "  ")
	if err != nil {
		return err
	}
	parsed, err := domain.ParseRawJob(domain.RawJob{Value: data}, domain.JobDefaults{})
	if err != nil {
		return fmt.Errorf("fixture does not parse: %w", err)
	}

	if err := writeFile(*out, data); err != nil {
		return fmt.Errorf("writing job fixture: %w", err)
	}
	log.Printf("wrote job fixture: %s", *out)

	printStats(parsed)
	return nil
}

func bandFor(row int) float64 {
	switch {
	case row < 2:
		return clcGlacier
	case row < 5:
		return clcGrassland
	default:
		return clcForest
	}
}

func square(minX, minY, maxX, maxY float64) orb.Polygon {
	return orb.Polygon{{
		{originX + minX, originY + minY},
		{originX + maxX, originY + minY},
		{originX + maxX, originY + maxY},
		{originX + minX, originY + maxY},
		{originX + minX, originY + minY},
	}}
}

func zones() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	upper := geojson.NewFeature(square(0, 100, 200, 200))
	upper.ID = "upper-bowl"
	upper.Properties["name"] = "Upper bowl"
	fc.Append(upper)

	lower := geojson.NewFeature(square(0, 0, 200, 100))
	lower.ID = "lower-slope"
	lower.Properties["name"] = "Lower slope"
	fc.Append(lower)

	gullies := geojson.NewFeature(orb.MultiPolygon{
		square(0, 150, 50, 200),
		square(150, 150, 200, 200),
	})
	gullies.ID = "twin-gullies"
	gullies.Properties["name"] = "Twin gullies"
	fc.Append(gullies)

	cairn := geojson.NewFeature(orb.Point{originX + 100, originY + 190})
	cairn.ID = "summit-cairn"
	cairn.Properties["name"] = "Summit cairn"
	fc.Append(cairn)

	return fc
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}

// printStats reports the land-cover cells each zone samples, for updating
// test assertions.
func printStats(j domain.Job) {
	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Job: %s (%dx%d cells, statistic=%s)\n", j.ID, j.DEM.NX, j.DEM.NY, j.Statistic)
	for _, z := range j.Zones {
		if z.Err != nil {
			fmt.Printf("  %s: rejected (%v)\n", z.ID, z.Err)
			continue
		}
		samples, err := domain.Sample(j.LandCover, z.Zone)
		if err != nil {
			fmt.Printf("  %s: %v\n", z.ID, err)
			continue
		}
		counts := map[float64]int{}
		for _, v := range samples {
			counts[v]++
		}
		fmt.Printf("  %s: %d cells, land cover %v\n", z.ID, len(samples), counts)
	}
}
