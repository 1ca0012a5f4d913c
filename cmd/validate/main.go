// Command validate checks an ATEI job file and reclass model offline, before
// the job is published to the source topic. It verifies that the model is
// well formed and covers its probe domain, that the job's grids are usable
// and co-registered, that every land-cover cell classifies, and that every
// zone samples at least one DEM cell.
//
// Usage:
//
//	go run ./cmd/validate -job data/mock/atei_job_sample.json [-tables model.yaml]
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/atei-etl/internal/config"
	"github.com/couchcryptid/atei-etl/internal/domain"
)

// probeStep is the spacing of the values used to look for table gaps.
const probeStep = 0.05

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	jobPath := flag.String("job", "", "path to a job JSON file")
	tablesPath := flag.String("tables", "", "optional reclass tables YAML file")
	containment := flag.String("containment", "", "multipolygon containment when the job does not set one (first, all)")
	flag.Parse()

	if *jobPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*jobPath, *tablesPath, *containment); code != 0 {
		os.Exit(code)
	}
}

func run(jobPath, tablesPath, containmentFlag string) int {
	fmt.Println("=== ATEI Job Validation ===")
	fmt.Println()

	weights, tables := domain.DefaultWeights(), domain.DefaultTables()
	if tablesPath != "" {
		var err error
		if weights, tables, err = config.ReadModelFile(tablesPath); err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
			return 1
		}
	}

	containment, err := domain.ParseContainment(containmentFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}

	data, err := os.ReadFile(jobPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: read job: %v\n", err)
		return 1
	}
	key := strings.TrimSuffix(filepath.Base(jobPath), filepath.Ext(jobPath))
	job, err := domain.ParseRawJob(domain.RawJob{Key: []byte(key), Value: data},
		domain.JobDefaults{Statistic: domain.StatMajority, Containment: containment})
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}

	// ── Run validation phases ──
	phases := []*phase{
		validateModel(weights, tables),
		validateGrids(job),
		validateLandCover(job, tables.LandClass),
		validateZones(job),
	}

	// ── Report results ──
	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Job %s: %dx%d cells, %d zones, statistic %s\n",
		job.ID, job.DEM.NX, job.DEM.NY, len(job.Zones), job.Statistic)

	// Print detailed errors.
	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Phase 1: Model ──
// Validates weights and tables, and probes each terrain table for values no
// rule matches.

func validateModel(weights domain.OverlayWeights, tables domain.ReclassTables) *phase {
	p := &phase{name: "Phase 1: Model (weights, tables)"}

	if err := weights.Validate(); err != nil {
		p.errorf("weights: %v", err)
	}
	if err := tables.Validate(); err != nil {
		p.errorf("tables: %v", err)
		return p
	}

	probes := []struct {
		table    domain.ReclassTable
		lo, hi float64
	}{
		{tables.Slope, 0, 90},
		{tables.Aspect, -1, 360},
		{tables.Curvature, -10, 10},
	}
	for _, pr := range probes {
		checkCoverage(p, pr.table, pr.lo, pr.hi)
	}
	return p
}

func checkCoverage(p *phase, t domain.ReclassTable, lo, hi float64) {
	gapStart := math.NaN()
	steps := int(math.Round((hi - lo) / probeStep))
	for i := 0; i <= steps; i++ {
		v := lo + float64(i)*probeStep
		_, ok := t.Classify(v)
		switch {
		case !ok && math.IsNaN(gapStart):
			gapStart = v
		case ok && !math.IsNaN(gapStart):
			p.errorf("table %q: no rule matches [%g, %g)", t.Name, gapStart, v)
			gapStart = math.NaN()
		}
	}
	if !math.IsNaN(gapStart) {
		p.errorf("table %q: no rule matches [%g, %g]", t.Name, gapStart, hi)
	}
}

// ── Phase 2: Grids ──
// Validates that the land cover is co-registered with the DEM and that both
// carry data.

func validateGrids(job domain.Job) *phase {
	p := &phase{name: "Phase 2: Grids (DEM, land cover)"}

	if !job.DEM.SameShape(job.LandCover) {
		p.errorf("land cover %dx%d @ %g is not co-registered with DEM %dx%d @ %g",
			job.LandCover.NX, job.LandCover.NY, job.LandCover.CellSize,
			job.DEM.NX, job.DEM.NY, job.DEM.CellSize)
	}
	if job.DEM.Extent.CRS == "" {
		p.errorf("DEM has no CRS; zone CRS checks are skipped")
	}
	for _, g := range []struct {
		name string
		grid *domain.Grid
	}{{"dem", job.DEM}, {"land_cover", job.LandCover}} {
		samples, _ := domain.Sample(g.grid, nil)
		if len(samples) == 0 {
			p.errorf("%s: every cell is nodata", g.name)
		}
	}
	return p
}

// ── Phase 3: Land cover ──
// Validates that every land-cover code classifies under the land-class table.

func validateLandCover(job domain.Job, t domain.ReclassTable) *phase {
	p := &phase{name: "Phase 3: Land cover classification"}

	unmatched := make(map[float64]int)
	for _, v := range job.LandCover.Values {
		if job.LandCover.IsNoData(v) {
			continue
		}
		if _, ok := t.Classify(v); !ok {
			unmatched[v]++
		}
	}
	for code, n := range unmatched {
		p.errorf("land cover code %g (%d cells) matches no %q rule", code, n, t.Name)
	}
	return p
}

// ── Phase 4: Zones ──
// Validates that every feature is a usable zone that samples DEM cells.

func validateZones(job domain.Job) *phase {
	p := &phase{name: "Phase 4: Zones (geometry, coverage)"}

	if len(job.Zones) == 0 {
		p.errorf("job has no zones")
		return p
	}
	for _, req := range job.Zones {
		if req.Err != nil {
			p.errorf("zone %s: %v", req.ID, req.Err)
			continue
		}
		if err := req.Zone.CheckCRS(job.DEM); err != nil {
			p.errorf("zone %s: %v", req.ID, err)
			continue
		}
		window, err := job.DEM.Crop(req.Zone.Bound())
		if err != nil {
			p.errorf("zone %s: %v", req.ID, err)
			continue
		}
		samples, err := domain.Sample(window, req.Zone)
		if err != nil {
			p.errorf("zone %s: %v", req.ID, err)
			continue
		}
		if len(samples) == 0 {
			p.errorf("zone %s: no DEM cell center falls inside the zone", req.ID)
			continue
		}
		fmt.Printf("  zone %-20s %4d cells\n", req.ID, len(samples))
	}
	return p
}
