// Command gen-site generates synthetic survey sample files for testing and
// demos. The surface is a tilted plane with gaussian knolls and measurement
// noise; pass -target to carry a flat design pad elevation on every sample.
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/gradeworks/gradeplan/internal/earthwork"
	"github.com/gradeworks/gradeplan/internal/fsutil"
)

func main() {
	output := flag.String("o", "site.csv", "output path (.csv or .json)")
	width := flag.Float64("width", 300, "site extent along x in feet")
	depth := flag.Float64("depth", 200, "site extent along y in feet")
	spacing := flag.Float64("spacing", 10, "sample spacing in feet")
	base := flag.Float64("base", 100, "base elevation in feet")
	slope := flag.Float64("slope", 1.5, "existing grade along +x in percent")
	noise := flag.Float64("noise", 0.5, "gaussian measurement noise stddev in feet")
	knolls := flag.Int("knolls", 2, "number of gaussian knolls")
	knollHeight := flag.Float64("knoll-height", 6, "nominal knoll height in feet")
	target := flag.Float64("target", math.NaN(), "design pad elevation carried on every sample (omitted when unset)")
	seed := flag.Int64("seed", 0, "random seed (time-based when 0)")
	flag.Parse()

	gen := NewSiteGenerator(*seed)
	gen.WidthFt = *width
	gen.DepthFt = *depth
	gen.SpacingFt = *spacing
	gen.BaseFt = *base
	gen.SlopePct = *slope
	gen.NoiseFt = *noise
	gen.KnollCount = *knolls
	gen.KnollHeight = *knollHeight
	if !math.IsNaN(*target) {
		gen.TargetFt = target
	}

	samples := gen.Generate()
	if len(samples) == 0 {
		log.Fatalf("no samples generated; check -width/-depth/-spacing")
	}

	elevs := make([]float64, len(samples))
	for i, s := range samples {
		elevs[i] = s.CurrentElevationFt
	}
	mean, std := stat.MeanStdDev(elevs, nil)
	log.Printf("Generated %d samples over %.0fx%.0f ft (elevation %.1f±%.1f ft)",
		len(samples), gen.WidthFt, gen.DepthFt, mean, std)

	if err := writeSamples(fsutil.OSFileSystem{}, *output, samples); err != nil {
		log.Fatalf("Failed to write %s: %v", *output, err)
	}
	log.Printf("✓ Created: %s", *output)
}

// SiteGenerator produces a synthetic survey: a plane tilted along +x with
// gaussian knolls dropped at random interior positions, plus per-sample
// measurement noise.
type SiteGenerator struct {
	WidthFt     float64
	DepthFt     float64
	SpacingFt   float64
	BaseFt      float64
	SlopePct    float64
	NoiseFt     float64
	KnollCount  int
	KnollHeight float64

	// TargetFt, when set, is carried on every sample as a flat design pad.
	TargetFt *float64

	rng *rand.Rand
}

// NewSiteGenerator creates a generator with demo-sized defaults. A zero seed
// uses the current time; any other value makes the survey reproducible.
func NewSiteGenerator(seed int64) *SiteGenerator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &SiteGenerator{
		WidthFt:     300,
		DepthFt:     200,
		SpacingFt:   10,
		BaseFt:      100,
		SlopePct:    1.5,
		NoiseFt:     0.5,
		KnollCount:  2,
		KnollHeight: 6,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

type knoll struct {
	x, y   float64
	height float64
	radius float64
}

// Generate lays samples on a regular lattice covering the site extent.
func (g *SiteGenerator) Generate() []earthwork.Sample {
	if g.SpacingFt <= 0 || g.WidthFt < 0 || g.DepthFt < 0 {
		return nil
	}

	knolls := make([]knoll, g.KnollCount)
	for i := range knolls {
		knolls[i] = knoll{
			x:      (0.2 + 0.6*g.rng.Float64()) * g.WidthFt,
			y:      (0.2 + 0.6*g.rng.Float64()) * g.DepthFt,
			height: g.KnollHeight * (0.5 + g.rng.Float64()),
			radius: (0.1 + 0.15*g.rng.Float64()) * math.Max(g.WidthFt, g.SpacingFt),
		}
	}

	var samples []earthwork.Sample
	for y := 0.0; y <= g.DepthFt+1e-9; y += g.SpacingFt {
		for x := 0.0; x <= g.WidthFt+1e-9; x += g.SpacingFt {
			elev := g.BaseFt + x*g.SlopePct/100
			for _, k := range knolls {
				dx, dy := x-k.x, y-k.y
				elev += k.height * math.Exp(-(dx*dx+dy*dy)/(2*k.radius*k.radius))
			}
			if g.NoiseFt > 0 {
				elev += g.rng.NormFloat64() * g.NoiseFt
			}

			s := earthwork.Sample{XFt: x, YFt: y, CurrentElevationFt: elev}
			if g.TargetFt != nil {
				v := *g.TargetFt
				s.TargetElevationFt = &v
			}
			samples = append(samples, s)
		}
	}
	return samples
}

// writeSamples encodes the survey in the format implied by the output
// extension: CSV with the standard header, or the /api/analyze JSON shape.
func writeSamples(fsys fsutil.FileSystem, path string, samples []earthwork.Sample) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return writeCSV(fsys, path, samples)
	case ".json":
		return writeJSON(fsys, path, samples)
	default:
		return fmt.Errorf("unsupported extension %q (use .csv or .json)", filepath.Ext(path))
	}
}

func writeCSV(fsys fsutil.FileSystem, path string, samples []earthwork.Sample) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	w.Write([]string{"x_ft", "y_ft", "current_elevation_ft", "target_elevation_ft"})
	for _, s := range samples {
		target := ""
		if s.TargetElevationFt != nil {
			target = strconv.FormatFloat(*s.TargetElevationFt, 'f', 3, 64)
		}
		w.Write([]string{
			strconv.FormatFloat(s.XFt, 'f', 1, 64),
			strconv.FormatFloat(s.YFt, 'f', 1, 64),
			strconv.FormatFloat(s.CurrentElevationFt, 'f', 3, 64),
			target,
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	return fsys.WriteFile(path, buf.Bytes(), 0644)
}

func writeJSON(fsys fsutil.FileSystem, path string, samples []earthwork.Sample) error {
	doc := struct {
		Samples []earthwork.Sample `json:"samples"`
	}{Samples: samples}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return fsys.WriteFile(path, data, 0644)
}
