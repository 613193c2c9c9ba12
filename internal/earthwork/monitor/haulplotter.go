package monitor

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/gradeworks/gradeplan/internal/earthwork"
	"github.com/gradeworks/gradeplan/internal/security"
)

// WritePlots renders the standard diagram set for a grading result into
// outputDir: the mass-haul curve and the per-row depth profiles. It returns
// the paths of the files written.
func WritePlots(result *earthwork.GradingResult, outputDir string) ([]string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	var written []string

	haulFile := filepath.Join(outputDir, "mass_haul.png")
	if err := RenderMassHaulPNG(result, haulFile); err != nil {
		return written, fmt.Errorf("mass-haul plot: %w", err)
	}
	written = append(written, haulFile)

	profileFile := filepath.Join(outputDir, "depth_profiles.png")
	if err := RenderDepthProfilesPNG(result, profileFile); err != nil {
		return written, fmt.Errorf("depth profile plot: %w", err)
	}
	written = append(written, profileFile)

	return written, nil
}

// RenderMassHaulPNG draws the mass-haul diagram: cumulative net volume (cut
// positive, fill negative) against station. The curve closes above zero when
// the site exports material and below zero when it imports.
func RenderMassHaulPNG(result *earthwork.GradingResult, path string) error {
	if result == nil || result.GridCols == 0 || len(result.Cells) == 0 {
		return fmt.Errorf("no grid cells to plot")
	}

	net := netVolumeByColumn(result)

	pts := make(plotter.XYs, 0, result.GridCols+1)
	pts = append(pts, plotter.XY{X: 0, Y: 0})
	cum := 0.0
	for col := 0; col < result.GridCols; col++ {
		cum += net[col]
		pts = append(pts, plotter.XY{X: (float64(col) + 1) * result.GridSizeFt, Y: cum})
	}

	p := plot.New()
	p.Title.Text = "Mass-Haul Diagram"
	p.X.Label.Text = "Station (ft)"
	p.Y.Label.Text = "Cumulative Volume (cy)"

	haulLine, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	haulLine.Width = vg.Points(1.5)
	p.Add(haulLine)
	p.Legend.Add("cumulative", haulLine)

	// Zero grade line: where the curve recrosses it the haul balances out.
	zeroLine, err := plotter.NewLine(plotter.XYs{
		{X: 0, Y: 0},
		{X: float64(result.GridCols) * result.GridSizeFt, Y: 0},
	})
	if err != nil {
		return err
	}
	zeroLine.Color = color.RGBA{R: 128, G: 128, B: 128, A: 255}
	zeroLine.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
	p.Add(zeroLine)
	p.Legend.Add("balance", zeroLine)

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save mass-haul plot: %w", err)
	}

	return nil
}

// RenderDepthProfilesPNG draws cut/fill depth against station, one line per
// grid row. Depth follows the engine convention: positive is fill, negative
// is cut.
func RenderDepthProfilesPNG(result *earthwork.GradingResult, path string) error {
	if result == nil || len(result.Cells) == 0 {
		return fmt.Errorf("no grid cells to plot")
	}

	byRow := make(map[int][]earthwork.EarthworkCell)
	for _, c := range result.Cells {
		byRow[c.Row] = append(byRow[c.Row], c)
	}

	var rows []int
	for row := range byRow {
		rows = append(rows, row)
	}
	sort.Ints(rows)

	p := plot.New()
	p.Title.Text = "Cut/Fill Depth Profiles"
	p.X.Label.Text = "Station (ft)"
	p.Y.Label.Text = "Depth (ft)"

	// Color palette
	colors := generateColors(len(rows))

	for i, row := range rows {
		cells := byRow[row]
		sort.Slice(cells, func(a, b int) bool {
			return cells[a].Col < cells[b].Col
		})

		pts := make(plotter.XYs, 0, len(cells))
		for _, c := range cells {
			pts = append(pts, plotter.XY{X: c.CenterXFt, Y: c.DepthFt})
		}
		if len(pts) == 0 {
			continue
		}

		rowLine, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		rowLine.Color = colors[i]
		rowLine.Width = vg.Points(1)
		p.Add(rowLine)
		p.Legend.Add(fmt.Sprintf("row %d", row), rowLine)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save depth profile plot: %w", err)
	}

	return nil
}

// generateColors creates a palette of distinct colors for row lines
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}

	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue, 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL to RGB (0-255 range)
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var rf, gf, bf float64

	if s == 0 {
		rf, gf, bf = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q
		rf = hueToRGB(p, q, h+1.0/3.0)
		gf = hueToRGB(p, q, h)
		bf = hueToRGB(p, q, h-1.0/3.0)
	}

	return uint8(rf * 255), uint8(gf * 255), uint8(bf * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t += 1
	}
	if t > 1 {
		t -= 1
	}
	if t < 1.0/6.0 {
		return p + (q-p)*6*t
	}
	if t < 1.0/2.0 {
		return q
	}
	if t < 2.0/3.0 {
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}

// FormatTimestamp generates a timestamp string for directory naming.
func FormatTimestamp(t time.Time) string {
	return t.Format("20060102_150405")
}

// MakePlotOutputDir builds a timestamped output directory for diagram files.
// For named sites: plots/<site>/<timestamp>
// For ad-hoc runs: plots/run_<timestamp>
// The site name is sanitized before it reaches the path.
func MakePlotOutputDir(baseDir, siteName string) string {
	ts := FormatTimestamp(time.Now())
	if siteName != "" {
		return filepath.Join(baseDir, security.SanitizeFilename(siteName), ts)
	}
	return filepath.Join(baseDir, "run_"+ts)
}
