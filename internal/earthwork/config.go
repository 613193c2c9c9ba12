package earthwork

import (
	"fmt"
	"math"

	"github.com/gradeworks/gradeplan/internal/config"
)

// Config is the closed, immutable configuration for one analysis. Invalid
// values are rejected by Validate before any computation starts; the engine
// never mutates a Config and never stores one between calls.
type Config struct {
	// Grid construction
	GridSizeFt               float64  // Cell edge length in feet (default: 10.0)
	DefaultTargetElevationFt *float64 // Flat design pad elevation when samples carry no targets (default: unset)
	DefaultSlopePercent      *float64 // Tilt of the synthesized target plane along +x (default: unset)

	// Cut/fill
	BalanceToleranceFt   float64 // |depth| at or below this is balanced (default: 0.01)
	FillCompactionFactor float64 // Multiplier on fill volume for compaction shrink (default: 1.0)
	MaxCutFillFt         float64 // Flag cells with |depth| above this; 0 disables (default: 0)

	// Slope analysis
	Connectivity       int     // Cell adjacency, 4 or 8 (default: 4)
	MinSlopePercent    float64 // Below this: flat, drainage concern (default: 0.5)
	GentleSlopePercent float64 // Gentle/moderate boundary (default: 5.0)
	SteepSlopePercent  float64 // Moderate/steep boundary (default: 10.0)
	MaxSlopePercent    float64 // Above this: excessive, high erosion risk (default: 15.0)

	// Unit cost rates
	ExcavationCostPerCy float64 // $/cy cut (default: 15.00)
	FillCostPerCy       float64 // $/cy fill placement (default: 25.00)
	CompactionCostPerCy float64 // $/cy fill compaction (default: 8.00)
	HaulCostPerCyFt     float64 // $/cy/ft on-site haul (default: 0.005)
	ImportCostPerCy     float64 // $/cy borrow material (default: 35.00)
	ExportCostPerCy     float64 // $/cy spoil disposal (default: 18.00)

	// Viability assessment (skipped when AnnualRentUSD == 0)
	AnnualRentUSD           float64 // Parcel annual rent for the cost-ratio check (default: 0)
	ViabilityThresholdRatio float64 // Max cost/rent ratio considered viable (default: 0.15)

	// Worker pool for per-cell passes
	ParallelThreshold int // Min valid cells before fanning out; <=0 disables (default: 10000)
	Workers           int // Pool size; 0 means GOMAXPROCS (default: 0)
}

// DefaultConfig returns a Config populated with the engine defaults. The
// same values ship in config/grading.defaults.json; use ConfigFromDefaults
// when a loaded defaults file should win.
func DefaultConfig() *Config {
	return &Config{
		GridSizeFt:              10.0,
		BalanceToleranceFt:      0.01,
		FillCompactionFactor:    1.0,
		Connectivity:            4,
		MinSlopePercent:         0.5,
		GentleSlopePercent:      5.0,
		SteepSlopePercent:       10.0,
		MaxSlopePercent:         15.0,
		ExcavationCostPerCy:     15.00,
		FillCostPerCy:           25.00,
		CompactionCostPerCy:     8.00,
		HaulCostPerCyFt:         0.005,
		ImportCostPerCy:         35.00,
		ExportCostPerCy:         18.00,
		ViabilityThresholdRatio: 0.15,
		ParallelThreshold:       10000,
	}
}

// ConfigFromDefaults builds a Config from a loaded defaults file. Fields
// absent from the file fall back to the same values as DefaultConfig via
// the Get* accessors.
func ConfigFromDefaults(d *config.GradingDefaults) *Config {
	cfg := &Config{
		GridSizeFt:              d.GetGridSizeFt(),
		BalanceToleranceFt:      d.GetBalanceToleranceFt(),
		FillCompactionFactor:    d.GetFillCompactionFactor(),
		MaxCutFillFt:            d.GetMaxCutFillFt(),
		Connectivity:            d.GetConnectivity(),
		MinSlopePercent:         d.GetMinSlopePercent(),
		GentleSlopePercent:      d.GetGentleSlopePercent(),
		SteepSlopePercent:       d.GetSteepSlopePercent(),
		MaxSlopePercent:         d.GetMaxSlopePercent(),
		ExcavationCostPerCy:     d.GetExcavationCostPerCy(),
		FillCostPerCy:           d.GetFillCostPerCy(),
		CompactionCostPerCy:     d.GetCompactionCostPerCy(),
		HaulCostPerCyFt:         d.GetHaulCostPerCyFt(),
		ImportCostPerCy:         d.GetImportCostPerCy(),
		ExportCostPerCy:         d.GetExportCostPerCy(),
		AnnualRentUSD:           d.GetAnnualRentUSD(),
		ViabilityThresholdRatio: d.GetViabilityThresholdRatio(),
		ParallelThreshold:       d.GetParallelThreshold(),
		Workers:                 d.GetWorkers(),
	}
	if d.DefaultTargetElevationFt != nil {
		v := *d.DefaultTargetElevationFt
		cfg.DefaultTargetElevationFt = &v
	}
	if d.DefaultSlopePercent != nil {
		v := *d.DefaultSlopePercent
		cfg.DefaultSlopePercent = &v
	}
	return cfg
}

// Validate checks every configuration value and reports the first violation
// wrapped in ErrInvalidConfiguration.
func (c *Config) Validate() error {
	if !isFinite(c.GridSizeFt) || c.GridSizeFt <= 0 {
		return fmt.Errorf("%w: grid_size_ft must be positive, got %g", ErrInvalidConfiguration, c.GridSizeFt)
	}
	if !isFinite(c.BalanceToleranceFt) || c.BalanceToleranceFt < 0 {
		return fmt.Errorf("%w: balance_tolerance_ft must be non-negative, got %g", ErrInvalidConfiguration, c.BalanceToleranceFt)
	}
	if !isFinite(c.FillCompactionFactor) || c.FillCompactionFactor < 1 {
		return fmt.Errorf("%w: fill_compaction_factor must be >= 1, got %g", ErrInvalidConfiguration, c.FillCompactionFactor)
	}
	if !isFinite(c.MaxCutFillFt) || c.MaxCutFillFt < 0 {
		return fmt.Errorf("%w: max_cut_fill_ft must be non-negative, got %g", ErrInvalidConfiguration, c.MaxCutFillFt)
	}
	if c.Connectivity != 4 && c.Connectivity != 8 {
		return fmt.Errorf("%w: connectivity must be 4 or 8, got %d", ErrInvalidConfiguration, c.Connectivity)
	}
	if !isFinite(c.MinSlopePercent) || c.MinSlopePercent < 0 {
		return fmt.Errorf("%w: min_slope_percent must be non-negative, got %g", ErrInvalidConfiguration, c.MinSlopePercent)
	}
	if c.MinSlopePercent >= c.MaxSlopePercent {
		return fmt.Errorf("%w: min_slope_percent (%g) must be below max_slope_percent (%g)", ErrInvalidConfiguration, c.MinSlopePercent, c.MaxSlopePercent)
	}
	if !(c.MinSlopePercent < c.GentleSlopePercent && c.GentleSlopePercent < c.SteepSlopePercent && c.SteepSlopePercent < c.MaxSlopePercent) {
		return fmt.Errorf("%w: slope thresholds must be ordered min (%g) < gentle (%g) < steep (%g) < max (%g)",
			ErrInvalidConfiguration, c.MinSlopePercent, c.GentleSlopePercent, c.SteepSlopePercent, c.MaxSlopePercent)
	}
	rates := []struct {
		name  string
		value float64
	}{
		{"excavation_cost_per_cy", c.ExcavationCostPerCy},
		{"fill_cost_per_cy", c.FillCostPerCy},
		{"compaction_cost_per_cy", c.CompactionCostPerCy},
		{"haul_cost_per_cy_ft", c.HaulCostPerCyFt},
		{"import_cost_per_cy", c.ImportCostPerCy},
		{"export_cost_per_cy", c.ExportCostPerCy},
	}
	for _, r := range rates {
		if !isFinite(r.value) || r.value < 0 {
			return fmt.Errorf("%w: %s must be non-negative, got %g", ErrInvalidConfiguration, r.name, r.value)
		}
	}
	if !isFinite(c.AnnualRentUSD) || c.AnnualRentUSD < 0 {
		return fmt.Errorf("%w: annual_rent_usd must be non-negative, got %g", ErrInvalidConfiguration, c.AnnualRentUSD)
	}
	if !isFinite(c.ViabilityThresholdRatio) || c.ViabilityThresholdRatio <= 0 {
		return fmt.Errorf("%w: viability_threshold_ratio must be positive, got %g", ErrInvalidConfiguration, c.ViabilityThresholdRatio)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must be non-negative, got %d", ErrInvalidConfiguration, c.Workers)
	}
	if c.DefaultTargetElevationFt != nil && !isFinite(*c.DefaultTargetElevationFt) {
		return fmt.Errorf("%w: default_target_elevation_ft must be finite", ErrInvalidConfiguration)
	}
	if c.DefaultSlopePercent != nil && !isFinite(*c.DefaultSlopePercent) {
		return fmt.Errorf("%w: default_slope_percent must be finite", ErrInvalidConfiguration)
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// WithGridSize sets the grid cell edge length in feet.
func (c *Config) WithGridSize(ft float64) *Config {
	c.GridSizeFt = ft
	return c
}

// WithDefaultTargetElevation sets a flat design pad elevation used when the
// samples carry no target data.
func (c *Config) WithDefaultTargetElevation(ft float64) *Config {
	c.DefaultTargetElevationFt = &ft
	return c
}

// WithDefaultSlope sets the tilt of the synthesized target plane along +x.
func (c *Config) WithDefaultSlope(percent float64) *Config {
	c.DefaultSlopePercent = &percent
	return c
}

// WithBalanceTolerance sets the balanced-cell depth tolerance in feet.
func (c *Config) WithBalanceTolerance(ft float64) *Config {
	c.BalanceToleranceFt = ft
	return c
}

// WithFillCompactionFactor sets the compaction shrink multiplier on fill.
func (c *Config) WithFillCompactionFactor(f float64) *Config {
	c.FillCompactionFactor = f
	return c
}

// WithMaxCutFill sets the per-cell depth flagging limit; 0 disables.
func (c *Config) WithMaxCutFill(ft float64) *Config {
	c.MaxCutFillFt = ft
	return c
}

// WithConnectivity sets the slope adjacency model (4 or 8).
func (c *Config) WithConnectivity(n int) *Config {
	c.Connectivity = n
	return c
}

// WithSlopeThresholds sets the four classification boundaries in percent.
func (c *Config) WithSlopeThresholds(min, gentle, steep, max float64) *Config {
	c.MinSlopePercent = min
	c.GentleSlopePercent = gentle
	c.SteepSlopePercent = steep
	c.MaxSlopePercent = max
	return c
}

// WithHaulRate sets the on-site haul rate in $/cy/ft.
func (c *Config) WithHaulRate(rate float64) *Config {
	c.HaulCostPerCyFt = rate
	return c
}

// WithAnnualRent sets the parcel rent that enables the viability check.
func (c *Config) WithAnnualRent(usd float64) *Config {
	c.AnnualRentUSD = usd
	return c
}

// WithWorkers sets the worker pool size for per-cell passes.
func (c *Config) WithWorkers(n int) *Config {
	c.Workers = n
	return c
}

// WithParallelThreshold sets the valid-cell count above which per-cell
// passes fan out to the worker pool.
func (c *Config) WithParallelThreshold(n int) *Config {
	c.ParallelThreshold = n
	return c
}
