package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical grading defaults file.
// This is the single source of truth for all default grading values.
const DefaultConfigPath = "config/grading.defaults.json"

// GradingDefaults represents the root configuration for grading analysis
// parameters. The schema matches the /api/config/defaults endpoint so the
// same JSON serves startup configuration and API inspection.
type GradingDefaults struct {
	// Grid construction params
	GridSizeFt               *float64 `json:"grid_size_ft,omitempty"`
	DefaultTargetElevationFt *float64 `json:"default_target_elevation_ft,omitempty"`
	DefaultSlopePercent      *float64 `json:"default_slope_percent,omitempty"`

	// Cut/fill params
	BalanceToleranceFt   *float64 `json:"balance_tolerance_ft,omitempty"`
	FillCompactionFactor *float64 `json:"fill_compaction_factor,omitempty"`
	MaxCutFillFt         *float64 `json:"max_cut_fill_ft,omitempty"`

	// Slope analysis params
	Connectivity       *int     `json:"connectivity,omitempty"`
	MinSlopePercent    *float64 `json:"min_slope_percent,omitempty"`
	GentleSlopePercent *float64 `json:"gentle_slope_percent,omitempty"`
	SteepSlopePercent  *float64 `json:"steep_slope_percent,omitempty"`
	MaxSlopePercent    *float64 `json:"max_slope_percent,omitempty"`

	// Unit cost rates
	ExcavationCostPerCy *float64 `json:"excavation_cost_per_cy,omitempty"`
	FillCostPerCy       *float64 `json:"fill_cost_per_cy,omitempty"`
	CompactionCostPerCy *float64 `json:"compaction_cost_per_cy,omitempty"`
	HaulCostPerCyFt     *float64 `json:"haul_cost_per_cy_ft,omitempty"`
	ImportCostPerCy     *float64 `json:"import_cost_per_cy,omitempty"`
	ExportCostPerCy     *float64 `json:"export_cost_per_cy,omitempty"`

	// Viability params (optional)
	AnnualRentUSD           *float64 `json:"annual_rent_usd,omitempty"`
	ViabilityThresholdRatio *float64 `json:"viability_threshold_ratio,omitempty"`

	// Worker pool params
	ParallelThreshold *int `json:"parallel_threshold,omitempty"`
	Workers           *int `json:"workers,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyGradingDefaults returns a GradingDefaults with all fields set to nil.
// Use LoadGradingDefaults to load actual values from the defaults file.
func EmptyGradingDefaults() *GradingDefaults {
	return &GradingDefaults{}
}

// LoadGradingDefaults loads a GradingDefaults from a JSON file.
// The file is validated to ensure it has a .json extension and is under the
// max file size. Fields omitted from the JSON file retain their default
// values, so partial configs are safe.
func LoadGradingDefaults(path string) (*GradingDefaults, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyGradingDefaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical grading defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *GradingDefaults {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/earthwork/monitor/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadGradingDefaults(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid. Cross-field
// rules (threshold ordering, compaction bounds) are enforced again by the
// engine configuration built from these defaults.
func (c *GradingDefaults) Validate() error {
	if c.GridSizeFt != nil && *c.GridSizeFt <= 0 {
		return fmt.Errorf("grid_size_ft must be positive, got %f", *c.GridSizeFt)
	}
	if c.BalanceToleranceFt != nil && *c.BalanceToleranceFt < 0 {
		return fmt.Errorf("balance_tolerance_ft must be non-negative, got %f", *c.BalanceToleranceFt)
	}
	if c.FillCompactionFactor != nil && *c.FillCompactionFactor < 1 {
		return fmt.Errorf("fill_compaction_factor must be >= 1, got %f", *c.FillCompactionFactor)
	}
	if c.Connectivity != nil && *c.Connectivity != 4 && *c.Connectivity != 8 {
		return fmt.Errorf("connectivity must be 4 or 8, got %d", *c.Connectivity)
	}

	rates := map[string]*float64{
		"excavation_cost_per_cy": c.ExcavationCostPerCy,
		"fill_cost_per_cy":       c.FillCostPerCy,
		"compaction_cost_per_cy": c.CompactionCostPerCy,
		"haul_cost_per_cy_ft":    c.HaulCostPerCyFt,
		"import_cost_per_cy":     c.ImportCostPerCy,
		"export_cost_per_cy":     c.ExportCostPerCy,
	}
	for name, rate := range rates {
		if rate != nil && *rate < 0 {
			return fmt.Errorf("%s must be non-negative, got %f", name, *rate)
		}
	}

	if c.ViabilityThresholdRatio != nil && *c.ViabilityThresholdRatio <= 0 {
		return fmt.Errorf("viability_threshold_ratio must be positive, got %f", *c.ViabilityThresholdRatio)
	}
	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}

	return nil
}

// GetGridSizeFt returns the grid_size_ft value or the default.
func (c *GradingDefaults) GetGridSizeFt() float64 {
	if c.GridSizeFt == nil {
		return 10.0 // default
	}
	return *c.GridSizeFt
}

// GetBalanceToleranceFt returns the balance_tolerance_ft value or the default.
func (c *GradingDefaults) GetBalanceToleranceFt() float64 {
	if c.BalanceToleranceFt == nil {
		return 0.01 // default
	}
	return *c.BalanceToleranceFt
}

// GetFillCompactionFactor returns the fill_compaction_factor value or the default.
func (c *GradingDefaults) GetFillCompactionFactor() float64 {
	if c.FillCompactionFactor == nil {
		return 1.0 // default: loose-measure volumes
	}
	return *c.FillCompactionFactor
}

// GetMaxCutFillFt returns the max_cut_fill_ft value or the default.
func (c *GradingDefaults) GetMaxCutFillFt() float64 {
	if c.MaxCutFillFt == nil {
		return 0 // default: depth limit check disabled
	}
	return *c.MaxCutFillFt
}

// GetConnectivity returns the connectivity value or the default.
func (c *GradingDefaults) GetConnectivity() int {
	if c.Connectivity == nil {
		return 4
	}
	return *c.Connectivity
}

// GetMinSlopePercent returns the min_slope_percent value or the default.
func (c *GradingDefaults) GetMinSlopePercent() float64 {
	if c.MinSlopePercent == nil {
		return 0.5
	}
	return *c.MinSlopePercent
}

// GetGentleSlopePercent returns the gentle_slope_percent value or the default.
func (c *GradingDefaults) GetGentleSlopePercent() float64 {
	if c.GentleSlopePercent == nil {
		return 5.0
	}
	return *c.GentleSlopePercent
}

// GetSteepSlopePercent returns the steep_slope_percent value or the default.
func (c *GradingDefaults) GetSteepSlopePercent() float64 {
	if c.SteepSlopePercent == nil {
		return 10.0
	}
	return *c.SteepSlopePercent
}

// GetMaxSlopePercent returns the max_slope_percent value or the default.
func (c *GradingDefaults) GetMaxSlopePercent() float64 {
	if c.MaxSlopePercent == nil {
		return 15.0
	}
	return *c.MaxSlopePercent
}

// GetExcavationCostPerCy returns the excavation_cost_per_cy value or the default.
func (c *GradingDefaults) GetExcavationCostPerCy() float64 {
	if c.ExcavationCostPerCy == nil {
		return 15.00
	}
	return *c.ExcavationCostPerCy
}

// GetFillCostPerCy returns the fill_cost_per_cy value or the default.
func (c *GradingDefaults) GetFillCostPerCy() float64 {
	if c.FillCostPerCy == nil {
		return 25.00
	}
	return *c.FillCostPerCy
}

// GetCompactionCostPerCy returns the compaction_cost_per_cy value or the default.
func (c *GradingDefaults) GetCompactionCostPerCy() float64 {
	if c.CompactionCostPerCy == nil {
		return 8.00
	}
	return *c.CompactionCostPerCy
}

// GetHaulCostPerCyFt returns the haul_cost_per_cy_ft value or the default.
func (c *GradingDefaults) GetHaulCostPerCyFt() float64 {
	if c.HaulCostPerCyFt == nil {
		return 0.005
	}
	return *c.HaulCostPerCyFt
}

// GetImportCostPerCy returns the import_cost_per_cy value or the default.
func (c *GradingDefaults) GetImportCostPerCy() float64 {
	if c.ImportCostPerCy == nil {
		return 35.00
	}
	return *c.ImportCostPerCy
}

// GetExportCostPerCy returns the export_cost_per_cy value or the default.
func (c *GradingDefaults) GetExportCostPerCy() float64 {
	if c.ExportCostPerCy == nil {
		return 18.00
	}
	return *c.ExportCostPerCy
}

// GetAnnualRentUSD returns the annual_rent_usd value or the default.
func (c *GradingDefaults) GetAnnualRentUSD() float64 {
	if c.AnnualRentUSD == nil {
		return 0 // default: viability assessment disabled
	}
	return *c.AnnualRentUSD
}

// GetViabilityThresholdRatio returns the viability_threshold_ratio value or the default.
func (c *GradingDefaults) GetViabilityThresholdRatio() float64 {
	if c.ViabilityThresholdRatio == nil {
		return 0.15
	}
	return *c.ViabilityThresholdRatio
}

// GetParallelThreshold returns the parallel_threshold value or the default.
func (c *GradingDefaults) GetParallelThreshold() int {
	if c.ParallelThreshold == nil {
		return 10000
	}
	return *c.ParallelThreshold
}

// GetWorkers returns the workers value or the default.
func (c *GradingDefaults) GetWorkers() int {
	if c.Workers == nil {
		return 0 // default: GOMAXPROCS
	}
	return *c.Workers
}

// Merge returns a copy of c with every non-nil field of override applied on
// top. Neither receiver nor argument is modified; a nil override returns a
// plain copy. Used by the API to layer per-request config over the server's
// startup defaults.
func (c *GradingDefaults) Merge(override *GradingDefaults) *GradingDefaults {
	merged := *c
	if override == nil {
		return &merged
	}
	if override.GridSizeFt != nil {
		merged.GridSizeFt = override.GridSizeFt
	}
	if override.DefaultTargetElevationFt != nil {
		merged.DefaultTargetElevationFt = override.DefaultTargetElevationFt
	}
	if override.DefaultSlopePercent != nil {
		merged.DefaultSlopePercent = override.DefaultSlopePercent
	}
	if override.BalanceToleranceFt != nil {
		merged.BalanceToleranceFt = override.BalanceToleranceFt
	}
	if override.FillCompactionFactor != nil {
		merged.FillCompactionFactor = override.FillCompactionFactor
	}
	if override.MaxCutFillFt != nil {
		merged.MaxCutFillFt = override.MaxCutFillFt
	}
	if override.Connectivity != nil {
		merged.Connectivity = override.Connectivity
	}
	if override.MinSlopePercent != nil {
		merged.MinSlopePercent = override.MinSlopePercent
	}
	if override.GentleSlopePercent != nil {
		merged.GentleSlopePercent = override.GentleSlopePercent
	}
	if override.SteepSlopePercent != nil {
		merged.SteepSlopePercent = override.SteepSlopePercent
	}
	if override.MaxSlopePercent != nil {
		merged.MaxSlopePercent = override.MaxSlopePercent
	}
	if override.ExcavationCostPerCy != nil {
		merged.ExcavationCostPerCy = override.ExcavationCostPerCy
	}
	if override.FillCostPerCy != nil {
		merged.FillCostPerCy = override.FillCostPerCy
	}
	if override.CompactionCostPerCy != nil {
		merged.CompactionCostPerCy = override.CompactionCostPerCy
	}
	if override.HaulCostPerCyFt != nil {
		merged.HaulCostPerCyFt = override.HaulCostPerCyFt
	}
	if override.ImportCostPerCy != nil {
		merged.ImportCostPerCy = override.ImportCostPerCy
	}
	if override.ExportCostPerCy != nil {
		merged.ExportCostPerCy = override.ExportCostPerCy
	}
	if override.AnnualRentUSD != nil {
		merged.AnnualRentUSD = override.AnnualRentUSD
	}
	if override.ViabilityThresholdRatio != nil {
		merged.ViabilityThresholdRatio = override.ViabilityThresholdRatio
	}
	if override.ParallelThreshold != nil {
		merged.ParallelThreshold = override.ParallelThreshold
	}
	if override.Workers != nil {
		merged.Workers = override.Workers
	}
	return &merged
}

// Resolved returns a GradingDefaults with every field populated from the
// Get* accessors, so serializing it shows the effective value for every
// parameter rather than only the ones a config file set. The two always-nil
// defaults (target elevation and slope) are carried through as-is.
func (c *GradingDefaults) Resolved() *GradingDefaults {
	return &GradingDefaults{
		GridSizeFt:               ptrFloat64(c.GetGridSizeFt()),
		DefaultTargetElevationFt: c.DefaultTargetElevationFt,
		DefaultSlopePercent:      c.DefaultSlopePercent,
		BalanceToleranceFt:       ptrFloat64(c.GetBalanceToleranceFt()),
		FillCompactionFactor:     ptrFloat64(c.GetFillCompactionFactor()),
		MaxCutFillFt:             ptrFloat64(c.GetMaxCutFillFt()),
		Connectivity:             ptrInt(c.GetConnectivity()),
		MinSlopePercent:          ptrFloat64(c.GetMinSlopePercent()),
		GentleSlopePercent:       ptrFloat64(c.GetGentleSlopePercent()),
		SteepSlopePercent:        ptrFloat64(c.GetSteepSlopePercent()),
		MaxSlopePercent:          ptrFloat64(c.GetMaxSlopePercent()),
		ExcavationCostPerCy:      ptrFloat64(c.GetExcavationCostPerCy()),
		FillCostPerCy:            ptrFloat64(c.GetFillCostPerCy()),
		CompactionCostPerCy:      ptrFloat64(c.GetCompactionCostPerCy()),
		HaulCostPerCyFt:          ptrFloat64(c.GetHaulCostPerCyFt()),
		ImportCostPerCy:          ptrFloat64(c.GetImportCostPerCy()),
		ExportCostPerCy:          ptrFloat64(c.GetExportCostPerCy()),
		AnnualRentUSD:            ptrFloat64(c.GetAnnualRentUSD()),
		ViabilityThresholdRatio:  ptrFloat64(c.GetViabilityThresholdRatio()),
		ParallelThreshold:        ptrInt(c.GetParallelThreshold()),
		Workers:                  ptrInt(c.GetWorkers()),
	}
}
