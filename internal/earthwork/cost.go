package earthwork

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// EstimateCost prices a cut/fill report and its haul plan against the
// configured unit rates. Each component is computed in decimal dollars and
// rounded to cents before summing, so the breakdown always adds up exactly
// and repeated runs never drift.
//
// A negative component means volumes or rates upstream are corrupt; that is
// reported as ErrInternalConsistency, never clamped to zero.
func EstimateCost(report *CutFillReport, plan *HaulPlan, cfg *Config) (*CostBreakdown, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if report == nil {
		return nil, fmt.Errorf("%w: cost estimate requires a cut/fill report", ErrInternalConsistency)
	}
	if plan == nil {
		return nil, fmt.Errorf("%w: cost estimate requires a haul plan", ErrInternalConsistency)
	}

	cut, err := dollars("cut", report.TotalCutCy, cfg.ExcavationCostPerCy)
	if err != nil {
		return nil, err
	}
	fill, err := dollars("fill", report.TotalFillCy, cfg.FillCostPerCy)
	if err != nil {
		return nil, err
	}
	compaction, err := dollars("compaction", report.TotalFillCy, cfg.CompactionCostPerCy)
	if err != nil {
		return nil, err
	}
	haul, err := haulDollars(plan.Assignments, cfg.HaulCostPerCyFt)
	if err != nil {
		return nil, err
	}
	importCost, err := dollars("import", plan.ImportVolumeCy, cfg.ImportCostPerCy)
	if err != nil {
		return nil, err
	}
	exportCost, err := dollars("export", plan.ExportVolumeCy, cfg.ExportCostPerCy)
	if err != nil {
		return nil, err
	}

	total := decimal.Sum(cut, fill, compaction, haul, importCost, exportCost)
	if total.IsNegative() {
		return nil, fmt.Errorf("%w: negative total cost %s", ErrInternalConsistency, total)
	}

	return &CostBreakdown{
		CutCost:        cut.InexactFloat64(),
		FillCost:       fill.InexactFloat64(),
		CompactionCost: compaction.InexactFloat64(),
		HaulCost:       haul.InexactFloat64(),
		ImportCost:     importCost.InexactFloat64(),
		ExportCost:     exportCost.InexactFloat64(),
		TotalCost:      total.InexactFloat64(),
	}, nil
}

// dollars converts volume × rate into cents-rounded dollars, rejecting
// inputs a valid pipeline can never produce.
func dollars(component string, volumeCy, ratePerCy float64) (decimal.Decimal, error) {
	if !isFinite(volumeCy) || volumeCy < 0 {
		return decimal.Zero, fmt.Errorf("%w: %s volume %v cy", ErrInternalConsistency, component, volumeCy)
	}
	cost := decimal.NewFromFloat(volumeCy).Mul(decimal.NewFromFloat(ratePerCy)).Round(2)
	if cost.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: negative %s cost %s", ErrInternalConsistency, component, cost)
	}
	return cost, nil
}

// haulDollars prices each assignment at volume × distance × rate and sums
// the cents-rounded line items, mirroring how a haul plan is invoiced.
func haulDollars(assignments []HaulAssignment, ratePerCyFt float64) (decimal.Decimal, error) {
	rate := decimal.NewFromFloat(ratePerCyFt)
	total := decimal.Zero
	for _, a := range assignments {
		if !isFinite(a.VolumeCy) || a.VolumeCy <= 0 {
			return decimal.Zero, fmt.Errorf("%w: haul assignment (%d,%d)->(%d,%d) volume %v cy",
				ErrInternalConsistency, a.Source.Row, a.Source.Col, a.Sink.Row, a.Sink.Col, a.VolumeCy)
		}
		if !isFinite(a.DistanceFt) || a.DistanceFt < 0 {
			return decimal.Zero, fmt.Errorf("%w: haul assignment (%d,%d)->(%d,%d) distance %v ft",
				ErrInternalConsistency, a.Source.Row, a.Source.Col, a.Sink.Row, a.Sink.Col, a.DistanceFt)
		}
		line := decimal.NewFromFloat(a.VolumeCy).
			Mul(decimal.NewFromFloat(a.DistanceFt)).
			Mul(rate).
			Round(2)
		total = total.Add(line)
	}
	if total.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: negative haul cost %s", ErrInternalConsistency, total)
	}
	return total, nil
}
