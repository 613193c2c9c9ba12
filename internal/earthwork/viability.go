package earthwork

// EvaluateViability screens the earthwork budget against the parcel's
// annual rent. Grading that costs more than the configured fraction of a
// year's rent usually means the pad should be redesigned, not built.
//
// Returns nil when no rent is configured; the assessment is advisory and
// absent rather than computed from a made-up denominator.
func EvaluateViability(totalCost, annualRentUSD, thresholdRatio float64) *ViabilityAssessment {
	if annualRentUSD <= 0 {
		return nil
	}
	ratio := totalCost / annualRentUSD
	verdict := VerdictViable
	if ratio > thresholdRatio {
		verdict = VerdictRedesign
	}
	return &ViabilityAssessment{
		AnnualRentUSD:  annualRentUSD,
		CostRatio:      ratio,
		ThresholdRatio: thresholdRatio,
		Verdict:        verdict,
	}
}
