package earthwork

import "errors"

// Error taxonomy for the grading engine. Input-validation errors are
// returned before any computation starts; ErrInternalConsistency marks a
// violated invariant (a defect, not bad input) and always aborts the
// analysis.
var (
	// ErrInsufficientData indicates too few or degenerate elevation samples
	// to interpolate a surface (fewer than 3 non-collinear points).
	ErrInsufficientData = errors.New("insufficient elevation data")

	// ErrInvalidConfiguration indicates a configuration value outside its
	// accepted range (non-positive grid size, disordered slope thresholds,
	// negative cost rates).
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrUnresolvableGrid indicates that no target elevation data exists in
	// the samples and no default target is configured, so no cell can have
	// an earthwork depth.
	ErrUnresolvableGrid = errors.New("unresolvable grid")

	// ErrInternalConsistency indicates a computed invariant was violated
	// (negative volume, negative cost, unconserved volume totals). It is
	// never downgraded to a warning.
	ErrInternalConsistency = errors.New("internal consistency violation")
)
