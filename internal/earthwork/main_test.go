package earthwork

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain fails the package if any test leaks a goroutine, which would
// mean a cell pass returned before its workers drained.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
