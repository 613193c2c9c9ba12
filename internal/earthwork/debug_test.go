package earthwork

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLogWriters(t *testing.T) {
	defer SetLogWriters(nil, nil, nil)

	t.Run("all streams enabled", func(t *testing.T) {
		var ops, diag, trace bytes.Buffer
		SetLogWriters(&ops, &diag, &trace)

		opsf("cut overrun on %d cells", 3)
		diagf("grid pass took %dms", 12)
		tracef("cell (%d,%d) depth %.2f", 1, 2, 0.5)

		require.NotEmpty(t, ops.String())
		assert.Contains(t, ops.String(), "[earthwork] ")
		assert.Contains(t, ops.String(), "cut overrun on 3 cells")
		assert.Contains(t, diag.String(), "grid pass took 12ms")
		assert.Contains(t, trace.String(), "cell (1,2) depth 0.50")
	})

	t.Run("nil writers disable streams", func(t *testing.T) {
		var diag bytes.Buffer
		SetLogWriters(nil, &diag, nil)

		opsf("dropped")
		tracef("dropped")
		diagf("kept")

		assert.Contains(t, diag.String(), "kept")
		assert.Equal(t, 1, strings.Count(diag.String(), "\n"))
	})

	t.Run("disabled by default", func(t *testing.T) {
		SetLogWriters(nil, nil, nil)
		assert.NotPanics(t, func() {
			opsf("no sink")
			diagf("no sink")
			tracef("no sink")
		})
	})
}

func TestAnalysisEmitsDiagnostics(t *testing.T) {
	defer SetLogWriters(nil, nil, nil)

	var diag, trace bytes.Buffer
	SetLogWriters(nil, &diag, &trace)

	_, err := AnalyzeSamples(stripSite(), DefaultConfig())
	require.NoError(t, err)

	out := diag.String()
	assert.Contains(t, out, "grid:")
	assert.Contains(t, out, "cutfill:")
	assert.Contains(t, out, "slopes:")
	assert.Contains(t, out, "haul:")
	assert.Contains(t, out, "cost:")

	// The strip fixture hauls its one cut column to its one fill column.
	assert.Contains(t, trace.String(), "haul 100.00 cy")
}
