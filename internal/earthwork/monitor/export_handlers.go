package monitor

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gradeworks/gradeplan/internal/earthwork"
	"github.com/gradeworks/gradeplan/internal/security"
)

// handleExportRun writes the targeted run's per-cell requirements or haul
// assignments to a CSV file under the temp directory. The destination path is
// generated internally so user-controlled data never names a filesystem
// location directly; the run ID is sanitized before it is embedded in the
// file name.
// Query params:
//
//	run_id (optional; defaults to the most recent run)
//	kind (optional; "cells" or "assignments", default cells)
func (ws *WebServer) handleExportRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	result, run, ok := ws.loadRunResult(w, r)
	if !ok {
		return
	}

	kind := r.URL.Query().Get("kind")
	if kind == "" {
		kind = "cells"
	}

	var records [][]string
	switch kind {
	case "cells":
		records = cellRecords(result)
	case "assignments":
		records = assignmentRecords(result)
	default:
		ws.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("unknown export kind %q", kind))
		return
	}

	name := fmt.Sprintf("export_%s_%s.csv", security.SanitizeFilename(run.RunID), kind)
	path := filepath.Join(os.TempDir(), name)
	if err := security.ValidateExportPath(path); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("export path: %v", err))
		return
	}

	if err := writeCSVFile(path, records); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("export error: %v", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "ok",
		"path":   path,
		"rows":   len(records) - 1,
	})
}

// cellRecords flattens per-cell requirements into CSV records, header first.
func cellRecords(result *earthwork.GradingResult) [][]string {
	records := make([][]string, 0, len(result.Cells)+1)
	records = append(records, []string{"row", "col", "center_x_ft", "center_y_ft", "depth_ft", "volume_cy", "direction"})
	for _, c := range result.Cells {
		records = append(records, []string{
			strconv.Itoa(c.Row),
			strconv.Itoa(c.Col),
			formatFloat(c.CenterXFt),
			formatFloat(c.CenterYFt),
			formatFloat(c.DepthFt),
			formatFloat(c.VolumeCy),
			string(c.Direction),
		})
	}
	return records
}

// assignmentRecords flattens the haul plan into CSV records, header first.
func assignmentRecords(result *earthwork.GradingResult) [][]string {
	records := make([][]string, 0, len(result.Assignments)+1)
	records = append(records, []string{"source_row", "source_col", "sink_row", "sink_col", "volume_cy", "distance_ft", "haul_cost"})
	for _, a := range result.Assignments {
		records = append(records, []string{
			strconv.Itoa(a.Source.Row),
			strconv.Itoa(a.Source.Col),
			strconv.Itoa(a.Sink.Row),
			strconv.Itoa(a.Sink.Col),
			formatFloat(a.VolumeCy),
			formatFloat(a.DistanceFt),
			formatFloat(a.HaulCost),
		})
	}
	return records
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func writeCSVFile(path string, records [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.WriteAll(records); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}
