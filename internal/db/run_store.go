package db

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/gradeworks/gradeplan/internal/timeutil"
)

// GradingRun is one persisted analysis: identity, the headline earthwork
// numbers used by listings, and the full result document for retrieval.
type GradingRun struct {
	RunID        string          `json:"run_id"`
	SiteID       *int            `json:"site_id,omitempty"`
	Source       string          `json:"source"`
	SampleCount  int             `json:"sample_count"`
	TotalCutCy   float64         `json:"total_cut_cy"`
	TotalFillCy  float64         `json:"total_fill_cy"`
	NetCy        float64         `json:"net_cy"`
	TotalCostUSD float64         `json:"total_cost_usd"`
	ElapsedMs    int64           `json:"elapsed_ms"`
	ResultJSON   json.RawMessage `json:"result_json,omitempty"`
	CreatedAtNs  int64           `json:"created_at_ns"`
}

// RunStore provides persistence for grading runs.
type RunStore struct {
	db    *sql.DB
	clock timeutil.Clock
}

// NewRunStore creates a RunStore backed by the given database.
func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db, clock: timeutil.RealClock{}}
}

// InsertRun creates a new grading run. An empty RunID gets a fresh UUID and
// a zero CreatedAtNs is stamped from the store clock.
func (s *RunStore) InsertRun(run *GradingRun) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAtNs == 0 {
		run.CreatedAtNs = s.clock.Now().UnixNano()
	}
	if run.Source == "" {
		run.Source = "api"
	}

	query := `
		INSERT INTO grading_runs (
			run_id, site_id, source, sample_count,
			total_cut_cy, total_fill_cy, net_cy, total_cost_usd,
			elapsed_ms, result_json, created_at_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		run.RunID,
		run.SiteID,
		run.Source,
		run.SampleCount,
		run.TotalCutCy,
		run.TotalFillCy,
		run.NetCy,
		run.TotalCostUSD,
		run.ElapsedMs,
		nullString(string(run.ResultJSON)),
		run.CreatedAtNs,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	return nil
}

// GetRun retrieves a run by ID, including the full result document.
func (s *RunStore) GetRun(runID string) (*GradingRun, error) {
	query := `
		SELECT run_id, site_id, source, sample_count,
		       total_cut_cy, total_fill_cy, net_cy, total_cost_usd,
		       elapsed_ms, result_json, created_at_ns
		FROM grading_runs
		WHERE run_id = ?
	`

	var run GradingRun
	var siteID sql.NullInt64
	var resultJSON sql.NullString

	err := s.db.QueryRow(query, runID).Scan(
		&run.RunID,
		&siteID,
		&run.Source,
		&run.SampleCount,
		&run.TotalCutCy,
		&run.TotalFillCy,
		&run.NetCy,
		&run.TotalCostUSD,
		&run.ElapsedMs,
		&resultJSON,
		&run.CreatedAtNs,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}

	if siteID.Valid {
		v := int(siteID.Int64)
		run.SiteID = &v
	}
	if resultJSON.Valid && resultJSON.String != "" {
		run.ResultJSON = json.RawMessage(resultJSON.String)
	}

	return &run, nil
}

// ListRuns retrieves run summaries newest first, optionally filtered by
// site. The result document is omitted from listings; fetch a single run
// for the full payload. A non-positive limit falls back to 50.
func (s *RunStore) ListRuns(siteID *int, limit int) ([]*GradingRun, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT run_id, site_id, source, sample_count,
		       total_cut_cy, total_fill_cy, net_cy, total_cost_usd,
		       elapsed_ms, created_at_ns
		FROM grading_runs
	`
	var args []interface{}
	if siteID != nil {
		query += ` WHERE site_id = ?`
		args = append(args, *siteID)
	}
	query += ` ORDER BY created_at_ns DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*GradingRun
	for rows.Next() {
		var run GradingRun
		var rowSiteID sql.NullInt64

		err := rows.Scan(
			&run.RunID,
			&rowSiteID,
			&run.Source,
			&run.SampleCount,
			&run.TotalCutCy,
			&run.TotalFillCy,
			&run.NetCy,
			&run.TotalCostUSD,
			&run.ElapsedMs,
			&run.CreatedAtNs,
		)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}

		if rowSiteID.Valid {
			v := int(rowSiteID.Int64)
			run.SiteID = &v
		}

		runs = append(runs, &run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs rows: %w", err)
	}

	return runs, nil
}

// DeleteRun deletes a run by ID.
func (s *RunStore) DeleteRun(runID string) error {
	result, err := s.db.Exec(`DELETE FROM grading_runs WHERE run_id = ?`, runID)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check delete result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run not found: %s", runID)
	}

	return nil
}

// nullString converts empty strings to NULL for storage.
func nullString(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}
