package db

import (
	"database/sql"
	"fmt"
	"time"
)

// Site is a construction site whose terrain gets analyzed. Grading runs
// reference a site by ID; the optional fields feed the viability verdict
// and the report header, not the engine math.
type Site struct {
	ID            int       `json:"id"`
	Name          string    `json:"name"`
	Location      string    `json:"location"`
	Notes         *string   `json:"notes"`
	ParcelAreaAc  *float64  `json:"parcel_area_ac"`
	AnnualRentUSD *float64  `json:"annual_rent_usd"`
	FloodProne    bool      `json:"flood_prone"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CreateSite inserts a new site and sets its assigned ID.
func (db *DB) CreateSite(site *Site) error {
	query := `
		INSERT INTO sites (
			name, location, notes, parcel_area_ac, annual_rent_usd, flood_prone
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	floodProneInt := 0
	if site.FloodProne {
		floodProneInt = 1
	}

	result, err := db.DB.Exec(
		query,
		site.Name,
		site.Location,
		site.Notes,
		site.ParcelAreaAc,
		site.AnnualRentUSD,
		floodProneInt,
	)
	if err != nil {
		return fmt.Errorf("failed to create site: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}

	site.ID = int(id)
	return nil
}

// GetSite retrieves a site by ID.
func (db *DB) GetSite(id int) (*Site, error) {
	query := `
		SELECT
			id, name, location, notes, parcel_area_ac, annual_rent_usd,
			flood_prone, created_at, updated_at
		FROM sites
		WHERE id = ?
	`

	var site Site
	var floodProneInt int
	var createdAtUnix, updatedAtUnix int64

	err := db.DB.QueryRow(query, id).Scan(
		&site.ID,
		&site.Name,
		&site.Location,
		&site.Notes,
		&site.ParcelAreaAc,
		&site.AnnualRentUSD,
		&floodProneInt,
		&createdAtUnix,
		&updatedAtUnix,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("site not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get site: %w", err)
	}

	site.FloodProne = floodProneInt == 1
	site.CreatedAt = time.Unix(createdAtUnix, 0)
	site.UpdatedAt = time.Unix(updatedAtUnix, 0)

	return &site, nil
}

// GetAllSites retrieves all sites ordered by name.
func (db *DB) GetAllSites() ([]Site, error) {
	query := `
		SELECT
			id, name, location, notes, parcel_area_ac, annual_rent_usd,
			flood_prone, created_at, updated_at
		FROM sites
		ORDER BY name ASC
	`

	rows, err := db.DB.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query sites: %w", err)
	}
	defer rows.Close()

	var sites []Site
	for rows.Next() {
		var site Site
		var floodProneInt int
		var createdAtUnix, updatedAtUnix int64

		err := rows.Scan(
			&site.ID,
			&site.Name,
			&site.Location,
			&site.Notes,
			&site.ParcelAreaAc,
			&site.AnnualRentUSD,
			&floodProneInt,
			&createdAtUnix,
			&updatedAtUnix,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan site: %w", err)
		}

		site.FloodProne = floodProneInt == 1
		site.CreatedAt = time.Unix(createdAtUnix, 0)
		site.UpdatedAt = time.Unix(updatedAtUnix, 0)

		sites = append(sites, site)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sites: %w", err)
	}

	return sites, nil
}

// UpdateSite updates an existing site in place.
func (db *DB) UpdateSite(site *Site) error {
	query := `
		UPDATE sites SET
			name = ?,
			location = ?,
			notes = ?,
			parcel_area_ac = ?,
			annual_rent_usd = ?,
			flood_prone = ?,
			updated_at = strftime('%s', 'now')
		WHERE id = ?
	`

	floodProneInt := 0
	if site.FloodProne {
		floodProneInt = 1
	}

	result, err := db.DB.Exec(
		query,
		site.Name,
		site.Location,
		site.Notes,
		site.ParcelAreaAc,
		site.AnnualRentUSD,
		floodProneInt,
		site.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update site: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("site not found")
	}

	return nil
}

// DeleteSite deletes a site. Runs that referenced it keep their data with
// the site link cleared (ON DELETE SET NULL).
func (db *DB) DeleteSite(id int) error {
	query := `DELETE FROM sites WHERE id = ?`

	result, err := db.DB.Exec(query, id)
	if err != nil {
		return fmt.Errorf("failed to delete site: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("site not found")
	}

	return nil
}
