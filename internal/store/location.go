package store

import (
	"database/sql"
	"fmt"

	"github.com/dorholt/larder/internal/model"
)

type LocationStore struct {
	db *sql.DB
}

func NewLocationStore(db *sql.DB) *LocationStore {
	return &LocationStore{db: db}
}

func scanLocation(scanner interface{ Scan(...any) error }) (*model.Location, error) {
	var l model.Location
	err := scanner.Scan(&l.ID, &l.HouseholdID, &l.Name, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

const locationCols = `id, household_id, name, created_at`

func (s *LocationStore) Create(householdID int64, name string) (*model.Location, error) {
	result, err := s.db.Exec(`INSERT INTO locations (household_id, name) VALUES (?, ?)`, householdID, name)
	if err != nil {
		return nil, fmt.Errorf("insert location: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *LocationStore) GetByID(id int64) (*model.Location, error) {
	row := s.db.QueryRow(`SELECT `+locationCols+` FROM locations WHERE id = ?`, id)
	l, err := scanLocation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get location: %w", err)
	}
	return l, nil
}

func (s *LocationStore) ListByHousehold(householdID int64) ([]model.Location, error) {
	rows, err := s.db.Query(
		`SELECT `+locationCols+` FROM locations WHERE household_id = ? ORDER BY name ASC`,
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	defer rows.Close()

	var locations []model.Location
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		locations = append(locations, *l)
	}
	return locations, rows.Err()
}
