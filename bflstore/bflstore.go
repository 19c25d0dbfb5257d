// Package bflstore persists back focal length correction sets in SQLite.
//
// Corrections are measured per physical lens, so sets are keyed by the lens
// serial number. Saving never overwrites: each calibration session writes a
// new set and LatestSet returns the most recent one for a serial, keeping
// the full correction history available.
package bflstore

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/cliquot22/iqsmart"
)

// Set is one saved group of correction points for a lens.
type Set struct {
	SetID       string
	LensSerial  string
	Model       string
	Note        string
	CreatedAtNs int64
	Points      []iqsmart.BFLPoint
}

// Curve builds the correction curve described by the set's points.
func (s *Set) Curve() *iqsmart.BFLCurve {
	c := iqsmart.NewBFLCurve()
	c.SetPoints(s.Points)
	return c
}

// Store persists correction sets.
type Store struct {
	db    *sql.DB
	owned bool
}

// Open opens a correction database at path and migrates its schema to the
// latest version.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// In-memory databases exist per connection; a single pooled connection
	// keeps the schema visible to every query.
	db.SetMaxOpenConns(1)

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, owned: true}, nil
}

// NewStore wraps an existing database handle. The schema must already be
// applied and the handle stays owned by the caller.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close releases the database if the store opened it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

// SaveSet persists a new correction set. A missing SetID or CreatedAtNs is
// filled in. Point order is preserved.
func (s *Store) SaveSet(set *Set) error {
	if set.LensSerial == "" {
		return fmt.Errorf("save correction set: no lens serial")
	}
	if set.SetID == "" {
		set.SetID = uuid.New().String()
	}
	if set.CreatedAtNs == 0 {
		set.CreatedAtNs = time.Now().UnixNano()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO bfl_sets (set_id, lens_serial, model, note, created_at_ns)
		VALUES (?, ?, ?, ?, ?)`,
		set.SetID, set.LensSerial, set.Model, set.Note, set.CreatedAtNs)
	if err != nil {
		return fmt.Errorf("insert correction set: %w", err)
	}
	for i, p := range set.Points {
		_, err = tx.Exec(`
			INSERT INTO bfl_points (set_id, idx, focus_step, correction)
			VALUES (?, ?, ?, ?)`,
			set.SetID, i, p.Step, p.Correction)
		if err != nil {
			return fmt.Errorf("insert correction point %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// LatestSet returns the most recently saved set for a lens serial.
func (s *Store) LatestSet(lensSerial string) (*Set, error) {
	row := s.db.QueryRow(`
		SELECT set_id, lens_serial, model, note, created_at_ns
		FROM bfl_sets
		WHERE lens_serial = ?
		ORDER BY created_at_ns DESC
		LIMIT 1`, lensSerial)

	var set Set
	err := row.Scan(&set.SetID, &set.LensSerial, &set.Model, &set.Note, &set.CreatedAtNs)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("no correction sets for lens %q", lensSerial)
		}
		return nil, fmt.Errorf("scan correction set: %w", err)
	}
	if err := s.loadPoints(&set); err != nil {
		return nil, err
	}
	return &set, nil
}

// GetSet returns a set by ID.
func (s *Store) GetSet(setID string) (*Set, error) {
	row := s.db.QueryRow(`
		SELECT set_id, lens_serial, model, note, created_at_ns
		FROM bfl_sets
		WHERE set_id = ?`, setID)

	var set Set
	err := row.Scan(&set.SetID, &set.LensSerial, &set.Model, &set.Note, &set.CreatedAtNs)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("correction set %s not found", setID)
		}
		return nil, fmt.Errorf("scan correction set: %w", err)
	}
	if err := s.loadPoints(&set); err != nil {
		return nil, err
	}
	return &set, nil
}

// ListSets returns the sets for a lens serial, newest first. An empty serial
// lists every lens.
func (s *Store) ListSets(lensSerial string) ([]*Set, error) {
	query := `
		SELECT set_id, lens_serial, model, note, created_at_ns
		FROM bfl_sets`
	var args []interface{}
	if lensSerial != "" {
		query += ` WHERE lens_serial = ?`
		args = append(args, lensSerial)
	}
	query += ` ORDER BY created_at_ns DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query correction sets: %w", err)
	}
	defer rows.Close()

	var sets []*Set
	for rows.Next() {
		var set Set
		if err := rows.Scan(&set.SetID, &set.LensSerial, &set.Model, &set.Note, &set.CreatedAtNs); err != nil {
			return nil, fmt.Errorf("scan correction set row: %w", err)
		}
		sets = append(sets, &set)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// The single pooled connection is still held while rows are open, so
	// point queries run only after the cursor is closed.
	rows.Close()

	for _, set := range sets {
		if err := s.loadPoints(set); err != nil {
			return nil, err
		}
	}
	return sets, nil
}

// DeleteSet removes a set and its points.
func (s *Store) DeleteSet(setID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM bfl_points WHERE set_id = ?`, setID); err != nil {
		return fmt.Errorf("delete correction points: %w", err)
	}
	result, err := tx.Exec(`DELETE FROM bfl_sets WHERE set_id = ?`, setID)
	if err != nil {
		return fmt.Errorf("delete correction set: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("correction set %s not found", setID)
	}
	return tx.Commit()
}

func (s *Store) loadPoints(set *Set) error {
	rows, err := s.db.Query(`
		SELECT focus_step, correction
		FROM bfl_points
		WHERE set_id = ?
		ORDER BY idx`, set.SetID)
	if err != nil {
		return fmt.Errorf("query correction points: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p iqsmart.BFLPoint
		if err := rows.Scan(&p.Step, &p.Correction); err != nil {
			return fmt.Errorf("scan correction point: %w", err)
		}
		set.Points = append(set.Points, p)
	}
	return rows.Err()
}
