package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/meur/compendium/internal/models"
	"github.com/meur/compendium/internal/slug"
)

const raceColumns = `
	r.id, r.name, r.slug, r.size_code, r.speed, r.parent_race_id, COALESCE(p.name, ''),
	r.description, r.created_at
	FROM races r LEFT JOIN races p ON p.id = r.parent_race_id`

var raceSortColumns = map[string]string{
	"id":    "r.id",
	"name":  "r.name COLLATE NOCASE",
	"speed": "r.speed",
}

func scanRace(row scanner) (models.Race, error) {
	var race models.Race
	var parentID sql.NullInt64

	err := row.Scan(&race.ID, &race.Name, &race.Slug, &race.SizeCode, &race.Speed, &parentID,
		&race.ParentRaceName, &race.Description, &race.CreatedAt)
	if err != nil {
		return race, err
	}
	if parentID.Valid {
		id := parentID.Int64
		race.ParentRaceID = &id
	}
	return race, nil
}

func collectRaces(rows *sql.Rows) ([]models.Race, error) {
	defer rows.Close()

	races := []models.Race{}
	for rows.Next() {
		race, err := scanRace(rows)
		if err != nil {
			return nil, err
		}
		races = append(races, race)
	}
	return races, rows.Err()
}

// CreateRace inserts a new race. The slug is derived from the name when empty
// and suffixed until it is unique.
func (s *Store) CreateRace(ctx context.Context, race *models.Race) error {
	base := race.Slug
	if base == "" {
		base = slug.Make(race.Name)
	}
	unique, err := slug.Unique(base, func(c string) (bool, error) {
		return s.exists(ctx, `SELECT 1 FROM races WHERE slug = ?`, c)
	})
	if err != nil {
		return fmt.Errorf("slug for race %q: %w", race.Name, err)
	}
	race.Slug = unique
	race.CreatedAt = time.Now().UTC()
	if race.Speed == 0 {
		race.Speed = 30
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO races (name, slug, size_code, speed, parent_race_id, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, race.Name, race.Slug, race.SizeCode, race.Speed, nullID(race.ParentRaceID), race.Description, race.CreatedAt)
	if err != nil {
		return err
	}
	race.ID, err = res.LastInsertId()
	return err
}

// UpsertRace creates or updates a race keyed by its slug
func (s *Store) UpsertRace(ctx context.Context, race *models.Race) error {
	if race.Slug == "" {
		race.Slug = slug.Make(race.Name)
	}
	if race.Slug == "" {
		return fmt.Errorf("race %q has no usable slug", race.Name)
	}
	if race.Speed == 0 {
		race.Speed = 30
	}

	return s.db.QueryRowContext(ctx, `
		INSERT INTO races (name, slug, size_code, speed, parent_race_id, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET
			name = excluded.name,
			size_code = excluded.size_code,
			speed = excluded.speed,
			parent_race_id = excluded.parent_race_id,
			description = excluded.description
		RETURNING id
	`, race.Name, race.Slug, race.SizeCode, race.Speed, nullID(race.ParentRaceID), race.Description,
		time.Now().UTC()).Scan(&race.ID)
}

// ListRaces returns one page of races in store order and the total count
func (s *Store) ListRaces(ctx context.Context, opts ListOptions) ([]models.Race, int, error) {
	order, err := orderClause(raceSortColumns, "r.id", opts)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM races`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+raceColumns+` `+order+` LIMIT ? OFFSET ?`,
		opts.PerPage, opts.offset())
	if err != nil {
		return nil, 0, err
	}
	races, err := collectRaces(rows)
	if err != nil {
		return nil, 0, err
	}
	return races, total, nil
}

// RacesByIDs loads the given races, preserving the order of ids
func (s *Store) RacesByIDs(ctx context.Context, ids []int64) ([]models.Race, error) {
	if len(ids) == 0 {
		return []models.Race{}, nil
	}

	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+raceColumns+` WHERE r.id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, err
	}
	found, err := collectRaces(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]models.Race, len(found))
	for _, race := range found {
		byID[race.ID] = race
	}
	ordered := make([]models.Race, 0, len(found))
	for _, id := range ids {
		if race, ok := byID[id]; ok {
			ordered = append(ordered, race)
		}
	}
	return ordered, nil
}

// GetRace returns a race by numeric id or slug
func (s *Store) GetRace(ctx context.Context, idOrSlug string) (*models.Race, error) {
	// Slugs may look like ids, "1984" for instance, so an id miss falls
	// back to the slug
	if id, err := strconv.ParseInt(idOrSlug, 10, 64); err == nil {
		race, err := scanRace(s.db.QueryRowContext(ctx, `SELECT `+raceColumns+` WHERE r.id = ?`, id))
		if err == nil {
			return &race, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
	}

	race, err := scanRace(s.db.QueryRowContext(ctx, `SELECT `+raceColumns+` WHERE r.slug = ?`, idOrSlug))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &race, nil
}

// GetSubraces returns the subraces of a race ordered by name
func (s *Store) GetSubraces(ctx context.Context, parentID int64) ([]models.Race, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+raceColumns+` WHERE r.parent_race_id = ? ORDER BY r.name, r.id`, parentID)
	if err != nil {
		return nil, err
	}
	return collectRaces(rows)
}

// EachRaceChunk walks all races in id order, size records at a time
func (s *Store) EachRaceChunk(ctx context.Context, size int, fn func([]models.Race) error) error {
	if size <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", size)
	}

	var lastID int64
	for {
		rows, err := s.db.QueryContext(ctx,
			`SELECT `+raceColumns+` WHERE r.id > ? ORDER BY r.id LIMIT ?`, lastID, size)
		if err != nil {
			return err
		}
		chunk, err := collectRaces(rows)
		if err != nil {
			return err
		}
		if len(chunk) == 0 {
			return nil
		}
		if err := fn(chunk); err != nil {
			return err
		}
		if len(chunk) < size {
			return nil
		}
		lastID = chunk[len(chunk)-1].ID
	}
}
