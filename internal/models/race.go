package models

import "time"

// Race represents a playable race or subrace
type Race struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Slug           string    `json:"slug"`
	SizeCode       string    `json:"size_code"`
	Speed          int       `json:"speed"`
	ParentRaceID   *int64    `json:"parent_race_id"`             // nil = base race
	ParentRaceName string    `json:"parent_race_name,omitempty"` // Filled by joins, not stored
	Description    string    `json:"description"`
	CreatedAt      time.Time `json:"created_at"`
}

// IsSubrace reports whether the race belongs to a parent race
func (r Race) IsSubrace() bool {
	return r.ParentRaceID != nil
}
