package models

import "time"

// ItemType classifies items (melee weapon, heavy armor, potion, ...)
type ItemType struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

// Item represents a piece of equipment or magic item
type Item struct {
	ID                 int64     `json:"id"`
	Name               string    `json:"name"`
	Slug               string    `json:"slug"`
	ItemTypeID         int64     `json:"item_type_id"`
	ItemType           *ItemType `json:"item_type,omitempty"`
	Rarity             string    `json:"rarity"`
	RequiresAttunement bool      `json:"requires_attunement"`
	IsMagic            bool      `json:"is_magic"`
	CostCP             *int      `json:"cost_cp"` // Cost in copper pieces, nil when priceless
	Weight             *float64  `json:"weight"`  // Pounds
	Description        string    `json:"description"`
	CreatedAt          time.Time `json:"created_at"`
}
