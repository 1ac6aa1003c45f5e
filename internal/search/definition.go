package search

import (
	"slices"
	"strconv"
	"strings"

	"github.com/meur/compendium/internal/models"
)

// FieldKind is the type of a filterable attribute
type FieldKind int

const (
	Keyword FieldKind = iota
	Number
	Bool
)

func (k FieldKind) String() string {
	switch k {
	case Number:
		return "number"
	case Bool:
		return "bool"
	default:
		return "keyword"
	}
}

// SearchField is a full-text field and its relevance boost
type SearchField struct {
	Name  string
	Boost float64
}

// Definition describes how one entity type is indexed
type Definition struct {
	Name       string
	Searchable []SearchField
	Filterable map[string]FieldKind
	Sortable   map[string]string // sort key accepted by the API -> indexed field
}

// CanSort reports whether key is a sortable attribute
func (d Definition) CanSort(key string) bool {
	_, ok := d.Sortable[key]
	return ok
}

// SortKeys returns the sortable attributes in alphabetical order
func (d Definition) SortKeys() []string {
	keys := make([]string, 0, len(d.Sortable))
	for k := range d.Sortable {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// FilterKeys returns the filterable attributes in alphabetical order
func (d Definition) FilterKeys() []string {
	keys := make([]string, 0, len(d.Filterable))
	for k := range d.Filterable {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// sortNameField holds the normalized full name, used for name sorting and for
// boosting exact and leading name matches
const sortNameField = "sort_name"

func normalizeName(name string) string {
	return strings.Join(Tokenize(name), " ")
}

// Items indexes models.Item documents
var Items = Definition{
	Name: "items",
	Searchable: []SearchField{
		{Name: "name", Boost: 3},
		{Name: "type_name", Boost: 1},
		{Name: "description", Boost: 1},
	},
	Filterable: map[string]FieldKind{
		"id":                  Number,
		"slug":                Keyword,
		"type_code":           Keyword,
		"rarity":              Keyword,
		"requires_attunement": Bool,
		"is_magic":            Bool,
		"cost_cp":             Number,
		"weight":              Number,
	},
	Sortable: map[string]string{
		"id":      "id",
		"name":    sortNameField,
		"cost_cp": "cost_cp",
		"weight":  "weight",
	},
}

// Races indexes models.Race documents
var Races = Definition{
	Name: "races",
	Searchable: []SearchField{
		{Name: "name", Boost: 3},
		{Name: "parent_race_name", Boost: 1},
		{Name: "description", Boost: 1},
	},
	Filterable: map[string]FieldKind{
		"id":         Number,
		"slug":       Keyword,
		"size_code":  Keyword,
		"speed":      Number,
		"is_subrace": Bool,
	},
	Sortable: map[string]string{
		"id":    "id",
		"name":  sortNameField,
		"speed": "speed",
	},
}

// Definitions returns every indexed entity type
func Definitions() []Definition {
	return []Definition{Items, Races}
}

// Document is the denormalized copy of a record stored in an index
type Document struct {
	ID     int64
	Fields map[string]interface{}
}

func (d Document) key() string {
	return strconv.FormatInt(d.ID, 10)
}

// ItemDocument converts an item into its searchable document
func ItemDocument(item models.Item) Document {
	fields := map[string]interface{}{
		"id":                  float64(item.ID),
		"name":                item.Name,
		sortNameField:         normalizeName(item.Name),
		"slug":                item.Slug,
		"description":         item.Description,
		"rarity":              strings.ToLower(item.Rarity),
		"requires_attunement": item.RequiresAttunement,
		"is_magic":            item.IsMagic,
	}
	if item.ItemType != nil {
		fields["type_name"] = item.ItemType.Name
		fields["type_code"] = strings.ToLower(item.ItemType.Code)
	}
	if item.CostCP != nil {
		fields["cost_cp"] = float64(*item.CostCP)
	}
	if item.Weight != nil {
		fields["weight"] = *item.Weight
	}
	return Document{ID: item.ID, Fields: fields}
}

// RaceDocument converts a race into its searchable document
func RaceDocument(race models.Race) Document {
	fields := map[string]interface{}{
		"id":          float64(race.ID),
		"name":        race.Name,
		sortNameField: normalizeName(race.Name),
		"slug":        race.Slug,
		"description": race.Description,
		"size_code":   strings.ToLower(race.SizeCode),
		"speed":       float64(race.Speed),
		"is_subrace":  race.IsSubrace(),
	}
	if race.ParentRaceName != "" {
		fields["parent_race_name"] = race.ParentRaceName
	}
	return Document{ID: race.ID, Fields: fields}
}
