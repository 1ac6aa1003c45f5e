// Package seed loads compendium records from a YAML file into the store.
//
// Records are upserted by slug, so applying the same file twice leaves the
// database unchanged.
package seed

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/meur/compendium/internal/models"
	"github.com/meur/compendium/internal/slug"
)

// File is the document layout of a seed file
type File struct {
	ItemTypes []ItemType `yaml:"item_types"`
	Items     []Item     `yaml:"items"`
	Races     []Race     `yaml:"races"`
}

type ItemType struct {
	Code string `yaml:"code"`
	Name string `yaml:"name"`
}

type Item struct {
	Name               string   `yaml:"name"`
	Slug               string   `yaml:"slug"`
	Type               string   `yaml:"type"`
	Rarity             string   `yaml:"rarity"`
	RequiresAttunement bool     `yaml:"requires_attunement"`
	Magic              bool     `yaml:"magic"`
	CostCP             *int     `yaml:"cost_cp"`
	Weight             *float64 `yaml:"weight"`
	Description        string   `yaml:"description"`
}

type Race struct {
	Name        string `yaml:"name"`
	Slug        string `yaml:"slug"`
	Size        string `yaml:"size"`
	Speed       int    `yaml:"speed"`
	Description string `yaml:"description"`
	Subraces    []Race `yaml:"subraces"`
}

// Summary counts the records written by Apply
type Summary struct {
	ItemTypes int `json:"item_types"`
	Items     int `json:"items"`
	Races     int `json:"races"`
}

// Store is the part of storage.Store used for seeding
type Store interface {
	UpsertItemType(ctx context.Context, t *models.ItemType) error
	BulkUpsertItems(ctx context.Context, items []models.Item) error
	UpsertRace(ctx context.Context, race *models.Race) error
}

// Load reads and validates a seed file
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes and validates seed data
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks references and required fields
func (f *File) Validate() error {
	var errs []error

	codes := make(map[string]bool, len(f.ItemTypes))
	for i, t := range f.ItemTypes {
		if t.Code == "" || t.Name == "" {
			errs = append(errs, fmt.Errorf("item_types[%d]: code and name are required", i))
		}
		codes[t.Code] = true
	}

	slugs := make(map[string]bool)
	for i, item := range f.Items {
		if item.Name == "" {
			errs = append(errs, fmt.Errorf("items[%d]: name is required", i))
			continue
		}
		if !codes[item.Type] {
			errs = append(errs, fmt.Errorf("items[%d] %q: unknown item type %q", i, item.Name, item.Type))
		}
		s := itemSlug(item)
		if slugs[s] {
			errs = append(errs, fmt.Errorf("items[%d] %q: duplicate slug %q", i, item.Name, s))
		}
		slugs[s] = true
	}

	slugs = make(map[string]bool)
	var checkRace func(path string, r Race, subrace bool)
	checkRace = func(path string, r Race, subrace bool) {
		if r.Name == "" {
			errs = append(errs, fmt.Errorf("%s: name is required", path))
			return
		}
		if !subrace && r.Size == "" {
			errs = append(errs, fmt.Errorf("%s %q: size is required", path, r.Name))
		}
		if subrace && len(r.Subraces) > 0 {
			errs = append(errs, fmt.Errorf("%s %q: subraces cannot be nested", path, r.Name))
		}
		s := raceSlug(r)
		if slugs[s] {
			errs = append(errs, fmt.Errorf("%s %q: duplicate slug %q", path, r.Name, s))
		}
		slugs[s] = true
		for j, sub := range r.Subraces {
			checkRace(fmt.Sprintf("%s.subraces[%d]", path, j), sub, true)
		}
	}
	for i, r := range f.Races {
		checkRace(fmt.Sprintf("races[%d]", i), r, false)
	}

	return errors.Join(errs...)
}

func itemSlug(item Item) string {
	if item.Slug != "" {
		return item.Slug
	}
	return slug.Make(item.Name)
}

func raceSlug(r Race) string {
	if r.Slug != "" {
		return r.Slug
	}
	return slug.Make(r.Name)
}

// Apply upserts every record of f. Subraces inherit size and speed from their
// parent unless they set their own.
func Apply(ctx context.Context, store Store, f *File) (Summary, error) {
	var sum Summary

	typeIDs := make(map[string]int64, len(f.ItemTypes))
	for _, t := range f.ItemTypes {
		it := models.ItemType{Code: t.Code, Name: t.Name}
		if err := store.UpsertItemType(ctx, &it); err != nil {
			return sum, fmt.Errorf("item type %s: %w", t.Code, err)
		}
		typeIDs[t.Code] = it.ID
		sum.ItemTypes++
	}

	items := make([]models.Item, 0, len(f.Items))
	for _, item := range f.Items {
		items = append(items, models.Item{
			Name:               item.Name,
			Slug:               itemSlug(item),
			ItemTypeID:         typeIDs[item.Type],
			Rarity:             item.Rarity,
			RequiresAttunement: item.RequiresAttunement,
			IsMagic:            item.Magic,
			CostCP:             item.CostCP,
			Weight:             item.Weight,
			Description:        item.Description,
		})
	}
	if len(items) > 0 {
		if err := store.BulkUpsertItems(ctx, items); err != nil {
			return sum, err
		}
		sum.Items = len(items)
	}

	for _, r := range f.Races {
		parent := models.Race{
			Name:        r.Name,
			Slug:        raceSlug(r),
			SizeCode:    r.Size,
			Speed:       r.Speed,
			Description: r.Description,
		}
		if err := store.UpsertRace(ctx, &parent); err != nil {
			return sum, fmt.Errorf("race %s: %w", r.Name, err)
		}
		sum.Races++

		for _, s := range r.Subraces {
			sub := models.Race{
				Name:         s.Name,
				Slug:         raceSlug(s),
				SizeCode:     s.Size,
				Speed:        s.Speed,
				ParentRaceID: &parent.ID,
				Description:  s.Description,
			}
			if sub.SizeCode == "" {
				sub.SizeCode = parent.SizeCode
			}
			if sub.Speed == 0 {
				sub.Speed = parent.Speed
			}
			if err := store.UpsertRace(ctx, &sub); err != nil {
				return sum, fmt.Errorf("subrace %s: %w", s.Name, err)
			}
			sum.Races++
		}
	}

	return sum, nil
}
