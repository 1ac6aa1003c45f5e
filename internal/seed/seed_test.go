package seed

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meur/compendium/internal/storage"
)

const sample = `
item_types:
  - code: M
    name: Melee Weapon
items:
  - name: Longsword
    type: M
    rarity: common
    cost_cp: 1500
    weight: 3
  - name: Vorpal Sword
    type: M
    rarity: legendary
    requires_attunement: true
    magic: true
races:
  - name: Dwarf
    size: M
    speed: 25
    subraces:
      - name: Hill Dwarf
      - name: Fast Dwarf
        speed: 35
  - name: Elf
    size: M
`

func setupTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.New(filepath.Join(t.TempDir(), "seed-test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, store.Close()) })
	return store
}

func TestApply(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	f, err := Parse([]byte(sample))
	require.NoError(t, err)

	sum, err := Apply(ctx, store, f)
	require.NoError(t, err)
	assert.Equal(t, Summary{ItemTypes: 1, Items: 2, Races: 4}, sum)

	vorpal, err := store.GetItem(ctx, "vorpal-sword")
	require.NoError(t, err)
	assert.True(t, vorpal.IsMagic)
	assert.True(t, vorpal.RequiresAttunement)
	assert.Nil(t, vorpal.CostCP)
	assert.Equal(t, "Melee Weapon", vorpal.ItemType.Name)

	hill, err := store.GetRace(ctx, "hill-dwarf")
	require.NoError(t, err)
	assert.Equal(t, "Dwarf", hill.ParentRaceName)
	assert.Equal(t, 25, hill.Speed, "inherited from the parent")
	assert.Equal(t, "M", hill.SizeCode)

	fast, err := store.GetRace(ctx, "fast-dwarf")
	require.NoError(t, err)
	assert.Equal(t, 35, fast.Speed)

	elf, err := store.GetRace(ctx, "elf")
	require.NoError(t, err)
	assert.Equal(t, 30, elf.Speed, "default walking speed")
}

func TestApply_Idempotent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	f, err := Parse([]byte(sample))
	require.NoError(t, err)

	_, err = Apply(ctx, store, f)
	require.NoError(t, err)
	_, err = Apply(ctx, store, f)
	require.NoError(t, err)

	_, items, err := store.ListItems(ctx, storage.ListOptions{Page: 1, PerPage: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, items)
	_, races, err := store.ListRaces(ctx, storage.ListOptions{Page: 1, PerPage: 10})
	require.NoError(t, err)
	assert.Equal(t, 4, races)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{name: "malformed", yaml: "items: [", want: "parse seed file"},
		{name: "unknown type", yaml: "items:\n  - name: Club\n    type: Z\n", want: `unknown item type "Z"`},
		{
			name: "duplicate item slug",
			yaml: "item_types: [{code: M, name: Melee}]\nitems:\n  - {name: Club, type: M}\n  - {name: club, type: M}\n",
			want: "duplicate slug",
		},
		{name: "race without size", yaml: "races:\n  - name: Gnome\n", want: "size is required"},
		{
			name: "nested subrace",
			yaml: "races:\n  - name: Elf\n    size: M\n    subraces:\n      - name: High Elf\n        subraces: [{name: Higher Elf}]\n",
			want: "cannot be nested",
		},
		{name: "type without code", yaml: "item_types:\n  - name: Melee\n", want: "code and name are required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_BundledSeedFile(t *testing.T) {
	f, err := Load(filepath.Join("..", "..", "seeds", "compendium.yaml"))
	require.NoError(t, err)
	assert.NotEmpty(t, f.Items)
	assert.NotEmpty(t, f.Races)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
