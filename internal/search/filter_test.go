package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFilter(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		want    Filter
		wantErr bool
	}{
		{name: "empty", expr: "  ", want: nil},
		{name: "single clause", expr: "rarity = rare", want: Filter{{Field: "rarity", Op: "=", Value: "rare"}}},
		{name: "no spaces", expr: "cost_cp>=100", want: Filter{{Field: "cost_cp", Op: ">=", Value: "100"}}},
		{
			name: "conjunction",
			expr: "is_magic = true and weight < 2.5",
			want: Filter{
				{Field: "is_magic", Op: "=", Value: "true"},
				{Field: "weight", Op: "<", Value: "2.5"},
			},
		},
		{name: "quoted value", expr: `type_code = "LA"`, want: Filter{{Field: "type_code", Op: "=", Value: "LA"}}},
		{name: "unknown attribute", expr: "description = sharp", wantErr: true},
		{name: "number expected", expr: "cost_cp > cheap", wantErr: true},
		{name: "bool expected", expr: "is_magic = maybe", wantErr: true},
		{name: "range on keyword", expr: "rarity > common", wantErr: true},
		{name: "range on bool", expr: "is_magic >= true", wantErr: true},
		{name: "garbage", expr: "rarity", wantErr: true},
		{name: "doubled and", expr: "rarity = rare AND AND is_magic = true", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFilter(Items, tt.expr)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidFilter)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFilter_RaceAttributes(t *testing.T) {
	f, err := ParseFilter(Races, "is_subrace = false AND speed != 30")
	require.NoError(t, err)
	assert.Len(t, f, 2)

	_, err = ParseFilter(Races, "rarity = rare")
	assert.ErrorIs(t, err, ErrInvalidFilter)
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"potion", "of", "healing", "greater"}, Tokenize("Potion of Healing (Greater)"))
	assert.Equal(t, []string{"half", "elf"}, Tokenize("Half-Elf"))
	assert.Equal(t, []string{"1", "shield"}, Tokenize("+1 Shield"))
	assert.Empty(t, Tokenize("  --  "))
	assert.Equal(t, []string{"alchemist's", "fire"}, Tokenize("Alchemist's Fire"))
}

func TestTokenize_MatchesIndexAnalyzer(t *testing.T) {
	m, err := buildMapping(Items)
	require.NoError(t, err)
	indexed := m.AnalyzerNamed(textAnalyzer)
	require.NotNil(t, indexed)

	for _, text := range []string{
		"Alchemist's Fire",
		"Thieves' Tools",
		"Dwarf\u2019s Axe",
		"+1 Shield",
		"Half-Elf",
		"Potion of Healing (Greater)",
		"Caf\u00e9 Au Lait 3.5",
	} {
		var want []string
		for _, tok := range indexed.Analyze([]byte(text)) {
			want = append(want, string(tok.Term))
		}
		assert.Equal(t, want, Tokenize(text), text)
	}
}

func TestFingerprint(t *testing.T) {
	assert.Equal(t, Fingerprint(Items), Fingerprint(Items))
	assert.NotEqual(t, Fingerprint(Items), Fingerprint(Races))

	reordered := Items
	reordered.Searchable = []SearchField{Items.Searchable[2], Items.Searchable[0], Items.Searchable[1]}
	assert.Equal(t, Fingerprint(Items), Fingerprint(reordered), "field order does not matter")

	boosted := Items
	boosted.Searchable = append([]SearchField(nil), Items.Searchable...)
	boosted.Searchable[0].Boost = 10
	assert.NotEqual(t, Fingerprint(Items), Fingerprint(boosted))
}

func TestDefinitions_FieldNamesDoNotClash(t *testing.T) {
	for _, def := range Definitions() {
		seen := map[string]bool{sortNameField: true}
		for _, f := range def.Searchable {
			assert.False(t, seen[f.Name], "%s: %s mapped twice", def.Name, f.Name)
			seen[f.Name] = true
		}
		for name := range def.Filterable {
			assert.False(t, seen[name], "%s: %s mapped twice", def.Name, name)
			seen[name] = true
		}
		for key, field := range def.Sortable {
			assert.True(t, seen[field], "%s: sort key %s points at unmapped field %s", def.Name, key, field)
		}
	}
}
