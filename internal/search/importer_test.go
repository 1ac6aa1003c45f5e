package search

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meur/compendium/internal/models"
)

type fakeStore struct {
	items []models.Item
	races []models.Race
}

func (f fakeStore) EachItemChunk(_ context.Context, size int, fn func([]models.Item) error) error {
	for start := 0; start < len(f.items); start += size {
		end := min(start+size, len(f.items))
		if err := fn(f.items[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (f fakeStore) EachRaceChunk(_ context.Context, size int, fn func([]models.Race) error) error {
	for start := 0; start < len(f.races); start += size {
		end := min(start+size, len(f.races))
		if err := fn(f.races[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func newTestImporter(e *Engine, store fakeStore, chunkSize int) *Importer {
	return NewImporter(e, chunkSize, map[string]Source{
		Items.Name: ItemSource(store),
		Races.Name: RaceSource(store),
	})
}

func TestImport(t *testing.T) {
	e := setupTestEngine(t)
	im := newTestImporter(e, fakeStore{items: testItems()}, 2)

	report, err := im.Import(context.Background(), Items.Name)
	require.NoError(t, err)
	assert.Equal(t, Items.Name, report.Entity)
	assert.Equal(t, "items", report.Index)
	assert.Equal(t, 5, report.Indexed)
	assert.Equal(t, 3, report.Chunks)
	_, err = uuid.Parse(report.RunID)
	assert.NoError(t, err)

	assert.Equal(t, int64(1), searchIDs(t, e, Items.Name, Request{Query: "long"})[0])
}

func TestImport_Reimport(t *testing.T) {
	e := setupTestEngine(t)
	items := testItems()
	im := newTestImporter(e, fakeStore{items: items}, 10)
	ctx := context.Background()

	first, err := im.Import(ctx, Items.Name)
	require.NoError(t, err)

	items[4].Name = "Dirk"
	second, err := im.Import(ctx, Items.Name)
	require.NoError(t, err)
	assert.NotEqual(t, first.RunID, second.RunID)

	count, err := e.Count(Items.Name)
	require.NoError(t, err)
	assert.EqualValues(t, 5, count, "documents are replaced, not duplicated")
	assert.Equal(t, []int64{5}, searchIDs(t, e, Items.Name, Request{Query: "dirk"}))
	assert.Empty(t, searchIDs(t, e, Items.Name, Request{Query: "dagger"}))
}

func TestImport_Errors(t *testing.T) {
	ctx := context.Background()

	unconfigured := NewEngine(Options{})
	defer unconfigured.Close()
	_, err := newTestImporter(unconfigured, fakeStore{}, 10).Import(ctx, Items.Name)
	assert.ErrorIs(t, err, ErrIndexNotConfigured)

	e := setupTestEngine(t)
	_, err = newTestImporter(e, fakeStore{}, 10).Import(ctx, "spells")
	assert.ErrorIs(t, err, ErrUnknownEntity)

	boom := errors.New("database gone")
	failing := NewImporter(e, 10, map[string]Source{
		Items.Name: SourceFunc(func(context.Context, int, func([]Document) error) error { return boom }),
	})
	_, err = failing.Import(ctx, Items.Name)
	assert.ErrorIs(t, err, boom)
}

func TestImportAll(t *testing.T) {
	e := setupTestEngine(t)
	im := newTestImporter(e, fakeStore{items: testItems(), races: testRaces()}, 0)

	reports, err := im.ImportAll(context.Background())
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, "items", reports[0].Entity)
	assert.Equal(t, 1, reports[0].Chunks, "default chunk size")
	assert.Equal(t, "races", reports[1].Entity)
	assert.Equal(t, 4, reports[1].Indexed)

	ids := searchIDs(t, e, Races.Name, Request{Query: "dwarf"})
	require.NotEmpty(t, ids)
	assert.Equal(t, int64(1), ids[0])
}

func TestImport_EmptySource(t *testing.T) {
	e := setupTestEngine(t)
	report, err := newTestImporter(e, fakeStore{}, 10).Import(context.Background(), Races.Name)
	require.NoError(t, err)
	assert.Zero(t, report.Indexed)
	assert.Zero(t, report.Chunks)
}
