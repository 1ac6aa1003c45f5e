package search

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"goa.design/clue/log"

	"github.com/meur/compendium/internal/models"
)

// DefaultChunkSize is the number of records indexed per batch
const DefaultChunkSize = 500

// Source streams the records of one entity type as documents
type Source interface {
	Chunks(ctx context.Context, size int, emit func([]Document) error) error
}

// SourceFunc adapts a function to Source
type SourceFunc func(ctx context.Context, size int, emit func([]Document) error) error

func (f SourceFunc) Chunks(ctx context.Context, size int, emit func([]Document) error) error {
	return f(ctx, size, emit)
}

// ItemChunker is implemented by storage.Store
type ItemChunker interface {
	EachItemChunk(ctx context.Context, size int, fn func([]models.Item) error) error
}

// RaceChunker is implemented by storage.Store
type RaceChunker interface {
	EachRaceChunk(ctx context.Context, size int, fn func([]models.Race) error) error
}

// ItemSource reads items from store
func ItemSource(store ItemChunker) Source {
	return SourceFunc(func(ctx context.Context, size int, emit func([]Document) error) error {
		return store.EachItemChunk(ctx, size, func(items []models.Item) error {
			docs := make([]Document, len(items))
			for i, item := range items {
				docs[i] = ItemDocument(item)
			}
			return emit(docs)
		})
	})
}

// RaceSource reads races from store
func RaceSource(store RaceChunker) Source {
	return SourceFunc(func(ctx context.Context, size int, emit func([]Document) error) error {
		return store.EachRaceChunk(ctx, size, func(races []models.Race) error {
			docs := make([]Document, len(races))
			for i, race := range races {
				docs[i] = RaceDocument(race)
			}
			return emit(docs)
		})
	})
}

// Report summarizes one import run
type Report struct {
	RunID      string        `json:"run_id"`
	Entity     string        `json:"entity"`
	Index      string        `json:"index"`
	Indexed    int           `json:"indexed"`
	Chunks     int           `json:"chunks"`
	Duration   time.Duration `json:"-"`
	DurationMS int64         `json:"duration_ms"`
}

// Importer copies records from their sources into the engine
type Importer struct {
	engine    *Engine
	chunkSize int
	sources   map[string]Source
}

// NewImporter creates an importer. A non-positive chunkSize selects
// DefaultChunkSize.
func NewImporter(engine *Engine, chunkSize int, sources map[string]Source) *Importer {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Importer{engine: engine, chunkSize: chunkSize, sources: sources}
}

// Import indexes every record of entity. Records already in the index are
// replaced; records removed from the source stay until the index is flushed.
func (im *Importer) Import(ctx context.Context, entity string) (Report, error) {
	source, ok := im.sources[entity]
	if !ok {
		return Report{}, fmt.Errorf("%w: %q", ErrUnknownEntity, entity)
	}
	if !im.engine.Configured(entity) {
		return Report{}, fmt.Errorf("%w: %s", ErrIndexNotConfigured, im.engine.IndexName(entity))
	}

	report := Report{
		RunID:  uuid.NewString(),
		Entity: entity,
		Index:  im.engine.IndexName(entity),
	}
	ctx = log.With(ctx, log.KV{K: "run_id", V: report.RunID}, log.KV{K: "index", V: report.Index})
	ctx, span := im.engine.tracer.Start(ctx, "search.Import", trace.WithAttributes(
		attribute.String("search.entity", entity),
		attribute.String("search.run_id", report.RunID),
	))
	defer span.End()

	start := time.Now()
	err := source.Chunks(ctx, im.chunkSize, func(docs []Document) error {
		if err := im.engine.Index(ctx, entity, docs); err != nil {
			return err
		}
		report.Chunks++
		report.Indexed += len(docs)
		log.Debug(ctx, log.KV{K: "msg", V: "chunk indexed"}, log.KV{K: "chunk", V: report.Chunks},
			log.KV{K: "size", V: len(docs)})
		return nil
	})
	report.Duration = time.Since(start)
	report.DurationMS = report.Duration.Milliseconds()
	span.SetAttributes(attribute.Int("search.indexed", report.Indexed))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return report, fmt.Errorf("import %s: %w", entity, err)
	}

	log.Info(ctx, log.KV{K: "msg", V: "import finished"}, log.KV{K: "indexed", V: report.Indexed},
		log.KV{K: "chunks", V: report.Chunks}, log.KV{K: "took", V: report.Duration.String()})
	return report, nil
}

// ImportAll imports every entity type the engine knows, in definition order
func (im *Importer) ImportAll(ctx context.Context) ([]Report, error) {
	var reports []Report
	for _, entity := range im.engine.Entities() {
		if _, ok := im.sources[entity]; !ok {
			continue
		}
		r, err := im.Import(ctx, entity)
		if err != nil {
			return reports, err
		}
		reports = append(reports, r)
	}
	return reports, nil
}
