package search

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"goa.design/clue/log"
)

var (
	// ErrIndexNotConfigured is returned when an entity index has not been
	// created yet. Run configure-indexes first.
	ErrIndexNotConfigured = errors.New("search index is not configured")
	ErrUnknownEntity      = errors.New("unknown entity type")
	ErrInvalidFilter      = errors.New("invalid filter")
	ErrInvalidSort        = errors.New("invalid sort")
	ErrPageOutOfRange     = errors.New("page out of range")
)

const (
	settingsKey  = "compendium:settings"
	textAnalyzer = "compendium_text"
)

// Invalidator is notified whenever the contents of an index change
type Invalidator interface {
	Invalidate(ctx context.Context, entity string) error
}

// Options configures an Engine
type Options struct {
	// Dir holds one <prefix><entity>.bleve directory per index. Empty keeps
	// all indexes in memory.
	Dir         string
	Prefix      string
	Definitions []Definition
	Invalidator Invalidator
}

// ConfigureAction tells what Configure did to an index
type ConfigureAction string

const (
	Created   ConfigureAction = "created"
	Unchanged ConfigureAction = "unchanged"
	Rebuilt   ConfigureAction = "rebuilt"
)

// ConfigureResult reports the outcome of Configure for one index
type ConfigureResult struct {
	Entity string          `json:"entity"`
	Index  string          `json:"index"`
	Action ConfigureAction `json:"action"`
}

// Engine owns the bleve index of every entity type
type Engine struct {
	dir         string
	prefix      string
	defs        map[string]Definition
	order       []string
	invalidator Invalidator
	tracer      trace.Tracer

	mu      sync.RWMutex
	indexes map[string]bleve.Index
}

// NewEngine creates an engine. Indexes are not touched until Open or Configure.
func NewEngine(opts Options) *Engine {
	defs := opts.Definitions
	if len(defs) == 0 {
		defs = Definitions()
	}

	e := &Engine{
		dir:         opts.Dir,
		prefix:      opts.Prefix,
		defs:        make(map[string]Definition, len(defs)),
		invalidator: opts.Invalidator,
		tracer:      otel.Tracer("github.com/meur/compendium/internal/search"),
		indexes:     make(map[string]bleve.Index),
	}
	for _, d := range defs {
		e.defs[d.Name] = d
		e.order = append(e.order, d.Name)
	}
	return e
}

// Entities returns the configured entity types in definition order
func (e *Engine) Entities() []string {
	return append([]string(nil), e.order...)
}

// Definition returns the definition of entity
func (e *Engine) Definition(entity string) (Definition, error) {
	d, ok := e.defs[entity]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", ErrUnknownEntity, entity)
	}
	return d, nil
}

// IndexName returns the prefixed index name of entity
func (e *Engine) IndexName(entity string) string {
	return e.prefix + entity
}

func (e *Engine) path(entity string) string {
	return filepath.Join(e.dir, e.IndexName(entity)+".bleve")
}

func (e *Engine) onDisk(entity string) bool {
	if e.dir == "" {
		return false
	}
	_, err := os.Stat(e.path(entity))
	return err == nil
}

// Open opens the indexes that already exist on disk. Missing indexes are
// skipped and reported as not configured by Search.
func (e *Engine) Open(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, name := range e.order {
		if _, ok := e.indexes[name]; ok {
			continue
		}
		if !e.onDisk(name) {
			log.Info(ctx, log.KV{K: "msg", V: "index not configured"}, log.KV{K: "index", V: e.IndexName(name)})
			continue
		}
		idx, err := bleve.Open(e.path(name))
		if err != nil {
			return fmt.Errorf("open index %s: %w", e.IndexName(name), err)
		}
		e.indexes[name] = idx
	}
	return nil
}

// Configure creates every missing index and rebuilds the ones whose settings
// changed. Running it again with the same definitions is a no-op.
func (e *Engine) Configure(ctx context.Context) ([]ConfigureResult, error) {
	ctx, span := e.tracer.Start(ctx, "search.Configure")
	defer span.End()

	e.mu.Lock()
	results := make([]ConfigureResult, 0, len(e.order))
	var changed []string
	for _, name := range e.order {
		action, err := e.configure(ctx, e.defs[name])
		if err != nil {
			e.mu.Unlock()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return results, fmt.Errorf("configure %s: %w", e.IndexName(name), err)
		}
		results = append(results, ConfigureResult{Entity: name, Index: e.IndexName(name), Action: action})
		if action != Unchanged {
			changed = append(changed, name)
		}
		log.Info(ctx, log.KV{K: "msg", V: "index configured"}, log.KV{K: "index", V: e.IndexName(name)},
			log.KV{K: "action", V: string(action)})
	}
	e.mu.Unlock()

	for _, name := range changed {
		e.invalidate(ctx, name)
	}
	return results, nil
}

// configure must be called with mu held
func (e *Engine) configure(ctx context.Context, def Definition) (ConfigureAction, error) {
	fp := Fingerprint(def)

	idx := e.indexes[def.Name]
	if idx == nil && e.onDisk(def.Name) {
		var err error
		if idx, err = bleve.Open(e.path(def.Name)); err != nil {
			return "", err
		}
		e.indexes[def.Name] = idx
	}

	action := Created
	if idx != nil {
		stored, err := idx.GetInternal([]byte(settingsKey))
		if err != nil {
			return "", err
		}
		if string(stored) == fp {
			return Unchanged, nil
		}
		log.Info(ctx, log.KV{K: "msg", V: "index settings changed, rebuilding"}, log.KV{K: "index", V: e.IndexName(def.Name)})
		if err := e.drop(def.Name); err != nil {
			return "", err
		}
		action = Rebuilt
	}

	if err := e.create(def, fp); err != nil {
		return "", err
	}
	return action, nil
}

// drop closes and deletes the index of entity. mu must be held.
func (e *Engine) drop(entity string) error {
	if idx, ok := e.indexes[entity]; ok {
		if err := idx.Close(); err != nil {
			return err
		}
		delete(e.indexes, entity)
	}
	if e.dir == "" {
		return nil
	}
	return os.RemoveAll(e.path(entity))
}

// create builds a fresh index for def and stamps it with fp. mu must be held.
func (e *Engine) create(def Definition, fp string) error {
	m, err := buildMapping(def)
	if err != nil {
		return err
	}

	var idx bleve.Index
	if e.dir == "" {
		idx, err = bleve.NewMemOnly(m)
	} else {
		if err = os.MkdirAll(e.dir, 0o755); err != nil {
			return err
		}
		idx, err = bleve.New(e.path(def.Name), m)
	}
	if err != nil {
		return err
	}

	if err := idx.SetInternal([]byte(settingsKey), []byte(fp)); err != nil {
		idx.Close()
		return err
	}
	e.indexes[def.Name] = idx
	return nil
}

// textAnalysis is the analyzer registered as textAnalyzer, built directly so
// that query text can be tokenized without an open index
var textAnalysis analysis.Analyzer = &analysis.DefaultAnalyzer{
	Tokenizer:    unicode.NewUnicodeTokenizer(),
	TokenFilters: []analysis.TokenFilter{lowercase.NewLowerCaseFilter()},
}

func buildMapping(def Definition) (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()
	err := im.AddCustomAnalyzer(textAnalyzer, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     unicode.Name,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, err
	}

	doc := bleve.NewDocumentStaticMapping()
	for _, f := range def.Searchable {
		tf := bleve.NewTextFieldMapping()
		tf.Analyzer = textAnalyzer
		tf.Store = false
		tf.IncludeInAll = false
		doc.AddFieldMappingsAt(f.Name, tf)
	}
	for name, kind := range def.Filterable {
		var fm *mapping.FieldMapping
		switch kind {
		case Number:
			fm = bleve.NewNumericFieldMapping()
		case Bool:
			fm = bleve.NewBooleanFieldMapping()
		default:
			fm = bleve.NewKeywordFieldMapping()
		}
		fm.Store = false
		fm.IncludeInAll = false
		fm.DocValues = true
		doc.AddFieldMappingsAt(name, fm)
	}
	sortName := bleve.NewKeywordFieldMapping()
	sortName.Store = false
	sortName.IncludeInAll = false
	doc.AddFieldMappingsAt(sortNameField, sortName)

	im.DefaultMapping = doc
	im.DefaultAnalyzer = textAnalyzer
	im.StoreDynamic = false
	im.IndexDynamic = false
	im.DocValuesDynamic = false
	return im, nil
}

func (e *Engine) invalidate(ctx context.Context, entity string) {
	if e.invalidator == nil {
		return
	}
	if err := e.invalidator.Invalidate(ctx, entity); err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "cache invalidation failed"}, log.KV{K: "entity", V: entity})
	}
}

// index returns the open index of entity. The caller must hold mu.
func (e *Engine) index(entity string) (bleve.Index, error) {
	if _, ok := e.defs[entity]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntity, entity)
	}
	idx, ok := e.indexes[entity]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrIndexNotConfigured, e.IndexName(entity))
	}
	return idx, nil
}

// Index adds or replaces docs in the index of entity
func (e *Engine) Index(ctx context.Context, entity string, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	e.mu.RLock()
	idx, err := e.index(entity)
	if err != nil {
		e.mu.RUnlock()
		return err
	}
	batch := idx.NewBatch()
	for _, d := range docs {
		if err := batch.Index(d.key(), d.Fields); err != nil {
			e.mu.RUnlock()
			return fmt.Errorf("index document %d: %w", d.ID, err)
		}
	}
	err = idx.Batch(batch)
	e.mu.RUnlock()
	if err != nil {
		return err
	}

	e.invalidate(ctx, entity)
	return nil
}

// Delete removes documents from the index of entity
func (e *Engine) Delete(ctx context.Context, entity string, ids ...int64) error {
	e.mu.RLock()
	idx, err := e.index(entity)
	if err != nil {
		e.mu.RUnlock()
		return err
	}
	batch := idx.NewBatch()
	for _, id := range ids {
		batch.Delete(strconv.FormatInt(id, 10))
	}
	err = idx.Batch(batch)
	e.mu.RUnlock()
	if err != nil {
		return err
	}

	e.invalidate(ctx, entity)
	return nil
}

// Flush empties the index of entity, keeping its settings
func (e *Engine) Flush(ctx context.Context, entity string) error {
	e.mu.Lock()
	def, ok := e.defs[entity]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownEntity, entity)
	}
	if _, err := e.index(entity); err != nil {
		e.mu.Unlock()
		return err
	}
	err := e.drop(entity)
	if err == nil {
		err = e.create(def, Fingerprint(def))
	}
	e.mu.Unlock()
	if err != nil {
		return fmt.Errorf("flush %s: %w", e.IndexName(entity), err)
	}

	log.Info(ctx, log.KV{K: "msg", V: "index flushed"}, log.KV{K: "index", V: e.IndexName(entity)})
	e.invalidate(ctx, entity)
	return nil
}

// Count returns the number of documents in the index of entity
func (e *Engine) Count(entity string) (uint64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	idx, err := e.index(entity)
	if err != nil {
		return 0, err
	}
	return idx.DocCount()
}

// Configured reports whether the index of entity exists
func (e *Engine) Configured(entity string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.indexes[entity]
	return ok
}

// Search runs r against the index of entity
func (e *Engine) Search(ctx context.Context, entity string, r Request) (Result, error) {
	ctx, span := e.tracer.Start(ctx, "search.Search", trace.WithAttributes(
		attribute.String("search.entity", entity),
		attribute.String("search.query", r.Query),
		attribute.Int("search.page", r.Page),
	))
	defer span.End()

	res, err := e.search(ctx, entity, r)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}
	span.SetAttributes(attribute.Int("search.total", res.Total))
	return res, nil
}

func (e *Engine) search(ctx context.Context, entity string, r Request) (Result, error) {
	def, err := e.Definition(entity)
	if err != nil {
		return Result{}, err
	}
	order, err := sortOrder(def, r)
	if err != nil {
		return Result{}, err
	}
	if r.PerPage <= 0 {
		return Result{}, fmt.Errorf("per page must be positive, got %d", r.PerPage)
	}

	from, err := r.from()
	if err != nil {
		return Result{}, err
	}
	req := bleve.NewSearchRequestOptions(buildQuery(def, r.Query, r.Filter), r.PerPage, from, false)
	req.SortByCustom(order)

	e.mu.RLock()
	defer e.mu.RUnlock()

	idx, err := e.index(entity)
	if err != nil {
		return Result{}, err
	}
	sr, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return Result{}, err
	}

	ids := make([]int64, 0, len(sr.Hits))
	for _, hit := range sr.Hits {
		id, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			return Result{}, fmt.Errorf("malformed document id %q: %w", hit.ID, err)
		}
		ids = append(ids, id)
	}
	return Result{IDs: ids, Total: int(sr.Total)}, nil
}

// Close closes every open index
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var errs []error
	for name, idx := range e.indexes {
		if err := idx.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", e.IndexName(name), err))
		}
		delete(e.indexes, name)
	}
	return errors.Join(errs...)
}
