package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"goa.design/clue/log"

	"github.com/meur/compendium/internal/cache"
	"github.com/meur/compendium/internal/models"
	"github.com/meur/compendium/internal/search"
	"github.com/meur/compendium/internal/storage"
)

// listParams are the validated query parameters of a list endpoint
type listParams struct {
	Query     string
	Filter    search.Filter
	rawFilter string
	SortBy    string
	Desc      bool
	Page      int
	PerPage   int
}

// searching reports whether the request goes to the search index rather than
// straight to the store
func (p listParams) searching() bool {
	return p.Query != "" || len(p.Filter) > 0
}

func (p listParams) direction() string {
	if p.Desc {
		return "desc"
	}
	return "asc"
}

func (s *Server) parseListParams(r *http.Request, def search.Definition) (listParams, error) {
	q := r.URL.Query()
	verr := &ValidationError{}
	p := listParams{Page: 1, PerPage: s.cfg.API.DefaultPerPage}

	// An empty q is the same as no q
	if query := strings.TrimSpace(q.Get("q")); query != "" {
		n := utf8.RuneCountInString(query)
		switch {
		case n < s.cfg.Search.MinQueryLength:
			verr.Add("q", fmt.Sprintf("The q field must be at least %d characters.", s.cfg.Search.MinQueryLength))
		case n > s.cfg.Search.MaxQueryLength:
			verr.Add("q", fmt.Sprintf("The q field must not be greater than %d characters.", s.cfg.Search.MaxQueryLength))
		}
		p.Query = query
	}

	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		switch {
		case err != nil:
			verr.Add("page", "The page field must be an integer.")
		case n < 1:
			verr.Add("page", "The page field must be at least 1.")
		default:
			p.Page = n
		}
	}

	if v := q.Get("per_page"); v != "" {
		n, err := strconv.Atoi(v)
		switch {
		case err != nil:
			verr.Add("per_page", "The per_page field must be an integer.")
		case n < 1:
			verr.Add("per_page", "The per_page field must be at least 1.")
		case n > s.cfg.API.MaxPerPage:
			verr.Add("per_page", fmt.Sprintf("The per_page field must not be greater than %d.", s.cfg.API.MaxPerPage))
		default:
			p.PerPage = n
		}
	}

	if _, bad := verr.Fields["page"]; !bad && p.Page > search.MaxPage(p.PerPage) {
		verr.Add("page", fmt.Sprintf("The page field must not be greater than %d.", search.MaxPage(p.PerPage)))
	}

	if v := q.Get("sort_by"); v != "" {
		if !def.CanSort(v) {
			verr.Add("sort_by", fmt.Sprintf("The selected sort_by is invalid. Allowed: %s.",
				strings.Join(def.SortKeys(), ", ")))
		}
		p.SortBy = v
	}

	switch v := strings.ToLower(q.Get("sort_direction")); v {
	case "", "asc":
	case "desc":
		p.Desc = true
	default:
		verr.Add("sort_direction", "The selected sort_direction is invalid.")
	}

	if v := strings.TrimSpace(q.Get("filter")); v != "" {
		f, err := search.ParseFilter(def, v)
		if err != nil {
			verr.Add("filter", err.Error())
		}
		p.Filter = f
		p.rawFilter = v
	}

	return p, verr.Err()
}

// lister binds one entity type to the generic list flow
type lister[T, R any] struct {
	def     search.Definition
	list    func(context.Context, storage.ListOptions) ([]T, int, error)
	byIDs   func(context.Context, []int64) ([]T, error)
	present func(T) R
}

func serveList[T, R any](s *Server, w http.ResponseWriter, r *http.Request, l lister[T, R]) {
	ctx := r.Context()

	p, err := s.parseListParams(r, l.def)
	if err != nil {
		respondErr(w, r, err)
		return
	}

	if !p.searching() {
		records, total, err := l.list(ctx, storage.ListOptions{
			Page:    p.Page,
			PerPage: p.PerPage,
			SortBy:  p.SortBy,
			Desc:    p.Desc,
		})
		if err != nil {
			respondErr(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, buildPage(r, p, total, records, l.present))
		return
	}

	key := s.cacheKey(ctx, l.def.Name, p)
	if key != "" {
		if page, ok := s.cachedPage(ctx, key); ok {
			w.Header().Set("X-Cache", "HIT")
			respondJSON(w, http.StatusOK, page.withLinks(r))
			return
		}
	}

	res, err := s.engine.Search(ctx, l.def.Name, search.Request{
		Query:   p.Query,
		Filter:  p.Filter,
		SortBy:  p.SortBy,
		Desc:    p.Desc,
		Page:    p.Page,
		PerPage: p.PerPage,
	})
	if err != nil {
		respondErr(w, r, err)
		return
	}
	records, err := l.byIDs(ctx, res.IDs)
	if err != nil {
		respondErr(w, r, err)
		return
	}

	page := buildPage(r, p, res.Total, records, l.present)
	if key != "" {
		data, err := json.Marshal(page.Data)
		if err != nil {
			respondErr(w, r, err)
			return
		}
		s.storePage(ctx, key, cachedPage{Data: data, Meta: page.Meta})
		w.Header().Set("X-Cache", "MISS")
	}
	respondJSON(w, http.StatusOK, page)
}

// cachedPage is a search page without its links. Links echo the raw query
// string, which differs between requests sharing a cache key.
type cachedPage struct {
	Data json.RawMessage `json:"data"`
	Meta models.PageMeta `json:"meta"`
}

// rawPage has the shape of models.Page with the data already encoded
type rawPage struct {
	Data  json.RawMessage  `json:"data"`
	Links models.PageLinks `json:"links"`
	Meta  models.PageMeta  `json:"meta"`
}

func (c cachedPage) withLinks(r *http.Request) rawPage {
	return rawPage{Data: c.Data, Links: pageLinks(r, c.Meta), Meta: c.Meta}
}

func (s *Server) cachedPage(ctx context.Context, key string) (cachedPage, bool) {
	body, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "cache read failed"})
		return cachedPage{}, false
	}
	if !ok {
		return cachedPage{}, false
	}
	var page cachedPage
	if err := json.Unmarshal(body, &page); err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "dropping malformed cache entry"}, log.KV{K: "key", V: key})
		return cachedPage{}, false
	}
	return page, true
}

func (s *Server) storePage(ctx context.Context, key string, page cachedPage) {
	body, err := json.Marshal(page)
	if err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "cache encode failed"})
		return
	}
	if err := s.cache.Set(ctx, key, body); err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "cache write failed"})
	}
}

// cacheKey returns the key of a search response, or "" when the cache is
// unavailable
func (s *Server) cacheKey(ctx context.Context, entity string, p listParams) string {
	version, err := s.cache.Version(ctx, entity)
	if err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "cache version lookup failed"})
		return ""
	}
	return cache.Key(entity, version,
		"q="+strings.ToLower(p.Query),
		"filter="+p.rawFilter,
		"sort_by="+p.SortBy,
		"sort_direction="+p.direction(),
		"page="+strconv.Itoa(p.Page),
		"per_page="+strconv.Itoa(p.PerPage),
	)
}

func buildPage[T, R any](r *http.Request, p listParams, total int, records []T, present func(T) R) models.Page[R] {
	data := make([]R, len(records))
	for i, rec := range records {
		data[i] = present(rec)
	}
	meta := models.NewPageMeta(p.Page, p.PerPage, total, len(data), r.URL.Path)
	return models.Page[R]{Data: data, Links: pageLinks(r, meta), Meta: meta}
}

func pageLinks(r *http.Request, meta models.PageMeta) models.PageLinks {
	link := func(page int) string {
		q := make(url.Values, len(r.URL.Query()))
		for k, v := range r.URL.Query() {
			q[k] = v
		}
		q.Set("page", strconv.Itoa(page))
		return r.URL.Path + "?" + q.Encode()
	}

	links := models.PageLinks{First: link(1), Last: link(meta.LastPage)}
	if meta.CurrentPage > 1 {
		prev := link(min(meta.CurrentPage-1, meta.LastPage))
		links.Prev = &prev
	}
	if meta.CurrentPage < meta.LastPage {
		next := link(meta.CurrentPage + 1)
		links.Next = &next
	}
	return links
}
