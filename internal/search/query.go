package search

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/blevesearch/bleve/v2"
	bsearch "github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"
)

// fuzzyMinRunes is the shortest token that is also matched within one edit
const fuzzyMinRunes = 5

// Request is a search over one entity index
type Request struct {
	Query   string
	Filter  Filter
	SortBy  string
	Desc    bool
	Page    int
	PerPage int
}

// MaxOffset is the largest number of hits a request may skip
const MaxOffset = math.MaxInt32

// MaxPage returns the last page number whose offset stays within MaxOffset
func MaxPage(perPage int) int {
	if perPage < 1 {
		return 1
	}
	return MaxOffset/perPage + 1
}

func (r Request) from() (int, error) {
	if r.Page <= 1 {
		return 0, nil
	}
	if r.Page > MaxPage(r.PerPage) {
		return 0, fmt.Errorf("%w: page %d with %d per page", ErrPageOutOfRange, r.Page, r.PerPage)
	}
	return (r.Page - 1) * r.PerPage, nil
}

// Result holds the ids of one page of hits, in rank order, and the total
// number of matching documents
type Result struct {
	IDs   []int64
	Total int
}

// Tokenize splits text into the terms the index analyzer produces for it:
// Unicode word boundaries, lower-cased. "Alchemist's Fire" yields
// "alchemist's" and "fire".
func Tokenize(text string) []string {
	stream := textAnalysis.Analyze([]byte(text))
	tokens := make([]string, 0, len(stream))
	for _, tok := range stream {
		tokens = append(tokens, string(tok.Term))
	}
	return tokens
}

const (
	exactNameBoost   = 10
	leadingNameBoost = 5
)

func buildQuery(def Definition, text string, filter Filter) query.Query {
	tokens := Tokenize(text)

	var must []query.Query
	for _, tok := range tokens {
		must = append(must, tokenQuery(def, tok))
	}
	must = append(must, filter.queries(def)...)

	if len(tokens) == 0 {
		switch len(must) {
		case 0:
			return bleve.NewMatchAllQuery()
		case 1:
			return must[0]
		default:
			return bleve.NewConjunctionQuery(must...)
		}
	}

	// Names equal to or starting with the whole query rank above names that
	// only contain its tokens.
	phrase := strings.Join(tokens, " ")
	exact := bleve.NewTermQuery(phrase)
	exact.SetField(sortNameField)
	exact.SetBoost(exactNameBoost)
	leading := bleve.NewPrefixQuery(phrase)
	leading.SetField(sortNameField)
	leading.SetBoost(leadingNameBoost)

	b := bleve.NewBooleanQuery()
	b.AddMust(must...)
	b.AddShould(exact, leading)
	return b
}

func tokenQuery(def Definition, tok string) query.Query {
	fuzzy := utf8.RuneCountInString(tok) >= fuzzyMinRunes

	var should []query.Query
	for _, f := range def.Searchable {
		term := bleve.NewTermQuery(tok)
		term.SetField(f.Name)
		term.SetBoost(f.Boost * 2)

		prefix := bleve.NewPrefixQuery(tok)
		prefix.SetField(f.Name)
		prefix.SetBoost(f.Boost)

		should = append(should, term, prefix)

		if fuzzy {
			fz := bleve.NewFuzzyQuery(tok)
			fz.SetField(f.Name)
			fz.SetFuzziness(1)
			fz.SetBoost(f.Boost / 2)
			should = append(should, fz)
		}
	}
	return bleve.NewDisjunctionQuery(should...)
}

func sortOrder(def Definition, r Request) (bsearch.SortOrder, error) {
	byID := &bsearch.SortField{Field: "id", Type: bsearch.SortFieldAsNumber}
	if r.SortBy == "" {
		return bsearch.SortOrder{&bsearch.SortScore{Desc: true}, byID}, nil
	}

	field, ok := def.Sortable[r.SortBy]
	if !ok {
		return nil, fmt.Errorf("%w: %q is not sortable", ErrInvalidSort, r.SortBy)
	}
	typ := bsearch.SortFieldAsString
	if def.Filterable[field] == Number {
		typ = bsearch.SortFieldAsNumber
	}
	if field == "id" {
		byID.Desc = r.Desc
		return bsearch.SortOrder{byID}, nil
	}
	return bsearch.SortOrder{
		&bsearch.SortField{Field: field, Desc: r.Desc, Type: typ, Missing: bsearch.SortFieldMissingLast},
		byID,
	}, nil
}
