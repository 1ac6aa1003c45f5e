package search

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

// Clause is one comparison of a filter expression
type Clause struct {
	Field string
	Op    string
	Value string
}

// Filter is a conjunction of clauses
type Filter []Clause

var (
	andSplit   = regexp.MustCompile(`(?i)\s+AND\s+`)
	clauseExpr = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\s*(!=|>=|<=|=|>|<)\s*(.+)$`)
)

// ParseFilter parses expr against the filterable attributes of def. An empty
// expression yields an empty filter. Errors wrap ErrInvalidFilter.
func ParseFilter(def Definition, expr string) (Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}

	var f Filter
	for _, part := range andSplit.Split(expr, -1) {
		m := clauseExpr.FindStringSubmatch(strings.TrimSpace(part))
		if m == nil {
			return nil, fmt.Errorf("%w: cannot parse %q", ErrInvalidFilter, part)
		}
		c := Clause{Field: m[1], Op: m[2], Value: unquote(strings.TrimSpace(m[3]))}
		if err := c.validate(def); err != nil {
			return nil, err
		}
		f = append(f, c)
	}
	return f, nil
}

func unquote(v string) string {
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1]
	}
	return v
}

func (c Clause) validate(def Definition) error {
	kind, ok := def.Filterable[c.Field]
	if !ok {
		return fmt.Errorf("%w: attribute %q is not filterable", ErrInvalidFilter, c.Field)
	}

	switch kind {
	case Number:
		if _, err := strconv.ParseFloat(c.Value, 64); err != nil {
			return fmt.Errorf("%w: %s expects a number, got %q", ErrInvalidFilter, c.Field, c.Value)
		}
	case Bool:
		if _, err := strconv.ParseBool(c.Value); err != nil {
			return fmt.Errorf("%w: %s expects true or false, got %q", ErrInvalidFilter, c.Field, c.Value)
		}
		fallthrough
	default:
		if c.Op != "=" && c.Op != "!=" {
			return fmt.Errorf("%w: operator %s is not supported for %s", ErrInvalidFilter, c.Op, c.Field)
		}
	}
	return nil
}

func (c Clause) query(kind FieldKind) query.Query {
	var q query.Query
	switch kind {
	case Number:
		v, _ := strconv.ParseFloat(c.Value, 64)
		q = numericQuery(c.Field, c.Op, v)
	case Bool:
		v, _ := strconv.ParseBool(c.Value)
		bq := bleve.NewBoolFieldQuery(v)
		bq.SetField(c.Field)
		q = bq
	default:
		tq := bleve.NewTermQuery(strings.ToLower(c.Value))
		tq.SetField(c.Field)
		q = tq
	}
	if c.Op == "!=" {
		return not(q)
	}
	return q
}

func numericQuery(field, op string, v float64) query.Query {
	yes, no := true, false
	var nq *query.NumericRangeQuery
	switch op {
	case ">":
		nq = bleve.NewNumericRangeInclusiveQuery(&v, nil, &no, nil)
	case ">=":
		nq = bleve.NewNumericRangeInclusiveQuery(&v, nil, &yes, nil)
	case "<":
		nq = bleve.NewNumericRangeInclusiveQuery(nil, &v, nil, &no)
	case "<=":
		nq = bleve.NewNumericRangeInclusiveQuery(nil, &v, nil, &yes)
	default: // = and !=, negation is applied by the caller
		nq = bleve.NewNumericRangeInclusiveQuery(&v, &v, &yes, &yes)
	}
	nq.SetField(field)
	return nq
}

func not(q query.Query) query.Query {
	b := bleve.NewBooleanQuery()
	b.AddMust(bleve.NewMatchAllQuery())
	b.AddMustNot(q)
	return b
}

func (f Filter) queries(def Definition) []query.Query {
	qs := make([]query.Query, 0, len(f))
	for _, c := range f {
		qs = append(qs, c.query(def.Filterable[c.Field]))
	}
	return qs
}
