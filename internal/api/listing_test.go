package api

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meur/compendium/internal/models"
	"github.com/meur/compendium/internal/search"
)

func TestParseListParams_Defaults(t *testing.T) {
	env := setupTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/items", nil)

	p, err := env.server.parseListParams(req, search.Items)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 15, p.PerPage)
	assert.False(t, p.searching())
	assert.Equal(t, "asc", p.direction())
}

func TestParseListParams_FilterAloneSearches(t *testing.T) {
	env := setupTestServer(t)
	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/races?sort_direction=DESC&filter="+url.QueryEscape("speed >= 30"), nil)

	p, err := env.server.parseListParams(req, search.Races)
	require.NoError(t, err)
	assert.True(t, p.searching())
	assert.True(t, p.Desc)
	require.Len(t, p.Filter, 1)
	assert.Equal(t, "speed", p.Filter[0].Field)
}

func TestPageLinks_KeepQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/items?q=sword&page=1", nil)
	links := pageLinks(req, models.NewPageMeta(1, 15, 45, 15, "/api/v1/items"))

	assert.Equal(t, "/api/v1/items?page=1&q=sword", links.First)
	assert.Equal(t, "/api/v1/items?page=3&q=sword", links.Last)
	assert.Nil(t, links.Prev)
	require.NotNil(t, links.Next)
	assert.Equal(t, "/api/v1/items?page=2&q=sword", *links.Next)
}

// Queries shorter than the minimum are always rejected, whatever they contain,
// and queries within bounds never are.
func TestListItems_QueryLengthProperty(t *testing.T) {
	env := setupTestServer(t)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	status := func(q string) int {
		rec := env.do(t, http.MethodGet, "/api/v1/items?q="+url.QueryEscape(q))
		return rec.Code
	}

	properties.Property("single character queries are rejected", prop.ForAll(
		func(r rune) bool {
			return status(string(r)) == http.StatusUnprocessableEntity
		},
		gen.AlphaNumChar(),
	))

	properties.Property("queries within bounds pass validation", prop.ForAll(
		func(q string) bool {
			// The index is not configured, so a valid query stops at 503
			return status(q) == http.StatusServiceUnavailable
		},
		gen.AlphaString().Map(func(s string) string { return "ab" + s }),
	))

	properties.TestingRun(t)
}
