// Package search maintains the full-text indexes behind the list endpoints.
//
// Each entity type (items, races) gets its own bleve index named
// <prefix><entity>. The index layout is described by a [Definition]:
// searchable text fields with boosts, filterable attributes and sortable
// attributes.
//
// # Usage
//
// Configure the indexes once, import records, then query:
//
//	engine := search.NewEngine(search.Options{Dir: "./data/indexes"})
//	defer engine.Close()
//
//	if _, err := engine.Configure(ctx); err != nil {
//	    return err
//	}
//
//	importer := search.NewImporter(engine, 500, map[string]search.Source{
//	    search.Items.Name: search.ItemSource(store),
//	    search.Races.Name: search.RaceSource(store),
//	})
//	report, err := importer.Import(ctx, "items")
//
//	res, err := engine.Search(ctx, "items", search.Request{Query: "long", Page: 1, PerPage: 15})
//
// # Configuration
//
// Configure is idempotent. The definition of every index is fingerprinted and
// the fingerprint is stored inside the index; a later Configure with the same
// definition leaves the index untouched, a changed definition rebuilds it empty
// and the entity has to be re-imported.
//
// # Ranking
//
// Queries are split into lower-cased tokens. Every token must match at least
// one searchable field, either as a whole term, as a prefix ("long" matches
// "Longsword") or, for tokens of five runes or more, within one edit. Results
// are ordered by score, ties broken by ascending id.
//
// # Filters
//
// Filter expressions are clauses joined by AND:
//
//	rarity = legendary AND cost_cp >= 5000
//	is_subrace = false AND speed > 25
//
// Keyword and boolean attributes accept = and !=; numeric attributes also
// accept >, >=, < and <=.
package search
