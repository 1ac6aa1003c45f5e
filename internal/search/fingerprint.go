package search

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"
)

// mappingVersion is bumped whenever buildMapping changes in a way that needs a
// rebuild even though no definition changed.
const mappingVersion = 1

// Fingerprint returns a stable digest of the index settings for def
func Fingerprint(def Definition) string {
	var b strings.Builder
	fmt.Fprintf(&b, "v%d|%s|", mappingVersion, def.Name)

	searchable := make([]string, len(def.Searchable))
	for i, f := range def.Searchable {
		searchable[i] = fmt.Sprintf("%s^%g", f.Name, f.Boost)
	}
	slices.Sort(searchable)
	b.WriteString(strings.Join(searchable, ","))
	b.WriteByte('|')

	for _, k := range def.FilterKeys() {
		fmt.Fprintf(&b, "%s:%s,", k, def.Filterable[k])
	}
	b.WriteByte('|')

	for _, k := range def.SortKeys() {
		fmt.Fprintf(&b, "%s=%s,", k, def.Sortable[k])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
