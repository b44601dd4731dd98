package fileserver

import (
	"sort"

	"golang.org/x/text/cases"
)

// SortListing returns a copy of entries in case-insensitive order.
// Entries keep their original casing. Entries that differ only
// in case stay in server order.
func SortListing(entries []string) []string {
	type item struct {
		key   string
		entry string
	}
	fold := cases.Fold()
	items := make([]item, len(entries))
	for i, e := range entries {
		items[i] = item{fold.String(e), e}
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].key < items[j].key
	})

	sorted := make([]string, len(items))
	for i := range items {
		sorted[i] = items[i].entry
	}
	return sorted
}
