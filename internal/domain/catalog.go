package domain

import (
	"slices"
	"strings"
)

const (
	// DefaultPageSize is the catalog page size when none is requested.
	DefaultPageSize = 20
	// MaxPageSize caps the requested catalog page size.
	MaxPageSize = 100
)

// CatalogFilter narrows the catalog. Zero values match everything.
type CatalogFilter struct {
	// Search is matched case-insensitively as a substring of title,
	// description, category and condition.
	Search     string
	Conditions []Condition
	Categories []Category
	Limit      int
	Offset     int
}

// Normalized returns a copy with a lower-cased, trimmed search term and the
// paging bounds clamped.
func (f CatalogFilter) Normalized() CatalogFilter {
	f.Search = strings.ToLower(strings.TrimSpace(f.Search))

	switch {
	case f.Limit <= 0:
		f.Limit = DefaultPageSize
	case f.Limit > MaxPageSize:
		f.Limit = MaxPageSize
	}

	f.Offset = max(f.Offset, 0)

	return f
}

// Matches reports whether item passes the filter. The filter must be normalized.
// Sold items never match.
func (f CatalogFilter) Matches(item *Item) bool {
	if item.IsSold {
		return false
	}

	if len(f.Conditions) > 0 && !slices.Contains(f.Conditions, item.Condition) {
		return false
	}

	if len(f.Categories) > 0 && !slices.Contains(f.Categories, item.Category) {
		return false
	}

	return item.Contains(f.Search)
}
