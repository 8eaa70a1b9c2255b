package marketsvc

import (
	"github.com/mkrupp/joynest/internal/domain"
)

// CatalogPage is one page of the filtered catalog.
type CatalogPage struct {
	Items  []*domain.Item `json:"items"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// FilterItems applies filter to items, keeping their order, and returns the
// requested page together with the number of matches. The result is never nil.
func FilterItems(items []*domain.Item, filter domain.CatalogFilter) CatalogPage {
	filter = filter.Normalized()

	matches := make([]*domain.Item, 0, len(items))

	for _, item := range items {
		if filter.Matches(item) {
			matches = append(matches, item)
		}
	}

	page := CatalogPage{
		Items:  []*domain.Item{},
		Total:  len(matches),
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}

	if filter.Offset >= len(matches) {
		return page
	}

	end := min(filter.Offset+filter.Limit, len(matches))
	page.Items = matches[filter.Offset:end]

	return page
}
